// coachctl runs syncs and coaching tasks from the command line against
// the locally configured store. Useful for cron-driven invocation and
// local development without the HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mycoach/server/pkg/bootstrap"
	"github.com/mycoach/server/pkg/coaching"
	"github.com/mycoach/server/pkg/ingest"
	"github.com/mycoach/server/pkg/progression"
	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/sources/fitfile"
	"github.com/mycoach/server/pkg/sources/hevycsv"
	"github.com/mycoach/server/pkg/types"
)

func main() {
	userID := flag.String("user", "", "User id to operate on")
	syncSource := flag.String("sync", "", "Sync a registered source by id")
	importCSV := flag.String("import-hevy", "", "Path to a Hevy CSV export to import")
	importFit := flag.String("import-fit", "", "Path to a FIT file to import")
	task := flag.String("task", "", "Coaching task to run (daily_briefing, weekly_plan, post_workout, sleep_coaching)")
	date := flag.String("date", time.Now().UTC().Format(types.DateLayout), "Reference date (YYYY-MM-DD)")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}
	logger := bootstrap.NewLogger("coachctl", true)

	importer := ingest.NewImporter(svc.Store, logger.With("component", "importer"))
	merger := ingest.NewMerger(svc.Store, logger.With("component", "merger"), ingest.MergerConfig{})
	syncSvc := ingest.NewSyncService(svc.Store, importer, merger, svc.Pub, svc.Blobs, svc.Config.ArtifactBucket, logger.With("component", "sync"))

	switch {
	case *syncSource != "":
		report, err := syncSvc.RunSync(ctx, *userID, *syncSource)
		if err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		printJSON(report)

	case *importCSV != "":
		runFileImport(ctx, syncSvc, *userID, *importCSV, func(data []byte) sources.Source {
			return hevycsv.NewSource(data)
		})

	case *importFit != "":
		path := *importFit
		runFileImport(ctx, syncSvc, *userID, path, func(data []byte) sources.Source {
			return fitfile.NewSource(path, data)
		})

	case *task != "":
		ledger := coaching.NewCostLedger(svc.Store, svc.Config.CostCeilingUSD)
		backend := coaching.NewGeminiBackend(svc.Config.GeminiAPIKey)
		invoker := coaching.NewInvoker(backend, ledger, logger.With("component", "invoker"), coaching.InvokerConfig{})
		validator := coaching.NewValidator(invoker, svc.Store, logger.With("component", "validator"))
		assembler := coaching.NewAssembler(svc.Store, coaching.AssemblerConfig{}, logger.With("component", "assembler"))
		tracker := progression.NewTracker(svc.Store, logger.With("component", "progression"), progression.Config{})
		engine := coaching.NewEngine(svc.Store, assembler, validator, tracker, svc.Pub, logger.With("component", "engine"))

		result, err := engine.RunCoachingTask(ctx, *userID, *task, *date)
		if err != nil {
			log.Fatalf("Task failed: %v", err)
		}
		printJSON(result)

	default:
		flag.Usage()
		os.Exit(1)
	}
}

func runFileImport(ctx context.Context, syncSvc *ingest.SyncService, userID, path string, build func([]byte) sources.Source) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	report, err := syncSvc.RunSyncSource(ctx, userID, build(data))
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	printJSON(report)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(out))
}
