// fit-inspect decodes a FIT file through the same adapter the import
// pipeline uses and prints the canonical activity it would produce.
// Useful for checking what a watch export will look like on the
// timeline before uploading it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mycoach/server/pkg/sources/fitfile"
	"github.com/mycoach/server/pkg/types"
)

func main() {
	raw := flag.Bool("raw", false, "print the raw record instead of the normalized activity")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: fit-inspect [-raw] <file.fit>\n")
		os.Exit(2)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read %s: %v", path, err)
	}

	src := fitfile.NewSource(filepath.Base(path), data)
	result, err := src.Fetch(context.Background(), time.Time{})
	if err != nil {
		fatal("decode: %v", err)
	}
	for _, re := range result.Rejected {
		fmt.Fprintf(os.Stderr, "rejected: %s\n", re.Reason)
	}
	if len(result.Records) == 0 {
		fatal("no activity found in %s", path)
	}

	rec := result.Records[0]
	if *raw {
		printJSON(rec)
		return
	}

	normalized, err := src.Normalize(rec)
	if err != nil {
		fatal("normalize: %v", err)
	}
	activity, ok := normalized.(*types.Activity)
	if !ok {
		fatal("unexpected record kind %q", normalized.RecordKind())
	}

	fmt.Printf("key:      %s\n", rec.Key())
	fmt.Printf("sport:    %s\n", activity.Sport)
	fmt.Printf("title:    %s\n", activity.Title)
	fmt.Printf("start:    %s\n", activity.StartTime.Format(time.RFC3339))
	if activity.DurationMinutes != nil {
		fmt.Printf("duration: %d min\n", *activity.DurationMinutes)
	}
	fmt.Printf("sets:     %d\n", len(activity.Sets))
	fmt.Println()
	printJSON(activity)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("encode: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
