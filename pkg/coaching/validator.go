package coaching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	shared "github.com/mycoach/server/pkg"
	"github.com/mycoach/server/pkg/types"
)

// ValidatedOutput is the outcome of generate-then-validate: a
// schema-typed payload, or the raw text fallback when validation could
// not be repaired.
type ValidatedOutput struct {
	Payload       json.RawMessage
	RawText       string
	Status        string // valid or degraded
	CostUSD       float64
	InvocationIDs []string
}

// Validator runs the model and validates output against the schema
// registered for the task and template version. A validation failure
// triggers exactly one repair retry; a second failure degrades to the
// raw text rather than failing the operation.
type Validator struct {
	invoker *Invoker
	store   shared.Store
	logger  *slog.Logger
}

func NewValidator(invoker *Invoker, store shared.Store, logger *slog.Logger) *Validator {
	return &Validator{invoker: invoker, store: store, logger: logger}
}

// GenerateValidated produces validated output for an assembled context.
// A budget refusal or exhausted backend retries on the first call
// propagate as errors; on the repair call they degrade to the first
// response's raw text, as validation failures do.
func (v *Validator) GenerateValidated(ctx context.Context, userID string, tc *TaskContext) (*ValidatedOutput, error) {
	schema, ok := SchemaFor(tc.TaskType, TemplateVersion)
	if !ok {
		return nil, fmt.Errorf("no schema registered for %s %s", tc.TaskType, TemplateVersion)
	}
	prompt, err := BuildPrompt(tc)
	if err != nil {
		return nil, err
	}

	out := &ValidatedOutput{}
	req := &GenerateRequest{
		Tier:            tierFor(tc.TaskType),
		Prompt:          prompt,
		Temperature:     0.7,
		MaxOutputTokens: 2048,
	}

	resp, payload, validationErr, err := v.attempt(ctx, userID, req, schema, out)
	if err != nil {
		return nil, err
	}
	if validationErr == nil {
		out.Payload = payload
		out.Status = types.ValidationValid
		return out, nil
	}

	v.logger.Warn("model output failed validation, issuing repair retry",
		"task_type", tc.TaskType, "error", validationErr)
	repairReq := &GenerateRequest{
		Tier:            req.Tier,
		Prompt:          BuildRepairPrompt(prompt, resp.Text, validationErr),
		Temperature:     0.2,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	repairResp, payload, validationErr, err := v.attempt(ctx, userID, repairReq, schema, out)
	if err != nil {
		// The first response survives as the degraded fallback even if
		// the repair call itself could not run.
		v.logger.Warn("repair invocation failed, degrading to raw text", "error", err)
		out.RawText = resp.Text
		out.Status = types.ValidationDegraded
		return out, nil
	}
	if validationErr == nil {
		out.Payload = payload
		out.Status = types.ValidationValid
		return out, nil
	}

	v.logger.Warn("repair retry failed validation, degrading to raw text",
		"task_type", tc.TaskType, "error", validationErr)
	out.RawText = repairResp.Text
	out.Status = types.ValidationDegraded
	return out, nil
}

// attempt runs one invocation and validates its output, appending the
// invocation record with the final outcome. A nil validationErr means
// the payload passed the schema.
func (v *Validator) attempt(ctx context.Context, userID string, req *GenerateRequest, schema *Schema, out *ValidatedOutput) (resp *GenerateResponse, payload json.RawMessage, validationErr error, err error) {
	resp, inv, err := v.invoker.Invoke(ctx, userID, schema.TaskType, req)
	if err == nil {
		payload, validationErr = ExtractJSON(resp.Text)
		if validationErr == nil {
			validationErr = schema.Validate(payload)
		}
		if validationErr != nil {
			payload = nil
			inv.Outcome = types.OutcomeInvalid
			inv.Error = validationErr.Error()
		}
	}
	if aerr := v.store.AppendInvocation(ctx, userID, inv); aerr != nil {
		v.logger.Error("failed to record invocation", "invocation_id", inv.ID, "error", aerr)
	}
	out.CostUSD += inv.EstimatedCostUSD
	out.InvocationIDs = append(out.InvocationIDs, inv.ID)
	return resp, payload, validationErr, err
}
