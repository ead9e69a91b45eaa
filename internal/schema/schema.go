package schema

import (
	"context"
	"fmt"
	"strings"

	"articlereview/internal/logging"
)

// SchemaError reports a value that does not fit a stage schema.
type SchemaError struct {
	Schema string
	Fields []string
	Reason string
}

func (e *SchemaError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s schema: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("%s schema: %s: %s", e.Schema, e.Reason, strings.Join(e.Fields, ", "))
}

// Schema describes one stage's expected output.
type Schema[T any] interface {
	// Name labels warnings, e.g. "Extractor".
	Name() string
	// Parse reads raw model text into an intermediate value.
	Parse(raw string) (any, error)
	// NeedsRepair reports whether parsed should go through a repair round.
	NeedsRepair(parsed any) bool
	// Validate converts parsed into T or returns a *SchemaError.
	Validate(parsed any) (T, error)
	// Coerce always returns a valid T, keeping whatever parsed carries.
	Coerce(parsed any) T
	// RepairPrompt asks the model to rewrite raw into the exact shape.
	RepairPrompt(raw string) string
}

// Completer is the model call used for repair.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Outcome is the result of processing one model response.
type Outcome[T any] struct {
	Value    T
	Warnings []string
	// Repaired is set when a repair call was issued.
	Repaired bool
	// Degraded is set when Value came from Coerce.
	Degraded bool
}

func (o *Outcome[T]) warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
}

// Validator applies a Schema to model output with at most one repair call.
type Validator[T any] struct {
	schema Schema[T]
	model  Completer
	repair bool
}

// NewValidator creates a Validator. Repair is skipped when model is nil or
// repair is false.
func NewValidator[T any](s Schema[T], model Completer, repair bool) *Validator[T] {
	return &Validator[T]{schema: s, model: model, repair: repair && model != nil}
}

// Process parses, validates and, if needed, repairs raw. It never fails:
// problems are reported as warnings and the value is coerced.
func (v *Validator[T]) Process(ctx context.Context, raw string) Outcome[T] {
	var out Outcome[T]
	name := v.schema.Name()

	parsed, err := v.schema.Parse(raw)
	if err != nil {
		out.warn("%s returned invalid JSON: %v", name, err)
		parsed = nil
	}

	if v.repair && (parsed == nil || v.schema.NeedsRepair(parsed)) {
		out.Repaired = true
		logging.Get(logging.CategoryPipeline).Debug("%s output needs repair", name)
		fixed, err := v.repairOnce(ctx, raw)
		if err != nil {
			out.warn("%s repair failed: %v", name, err)
		} else {
			parsed = fixed
		}
	}

	value, err := v.schema.Validate(parsed)
	if err != nil {
		if len(out.Warnings) == 0 {
			out.warn("%s final validation failed: %v", name, err)
		}
		out.Value = v.schema.Coerce(parsed)
		out.Degraded = true
		return out
	}
	out.Value = value
	return out
}

func (v *Validator[T]) repairOnce(ctx context.Context, raw string) (any, error) {
	fixed, err := v.model.Complete(ctx, v.schema.RepairPrompt(raw))
	if err != nil {
		return nil, fmt.Errorf("repair call: %w", err)
	}
	return v.schema.Parse(fixed)
}
