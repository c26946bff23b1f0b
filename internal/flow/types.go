// Package flow runs a mapping over a source: it compiles the mapping, then
// feeds every row through the entity mappings in dependency order and
// keeps the run statistics.
package flow

import (
	"fmt"

	"github.com/google/uuid"

	"entity-loader/internal/common"
	"entity-loader/internal/importerr"
	"entity-loader/internal/mapping"
)

// Status is the state of a run.
type Status int

const (
	Pending Status = iota
	Running
	Completed
	// PartiallyCompleted means every row was read but some failed.
	PartiallyCompleted
	// Failed means the run could not start or was halted.
	Failed
)

var statusNames = map[Status]string{
	Pending:            "pending",
	Running:            "running",
	Completed:          "completed",
	PartiallyCompleted: "partially_completed",
	Failed:             "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return common.UnknownStr
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsFinal reports whether the run is over.
func (s Status) IsFinal() bool {
	return s == Completed || s == PartiallyCompleted || s == Failed
}

// Decision is the reaction to a row error.
type Decision int

const (
	// Continue records the error and goes on with the next row.
	Continue Decision = iota
	// Stop halts the run immediately; the run fails.
	Stop
	// StopOnError goes on, but halts the run at the next error.
	StopOnError
	// ContinueSilent goes on and stops reporting errors of the same
	// classification for the rest of the run. They are still counted.
	ContinueSilent
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	case StopOnError:
		return "stop_on_error"
	case ContinueSilent:
		return "continue_silent"
	default:
		return common.UnknownStr
	}
}

// RowError is a row-scoped failure.
type RowError struct {
	Line int `json:"line"`
	// Mapping is the label of the entity mapping that failed, e.g. "Book#2".
	Mapping        string                   `json:"mapping"`
	Entity         string                   `json:"entity"`
	Err            error                    `json:"-"`
	Classification importerr.Classification `json:"classification"`
	// Values are the source fields of the row.
	Values map[string]any `json:"values,omitempty"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d, %s: %v", e.Line, e.Mapping, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ErrorDecider decides how a run reacts to a row error.
type ErrorDecider interface {
	Decide(e RowError) Decision
}

// DecisionFunc adapts a function to ErrorDecider.
type DecisionFunc func(e RowError) Decision

// Decide implements ErrorDecider.
func (f DecisionFunc) Decide(e RowError) Decision {
	return f(e)
}

// PolicyDecider returns the decider an error policy stands for.
func PolicyDecider(p mapping.ErrorPolicy) ErrorDecider {
	return DecisionFunc(func(RowError) Decision {
		if p == mapping.PolicyStop {
			return Stop
		}

		return Continue
	})
}

// Progress is reported every chunk of rows.
type Progress struct {
	RunID    uuid.UUID
	Rows     int
	Imported int
	Skipped  int
	Errors   int
}

// Options control a run.
type Options struct {
	// ChunkSize is the progress reporting interval, in rows.
	ChunkSize          int
	ErrorPolicy        mapping.ErrorPolicy
	SkipEmptyRows      bool
	TruncateLongFields bool

	// Decider overrides the decision of ErrorPolicy.
	Decider  ErrorDecider
	Progress func(Progress)
}

// DefaultOptions are used for settings neither the caller nor the mapping
// document provide.
func DefaultOptions() Options {
	return Options{
		ChunkSize:          500,
		ErrorPolicy:        mapping.PolicyContinue,
		SkipEmptyRows:      true,
		TruncateLongFields: true,
	}
}

// WithFlow returns o with the settings of a mapping document's flow_config
// applied over it.
func (o Options) WithFlow(fc *mapping.FlowConfig) Options {
	if fc == nil {
		return o
	}

	if fc.ChunkSize > 0 {
		o.ChunkSize = fc.ChunkSize
	}

	if fc.ErrorPolicy != "" {
		o.ErrorPolicy = fc.ErrorPolicy
	}

	if fc.SkipEmptyRows != nil {
		o.SkipEmptyRows = *fc.SkipEmptyRows
	}

	if fc.TruncateLongFields != nil {
		o.TruncateLongFields = *fc.TruncateLongFields
	}

	return o
}
