package harness

import (
	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// TraceStep is the observable outcome of one step.
type TraceStep struct {
	// Step is 0 for the initial fetch, then 1..n for delivered events.
	Step int `json:"step"`

	// Event is "FETCH" or the event kind (INSERT, UPDATE, DELETE).
	Event string `json:"event"`

	// Table is set only for events addressed to another table.
	Table string `json:"table,omitempty"`

	ID      int64 `json:"id,omitempty"`
	Changed bool  `json:"changed"`

	// Order lists record labels in collection order after the step.
	Order []string `json:"order"`

	Notifications []notify.Notification `json:"notifications,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Pass   bool            `json:"pass"`
	Trace  []TraceStep     `json:"trace"`
	Final  []record.Record `json:"final"`
	Errors []string        `json:"errors,omitempty"`
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Final:  []record.Record{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Notifications returns every notification in the trace, in order.
func (r *Result) Notifications() []notify.Notification {
	var out []notify.Notification
	for _, step := range r.Trace {
		out = append(out, step.Notifications...)
	}
	return out
}
