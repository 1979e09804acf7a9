package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/jgarciait/osl-app-ct-sub002/internal/listsync"
	"github.com/jgarciait/osl-app-ct-sub002/internal/notify"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
	"github.com/jgarciait/osl-app-ct-sub002/internal/testutil"
)

// Options configures a harness run.
type Options struct {
	// Registry resolves the scenario table. Default: record.DefaultRegistry().
	Registry *record.Registry

	// Logger receives synchronizer logs. Default: discard.
	Logger *slog.Logger
}

// Run executes scenario with default options.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(scenario, Options{})
}

// RunWithOptions executes scenario and evaluates its assertions.
//
// Each run uses a fresh in-memory source, so runs are isolated and traces
// are byte-for-byte reproducible. An error is returned only when the
// scenario cannot be executed; failed assertions are reported in the Result.
func RunWithOptions(scenario *Scenario, opts Options) (*Result, error) {
	registry := opts.Registry
	if registry == nil {
		registry = record.DefaultRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	schema, ok := registry.Lookup(scenario.Table)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", scenario.Table)
	}
	tag := record.DefaultLocale
	if scenario.Locale != "" {
		parsed, err := language.Parse(scenario.Locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale: %w", err)
		}
		tag = parsed
	}

	src := testutil.NewMemorySource()
	for _, row := range scenario.Initial {
		r, err := rowRecord(row)
		if err != nil {
			return nil, err
		}
		src.Seed(schema.Name, r)
	}
	if scenario.FetchError != "" {
		src.FailSelect(errors.New(scenario.FetchError))
	}

	recorder := &notify.Recorder{}
	syncer := listsync.New(src, schema,
		listsync.WithComparator(record.ComparatorFor(record.NewCollator(tag), schema)),
		listsync.WithMessages(notify.NewMessages(tag)),
		listsync.WithNotifier(recorder),
		listsync.WithLogger(logger),
	)
	defer syncer.Close()

	result := NewResult()

	_, err := syncer.Initialize(context.Background())
	if err != nil && !listsync.IsFetchError(err) {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	result.Trace = append(result.Trace, traceStep(0, "FETCH", "", 0, err == nil, syncer, recorder))

	for i, step := range scenario.Steps {
		ev, err := stepEvent(step, schema.Name)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		changed := syncer.Handle(ev)

		table := ""
		if ev.Table != schema.Name {
			table = ev.Table
		}
		result.Trace = append(result.Trace, traceStep(i+1, ev.Kind.String(), table, ev.ID, changed, syncer, recorder))
	}

	result.Final = syncer.Snapshot().Records()

	for _, msg := range EvaluateAssertions(result, schema, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func traceStep(n int, event, table string, id int64, changed bool, syncer *listsync.Synchronizer, rec *notify.Recorder) TraceStep {
	schema := syncer.Schema()
	coll := syncer.Snapshot()
	order := make([]string, 0, coll.Len())
	for _, r := range coll.Records() {
		order = append(order, schema.Label(r))
	}
	step := TraceStep{
		Step:          n,
		Event:         event,
		Table:         table,
		ID:            id,
		Changed:       changed,
		Order:         order,
		Notifications: rec.Notifications(),
	}
	rec.Reset()
	return step
}

func stepEvent(step Step, table string) (record.ChangeEvent, error) {
	if step.Table != "" {
		table = step.Table
	}
	switch {
	case step.Insert != nil:
		r, err := rowRecord(step.Insert)
		if err != nil {
			return record.ChangeEvent{}, err
		}
		return record.InsertedEvent(table, r), nil
	case step.Update != nil:
		r, err := rowRecord(step.Update)
		if err != nil {
			return record.ChangeEvent{}, err
		}
		return record.UpdatedEvent(table, r), nil
	case step.Delete != nil:
		return record.DeletedEvent(table, *step.Delete), nil
	default:
		return record.ChangeEvent{}, fmt.Errorf("empty step")
	}
}
