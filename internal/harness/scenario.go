package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// Scenario describes one synchronization run.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Table is the mirrored table; it must exist in the schema registry.
	Table string `yaml:"table"`

	// Locale selects the notification language (default "es").
	Locale string `yaml:"locale,omitempty"`

	// Initial holds the rows returned by the initial fetch. Each row needs
	// an integer "id"; the remaining keys are fields.
	Initial []map[string]any `yaml:"initial,omitempty"`

	// FetchError, when set, makes the initial fetch fail with this message.
	FetchError string `yaml:"fetch_error,omitempty"`

	// Steps are delivered in order after the initial fetch.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the final trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one delivered change event. Exactly one of Insert, Update and
// Delete is set.
type Step struct {
	Insert map[string]any `yaml:"insert,omitempty"`
	Update map[string]any `yaml:"update,omitempty"`
	Delete *int64         `yaml:"delete,omitempty"`

	// Table overrides the scenario table, to deliver foreign events.
	Table string `yaml:"table,omitempty"`
}

// Assertion checks the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Labels is the expected final order (order).
	Labels []string `yaml:"labels,omitempty"`

	// Count is the expected final size (count).
	Count *int `yaml:"count,omitempty"`

	// Kinds is the expected sequence of notification kinds (notified).
	Kinds []string `yaml:"kinds,omitempty"`

	// ID and Fields select a final record and its expected field subset (record).
	ID     int64          `yaml:"id,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`

	// Absent asserts that ID is not in the final collection (record).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion types.
const (
	AssertOrder    = "order"
	AssertCount    = "count"
	AssertNotified = "notified"
	AssertRecord   = "record"
)

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Table == "" {
		return fmt.Errorf("table is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, row := range s.Initial {
		if _, err := rowRecord(row); err != nil {
			return fmt.Errorf("initial[%d]: %w", i, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	if step.Insert != nil {
		set++
		if _, err := rowRecord(step.Insert); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	if step.Update != nil {
		set++
		if _, err := rowRecord(step.Update); err != nil {
			return fmt.Errorf("update: %w", err)
		}
	}
	if step.Delete != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of insert, update, delete is required")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertOrder:
		if a.Labels == nil {
			return fmt.Errorf("labels is required for order")
		}
	case AssertCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for count")
		}
	case AssertNotified:
		if a.Kinds == nil {
			return fmt.Errorf("kinds is required for notified")
		}
	case AssertRecord:
		if a.ID == 0 {
			return fmt.Errorf("id is required for record")
		}
		if !a.Absent && len(a.Fields) == 0 {
			return fmt.Errorf("fields or absent is required for record")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// rowRecord converts a YAML row into a Record. The "id" key becomes Record.ID.
func rowRecord(row map[string]any) (record.Record, error) {
	rawID, ok := row["id"]
	if !ok {
		return record.Record{}, fmt.Errorf("id is required")
	}
	norm, err := record.NormalizeValue(rawID)
	if err != nil {
		return record.Record{}, fmt.Errorf("id: %w", err)
	}
	id, ok := norm.(int64)
	if !ok || id <= 0 {
		return record.Record{}, fmt.Errorf("id must be a positive integer, got %v", rawID)
	}

	fields := make(map[string]any, len(row)-1)
	for k, v := range row {
		if k != "id" {
			fields[k] = v
		}
	}
	return record.New(id, fields)
}
