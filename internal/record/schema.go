package record

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
)

// Table names of the built-in schemas.
const (
	TableComisiones          = "comisiones"
	TableExpresiones         = "expresiones"
	TableLegisladores        = "legisladores"
	TableExpresionComisiones = "expresion_comisiones"
	TableAuditoria           = "auditoria"
)

// ErrUnknownColumn is returned when a write or filter names a column the
// schema does not declare.
var ErrUnknownColumn = errors.New("unknown column")

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SortKey is one component of a schema's ordering.
type SortKey struct {
	Field string `json:"field" yaml:"field"`
	Desc  bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// Relation names a child table whose rows reference the parent through Field.
type Relation struct {
	Table string `json:"table"`
	Field string `json:"field"`
}

// Schema describes one synchronized table.
type Schema struct {
	Name       string     `json:"name"`
	Title      string     `json:"title"`
	Columns    []string   `json:"columns"`
	SortKeys   []SortKey  `json:"sort_keys"`
	LabelField string     `json:"label_field"`
	ReadOnly   bool       `json:"read_only,omitempty"`
	Relations  []Relation `json:"relations,omitempty"`
}

// HasColumn reports whether name is a declared column.
func (s Schema) HasColumn(name string) bool {
	return slices.Contains(s.Columns, name)
}

// Label returns the human label of r, falling back to "#<id>".
func (s Schema) Label(r Record) string {
	if l := r.String(s.LabelField); l != "" {
		return l
	}
	return "#" + strconv.FormatInt(r.ID, 10)
}

// CheckFields validates and normalizes a set of writable fields.
func (s Schema) CheckFields(fields map[string]any) (map[string]any, error) {
	for k := range fields {
		if !s.HasColumn(k) {
			return nil, fmt.Errorf("%s.%s: %w", s.Name, k, ErrUnknownColumn)
		}
	}
	return NormalizeFields(fields)
}

// CheckFilter validates and normalizes an equality filter.
func (s Schema) CheckFilter(f Filter) (Filter, error) {
	if len(f) == 0 {
		return nil, nil
	}
	norm, err := s.CheckFields(f)
	if err != nil {
		return nil, err
	}
	return Filter(norm), nil
}

// SortKeysEqual reports whether a and b agree on every sort-key field.
func (s Schema) SortKeysEqual(a, b Record) bool {
	for _, k := range s.SortKeys {
		if a.Fields[k.Field] != b.Fields[k.Field] {
			return false
		}
	}
	return true
}

// Validate checks the schema definition itself.
func (s Schema) Validate() error {
	if !identPattern.MatchString(s.Name) {
		return fmt.Errorf("invalid table name %q", s.Name)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", s.Name)
	}
	for _, c := range s.Columns {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("table %s: invalid column name %q", s.Name, c)
		}
	}
	if len(s.SortKeys) == 0 {
		return fmt.Errorf("table %s: at least one sort key is required", s.Name)
	}
	for _, k := range s.SortKeys {
		if !s.HasColumn(k.Field) {
			return fmt.Errorf("table %s: sort key %q is not a column", s.Name, k.Field)
		}
	}
	if s.LabelField != "" && !s.HasColumn(s.LabelField) {
		return fmt.Errorf("table %s: label field %q is not a column", s.Name, s.LabelField)
	}
	return nil
}

// Registry holds the known schemas in declaration order.
type Registry struct {
	schemas map[string]Schema
	order   []string
}

// NewRegistry validates the schemas and their relations.
func NewRegistry(schemas ...Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.schemas[s.Name]; dup {
			return nil, fmt.Errorf("duplicate table %q", s.Name)
		}
		r.schemas[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	for _, s := range schemas {
		for _, rel := range s.Relations {
			child, ok := r.schemas[rel.Table]
			if !ok {
				return nil, fmt.Errorf("table %s: relation to unknown table %q", s.Name, rel.Table)
			}
			if !child.HasColumn(rel.Field) {
				return nil, fmt.Errorf("table %s: relation field %s.%s is not a column", s.Name, rel.Table, rel.Field)
			}
		}
	}
	return r, nil
}

// Lookup returns the schema for a table.
func (r *Registry) Lookup(name string) (Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns table names in declaration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// DefaultRegistry returns the schemas of the legislative expressions app.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Schema{
			Name:       TableComisiones,
			Title:      "Comisiones",
			Columns:    []string{"tipo", "nombre", "presidente", "activa"},
			SortKeys:   []SortKey{{Field: "tipo"}, {Field: "nombre"}},
			LabelField: "nombre",
			Relations:  []Relation{{Table: TableExpresionComisiones, Field: "comision_id"}},
		},
		Schema{
			Name:       TableExpresiones,
			Title:      "Expresiones",
			Columns:    []string{"numero", "titulo", "estado", "autor", "fecha_radicacion"},
			SortKeys:   []SortKey{{Field: "numero"}, {Field: "titulo"}},
			LabelField: "titulo",
			Relations:  []Relation{{Table: TableExpresionComisiones, Field: "expresion_id"}},
		},
		Schema{
			Name:       TableLegisladores,
			Title:      "Legisladores",
			Columns:    []string{"apellido", "nombre", "partido", "camara"},
			SortKeys:   []SortKey{{Field: "apellido"}, {Field: "nombre"}},
			LabelField: "apellido",
		},
		Schema{
			Name:       TableExpresionComisiones,
			Title:      "Asignaciones a comisiones",
			Columns:    []string{"expresion_id", "comision_id"},
			SortKeys:   []SortKey{{Field: "expresion_id"}, {Field: "comision_id"}},
			LabelField: "comision_id",
		},
		Schema{
			Name:       TableAuditoria,
			Title:      "Auditoría",
			Columns:    []string{"fecha", "tabla", "accion", "registro_id", "actor"},
			SortKeys:   []SortKey{{Field: "fecha", Desc: true}, {Field: "tabla"}},
			LabelField: "accion",
			ReadOnly:   true,
		},
	)
	if err != nil {
		panic(fmt.Sprintf("default registry: %v", err))
	}
	return r
}
