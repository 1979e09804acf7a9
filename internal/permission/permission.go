package permission

import (
	"maps"
	"slices"
)

// Actions understood by the policy schema.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Actions lists every action in a stable order.
var Actions = []string{ActionView, ActionCreate, ActionUpdate, ActionDelete}

// Query asks whether Action is allowed on Resource.
type Query struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Set is the capability set of one session.
//
// IsAdmin grants every query. Otherwise a query is granted only when its
// action is listed under its resource.
type Set struct {
	IsAdmin     bool                `json:"is_admin"`
	Permissions map[string][]string `json:"permissions"`
}

// AllowAll returns the development set that grants everything.
func AllowAll() Set {
	return Set{IsAdmin: true, Permissions: map[string][]string{}}
}

// Empty returns the set that denies everything.
func Empty() Set {
	return Set{Permissions: map[string][]string{}}
}

// Resolve reports whether set grants q. Absent resources are denied.
func Resolve(q Query, set Set) bool {
	if set.IsAdmin {
		return true
	}
	return slices.Contains(set.Permissions[q.Resource], q.Action)
}

// Allows is Resolve with the set as receiver.
func (s Set) Allows(q Query) bool {
	return Resolve(q, s)
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	out := Set{IsAdmin: s.IsAdmin, Permissions: make(map[string][]string, len(s.Permissions))}
	for res, actions := range s.Permissions {
		out.Permissions[res] = slices.Clone(actions)
	}
	return out
}

// Resources returns the resources with at least one granted action, sorted.
func (s Set) Resources() []string {
	var out []string
	for _, res := range slices.Sorted(maps.Keys(s.Permissions)) {
		if len(s.Permissions[res]) > 0 {
			out = append(out, res)
		}
	}
	return out
}
