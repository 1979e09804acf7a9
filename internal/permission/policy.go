package permission

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed policy_schema.cue
var policySchema []byte

// Policy maps role names to permission sets.
type Policy struct {
	roles map[string]Set
}

// PolicyError is a policy compilation or validation failure with its
// source position when CUE reports one.
type PolicyError struct {
	Message string
	Pos     token.Pos
}

func (e *PolicyError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

type policyFile struct {
	Roles map[string]struct {
		Admin       bool                `json:"admin"`
		Permissions map[string][]string `json:"permissions"`
	} `json:"roles"`
}

// LoadPolicyFile reads and compiles a CUE policy file.
func LoadPolicyFile(path string) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return CompilePolicy(path, src)
}

// CompilePolicy compiles CUE source and validates it against #Policy.
//
// Example source:
//
//	roles: {
//		admin: admin: true
//		editor: permissions: {
//			comisiones: ["view", "create", "update"]
//			expresiones: ["view", "create", "update", "delete"]
//		}
//		lector: permissions: comisiones: ["view"]
//	}
func CompilePolicy(filename string, src []byte) (*Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(policySchema, cue.Filename("policy_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile policy schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Policy"))

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if err := checkActions(v); err != nil {
		return nil, err
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var pf policyFile
	if err := unified.Decode(&pf); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Policy{roles: make(map[string]Set, len(pf.Roles))}
	for name, role := range pf.Roles {
		set := Set{IsAdmin: role.Admin, Permissions: make(map[string][]string, len(role.Permissions))}
		for res, actions := range role.Permissions {
			a := slices.Clone(actions)
			slices.Sort(a)
			set.Permissions[res] = slices.Compact(a)
		}
		p.roles[name] = set
	}
	return p, nil
}

// SetFor returns the permission set of role. Unknown roles are reported
// with ok == false and an empty set.
func (p *Policy) SetFor(role string) (Set, bool) {
	set, ok := p.roles[role]
	if !ok {
		return Empty(), false
	}
	return set.Clone(), true
}

// Roles returns role names, sorted.
func (p *Policy) Roles() []string {
	return slices.Sorted(maps.Keys(p.roles))
}

// UnknownResources lists resources granted by some role that are not in
// known, as "role.resource", sorted.
func (p *Policy) UnknownResources(known []string) []string {
	var out []string
	for _, role := range p.Roles() {
		for _, res := range p.roles[role].Resources() {
			if !slices.Contains(known, res) {
				out = append(out, role+"."+res)
			}
		}
	}
	return out
}

// checkActions reports the first granted action outside Actions, with the
// position of the offending list element.
func checkActions(v cue.Value) error {
	roles, err := v.LookupPath(cue.ParsePath("roles")).Fields()
	if err != nil {
		return nil
	}
	for roles.Next() {
		perms, err := roles.Value().LookupPath(cue.ParsePath("permissions")).Fields()
		if err != nil {
			continue
		}
		for perms.Next() {
			list, err := perms.Value().List()
			if err != nil {
				continue
			}
			for list.Next() {
				action, err := list.Value().String()
				if err != nil || slices.Contains(Actions, action) {
					continue
				}
				return &PolicyError{
					Message: fmt.Sprintf("roles.%s.permissions.%s: unknown action %q (want one of %s)",
						roles.Selector(), perms.Selector(), action, strings.Join(Actions, ", ")),
					Pos: list.Value().Pos(),
				}
			}
		}
	}
	return nil
}

// formatCUEError joins every CUE error message and keeps the first
// position reported. Disjunction failures put their summary first and the
// conflicting values after it.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &PolicyError{Message: err.Error()}
	}
	pe := &PolicyError{}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if msg := strings.TrimSuffix(e.Error(), ":"); !slices.Contains(msgs, msg) {
			msgs = append(msgs, msg)
		}
		if pe.Pos.IsValid() {
			continue
		}
		for _, pos := range errors.Positions(e) {
			if pos.IsValid() {
				pe.Pos = pos
				break
			}
		}
	}
	pe.Message = strings.Join(msgs, "; ")
	return pe
}
