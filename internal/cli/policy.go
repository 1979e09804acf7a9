package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/record"
)

// PolicyResult summarizes a validated policy file.
type PolicyResult struct {
	Valid    bool         `json:"valid"`
	Roles    []PolicyRole `json:"roles"`
	Warnings []string     `json:"warnings,omitempty"`
}

// PolicyRole is one role of a policy.
type PolicyRole struct {
	Name        string              `json:"name"`
	Admin       bool                `json:"admin,omitempty"`
	Permissions map[string][]string `json:"permissions,omitempty"`
}

// PolicyIssue is a policy error with its source position.
type PolicyIssue struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// RenderText prints one line per role and warning.
func (r PolicyResult) RenderText(w io.Writer) error {
	for _, role := range r.Roles {
		switch {
		case role.Admin:
			fmt.Fprintf(w, "  %s: admin\n", role.Name)
		default:
			fmt.Fprintf(w, "  %s: %d resource(s)\n", role.Name, len(role.Permissions))
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: unknown resource %s\n", warn)
	}
	_, err := fmt.Fprintf(w, "✓ Policy valid (%d role(s))\n", len(r.Roles))
	return err
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Work with CUE permission policies",
	}
	cmd.AddCommand(newPolicyValidateCommand(rootOpts))
	return cmd
}

func newPolicyValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy.cue>",
		Short: "Validate a permission policy",
		Long: `Compile a policy against the role schema and list its roles.

Resources that do not name a known table are reported as warnings; they
grant nothing.

Exit codes:
  0 - Policy valid
  1 - Policy invalid
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyValidate(rootOpts, args[0], cmd)
		},
	}
}

func runPolicyValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	p, err := permission.LoadPolicyFile(path)
	if err != nil {
		var pe *permission.PolicyError
		if !errors.As(err, &pe) {
			return formatter.Fail(ExitCommandError, ErrCodePolicy, "failed to read policy", err)
		}
		issue := PolicyIssue{Message: pe.Message}
		if pe.Pos.IsValid() {
			issue.File, issue.Line, issue.Column = pe.Pos.Filename(), pe.Pos.Line(), pe.Pos.Column()
		}
		if outErr := formatter.Error(ErrCodePolicy, pe.Error(), issue); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "policy invalid", err)
	}

	result := PolicyResult{Valid: true, Roles: []PolicyRole{}}
	for _, name := range p.Roles() {
		set, _ := p.SetFor(name)
		result.Roles = append(result.Roles, PolicyRole{Name: name, Admin: set.IsAdmin, Permissions: set.Permissions})
	}
	result.Warnings = p.UnknownResources(record.DefaultRegistry().Names())
	formatter.VerboseLog("validated %s", path)

	return formatter.Success(result)
}
