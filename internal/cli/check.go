package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Remote RemoteFlags
	Role   string
	Policy string
}

// CheckResult is the outcome of a permission check.
type CheckResult struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Role     string `json:"role,omitempty"`
	Granted  bool   `json:"granted"`
}

// RenderText prints one line, e.g. "granted: editor may update comisiones".
func (r CheckResult) RenderText(w io.Writer) error {
	verdict, verb := "denied", "may not"
	if r.Granted {
		verdict, verb = "granted", "may"
	}
	who := r.Role
	if who == "" {
		who = "session"
	}
	_, err := fmt.Fprintf(w, "%s: %s %s %s %s\n", verdict, who, verb, r.Action, r.Resource)
	return err
}

var validActions = []string{permission.ActionView, permission.ActionCreate, permission.ActionUpdate, permission.ActionDelete}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <resource> <action>",
		Short: "Resolve a permission query",
		Long: `Resolve whether a role, or the session behind a token, may perform an
action on a resource.

With --policy the policy file is evaluated directly and no configuration is
read. Otherwise the configured provider is used, or the server when --server
or client.server_url is set.

Exit codes:
  0 - Granted
  1 - Denied
  2 - Command error

Examples:
  legisync check comisiones delete --policy policy.cue --role editor
  legisync check expresiones create --server http://localhost:8080 --token $TOKEN`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	opts.Remote.register(cmd)
	cmd.Flags().StringVar(&opts.Role, "role", "", "role to check (local providers)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "policy file to evaluate instead of the configured provider")

	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, resource, action string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if !slices.Contains(validActions, action) {
		return formatter.Fail(ExitCommandError, ErrCodeInvalid,
			fmt.Sprintf("invalid action %q: must be one of %v", action, validActions), nil)
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	var (
		provider permission.Provider
		sess     = session.Session{Role: opts.Role}
	)
	switch {
	case opts.Policy != "":
		p, err := permission.LoadPolicyFile(opts.Policy)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodePolicy, "failed to load policy", err)
		}
		provider = permission.NewPolicyProvider(p, logger)
	default:
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
		}
		opts.Remote.apply(cfg)
		if cfg.Client.ServerURL != "" {
			client, err := newRemoteClient(cfg, logger)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeRemote, "invalid server URL", err)
			}
			if sess, err = client.Session(ctx); err != nil {
				err = remoteError("failed to resolve session", err)
				return formatter.Fail(ExitCommandError, ErrCodeRemote, "failed to resolve session", err)
			}
			provider = client
		} else {
			if provider, err = permission.NewProvider(cfg.PermissionMode(), cfg.Permissions.Policy, logger); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodePolicy, "failed to load permissions", err)
			}
		}
	}

	set, err := provider.Load(ctx, sess)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeRemote, "failed to load permissions", err)
	}
	result := CheckResult{
		Resource: resource,
		Action:   action,
		Role:     sess.Role,
		Granted:  permission.Resolve(permission.Query{Resource: resource, Action: action}, set),
	}
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Granted {
		return NewExitError(ExitFailure, "permission denied")
	}
	return nil
}
