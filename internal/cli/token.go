package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	User string
	Role string
	TTL  time.Duration
}

// TokenResult is an issued session token.
type TokenResult struct {
	Token   string          `json:"token"`
	Session session.Session `json:"session"`
}

// RenderText prints the bare token so it can be captured by a shell.
func (r TokenResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Token)
	return err
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token",
		Long: `Sign a session token with auth.secret for development logins and
scripted clients.

Examples:
  TOKEN=$(legisync token --user ana --role editor)
  legisync token --user ops --role admin --ttl 1h --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role name (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func runToken(opts *TokenOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
	}
	if err := cfg.RequireSecret(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "cannot sign tokens", err)
	}
	ttl := cfg.Auth.TokenTTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	m, err := session.NewManager([]byte(cfg.Auth.Secret), ttl)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to create session manager", err)
	}
	token, sess, err := m.Issue(opts.User, opts.Role)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalid, "failed to issue token", err)
	}
	formatter.VerboseLog("issued session %s for %s (%s), expires %s", sess.ID, sess.UserID, sess.Role, sess.ExpiresAt.Format(time.RFC3339))

	return formatter.Success(TokenResult{Token: token, Session: sess})
}
