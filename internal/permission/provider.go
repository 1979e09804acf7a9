package permission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// Mode selects the provider.
type Mode string

// Provider modes.
const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode validates a configured mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDevelopment, ModeProduction:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid permissions mode %q: must be %q or %q", s, ModeDevelopment, ModeProduction)
	}
}

// Provider loads the permission set of a session.
type Provider interface {
	Load(ctx context.Context, s session.Session) (Set, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, s session.Session) (Set, error)

// Load calls f.
func (f ProviderFunc) Load(ctx context.Context, s session.Session) (Set, error) { return f(ctx, s) }

// DevelopmentProvider grants everything to everyone.
type DevelopmentProvider struct{}

// Load returns AllowAll.
func (DevelopmentProvider) Load(context.Context, session.Session) (Set, error) {
	return AllowAll(), nil
}

// PolicyProvider grants what the policy assigns to the session's role.
// Unknown roles get the empty set.
type PolicyProvider struct {
	policy *Policy
	logger *slog.Logger
}

// NewPolicyProvider creates a provider over p.
func NewPolicyProvider(p *Policy, logger *slog.Logger) *PolicyProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyProvider{policy: p, logger: logger}
}

// Load returns the role's set, or Empty for unknown roles.
func (p *PolicyProvider) Load(_ context.Context, s session.Session) (Set, error) {
	set, ok := p.policy.SetFor(s.Role)
	if !ok {
		p.logger.Warn("unknown role, denying", "role", s.Role, "user", s.UserID)
	}
	return set, nil
}

// NewProvider builds the provider for mode. Production requires a policy
// file; development logs a warning because it allows everything.
func NewProvider(mode Mode, policyPath string, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch mode {
	case ModeDevelopment:
		logger.Warn("permissions in development mode: every action is allowed")
		return DevelopmentProvider{}, nil
	case ModeProduction:
		if policyPath == "" {
			return nil, fmt.Errorf("permissions mode %q requires a policy file", mode)
		}
		p, err := LoadPolicyFile(policyPath)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		logger.Info("permission policy loaded", "path", policyPath, "roles", len(p.Roles()))
		return NewPolicyProvider(p, logger), nil
	default:
		return nil, fmt.Errorf("invalid permissions mode %q", mode)
	}
}

// LoadSet resolves the set for an optional session. A missing session or a
// provider error yields Empty; the error is returned for logging only.
func LoadSet(ctx context.Context, p Provider, s session.Session, present bool) (Set, error) {
	if !present {
		return Empty(), nil
	}
	set, err := p.Load(ctx, s)
	if err != nil {
		return Empty(), err
	}
	return set, nil
}
