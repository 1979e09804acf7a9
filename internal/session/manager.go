package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by Manager.Parse and the middleware.
var (
	ErrNoSession    = errors.New("no session")
	ErrExpired      = errors.New("session expired")
	ErrInvalidToken = errors.New("invalid session token")
)

// DefaultIssuer is the iss claim of issued tokens.
const DefaultIssuer = "legisync"

// MinSecretLength is the minimum HMAC secret length in bytes.
const MinSecretLength = 16

// Session is an authenticated actor.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims is the JWT payload.
type Claims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	ids    IDGenerator
	now    func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIDGenerator overrides UUIDv7 session IDs.
func WithIDGenerator(g IDGenerator) ManagerOption {
	return func(m *Manager) { m.ids = g }
}

// WithClock overrides time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIssuer overrides DefaultIssuer.
func WithIssuer(iss string) ManagerOption {
	return func(m *Manager) { m.issuer = iss }
}

// NewManager creates a Manager signing with secret. Tokens live for ttl.
func NewManager(secret []byte, ttl time.Duration, opts ...ManagerOption) (*Manager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	m := &Manager{
		secret: secret,
		ttl:    ttl,
		issuer: DefaultIssuer,
		ids:    UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue creates a signed token for userID acting as role.
func (m *Manager) Issue(userID, role string) (string, Session, error) {
	if userID == "" {
		return "", Session{}, fmt.Errorf("issue token: user is required")
	}
	now := m.now().UTC().Truncate(time.Second)
	s := Session{
		ID:        m.ids.Generate(),
		UserID:    userID,
		Role:      role,
		ExpiresAt: now.Add(m.ttl),
	}
	claims := Claims{
		Role:      role,
		SessionID: s.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
			ID:        s.ID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign token: %w", err)
	}
	return token, s, nil
}

// Parse verifies token and returns its session. Expired tokens yield
// ErrExpired; anything else that fails verification yields ErrInvalidToken.
func (m *Manager) Parse(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoSession
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpired
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return Session{}, fmt.Errorf("%w: missing sub or sid", ErrInvalidToken)
	}
	return Session{
		ID:        claims.SessionID,
		UserID:    claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
