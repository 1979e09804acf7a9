// Package config provides configuration for legisync.
//
// Configuration is layered: DefaultConfig, then an optional YAML or JSON
// file, then LEGISYNC_* environment variables, then Resolve fills derived
// values. Validate runs last.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/jgarciait/osl-app-ct-sub002/internal/permission"
	"github.com/jgarciait/osl-app-ct-sub002/internal/session"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEGISYNC_"

// ErrMissingSecret is returned when a command that signs tokens has no
// auth secret configured.
var ErrMissingSecret = errors.New("auth.secret is required")

// Config holds all configuration for legisync.
type Config struct {
	// Locale is the BCP 47 tag used for collation and messages.
	Locale string `json:"locale" yaml:"locale"`

	Server      ServerConfig      `json:"server" yaml:"server"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Auth        AuthConfig        `json:"auth" yaml:"auth"`
	Permissions PermissionsConfig `json:"permissions" yaml:"permissions"`
	Sync        SyncConfig        `json:"sync" yaml:"sync"`
	Client      ClientConfig      `json:"client" yaml:"client"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	Secret    string        `json:"secret" yaml:"secret"`
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
	LoginPath string        `json:"login_path" yaml:"login_path"`
}

// PermissionsConfig selects the permission provider.
type PermissionsConfig struct {
	// Mode is "development" (everything allowed) or "production" (policy
	// file, deny by default). There is no default.
	Mode   string `json:"mode" yaml:"mode"`
	Policy string `json:"policy" yaml:"policy"`
}

// SyncConfig tunes realtime delivery and synchronizer reconnects.
type SyncConfig struct {
	BufferSize   int           `json:"buffer_size" yaml:"buffer_size"`
	ReconnectMin time.Duration `json:"reconnect_min" yaml:"reconnect_min"`
	ReconnectMax time.Duration `json:"reconnect_max" yaml:"reconnect_max"`
}

// ClientConfig points CLI commands at a remote server instead of a local
// database.
type ClientConfig struct {
	ServerURL string `json:"server_url" yaml:"server_url"`
	Token     string `json:"token" yaml:"token"`
}

// DefaultConfig returns a configuration with default values.
// Permissions.Mode is deliberately empty and must be set.
func DefaultConfig() *Config {
	return &Config{
		Locale: "es",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/legisync.db",
		},
		Auth: AuthConfig{
			TokenTTL:  12 * time.Hour,
			LoginPath: "/login",
		},
		Sync: SyncConfig{
			BufferSize:   64,
			ReconnectMin: 250 * time.Millisecond,
			ReconnectMax: 30 * time.Second,
		},
	}
}

// Load builds the effective configuration: defaults, then the file at path
// when path is non-empty, then the environment, then Resolve and Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults. Unknown YAML keys are rejected.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	// A relative policy path is relative to the config file.
	if p := cfg.Permissions.Policy; p != "" && !filepath.IsAbs(p) {
		cfg.Permissions.Policy = filepath.Join(filepath.Dir(path), p)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg with LEGISYNC_* environment variables.
func LoadFromEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	str("LOCALE", &cfg.Locale)

	str("SERVER_ADDR", &cfg.Server.Addr)
	dur("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	dur("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	dur("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("DATABASE_PATH", &cfg.Database.Path)

	str("AUTH_SECRET", &cfg.Auth.Secret)
	dur("AUTH_TOKEN_TTL", &cfg.Auth.TokenTTL)
	str("AUTH_LOGIN_PATH", &cfg.Auth.LoginPath)

	str("PERMISSIONS_MODE", &cfg.Permissions.Mode)
	str("PERMISSIONS_POLICY", &cfg.Permissions.Policy)

	num("SYNC_BUFFER_SIZE", &cfg.Sync.BufferSize)
	dur("SYNC_RECONNECT_MIN", &cfg.Sync.ReconnectMin)
	dur("SYNC_RECONNECT_MAX", &cfg.Sync.ReconnectMax)

	str("CLIENT_SERVER_URL", &cfg.Client.ServerURL)
	str("CLIENT_TOKEN", &cfg.Client.Token)

	return errors.Join(errs...)
}

// Resolve fills in derived values.
func (c *Config) Resolve() {
	if c.Locale == "" {
		c.Locale = "es"
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = "/login"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	mode, err := permission.ParseMode(c.Permissions.Mode)
	if err != nil {
		if c.Permissions.Mode == "" {
			return fmt.Errorf("permissions.mode is required (%s or %s)", permission.ModeDevelopment, permission.ModeProduction)
		}
		return err
	}
	if mode == permission.ModeProduction && c.Permissions.Policy == "" {
		return fmt.Errorf("permissions.policy is required in %s mode", permission.ModeProduction)
	}

	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("invalid locale %q: %w", c.Locale, err)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.Secret != "" && len(c.Auth.Secret) < session.MinSecretLength {
		return fmt.Errorf("auth.secret must be at least %d bytes", session.MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if !strings.HasPrefix(c.Auth.LoginPath, "/") {
		return fmt.Errorf("auth.login_path must start with /, got %q", c.Auth.LoginPath)
	}

	for name, d := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	if c.Sync.BufferSize < 1 {
		return fmt.Errorf("sync.buffer_size must be at least 1, got %d", c.Sync.BufferSize)
	}
	if c.Sync.ReconnectMin <= 0 || c.Sync.ReconnectMax < c.Sync.ReconnectMin {
		return fmt.Errorf("sync.reconnect_min must be positive and not above sync.reconnect_max (%s, %s)",
			c.Sync.ReconnectMin, c.Sync.ReconnectMax)
	}

	if c.Client.ServerURL != "" &&
		!strings.HasPrefix(c.Client.ServerURL, "http://") &&
		!strings.HasPrefix(c.Client.ServerURL, "https://") {
		return fmt.Errorf("client.server_url must be an http or https URL, got %q", c.Client.ServerURL)
	}

	return nil
}

// RequireSecret reports ErrMissingSecret when no auth secret is set.
func (c *Config) RequireSecret() error {
	if c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	return nil
}

// LocaleTag returns the parsed locale. Call after Validate.
func (c *Config) LocaleTag() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Spanish
	}
	return tag
}

// PermissionMode returns the parsed mode. Call after Validate.
func (c *Config) PermissionMode() permission.Mode {
	return permission.Mode(c.Permissions.Mode)
}

// EnsureDirectories creates the database directory.
func (c *Config) EnsureDirectories() error {
	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
