package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

// Defaults applied when the config file leaves a knob unset.
const (
	DefaultAddr            = ":8080"
	DefaultCookieMaxAge    = 30 * 24 * time.Hour
	DefaultRefreshMargin   = 5 * time.Minute
	DefaultStateTTL        = 15 * time.Minute
	DefaultUpstreamTimeout = 15 * time.Second
)

// Load reads, defaults, and validates a config file
func Load(path string) (Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)

	result := Validate(cfg)
	if len(result.Errors) > 0 {
		return Config{}, fmt.Errorf("invalid config: %s", result.Errors[0].String())
	}

	return cfg, nil
}

func parseFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Session.Storage == "" {
		cfg.Session.Storage = StorageCookie
	}
	if cfg.Session.CookieMaxAge == 0 {
		cfg.Session.CookieMaxAge = Duration(DefaultCookieMaxAge)
	}
	if cfg.Session.RefreshMargin == 0 {
		cfg.Session.RefreshMargin = Duration(DefaultRefreshMargin)
	}
	if cfg.Session.StateTTL == 0 {
		cfg.Session.StateTTL = Duration(DefaultStateTTL)
	}
	if cfg.Session.UpstreamTimeout == 0 {
		cfg.Session.UpstreamTimeout = Duration(DefaultUpstreamTimeout)
	}
}

// ValidationIssue is a single error or warning tied to a config path
type ValidationIssue struct {
	Path    string
	Message string
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationResult holds the outcome of config validation
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// ValidateFile parses and validates a config file without running it
func ValidateFile(path string) (ValidationResult, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return ValidationResult{}, err
	}
	applyDefaults(&cfg)
	return Validate(cfg), nil
}

// Validate checks a config for problems. Errors prevent startup,
// warnings do not.
func Validate(cfg Config) ValidationResult {
	var result ValidationResult

	addErr := func(path, msg string) {
		result.Errors = append(result.Errors, ValidationIssue{Path: path, Message: msg})
	}
	addWarn := func(path, msg string) {
		result.Warnings = append(result.Warnings, ValidationIssue{Path: path, Message: msg})
	}

	requireURL := func(path, value string) {
		if value == "" {
			addErr(path, "is required")
			return
		}
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			addErr(path, fmt.Sprintf("%q is not an absolute URL", value))
		}
	}

	requireURL("marketplace.authURL", cfg.Marketplace.AuthURL)
	requireURL("marketplace.tokenURL", cfg.Marketplace.TokenURL)
	requireURL("marketplace.apiBaseURL", cfg.Marketplace.APIBaseURL)
	requireURL("marketplace.redirectURI", cfg.Marketplace.RedirectURI)

	if cfg.Marketplace.ClientID == "" {
		addErr("marketplace.clientID", "is required")
	}
	if cfg.Marketplace.ClientSecret == "" {
		addErr("marketplace.clientSecret", "is required")
	}

	switch cfg.Session.Storage {
	case StorageCookie, StorageMemory:
	case StorageRedis:
		if cfg.Session.RedisAddr == "" {
			addErr("session.redisAddr", "is required for redis storage")
		}
	case StorageFirestore:
		if cfg.Session.FirestoreProject == "" {
			addErr("session.firestoreProject", "is required for firestore storage")
		}
	default:
		addErr("session.storage", fmt.Sprintf("unknown storage kind %q", cfg.Session.Storage))
	}

	if cfg.Session.RefreshMargin.Std() >= cfg.Session.CookieMaxAge.Std() {
		addErr("session.refreshMargin", "must be smaller than session.cookieMaxAge")
	}
	if cfg.Session.StateTTL.Std() > 30*time.Minute {
		addWarn("session.stateTTL", "over 30m widens the replay window for authorization states")
	}
	if cfg.Session.Storage == StorageMemory {
		addWarn("session.storage", "memory storage loses sessions on restart; intended for development")
	}

	return result
}
