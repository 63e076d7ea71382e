package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// UnmarshalJSON accepts either a literal string or an {"$env": "NAME"}
// reference resolved at load time.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		*s = Secret(literal)
		return nil
	}

	var ref struct {
		Env string `json:"$env"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("secret must be a string or {\"$env\": ...}: %w", err)
	}
	if ref.Env == "" {
		return fmt.Errorf("secret $env reference is empty")
	}

	value, ok := os.LookupEnv(ref.Env)
	if !ok {
		return fmt.Errorf("environment variable %s is not set", ref.Env)
	}
	*s = Secret(value)
	return nil
}

// Duration wraps time.Duration with JSON string parsing ("15m", "720h")
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string like \"15m\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// StorageKind selects the token record persistence backend
type StorageKind string

const (
	StorageCookie    StorageKind = "cookie"
	StorageMemory    StorageKind = "memory"
	StorageRedis     StorageKind = "redis"
	StorageFirestore StorageKind = "firestore"
)

// Config is the top-level seller-front configuration
type Config struct {
	Server      ServerConfig      `json:"server"`
	Marketplace MarketplaceConfig `json:"marketplace"`
	Session     SessionConfig     `json:"session"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr    string `json:"addr"`
	BaseURL string `json:"baseURL"`

	// AdminPasswordHash is an optional bcrypt hash guarding /oauth/status
	// with HTTP basic auth. Empty disables the guard.
	AdminPasswordHash Secret `json:"adminPasswordHash,omitempty"`
}

// MarketplaceConfig describes the marketplace authorization server and API
type MarketplaceConfig struct {
	AuthURL      string   `json:"authURL"`
	TokenURL     string   `json:"tokenURL"`
	APIBaseURL   string   `json:"apiBaseURL"`
	RedirectURI  string   `json:"redirectURI"`
	ClientID     Secret   `json:"clientID"`
	ClientSecret Secret   `json:"clientSecret"`
	Scopes       []string `json:"scopes,omitempty"`
}

// SessionConfig tunes token lifecycle behavior and persistence
type SessionConfig struct {
	Storage StorageKind `json:"storage,omitempty"`

	CookieMaxAge    Duration `json:"cookieMaxAge,omitempty"`
	RefreshMargin   Duration `json:"refreshMargin,omitempty"`
	StateTTL        Duration `json:"stateTTL,omitempty"`
	UpstreamTimeout Duration `json:"upstreamTimeout,omitempty"`

	RedisAddr     string `json:"redisAddr,omitempty"`
	RedisPassword Secret `json:"redisPassword,omitempty"`

	FirestoreProject  string `json:"firestoreProject,omitempty"`
	FirestoreDatabase string `json:"firestoreDatabase,omitempty"`
}
