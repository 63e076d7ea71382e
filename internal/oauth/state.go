package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time so expiry logic is testable without
// wall-clock sleeps. Nil means time.Now.
type Clock func() time.Time

// State is the payload round-tripped through the authorization redirect.
// It is deliberately unencrypted: the verifier is single-use and expires
// within the state TTL, so plaintext-in-state is an accepted tradeoff.
type State struct {
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"`
	IssuedAt int64  `json:"issued_at"` // Unix milliseconds
}

// StateCodec packs and unpacks the opaque state query parameter
type StateCodec struct {
	ttl time.Duration
	now Clock
}

// NewStateCodec creates a codec enforcing the given state TTL
func NewStateCodec(ttl time.Duration, now Clock) *StateCodec {
	if now == nil {
		now = time.Now
	}
	return &StateCodec{ttl: ttl, now: now}
}

// Encode packs a verifier with a fresh nonce and issue timestamp into a
// URL-safe opaque string
func (c *StateCodec) Encode(verifier string) (string, error) {
	if verifier == "" {
		return "", fmt.Errorf("verifier is required")
	}

	raw, err := json.Marshal(State{
		Nonce:    uuid.NewString(),
		Verifier: verifier,
		IssuedAt: c.now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode unpacks and validates an opaque state. Malformed input yields
// ErrStateMalformed; input older than the TTL yields ErrStateExpired.
func (c *StateCodec) Decode(opaque string) (*State, error) {
	if opaque == "" {
		return nil, fmt.Errorf("%w: empty state", ErrStateMalformed)
	}

	raw, err := base64.RawURLEncoding.DecodeString(opaque)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateMalformed, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateMalformed, err)
	}
	if state.Verifier == "" {
		return nil, fmt.Errorf("%w: no verifier", ErrStateMalformed)
	}

	if age := c.now().Sub(time.UnixMilli(state.IssuedAt)); age > c.ttl {
		return nil, fmt.Errorf("%w: issued %s ago", ErrStateExpired, age.Round(time.Second))
	}

	return &state, nil
}
