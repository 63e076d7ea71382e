package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/sellerdesk/seller-front/internal/log"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

// Exchanger redeems an authorization code plus PKCE verifier for a token
// record at the marketplace token endpoint.
type Exchanger struct {
	cfg     *oauth2.Config
	codec   *StateCodec
	timeout time.Duration
	now     Clock
}

// NewExchanger creates a token exchanger with a finite upstream timeout
func NewExchanger(cfg *oauth2.Config, codec *StateCodec, timeout time.Duration, now Clock) *Exchanger {
	if now == nil {
		now = time.Now
	}
	return &Exchanger{cfg: cfg, codec: codec, timeout: timeout, now: now}
}

// RecoverVerifier decodes the round-tripped state to recover the PKCE
// verifier. The fallback cookie value is consulted only after decode
// failure, never as the primary path, since privacy-preserving browsers
// may drop it.
func (e *Exchanger) RecoverVerifier(state, fallback string) (string, error) {
	decoded, err := e.codec.Decode(state)
	if err == nil {
		return decoded.Verifier, nil
	}

	if fallback != "" {
		log.LogWarnWithFields("oauth", "State decode failed, recovering verifier from fallback cookie", map[string]any{
			"error": err.Error(),
		})
		return fallback, nil
	}

	if state == "" {
		return "", ErrVerifierMissing
	}
	return "", fmt.Errorf("%w: %w", ErrVerifierMissing, err)
}

// Exchange redeems the code. The code is single-use, so a rejected
// exchange is never retried; the upstream status and body are preserved
// in the returned error for diagnostics.
func (e *Exchanger) Exchange(ctx context.Context, code, verifier string) (*tokenstore.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: e.timeout})

	tok, err := e.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, newUpstreamError("exchange", err)
	}

	record := recordFromToken(tok, e.now())
	log.LogInfoWithFields("oauth", "Authorization code exchanged", map[string]any{
		"user_id":    record.UserID,
		"expires_in": record.ExpiresIn,
	})
	return record, nil
}
