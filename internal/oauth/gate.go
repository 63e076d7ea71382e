package oauth

import (
	"context"
	"errors"

	"github.com/sellerdesk/seller-front/internal/log"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

// Gate is the single entry point downstream data-fetching code uses to
// obtain a bearer token. It collapses the whole token lifecycle error
// taxonomy to token-or-nil: nil means the caller must send the browser
// back through the authorization flow.
type Gate struct {
	refresh *RefreshManager
}

// NewGate creates the session gate
func NewGate(refresh *RefreshManager) *Gate {
	return &Gate{refresh: refresh}
}

// ValidToken returns a currently valid record, transparently rotating it
// when it is near expiry, or nil when no authenticated session exists.
func (g *Gate) ValidToken(ctx context.Context, store tokenstore.Store) *tokenstore.Record {
	record, err := store.Load(ctx)
	if err != nil {
		log.LogWarnWithFields("oauth", "Token store load failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	if record == nil {
		return nil
	}

	record, _, err = g.refresh.EnsureValid(ctx, store, record)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) || errors.Is(err, ErrNotAuthenticated) {
			log.LogDebugWithFields("oauth", "Session requires re-authentication", map[string]any{
				"error": err.Error(),
			})
		} else {
			log.LogWarnWithFields("oauth", "Token refresh failed", map[string]any{
				"error": err.Error(),
			})
		}
		return nil
	}

	return record
}
