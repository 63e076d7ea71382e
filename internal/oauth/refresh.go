package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/sellerdesk/seller-front/internal/log"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

// RefreshManager silently renews expiring token records through the
// refresh grant. Refresh is always lazy, on the request path; there is
// no background scheduler.
type RefreshManager struct {
	cfg     *oauth2.Config
	margin  time.Duration
	timeout time.Duration
	now     Clock

	// group coalesces concurrent grants for the same refresh token, so
	// two requests racing to rotate the same record in one process fire
	// a single upstream call instead of invalidating each other.
	group singleflight.Group
}

// NewRefreshManager creates a refresh manager. Records inside margin of
// their expiry are rotated before use.
func NewRefreshManager(cfg *oauth2.Config, margin, timeout time.Duration, now Clock) *RefreshManager {
	if now == nil {
		now = time.Now
	}
	return &RefreshManager{cfg: cfg, margin: margin, timeout: timeout, now: now}
}

// EnsureValid returns a currently usable record, invoking the refresh
// grant and persisting the rotation when the record is inside the
// margin. rotated reports whether this call wrote a new record.
func (m *RefreshManager) EnsureValid(ctx context.Context, store tokenstore.Store, record *tokenstore.Record) (result *tokenstore.Record, rotated bool, err error) {
	if record == nil {
		return nil, false, ErrNotAuthenticated
	}
	if record.Fresh(m.now(), m.margin) {
		return record, false, nil
	}
	return m.rotate(ctx, store, record)
}

// ForceRefresh rotates the record regardless of margin
func (m *RefreshManager) ForceRefresh(ctx context.Context, store tokenstore.Store, record *tokenstore.Record) (*tokenstore.Record, error) {
	if record == nil {
		return nil, ErrNotAuthenticated
	}
	rotated, _, err := m.rotate(ctx, store, record)
	return rotated, err
}

func (m *RefreshManager) rotate(ctx context.Context, store tokenstore.Store, record *tokenstore.Record) (*tokenstore.Record, bool, error) {
	if record.RefreshToken == "" {
		_ = store.Clear(ctx)
		return nil, false, fmt.Errorf("%w: record has no refresh token", ErrSessionInvalid)
	}

	fresh, grantErr := m.refreshGrant(ctx, record)
	if grantErr != nil {
		// Two concurrent requests can race to rotate the same near-expired
		// record; the authorization server invalidates the prior refresh
		// token on rotation, so the loser's grant is rejected even though
		// the session is healthy. Reload once before declaring failure.
		if reloaded := m.reloadAfterFailure(ctx, store, record); reloaded != nil {
			return reloaded, false, nil
		}

		if err := store.Clear(ctx); err != nil {
			log.LogWarnWithFields("oauth", "Failed to clear store after refresh rejection", map[string]any{
				"error": err.Error(),
			})
		}
		return nil, false, fmt.Errorf("%w: %w", ErrSessionInvalid, grantErr)
	}

	if err := store.Save(ctx, fresh); err != nil {
		return nil, false, fmt.Errorf("failed to persist rotated record: %w", err)
	}

	log.LogInfoWithFields("oauth", "Token record rotated", map[string]any{
		"user_id":    fresh.UserID,
		"expires_in": fresh.ExpiresIn,
	})
	return fresh, true, nil
}

// reloadAfterFailure returns a record another request already rotated,
// or nil when the rejection stands. A record counts as concurrently
// rotated only when it is fresh and carries a different issue stamp
// than the one whose refresh was rejected.
func (m *RefreshManager) reloadAfterFailure(ctx context.Context, store tokenstore.Store, rejected *tokenstore.Record) *tokenstore.Record {
	reloaded, err := store.Load(ctx)
	if err != nil || reloaded == nil {
		return nil
	}
	if reloaded.IssuedAt == rejected.IssuedAt || !reloaded.Fresh(m.now(), m.margin) {
		return nil
	}

	log.LogInfoWithFields("oauth", "Refresh rejected but a concurrent rotation already renewed the session", map[string]any{
		"user_id": reloaded.UserID,
	})
	return reloaded
}

// refreshGrant invokes the token endpoint with the stored refresh token.
// The source is built from the refresh token alone so the grant always
// fires when this is called.
func (m *RefreshManager) refreshGrant(ctx context.Context, record *tokenstore.Record) (*tokenstore.Record, error) {
	result, err, _ := m.group.Do(record.RefreshToken, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: m.timeout})

		src := m.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: record.RefreshToken})
		return src.Token()
	})
	if err != nil {
		return nil, newUpstreamError("refresh", err)
	}
	tok := result.(*oauth2.Token)

	fresh := recordFromToken(tok, m.now())
	// Servers that do not rotate refresh tokens omit them from the response
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = record.RefreshToken
	}
	if fresh.UserID == "" {
		fresh.UserID = record.UserID
	}
	if fresh.Scope == "" {
		fresh.Scope = record.Scope
	}
	return fresh, nil
}
