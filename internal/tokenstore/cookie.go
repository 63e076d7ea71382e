package tokenstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sellerdesk/seller-front/internal/cookie"
	"github.com/sellerdesk/seller-front/internal/log"
)

// CookieStore persists the record as base64url(JSON) in a single cookie.
// It is bound to one request/response pair; the cookie max-age is fixed
// independently of the access token lifetime so the refresh token can
// outlive it.
type CookieStore struct {
	w      http.ResponseWriter
	r      *http.Request
	maxAge time.Duration

	// current mirrors a record saved during this request so later loads
	// observe the rotation instead of the stale inbound cookie.
	current *Record
	cleared bool
}

var _ Store = (*CookieStore)(nil)

// NewCookieStore binds a cookie-backed store to one request
func NewCookieStore(w http.ResponseWriter, r *http.Request, maxAge time.Duration) *CookieStore {
	return &CookieStore{w: w, r: r, maxAge: maxAge}
}

// Load returns the record from the request cookie. Absent, undecodable,
// or corrupted cookies all yield (nil, nil).
func (s *CookieStore) Load(_ context.Context) (*Record, error) {
	if s.cleared {
		return nil, nil
	}
	if s.current != nil {
		return s.current, nil
	}

	value, err := cookie.GetToken(s.r)
	if err != nil || value == "" {
		return nil, nil
	}

	raw, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		log.LogDebugWithFields("tokenstore", "Token cookie is not valid base64, treating as unauthenticated", map[string]any{
			"error": err.Error(),
		})
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		log.LogDebugWithFields("tokenstore", "Token cookie is not valid JSON, treating as unauthenticated", map[string]any{
			"error": err.Error(),
		})
		return nil, nil
	}
	if record.AccessToken == "" {
		return nil, nil
	}

	return &record, nil
}

// Save serializes the record into the response cookie
func (s *CookieStore) Save(_ context.Context, record *Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	cookie.SetToken(s.w, base64.URLEncoding.EncodeToString(raw), s.maxAge)
	s.current = record
	s.cleared = false
	return nil
}

// Clear expires the cookie
func (s *CookieStore) Clear(_ context.Context) error {
	cookie.ClearToken(s.w)
	s.current = nil
	s.cleared = true
	return nil
}
