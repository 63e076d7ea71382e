package tokenstore

import (
	"context"
	"net/http"
	"time"

	"github.com/sellerdesk/seller-front/internal/cookie"
	"github.com/sellerdesk/seller-front/internal/crypto"
)

// SessionStore adapts a KeyedStore to the per-request Store interface.
// The browser holds only a random opaque session id in the token cookie;
// the record lives in the backend under that id.
type SessionStore struct {
	backend KeyedStore
	w       http.ResponseWriter
	r       *http.Request
	maxAge  time.Duration

	sid string
}

var _ Store = (*SessionStore)(nil)

// NewSessionStore binds a remote-backed store to one request
func NewSessionStore(backend KeyedStore, w http.ResponseWriter, r *http.Request, maxAge time.Duration) *SessionStore {
	return &SessionStore{backend: backend, w: w, r: r, maxAge: maxAge}
}

func (s *SessionStore) sessionID() string {
	if s.sid != "" {
		return s.sid
	}
	if value, err := cookie.GetToken(s.r); err == nil {
		s.sid = value
	}
	return s.sid
}

func (s *SessionStore) Load(ctx context.Context) (*Record, error) {
	sid := s.sessionID()
	if sid == "" {
		return nil, nil
	}
	return s.backend.Load(ctx, sid)
}

func (s *SessionStore) Save(ctx context.Context, record *Record) error {
	sid := s.sessionID()
	if sid == "" {
		generated, err := crypto.GenerateSecureToken()
		if err != nil {
			return err
		}
		sid = generated
	}

	if err := s.backend.Save(ctx, sid, record, s.maxAge); err != nil {
		return err
	}

	s.sid = sid
	cookie.SetToken(s.w, sid, s.maxAge)
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	sid := s.sessionID()
	cookie.ClearToken(s.w)
	s.sid = ""
	if sid == "" {
		return nil
	}
	return s.backend.Clear(ctx, sid)
}
