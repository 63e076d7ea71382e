// Package server wires the OAuth lifecycle components into the HTTP
// surface: the login/callback/refresh/revoke endpoints, the session
// middleware for downstream API handlers, and the diagnostics routes.
package server

import (
	"net/http"
	"time"

	"github.com/sellerdesk/seller-front/internal/config"
	"github.com/sellerdesk/seller-front/internal/marketplace"
	"github.com/sellerdesk/seller-front/internal/oauth"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

// Server holds the per-process dependencies shared by all handlers
type Server struct {
	cfg       config.Config
	initiator *oauth.Initiator
	exchanger *oauth.Exchanger
	refresh   *oauth.RefreshManager
	gate      *oauth.Gate
	market    *marketplace.Client

	// backend is the remote session store; nil means whole-record
	// cookie persistence.
	backend tokenstore.KeyedStore

	now oauth.Clock
}

// New builds the server from configuration. backend is nil for cookie
// storage; market may be nil only in tests that never hit /api routes.
func New(cfg config.Config, backend tokenstore.KeyedStore, market *marketplace.Client, now oauth.Clock) *Server {
	if now == nil {
		now = time.Now
	}

	oauthCfg := oauth.NewConfig(cfg.Marketplace)
	codec := oauth.NewStateCodec(cfg.Session.StateTTL.Std(), now)
	refresh := oauth.NewRefreshManager(oauthCfg, cfg.Session.RefreshMargin.Std(), cfg.Session.UpstreamTimeout.Std(), now)

	return &Server{
		cfg:       cfg,
		initiator: oauth.NewInitiator(oauthCfg, codec),
		exchanger: oauth.NewExchanger(oauthCfg, codec, cfg.Session.UpstreamTimeout.Std(), now),
		refresh:   refresh,
		gate:      oauth.NewGate(refresh),
		market:    market,
		backend:   backend,
		now:       now,
	}
}

// store builds the per-request token store for the configured backend
func (s *Server) store(w http.ResponseWriter, r *http.Request) tokenstore.Store {
	maxAge := s.cfg.Session.CookieMaxAge.Std()
	if s.backend != nil {
		return tokenstore.NewSessionStore(s.backend, w, r, maxAge)
	}
	return tokenstore.NewCookieStore(w, r, maxAge)
}

// Handler builds the complete HTTP handler with all routing and middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	oauthLogger := NewLoggerMiddleware("oauth")
	oauthRecover := NewRecoverMiddleware("oauth")
	apiLogger := NewLoggerMiddleware("api")
	apiRecover := NewRecoverMiddleware("api")

	oauthMiddleware := []MiddlewareFunc{oauthLogger, oauthRecover}

	mux.Handle("GET /healthz", NewHealthHandler())

	mux.Handle("GET /oauth/login", ChainMiddleware(http.HandlerFunc(s.handleLogin), oauthMiddleware...))
	mux.Handle("GET /oauth/callback", ChainMiddleware(http.HandlerFunc(s.handleCallback), oauthMiddleware...))
	mux.Handle("POST /oauth/refresh", ChainMiddleware(http.HandlerFunc(s.handleRefresh), oauthMiddleware...))
	mux.Handle("DELETE /oauth/revoke", ChainMiddleware(http.HandlerFunc(s.handleRevoke), oauthMiddleware...))
	mux.Handle("GET /oauth/status", ChainMiddleware(s.requireAdmin(http.HandlerFunc(s.handleStatus)), oauthMiddleware...))

	mux.Handle("GET /api/me", ChainMiddleware(http.HandlerFunc(s.handleMe), s.RequireSession, apiLogger, apiRecover))

	return mux
}

// NewHealthHandler creates a new health handler
func NewHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
