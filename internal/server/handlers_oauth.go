package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sellerdesk/seller-front/internal/cookie"
	jsonwriter "github.com/sellerdesk/seller-front/internal/json"
	"github.com/sellerdesk/seller-front/internal/log"
	"github.com/sellerdesk/seller-front/internal/oauth"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

// callbackFailure pins the flow step so operators can tell apart a
// denied consent screen, an expired state, and a broken token endpoint
// from the same JSON shape.
type callbackFailure struct {
	OK    bool   `json:"ok"`
	Step  string `json:"step"`
	Error string `json:"error"`
}

func writeCallbackFailure(w http.ResponseWriter, statusCode int, step, message string) {
	log.LogWarnWithFields("oauth", "Authorization flow failed", map[string]any{
		"step":  step,
		"error": message,
	})
	_ = jsonwriter.WriteResponse(w, statusCode, callbackFailure{Step: step, Error: message})
}

// sessionSummary is the public view of a token record. Token material
// never leaves the store through this type.
type sessionSummary struct {
	OK        bool      `json:"ok"`
	UserID    string    `json:"user_id,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresIn int64     `json:"expires_in"`
	IssuedAt  int64     `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func summarize(record *tokenstore.Record) sessionSummary {
	return sessionSummary{
		OK:        true,
		UserID:    record.UserID,
		Scope:     record.Scope,
		ExpiresIn: record.ExpiresIn,
		IssuedAt:  record.IssuedAt,
		ExpiresAt: record.ExpiresAt().UTC(),
	}
}

// handleLogin starts the authorization flow: generate the PKCE verifier,
// stash it in the fallback cookie, and redirect to the marketplace.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	auth, err := s.initiator.Begin()
	if err != nil {
		log.LogErrorWithFields("oauth", "Failed to start authorization flow", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start authorization flow")
		return
	}

	cookie.SetVerifier(w, auth.Verifier)
	http.Redirect(w, r, auth.URL, http.StatusFound)
}

// handleCallback finishes the flow: recover the verifier from state or
// the fallback cookie, exchange the code, and persist the session.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		msg := errParam
		if desc := q.Get("error_description"); desc != "" {
			msg = fmt.Sprintf("%s: %s", errParam, desc)
		}
		writeCallbackFailure(w, http.StatusBadRequest, "auth", msg)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeCallbackFailure(w, http.StatusBadRequest, "callback", "missing code parameter")
		return
	}

	fallback, _ := cookie.GetVerifier(r)
	verifier, err := s.exchanger.RecoverVerifier(q.Get("state"), fallback)
	if err != nil {
		step := "verifier"
		if errors.Is(err, oauth.ErrStateExpired) || errors.Is(err, oauth.ErrStateMalformed) {
			step = "state"
		}
		writeCallbackFailure(w, http.StatusBadRequest, step, err.Error())
		return
	}

	record, err := s.exchanger.Exchange(r.Context(), code, verifier)
	if err != nil {
		writeCallbackFailure(w, http.StatusBadGateway, "exchange", err.Error())
		return
	}

	if err := s.store(w, r).Save(r.Context(), record); err != nil {
		log.LogErrorWithFields("oauth", "Failed to persist session", map[string]any{
			"error": err.Error(),
		})
		writeCallbackFailure(w, http.StatusInternalServerError, "callback", "failed to persist session")
		return
	}

	// The verifier cookie served its purpose, drop it
	cookie.ClearVerifier(w)

	log.LogInfoWithFields("oauth", "Authorization flow completed", map[string]any{
		"user_id": record.UserID,
	})
	_ = jsonwriter.Write(w, summarize(record))
}

// handleRefresh forces a rotation regardless of remaining lifetime
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	store := s.store(w, r)

	record, err := store.Load(r.Context())
	if err != nil {
		log.LogErrorWithFields("oauth", "Failed to load session", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to load session")
		return
	}
	if record == nil {
		jsonwriter.WriteUnauthorized(w, "No active session")
		return
	}

	rotated, err := s.refresh.ForceRefresh(r.Context(), store, record)
	if err != nil {
		if errors.Is(err, oauth.ErrSessionInvalid) {
			jsonwriter.WriteUnauthorized(w, "Session is no longer valid, sign in again")
			return
		}
		log.LogErrorWithFields("oauth", "Forced refresh failed", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteBadGateway(w, "Token refresh failed")
		return
	}

	_ = jsonwriter.Write(w, summarize(rotated))
}

// handleRevoke clears the local session and tells the marketplace to
// drop the application grant. The upstream call is best-effort: the
// local session is gone either way.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	store := s.store(w, r)

	record, err := store.Load(r.Context())
	if err != nil {
		log.LogWarnWithFields("oauth", "Failed to load session during revoke", map[string]any{
			"error": err.Error(),
		})
	}

	if err := store.Clear(r.Context()); err != nil {
		log.LogWarnWithFields("oauth", "Failed to clear session during revoke", map[string]any{
			"error": err.Error(),
		})
	}
	cookie.ClearVerifier(w)

	if record != nil && record.AccessToken != "" && s.market != nil {
		err := s.market.RevokeGrant(r.Context(), record.AccessToken, record.UserID, string(s.cfg.Marketplace.ClientID))
		if err != nil {
			log.LogWarnWithFields("oauth", "Upstream grant revocation failed", map[string]any{
				"user_id": record.UserID,
				"error":   err.Error(),
			})
		}
	}

	_ = jsonwriter.Write(w, map[string]any{"ok": true})
}

type statusResponse struct {
	Environment statusEnvironment `json:"environment"`
	Cookies     statusCookies     `json:"cookies"`
	Session     statusSession     `json:"session"`
}

type statusEnvironment struct {
	ClientIDConfigured     bool   `json:"client_id_configured"`
	ClientSecretConfigured bool   `json:"client_secret_configured"`
	AuthURL                string `json:"auth_url"`
	TokenURL               string `json:"token_url"`
	RedirectURI            string `json:"redirect_uri"`
	Storage                string `json:"storage"`
}

type statusCookies struct {
	HasSession  bool `json:"has_session"`
	HasVerifier bool `json:"has_verifier"`
}

type statusSession struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	HasAccessToken  bool   `json:"has_access_token"`
	HasRefreshToken bool   `json:"has_refresh_token"`
	UserID          string `json:"user_id,omitempty"`
	ExpiresAt       string `json:"expires_at,omitempty"`
}

// handleStatus reports configuration and session health without ever
// echoing secrets or token material. It inspects the stored record
// as-is and does not trigger a refresh.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Environment: statusEnvironment{
			ClientIDConfigured:     s.cfg.Marketplace.ClientID != "",
			ClientSecretConfigured: s.cfg.Marketplace.ClientSecret != "",
			AuthURL:                s.cfg.Marketplace.AuthURL,
			TokenURL:               s.cfg.Marketplace.TokenURL,
			RedirectURI:            s.cfg.Marketplace.RedirectURI,
			Storage:                string(s.cfg.Session.Storage),
		},
		Cookies: statusCookies{
			HasSession:  cookie.Has(r, cookie.TokenCookie),
			HasVerifier: cookie.Has(r, cookie.VerifierCookie),
		},
	}

	record, err := s.store(w, r).Load(r.Context())
	if err != nil {
		log.LogWarnWithFields("oauth", "Failed to load session for status", map[string]any{
			"error": err.Error(),
		})
	}
	if record != nil {
		resp.Session = statusSession{
			IsAuthenticated: record.Fresh(s.now(), 0),
			HasAccessToken:  record.AccessToken != "",
			HasRefreshToken: record.RefreshToken != "",
			UserID:          record.UserID,
			ExpiresAt:       record.ExpiresAt().UTC().Format(time.RFC3339),
		}
	}

	_ = jsonwriter.Write(w, resp)
}
