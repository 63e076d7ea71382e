package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sellerdesk/seller-front/internal/config"
	"github.com/sellerdesk/seller-front/internal/cookie"
	"github.com/sellerdesk/seller-front/internal/marketplace"
	"github.com/sellerdesk/seller-front/internal/oauth"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

func testConfig(authURL, tokenURL, apiURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Addr:    ":0",
			BaseURL: "http://localhost:8080",
		},
		Marketplace: config.MarketplaceConfig{
			AuthURL:      authURL,
			TokenURL:     tokenURL,
			APIBaseURL:   apiURL,
			RedirectURI:  "http://localhost:8080/oauth/callback",
			ClientID:     "client-abc",
			ClientSecret: "hush",
			Scopes:       []string{"offline_access", "read"},
		},
		Session: config.SessionConfig{
			Storage:         config.StorageCookie,
			CookieMaxAge:    config.Duration(30 * 24 * time.Hour),
			RefreshMargin:   config.Duration(5 * time.Minute),
			StateTTL:        config.Duration(15 * time.Minute),
			UpstreamTimeout: config.Duration(15 * time.Second),
		},
	}
}

func clockAt(instant time.Time) oauth.Clock {
	return func() time.Time { return instant }
}

func tokenEndpoint(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func encodeRecord(t *testing.T, record *tokenstore.Record) string {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return base64.URLEncoding.EncodeToString(data)
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleLogin(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	q := location.Query()
	assert.Equal(t, "client-abc", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEmpty(t, q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "http://localhost:8080/oauth/callback", q.Get("redirect_uri"))

	verifierCookie := responseCookie(rec, cookie.VerifierCookie)
	require.NotNil(t, verifierCookie, "fallback verifier cookie must be set")
	assert.True(t, verifierCookie.HttpOnly)
	assert.GreaterOrEqual(t, len(verifierCookie.Value), 43)

	// The state must carry the same verifier the cookie does
	raw, err := base64.RawURLEncoding.DecodeString(q.Get("state"))
	require.NoError(t, err)
	var state struct {
		Verifier string `json:"verifier"`
	}
	require.NoError(t, json.Unmarshal(raw, &state))
	assert.Equal(t, verifierCookie.Value, state.Verifier)
}

func TestHandleCallback(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("completes the flow end to end", func(t *testing.T) {
		var gotVerifier string
		tokens := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotVerifier = r.FormValue("code_verifier")
			assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
			assert.Equal(t, "splendid-code", r.FormValue("code"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"APP_USR-1","token_type":"bearer","expires_in":21600,"refresh_token":"TG-1","scope":"offline_access read","user_id":123456}`))
		})

		srv := New(testConfig("https://auth.marketplace.test/authorize", tokens.URL, ""), nil, nil, clockAt(now))
		handler := srv.Handler()

		// Start a real flow to obtain a valid state and verifier cookie
		loginRec := httptest.NewRecorder()
		handler.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/oauth/login", nil))
		location, err := url.Parse(loginRec.Header().Get("Location"))
		require.NoError(t, err)
		state := location.Query().Get("state")
		verifierCookie := responseCookie(loginRec, cookie.VerifierCookie)
		require.NotNil(t, verifierCookie)

		req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=splendid-code&state="+url.QueryEscape(state), nil)
		req.AddCookie(&http.Cookie{Name: cookie.VerifierCookie, Value: verifierCookie.Value})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, "123456", body["user_id"])
		assert.Equal(t, "offline_access read", body["scope"])
		assert.Equal(t, verifierCookie.Value, gotVerifier)

		sessionCookie := responseCookie(rec, cookie.TokenCookie)
		require.NotNil(t, sessionCookie, "session cookie must be set")
		raw, err := base64.URLEncoding.DecodeString(sessionCookie.Value)
		require.NoError(t, err)
		var record tokenstore.Record
		require.NoError(t, json.Unmarshal(raw, &record))
		assert.Equal(t, "APP_USR-1", record.AccessToken)
		assert.Equal(t, "TG-1", record.RefreshToken)
		assert.Equal(t, now.UnixMilli(), record.IssuedAt)

		cleared := responseCookie(rec, cookie.VerifierCookie)
		require.NotNil(t, cleared, "verifier cookie must be cleared")
		assert.Less(t, cleared.MaxAge, 0)
	})

	t.Run("reports authorization server denial", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied&error_description=user+said+no", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "auth", body["step"])
		assert.Contains(t, body["error"], "access_denied")
	})

	t.Run("rejects a callback without a code", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?state=whatever", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "callback", decodeBody(t, rec)["step"])
	})

	t.Run("rejects malformed state with no fallback cookie", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=%25%25not-base64", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "state", decodeBody(t, rec)["step"])
	})

	t.Run("rejects a callback with no state and no cookie", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "verifier", decodeBody(t, rec)["step"])
	})

	t.Run("surfaces a rejected exchange as a gateway failure", func(t *testing.T) {
		tokens := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"code already redeemed"}`))
		})

		srv := New(testConfig("https://auth.marketplace.test/authorize", tokens.URL, ""), nil, nil, clockAt(now))
		handler := srv.Handler()

		loginRec := httptest.NewRecorder()
		handler.ServeHTTP(loginRec, httptest.NewRequest(http.MethodGet, "/oauth/login", nil))
		location, err := url.Parse(loginRec.Header().Get("Location"))
		require.NoError(t, err)
		state := location.Query().Get("state")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=stale&state="+url.QueryEscape(state), nil))

		require.Equal(t, http.StatusBadGateway, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "exchange", body["step"])
		assert.Contains(t, body["error"], "invalid_grant")
	})
}

func TestHandleRefresh(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("rejects without a session", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oauth/refresh", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rotates a fresh session on demand", func(t *testing.T) {
		tokens := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
			assert.Equal(t, "TG-old", r.FormValue("refresh_token"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"APP_USR-rotated","token_type":"bearer","expires_in":21600,"refresh_token":"TG-new","user_id":123456}`))
		})

		srv := New(testConfig("https://auth.marketplace.test/authorize", tokens.URL, ""), nil, nil, clockAt(now))

		record := &tokenstore.Record{
			AccessToken:  "APP_USR-old",
			RefreshToken: "TG-old",
			UserID:       "123456",
			ExpiresIn:    21600,
			IssuedAt:     now.Add(-1 * time.Hour).UnixMilli(),
		}
		req := httptest.NewRequest(http.MethodPost, "/oauth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: cookie.TokenCookie, Value: encodeRecord(t, record)})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, "123456", body["user_id"])
		assert.Equal(t, float64(now.UnixMilli()), body["issued_at"])
		assert.NotContains(t, rec.Body.String(), "APP_USR-rotated")
		assert.NotContains(t, rec.Body.String(), "TG-new")

		sessionCookie := responseCookie(rec, cookie.TokenCookie)
		require.NotNil(t, sessionCookie)
		raw, err := base64.URLEncoding.DecodeString(sessionCookie.Value)
		require.NoError(t, err)
		var rotated tokenstore.Record
		require.NoError(t, json.Unmarshal(raw, &rotated))
		assert.Equal(t, "APP_USR-rotated", rotated.AccessToken)
		assert.Equal(t, "TG-new", rotated.RefreshToken)
	})

	t.Run("clears the session when the grant is rejected", func(t *testing.T) {
		tokens := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		})

		srv := New(testConfig("https://auth.marketplace.test/authorize", tokens.URL, ""), nil, nil, clockAt(now))

		record := &tokenstore.Record{
			AccessToken:  "APP_USR-old",
			RefreshToken: "TG-revoked",
			ExpiresIn:    21600,
			IssuedAt:     now.Add(-1 * time.Hour).UnixMilli(),
		}
		req := httptest.NewRequest(http.MethodPost, "/oauth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: cookie.TokenCookie, Value: encodeRecord(t, record)})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)

		sessionCookie := responseCookie(rec, cookie.TokenCookie)
		require.NotNil(t, sessionCookie, "session cookie must be cleared")
		assert.Less(t, sessionCookie.MaxAge, 0)
	})
}

func TestHandleRevoke(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("clears the session and revokes the upstream grant", func(t *testing.T) {
		var gotPath string
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		}))
		defer api.Close()

		market := marketplace.New(api.URL, 5*time.Second)
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", api.URL), nil, market, clockAt(now))

		record := &tokenstore.Record{
			AccessToken:  "APP_USR-1",
			RefreshToken: "TG-1",
			UserID:       "123456",
			ExpiresIn:    21600,
			IssuedAt:     now.UnixMilli(),
		}
		req := httptest.NewRequest(http.MethodDelete, "/oauth/revoke", nil)
		req.AddCookie(&http.Cookie{Name: cookie.TokenCookie, Value: encodeRecord(t, record)})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["ok"])
		assert.Equal(t, "/users/123456/applications/client-abc", gotPath)

		sessionCookie := responseCookie(rec, cookie.TokenCookie)
		require.NotNil(t, sessionCookie)
		assert.Less(t, sessionCookie.MaxAge, 0)
	})

	t.Run("succeeds locally even when upstream revocation fails", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer api.Close()

		market := marketplace.New(api.URL, 5*time.Second)
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", api.URL), nil, market, clockAt(now))

		record := &tokenstore.Record{AccessToken: "APP_USR-1", UserID: "123456", ExpiresIn: 21600, IssuedAt: now.UnixMilli()}
		req := httptest.NewRequest(http.MethodDelete, "/oauth/revoke", nil)
		req.AddCookie(&http.Cookie{Name: cookie.TokenCookie, Value: encodeRecord(t, record)})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["ok"])
	})

	t.Run("is idempotent without a session", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/oauth/revoke", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["ok"])
	})
}

func TestHandleStatus(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("reports configuration without a session", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/status", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		env := body["environment"].(map[string]any)
		assert.Equal(t, true, env["client_id_configured"])
		assert.Equal(t, true, env["client_secret_configured"])
		assert.Equal(t, "cookie", env["storage"])
		session := body["session"].(map[string]any)
		assert.Equal(t, false, session["is_authenticated"])
		assert.NotContains(t, rec.Body.String(), "hush")
	})

	t.Run("reports session flags without token material", func(t *testing.T) {
		srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, clockAt(now))

		record := &tokenstore.Record{
			AccessToken:  "APP_USR-secret",
			RefreshToken: "TG-secret",
			UserID:       "123456",
			ExpiresIn:    21600,
			IssuedAt:     now.UnixMilli(),
		}
		req := httptest.NewRequest(http.MethodGet, "/oauth/status", nil)
		req.AddCookie(&http.Cookie{Name: cookie.TokenCookie, Value: encodeRecord(t, record)})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		session := body["session"].(map[string]any)
		assert.Equal(t, true, session["is_authenticated"])
		assert.Equal(t, true, session["has_access_token"])
		assert.Equal(t, true, session["has_refresh_token"])
		assert.Equal(t, "123456", session["user_id"])
		assert.NotContains(t, rec.Body.String(), "APP_USR-secret")
		assert.NotContains(t, rec.Body.String(), "TG-secret")
	})

	t.Run("enforces basic auth when a password hash is configured", func(t *testing.T) {
		hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
		require.NoError(t, err)

		cfg := testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", "")
		cfg.Server.AdminPasswordHash = config.Secret(hash)
		srv := New(cfg, nil, nil, clockAt(now))
		handler := srv.Handler()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/status", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

		req := httptest.NewRequest(http.MethodGet, "/oauth/status", nil)
		req.SetBasicAuth("admin", "wrong")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/oauth/status", nil)
		req.SetBasicAuth("admin", "sesame")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	srv := New(testConfig("https://auth.marketplace.test/authorize", "https://auth.marketplace.test/token", ""), nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
