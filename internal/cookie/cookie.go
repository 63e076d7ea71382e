package cookie

import (
	"net/http"
	"time"

	"github.com/sellerdesk/seller-front/internal/envutil"
	"github.com/sellerdesk/seller-front/internal/log"
)

// Cookie names used by seller-front
const (
	// TokenCookie holds the serialized token record (cookie storage backend)
	// or the opaque session id (remote storage backends).
	TokenCookie = "seller_session"

	// VerifierCookie holds the fallback PKCE verifier set at flow initiation,
	// consumed only when the state parameter fails to decode at callback time.
	VerifierCookie = "seller_oauth_verifier"
)

// VerifierTTL bounds the fallback verifier cookie to the state lifetime.
const VerifierTTL = 15 * time.Minute

// SetToken sets the token cookie with appropriate security settings
func SetToken(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Token cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// SetVerifier sets the fallback PKCE verifier cookie
func SetVerifier(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     VerifierCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(VerifierTTL.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// ClearToken removes the token cookie
func ClearToken(w http.ResponseWriter) {
	Clear(w, TokenCookie)
	log.LogTraceWithFields("cookie", "Token cookie cleared", nil)
}

// ClearVerifier removes the fallback verifier cookie
func ClearVerifier(w http.ResponseWriter) {
	Clear(w, VerifierCookie)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetToken retrieves the token cookie value
func GetToken(r *http.Request) (string, error) {
	return Get(r, TokenCookie)
}

// GetVerifier retrieves the fallback verifier cookie value
func GetVerifier(r *http.Request) (string, error) {
	return Get(r, VerifierCookie)
}

// Has reports whether the request carries a non-empty cookie with this name
func Has(r *http.Request, name string) bool {
	v, err := Get(r, name)
	return err == nil && v != ""
}
