package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	jsonwriter "github.com/sellerdesk/seller-front/internal/json"
	"github.com/sellerdesk/seller-front/internal/log"
	"github.com/sellerdesk/seller-front/internal/tokenstore"
	"golang.org/x/crypto/bcrypt"
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for interface detection
// when used with http.ResponseController
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher
func (r *responseWriterDelegator) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Verify interfaces
var _ http.ResponseWriter = (*responseWriterDelegator)(nil)
var _ http.Flusher = (*responseWriterDelegator)(nil)

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Logf("<%s> Recovered from panic: %v", prefix, err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type sessionContextKey struct{}

func withRecord(ctx context.Context, record *tokenstore.Record) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, record)
}

// RecordFromContext returns the token record placed by RequireSession
func RecordFromContext(ctx context.Context) (*tokenstore.Record, bool) {
	record, ok := ctx.Value(sessionContextKey{}).(*tokenstore.Record)
	return record, ok
}

// AccessTokenFromContext returns the bearer token placed by RequireSession
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	record, ok := RecordFromContext(ctx)
	if !ok {
		return "", false
	}
	return record.AccessToken, true
}

// RequireSession guards downstream API handlers. It runs the session gate
// against the per-request store and rejects with a uniform 401 when no
// valid session exists. Silent refresh happens here, so a handler that
// gets through always sees a currently valid access token.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := s.store(w, r)
		record := s.gate.ValidToken(r.Context(), store)
		if record == nil {
			jsonwriter.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withRecord(r.Context(), record)))
	})
}

// requireAdmin guards the status endpoint with HTTP basic auth against
// a configured bcrypt hash. No hash configured means no guard.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	hash := string(s.cfg.Server.AdminPasswordHash)
	if hash == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Basic ") {
			w.Header().Set("WWW-Authenticate", `Basic realm="seller-front"`)
			jsonwriter.WriteUnauthorized(w, "Unauthorized")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(authHeader[6:])
		if err != nil {
			log.LogTraceWithFields("admin", "Basic auth failed: invalid base64 encoding", nil)
			w.Header().Set("WWW-Authenticate", `Basic realm="seller-front"`)
			jsonwriter.WriteUnauthorized(w, "Unauthorized")
			return
		}

		credentials := string(decoded)
		colonIdx := strings.IndexByte(credentials, ':')
		if colonIdx == -1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="seller-front"`)
			jsonwriter.WriteUnauthorized(w, "Unauthorized")
			return
		}

		username := credentials[:colonIdx]
		password := credentials[colonIdx+1:]

		if username != "admin" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			log.LogTraceWithFields("admin", "Basic auth failed: invalid username or password", nil)
			w.Header().Set("WWW-Authenticate", `Basic realm="seller-front"`)
			jsonwriter.WriteUnauthorized(w, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
