package server

import (
	"net/http"

	jsonwriter "github.com/sellerdesk/seller-front/internal/json"
	"github.com/sellerdesk/seller-front/internal/log"
)

// handleMe proxies the seller profile for the authenticated session.
// RequireSession runs first, so the context always carries a record
// with a currently valid access token.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := AccessTokenFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Authentication required")
		return
	}

	profile, err := s.market.Me(r.Context(), accessToken)
	if err != nil {
		log.LogWarnWithFields("api", "Failed to fetch seller profile", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteBadGateway(w, "Failed to fetch seller profile")
		return
	}

	_ = jsonwriter.Write(w, profile)
}
