package oauth

import (
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/sellerdesk/seller-front/internal/tokenstore"
)

// recordFromToken maps a token endpoint response to a persisted record,
// stamping issued_at with the moment this token set was obtained.
func recordFromToken(tok *oauth2.Token, now time.Time) *tokenstore.Record {
	return &tokenstore.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		UserID:       tokenUserID(tok),
		Scope:        tokenScope(tok),
		ExpiresIn:    tokenExpiresIn(tok, now),
		IssuedAt:     now.UnixMilli(),
	}
}

// tokenExpiresIn prefers the raw expires_in the server advertised,
// falling back to the expiry the oauth2 library computed.
func tokenExpiresIn(tok *oauth2.Token, now time.Time) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		if remaining := tok.Expiry.Sub(now); remaining > 0 {
			return int64(remaining.Seconds())
		}
	}
	return 0
}

// tokenUserID extracts the seller account id some authorization servers
// include alongside the token set (numeric or string).
func tokenUserID(tok *oauth2.Token) string {
	switch v := tok.Extra("user_id").(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	}
	return ""
}

// tokenScope extracts the granted scope string, when present
func tokenScope(tok *oauth2.Token) string {
	if v, ok := tok.Extra("scope").(string); ok {
		return v
	}
	return ""
}
