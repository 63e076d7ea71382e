package tokenstore

import "time"

// Record is the persisted token set for one seller session.
// IssuedAt is stamped by whoever obtained this specific token set
// (initial exchange or refresh rotation), never carried over.
type Record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	IssuedAt     int64  `json:"issued_at"` // Unix milliseconds
}

// ExpiresAt computes the access token deadline advertised at issuance
func (r *Record) ExpiresAt() time.Time {
	return time.UnixMilli(r.IssuedAt).Add(time.Duration(r.ExpiresIn) * time.Second)
}

// Fresh reports whether the access token is still usable with the given
// safety margin before its deadline.
func (r *Record) Fresh(now time.Time, margin time.Duration) bool {
	return now.Before(r.ExpiresAt().Add(-margin))
}
