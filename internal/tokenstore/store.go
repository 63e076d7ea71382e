// Package tokenstore persists token records for browser sessions.
//
// The reference backend serializes the whole record into a single cookie.
// Remote backends (memory, redis, firestore) keep only an opaque session id
// in the browser and store the record server-side; they implement KeyedStore
// and are adapted per request by SessionStore.
package tokenstore

import (
	"context"
	"time"
)

// Store is the per-request persistence interface consumed by the token
// lifecycle code. Load returns (nil, nil) when no usable record exists,
// including when a stored record fails to deserialize.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Clear(ctx context.Context) error
}

// KeyedStore is a remote record store addressed by opaque session key.
// Load returns (nil, nil) for unknown or expired keys.
type KeyedStore interface {
	Load(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, key string, record *Record, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}
