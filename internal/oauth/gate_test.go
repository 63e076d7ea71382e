package oauth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_ValidToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	quietEndpoint := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint must not be hit in this test")
	})
	gate := NewGate(NewRefreshManager(testOAuthConfig(quietEndpoint.URL), 5*time.Minute, time.Second, fixedClock(now)))

	t.Run("empty store yields nil without error", func(t *testing.T) {
		assert.Nil(t, gate.ValidToken(context.Background(), &fakeStore{}))
	})

	t.Run("fresh record is returned unchanged and idempotently", func(t *testing.T) {
		record := recordExpiringIn(now, 30*time.Minute)
		store := &fakeStore{record: record}

		first := gate.ValidToken(context.Background(), store)
		second := gate.ValidToken(context.Background(), store)

		require.NotNil(t, first)
		assert.Same(t, record, first)
		assert.Same(t, record, second)
		assert.Zero(t, store.saves)
	})

	t.Run("invalid session normalizes to nil", func(t *testing.T) {
		rejecting := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		})
		failingGate := NewGate(NewRefreshManager(testOAuthConfig(rejecting.URL), 5*time.Minute, time.Second, fixedClock(now)))

		store := &fakeStore{record: recordExpiringIn(now, time.Minute)}
		assert.Nil(t, failingGate.ValidToken(context.Background(), store))
		assert.True(t, store.cleared)
	})

	t.Run("near-expired record is rotated transparently", func(t *testing.T) {
		rotating := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"APP_USR-new","token_type":"Bearer","expires_in":21600,"refresh_token":"TG-new"}`))
		})
		rotatingGate := NewGate(NewRefreshManager(testOAuthConfig(rotating.URL), 5*time.Minute, time.Second, fixedClock(now)))

		store := &fakeStore{record: recordExpiringIn(now, time.Minute)}
		result := rotatingGate.ValidToken(context.Background(), store)

		require.NotNil(t, result)
		assert.Equal(t, "APP_USR-new", result.AccessToken)
		assert.Equal(t, 1, store.saves)
	})
}
