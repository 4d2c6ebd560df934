//go:build integration
// +build integration

package test

import (
	"context"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

// TestRedisCompat_SessionSurvivesRestart validates that a second process
// picks up the session persisted by the first.
func TestRedisCompat_SessionSurvivesRestart(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			srv := startIntegrationBackend(t)
			first := newIntegrationClient(t, srv, session.NewRedisStore(rdb, "compat"), nil)
			loginIntegration(t, first)
			first.Close()

			second := newIntegrationClient(t, srv, session.NewRedisStore(rdb, "compat"), nil)
			if _, err := second.Get(context.Background(), "/users/me"); err != nil {
				t.Fatalf("restored session rejected: %v", err)
			}
			if got := srv.Counters().Login; got != 1 {
				t.Fatalf("expected a single login, got %d", got)
			}
		})
	}
}

// TestRedisCompat_RotationPersisted validates that cookies rotated by a
// refresh are written back, so a restart does not replay a spent token.
func TestRedisCompat_RotationPersisted(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			srv := startIntegrationBackend(t)
			first := newIntegrationClient(t, srv, session.NewRedisStore(rdb, "rot"), nil)
			loginIntegration(t, first)

			srv.ExpireSessions()
			if _, err := first.Get(context.Background(), "/users/me"); err != nil {
				t.Fatalf("recovery failed: %v", err)
			}
			first.Close()

			second := newIntegrationClient(t, srv, session.NewRedisStore(rdb, "rot"), nil)
			if _, err := second.Get(context.Background(), "/users/me"); err != nil {
				t.Fatalf("rotated session rejected: %v", err)
			}
			counters := srv.Counters()
			if counters.Refresh != 1 {
				t.Fatalf("expected one refresh, got %d", counters.Refresh)
			}
			if counters.ReuseDetected != 0 {
				t.Fatalf("expected no refresh reuse, got %d", counters.ReuseDetected)
			}
		})
	}
}

// TestRedisCompat_LogoutDeletesKey validates that logout removes the host's
// key instead of leaving an empty record behind.
func TestRedisCompat_LogoutDeletesKey(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			ctx := context.Background()
			srv := startIntegrationBackend(t)
			client := newIntegrationClient(t, srv, session.NewRedisStore(rdb, "bye"), nil)
			loginIntegration(t, client)

			key := "bye:cookies:" + client.BaseURL().Host
			if n, err := rdb.Exists(ctx, key).Result(); err != nil || n != 1 {
				t.Fatalf("expected session key after login, got n=%d err=%v", n, err)
			}

			if err := client.Logout(ctx); err != nil {
				t.Fatalf("logout: %v", err)
			}
			if n, err := rdb.Exists(ctx, key).Result(); err != nil || n != 0 {
				t.Fatalf("expected session key removed, got n=%d err=%v", n, err)
			}
		})
	}
}
