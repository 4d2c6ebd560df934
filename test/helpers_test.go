//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	integrationEmail    = "noor@example.com"
	integrationPassword = "integration-passphrase"
)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush the test DB to avoid state leaking between runs.
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: when REDIS_CLUSTER_ADDRS is set (comma-separated).
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func startIntegrationBackend(t *testing.T) *authtest.Server {
	t.Helper()
	srv, err := authtest.Start(authtest.Options{
		Users: []authtest.User{{Name: "Noor", Email: integrationEmail, Password: integrationPassword, Role: authtest.RoleHost}},
	})
	if err != nil {
		t.Fatalf("start backend: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func newIntegrationClient(t *testing.T, srv *authtest.Server, store session.Store, shared *goSession.Client) *goSession.Client {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Refresh.Timeout = 5 * time.Second

	b := goSession.New().WithConfig(cfg)
	if store != nil {
		b.WithCookieStore(store)
	}
	if shared != nil {
		b.WithSessionOf(shared)
	}
	client, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func loginIntegration(t *testing.T, client *goSession.Client) {
	t.Helper()
	_, err := client.Post(context.Background(), "/auth/login", map[string]string{
		"email":    integrationEmail,
		"password": integrationPassword,
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
}
