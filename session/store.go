package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("cookie store unavailable")

// Store persists the cookie set of one origin host.
//
// Implementations must be safe for concurrent use. Load of an unknown host
// returns an empty set and no error. Clear is idempotent.
type Store interface {
	Load(ctx context.Context, host string) ([]Cookie, error)
	Save(ctx context.Context, host string, cookies []Cookie) error
	Clear(ctx context.Context, host string) error
}

/*
====================================
MEMORY STORE
====================================
*/

// MemoryStore keeps cookie sets in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string][]Cookie
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]Cookie)}
}

func (s *MemoryStore) Load(_ context.Context, host string) ([]Cookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Cookie(nil), s.sets[host]...), nil
}

func (s *MemoryStore) Save(_ context.Context, host string, cookies []Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(cookies) == 0 {
		delete(s.sets, host)
		return nil
	}
	s.sets[host] = append([]Cookie(nil), cookies...)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, host string) error {
	s.mu.Lock()
	delete(s.sets, host)
	s.mu.Unlock()
	return nil
}

/*
====================================
FILE STORE
====================================
*/

// FileStore keeps one encoded file per host under dir, readable by the
// owner only.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cookie dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(host string) string {
	return filepath.Join(s.dir, url.PathEscape(host)+".cookies")
}

func (s *FileStore) Load(_ context.Context, host string) ([]Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(host))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Decode(data)
}

func (s *FileStore) Save(ctx context.Context, host string, cookies []Cookie) error {
	if len(cookies) == 0 {
		return s.Clear(ctx, host)
	}
	data, err := Encode(cookies)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".cookies-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), s.path(host)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(host)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

/*
====================================
REDIS STORE
====================================
*/

// RedisStore keeps cookie sets outside the process, so a later invocation
// (possibly on another machine) resumes the session. Processes using one key
// at the same time must not refresh independently: the backend rotates the
// refresh cookie and treats the stale copy as reuse. Keys expire with the
// longest-lived persistent cookie; a set holding any session cookie has no
// TTL.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(host string) string {
	return s.prefix + ":cookies:" + host
}

func (s *RedisStore) Load(ctx context.Context, host string) ([]Cookie, error) {
	data, err := s.redis.Get(ctx, s.key(host)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Decode(data)
}

func (s *RedisStore) Save(ctx context.Context, host string, cookies []Cookie) error {
	if len(cookies) == 0 {
		return s.Clear(ctx, host)
	}
	data, err := Encode(cookies)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(host), data, setTTL(cookies, time.Now())).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, host string) error {
	if err := s.redis.Del(ctx, s.key(host)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// setTTL returns zero (no expiry) when any cookie is a session cookie.
func setTTL(cookies []Cookie, now time.Time) time.Duration {
	var latest int64
	for _, c := range cookies {
		if c.Expires == 0 {
			return 0
		}
		if c.Expires > latest {
			latest = c.Expires
		}
	}
	ttl := time.Unix(latest, 0).Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}
