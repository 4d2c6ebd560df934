package session

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Jar is an http.CookieJar that mirrors every cookie the backend sets into a
// Store, keyed by host, so a session survives process restarts.
//
// Cookie matching and expiry are delegated to net/http/cookiejar. Store
// errors never fail a request; they are reported to the error hook. Store
// calls run outside the lock guarding Cookies, so a slow store delays only
// the response that set the cookie.
type Jar struct {
	store   Store
	timeout time.Duration
	onError func(error)
	now     func() time.Time

	// persistMu orders store writes so the last Save carries the newest set.
	persistMu sync.Mutex

	mu    sync.RWMutex
	inner *cookiejar.Jar
	hosts map[string]*hostSet
}

type hostSet struct {
	origin  *url.URL
	cookies map[string]Cookie
}

// NewJar returns an empty jar persisting into store. A nil store keeps
// cookies in memory only. timeout bounds each store call made from
// SetCookies, which has no caller context.
func NewJar(store Store, timeout time.Duration, onError func(error)) (*Jar, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if onError == nil {
		onError = func(error) {}
	}
	inner, err := newInnerJar()
	if err != nil {
		return nil, err
	}
	return &Jar{
		store:   store,
		timeout: timeout,
		onError: onError,
		now:     time.Now,
		inner:   inner,
		hosts:   make(map[string]*hostSet),
	}, nil
}

func newInnerJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Restore loads the persisted cookies of u's host into the jar. Expired
// records are dropped.
func (j *Jar) Restore(ctx context.Context, u *url.URL) error {
	stored, err := j.store.Load(ctx, u.Host)
	if err != nil {
		return err
	}

	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()

	set := j.hostLocked(u)
	live := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.Expired(now) {
			continue
		}
		set.cookies[c.key()] = c
		live = append(live, c.HTTP())
	}
	if len(live) > 0 {
		j.inner.SetCookies(u, live)
	}
	return nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	now := j.now()

	j.persistMu.Lock()
	defer j.persistMu.Unlock()

	j.mu.Lock()
	j.inner.SetCookies(u, cookies)
	set := j.hostLocked(u)
	for _, hc := range cookies {
		c := FromHTTP(hc, now)
		if c.Path == "" || c.Path[0] != '/' {
			c.Path = defaultPath(u.Path)
		}
		if deletes(hc, now) {
			delete(set.cookies, c.key())
			continue
		}
		set.cookies[c.key()] = c
	}
	snapshot := set.snapshot(now)
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.store.Save(ctx, u.Host, snapshot); err != nil {
		j.onError(err)
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	inner := j.inner
	j.mu.RUnlock()
	return inner.Cookies(u)
}

// Clear forgets every cookie of u's host, in memory and in the store.
// Cookies of other hosts are kept.
func (j *Jar) Clear(ctx context.Context, u *url.URL) error {
	inner, err := newInnerJar()
	if err != nil {
		return err
	}
	now := j.now()

	j.persistMu.Lock()
	defer j.persistMu.Unlock()

	j.mu.Lock()
	delete(j.hosts, u.Host)
	for _, set := range j.hosts {
		live := set.snapshot(now)
		if len(live) == 0 {
			continue
		}
		hc := make([]*http.Cookie, 0, len(live))
		for _, c := range live {
			hc = append(hc, c.HTTP())
		}
		inner.SetCookies(set.origin, hc)
	}
	j.inner = inner
	j.mu.Unlock()

	return j.store.Clear(ctx, u.Host)
}

// Len returns the number of live cookies held for u's host.
func (j *Jar) Len(u *url.URL) int {
	now := j.now()
	j.mu.RLock()
	defer j.mu.RUnlock()
	set, ok := j.hosts[u.Host]
	if !ok {
		return 0
	}
	return len(set.snapshot(now))
}

func (j *Jar) hostLocked(u *url.URL) *hostSet {
	set, ok := j.hosts[u.Host]
	if !ok {
		set = &hostSet{
			origin:  &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
			cookies: make(map[string]Cookie),
		}
		j.hosts[u.Host] = set
	}
	return set
}

func (s *hostSet) snapshot(now time.Time) []Cookie {
	out := make([]Cookie, 0, len(s.cookies))
	for k, c := range s.cookies {
		if c.Expired(now) {
			delete(s.cookies, k)
			continue
		}
		out = append(out, c)
	}
	return out
}

// defaultPath follows RFC 6265 section 5.1.4.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
