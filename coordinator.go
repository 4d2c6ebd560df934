package goSession

import (
	"context"
	"sync"
)

// SessionCoordinator serializes session recovery for one Client.
//
// At most one refresh runs at a time. Requests that hit an expired session
// while a refresh is in flight queue behind it and are settled, in arrival
// order, with that refresh's outcome. Each completed refresh closes an
// episode and advances Epoch; a 401 for a request sent before the latest
// episode completed adopts that episode's outcome instead of refreshing again.
type SessionCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan error
	epoch      uint64
	lastErr    error
}

// NewSessionCoordinator returns an idle coordinator at epoch 0.
func NewSessionCoordinator() *SessionCoordinator {
	return &SessionCoordinator{}
}

// Epoch returns the number of completed session episodes. Attempts record it
// at send time.
func (c *SessionCoordinator) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Refreshing reports whether a refresh is in flight.
func (c *SessionCoordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Waiting returns the number of requests queued behind the in-flight refresh.
func (c *SessionCoordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Established records that a new session was obtained outside Recover
// (login, signup, an explicit refresh call). Requests sent before this point
// that come back 401 are replayed without another refresh.
func (c *SessionCoordinator) Established() {
	c.mu.Lock()
	c.epoch++
	c.lastErr = nil
	c.mu.Unlock()
}

// Recover resolves an expired session observed by a request sent at seen.
//
// If a refresh is in flight the caller is queued and receives its outcome.
// If an episode completed after seen the caller receives that episode's
// outcome without a new refresh. Otherwise the caller becomes the leader and
// runs refresh; leader reports this so exactly one caller performs the
// follow-up for a failed episode.
//
// A queued caller whose ctx ends stops waiting and gets ctx.Err(); its slot
// is still settled by the leader, so the refresh outcome is delivered exactly
// once per queued request either way.
func (c *SessionCoordinator) Recover(ctx context.Context, seen uint64, refresh func(context.Context) error) (leader bool, err error) {
	role, err := c.resolve(ctx, seen, refresh, nil)
	return role == roleLeader, err
}

type recoverRole uint8

const (
	roleLeader recoverRole = iota
	roleQueued
	roleAdopted
)

// resolve is Recover reporting how the caller was resolved. onQueued runs
// after the caller joined the queue and before it blocks.
func (c *SessionCoordinator) resolve(ctx context.Context, seen uint64, refresh func(context.Context) error, onQueued func()) (recoverRole, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		if onQueued != nil {
			onQueued()
		}
		select {
		case err := <-ch:
			return roleQueued, err
		case <-ctx.Done():
			return roleQueued, ctx.Err()
		}
	}
	if c.epoch != seen {
		err := c.lastErr
		c.mu.Unlock()
		return roleAdopted, err
	}
	c.refreshing = true
	c.mu.Unlock()

	err := c.runRefresh(ctx, refresh)
	c.settle(err)
	return roleLeader, err
}

// settle closes the episode and releases waiters in arrival order.
func (c *SessionCoordinator) settle(err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.epoch++
	c.lastErr = err
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
	}
}

func (c *SessionCoordinator) runRefresh(ctx context.Context, refresh func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.settle(errRefreshPanicked)
			panic(r)
		}
	}()
	return refresh(ctx)
}
