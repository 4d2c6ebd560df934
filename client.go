package goSession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// Client issues requests against the marketplace backend carrying the
// session cookies of its jar, and transparently renews an expired session.
//
// A Client is safe for concurrent use once built. Each Client owns its cookie
// jar and SessionCoordinator unless it was built WithSessionOf another.
type Client struct {
	config      Config
	base        *url.URL
	http        *http.Client
	jar         *session.Jar
	headers     http.Header
	refreshReq  *preparedRequest
	coordinator *SessionCoordinator
	logger      *zap.Logger
	events      *eventDispatcher
	metrics     *Metrics

	subsMu  sync.Mutex
	subs    map[uint64]func(SessionExpiredEvent)
	nextSub uint64

	closed atomic.Bool
}

// SessionExpiredEvent is delivered to OnSessionExpired subscribers when the
// session was lost and could not be renewed. EntryRoute is where the host
// application should send the user.
type SessionExpiredEvent struct {
	At         time.Time
	EntryRoute string
	Method     string
	Path       string
	RequestID  string
	Cause      error
}

// Close stops the event dispatcher and releases idle connections. Requests
// made after Close fail with ErrClientNotReady.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.events != nil {
		c.events.Close()
	}
	c.http.CloseIdleConnections()
}

// EventsDropped returns the number of session events discarded because the
// dispatcher buffer was full or the emitting request gave up waiting.
func (c *Client) EventsDropped() uint64 {
	if c == nil || c.events == nil {
		return 0
	}
	return c.events.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the client metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Coordinator returns the coordinator serializing this client's refreshes.
func (c *Client) Coordinator() *SessionCoordinator {
	return c.coordinator
}

// BaseURL returns a copy of the configured backend origin.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// OnSessionExpired registers fn to run every time the session is lost for
// good. Handlers run synchronously on the goroutine that observed the loss,
// after queued requests were released. The returned func unsubscribes.
func (c *Client) OnSessionExpired(fn func(SessionExpiredEvent)) (unsubscribe func()) {
	if c == nil || fn == nil {
		return func() {}
	}
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

/*
====================================
REQUEST API
====================================
*/

// Request issues method on path (relative to Config.BaseURL) with body
// JSON-encoded when non-nil.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	req := &Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(ctx, req)
}

// Get issues a GET on path.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a POST on path with body JSON-encoded.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a PUT on path with body JSON-encoded.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, opts...)
}

// Patch issues a PATCH on path with body JSON-encoded.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, body, opts...)
}

// Delete issues a DELETE on path.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, opts...)
}

// Do sends req and returns the 2xx response.
//
// A 401 on a protected path is treated as an expired session: the session is
// refreshed once (shared with every request failing concurrently) and req is
// replayed a single time. A 401 under the auth prefix is returned as is. A
// failed refresh clears the session, notifies OnSessionExpired subscribers and
// is returned as a *SessionExpiredError. Any other failure is returned
// unchanged and never retried.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c == nil || c.closed.Load() {
		return nil, ErrClientNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prepared, err := prepareRequest(c.base, c.headers, req)
	if err != nil {
		c.metricInc(MetricRequestFailure)
		return nil, err
	}

	resp, err := c.execute(ctx, prepared)
	if err != nil {
		c.metricInc(MetricRequestFailure)
		return nil, err
	}
	c.metricInc(MetricRequestSuccess)
	return resp, nil
}

// Logout ends the session on the backend and clears it locally. A 401 from
// the backend means the session was already gone and is not an error. Local
// state is cleared even when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil || c.closed.Load() {
		return ErrClientNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := c.Post(ctx, c.config.Endpoints.LogoutPath, nil)
	if errors.Is(err, ErrUnauthorized) {
		err = nil
	}

	if clearErr := c.clearSession(ctx); clearErr != nil {
		c.logger.Warn("clear session after logout failed", zap.Error(clearErr))
	}
	c.metricInc(MetricLogout)
	c.emitEvent(ctx, EventLogout, err == nil, attempt{}, 0, err)
	c.logger.Info("logged out", zap.Bool("backend_ok", err == nil))
	return err
}

/*
====================================
RECOVERY
====================================
*/

func (c *Client) execute(ctx context.Context, p *preparedRequest) (*Response, error) {
	kind := attemptOriginal
	if p.path == c.config.Endpoints.RefreshPath {
		kind = attemptRefresh
	}
	a := newAttempt(p, kind, c.coordinator.Epoch(), requestIDFromContext(ctx))

	resp, err := c.dispatch(ctx, a)
	if err == nil {
		if c.establishesSession(p, resp) {
			c.coordinator.Established()
		}
		return resp, nil
	}
	if !isUnauthorized(err) || a.isRetry() {
		return nil, err
	}

	switch {
	case a.kind == attemptRefresh:
		c.expireSession(ctx, a, err)
		return nil, &SessionExpiredError{Cause: err}
	case c.inAuthDomain(p.path):
		c.metricInc(MetricAuthRejected)
		c.emitEvent(ctx, EventAuthRejected, false, a, http.StatusUnauthorized, err)
		return nil, err
	}

	return c.recoverSession(ctx, a)
}

// recoverSession resolves an expired session for a and replays it once.
func (c *Client) recoverSession(ctx context.Context, a attempt) (*Response, error) {
	role, err := c.coordinator.resolve(ctx, a.epoch, func(rctx context.Context) error {
		return c.refreshSession(rctx, a)
	}, func() {
		c.metricInc(MetricRefreshQueued)
		c.emitEvent(ctx, EventRequestQueued, true, a, http.StatusUnauthorized, nil)
	})

	if role == roleAdopted {
		c.metricInc(MetricRefreshAdopted)
	}
	if err != nil {
		if role == roleQueued && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		if role == roleLeader {
			c.expireSession(ctx, a, err)
		}
		return nil, &SessionExpiredError{Cause: err}
	}

	return c.replay(ctx, a)
}

func (c *Client) replay(ctx context.Context, a attempt) (*Response, error) {
	retry := a.retry(c.coordinator.Epoch())
	resp, err := c.dispatch(ctx, retry)
	if err != nil {
		c.metricInc(MetricReplayFailure)
		c.emitEvent(ctx, EventRequestReplayed, false, retry, statusOf(err), err)
		return nil, err
	}
	c.metricInc(MetricReplaySuccess)
	c.emitEvent(ctx, EventRequestReplayed, true, retry, resp.StatusCode, nil)
	return resp, nil
}

// refreshSession performs the single refresh call of an episode. It runs
// detached from the triggering request so that request giving up does not
// abort a refresh other requests are queued on.
func (c *Client) refreshSession(ctx context.Context, trigger attempt) error {
	rctx := context.WithoutCancel(ctx)
	if c.config.Refresh.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, c.config.Refresh.Timeout)
		defer cancel()
	}

	c.metricInc(MetricRefreshStarted)
	c.offerEvent(EventRefreshStarted, true, trigger, 0, nil)
	c.logger.Info("refreshing session",
		zap.String("request_id", trigger.requestID),
		zap.String("trigger_path", trigger.req.path),
	)

	start := time.Now()
	refresh := newAttempt(c.refreshReq, attemptRefresh, trigger.epoch, "")
	resp, err := c.dispatch(rctx, refresh)
	c.metricObserve(MetricRefreshLatency, time.Since(start))

	if err != nil {
		c.metricInc(MetricRefreshFailure)
		c.offerEvent(EventRefreshFailed, false, refresh, statusOf(err), err)
		c.logger.Warn("session refresh failed",
			zap.String("request_id", refresh.requestID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	c.metricInc(MetricRefreshSuccess)
	c.offerEvent(EventRefreshSucceeded, true, refresh, resp.StatusCode, nil)
	c.logger.Info("session refreshed",
		zap.String("request_id", refresh.requestID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// expireSession clears local session state and tells subscribers.
func (c *Client) expireSession(ctx context.Context, a attempt, cause error) {
	if err := c.clearSession(ctx); err != nil {
		c.logger.Warn("clear expired session failed", zap.Error(err))
	}

	c.metricInc(MetricSessionExpired)
	c.emitEvent(ctx, EventSessionExpired, false, a, statusOf(cause), cause)
	c.logger.Warn("session expired",
		zap.String("request_id", a.requestID),
		zap.String("path", a.req.path),
		zap.Error(cause),
	)

	c.notifyExpired(SessionExpiredEvent{
		At:         time.Now().UTC(),
		EntryRoute: c.config.Endpoints.EntryRoute,
		Method:     a.req.method,
		Path:       a.req.path,
		RequestID:  a.requestID,
		Cause:      cause,
	})
}

func (c *Client) clearSession(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Session.Timeout)
	defer cancel()
	return c.jar.Clear(cctx, c.base)
}

func (c *Client) notifyExpired(event SessionExpiredEvent) {
	c.subsMu.Lock()
	handlers := make([]func(SessionExpiredEvent), 0, len(c.subs))
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, c.subs[id])
	}
	c.subsMu.Unlock()

	for _, fn := range handlers {
		fn(event)
	}
}

/*
====================================
DISPATCH
====================================
*/

// dispatch sends one attempt. It never consults the coordinator.
func (c *Client) dispatch(ctx context.Context, a attempt) (*Response, error) {
	httpReq, err := a.newHTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug("attempt failed",
			zap.String("request_id", a.requestID),
			zap.Stringer("attempt", a.kind),
			zap.String("method", a.req.method),
			zap.String("path", a.req.path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, a.req.method, a.req.path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	elapsed := time.Since(start)
	c.metricObserve(MetricRequestLatency, elapsed)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrTransport, a.req.method, a.req.path, err)
	}

	c.logger.Debug("attempt",
		zap.String("request_id", a.requestID),
		zap.Stringer("attempt", a.kind),
		zap.String("method", a.req.method),
		zap.String("path", a.req.path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		if httpResp.StatusCode == http.StatusUnauthorized {
			c.metricInc(MetricUnauthorized)
		}
		return nil, &HTTPError{
			Method:     a.req.method,
			Path:       a.req.path,
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       body,
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Duration:   elapsed,
		RequestID:  a.requestID,
	}, nil
}

func (c *Client) inAuthDomain(path string) bool {
	return pathWithin(path, c.config.Endpoints.authPrefix())
}

// establishesSession reports whether resp handed out new session cookies
// from the auth domain (login, signup, refresh).
func (c *Client) establishesSession(p *preparedRequest, resp *Response) bool {
	if !c.inAuthDomain(p.path) || p.path == c.config.Endpoints.LogoutPath {
		return false
	}
	return len(resp.Header.Values("Set-Cookie")) > 0
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) metricObserve(id MetricID, d time.Duration) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Observe(id, d)
}

func (c *Client) emitEvent(ctx context.Context, eventType string, success bool, a attempt, status int, err error) {
	if c == nil || c.events == nil {
		return
	}
	c.events.Emit(ctx, newSessionEvent(eventType, success, a, status, err))
}

// offerEvent is emitEvent for the refresh leader. It never waits on a full
// buffer since queued requests are parked behind the leader.
func (c *Client) offerEvent(eventType string, success bool, a attempt, status int, err error) {
	if c == nil || c.events == nil {
		return
	}
	c.events.Offer(newSessionEvent(eventType, success, a, status, err))
}

func newSessionEvent(eventType string, success bool, a attempt, status int, err error) SessionEvent {
	event := SessionEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: a.requestID,
		Status:    status,
		Success:   success,
	}
	if a.req != nil {
		event.Method = a.req.method
		event.Path = a.req.path
		event.Metadata = map[string]string{
			"attempt": a.kind.String(),
			"epoch":   strconv.FormatUint(a.epoch, 10),
		}
	}
	if err != nil {
		event.Error = eventErrorCode(err)
	}
	return event
}

func eventErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrServer):
		return "server_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, errRefreshPanicked):
		return "refresh_panicked"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "status_" + strconv.Itoa(httpErr.StatusCode)
	}
	return "error"
}

func statusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
