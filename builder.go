package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// Builder assembles a Client. A Builder can be used for one Build only.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config     Config
	httpClient *http.Client
	store      session.Store
	logger     *zap.Logger
	eventSink  EventSink
	shared     *Client
	onExpired  []func(SessionExpiredEvent)

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets Config.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithHTTPClient uses a copy of hc for transport. Its Jar is replaced by the
// session jar; Transport, Timeout and CheckRedirect are kept.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithCookieStore persists session cookies into store. Without it cookies
// live in memory for the life of the Client.
func (b *Builder) WithCookieStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink sets where session events go. Events are only dispatched when
// Config.Events.Enabled is set.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithSessionExpiredHandler subscribes fn before the Client serves any request.
func (b *Builder) WithSessionExpiredHandler(fn func(SessionExpiredEvent)) *Builder {
	if fn != nil {
		b.onExpired = append(b.onExpired, fn)
	}
	return b
}

// WithSessionOf makes the new Client share c's cookie jar and coordinator, so
// both act on one backend session and refresh it at most once between them.
// Transport, logger, events and metrics stay per Client. The base URL must
// name the same origin as c's.
func (b *Builder) WithSessionOf(c *Client) *Builder {
	b.shared = c
	return b
}

// WithMetricsEnabled toggles the in-process request and refresh counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms adds request and refresh latency histograms. It has
// no effect unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, restores persisted cookies for the
// backend host and returns the Client.
//
// Build may return an error when input validation fails. A store that
// cannot be read is logged and the Client starts without a session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, err
	}
	base.RawQuery = ""
	base.Fragment = ""

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gosession")

	// -------- COOKIE JAR --------
	var jar *session.Jar
	var coordinator *SessionCoordinator
	if b.shared != nil {
		if b.shared.base.Scheme != base.Scheme || b.shared.base.Host != base.Host {
			return nil, fmt.Errorf("%w: shared session belongs to %s://%s", ErrInvalidConfig, b.shared.base.Scheme, b.shared.base.Host)
		}
		jar = b.shared.jar
		coordinator = b.shared.coordinator
	} else {
		jar, err = session.NewJar(b.store, cfg.Session.Timeout, func(err error) {
			logger.Warn("persist session cookies failed", zap.Error(err))
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Session.Timeout)
		if err := jar.Restore(ctx, base); err != nil {
			logger.Warn("restore session cookies failed", zap.String("host", base.Host), zap.Error(err))
		}
		cancel()
		coordinator = NewSessionCoordinator()
	}

	// -------- TRANSPORT --------
	var hc http.Client
	if b.httpClient != nil {
		hc = *b.httpClient
	} else {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConnsPerHost = cfg.Transport.MaxIdleConnsPerHost
		hc = http.Client{
			Transport: transport,
			Timeout:   cfg.Transport.Timeout,
		}
	}
	hc.Jar = jar

	headers := make(http.Header, len(cfg.Transport.Headers)+2)
	headers.Set("Accept", "application/json")
	if cfg.Transport.UserAgent != "" {
		headers.Set("User-Agent", cfg.Transport.UserAgent)
	}
	for k, v := range cfg.Transport.Headers {
		headers.Set(k, v)
	}

	refreshReq, err := prepareRequest(base, headers, &Request{
		Method: cfg.Endpoints.RefreshMethod,
		Path:   cfg.Endpoints.RefreshPath,
	})
	if err != nil {
		return nil, err
	}

	client := &Client{
		config:      cfg,
		base:        base,
		http:        &hc,
		jar:         jar,
		headers:     headers,
		refreshReq:  refreshReq,
		coordinator: coordinator,
		logger:      logger,
		subs:        make(map[uint64]func(SessionExpiredEvent)),
	}
	client.events = newEventDispatcher(cfg.Events, b.eventSink, logger)
	client.metrics = NewMetrics(cfg.Metrics)

	for _, fn := range b.onExpired {
		client.OnSessionExpired(fn)
	}

	b.built = true

	return client, nil
}
