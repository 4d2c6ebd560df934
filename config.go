package goSession

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config defines the client configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	BaseURL   string `validate:"required,url"`
	Endpoints EndpointConfig
	Transport TransportConfig
	Refresh   RefreshConfig
	Session   SessionConfig
	Events    EventsConfig
	Metrics   MetricsConfig
}

/*
====================================
ENDPOINT CONFIG
====================================
*/

// EndpointConfig names the authentication-domain routes of the backend.
//
// Every path under AuthPrefix is treated as an authentication endpoint: a 401
// there is a credential rejection, never an expired session. RefreshPath and
// LogoutPath must live under AuthPrefix. A trailing slash on AuthPrefix is
// ignored.
type EndpointConfig struct {
	AuthPrefix    string `validate:"required,startswith=/"`
	RefreshPath   string `validate:"required,startswith=/"`
	RefreshMethod string `validate:"required,oneof=POST PUT GET"`
	LogoutPath    string `validate:"required,startswith=/"`
	// EntryRoute is reported to session-expired subscribers as the place
	// to send the user. The client never navigates itself.
	EntryRoute string `validate:"required"`
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// TransportConfig controls the underlying *http.Client when the Builder
// creates one.
//
// TransportConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TransportConfig struct {
	Timeout             time.Duration `validate:"gte=0"`
	UserAgent           string
	MaxIdleConnsPerHost int `validate:"gte=0"`
	Headers             map[string]string
}

// RefreshConfig bounds the single in-flight refresh call.
//
// Timeout applies to the refresh request only. The refresh runs detached from
// the context of the request that triggered it, so a caller giving up does not
// abort the refresh other requests are waiting on. Zero disables the bound and
// leaves it to the transport timeout.
type RefreshConfig struct {
	Timeout time.Duration `validate:"gte=0"`
}

// SessionConfig controls cookie persistence.
type SessionConfig struct {
	// Timeout bounds each Store operation made from inside the cookie jar,
	// which has no caller context of its own.
	Timeout time.Duration `validate:"gt=0"`
}

// EventsConfig controls the asynchronous session event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int `validate:"gte=0"`
	// DropIfFull makes request-path events drop instead of wait when the
	// buffer is full. Refresh events never wait.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used by New. BaseURL is left empty
// and must be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Endpoints: EndpointConfig{
			AuthPrefix:    "/auth",
			RefreshPath:   "/auth/refresh",
			RefreshMethod: "POST",
			LogoutPath:    "/auth/logout",
			EntryRoute:    "/auth",
		},
		Transport: TransportConfig{
			Timeout:             30 * time.Second,
			UserAgent:           "goSession/1.0",
			MaxIdleConnsPerHost: 16,
		},
		Refresh: RefreshConfig{
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			Timeout: 2 * time.Second,
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Transport.Headers != nil {
		out.Transport.Headers = make(map[string]string, len(cfg.Transport.Headers))
		for k, v := range cfg.Transport.Headers {
			out.Transport.Headers[k] = v
		}
	}
	return out
}

var configValidator = validator.New()

// Validate reports the first rejected field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := configValidator.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	prefix := c.Endpoints.authPrefix()
	if !pathWithin(c.Endpoints.RefreshPath, prefix) {
		return fmt.Errorf("%w: refresh path %q is outside auth prefix %q", ErrInvalidConfig, c.Endpoints.RefreshPath, prefix)
	}
	if !pathWithin(c.Endpoints.LogoutPath, prefix) {
		return fmt.Errorf("%w: logout path %q is outside auth prefix %q", ErrInvalidConfig, c.Endpoints.LogoutPath, prefix)
	}
	if c.Events.Enabled && c.Events.BufferSize == 0 {
		return fmt.Errorf("%w: events enabled with zero buffer", ErrInvalidConfig)
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return fmt.Errorf("%w: latency histograms require metrics", ErrInvalidConfig)
	}
	return nil
}

// authPrefix is AuthPrefix without its trailing slash, the form every
// prefix match uses.
func (e EndpointConfig) authPrefix() string {
	return strings.TrimSuffix(e.AuthPrefix, "/")
}

// pathWithin reports whether p equals prefix or is a sub-path of it.
// "/authors" is not within "/auth".
func pathWithin(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
