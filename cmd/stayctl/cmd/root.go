// Package cmd provides the stayctl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/logger"
	"github.com/MrEthical07/goSession/marketplace"
	"github.com/MrEthical07/goSession/session"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings is the resolved stayctl configuration: flags over STAYCTL_
// environment variables over the config file over defaults.
type Settings struct {
	BaseURL string         `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration  `mapstructure:"timeout" validate:"gte=0"`
	Output  string         `mapstructure:"output" validate:"oneof=json yaml"`
	Cookies CookieSettings `mapstructure:"cookies"`
	Redis   RedisSettings  `mapstructure:"redis"`
	Log     logger.Config  `mapstructure:"log"`
}

type CookieSettings struct {
	Store string `mapstructure:"store" validate:"oneof=file redis memory"`
	Dir   string `mapstructure:"dir"`
}

type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix"`
}

type app struct {
	v       *viper.Viper
	cfgFile string
	out     io.Writer

	settings Settings
	logger   *zap.Logger
	closeLog func() error
	client   *goSession.Client
	api      *marketplace.API
	redis    *redis.Client
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree writing results to out and
// diagnostics to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "stayctl",
		Short: "stayctl - stays and guides marketplace client",
		Long: `stayctl talks to the marketplace API with a persistent session.

The session cookies are kept in a cookie store (a directory by default, or
Redis to share one session between machines). An expired session is renewed
transparently; when renewal fails stayctl asks you to log in again.

Configuration:
  Config is loaded from stayctl.yaml in the current directory or
  $HOME/.stayctl/. Environment variables override it with the STAYCTL_
  prefix. Example: STAYCTL_BASE_URL=https://api.stays.example`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./stayctl.yaml)")
	flags.String("base-url", "", "marketplace API origin")
	flags.String("output", "json", "output format: json or yaml")
	flags.String("cookie-store", "file", "cookie store: file, redis or memory")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	_ = a.v.BindPFlag("base_url", flags.Lookup("base-url"))
	_ = a.v.BindPFlag("output", flags.Lookup("output"))
	_ = a.v.BindPFlag("cookies.store", flags.Lookup("cookie-store"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newRequestCmd(a),
		newPropertiesCmd(a),
		newBookingsCmd(a),
		newMetricsCmd(a),
	)
	return root
}

func (a *app) loadSettings() (Settings, error) {
	v := a.v
	home, _ := os.UserHomeDir()

	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("output", "json")
	v.SetDefault("cookies.store", "file")
	v.SetDefault("cookies.dir", filepath.Join(home, ".stayctl", "cookies"))
	v.SetDefault("redis.prefix", "stayctl")
	def := logger.DefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.format", def.Format)
	v.SetDefault("log.output", def.Output)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.SetConfigName("stayctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home != "" {
			v.AddConfigPath(filepath.Join(home, ".stayctl"))
		}
	}
	v.SetEnvPrefix("STAYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"base_url", "timeout", "output", "cookies.store", "cookies.dir", "redis.addr", "redis.password", "redis.db", "redis.prefix", "log.level", "log.format", "log.output"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || a.cfgFile != "" {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

var settingsValidator = validator.New()

func validateSettings(s Settings) error {
	if err := settingsValidator.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid setting %s (%s)", strings.ToLower(verrs[0].Namespace()), verrs[0].Tag())
		}
		return err
	}
	if s.Cookies.Store == "redis" && s.Redis.Addr == "" {
		return errors.New("invalid setting redis.addr: required with the redis cookie store")
	}
	return nil
}

func (a *app) init(cmd *cobra.Command) error {
	s, err := a.loadSettings()
	if err != nil {
		return err
	}
	a.settings = s

	log, closeLog, err := logger.New(s.Log)
	if err != nil {
		return err
	}
	a.logger = log
	a.closeLog = closeLog

	store, err := a.cookieStore()
	if err != nil {
		return err
	}

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = s.BaseURL
	cfg.Transport.Timeout = s.Timeout
	cfg.Transport.UserAgent = "stayctl/" + version
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := goSession.New().
		WithConfig(cfg).
		WithCookieStore(store).
		WithLogger(log).
		WithSessionExpiredHandler(func(e goSession.SessionExpiredEvent) {
			fmt.Fprintf(cmd.ErrOrStderr(), "session expired; run `stayctl login` (entry route %s)\n", e.EntryRoute)
		}).
		Build()
	if err != nil {
		return err
	}
	a.client = client
	a.api = marketplace.New(client)
	return nil
}

func (a *app) cookieStore() (session.Store, error) {
	switch a.settings.Cookies.Store {
	case "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.settings.Redis.Addr,
			Password: a.settings.Redis.Password,
			DB:       a.settings.Redis.DB,
		})
		return session.NewRedisStore(a.redis, a.settings.Redis.Prefix), nil
	default:
		return session.NewFileStore(a.settings.Cookies.Dir)
	}
}

func (a *app) close() error {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.closeLog != nil {
		return a.closeLog()
	}
	return nil
}

const version = "1.0.0"
