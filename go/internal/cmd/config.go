package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const releaseVersion = "0.4.0"

type Config struct {
	bind            string
	port            int
	allowedOrigins  []string
	publicBaseURL   string
	uploadsBaseURL  string
	roomIdleTimeout time.Duration
	reapInterval    time.Duration
	storeTimeout    time.Duration
	shutdownTimeout time.Duration
	natsURL         string
	listen          bool
	logLevel        string
	prettyLogs      bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.roomIdleTimeout < time.Minute {
		return fmt.Errorf("room idle timeout must be at least 1m: %s", c.roomIdleTimeout)
	}
	if c.reapInterval <= 0 || c.reapInterval > c.roomIdleTimeout {
		return fmt.Errorf("reap interval must be positive and no longer than the idle timeout: %s", c.reapInterval)
	}
	if c.storeTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}
	if c.shutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	for _, raw := range []string{c.publicBaseURL, c.uploadsBaseURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base URL (must be absolute): %q", raw)
		}
	}
	if _, err := zerolog.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.logLevel, err)
	}
	return nil
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.bind, c.port)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizrooms",
		Short:         "Multiplayer trivia rooms over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return setupLogging(cfg.logLevel, cfg.prettyLogs)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZ_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZ_PORT)")
	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", []string{"*"}, "origins allowed for CORS and websockets (env: QUIZ_ALLOWED_ORIGINS)")
	fs.StringVar(&cfg.publicBaseURL, "public-base-url", "", "public URL of the web client, used in room links and QR codes (env: QUIZ_PUBLIC_BASE_URL)")
	fs.StringVar(&cfg.uploadsBaseURL, "uploads-base-url", "", "base URL for relative question image paths (env: QUIZ_UPLOADS_BASE_URL)")
	fs.DurationVar(&cfg.roomIdleTimeout, "room-idle-timeout", 30*time.Minute, "time before idle rooms are evicted from memory (env: QUIZ_ROOM_IDLE_TIMEOUT)")
	fs.DurationVar(&cfg.reapInterval, "reap-interval", time.Minute, "how often idle rooms are checked (env: QUIZ_REAP_INTERVAL)")
	fs.DurationVar(&cfg.storeTimeout, "store-timeout", 3*time.Second, "timeout for each store call (env: QUIZ_STORE_TIMEOUT)")
	fs.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown (env: QUIZ_SHUTDOWN_TIMEOUT)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "mirror room events to this NATS JetStream server when set (env: QUIZ_NATS_URL)")
	fs.BoolVar(&cfg.listen, "listen", true, "LISTEN for room settings changes made outside the app (env: QUIZ_LISTEN)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error (env: QUIZ_LOG_LEVEL)")
	fs.BoolVar(&cfg.prettyLogs, "pretty-logs", false, "human readable console logs (env: QUIZ_PRETTY_LOGS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newMigrateCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizrooms v{{.Version}}\n")

	cmd.SilenceUsage = true

	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context())
		},
	}
}
