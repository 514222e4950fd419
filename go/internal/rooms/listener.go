package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mcdev12/quizrooms/go/internal/quiz"
	"github.com/mcdev12/quizrooms/go/internal/schema"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name to LISTEN on
	MaxRetries    int           // Refresh attempts per notification
	RetryDelay    time.Duration // Base delay between attempts, grows linearly
	PingInterval  time.Duration
	Clock         clockwork.Clock // Drives ping and retry timing; real clock when nil
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: schema.SettingsChannel,
		MaxRetries:    3,
		RetryDelay:    200 * time.Millisecond,
		PingInterval:  90 * time.Second,
		Clock:         clockwork.NewRealClock(),
	}
}

func (c ListenerConfig) clock() clockwork.Clock {
	if c.Clock == nil {
		return clockwork.NewRealClock()
	}
	return c.Clock
}

// SettingsRefresher reloads a live room's settings from the store.
type SettingsRefresher interface {
	RefreshSettings(ctx context.Context, code string) error
}

// Listener pushes out-of-band room settings edits into live lobby rooms.
// The rooms table trigger NOTIFYs the room code when a settings column changes.
type Listener struct {
	listener  *pq.Listener
	refresher SettingsRefresher
	cfg       ListenerConfig
}

func NewListener(refresher SettingsRefresher, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		listener:  l,
		refresher: refresher,
		cfg:       cfg,
	}, nil
}

// Start blocks until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("listener started")

	pingTicker := l.cfg.clock().NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established
				continue
			}
			if err := handleNotification(ctx, l.refresher, l.cfg, note.Extra); err != nil {
				log.Error().Err(err).Str("room_code", note.Extra).Msg("failed to handle notification")
			}
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification refreshes the room named by the notification payload,
// retrying transient failures.
func handleNotification(ctx context.Context, refresher SettingsRefresher, cfg ListenerConfig, code string) error {
	if code == "" {
		return fmt.Errorf("empty notification payload")
	}

	clock := cfg.clock()
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(delay):
			}
		}

		err := refresher.RefreshSettings(ctx, code)
		var verr *quiz.ValidationError
		if errors.As(err, &verr) {
			return err
		}
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("room_code", code).
				Msg("failed to refresh room settings, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("refresh failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}
