// Package eventbus mirrors room broadcasts onto a NATS JetStream stream so
// other processes (analytics, replays) can follow room activity.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int
	DuplicateWindow time.Duration
	PublishTimeout  time.Duration
	BufferSize      int // events queued before Publish starts dropping
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "QUIZ_ROOM_EVENTS",
		SubjectPrefix:   "quiz.rooms",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		PublishTimeout:  5 * time.Second,
		BufferSize:      1024,
	}
}

// Envelope is the body of every published message
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	RoomCode  string          `json:"room_code"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type pending struct {
	subject string
	env     Envelope
}

// JetStreamPublisher implements quiz.EventSink. Publish only enqueues; a
// background loop started by Run does the network writes.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig

	queue     chan pending
	closeOnce sync.Once
	done      chan struct{}
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("quizrooms"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := newPublisher(cfg)
	p.nc = nc
	p.js = js

	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func newPublisher(cfg JetStreamConfig) *JetStreamPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &JetStreamPublisher{
		config: cfg,
		queue:  make(chan pending, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

func (p *JetStreamPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Room events mirrored from the quiz gateway",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     p.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := p.streamConfig()

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Publish enqueues a room event. It never blocks: when the queue is full or
// the publisher is closed the event is dropped and logged.
func (p *JetStreamPublisher) Publish(code, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Str("event_type", event).Msg("failed to encode bus event")
		return
	}

	msg := pending{
		subject: subjectFor(p.config.SubjectPrefix, code, event),
		env: Envelope{
			EventID:   uuid.New().String(),
			EventType: event,
			RoomCode:  code,
			Timestamp: time.Now().UTC(),
			Payload:   data,
		},
	}

	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- msg:
	default:
		log.Warn().
			Str("room_code", code).
			Str("event_type", event).
			Msg("event bus queue full, dropping event")
	}
}

// Run drains the queue until ctx is done or Close is called.
func (p *JetStreamPublisher) Run(ctx context.Context) {
	log.Info().Str("stream", p.config.StreamName).Msg("event bus publisher started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case msg := <-p.queue:
			if err := p.send(ctx, msg); err != nil {
				log.Warn().
					Err(err).
					Str("subject", msg.subject).
					Str("event_id", msg.env.EventID).
					Msg("failed to publish room event")
			}
		}
	}
}

func (p *JetStreamPublisher) send(ctx context.Context, msg pending) error {
	data, err := json.Marshal(msg.env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: msg.subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{msg.env.EventType},
			"Room-Code":  []string{msg.env.RoomCode},
			"Event-ID":   []string{msg.env.EventID},
		},
	},
		jetstream.WithMsgID(msg.env.EventID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.subject).
		Str("event_id", msg.env.EventID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return nil
}

func (p *JetStreamPublisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.nc != nil {
			if err := p.nc.Drain(); err != nil {
				p.nc.Close()
			}
		}
	})
	return nil
}

// subjectFor maps ("quiz.rooms", "ABC123", "room:update") to quiz.rooms.ABC123.room.update.
func subjectFor(prefix, code, event string) string {
	event = strings.NewReplacer(":", ".", " ", "_", "*", "_", ">", "_").Replace(event)
	return prefix + "." + code + "." + event
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates &&
		strings.Join(a.Subjects, ",") == strings.Join(b.Subjects, ",")
}
