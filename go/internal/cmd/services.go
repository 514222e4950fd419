package main

import (
	"context"
	"database/sql"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizrooms/go/internal/dbconfig"
	"github.com/mcdev12/quizrooms/go/internal/eventbus"
	"github.com/mcdev12/quizrooms/go/internal/gateway"
	"github.com/mcdev12/quizrooms/go/internal/questions"
	questionsdb "github.com/mcdev12/quizrooms/go/internal/questions/db"
	"github.com/mcdev12/quizrooms/go/internal/quiz"
	"github.com/mcdev12/quizrooms/go/internal/rooms"
	roomsdb "github.com/mcdev12/quizrooms/go/internal/rooms/db"
	"github.com/mcdev12/quizrooms/go/internal/users"
	usersdb "github.com/mcdev12/quizrooms/go/internal/users/db"
	"github.com/rs/zerolog/log"
)

type Services struct {
	DB        *sql.DB
	Registry  *quiz.Registry
	Manager   *gateway.ConnectionManager
	Sockets   *gateway.WebSocketHandler
	Rooms     *rooms.Service
	Users     *users.Service
	Listener  *rooms.Listener
	Publisher *eventbus.JetStreamPublisher
}

func setupServices(ctx context.Context, cfg *Config, dbCfg dbconfig.Config, database *sql.DB) (*Services, error) {
	// Database layer → Repository layer → App layer → Service layer

	roomsRepo := rooms.NewRepository(database, roomsdb.New(database))
	questionsRepo := questions.NewRepository(questionsdb.New(database))
	usersRepo := users.NewRepository(usersdb.New(database))
	usersApp := users.NewApp(usersRepo)

	clock := clockwork.NewRealClock()
	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = gateway.NewOriginPolicy(cfg.allowedOrigins).Check
	connCfg.Clock = clock
	manager := gateway.NewConnectionManager(connCfg)

	deps := quiz.Deps{
		Store:          &quizStore{rooms: roomsRepo, questions: questionsRepo, users: usersRepo},
		Emitter:        manager,
		Clock:          clock,
		StoreTimeout:   cfg.storeTimeout,
		PublicBaseURL:  cfg.publicBaseURL,
		UploadsBaseURL: cfg.uploadsBaseURL,
	}

	s := &Services{DB: database, Manager: manager}

	if cfg.natsURL != "" {
		jsCfg := eventbus.DefaultJetStreamConfig()
		jsCfg.URL = cfg.natsURL
		publisher, err := eventbus.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, err
		}
		s.Publisher = publisher
		deps.Sink = publisher
	}

	s.Registry = quiz.NewRegistry(deps)
	gateway.NewDispatcher(manager, s.Registry, cfg.storeTimeout)
	s.Sockets = gateway.NewWebSocketHandler(manager)

	roomsApp := rooms.NewApp(roomsRepo, usersApp, s.Registry)
	s.Rooms = rooms.NewService(roomsApp, cfg.publicBaseURL)
	s.Users = users.NewService(usersApp)

	if cfg.listen {
		lcfg := rooms.DefaultListenerConfig()
		lcfg.DatabaseURL = dbCfg.DSN()
		listener, err := rooms.NewListener(s.Registry, lcfg)
		if err != nil {
			// Out-of-band edits then only land on the next quiz start.
			log.Warn().Err(err).Msg("settings listener unavailable")
		} else {
			s.Listener = listener
		}
	}

	return s, nil
}

// run starts the background loops. They all stop when ctx is done.
func (s *Services) run(ctx context.Context, cfg *Config) {
	go s.Manager.Start(ctx)
	go s.Registry.RunReaper(ctx, cfg.roomIdleTimeout, cfg.reapInterval)
	if s.Publisher != nil {
		go s.Publisher.Run(ctx)
	}
	if s.Listener != nil {
		go func() {
			if err := s.Listener.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("settings listener stopped")
			}
		}()
	}
}

func (s *Services) close() {
	s.Registry.Close()
	s.Manager.CloseAll()
	if s.Publisher != nil {
		_ = s.Publisher.Close()
	}
	if err := s.DB.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}
