package main

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/quizrooms/go/internal/respond"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	router := httprouter.New()

	registerServices(router, services)
	setupHealthCheck(router, services)

	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panicked")
		respond.Error(w, http.StatusInternalServerError, "internal")
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: cfg.allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:              cfg.addr(),
		Handler:           h2c.NewHandler(c.Handler(router), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(router *httprouter.Router, services *Services) {
	services.Rooms.RegisterRoutes(router)
	services.Users.RegisterRoutes(router)
	services.Sockets.RegisterRoutes(router)
}

func setupHealthCheck(router *httprouter.Router, services *Services) {
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := services.DB.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"rooms":  services.Registry.Len(),
		})
	})

	router.GET("/version", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		respond.JSON(w, http.StatusOK, map[string]string{"version": releaseVersion})
	})
}
