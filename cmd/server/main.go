package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/auth"
	"github.com/freeeve/conquest/api/internal/config"
	"github.com/freeeve/conquest/api/internal/handler"
	"github.com/freeeve/conquest/api/internal/logger"
	"github.com/freeeve/conquest/api/internal/metrics"
	"github.com/freeeve/conquest/api/internal/middleware"
	"github.com/freeeve/conquest/api/internal/repository/postgres"
	redisrepo "github.com/freeeve/conquest/api/internal/repository/redis"
	"github.com/freeeve/conquest/api/internal/service"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Bool("devMode", cfg.DevMode).Msg("Config loaded")

	// Board
	graph := conquest.ClassicGraph()
	if cfg.MapFile != "" {
		data, err := os.ReadFile(cfg.MapFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.MapFile).Msg("Reading map failed")
		}
		if graph, err = conquest.LoadGraphYAML(data); err != nil {
			log.Fatal().Err(err).Str("file", cfg.MapFile).Msg("Invalid map")
		}
	}
	rules := conquest.DefaultRules()
	rules.FortifyConnected = cfg.FortifyConnected
	rules.HistoryLimit = cfg.HistoryLimit
	log.Info().Int("territories", graph.Len()).Bool("fortifyConnected", rules.FortifyConnected).Msg("Board loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Repos
	userRepo := postgres.NewUserRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	phaseRepo := postgres.NewPhaseRepo(db)
	snapRepo := postgres.NewSnapshotRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	var provider auth.Provider
	if google := auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL); google.Configured() {
		provider = google
	} else {
		log.Warn().Msg("Google OAuth not configured; only dev login is available")
	}

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	gateway := service.NewPersistenceGateway(snapRepo, redisClient, cfg.PersistRetries, cfg.PersistBackoff)
	registry := service.NewRegistry(graph, rules, gateway, sessionRepo, phaseRepo, wsHub)
	sessionSvc := service.NewSessionService(sessionRepo, phaseRepo, registry, wsHub)

	// Cross-process snapshot listener (Redis pub/sub with a Postgres poll fallback)
	snapshotListener := service.NewSnapshotListener(redisClient, snapRepo, registry, cfg.SnapshotPollInterval)

	// Handlers
	authHandler := handler.NewAuthHandler(provider, jwtMgr, userRepo, cfg.DevMode)
	userHandler := handler.NewUserHandler(userRepo)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	intentHandler := handler.NewIntentHandler(sessionSvc)
	phaseHandler := handler.NewPhaseHandler(sessionSvc)
	mapHandler := handler.NewMapHandler(graph)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, sessionSvc)

	intentLimiter := middleware.NewRateLimiter("intents", cfg.IntentRateLimit, cfg.IntentRateBurst)
	intentLimiter.TrustProxy(cfg.TrustProxy)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)
	api.HandleFunc("POST /sessions", sessionHandler.CreateSession)
	api.HandleFunc("GET /sessions", sessionHandler.ListSessions)
	api.HandleFunc("GET /sessions/{id}", sessionHandler.GetSession)
	api.HandleFunc("POST /sessions/{id}/join", sessionHandler.JoinSession)
	api.HandleFunc("POST /sessions/{id}/start", sessionHandler.StartSession)
	api.HandleFunc("POST /sessions/{id}/stop", sessionHandler.StopSession)
	api.HandleFunc("GET /sessions/{id}/snapshot", sessionHandler.GetSnapshot)
	api.Handle("POST /sessions/{id}/intents", intentLimiter.Middleware(http.HandlerFunc(intentHandler.SubmitIntent)))
	api.HandleFunc("GET /sessions/{id}/phases", phaseHandler.ListPhases)
	api.HandleFunc("GET /sessions/{id}/phases/current", phaseHandler.CurrentPhase)
	api.HandleFunc("GET /map", mapHandler.GetMap)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Recover, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Reload active sessions from the durable store after a restart
	if err := registry.Recover(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active sessions (non-fatal)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go snapshotListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	// Let in-flight snapshot saves finish before the pools close.
	registry.Wait()
	log.Info().Msg("Server stopped")
}
