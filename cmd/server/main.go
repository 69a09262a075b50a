// Package main initializes and starts the casebook API server, setting up
// configuration, logging, database connections, the session store,
// repositories, services, handlers and optional TLS.
package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/analysis"
	"github.com/atinyakov/casebook/internal/auth"
	"github.com/atinyakov/casebook/internal/config"
	"github.com/atinyakov/casebook/internal/db"
	"github.com/atinyakov/casebook/internal/logger"
	"github.com/atinyakov/casebook/internal/repository"
	"github.com/atinyakov/casebook/internal/server/handler/http"
	"github.com/atinyakov/casebook/internal/service"
	"github.com/atinyakov/casebook/internal/session"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", orDefault(version, "N/A"))
	fmt.Printf("Build date: %s\n", orDefault(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	boardRepo := repository.NewPostgresBoardRepository(postgresDB)

	// Sessions live in Redis when configured, otherwise in PostgreSQL with a
	// periodic purge of expired rows.
	var sessions service.SessionStore = authRepo
	if options.RedisURL != "" {
		redisStore, err := session.NewRedisStore(options.RedisURL)
		if err != nil {
			zapLogger.Fatal("cannot connect to redis", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
		zapLogger.Info("using redis session store")
	} else {
		db.StartSessionCleaner(ctx, postgresDB, options.CleanupInterval.Duration, zapLogger)
	}

	secret := options.JWTSecret
	if secret == "" {
		secret = randomSecret()
		zapLogger.Warn("JWT_SECRET is not set; using a random secret, sessions will not survive a restart")
	}
	tokens := auth.NewTokens(secret, options.SessionTTL.Duration)

	// Initialize business-logic services.
	authService := service.NewAuthService(authRepo, sessions, tokens,
		service.WithRegistration(options.AllowRegistration))
	boardService := service.NewBoardService(boardRepo)
	analyzer := analysis.New(options.OpenAI, analysis.WithLogger(zapLogger))
	if !analyzer.Enabled() {
		zapLogger.Info("OPENAI_API_KEY is not set; analysis is disabled")
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(http.Handlers{
		Auth:    &http.AuthHandler{AuthService: authService, Log: zapLogger},
		Boards:  &http.BoardHandler{Boards: boardService, Log: zapLogger},
		Analyze: &http.AnalyzeHandler{Analyzer: analyzer, Log: zapLogger},
	}, authService, splitOrigins(options.CORSOrigin), zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if options.TLSEnabled() {
			server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
			errCh <- server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
			return
		}
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		zapLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// orDefault returns s, or def when s is empty (equivalent to cmp.Or for two strings).
func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
