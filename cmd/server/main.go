// Command server runs the conversation proxy: an HTTP API that relays
// chat messages to the completion endpoint, persists per-user history,
// and injects that history into the prompt template before each call.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload" // .env for local dev; missing file is fine
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/avramides/go-convo-proxy/internal/config"
	"github.com/avramides/go-convo-proxy/internal/domain"
	"github.com/avramides/go-convo-proxy/internal/filestore"
	httpapi "github.com/avramides/go-convo-proxy/internal/http"
	"github.com/avramides/go-convo-proxy/internal/observability"
	"github.com/avramides/go-convo-proxy/internal/openai"
	"github.com/avramides/go-convo-proxy/internal/prompt"
	"github.com/avramides/go-convo-proxy/internal/repo"
	"github.com/avramides/go-convo-proxy/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting")

	// Tracing
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Error().Err(err).Msg("otel setup failed; continuing without tracing")
		shutdownOTel = func(context.Context) error { return nil }
	}

	// Prompt template must be readable before we take traffic; it is
	// re-read on every request afterwards so live edits apply.
	composer := prompt.NewComposer(cfg.PromptPath)
	if err := composer.CheckReadable(); err != nil {
		log.Fatal().Err(err).Str("path", cfg.PromptPath).Msg("prompt template unavailable")
	}

	// Storage. Schema problems are logged and swallowed so the process
	// keeps serving; the first real request retries against the store.
	deps := httpapi.Deps{Composer: composer}
	switch cfg.HistoryBackend {
	case config.BackendFile:
		store := filestore.New(cfg.HistoryFile)
		deps.Turns = store
		deps.Users = fileUserStore{}
		log.Info().Str("file", cfg.HistoryFile).Msg("using file-backed history store")
	default:
		db, err := openDB(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("database handle could not be constructed")
		}
		if err := repo.AutoMigrate(db); err != nil {
			log.Error().Err(err).Msg("database init failed; continuing with lazy reconnection")
		}
		deps.Users = httpapi.NewGormUserStore(db)
		deps.Turns = httpapi.NewGormTurnStore(db)
	}

	// Outbound completion client. A missing key surfaces on the first
	// call, not here.
	apiKey := sysutil.FirstNonEmpty(cfg.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY"))
	deps.Completions = openai.NewClient(cfg.OpenAI.BaseURL, apiKey, cfg.OpenAI.Model)

	// HTTP
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

// openDB opens MySQL/MariaDB when DB_HOST is configured, SQLite otherwise.
func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DB.UseMySQL() {
		log.Info().
			Str("host", cfg.DB.Host).
			Str("port", cfg.DB.Port).
			Str("name", cfg.DB.Name).
			Str("user", cfg.DB.User).
			Msg("connecting to mysql (password hidden)")
		return repo.OpenMySQL(repo.MySQLParams{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			Name:     cfg.DB.Name,
			User:     cfg.DB.User,
			Password: cfg.DB.Password,
		})
	}
	log.Info().Str("path", cfg.DB.SQLitePath).Msg("using sqlite store")
	return repo.OpenSQLite(cfg.DB.SQLitePath)
}

// fileUserStore backs identities when the file history backend is active:
// there is no users table, so identities are minted in-memory and any
// well-formed token is accepted as existing. Turns remain the only
// durable state in that mode.
type fileUserStore struct{}

// CreateUser mints a fresh identity without persisting it.
func (fileUserStore) CreateUser(ctx context.Context) (*domain.User, error) {
	return &domain.User{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}, nil
}

// UserExists accepts every well-formed token (shape is validated upstream).
func (fileUserStore) UserExists(ctx context.Context, id string) (bool, error) {
	return true, nil
}
