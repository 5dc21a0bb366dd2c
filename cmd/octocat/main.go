// octocat bridges Braid chat and GitHub issues: chat commands open
// issues, tracker webhooks relay back into chat threads.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/braidchat/octocat/internal/braid"
	"github.com/braidchat/octocat/internal/commands"
	"github.com/braidchat/octocat/internal/config"
	"github.com/braidchat/octocat/internal/github"
	"github.com/braidchat/octocat/internal/relay"
	"github.com/braidchat/octocat/internal/router"
	"github.com/braidchat/octocat/internal/tracking"
	"github.com/braidchat/octocat/internal/webhook"
)

const shutdownGrace = 15 * time.Second

var (
	loadDotEnv = godotenv.Load
	openStore  = func(path string) (tracking.Store, error) {
		return tracking.OpenSQLite(path, 4)
	}
	defaultServe = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(context.Background(), os.Args[1:], defaultServe); err != nil {
		log.Fatal().Err(err).Msg("octocat failed")
	}
}

func run(ctx context.Context, args []string, serve func(*http.Server) error) error {
	// Missing .env is fine; config validation catches anything absent.
	_ = loadDotEnv()

	if len(args) != 1 {
		return fmt.Errorf("usage: octocat <config.toml>")
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	setupLogging(cfg.General.LogLevel)
	log.Info().Str("bot", cfg.Braid.Name).Int("port", cfg.General.Port).
		Int("repos", len(cfg.Repos)).Msg("starting octocat")

	store, err := openStore(cfg.General.DBFile)
	if err != nil {
		return fmt.Errorf("open correlation store: %w", err)
	}
	defer func() { _ = store.Close() }()

	chat := braid.NewClient(cfg.Braid.APIURL, cfg.Braid.AppID, cfg.Braid.Token)

	var appAuth *github.AppAuth
	if app := cfg.GitHub.App; app != nil {
		key, err := os.ReadFile(app.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read github app private key: %w", err)
		}
		appAuth = github.NewAppAuth(app.AppID, key)
		log.Info().Str("app_id", app.AppID).Msg("github app credentials loaded")
	}
	tracker := github.NewClient(appAuth)

	interpreter := commands.NewInterpreter(cfg, chat, tracker, store)
	events := router.New(cfg, chat, tracker, store, interpreter)
	runner := relay.NewRunner()

	handler := webhook.NewHandler(cfg.Braid.Name, cfg.Braid.Token, cfg.GitHub.WebhookSecret, events, runner)
	r := mux.NewRouter()
	handler.Register(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.General.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		serveErr <- serve(srv)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	runner.Shutdown(shutdownCtx)
	return nil
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if os.Getenv("OCTOCAT_PRETTY_LOG") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
