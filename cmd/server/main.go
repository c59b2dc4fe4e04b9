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

	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/gateway/ws"
	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/persistence/memory"
	"github.com/YinkaFoster/fostertours-sub001/internal/adapter/driven/persistence/sqlite"
	handler "github.com/YinkaFoster/fostertours-sub001/internal/adapter/driving/http"
	"github.com/YinkaFoster/fostertours-sub001/internal/config"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	log.Logger = l

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if err := cfg.ValidateServer(); err != nil {
		l.Fatal().Err(err).Msg("Invalid config")
	}
	auth := handler.NewAuthenticator(cfg.Auth.Secret)

	// `server token <user>` prints a bearer token for local testing.
	if len(os.Args) == 3 && os.Args[1] == "token" {
		tok, err := auth.Issue(domain.UserID(os.Args[2]), 24*time.Hour)
		if err != nil {
			l.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Println(tok)
		return
	}

	if err := run(cfg, auth); err != nil {
		l.Fatal().Err(err).Msg("Server stopped with error")
	}
	l.Info().Msg("Server exited")
}

func run(cfg *config.Config, auth *handler.Authenticator) error {
	l := log.Logger

	var repo port.CallRecordRepository
	if cfg.Database.Path == "" {
		l.Warn().Msg("DATABASE_PATH is empty, call records are kept in memory")
		repo = memory.NewCallRecordRepository()
	} else {
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		repo = sqlite.NewCallRecordRepository(db)
	}

	hub := ws.NewHub()
	relay := service.NewRelayService(hub)
	records := service.NewCallRecordService(repo, nil)

	h := handler.NewHandler(relay, records, hub, auth, cfg.Server.CORSOrigins)
	h.StaticDir = cfg.Server.StaticDir

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: h.NewRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		l.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("Shutting down server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		hub.Stop()
		return err
	})

	return g.Wait()
}
