package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"planner/internal/server"
	"planner/internal/server/repo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote endpoint",
	Long: `Serve the authoritative task store over HTTP. This is what the
sync coordinator on each device talks to.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		log, err := newLogger(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer log.Sync()

		if cfg.Server.JWTSecret == "" {
			fatalf("server.jwt_secret is not configured")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var r repo.Repo
		switch cfg.Server.Driver {
		case "postgres":
			pg, err := repo.OpenPostgres(ctx, cfg.Server.DatabaseURL)
			if err != nil {
				fatalf("%v", err)
			}
			defer pg.Close()
			r = pg
		case "sqlite", "":
			path := cfg.Server.SQLitePath
			if path == "" {
				path = filepath.Join(cfg.DataDir, "remote.db")
			}
			sl, err := repo.OpenSQLite(path)
			if err != nil {
				fatalf("%v", err)
			}
			defer sl.Close()
			r = sl
		default:
			fatalf("unknown server.driver %q (want postgres or sqlite)", cfg.Server.Driver)
		}

		handler := server.New(server.Config{
			Repo:        r,
			JWTSecret:   cfg.Server.JWTSecret,
			AllowSignUp: cfg.Server.AllowSignUp,
			Logger:      log,
		})

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		fmt.Printf("Listening on %s (%s backend)\n", cfg.Server.Addr, cfg.Server.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	},
}
