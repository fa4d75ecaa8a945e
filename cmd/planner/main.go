// Command planner is a local-first task list: mutations land in an
// embedded store immediately and are reconciled with the remote authority
// in the background once signed in.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"planner/internal/config"
	"planner/internal/logger"
	"planner/internal/queue"
	"planner/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "planner",
	Short: "Local-first planner with background sync",
	Long: `planner keeps your task list in an embedded local database and
synchronizes it with a remote store whenever you are signed in. All
commands work offline; sync catches up later.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	rootCmd.AddCommand(addCmd, listCmd, doneCmd, rmCmd, orderCmd, copyCmd, clearCmd)
	rootCmd.AddCommand(syncCmd, loginCmd, logoutCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration for the current invocation.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Log)
}

// session bundles the locally owned state of one signed-in (or offline)
// user: the store, its mutation queue, and the credential file.
type session struct {
	cfg   *config.Config
	store *store.Store
	queue *queue.Queue
	log   *zap.Logger
}

func (s *session) tokenPath() string {
	return filepath.Join(s.cfg.DataDir, "token")
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
	_ = s.log.Sync()
}

// openSession opens the store and queue under the configured data dir.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	weekStart, err := cfg.Sync.WeekStartDay()
	if err != nil {
		return nil, err
	}

	q, err := queue.Open(filepath.Join(cfg.DataDir, "queue.jsonl"))
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DataDir, store.Options{Queue: q, WeekStart: weekStart})
	if err != nil {
		return nil, err
	}

	return &session{cfg: cfg, store: st, queue: q, log: log}, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
