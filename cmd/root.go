package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/vidtutor/internal/app"
	"github.com/abhisek/vidtutor/internal/config"
	"github.com/abhisek/vidtutor/internal/logger"
	"github.com/abhisek/vidtutor/internal/store"
	"github.com/abhisek/vidtutor/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "vidtutor",
	Short: "Timestamp-grounded code feedback from lecture videos",
	Long: "vidtutor indexes what a lecture video shows and says, then points learners\n" +
		"at the exact moments that explain the mistakes in their code.",
	SilenceUsage: true,
}

// Execute runs the root command, cancelling in-flight work on interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides VIDTUTOR_DB env var)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides VIDTUTOR_LOG_LEVEL)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then VIDTUTOR_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}

// session is everything a command needs, opened in dependency order.
type session struct {
	cfg   config.Config
	store *store.Store
	app   *app.App
	tel   *telemetry.Telemetry
}

// openSession loads configuration, installs logging and tracing, opens the
// store and wires the services.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	cfg.OTel.ServiceVersion = version
	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	log := logger.Setup(logger.Options{
		Env:         cfg.Env,
		Level:       cfg.LogLevel,
		OTel:        cfg.OTel.Enabled(),
		ServiceName: cfg.OTel.ServiceName,
	})

	s := &session{cfg: cfg, tel: tel}
	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s.store, err = store.Open(dbPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.app, err = app.New(ctx, cfg, s.store, app.Options{}, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() error {
	var errs []error
	if s.app != nil {
		errs = append(errs, s.app.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, s.tel.Shutdown(ctx))
	return errors.Join(errs...)
}
