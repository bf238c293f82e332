/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the points engine server, and exposes the
  maintenance commands operators run by hand (recompute, sweep).
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve       Start the HTTP server (default)
  recompute   Rebuild cached totals from the ledger
  sweep       Run a badge sweep once

FLAGS (all commands):
  --config    TOML config path (default: points.toml, missing file = defaults)
  --db        SQLite database path, overrides [database] path
              Use ":memory:" for an in-memory database
  --port      HTTP port, overrides [server] port (serve only)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the badge sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and cache connections

EXAMPLES:
  points-engine serve --db ./data/points.db --port 3000
  points-engine recompute --all
  points-engine sweep --rule century --student ana

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Config file format
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/warp/points-engine/api"
	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/leaderboard"
	"github.com/warp/points-engine/leaderboard/rediscache"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/store/sqlite"
)

var (
	configPath string
	dbPath     string
	port       int
)

var rootCmd = &cobra.Command{
	Use:           "points-engine",
	Short:         "Points accounting and gamification engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild cached totals from the ledger",
	Long: `Recompute re-derives balance, lifetime and level from the full ledger.
Run it after a stale-totals error or after changing the level table.`,
	RunE: runRecompute,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a badge sweep once",
	RunE:  runSweep,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "points.toml", "TOML config path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	recomputeCmd.Flags().String("student", "", "Student id to recompute")
	recomputeCmd.Flags().Bool("all", false, "Recompute every student on the roster")

	sweepCmd.Flags().String("rule", "", "Only evaluate this rule")
	sweepCmd.Flags().String("student", "", "Only evaluate this student")

	rootCmd.AddCommand(serveCmd, recomputeCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

type app struct {
	cfg     config.Config
	logger  log.Logger
	store   *sqlite.Store
	redis   *redis.Client
	handler *api.Handler
}

func newLogger(level string) log.Logger {
	logger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
	)
	return log.NewFilter(logger, log.FilterLevel(log.ParseLevel(level)))
}

func bootstrap() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg.Log.Level)
	helper := log.NewHelper(log.With(logger, "module", "main"))

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	var cache leaderboard.Cache
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			helper.Warnf("redis %s unreachable, leaderboards will not be cached: %v", cfg.Redis.Addr, err)
			a.redis.Close()
			a.redis = nil
		} else {
			cache = rediscache.New(a.redis, cfg.Redis.TTL.Duration)
			helper.Infof("leaderboard cache on redis %s (ttl %v)", cfg.Redis.Addr, cfg.Redis.TTL.Duration)
		}
	}

	a.handler, err = api.NewHandler(store, cfg, cache, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.store.Close()
}

// =============================================================================
// COMMANDS
// =============================================================================

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	helper := log.NewHelper(log.With(a.logger, "module", "main"))

	scheduler := api.NewBadgeSweepScheduler(a.handler.Badges, a.handler.Guard, a.logger)
	scheduler.Enabled = a.cfg.Scheduler.BadgeSweepEnabled
	scheduler.Interval = a.cfg.Scheduler.BadgeSweepInterval.Duration
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      api.NewRouter(a.handler, a.cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		helper.Infof("server starting on http://localhost:%d", a.cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return errors.Wrap(err, "server failed")
	}

	helper.Info("shutting down server")
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}
	helper.Info("server stopped")
	return nil
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	student, _ := cmd.Flags().GetString("student")
	all, _ := cmd.Flags().GetBool("all")
	if (student == "") == !all {
		return errors.New("pass exactly one of --student or --all")
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	ids := []points.StudentID{points.StudentID(student)}
	if all {
		students, err := a.store.Students(ctx)
		if err != nil {
			return errors.Wrap(err, "list students")
		}
		ids = ids[:0]
		for _, s := range students {
			ids = append(ids, s.ID)
		}
	}

	failed := 0
	for _, id := range ids {
		t, err := a.handler.Ledger.Recompute(ctx, id)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\tbalance=%d\tlifetime=%d\tlevel=%d\n", id, t.Balance, t.Lifetime, t.Level)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d recomputes failed", failed, len(ids))
	}
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	rule, _ := cmd.Flags().GetString("rule")
	student, _ := cmd.Flags().GetString("student")

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.handler.Badges.Sweep(cmd.Context(), rule, points.StudentID(student))
	if err != nil {
		return err
	}
	for _, rr := range report.Rules {
		if rr.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tFAILED at %s: %v\n", rr.RuleID, rr.Stage, rr.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\teligible=%d\tawarded=%d\n", rr.RuleID, rr.Eligible, rr.Awarded)
	}
	if failed := report.Failed(); len(failed) > 0 {
		return errors.Errorf("%d rules failed", len(failed))
	}
	return nil
}
