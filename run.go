package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"GoMemoryAssistant/pkg/agent"
	"GoMemoryAssistant/pkg/observability"
)

const shutdownTimeout = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the memory assistant until interrupted",
	Long: `Run the memory monitor until SIGINT or SIGTERM is received, or until the
sample source fails for good.

When metrics.address is set, an HTTP server exposes /metrics and the pprof
endpoints of this process under /debug/pprof/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, _, err := agent.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		recorder := observability.NewRecorder()
		a, err := agent.New(ctx, cfg, agent.Options{Logger: logger, Recorder: recorder})
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		if cfg.MetricsAddress != "" {
			srv := &http.Server{
				Addr:              cfg.MetricsAddress,
				Handler:           newMux(recorder),
				ReadHeaderTimeout: 5 * time.Second,
			}
			g.Go(func() error {
				logger.Info("Serving metrics", zap.String("address", cfg.MetricsAddress))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-a.Done():
			}
			// the monitor also ends when it has nothing to check
			if err := a.Err(); err != nil {
				return err
			}
			<-gctx.Done()
			return nil
		})

		runErr := g.Wait()

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			logger.Error("Error while stopping the memory assistant", zap.Error(err))
		}
		return runErr
	},
}

func newMux(recorder *observability.Recorder) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	return mux
}

func init() {
	rootCmd.AddCommand(runCmd)
}
