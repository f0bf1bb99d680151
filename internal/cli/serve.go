package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drawbridge-app/drawbridge/internal/config"
	"github.com/drawbridge-app/drawbridge/internal/queue"
	"github.com/drawbridge-app/drawbridge/internal/relay"
	"github.com/drawbridge-app/drawbridge/internal/store"
)

// shutdownTimeout bounds how long draining connections and the
// persistence queue may take once a stop signal arrives.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the drawing relay",
		Long: `Run the drawbridge relay: the websocket endpoint, the room
snapshot endpoint, and the asynchronous persistence queue backed by
SQLite.

Example:
  drawbridge serve --config ./drawbridge.yaml
  drawbridge serve --config /etc/drawbridge/config.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logLevel := slog.LevelInfo
	if opts.Verbose || cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(log)

	log.Info("opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	q := queue.New(st, log,
		queue.WithBatchSize(cfg.BatchSize),
		queue.WithMaxRetries(cfg.MaxRetries),
		queue.WithInterval(time.Duration(cfg.DrainInterval)),
	)

	reg := relay.NewRegistry()
	router := relay.NewRouter(reg, q, log)
	auth := relay.NewTokenAuth(cfg.TokenSecret, time.Duration(cfg.TokenTTL))
	srv := relay.NewServer(reg, router, auth, st, log, cfg.FetchLimit, cfg.SendQueueSize)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		log.Info("relay listening", "addr", cfg.ListenAddr)
		fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s. Press Ctrl-C to stop.\n", cfg.ListenAddr)
		errChan <- httpSrv.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	}

	// Stop accepting connections first, then flush pending writes. The
	// queue flush happens after the socket handlers are gone so nothing
	// enqueues behind the final drain.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}
	q.Close(shutdownCtx)

	log.Info("relay stopped gracefully")
	return nil
}
