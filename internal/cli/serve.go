package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fruitlens/fruit-classifier/internal/handlers"
	"github.com/fruitlens/fruit-classifier/internal/imagesource"
	"github.com/fruitlens/fruit-classifier/internal/pipeline"
	"github.com/fruitlens/fruit-classifier/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fruit classifier web page",
		Long: `Loads the model and serves the classifier page.

The page accepts an uploaded photo or an image URL, shows the predicted
fruit with its confidence and keeps a per-session bar chart of predictions.`,
		Example: `  # Start on the default port 8080
  fruit-classifier serve

  # Custom port and model
  fruit-classifier serve --port 3000 --model models/fruit.onnx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			shared := newShared(cfg)
			logger.Infow("Loading model", "path", cfg.Model.Path, "metadata", cfg.Model.MetadataPath)
			if _, err := shared.Get(); err != nil {
				logger.Errorw("Failed to load model", "error", err)
				return err
			}
			defer func() {
				if err := shared.Close(); err != nil {
					logger.Warnw("Failed to close model", "error", err)
				}
			}()

			sessions := session.NewStore()
			p := pipeline.New(imagesource.NewFetcher(cfg.FetchTimeout, cfg.TempDir), shared, logger)
			handler, err := handlers.NewHandler(p, sessions, logger)
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           handlers.NewRouter(handler, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go sweepSessions(ctx, sessions, cfg.SessionIdleTimeout, logger)

			serverErr := make(chan error, 1)
			go func() {
				logger.Infow("Fruit classifier available", "addr", server.Addr, "url", "http://localhost"+server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				logger.Info("Shutting down server...")
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancelShutdown()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Errorw("Server shutdown failed", "error", err)
					return err
				}
				logger.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}

// sweepSessions ends idle sessions until ctx is done. Their tallies go with
// them.
func sweepSessions(ctx context.Context, store *session.Store, maxIdle time.Duration, logger *zap.SugaredLogger) {
	interval := maxIdle / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(maxIdle); n > 0 {
				logger.Debugw("Ended idle sessions", "count", n, "remaining", store.Len())
			}
		}
	}
}
