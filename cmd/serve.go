package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/api"
	"github.com/sells-group/cutoff-ingest/internal/governance"
	"github.com/sells-group/cutoff-ingest/internal/ingest"
	"github.com/sells-group/cutoff-ingest/internal/metrics"
	"github.com/sells-group/cutoff-ingest/internal/triage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin server for review and triage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		metrics.New(prometheus.DefaultRegisterer)

		pool := st.Pool()
		handler := api.New(api.Deps{
			Artifacts:   governance.NewController(pool),
			Runs:        ingest.NewRunLog(pool),
			Policy:      triage.NewPolicy(pool),
			Identity:    triage.NewIdentity(pool),
			Health:      st,
			Gatherer:    prometheus.DefaultGatherer,
			CORSOrigins: cfg.Server.CORSOrigins,
		}).Handler()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("admin server listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "serve")
			}
			return nil
		case <-ctx.Done():
		}

		zap.L().Info("shutting down admin server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
