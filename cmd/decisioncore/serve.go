package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// newServeCommand starts a metrics-only HTTP server exposing /metrics
// (Prometheus exposition format) and /healthz. It exists so a
// decisioncore deployment can be scraped even when every decide/
// version/abtest call happens through a different collaborator (e.g.
// the out-of-scope admin web surface) embedding this module as a
// library; this binary only needs to host the metrics registry.
func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Prometheus metrics HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ac := getAppContext(cmd)
			addr := ac.cfg.Metrics.Addr

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})

			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				ac.logger.Info().Str("addr", addr).Msg("metrics server listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
		},
	}
	return cmd
}
