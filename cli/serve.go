package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/metaphotor/metaphotor/internal/api"
	"github.com/metaphotor/metaphotor/internal/editor"
	"github.com/metaphotor/metaphotor/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp("api")
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, repo, err := a.openCatalog(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				a.log.Error(context.Background(), "error closing database", err)
			}
		}()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		scanner, err := a.newScanner(repo, metrics.NewScanMetrics(reg))
		if err != nil {
			return err
		}

		addr := ":" + a.cfg.App.Port
		server := &http.Server{
			Addr: addr,
			Handler: api.NewRouter(api.Deps{
				Scanner:  scanner,
				Editor:   editor.New(repo, a.resolver, a.log),
				Geocoder: a.geocoder,
				Tags:     repo,
				Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				Logger:   a.log,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info(a.log.WithField(ctx, "addr", addr), "starting api server")
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		a.log.Info(context.Background(), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}
