package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relaykit/imasigner/src/metrics"
	"golang.org/x/sync/errgroup"
)

// EnableDebugAndMetrics serves pprof and prometheus on addr and keeps the elapsed time
// gauges current until ctx is done.
func EnableDebugAndMetrics(ctx context.Context, logger log.Logger, addr string) {
	logger = logger.With("module", "debugserver")

	if addr == "" {
		logger.Info("debugAddr not defined, debug and metrics server disabled")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       1 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics.StartMetrics(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Debug server listening", "address", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Debug server stopped", "err", err)
	}
}
