package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/sightline/internal/config"
	"github.com/signalsfoundry/sightline/internal/logging"
	"github.com/signalsfoundry/sightline/internal/observability"
	"github.com/signalsfoundry/sightline/internal/rpc"
	"github.com/signalsfoundry/sightline/scene"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve VisibilityService over gRPC with Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			addr := a.cfg.Server.GRPCAddr
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen for gRPC on %s: %w", addr, err)
			}
			return serve(ctx, a.cfg, a.baseDir(), a.log, lis, nil)
		},
	}

	flags := cmd.Flags()
	flags.String("grpc-addr", ":50051", "TCP address the gRPC server listens on")
	flags.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics; empty disables it")
	_ = a.v.BindPFlag("server.grpc_addr", flags.Lookup("grpc-addr"))
	_ = a.v.BindPFlag("server.metrics_addr", flags.Lookup("metrics-addr"))
	return cmd
}

// serve runs the gRPC server on lis until ctx ends. reg selects the metrics
// registry; nil uses the global Prometheus registry.
func serve(ctx context.Context, cfg *config.Config, baseDir string, log logging.Logger, lis net.Listener, reg prometheus.Registerer) error {
	collector, err := observability.NewVisibilityCollector(reg)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}

	onSceneChange := func(ev scene.Event) {
		collector.SetSceneLayers(ev.Enabled)
		log.Info(context.Background(), "scene changed",
			logging.String("event", ev.Type.String()),
			logging.String("layer", ev.Layer),
			logging.Int("enabled", ev.Enabled),
		)
	}
	layers, err := cfg.Scene.BuildRegistry(baseDir, scene.WithSubscriber(onSceneChange))
	if err != nil {
		return err
	}
	if layers.EnabledCount() == 0 {
		log.Warn(ctx, "no scene layers enabled; every sight line will be clear")
	}

	svc := rpc.NewVisibilityService(layers, log,
		rpc.WithMetricsRecorder(collector),
		rpc.WithQueryTimeout(cfg.Session.QueryTimeout),
		rpc.WithMaxWorkers(cfg.Server.MaxWorkers),
		rpc.WithMaxTargets(cfg.Server.MaxTargets),
	)
	server := rpc.NewServer(svc, log, collector)
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	log.Info(ctx, "starting VisibilityService", logging.String("addr", lis.Addr().String()))
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down VisibilityService")
		server.GracefulStop()
		<-serveErr
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.VisibilityCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
