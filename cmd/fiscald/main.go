package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/fiscal-extractor/internal/app"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/export"
	"github.com/joseph-ayodele/fiscal-extractor/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := common.NewLogger(os.Stdout, cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("fiscald.config.invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, logger, app.Options{
		Registerer: reg,
		WithStore:  cfg.Database.DSN != "" || cfg.Database.SQLitePath != "",
	})
	if err != nil {
		logger.Error("fiscald.build.failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("fiscald.close.failed", "error", err)
		}
	}()

	svc := server.NewService(a.Pipeline, a.Records, logger)

	// gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryLogging(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)
	server.RegisterFiscalService(grpcServer, server.NewFiscalService(svc, cfg.Server.MaxUploadBytes, logger))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("fiscald.grpc.listen_failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	// HTTP server
	var exporter *export.Service
	if a.Records != nil {
		exporter = export.NewService(a.Records, logger)
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewHTTPHandler(svc, exporter, reg, cfg.Server.MaxUploadBytes, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("fiscald.grpc.serving", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("fiscald.http.serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("fiscald.shutting_down")
	case err := <-errCh:
		logger.Error("fiscald.serve.failed", "error", err)
	}

	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("fiscald.http.shutdown_failed", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("fiscald.stopped")
}
