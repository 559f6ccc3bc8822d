package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/collateral-classifier/internal/app"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/server"
)

func main() {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "collaterald",
		Short:         "Serve loan collateral page classification over HTTP and gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", os.Getenv("CONFIG_FILE"), "optional YAML config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "collaterald:", err)
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	v, err := common.NewViper(cfgFile)
	if err != nil {
		return err
	}
	cfg := common.LoadConfig(v)
	logger, err := common.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.Models.Loaded() {
		logger.Warn("starting without a model, classification requests will return 503", "path", cfg.Model.Path)
	}

	var jobs server.JobReader
	if a.Jobs != nil {
		jobs = a.Jobs
	}
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewHTTPServer(a.Classifier, a.Models, jobs, a.Exporter, a.MaxUploadBytes(), logger.With("component", "http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv, _ := server.NewGRPCServer(a.Classifier, a.Models, a.MaxUploadBytes(), logger.With("component", "grpc"))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}
