package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/app"
	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "leadscout: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	query      string
	identity   string
	maxResults int
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("leadscout", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.query, "query", "", "Run one search for this query and print the report")
	fs.StringVar(&opts.identity, "identity", "cli", "Identity used for admission control in -query mode")
	fs.IntVar(&opts.maxResults, "max", 0, "Maximum candidate sites in -query mode (0 uses search.max_results)")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parse flags: %w", err)
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, convErr := strconv.Atoi(port); convErr == nil && p > 0 {
			cfg.Server.Port = p
		}
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.Warn("close services", zap.Error(cerr))
		}
	}()

	if opts.query != "" {
		return runOnce(ctx, services, opts, stdout)
	}
	return serve(ctx, stop, cfg.Server, services, logger)
}

func runOnce(ctx context.Context, services *app.App, opts options, stdout io.Writer) error {
	report, err := services.Pipeline.Run(ctx, lead.Request{
		Identity:   opts.identity,
		Query:      opts.query,
		MaxResults: opts.maxResults,
	})
	if err != nil {
		return fmt.Errorf("run search: %w", err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg config.ServerConfig, services *app.App, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           services.Server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}
