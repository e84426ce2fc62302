// Package app builds the long-lived services from configuration and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/admission"
	"github.com/JakeFAU/leadscout/internal/api"
	"github.com/JakeFAU/leadscout/internal/browser"
	"github.com/JakeFAU/leadscout/internal/captcha"
	"github.com/JakeFAU/leadscout/internal/clock"
	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/extract"
	"github.com/JakeFAU/leadscout/internal/id/uuid"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/pacing"
	"github.com/JakeFAU/leadscout/internal/pipeline"
	"github.com/JakeFAU/leadscout/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/leadscout/internal/publisher/pubsub"
	"github.com/JakeFAU/leadscout/internal/registry"
	"github.com/JakeFAU/leadscout/internal/search"
	"github.com/JakeFAU/leadscout/internal/skiplist"
	"github.com/JakeFAU/leadscout/internal/storage/gcs"
	"github.com/JakeFAU/leadscout/internal/storage/local"
	"github.com/JakeFAU/leadscout/internal/storage/memory"
	"github.com/JakeFAU/leadscout/internal/storage/postgres"
)

// App holds the services shared by the HTTP server and the one-shot CLI.
type App struct {
	Pipeline *pipeline.Orchestrator
	Reports  lead.ReportStore
	Server   *api.Server
	Skip     *skiplist.List

	logger  *zap.Logger
	closers []func() error
}

// New wires every component described by cfg. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	blobs, err := a.blobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	reports, err := a.reportStore(ctx, cfg.Results)
	if err != nil {
		return nil, err
	}
	a.Reports = reports

	var publisher lead.Publisher
	if cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		publisher = pub
	}

	chrome, err := browser.New(browserConfig(cfg.Browser), logger.Named("browser"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { chrome.Close(); return nil })

	a.Skip = skiplist.New(skipDomains(cfg))
	throttle := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Throttle.DefaultRPS,
		DefaultBurst: cfg.Throttle.DefaultBurst,
		HostRPS:      cfg.Throttle.HostRPS,
	})
	pacer := pacing.NewHuman()

	solver := captcha.NewClient(cfg.Captcha.BaseURL, cfg.Captcha.APIKey,
		captcha.WithHTTPClient(&http.Client{Timeout: cfg.Captcha.HTTPTimeout}),
		captcha.WithLanguagePool(cfg.Captcha.LanguagePool),
	)
	if cfg.Captcha.APIKey == "" {
		logger.Warn("captcha.api_key is empty; graphical challenges will fail")
	}
	resolverCfg := captcha.DefaultConfig()
	resolverCfg.PollInterval = cfg.Captcha.PollInterval
	resolverCfg.MaxPolls = cfg.Captcha.MaxPolls
	resolverCfg.ImageTimeout = cfg.Captcha.ImageTimeout
	resolverCfg.ArtifactPrefix = cfg.Storage.ArtifactPrefix
	resolver := captcha.NewResolver(resolverCfg, solver, pacer, logger.Named("captcha"),
		captcha.WithArtifacts(blobs))

	harvester := search.New(searchConfig(cfg.Search), a.Skip, resolver, throttle, pacer, logger.Named("harvester"))
	extractor := extract.New(extract.Config{INNChecksum: cfg.Extract.INNChecksum}, logger.Named("extract"))
	enricher := registry.New(registryConfig(cfg.Registry), throttle, pacer, logger.Named("registry"))

	a.Pipeline, err = pipeline.New(pipelineConfig(cfg), pipeline.Deps{
		Sessions:  chrome,
		Admission: admission.New(cfg.Admission.Global, cfg.Admission.PerIdentity),
		Harvester: harvester,
		Resolver:  resolver,
		Extractor: extractor,
		Enricher:  enricher,
		Skip:      a.Skip,
		Throttle:  throttle,
		Pacer:     pacer,
		IDs:       uuid.New(),
		Clock:     clock.System{},
		Reports:   reports,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	a.Server = api.NewServer(a.Pipeline, reports, cfg.Auth, logger)
	return a, nil
}

func (a *App) blobStore(ctx context.Context, cfg config.StorageConfig) (lead.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("using gcs blob store", zap.String("bucket", cfg.GCSBucket))
		return store, nil
	case config.BackendMemory, "":
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) reportStore(ctx context.Context, cfg config.ResultsConfig) (lead.ReportStore, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		store, err := local.NewReportStore(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local report store: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.NewReportStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres report store: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure report schema: %w", err)
		}
		return store, nil
	case config.BackendMemory, "":
		return memory.NewReportStore(), nil
	default:
		return nil, fmt.Errorf("unknown results backend %q", cfg.Backend)
	}
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func pipelineConfig(cfg config.Config) pipeline.Config {
	return pipeline.Config{
		DefaultMaxResults: cfg.Search.MaxResults,
		MaxResultsCap:     cfg.Search.MaxResultsCap,
		Topic:             cfg.PubSub.TopicName,
	}
}

func browserConfig(cfg config.BrowserConfig) browser.Config {
	out := browser.DefaultConfig()
	out.Headless = cfg.Headless
	out.ExecPath = cfg.ExecPath
	out.ProxyServer = cfg.ProxyServer
	if len(cfg.UserAgents) > 0 {
		out.UserAgents = cfg.UserAgents
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		out.WindowWidth, out.WindowHeight = cfg.WindowWidth, cfg.WindowHeight
	}
	if cfg.NavigationTimeout > 0 {
		out.NavigationTimeout = cfg.NavigationTimeout
	}
	return out
}

func searchConfig(cfg config.SearchConfig) search.Config {
	out := search.DefaultConfig()
	if cfg.BaseURL != "" {
		out.BaseURL = cfg.BaseURL
	}
	if cfg.Region != "" {
		out.Region = cfg.Region
	}
	if cfg.ResultsTimeout > 0 {
		out.ResultsTimeout = cfg.ResultsTimeout
	}
	if cfg.Scrolls > 0 {
		out.Scrolls = cfg.Scrolls
	}
	return out
}

func registryConfig(cfg config.RegistryConfig) registry.Config {
	out := registry.DefaultConfig()
	if cfg.BaseURL != "" {
		out.BaseURL = cfg.BaseURL
	}
	if cfg.EntityType != "" {
		out.EntityType = cfg.EntityType
	}
	if cfg.ResultTimeout > 0 {
		out.ResultTimeout = cfg.ResultTimeout
	}
	if cfg.DetailTimeout > 0 {
		out.DetailTimeout = cfg.DetailTimeout
	}
	return out
}

// skipDomains merges the built-in list, configured extras and the search
// engine's own host.
func skipDomains(cfg config.Config) []string {
	domains := append([]string{}, skiplist.Defaults...)
	domains = append(domains, cfg.SkipDomains...)
	if u, err := url.Parse(cfg.Search.BaseURL); err == nil && u.Hostname() != "" {
		domains = append(domains, u.Hostname())
	}
	return domains
}
