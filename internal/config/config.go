// Package config loads and validates leadscout configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig    `mapstructure:"server"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Browser     BrowserConfig   `mapstructure:"browser"`
	Admission   AdmissionConfig `mapstructure:"admission"`
	Throttle    ThrottleConfig  `mapstructure:"throttle"`
	Search      SearchConfig    `mapstructure:"search"`
	SkipDomains []string        `mapstructure:"skip_domains"`
	Extract     ExtractConfig   `mapstructure:"extract"`
	Captcha     CaptchaConfig   `mapstructure:"captcha"`
	Registry    RegistryConfig  `mapstructure:"registry"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Results     ResultsConfig   `mapstructure:"results"`
	PubSub      PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication and the identity allow-list.
// An empty AllowedIdentities admits every identity.
type AuthConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	APIKey            string   `mapstructure:"api_key"`
	AllowedIdentities []string `mapstructure:"allowed_identities"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures the Chrome launch.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	ProxyServer       string        `mapstructure:"proxy_server"`
	UserAgents        []string      `mapstructure:"user_agents"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// AdmissionConfig bounds concurrent requests.
type AdmissionConfig struct {
	Global      int `mapstructure:"global"`
	PerIdentity int `mapstructure:"per_identity"`
}

// ThrottleConfig sets per-host navigation rates.
type ThrottleConfig struct {
	DefaultRPS   float64            `mapstructure:"default_rps"`
	DefaultBurst int                `mapstructure:"default_burst"`
	HostRPS      map[string]float64 `mapstructure:"host_rps"`
}

// SearchConfig targets the search engine.
type SearchConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Region         string        `mapstructure:"region"`
	MaxResults     int           `mapstructure:"max_results"`
	MaxResultsCap  int           `mapstructure:"max_results_cap"`
	ResultsTimeout time.Duration `mapstructure:"results_timeout"`
	Scrolls        int           `mapstructure:"scrolls"`
}

// ExtractConfig tunes contact extraction.
type ExtractConfig struct {
	INNChecksum bool `mapstructure:"inn_checksum"`
}

// CaptchaConfig configures the solver API and polling budget.
type CaptchaConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	LanguagePool string        `mapstructure:"language_pool"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPolls     int           `mapstructure:"max_polls"`
	ImageTimeout time.Duration `mapstructure:"image_timeout"`
}

// RegistryConfig targets the company registry.
type RegistryConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	EntityType    string        `mapstructure:"entity_type"`
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
	DetailTimeout time.Duration `mapstructure:"detail_timeout"`
}

// StorageConfig selects where failure artifacts are written.
type StorageConfig struct {
	Backend        string `mapstructure:"backend"`
	LocalDir       string `mapstructure:"local_dir"`
	GCSBucket      string `mapstructure:"gcs_bucket"`
	Prefix         string `mapstructure:"prefix"`
	ArtifactPrefix string `mapstructure:"artifact_prefix"`
}

// ResultsConfig selects where request reports are persisted.
type ResultsConfig struct {
	Backend  string `mapstructure:"backend"`
	LocalDir string `mapstructure:"local_dir"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for report notifications. An empty TopicName
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Storage and results backends.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("captcha.api_key", "LEADSCOUT_CAPTCHA_API_KEY", "RUCAPTCHA_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind captcha key: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.allowed_identities", []string{})
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.proxy_server", "")
	v.SetDefault("browser.user_agents", []string{})
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("admission.global", 3)
	v.SetDefault("admission.per_identity", 1)
	v.SetDefault("throttle.default_rps", 1.0)
	v.SetDefault("throttle.default_burst", 1)
	v.SetDefault("throttle.host_rps", map[string]float64{})
	v.SetDefault("search.base_url", "https://yandex.ru/search/")
	v.SetDefault("search.region", "213")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.max_results_cap", 20)
	v.SetDefault("search.results_timeout", "20s")
	v.SetDefault("search.scrolls", 2)
	v.SetDefault("skip_domains", []string{})
	v.SetDefault("extract.inn_checksum", false)
	v.SetDefault("captcha.api_key", "")
	v.SetDefault("captcha.base_url", "https://api.rucaptcha.com")
	v.SetDefault("captcha.language_pool", "rn")
	v.SetDefault("captcha.http_timeout", "30s")
	v.SetDefault("captcha.poll_interval", "5s")
	v.SetDefault("captcha.max_polls", 24)
	v.SetDefault("captcha.image_timeout", "20s")
	v.SetDefault("registry.base_url", "https://datanewton.ru/search")
	v.SetDefault("registry.entity_type", "ul")
	v.SetDefault("registry.result_timeout", "20s")
	v.SetDefault("registry.detail_timeout", "20s")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.local_dir", "artifacts")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.artifact_prefix", "captcha")
	v.SetDefault("results.backend", BackendMemory)
	v.SetDefault("results.local_dir", "reports")
	v.SetDefault("results.dsn", "")
	v.SetDefault("results.table", "lead_reports")
	v.SetDefault("results.max_conns", 4)
	v.SetDefault("results.min_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Admission.Global <= 0 || c.Admission.PerIdentity <= 0 {
		return fmt.Errorf("admission.global and admission.per_identity must be > 0")
	}
	if c.Admission.PerIdentity > c.Admission.Global {
		return fmt.Errorf("admission.per_identity (%d) must not exceed admission.global (%d)",
			c.Admission.PerIdentity, c.Admission.Global)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	if c.Search.MaxResultsCap > 0 && c.Search.MaxResultsCap < c.Search.MaxResults {
		return fmt.Errorf("search.max_results_cap (%d) must not be below search.max_results (%d)",
			c.Search.MaxResultsCap, c.Search.MaxResults)
	}
	if c.Captcha.PollInterval <= 0 || c.Captcha.MaxPolls <= 0 {
		return fmt.Errorf("captcha.poll_interval and captcha.max_polls must be > 0")
	}
	if !slices.Contains([]string{BackendMemory, BackendLocal, BackendGCS}, c.Storage.Backend) {
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendGCS && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if !slices.Contains([]string{BackendMemory, BackendLocal, BackendPostgres}, c.Results.Backend) {
		return fmt.Errorf("results.backend %q is not one of memory, local, postgres", c.Results.Backend)
	}
	if c.Results.Backend == BackendPostgres && c.Results.DSN == "" {
		return fmt.Errorf("results.dsn must be set for the postgres backend")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	return nil
}

// IdentityAllowed reports whether identity may submit requests.
func (c AuthConfig) IdentityAllowed(identity string) bool {
	return len(c.AllowedIdentities) == 0 || slices.Contains(c.AllowedIdentities, identity)
}
