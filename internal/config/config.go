// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
	"github.com/spf13/viper"
)

// Scanner backends.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// Config is the top-level aegis configuration.
type Config struct {
	DataDir    string           `mapstructure:"data_dir" yaml:"data_dir"`
	Verbose    bool             `mapstructure:"verbose" yaml:"verbose"`
	Networking NetworkingConfig `mapstructure:"networking" yaml:"networking"`
	Scanner    ScannerConfig    `mapstructure:"scanner" yaml:"scanner"`
	Security   SecurityConfig   `mapstructure:"security" yaml:"security"`
	Audit      AuditConfig      `mapstructure:"audit" yaml:"audit"`
	Agents     AgentsConfig     `mapstructure:"agents" yaml:"agents"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen      string   `mapstructure:"listen" yaml:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// ScannerConfig selects and configures the scanning backend.
type ScannerConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Profile  string `mapstructure:"profile" yaml:"profile"`
	AppName  string `mapstructure:"app_name" yaml:"app_name"`
	AppUser  string `mapstructure:"app_user" yaml:"app_user"`
	AIModel  string `mapstructure:"ai_model" yaml:"ai_model"`

	TimeoutMs     int `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries    int `mapstructure:"max_retries" yaml:"max_retries"`
	BackoffBaseMs int `mapstructure:"backoff_base_ms" yaml:"backoff_base_ms"`

	CABundle           string `mapstructure:"ca_bundle" yaml:"ca_bundle"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	// RulesFile replaces the built-in local rule set.
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`
}

// SecurityConfig is the fail-safe policy.
type SecurityConfig struct {
	// FailOpen forces both failure modes to fail_open.
	FailOpen        bool     `mapstructure:"fail_open" yaml:"fail_open"`
	OnScanFailure   string   `mapstructure:"on_scan_failure" yaml:"on_scan_failure"`
	OnTimeout       string   `mapstructure:"on_timeout" yaml:"on_timeout"`
	BlockCategories []string `mapstructure:"block_categories" yaml:"block_categories"`
}

// AuditConfig controls where scan events go.
type AuditConfig struct {
	// Path is the SQLite database. Empty means <data_dir>/aegis.db.
	Path        string `mapstructure:"path" yaml:"path"`
	WebhookURL  string `mapstructure:"webhook_url" yaml:"webhook_url"`
	QueueSize   int    `mapstructure:"queue_size" yaml:"queue_size"`
	Workers     int    `mapstructure:"workers" yaml:"workers"`
	HistorySize int    `mapstructure:"history_size" yaml:"history_size"`
	// Log mirrors every event to the structured log.
	Log bool `mapstructure:"log" yaml:"log"`
}

// AgentsConfig configures the model behind the agents.
type AgentsConfig struct {
	Provider      string                    `mapstructure:"provider" yaml:"provider"`
	Model         string                    `mapstructure:"model" yaml:"model"`
	RoutingModel  string                    `mapstructure:"routing_model" yaml:"routing_model"`
	ResearchModel string                    `mapstructure:"research_model" yaml:"research_model"`
	Verbose       bool                      `mapstructure:"verbose" yaml:"verbose"`
	Providers     map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// legacyEnv maps environment names used by earlier deployments onto config
// keys. They are bound alongside the AEGIS_ names.
var legacyEnv = map[string]string{
	"scanner.api_key":                    "AIRS_API_KEY",
	"scanner.profile":                    "AIRS_API_PROFILE_NAME",
	"scanner.endpoint":                   "PRISMA_AIRS_ENDPOINT",
	"scanner.timeout_ms":                 "SECURITY_TIMEOUT_MS",
	"scanner.ca_bundle":                  "CORPORATE_CA_BUNDLE",
	"scanner.insecure_skip_verify":       "CORPORATE_SSL_DISABLE",
	"security.fail_open":                 "SECURITY_FAIL_OPEN",
	"agents.providers.google.api_key":    "GOOGLE_API_KEY",
	"agents.providers.anthropic.api_key": "ANTHROPIC_API_KEY",
	"agents.providers.openai.api_key":    "OPENAI_API_KEY",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8080")
	v.SetDefault("scanner.backend", BackendRemote)
	v.SetDefault("scanner.endpoint", scanner.DefaultEndpoint)
	v.SetDefault("scanner.app_name", "aegis")
	v.SetDefault("scanner.timeout_ms", int(scanner.DefaultTimeout/time.Millisecond))
	v.SetDefault("scanner.max_retries", scanner.DefaultMaxRetries)
	v.SetDefault("scanner.backoff_base_ms", int(scanner.DefaultBackoffBase/time.Millisecond))
	v.SetDefault("security.fail_open", false)
	v.SetDefault("security.on_scan_failure", string(types.FailClosed))
	v.SetDefault("security.on_timeout", string(types.FailClosed))
	v.SetDefault("security.block_categories", []string{string(types.CategoryMalicious)})
	v.SetDefault("audit.queue_size", 1000)
	v.SetDefault("audit.workers", 2)
	v.SetDefault("audit.history_size", 50)
	v.SetDefault("agents.provider", string(provider.NameGoogle))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv binds AEGIS_ variables and the legacy names.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		// The AEGIS_ name wins when both are set.
		_ = v.BindEnv(key, "AEGIS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
}

// Load reads configuration from path (optional) with defaults and
// environment overrides applied, and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateScanner()...)
	errs = append(errs, c.validateSecurity()...)
	errs = append(errs, c.validateAudit()...)
	errs = append(errs, c.validateAgents()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func invalid(format string, args ...any) error {
	return aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		return append(errs, invalid("networking.listen must not be empty"))
	}
	_, portStr, err := net.SplitHostPort(c.Networking.Listen)
	if err != nil {
		return append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w", c.Networking.Listen, err))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
	}
	return errs
}

func (c *Config) validateScanner() []error {
	var errs []error
	s := c.Scanner

	switch s.Backend {
	case BackendRemote:
		if s.APIKey == "" {
			errs = append(errs, invalid("scanner.api_key is required for the remote backend (AIRS_API_KEY)"))
		}
		if s.Profile == "" {
			errs = append(errs, invalid("scanner.profile is required for the remote backend (AIRS_API_PROFILE_NAME)"))
		}
		if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, invalid("scanner.endpoint must be an absolute URL, got %q", s.Endpoint))
		}
	case BackendLocal:
	default:
		errs = append(errs, invalid("scanner.backend must be one of [remote, local], got %q", s.Backend))
	}

	if s.TimeoutMs <= 0 {
		errs = append(errs, invalid("scanner.timeout_ms must be greater than 0, got %d", s.TimeoutMs))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, invalid("scanner.max_retries must not be negative, got %d", s.MaxRetries))
	}
	if s.BackoffBaseMs <= 0 {
		errs = append(errs, invalid("scanner.backoff_base_ms must be greater than 0, got %d", s.BackoffBaseMs))
	}
	return errs
}

func (c *Config) validateSecurity() []error {
	var errs []error
	for key, val := range map[string]string{
		"security.on_scan_failure": c.Security.OnScanFailure,
		"security.on_timeout":      c.Security.OnTimeout,
	} {
		if _, err := types.ParseFailMode(val); err != nil {
			errs = append(errs, invalid("%s must be one of [fail_open, fail_closed], got %q", key, val))
		}
	}
	for i, cat := range c.Security.BlockCategories {
		if _, err := types.ParseCategory(cat); err != nil {
			errs = append(errs, invalid("security.block_categories[%d] is not a category: %q", i, cat))
		}
	}
	return errs
}

func (c *Config) validateAudit() []error {
	var errs []error
	if c.Audit.WebhookURL != "" {
		if u, err := url.Parse(c.Audit.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, invalid("audit.webhook_url must be an http(s) URL, got %q", c.Audit.WebhookURL))
		}
	}
	if c.Audit.QueueSize <= 0 {
		errs = append(errs, invalid("audit.queue_size must be greater than 0, got %d", c.Audit.QueueSize))
	}
	if c.Audit.Workers <= 0 {
		errs = append(errs, invalid("audit.workers must be greater than 0, got %d", c.Audit.Workers))
	}
	if c.Audit.HistorySize <= 0 {
		errs = append(errs, invalid("audit.history_size must be greater than 0, got %d", c.Audit.HistorySize))
	}
	return errs
}

func (c *Config) validateAgents() []error {
	var errs []error
	name := provider.Name(c.Agents.Provider)
	if !name.Valid() {
		return append(errs, invalid("agents.provider must be one of [google, anthropic, openai], got %q", c.Agents.Provider))
	}
	// Credentials are checked where the provider is built so that commands
	// that never talk to a model still run without them.
	for key := range c.Agents.Providers {
		if !provider.Name(key).Valid() {
			errs = append(errs, invalid("agents.providers.%s is not a supported provider", key))
		}
	}
	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, invalid("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, invalid("logging.format must be one of [text, json], got %q", c.Logging.Format))
	}
	return errs
}

// FailSafe builds the immutable scan policy. Call after Validate.
func (c *Config) FailSafe() scanner.FailSafeConfig {
	onFailure, _ := types.ParseFailMode(c.Security.OnScanFailure)
	onTimeout, _ := types.ParseFailMode(c.Security.OnTimeout)
	if c.Security.FailOpen {
		onFailure, onTimeout = types.FailOpen, types.FailOpen
	}
	var block []types.Category
	for _, s := range c.Security.BlockCategories {
		if cat, err := types.ParseCategory(s); err == nil {
			block = append(block, cat)
		}
	}
	return scanner.NewFailSafeConfig(onFailure, onTimeout, block...)
}

// HTTPScanner converts the scanner section for scanner.NewHTTPClient.
func (c *Config) HTTPScanner(userAgent string) scanner.HTTPConfig {
	s := c.Scanner
	return scanner.HTTPConfig{
		Endpoint:           s.Endpoint,
		APIKey:             s.APIKey,
		Profile:            s.Profile,
		AppName:            s.AppName,
		AppUser:            s.AppUser,
		AIModel:            s.AIModel,
		Timeout:            time.Duration(s.TimeoutMs) * time.Millisecond,
		MaxRetries:         s.MaxRetries,
		BackoffBase:        time.Duration(s.BackoffBaseMs) * time.Millisecond,
		CABundle:           s.CABundle,
		InsecureSkipVerify: s.InsecureSkipVerify,
		UserAgent:          userAgent,
	}
}

// ProviderKey returns the API key configured for the named provider.
func (c *Config) ProviderKey(name provider.Name) string {
	return c.Agents.Providers[string(name)].APIKey
}

// Redacted returns a copy with every credential masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	if out.Scanner.APIKey != "" {
		out.Scanner.APIKey = scanner.MaskToken
	}
	out.Agents.Providers = make(map[string]ProviderConfig, len(c.Agents.Providers))
	for name, pc := range c.Agents.Providers {
		if pc.APIKey != "" {
			pc.APIKey = scanner.MaskToken
		}
		out.Agents.Providers[name] = pc
	}
	return out
}
