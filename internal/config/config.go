// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Portal    PortalConfig    `mapstructure:"portal" yaml:"portal"`
	Timeouts  TimeoutConfig   `mapstructure:"timeouts" yaml:"timeouts"`
	Actuation ActuationConfig `mapstructure:"actuation" yaml:"actuation"`
	MFA       MFAConfig       `mapstructure:"mfa" yaml:"mfa"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance driven by a run.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool     `mapstructure:"debug" yaml:"debug"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth     int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int      `mapstructure:"window_height" yaml:"window_height"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// PortalConfig describes the external portal and the fixed values typed into it.
type PortalConfig struct {
	HomeURL               string `mapstructure:"home_url" yaml:"home_url"`
	LoginLinkHref         string `mapstructure:"login_link_href" yaml:"login_link_href"`
	Email                 string `mapstructure:"email" yaml:"email"`
	Password              string `mapstructure:"password" yaml:"password"`
	ProviderName          string `mapstructure:"provider_name" yaml:"provider_name"`
	PlaceOfService        string `mapstructure:"place_of_service" yaml:"place_of_service"`
	ProcedureQuantity     string `mapstructure:"procedure_quantity" yaml:"procedure_quantity"`
	ProcedureQuantityType string `mapstructure:"procedure_quantity_type" yaml:"procedure_quantity_type"`
	AuthPayer             string `mapstructure:"auth_payer" yaml:"auth_payer"`
	RequestType           string `mapstructure:"request_type" yaml:"request_type"`
	ServiceType           string `mapstructure:"service_type" yaml:"service_type"`
	NPIRegistryURL        string `mapstructure:"npi_registry_url" yaml:"npi_registry_url"`
}

// TimeoutConfig groups the wait budgets used by the automation engine.
type TimeoutConfig struct {
	Element       time.Duration `mapstructure:"element" yaml:"element"`
	Long          time.Duration `mapstructure:"long" yaml:"long"`
	VeryLong      time.Duration `mapstructure:"very_long" yaml:"very_long"`
	Navigation    time.Duration `mapstructure:"navigation" yaml:"navigation"`
	PostLoadWait  time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	LoginRedirect time.Duration `mapstructure:"login_redirect" yaml:"login_redirect"`
	ResultWindow  time.Duration `mapstructure:"result_window" yaml:"result_window"`
}

// ActuationConfig is the retry policy handed to the actuator.
type ActuationConfig struct {
	Rounds             int           `mapstructure:"rounds" yaml:"rounds"`
	MethodDelay        time.Duration `mapstructure:"method_delay" yaml:"method_delay"`
	RoundDelay         time.Duration `mapstructure:"round_delay" yaml:"round_delay"`
	ScrollSettle       time.Duration `mapstructure:"scroll_settle" yaml:"scroll_settle"`
	KeystrokeDelay     time.Duration `mapstructure:"keystroke_delay" yaml:"keystroke_delay"`
	DateKeystrokeDelay time.Duration `mapstructure:"date_keystroke_delay" yaml:"date_keystroke_delay"`
}

// MFAConfig covers both sides of the code handoff: the store served by the
// backend and the polling client used by a run.
type MFAConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	TTL            time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Backend        string        `mapstructure:"backend" yaml:"backend"`
	RedisAddr      string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB        int           `mapstructure:"redis_db" yaml:"redis_db"`
	OperatorSecret string        `mapstructure:"operator_secret" yaml:"operator_secret"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig configures the backend HTTP server.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RunTimeout      time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	Executable      string        `mapstructure:"executable" yaml:"executable"`
}

// ArtifactsConfig says where screenshots and per-run logs are written.
type ArtifactsConfig struct {
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	LogDir        string `mapstructure:"log_dir" yaml:"log_dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "availity-rpa")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)

	// -- Portal --
	v.SetDefault("portal.home_url", "https://www.availity.com/")
	v.SetDefault("portal.login_link_href", "https://apps.availity.com/web/onboarding/availity-fr-ui/")
	v.SetDefault("portal.provider_name", "KOLLIPARA, ANURADHA")
	v.SetDefault("portal.place_of_service", "11 - Office")
	v.SetDefault("portal.procedure_quantity", "1")
	v.SetDefault("portal.procedure_quantity_type", "Days")
	v.SetDefault("portal.auth_payer", "AETNA (COMMERCIAL & MEDICARE)")
	v.SetDefault("portal.request_type", "Outpatient Authorization")
	v.SetDefault("portal.service_type", "Health Benefit Plan Coverage")
	v.SetDefault("portal.npi_registry_url", "https://npiregistry.cms.hhs.gov/search")

	// -- Timeouts --
	v.SetDefault("timeouts.element", "20s")
	v.SetDefault("timeouts.long", "60s")
	v.SetDefault("timeouts.very_long", "120s")
	v.SetDefault("timeouts.navigation", "90s")
	v.SetDefault("timeouts.post_load_wait", "2s")
	v.SetDefault("timeouts.login_redirect", "300s")
	v.SetDefault("timeouts.result_window", "120s")

	// -- Actuation --
	v.SetDefault("actuation.rounds", 3)
	v.SetDefault("actuation.method_delay", "500ms")
	v.SetDefault("actuation.round_delay", "1s")
	v.SetDefault("actuation.scroll_settle", "1s")
	v.SetDefault("actuation.keystroke_delay", "100ms")
	v.SetDefault("actuation.date_keystroke_delay", "150ms")

	// -- MFA --
	v.SetDefault("mfa.base_url", "http://localhost:5000")
	v.SetDefault("mfa.poll_interval", "3s")
	v.SetDefault("mfa.wait_timeout", "300s")
	v.SetDefault("mfa.request_timeout", "10s")
	v.SetDefault("mfa.ttl", "300s")
	v.SetDefault("mfa.sweep_interval", "60s")
	v.SetDefault("mfa.backend", "memory")
	v.SetDefault("mfa.redis_addr", "localhost:6379")
	v.SetDefault("mfa.redis_db", 0)

	// -- Server --
	v.SetDefault("server.listen_addr", ":5000")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.run_timeout", "20m")

	// -- Artifacts --
	v.SetDefault("artifacts.screenshot_dir", "screenshots")
	v.SetDefault("artifacts.log_dir", "logs")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The portal credentials and fixed form values keep their historical
	// unprefixed names so existing .env files keep working.
	_ = v.BindEnv("portal.email", "AVAILITY_EMAIL")
	_ = v.BindEnv("portal.password", "AVAILITY_PASSWORD")
	_ = v.BindEnv("portal.provider_name", "DEFAULT_PROVIDER_NAME")
	_ = v.BindEnv("portal.place_of_service", "PLACE_OF_SERVICE")
	_ = v.BindEnv("portal.procedure_quantity", "PROCEDURE_QUANTITY")
	_ = v.BindEnv("portal.procedure_quantity_type", "PROCEDURE_QUANTITY_TYPE")
	_ = v.BindEnv("database.url", "AVAILITY_RPA_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("mfa.operator_secret", "AVAILITY_RPA_OPERATOR_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading ~ in every configured filesystem path.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.Logger.LogFile,
		&c.Artifacts.ScreenshotDir,
		&c.Artifacts.LogDir,
		&c.Browser.ExecPath,
		&c.Server.Executable,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logger.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.Logger.Format)
	}
	if c.Timeouts.Element <= 0 || c.Timeouts.Long <= 0 || c.Timeouts.VeryLong <= 0 {
		return fmt.Errorf("timeouts.element, timeouts.long and timeouts.very_long must be positive durations")
	}
	if c.Actuation.Rounds <= 0 {
		return fmt.Errorf("actuation.rounds must be a positive integer")
	}
	if c.MFA.PollInterval <= 0 {
		return fmt.Errorf("mfa.poll_interval must be a positive duration")
	}
	if c.MFA.WaitTimeout < c.MFA.PollInterval {
		return fmt.Errorf("mfa.wait_timeout must not be shorter than mfa.poll_interval")
	}
	if c.MFA.TTL <= 0 {
		return fmt.Errorf("mfa.ttl must be a positive duration")
	}
	switch c.MFA.Backend {
	case "memory":
	case "redis":
		if c.MFA.RedisAddr == "" {
			return fmt.Errorf("mfa.redis_addr is required when mfa.backend is 'redis'")
		}
	default:
		return fmt.Errorf("mfa.backend must be 'memory' or 'redis', got %q", c.MFA.Backend)
	}
	return nil
}
