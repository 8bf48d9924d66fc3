// File: internal/config/config.go
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Engine() EngineConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Engine Setters
	SetEngineDefaultTimeout(d time.Duration)
	SetEngineSlowMo(d time.Duration)
}

// Config holds the entire application configuration.
// Sections are exported so viper can decode into them; callers should prefer the getters.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	EngineCfg  EngineConfig  `mapstructure:"engine" yaml:"engine"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Engine() EngineConfig   { return c.EngineCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }

func (c *Config) SetEngineDefaultTimeout(d time.Duration) { c.EngineCfg.DefaultTimeout = d }
func (c *Config) SetEngineSlowMo(d time.Duration)         { c.EngineCfg.SlowMo = d }

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

// BrowserConfig holds settings for the Chrome instance driven over CDP.
type BrowserConfig struct {
	Headless        bool            `mapstructure:"headless" yaml:"headless"`
	ExecPath        string          `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir     string          `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	IgnoreTLSErrors bool            `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string        `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int  `mapstructure:"viewport" yaml:"viewport"`
	Emulation       EmulationConfig `mapstructure:"emulation" yaml:"emulation"`
	// RemoteURL attaches to an already running browser's DevTools endpoint
	// instead of launching one. The launch settings above are then ignored.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
}

// EmulationConfig pins the locale, timezone and user agent the page sees.
// Calendar widgets render month names and "today" from these, so tests want them fixed.
type EmulationConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	Locale    string `mapstructure:"locale" yaml:"locale"`
	Timezone  string `mapstructure:"timezone" yaml:"timezone"`
}

// NetworkConfig tunes navigation and quiescence detection.
type NetworkConfig struct {
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration     `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
}

// EngineConfig controls the interaction engine: wait defaults, pacing and step budgets.
type EngineConfig struct {
	DefaultTimeout       time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	SlowMo               time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	PollInterval         time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay          time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PostConditionTimeout time.Duration `mapstructure:"post_condition_timeout" yaml:"post_condition_timeout"`
	YearPagingBudget     int           `mapstructure:"year_paging_budget" yaml:"year_paging_budget"`
	HeaderStepBudget     int           `mapstructure:"header_step_budget" yaml:"header_step_budget"`
	PlaceholderPattern   string        `mapstructure:"placeholder_pattern" yaml:"placeholder_pattern"`
	PlaceholderSentinels []string      `mapstructure:"placeholder_sentinels" yaml:"placeholder_sentinels"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})
	v.SetDefault("browser.emulation.enabled", false)
	v.SetDefault("browser.emulation.locale", "en-GB")
	v.SetDefault("browser.emulation.timezone", "Europe/London")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "500ms")

	// -- Engine --
	v.SetDefault("engine.default_timeout", "30s")
	v.SetDefault("engine.slow_mo", "0s")
	v.SetDefault("engine.poll_interval", "100ms")
	v.SetDefault("engine.settle_delay", "250ms")
	v.SetDefault("engine.post_condition_timeout", "5s")
	v.SetDefault("engine.year_paging_budget", 30)
	v.SetDefault("engine.header_step_budget", 40)
	v.SetDefault("engine.placeholder_pattern", `(?i)^\s*please\s+select`)
	v.SetDefault("engine.placeholder_sentinels", []string{"Select Address"})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Paths may be written as ~/something in config files.
	for _, p := range []*string{&cfg.LoggerCfg.LogFile, &cfg.BrowserCfg.UserDataDir, &cfg.BrowserCfg.ExecPath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("could not expand path '%s': %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	if c.NetworkCfg.NavigationTimeout < 0 {
		return fmt.Errorf("network.navigation_timeout must not be negative")
	}
	return nil
}

// Validate checks the EngineConfig settings.
func (e *EngineConfig) Validate() error {
	if e.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be a positive duration")
	}
	if e.SlowMo < 0 {
		return fmt.Errorf("slow_mo must not be negative")
	}
	if e.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if e.SettleDelay < 0 || e.PostConditionTimeout < 0 {
		return fmt.Errorf("settle_delay and post_condition_timeout must not be negative")
	}
	if e.YearPagingBudget <= 0 || e.HeaderStepBudget <= 0 {
		return fmt.Errorf("year_paging_budget and header_step_budget must be greater than 0")
	}
	if _, err := regexp.Compile(e.PlaceholderPattern); err != nil {
		return fmt.Errorf("placeholder_pattern is not a valid regular expression: %w", err)
	}
	return nil
}
