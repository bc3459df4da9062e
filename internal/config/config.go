// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/franz/api/schemas"
)

// EnvPrefix is prepended to every environment override, e.g. FRANZ_SERVER_PORT.
const EnvPrefix = "FRANZ"

// Interface exposes read access to each configuration section.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Engine() EngineConfig
	Capture() CaptureConfig
	Executor() ExecutorConfig
	Browser() BrowserConfig
	Inference() InferenceConfig
	Store() StoreConfig
	UI() map[string]interface{}
}

// Config is the root configuration object, populated by viper.
type Config struct {
	LoggerCfg    LoggerConfig           `mapstructure:"logger" yaml:"logger"`
	ServerCfg    ServerConfig           `mapstructure:"server" yaml:"server"`
	EngineCfg    EngineConfig           `mapstructure:"engine" yaml:"engine"`
	CaptureCfg   CaptureConfig          `mapstructure:"capture" yaml:"capture"`
	ExecutorCfg  ExecutorConfig         `mapstructure:"executor" yaml:"executor"`
	BrowserCfg   BrowserConfig          `mapstructure:"browser" yaml:"browser"`
	InferenceCfg InferenceConfig        `mapstructure:"inference" yaml:"inference"`
	StoreCfg     StoreConfig            `mapstructure:"store" yaml:"store"`
	UICfg        map[string]interface{} `mapstructure:"ui" yaml:"ui"`
}

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Capture() CaptureConfig     { return c.CaptureCfg }
func (c *Config) Executor() ExecutorConfig   { return c.ExecutorCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Inference() InferenceConfig { return c.InferenceCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }
func (c *Config) UI() map[string]interface{} { return c.UICfg }

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

// ColorConfig names the terminal color used for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the sync protocol HTTP server.
type ServerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	MinImageB64Len    int           `mapstructure:"min_image_b64_len" yaml:"min_image_b64_len"`
	PanelPath         string        `mapstructure:"panel_path" yaml:"panel_path"`
	Compress          bool          `mapstructure:"compress" yaml:"compress"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL returns the URL clients use to reach the server.
func (s ServerConfig) BaseURL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// EngineConfig configures the turn loop.
type EngineConfig struct {
	BootEnabled          bool          `mapstructure:"boot_enabled" yaml:"boot_enabled"`
	BootText             string        `mapstructure:"boot_text" yaml:"boot_text"`
	WorkerConcurrency    int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	InferenceMinInterval time.Duration `mapstructure:"inference_min_interval" yaml:"inference_min_interval"`
}

// CropConfig is a rectangle in normalized [0,1000] space.
type CropConfig struct {
	X1 int `mapstructure:"x1" yaml:"x1"`
	Y1 int `mapstructure:"y1" yaml:"y1"`
	X2 int `mapstructure:"x2" yaml:"x2"`
	Y2 int `mapstructure:"y2" yaml:"y2"`
}

// CaptureConfig configures screenshot geometry. Width and height of zero fall
// back to ScalePercent of the cropped region.
type CaptureConfig struct {
	Crop         CropConfig    `mapstructure:"crop" yaml:"crop"`
	Width        int           `mapstructure:"width" yaml:"width"`
	Height       int           `mapstructure:"height" yaml:"height"`
	ScalePercent int           `mapstructure:"scale_percent" yaml:"scale_percent"`
	Delay        time.Duration `mapstructure:"delay" yaml:"delay"`
}

// ExecutorConfig controls how actions are replayed as mouse input.
type ExecutorConfig struct {
	PhysicalExecution bool          `mapstructure:"physical_execution" yaml:"physical_execution"`
	ActionDelay       time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
	DragSteps         int           `mapstructure:"drag_steps" yaml:"drag_steps"`
	DragStepDelay     time.Duration `mapstructure:"drag_step_delay" yaml:"drag_step_delay"`
	ClickHold         time.Duration `mapstructure:"click_hold" yaml:"click_hold"`
	DoubleClickGap    time.Duration `mapstructure:"double_click_gap" yaml:"double_click_gap"`
}

// BrowserConfig configures the headless browser the loop drives.
type BrowserConfig struct {
	Headless        bool             `mapstructure:"headless" yaml:"headless"`
	TargetURL       string           `mapstructure:"target_url" yaml:"target_url"`
	Viewport        schemas.Viewport `mapstructure:"viewport" yaml:"viewport"`
	IgnoreTLSErrors bool             `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string           `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string         `mapstructure:"args" yaml:"args"`
	LaunchTimeout   time.Duration    `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	// OpenPanel opens the annotation panel in a second tab once the sync
	// server is listening.
	OpenPanel bool `mapstructure:"open_panel" yaml:"open_panel"`
}

// LLMProvider selects the inference backend.
type LLMProvider string

// DefaultOpenAIEndpoint points at a local OpenAI-compatible model server.
const DefaultOpenAIEndpoint = "http://127.0.0.1:1235/v1"

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// InferenceConfig configures the vision model call. A zero Timeout means the
// call is bounded only by shutdown.
type InferenceConfig struct {
	Provider     LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model        string        `mapstructure:"model" yaml:"model"`
	APIKey       string        `mapstructure:"api_key" yaml:"-"`
	Temperature  float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP         float64       `mapstructure:"top_p" yaml:"top_p"`
	MaxTokens    int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SystemPrompt string        `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// StoreConfig selects where turn artifacts are recorded.
type StoreConfig struct {
	Type        string `mapstructure:"type" yaml:"type"`
	RunsDir     string `mapstructure:"runs_dir" yaml:"runs_dir"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"-"`
}

// NewDefaultConfig returns a configuration populated only with defaults.
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
	v.SetDefault("logger.service_name", "franz")
	v.SetDefault("logger.log_file", "franz.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Server --
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 1234)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_connections", 256)
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.min_image_b64_len", 100)
	v.SetDefault("server.panel_path", "")
	v.SetDefault("server.compress", true)

	// -- Engine --
	v.SetDefault("engine.boot_enabled", true)
	v.SetDefault("engine.boot_text", DefaultBootText)
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.inference_min_interval", "0s")

	// -- Capture --
	v.SetDefault("capture.crop.x1", 0)
	v.SetDefault("capture.crop.y1", 0)
	v.SetDefault("capture.crop.x2", 1000)
	v.SetDefault("capture.crop.y2", 1000)
	v.SetDefault("capture.width", 512)
	v.SetDefault("capture.height", 288)
	v.SetDefault("capture.scale_percent", 100)
	v.SetDefault("capture.delay", "0s")

	// -- Executor --
	v.SetDefault("executor.physical_execution", true)
	v.SetDefault("executor.action_delay", "50ms")
	v.SetDefault("executor.drag_steps", 20)
	v.SetDefault("executor.drag_step_delay", "10ms")
	v.SetDefault("executor.click_hold", "30ms")
	v.SetDefault("executor.double_click_gap", "60ms")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.target_url", "about:blank")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.open_panel", true)

	// -- Inference --
	v.SetDefault("inference.provider", string(ProviderOpenAI))
	v.SetDefault("inference.endpoint", DefaultOpenAIEndpoint)
	v.SetDefault("inference.model", "huihui-qwen3-vl-2b-instruct-abliterated")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.temperature", 0.7)
	v.SetDefault("inference.top_p", 0.9)
	v.SetDefault("inference.max_tokens", 1000)
	v.SetDefault("inference.timeout", "0s")
	v.SetDefault("inference.system_prompt", DefaultSystemPrompt)

	// -- Store --
	v.SetDefault("store.type", "fs")
	v.SetDefault("store.runs_dir", "runs")
	v.SetDefault("store.postgres_url", "")

	// -- UI --
	v.SetDefault("ui", DefaultUIConfig())
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Secrets are commonly exported under the provider's own names.
	_ = v.BindEnv("inference.api_key", EnvPrefix+"_INFERENCE_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("store.postgres_url", EnvPrefix+"_STORE_POSTGRES_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.InferenceCfg.Provider == ProviderGemini && cfg.InferenceCfg.APIKey == "" {
		cfg.InferenceCfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ServerCfg.Port <= 0 || c.ServerCfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.ServerCfg.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be a positive integer")
	}
	if c.ServerCfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be a positive integer")
	}
	if c.ServerCfg.MinImageB64Len < 0 {
		return fmt.Errorf("server.min_image_b64_len cannot be negative")
	}
	if c.EngineCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.EngineCfg.InferenceMinInterval < 0 {
		return fmt.Errorf("engine.inference_min_interval cannot be negative")
	}
	if err := c.CaptureCfg.Validate(); err != nil {
		return fmt.Errorf("capture configuration invalid: %w", err)
	}
	if err := c.ExecutorCfg.Validate(); err != nil {
		return fmt.Errorf("executor configuration invalid: %w", err)
	}
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive")
	}
	if err := c.InferenceCfg.Validate(); err != nil {
		return fmt.Errorf("inference configuration invalid: %w", err)
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the capture geometry.
func (c *CaptureConfig) Validate() error {
	for _, v := range []int{c.Crop.X1, c.Crop.Y1, c.Crop.X2, c.Crop.Y2} {
		if v < 0 || v > schemas.CoordMax {
			return fmt.Errorf("crop coordinates must be within [0,%d]", schemas.CoordMax)
		}
	}
	if c.Crop.X1 == c.Crop.X2 || c.Crop.Y1 == c.Crop.Y2 {
		return fmt.Errorf("crop must have a non-zero area")
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("width and height cannot be negative")
	}
	if c.ScalePercent <= 0 || c.ScalePercent > 400 {
		return fmt.Errorf("scale_percent must be between 1 and 400")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	return nil
}

// Validate checks the input pacing settings.
func (e *ExecutorConfig) Validate() error {
	if e.DragSteps <= 0 {
		return fmt.Errorf("drag_steps must be a positive integer")
	}
	if e.ActionDelay < 0 || e.DragStepDelay < 0 || e.ClickHold < 0 || e.DoubleClickGap < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	return nil
}

// Validate checks the inference settings.
func (i *InferenceConfig) Validate() error {
	switch i.Provider {
	case ProviderOpenAI:
		if i.Endpoint == "" {
			return fmt.Errorf("endpoint is required for the openai provider")
		}
	case ProviderGemini:
		if i.APIKey == "" {
			return fmt.Errorf("api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unsupported provider %q", i.Provider)
	}
	if i.Model == "" {
		return fmt.Errorf("model is required")
	}
	if i.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be a positive integer")
	}
	if i.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// Validate checks the recorder selection.
func (s *StoreConfig) Validate() error {
	switch s.Type {
	case "fs":
		if s.RunsDir == "" {
			return fmt.Errorf("runs_dir is required for the fs store")
		}
	case "postgres":
		if s.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres store")
		}
	case "none", "":
	default:
		return fmt.Errorf("unsupported store type %q", s.Type)
	}
	return nil
}
