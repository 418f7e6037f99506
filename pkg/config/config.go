package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment overrides
const EnvPrefix = "WXEXPORT_"

// Config holds all configuration options for wxexport
type Config struct {
	// Session credentials for mp.weixin.qq.com
	WeChat WeChatConfig `yaml:"wechat" json:"wechat"`

	// Listing API pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Headless Chrome used for PDF rendering
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Index and checkpoint storage
	Storage StorageConfig `yaml:"storage" json:"storage"`
}

// WeChatConfig holds the session cookie and token harvested by the operator
type WeChatConfig struct {
	Cookie    string        `yaml:"cookie" json:"cookie"`
	Token     string        `yaml:"token" json:"token"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// Location is the IANA zone used to derive publish dates. Empty means local time.
	Location string `yaml:"location" json:"location"`
}

// RateLimitConfig holds listing and fetch pacing
type RateLimitConfig struct {
	PageSize          int           `yaml:"page_size" json:"page_size"`
	Cooldown          time.Duration `yaml:"cooldown" json:"cooldown"`
	MinPageDelay      time.Duration `yaml:"min_page_delay" json:"min_page_delay"`
	MaxPageDelay      time.Duration `yaml:"max_page_delay" json:"max_page_delay"`
	SoftPageLimit     int           `yaml:"soft_page_limit" json:"soft_page_limit"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory        string   `yaml:"base_directory" json:"base_directory"`
	CreateAccountFolders bool     `yaml:"create_account_folders" json:"create_account_folders"`
	Formats              []string `yaml:"formats" json:"formats"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	ImageTimeout        time.Duration `yaml:"image_timeout" json:"image_timeout"`
	PDFTimeout          time.Duration `yaml:"pdf_timeout" json:"pdf_timeout"`
	DocxImageWidth      float64       `yaml:"docx_image_width" json:"docx_image_width"`
}

// BrowserConfig holds headless Chrome options
type BrowserConfig struct {
	ExecPath string `yaml:"exec_path" json:"exec_path"`
	Headless bool   `yaml:"headless" json:"headless"`
	NoSandbox bool  `yaml:"no_sandbox" json:"no_sandbox"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	OnComplete  bool `yaml:"on_complete" json:"on_complete"`
	OnRateLimit bool `yaml:"on_rate_limit" json:"on_rate_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// StorageConfig controls the article index and the catalog checkpoint
type StorageConfig struct {
	SaveMetadata   bool   `yaml:"save_metadata" json:"save_metadata"`
	MetadataFormat string `yaml:"metadata_format" json:"metadata_format"`
	CheckpointDir  string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	baseDir := "./downloads"
	if home, err := os.UserHomeDir(); err == nil {
		baseDir = filepath.Join(home, "Downloads")
	}

	return &Config{
		WeChat: WeChatConfig{
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			BaseURL:   "https://mp.weixin.qq.com",
			Timeout:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PageSize:          5,
			Cooldown:          60 * time.Second,
			MinPageDelay:      3 * time.Second,
			MaxPageDelay:      6 * time.Second,
			SoftPageLimit:     40,
			RequestsPerMinute: 0,
		},
		Output: OutputConfig{
			BaseDirectory:        baseDir,
			CreateAccountFolders: true,
			Formats:              []string{"html"},
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 4,
			ImageTimeout:        10 * time.Second,
			PDFTimeout:          60 * time.Second,
			DocxImageWidth:      6.0,
		},
		Browser: BrowserConfig{
			Headless:  true,
			NoSandbox: true,
		},
		Notifications: NotificationConfig{
			Enabled:     true,
			OnComplete:  true,
			OnRateLimit: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			SaveMetadata:   true,
			MetadataFormat: "json",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv(EnvPrefix + "COOKIE"); v != "" {
		c.WeChat.Cookie = v
	}
	if v := os.Getenv(EnvPrefix + "TOKEN"); v != "" {
		c.WeChat.Token = v
	}
	if v := os.Getenv(EnvPrefix + "USER_AGENT"); v != "" {
		c.WeChat.UserAgent = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := os.Getenv(EnvPrefix + "FORMATS"); v != "" {
		c.Output.Formats = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENT_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONCURRENT_DOWNLOADS: %w", EnvPrefix, err))
		} else if n > 0 {
			c.Download.ConcurrentDownloads = n
		}
	}
	if v := os.Getenv(EnvPrefix + "COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCOOLDOWN: %w", EnvPrefix, err))
		} else {
			c.RateLimit.Cooldown = d
		}
	}
	if v := os.Getenv(EnvPrefix + "CHROME_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv(EnvPrefix + "NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"wxexport.yaml",
		".wxexport.yaml",
		".wxexport.yml",
		filepath.Join(home, ".config", "wxexport", "config.yaml"),
		filepath.Join(home, ".wxexport.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Credentials are not
// checked here; the CLI resolves them from the credential store later.
func (c *Config) Validate() error {
	var errs []error

	if c.RateLimit.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.RateLimit.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown cannot be negative"))
	}
	if c.RateLimit.MinPageDelay < 0 || c.RateLimit.MaxPageDelay < c.RateLimit.MinPageDelay {
		errs = append(errs, errors.New("page delay range is invalid"))
	}
	if c.RateLimit.SoftPageLimit < 0 {
		errs = append(errs, errors.New("soft page limit cannot be negative"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 16 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 16"))
	}
	if c.Download.ImageTimeout <= 0 {
		errs = append(errs, errors.New("image timeout must be positive"))
	}
	if c.Download.PDFTimeout <= 0 {
		errs = append(errs, errors.New("pdf timeout must be positive"))
	}
	if c.Download.DocxImageWidth <= 0 {
		errs = append(errs, errors.New("docx image width must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	validFormats := map[string]bool{"html": true, "pdf": true, "docx": true}
	for _, f := range c.Output.Formats {
		if !validFormats[strings.ToLower(f)] {
			errs = append(errs, fmt.Errorf("unknown output format %q", f))
		}
	}

	if c.WeChat.Location != "" {
		if _, err := time.LoadLocation(c.WeChat.Location); err != nil {
			errs = append(errs, fmt.Errorf("invalid location: %w", err))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	switch strings.ToLower(c.Storage.MetadataFormat) {
	case "json", "yaml":
	default:
		errs = append(errs, errors.New("metadata format must be json or yaml"))
	}

	return errors.Join(errs...)
}

// TimeLocation resolves the configured publish-date zone
func (c *Config) TimeLocation() *time.Location {
	if c.WeChat.Location == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.WeChat.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["cookie"].(string); ok && v != "" {
		c.WeChat.Cookie = v
	}
	if v, ok := flags["token"].(string); ok && v != "" {
		c.WeChat.Token = v
	}
	if v, ok := flags["base-directory"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["formats"].([]string); ok && len(v) > 0 {
		c.Output.Formats = v
	}
	if v, ok := flags["concurrent-downloads"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["cooldown"].(time.Duration); ok && v > 0 {
		c.RateLimit.Cooldown = v
	}
	if v, ok := flags["enabled"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".wxexport.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
