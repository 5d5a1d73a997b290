package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	// Bundled zone database so TIMEZONE works on hosts without tzdata.
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is built once at startup and shared read-only by every component.
type Config struct {
	SourceURL      string `mapstructure:"csv_url" validate:"required,url"`
	SourceFormat   string `mapstructure:"source_format" validate:"oneof=csv atom"`
	SourceEncoding string `mapstructure:"source_encoding" validate:"oneof=utf-8 shift_jis"`
	FeedBaseURL    string `mapstructure:"atom_url" validate:"omitempty,url"`
	FeedKey        string `mapstructure:"atom_key"`

	EachWebhookURL  string `mapstructure:"web_hook_url_each" validate:"required,url"`
	DailyWebhookURL string `mapstructure:"web_hook_url_daily" validate:"required,url"`
	ErrorWebhookURL string `mapstructure:"web_hook_url_error" validate:"omitempty,url"`

	LoopInterval int    `mapstructure:"loop_interval" validate:"min=1,max=59"`
	DailyHour    int    `mapstructure:"daily_hour" validate:"min=0,max=23"`
	DailyMinutes int    `mapstructure:"daily_minutes" validate:"min=0,max=59"`
	DigestDays   int    `mapstructure:"digest_days" validate:"min=1"`
	Timezone     string `mapstructure:"timezone" validate:"required"`

	StorageDriver string `mapstructure:"storage_driver" validate:"oneof=file sqlite"`
	SinceDBPath   string `mapstructure:"sincedb_path" validate:"required"`
	SnapshotPath  string `mapstructure:"snapshot_path"`

	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"min=1s"`
	HTTPAddr    string        `mapstructure:"http_addr"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFile  string `mapstructure:"log_file"`

	Location *time.Location `mapstructure:"-"`
}

var defaults = map[string]any{
	"csv_url":            "",
	"source_format":      "csv",
	"source_encoding":    "utf-8",
	"atom_url":           "",
	"atom_key":           "",
	"web_hook_url_each":  "",
	"web_hook_url_daily": "",
	"web_hook_url_error": "",
	"loop_interval":      5,
	"daily_hour":         9,
	"daily_minutes":      0,
	"digest_days":        3,
	"timezone":           "Asia/Tokyo",
	"storage_driver":     "file",
	"sincedb_path":       "since_db.txt",
	"snapshot_path":      "issues.csv",
	"http_timeout":       "10s",
	"http_addr":          "",
	"log_level":          "info",
	"log_file":           "",
}

// Load reads defaults, then the optional dotenv file at path, then the
// process environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.SourceFormat = strings.ToLower(strings.TrimSpace(cfg.SourceFormat))
	cfg.SourceEncoding = strings.ToLower(strings.TrimSpace(cfg.SourceEncoding))
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.ErrorWebhookURL == "" {
		cfg.ErrorWebhookURL = cfg.EachWebhookURL
	}
	if cfg.FeedBaseURL != "" && !strings.HasSuffix(cfg.FeedBaseURL, "/") {
		cfg.FeedBaseURL += "/"
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// Validate checks field constraints and reports every failing field at once.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value: %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FeedEnabled reports whether the per-issue feed fallback can be used.
func (c *Config) FeedEnabled() bool {
	return c.FeedBaseURL != ""
}

// DefaultPath returns the dotenv file used when none is given on the command line.
func DefaultPath() string {
	if p := os.Getenv("REDMINE_NOTIFY_ENV"); p != "" {
		return p
	}
	return ".env"
}
