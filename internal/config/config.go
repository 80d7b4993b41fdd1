// Package config loads runtime settings from the environment via viper,
// in the manner of Rewind's configuration package.
package config

import (
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	WatchDir        string `mapstructure:"WATCH_DIR" validate:"required"`
	DestinationDir  string `mapstructure:"DESTINATION_DIR" validate:"required"`
	ErrorDir        string `mapstructure:"ERROR_DIR"`
	VideoExtensions string `mapstructure:"VIDEO_EXTENSIONS"`

	DatabaseDSN string `mapstructure:"DATABASE_DSN" validate:"required"`

	CatalogBaseURL    string `mapstructure:"CATALOG_BASE_URL" validate:"required"`
	CatalogToken      string `mapstructure:"CATALOG_TOKEN"`
	CatalogSearchOrder string `mapstructure:"CATALOG_SEARCH_ORDER"`

	MediaServerBaseURL      string `mapstructure:"MEDIA_SERVER_BASE_URL" validate:"required"`
	MediaServerAPIKey       string `mapstructure:"MEDIA_SERVER_API_KEY"`
	MediaServerUserID       string `mapstructure:"MEDIA_SERVER_USER_ID"`
	MediaServerParentFolder string `mapstructure:"MEDIA_SERVER_PARENT_FOLDER_ID"`

	StabilityCheckIntervalSeconds int `mapstructure:"STABILITY_CHECK_INTERVAL_SECONDS"`
	StabilityMinStableChecks      int `mapstructure:"STABILITY_MIN_STABLE_CHECKS"`

	MaxRetries int `mapstructure:"MAX_RETRIES"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`
}

// VideoExtensionSet returns VideoExtensions split on commas, normalized to
// a lower-case leading-dot form.
func (c *Config) VideoExtensionSet() map[string]bool {
	set := map[string]bool{}
	for _, ext := range strings.Split(c.VideoExtensions, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

// SearchOrder returns CatalogSearchOrder split on commas in priority order.
func (c *Config) SearchOrder() []string {
	var sources []string
	for _, s := range strings.Split(c.CatalogSearchOrder, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			sources = append(sources, s)
		}
	}
	return sources
}

// bindEnv registers every mapstructure-tagged field with viper so
// AutomaticEnv picks it up even before any value is set.
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" {
			viper.BindEnv(tag)
		}
	}
}

// Load reads configuration from the environment, applies defaults, and
// validates required fields.
func Load() (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	viper.SetDefault("ERROR_DIR", "")
	viper.SetDefault("VIDEO_EXTENSIONS", ".mp4,.mkv,.avi,.wmv")
	viper.SetDefault("CATALOG_SEARCH_ORDER", "missav")
	viper.SetDefault("MEDIA_SERVER_USER_ID", "")
	viper.SetDefault("STABILITY_CHECK_INTERVAL_SECONDS", 5)
	viper.SetDefault("STABILITY_MIN_STABLE_CHECKS", 2)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	log.Printf("config: loaded (watch_dir=%s destination_dir=%s)", cfg.WatchDir, cfg.DestinationDir)
	return &cfg, nil
}
