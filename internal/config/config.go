package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LuSP19/xkcd-comics/internal/api"
	"github.com/LuSP19/xkcd-comics/internal/downloader"
	"github.com/LuSP19/xkcd-comics/internal/logging"
	"github.com/LuSP19/xkcd-comics/pkg/models"
)

var ErrInvalid = errors.New("invalid configuration")

// Keys double as environment variable names (upper-cased) and .env entries.
const (
	KeyAccessToken   = "vk_access_token"
	KeyGroupID       = "comics_group_id"
	KeyAPIVersion    = "vk_api_version"
	KeyVKBaseURL     = "vk_base_url"
	KeyXKCDBaseURL   = "xkcd_base_url"
	KeyLogLevel      = "xkcd_log_level"
	KeyLogFormat     = "xkcd_log_format"
	KeyHTTPTimeout   = "xkcd_http_timeout"
	KeyMaxImageBytes = "xkcd_max_image_bytes"
)

const DefaultEnvFile = ".env"

type Config struct {
	Credentials   models.Credentials
	VKBaseURL     string
	XKCDBaseURL   string
	LogLevel      string
	LogFormat     string
	HTTPTimeout   time.Duration
	MaxImageBytes int64
}

type LoadOptions struct {
	// EnvFile is a dotenv file read before the process environment, which
	// takes precedence over it. A missing file is skipped unless Required.
	EnvFile  string
	Required bool
	// Overrides win over every other source; the CLI fills it from flags.
	Overrides map[string]any
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	v.SetDefault(KeyAPIVersion, api.DefaultAPIVersion)
	v.SetDefault(KeyVKBaseURL, api.VKBaseURL)
	v.SetDefault(KeyXKCDBaseURL, api.XKCDBaseURL)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyHTTPTimeout, api.DefaultTimeout)
	v.SetDefault(KeyMaxImageBytes, downloader.DefaultMaxBytes)

	if opts.EnvFile != "" {
		if err := readEnvFile(v, opts.EnvFile, opts.Required); err != nil {
			return Config{}, err
		}
	}
	v.AutomaticEnv()

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg := Config{
		Credentials: models.Credentials{
			AccessToken: strings.TrimSpace(v.GetString(KeyAccessToken)),
			APIVersion:  strings.TrimSpace(v.GetString(KeyAPIVersion)),
		},
		VKBaseURL:     v.GetString(KeyVKBaseURL),
		XKCDBaseURL:   v.GetString(KeyXKCDBaseURL),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
		HTTPTimeout:   v.GetDuration(KeyHTTPTimeout),
		MaxImageBytes: v.GetInt64(KeyMaxImageBytes),
	}

	groupID := strings.TrimSpace(v.GetString(KeyGroupID))
	if groupID == "" {
		return Config{}, fmt.Errorf("%w: %s is not set", ErrInvalid, strings.ToUpper(KeyGroupID))
	}
	id, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, strings.ToUpper(KeyGroupID), groupID)
	}
	cfg.Credentials.GroupID = id

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readEnvFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("%w: env file: %v", ErrInvalid, err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	var problems []string
	if cfg.Credentials.GroupID < 1 {
		problems = append(problems, strings.ToUpper(KeyGroupID)+" must be a positive group id")
	}
	if cfg.Credentials.AccessToken == "" {
		problems = append(problems, strings.ToUpper(KeyAccessToken)+" is not set")
	}
	if cfg.Credentials.APIVersion == "" {
		problems = append(problems, strings.ToUpper(KeyAPIVersion)+" is empty")
	}
	if cfg.HTTPTimeout <= 0 {
		problems = append(problems, "http timeout must be positive")
	}
	if cfg.MaxImageBytes <= 0 {
		problems = append(problems, "max image size must be positive")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if !validFormat(cfg.LogFormat) {
		problems = append(problems, fmt.Sprintf("invalid log format %q: must be one of %v", cfg.LogFormat, logging.Formats))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func validFormat(format string) bool {
	for _, f := range logging.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}
