// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credentials holds the broker login parameters. The TOTP secret is the
// shared secret the one-time code is derived from, not the code itself.
type Credentials struct {
	UserID     string `mapstructure:"user_id"`
	Password   string `mapstructure:"password"`
	TOTPSecret string `mapstructure:"totp_secret"`
	VendorCode string `mapstructure:"vendor_code"`
	APIKey     string `mapstructure:"api_key"`
	IMEI       string `mapstructure:"imei"`
}

type Config struct {
	Credentials     Credentials `mapstructure:"credentials"`
	APIURL          string      `mapstructure:"api_url"`
	WebSocketURL    string      `mapstructure:"websocket_url"`
	StreamQuotes    bool        `mapstructure:"stream_quotes"`
	Exchange        string      `mapstructure:"exchange"`
	StopLossPercent float64     `mapstructure:"stop_loss_percent"`
	TargetPercent   float64     `mapstructure:"target_percent"`
	PollInterval    int         `mapstructure:"poll_interval"`    // seconds between position fetches
	MonitorInterval int         `mapstructure:"monitor_interval"` // seconds between quote checks
	SessionEnd      string      `mapstructure:"session_end"`      // "HH:MM" local time
	ShutdownTimeout int         `mapstructure:"shutdown_timeout"` // seconds to wait for monitors
	DebugLogging    bool        `mapstructure:"debug_logging"`
	RulesFile       string      `mapstructure:"rules_file"`
	TelegramToken   string      `mapstructure:"telegram_token"`
	TelegramChatID  int64       `mapstructure:"telegram_chat_id"`
}

const (
	DefaultAPIURL          = "https://api.shoonya.com/NorenWClientTP/"
	DefaultWebSocketURL    = "wss://api.shoonya.com/NorenWS/"
	DefaultExchange        = "NFO"
	DefaultStopLossPercent = 2.0
	DefaultTargetPercent   = 5.0
	DefaultPollInterval    = 5
	DefaultMonitorInterval = 5
	DefaultSessionEnd      = "15:25"
	DefaultShutdownTimeout = 30
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"api_url":           DefaultAPIURL,
		"websocket_url":     DefaultWebSocketURL,
		"exchange":          DefaultExchange,
		"stop_loss_percent": DefaultStopLossPercent,
		"target_percent":    DefaultTargetPercent,
		"poll_interval":     DefaultPollInterval,
		"monitor_interval":  DefaultMonitorInterval,
		"session_end":       DefaultSessionEnd,
		"shutdown_timeout":  DefaultShutdownTimeout,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.Credentials.UserID == "" {
		return errors.New("missing credentials.user_id in configuration")
	}
	if cfg.Credentials.Password == "" {
		return errors.New("missing credentials.password in configuration")
	}
	if cfg.Credentials.TOTPSecret == "" {
		return errors.New("missing credentials.totp_secret in configuration")
	}
	if cfg.Credentials.APIKey == "" {
		return errors.New("missing credentials.api_key in configuration")
	}
	if err := validateURL(cfg.APIURL, "http"); err != nil {
		return errors.New("invalid API URL")
	}
	if cfg.WebSocketURL != "" {
		if err := validateURL(cfg.WebSocketURL, "ws"); err != nil {
			return errors.New("invalid WebSocket URL protocol")
		}
	}
	if cfg.StreamQuotes && cfg.WebSocketURL == "" {
		return errors.New("stream_quotes requires websocket_url")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.StopLossPercent < 0 {
		return errors.New("invalid stop_loss_percent")
	}
	if cfg.TargetPercent < 0 {
		return errors.New("invalid target_percent")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("invalid poll_interval")
	}
	if cfg.MonitorInterval <= 0 {
		return errors.New("invalid monitor_interval")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("invalid shutdown_timeout")
	}
	if _, err := ParseSessionEnd(cfg.SessionEnd); err != nil {
		return errors.New("invalid session_end, expected HH:MM")
	}
	return nil
}

// ParseSessionEnd resolves an "HH:MM" cutoff to today's wall-clock instant.
func ParseSessionEnd(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, err
	}
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("EXITWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Secrets may live in the environment instead of the config file.
	if s := v.GetString("USER_ID"); s != "" {
		cfg.Credentials.UserID = s
	}
	if s := v.GetString("PASSWORD"); s != "" {
		cfg.Credentials.Password = s
	}
	if s := v.GetString("TOTP_SECRET"); s != "" {
		cfg.Credentials.TOTPSecret = s
	}
	if s := v.GetString("API_KEY"); s != "" {
		cfg.Credentials.APIKey = s
	}
	if s := v.GetString("TELEGRAM_TOKEN"); s != "" {
		cfg.TelegramToken = s
	}
	return nil
}
