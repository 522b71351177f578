package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envDataDir             = "PS_DATA_DIR"
	envListenPort          = "PS_LISTEN_PORT"
	envHealthPort          = "PS_HEALTH_PORT"
	envMetricsPort         = "PS_METRICS_PORT"
	envCheckInterval       = "PS_CHECK_INTERVAL"
	envHeartbeatTimeout    = "PS_HEARTBEAT_TIMEOUT"
	envDownBackdate        = "PS_DOWN_BACKDATE"
	envScheduleRefresh     = "PS_SCHEDULE_REFRESH_INTERVAL"
	envScheduleSourcesPath = "PS_SCHEDULE_SOURCES"
	envTimezone            = "PS_TIMEZONE"
	envTelegramToken       = "PS_TELEGRAM_BOT_TOKEN"
	envTelegramChatID      = "PS_TELEGRAM_CHAT_ID"
	envSlackWebhookURL     = "PS_SLACK_WEBHOOK_URL"
	envWebhookURL          = "PS_WEBHOOK_URL"
	envWebhookTemplate     = "PS_WEBHOOK_TEMPLATE"
	envDryRun              = "PS_DRY_RUN"
	envLogLevel            = "PS_LOG_LEVEL"
)

const (
	defaultDataDir          = "."
	defaultListenPort       = 8889
	defaultCheckInterval    = 60 * time.Second
	defaultHeartbeatTimeout = 180 * time.Second
	defaultDownBackdate     = 60 * time.Second
	defaultScheduleRefresh  = 10 * time.Minute
	defaultTimezone         = "Europe/Kyiv"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	DataDir             string
	ListenPort          int
	HealthPort          int
	MetricsPort         int
	CheckInterval       time.Duration
	HeartbeatTimeout    time.Duration
	DownBackdate        time.Duration
	ScheduleRefresh     time.Duration
	ScheduleSourcesPath string
	Timezone            string
	TelegramBotToken    string
	TelegramChatID      string
	SlackWebhookURL     string
	WebhookURL          string
	WebhookTemplate     string
	DryRun              bool
	LogLevel            string
}

// Load reads configuration from environment variables and a local .env file
// if present. Existing environment variables take precedence over values in
// .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir:          defaultDataDir,
		ListenPort:       defaultListenPort,
		CheckInterval:    defaultCheckInterval,
		HeartbeatTimeout: defaultHeartbeatTimeout,
		DownBackdate:     defaultDownBackdate,
		ScheduleRefresh:  defaultScheduleRefresh,
		Timezone:         defaultTimezone,
	}

	if value, ok := lookupTrimmed(envDataDir); ok {
		cfg.DataDir = value
	}

	var err error
	if cfg.ListenPort, err = loadPort(envListenPort, cfg.ListenPort); err != nil {
		return Config{}, err
	}
	if cfg.HealthPort, err = loadPort(envHealthPort, cfg.HealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = loadPort(envMetricsPort, cfg.MetricsPort); err != nil {
		return Config{}, err
	}

	if cfg.CheckInterval, err = loadDuration(envCheckInterval, cfg.CheckInterval); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatTimeout, err = loadDuration(envHeartbeatTimeout, cfg.HeartbeatTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DownBackdate, err = loadDuration(envDownBackdate, cfg.DownBackdate); err != nil {
		return Config{}, err
	}
	if cfg.ScheduleRefresh, err = loadDuration(envScheduleRefresh, cfg.ScheduleRefresh); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envScheduleSourcesPath); ok {
		cfg.ScheduleSourcesPath = value
	}
	if value, ok := lookupTrimmed(envTimezone); ok {
		cfg.Timezone = value
	}
	if value, ok := lookupTrimmed(envTelegramToken); ok {
		cfg.TelegramBotToken = value
	}
	if value, ok := lookupTrimmed(envTelegramChatID); ok {
		cfg.TelegramChatID = value
	}
	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}
	if value, ok := lookupTrimmed(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}
	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}
	if value, ok := lookupTrimmed(envDryRun); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envDryRun, err)
		}
		cfg.DryRun = parsed
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func loadDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", key)
	}
	return parsed, nil
}

func loadPort(key string, fallback int) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed < 0 || parsed > 65535 {
		return 0, fmt.Errorf("%s must be a valid port", key)
	}
	return parsed, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
