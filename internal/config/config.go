package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the vtlr application.
// Values are loaded from environment variables; see the validate subcommand
// for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	// Downstream services the dispatcher talks to.
	TTSServiceURL      string        `json:"tts_service_url"`
	PlaybackServiceURL string        `json:"playback_service_url"`
	DeviceServiceURL   string        `json:"device_service_url"`
	DownstreamTimeout  time.Duration `json:"-"`
	DownstreamTimeoutStr string      `json:"downstream_timeout"`

	// DesignatedRecipient is the owner whose devices receive
	// whole-schedule reminders. Empty means each schedule's own owner.
	DesignatedRecipient string `json:"designated_recipient,omitempty"`

	DefaultLanguage string `json:"default_language"`
	Timezone        string `json:"timezone"`

	// OneTimePastPolicy: "reject" refuses one-time schedules whose moment
	// already passed; "allow" accepts them.
	OneTimePastPolicy string `json:"one_time_past_policy"`

	DispatchWorkers int `json:"dispatch_workers"`
	FiringBusBuffer int `json:"firing_bus_buffer"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	AnalyticsWindow       time.Duration `json:"-"`
	AnalyticsWindowStr    string        `json:"analytics_window"`
	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		TickIntervalStr:        os.Getenv("TICK_INTERVAL"),
		DBOpTimeoutStr:         os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:   os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:   os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr: os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:            os.Getenv("METRICS_PATH"),
		TTSServiceURL:          os.Getenv("TTS_SERVICE_URL"),
		PlaybackServiceURL:     os.Getenv("PLAYBACK_SERVICE_URL"),
		DeviceServiceURL:       os.Getenv("DEVICE_SERVICE_URL"),
		DownstreamTimeoutStr:   os.Getenv("DOWNSTREAM_TIMEOUT"),
		DesignatedRecipient:    os.Getenv("DESIGNATED_RECIPIENT"),
		DefaultLanguage:        os.Getenv("DEFAULT_LANGUAGE"),
		Timezone:               os.Getenv("TIMEZONE"),
		OneTimePastPolicy:      os.Getenv("ONE_TIME_PAST_POLICY"),
		AnalyticsWindowStr:     os.Getenv("ANALYTICS_WINDOW"),
		AnalyticsRetentionStr:  os.Getenv("ANALYTICS_RETENTION"),
	}

	if workersStr := os.Getenv("DISPATCH_WORKERS"); workersStr != "" {
		if n, err := parseInt(workersStr); err == nil && n > 0 {
			cfg.DispatchWorkers = n
		} else {
			log.Printf("config: invalid DISPATCH_WORKERS %q (must be a positive integer), using default 4", workersStr)
		}
	}
	if cfg.DispatchWorkers == 0 {
		cfg.DispatchWorkers = 4
	}

	if bufStr := os.Getenv("FIRING_BUS_BUFFER"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.FiringBusBuffer = n
		} else {
			log.Printf("config: invalid FIRING_BUS_BUFFER %q (must be a positive integer), using default 64", bufStr)
		}
	}
	if cfg.FiringBusBuffer == 0 {
		cfg.FiringBusBuffer = 64
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 5
	}

	cfg.CircuitBreakerCooldownStr = os.Getenv("CIRCUIT_BREAKER_COOLDOWN")

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support the platform's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "1s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.DownstreamTimeoutStr == "" {
		cfg.DownstreamTimeoutStr = "10s"
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "ko"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Seoul"
	}
	if cfg.OneTimePastPolicy == "" {
		cfg.OneTimePastPolicy = "reject"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.AnalyticsWindowStr == "" {
		cfg.AnalyticsWindowStr = "5m"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "168h"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DownstreamTimeoutStr); err == nil {
		cfg.DownstreamTimeout = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsWindowStr); err == nil {
		cfg.AnalyticsWindow = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}

	return cfg
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		TickInterval            string `json:"tick_interval"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		TTSServiceURL           string `json:"tts_service_url"`
		PlaybackServiceURL      string `json:"playback_service_url"`
		DeviceServiceURL        string `json:"device_service_url"`
		DownstreamTimeout       string `json:"downstream_timeout"`
		DesignatedRecipient     string `json:"designated_recipient,omitempty"`
		DefaultLanguage         string `json:"default_language"`
		Timezone                string `json:"timezone"`
		OneTimePastPolicy       string `json:"one_time_past_policy"`
		DispatchWorkers         int    `json:"dispatch_workers"`
		FiringBusBuffer         int    `json:"firing_bus_buffer"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		AnalyticsWindow         string `json:"analytics_window"`
		AnalyticsRetention      string `json:"analytics_retention"`
	}{
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		HTTPAddr:                c.HTTPAddr,
		TickInterval:            c.TickIntervalStr,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		TTSServiceURL:           c.TTSServiceURL,
		PlaybackServiceURL:      c.PlaybackServiceURL,
		DeviceServiceURL:        c.DeviceServiceURL,
		DownstreamTimeout:       c.DownstreamTimeoutStr,
		DesignatedRecipient:     c.DesignatedRecipient,
		DefaultLanguage:         c.DefaultLanguage,
		Timezone:                c.Timezone,
		OneTimePastPolicy:       c.OneTimePastPolicy,
		DispatchWorkers:         c.DispatchWorkers,
		FiringBusBuffer:         c.FiringBusBuffer,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		AnalyticsWindow:         c.AnalyticsWindowStr,
		AnalyticsRetention:      c.AnalyticsRetentionStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
