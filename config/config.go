package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds ranking engine configuration.
type Config struct {
	SearchURL   string `yaml:"search_url"`
	Destination string `yaml:"destination"`
	Currency    string `yaml:"currency"`
	Locale      string `yaml:"locale"`
	Sort        string `yaml:"sort"`
	UserAgent   string `yaml:"user_agent"`

	MaxPages    int           `yaml:"max_pages"`
	PageSize    int           `yaml:"page_size"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`

	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	BackoffFactor   float64       `yaml:"backoff_factor"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max"`
	RateLimitWait   time.Duration `yaml:"rate_limit_wait"`

	MinDelay          time.Duration `yaml:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BatchPause        time.Duration `yaml:"batch_pause"`

	MaxKeywords    int           `yaml:"max_keywords"`
	MaxExecution   time.Duration `yaml:"max_execution"`
	DedupeKeywords bool          `yaml:"dedupe_keywords"`
	DedupeMaxSize  int           `yaml:"dedupe_max_size"`
	MaxFileSize    int64         `yaml:"max_file_size"`

	OutputDir       string        `yaml:"output_dir"`
	OutputFormat    string        `yaml:"output_format"` // csv, xlsx, json, or dual
	ReportRetention time.Duration `yaml:"report_retention"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json, text, or empty for auto
	Verbose     bool   `yaml:"verbose"`
	MetricsAddr string `yaml:"metrics_addr"`
	HistoryDB   string `yaml:"history_db"`
	Schedule    string `yaml:"schedule"`
}

// DefaultConfig returns conservative defaults for the marketplace search API.
func DefaultConfig() *Config {
	return &Config{
		SearchURL:   "https://search.wb.ru/exactmatch/ru/common/v5/search",
		Destination: "-1257786",
		Currency:    "rub",
		Locale:      "ru",
		Sort:        "popular",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",

		MaxPages:    5,
		PageSize:    100,
		Concurrency: 5,
		Timeout:     15 * time.Second,

		RetryAttempts:   3,
		RetryBackoff:    time.Second,
		BackoffFactor:   2.0,
		RetryBackoffMax: 60 * time.Second,
		RateLimitWait:   60 * time.Second,

		MinDelay:          50 * time.Millisecond,
		MaxDelay:          200 * time.Millisecond,
		RequestsPerSecond: 0,
		BatchPause:        100 * time.Millisecond,

		MaxKeywords:    1000,
		MaxExecution:   30 * time.Minute,
		DedupeKeywords: true,
		DedupeMaxSize:  10000,
		MaxFileSize:    10 << 20,

		OutputDir:       "output",
		OutputFormat:    "xlsx",
		ReportRetention: 7 * 24 * time.Hour,

		LogLevel:  "info",
		LogFormat: "",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SearchURL == "" {
		return fmt.Errorf("search URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.SearchURL)
	if err != nil {
		return fmt.Errorf("invalid search URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search URL must include a host")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	if c.MaxPages < 1 || c.MaxPages > 10 {
		return fmt.Errorf("max pages must be between 1 and 10, got %d", c.MaxPages)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.Concurrency < 1 || c.Concurrency > 20 {
		return fmt.Errorf("concurrency must be between 1 and 20, got %d", c.Concurrency)
	}
	if c.Timeout < 5*time.Second || c.Timeout > 60*time.Second {
		return fmt.Errorf("timeout must be between 5s and 60s, got %s", c.Timeout)
	}

	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("retry attempts must be between 1 and 10, got %d", c.RetryAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.BackoffFactor < 1 || c.BackoffFactor > 5 {
		return fmt.Errorf("backoff factor must be between 1 and 5, got %g", c.BackoffFactor)
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RateLimitWait < 0 {
		return fmt.Errorf("rate limit wait cannot be negative")
	}

	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("request delays cannot be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("min delay (%s) cannot exceed max delay (%s)", c.MinDelay, c.MaxDelay)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.BatchPause < 0 {
		return fmt.Errorf("batch pause cannot be negative")
	}

	if c.MaxKeywords < 1 || c.MaxKeywords > 10000 {
		return fmt.Errorf("max keywords must be between 1 and 10000, got %d", c.MaxKeywords)
	}
	if c.MaxExecution < time.Minute || c.MaxExecution > 120*time.Minute {
		return fmt.Errorf("max execution must be between 1m and 120m, got %s", c.MaxExecution)
	}
	if c.DedupeKeywords && c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive when dedupe is enabled")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "xlsx", "json", "dual":
	default:
		return fmt.Errorf("output format must be csv, xlsx, json, or dual")
	}
	if c.ReportRetention < 0 {
		return fmt.Errorf("report retention cannot be negative")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn, or error")
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("log format must be json or text")
	}

	return nil
}
