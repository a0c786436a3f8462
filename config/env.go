package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}

// EnvFloat parses key as a float.
func EnvFloat(key string) (float64, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, true, nil
}

// LoadFile overlays the YAML document at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// ApplyEnv applies RANKER_* environment overrides onto cfg.
func ApplyEnv(cfg *Config) error {
	ints := map[string]*int{
		"RANKER_MAX_PAGES":      &cfg.MaxPages,
		"RANKER_CONCURRENCY":    &cfg.Concurrency,
		"RANKER_RETRY_ATTEMPTS": &cfg.RetryAttempts,
		"RANKER_MAX_KEYWORDS":   &cfg.MaxKeywords,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"RANKER_TIMEOUT":       &cfg.Timeout,
		"RANKER_MAX_EXECUTION": &cfg.MaxExecution,
		"RANKER_MIN_DELAY":     &cfg.MinDelay,
		"RANKER_MAX_DELAY":     &cfg.MaxDelay,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if value, ok, err := EnvFloat("RANKER_BACKOFF_FACTOR"); err != nil {
		return err
	} else if ok {
		cfg.BackoffFactor = value
	}
	if value, ok, err := EnvFloat("RANKER_RPS"); err != nil {
		return err
	} else if ok {
		cfg.RequestsPerSecond = value
	}

	strs := map[string]*string{
		"RANKER_SEARCH_URL":   &cfg.SearchURL,
		"RANKER_OUTPUT_DIR":   &cfg.OutputDir,
		"RANKER_FORMAT":       &cfg.OutputFormat,
		"RANKER_LOG_LEVEL":    &cfg.LogLevel,
		"RANKER_LOG_FORMAT":   &cfg.LogFormat,
		"RANKER_METRICS_ADDR": &cfg.MetricsAddr,
		"RANKER_HISTORY_DB":   &cfg.HistoryDB,
		"RANKER_SCHEDULE":     &cfg.Schedule,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}
	return nil
}
