package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns a trimmed environment value and whether it was set.
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

// EnvInt parses an integer environment value.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses a Go duration string (e.g. "750ms") from the environment.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overlays SCRAPER_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SCRAPER_BASE_URL":     &cfg.BaseURL,
		"SCRAPER_START_URL":    &cfg.StartURL,
		"SCRAPER_OUTPUT":       &cfg.OutputFile,
		"SCRAPER_FORMAT":       &cfg.OutputFormat,
		"SCRAPER_LOG_FILE":     &cfg.LogFile,
		"SCRAPER_USER_AGENT":   &cfg.UserAgent,
		"SCRAPER_METRICS_ADDR": &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"SCRAPER_PAGES":           &cfg.MaxPages,
		"SCRAPER_MAX_RETRIES":     &cfg.MaxRetries,
		"SCRAPER_ABORT_THRESHOLD": &cfg.AbortThreshold,
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
		"SCRAPER_DELAY":        &cfg.Delay,
		"SCRAPER_RANDOM_DELAY": &cfg.RandomDelay,
		"SCRAPER_DETAIL_DELAY": &cfg.DetailDelay,
		"SCRAPER_TIMEOUT":      &cfg.Timeout,
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

	if raw, ok := EnvString("SCRAPER_FOLLOW_DETAILS"); ok {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("SCRAPER_FOLLOW_DETAILS: %w", err)
		}
		cfg.FollowDetails = value
	}
	return nil
}
