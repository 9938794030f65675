package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// fileConfig mirrors Config for json5 files. Durations are Go duration
// strings. Numbers, durations and booleans are pointers so an explicit zero
// survives merging; mergo only carries the string fields.
type fileConfig struct {
	BaseURL          string  `json:"base_url"`
	StartURL         string  `json:"start_url"`
	MaxPages         *int    `json:"max_pages"`
	Delay            *string `json:"delay"`
	RandomDelay      *string `json:"random_delay"`
	DetailDelay      *string `json:"detail_delay"`
	FollowDetails    *bool   `json:"follow_details"`
	Timeout          *string `json:"timeout"`
	MaxRetries       *int    `json:"max_retries"`
	RetryBackoff     *string `json:"retry_backoff"`
	RetryBackoffMax  *string `json:"retry_backoff_max"`
	AbortThreshold   *int    `json:"abort_threshold"`
	DedupeMaxSize    *int    `json:"dedupe_max_size"`
	BatchSize        *int    `json:"batch_size"`
	OutputFile       string  `json:"output_file"`
	OutputFormat     string  `json:"output_format"`
	LogFile          string  `json:"log_file"`
	UserAgent        string  `json:"user_agent"`
	Verbose          *bool   `json:"verbose"`
	RespectRobotsTxt *bool   `json:"respect_robots_txt"`
	MetricsAddr      string  `json:"metrics_addr"`
}

func (f fileConfig) stringFields() Config {
	return Config{
		BaseURL:      f.BaseURL,
		StartURL:     f.StartURL,
		OutputFile:   f.OutputFile,
		OutputFormat: strings.ToLower(f.OutputFormat),
		LogFile:      f.LogFile,
		UserAgent:    f.UserAgent,
		MetricsAddr:  f.MetricsAddr,
	}
}

// applySet copies every non-string field the file sets, zero values included.
func (f fileConfig) applySet(cfg *Config) error {
	durations := []struct {
		name string
		raw  *string
		dst  *time.Duration
	}{
		{"delay", f.Delay, &cfg.Delay},
		{"random_delay", f.RandomDelay, &cfg.RandomDelay},
		{"detail_delay", f.DetailDelay, &cfg.DetailDelay},
		{"timeout", f.Timeout, &cfg.Timeout},
		{"retry_backoff", f.RetryBackoff, &cfg.RetryBackoff},
		{"retry_backoff_max", f.RetryBackoffMax, &cfg.RetryBackoffMax},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		value, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = value
	}

	ints := []struct {
		src *int
		dst *int
	}{
		{f.MaxPages, &cfg.MaxPages},
		{f.MaxRetries, &cfg.MaxRetries},
		{f.AbortThreshold, &cfg.AbortThreshold},
		{f.DedupeMaxSize, &cfg.DedupeMaxSize},
		{f.BatchSize, &cfg.BatchSize},
	}
	for _, n := range ints {
		if n.src != nil {
			*n.dst = *n.src
		}
	}

	bools := []struct {
		src *bool
		dst *bool
	}{
		{f.FollowDetails, &cfg.FollowDetails},
		{f.Verbose, &cfg.Verbose},
		{f.RespectRobotsTxt, &cfg.RespectRobotsTxt},
	}
	for _, b := range bools {
		if b.src != nil {
			*b.dst = *b.src
		}
	}
	return nil
}

// LoadFile merges a json5 configuration file into cfg. A sibling
// "<name>.local.<ext>" file, when present, is merged on top. It returns
// os.ErrNotExist when neither file exists.
func LoadFile(cfg *Config, name string) error {
	found := false
	for _, path := range []string{name, localName(name)} {
		ok, err := mergeFile(cfg, path)
		if err != nil {
			return err
		}
		if ok {
			slog.Debug("merged config file", slog.String("path", path))
			found = true
		}
	}
	if !found {
		return os.ErrNotExist
	}
	return nil
}

func mergeFile(cfg *Config, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read config %q: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}

	var fc fileConfig
	if err := json5.Unmarshal(data, &fc); err != nil {
		return false, fmt.Errorf("decode config %q: %w", path, err)
	}
	if err := mergo.Merge(cfg, fc.stringFields(), mergo.WithOverride); err != nil {
		return false, fmt.Errorf("merge config %q: %w", path, err)
	}
	if err := fc.applySet(cfg); err != nil {
		return false, fmt.Errorf("config %q: %w", path, err)
	}
	return true, nil
}

func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}
