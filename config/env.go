package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
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

// EnvInt parses key as an integer.
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

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
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
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overrides cfg with TULULU_* variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("TULULU_BASE_URL"); ok {
		c.BaseURL = value
	}
	if value, ok := EnvString("TULULU_DEST_DIR"); ok {
		c.DestDir = value
	}
	if value, ok := EnvString("TULULU_STORE_FILE"); ok {
		c.StoreFile = value
	}
	if value, ok := EnvString("TULULU_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"TULULU_CATEGORY", &c.CategoryID},
		{"TULULU_WORKERS", &c.Workers},
		{"TULULU_MAX_ATTEMPTS", &c.MaxAttempts},
	}
	for _, item := range ints {
		value, ok, err := EnvInt(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.target = value
		}
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"TULULU_TIMEOUT", &c.Timeout},
		{"TULULU_RETRY_BACKOFF", &c.RetryBackoff},
		{"TULULU_DELAY", &c.Delay},
	}
	for _, item := range durations {
		value, ok, err := EnvDuration(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.target = value
		}
	}

	if value, ok, err := EnvBool("TULULU_SKIP_STORED"); err != nil {
		return err
	} else if ok {
		c.SkipStored = value
	}
	return nil
}
