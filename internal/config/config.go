package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTPListenAddr is where the submit, feed and metrics endpoints are
	// served.
	HTTPListenAddr string
	ServiceName    string
	LogLevel       string
	// FeedBuffer is the per-subscriber feed send queue length.
	FeedBuffer int
	// DeniedChains lists chains whose nodes are refused registration.
	DeniedChains []string
}

// fileConfig is the optional YAML overlay referenced by TELEMETRY_CONFIG.
type fileConfig struct {
	DeniedChains []string `yaml:"denied_chains"`
	FeedBuffer   int      `yaml:"feed_buffer"`
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8000"),
		ServiceName:    getEnv("SERVICE_NAME", "telemetry-core"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		FeedBuffer:     64,
	}

	if v := os.Getenv("FEED_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FEED_BUFFER: %w", err)
		}
		cfg.FeedBuffer = n
	}

	if path := os.Getenv("TELEMETRY_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	c.DeniedChains = fc.DeniedChains
	if fc.FeedBuffer > 0 {
		c.FeedBuffer = fc.FeedBuffer
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
