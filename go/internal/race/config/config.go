// Package config loads the race engine tunables from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the YAML file.
type Config struct {
	Race    Race    `yaml:"race"`
	Gateway Gateway `yaml:"gateway"`
}

// Race holds matchmaking and session tunables.
type Race struct {
	Countdown         time.Duration `yaml:"countdown"`
	RankedWindow      int           `yaml:"ranked_window"`
	TextDifficulty    string        `yaml:"text_difficulty"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	PersistRetries    int           `yaml:"persist_retries"`
	PersistRetryDelay time.Duration `yaml:"persist_retry_delay"`
	WaitWindow        int           `yaml:"wait_window"`
	WaitFloor         float64       `yaml:"wait_floor"`
}

// Gateway holds realtime transport tunables.
type Gateway struct {
	MaxMessageSize int64  `yaml:"max_message_size"`
	SendBuffer     int    `yaml:"send_buffer"`
	NotifySubject  string `yaml:"notify_subject"`
	NotifyStream   string `yaml:"notify_stream"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Race: Race{
			Countdown:         3 * time.Second,
			RankedWindow:      200,
			TextDifficulty:    "medium",
			IdleTimeout:       5 * time.Minute,
			PersistRetries:    3,
			PersistRetryDelay: 250 * time.Millisecond,
			WaitWindow:        100,
			WaitFloor:         0.02,
		},
		Gateway: Gateway{
			MaxMessageSize: 64 * 1024,
			SendBuffer:     256,
			NotifySubject:  "race.notify.>",
			NotifyStream:   "RACE_NOTIFY",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Race.Countdown < 0:
		return errors.New("race.countdown must not be negative")
	case c.Race.RankedWindow <= 0:
		return errors.New("race.ranked_window must be positive")
	case c.Race.IdleTimeout <= 0:
		return errors.New("race.idle_timeout must be positive")
	case c.Race.PersistRetries < 0:
		return errors.New("race.persist_retries must not be negative")
	case c.Race.TextDifficulty == "":
		return errors.New("race.text_difficulty is required")
	}
	return nil
}
