// Package config holds the receiver's bounded-resource and timing
// constants, with optional overrides from a YAML file. The CLI contract
// (spec: LISTEN_PORT SRT_HOST SRT_PORT, or -v) never changes shape; this
// is purely for tuning the engine's internal caps and timers, following
// the teacher pack's convention (Go2NetSpectra's internal/config) of a
// single LoadConfig(path) (*Config, error) over gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits holds every tunable bound named in the core spec. Zero-value
// Limits is not valid; use Default() as a base and override from there.
type Limits struct {
	MaxGroups         int           `yaml:"max_groups"`
	MaxConnsPerGroup  int           `yaml:"max_conns_per_group"`
	ConnTimeout       time.Duration `yaml:"-"`
	GroupTimeout      time.Duration `yaml:"-"`
	CleanupPeriod     time.Duration `yaml:"-"`
	RecvAckInt        int           `yaml:"recv_ack_int"`
	ConnTimeoutSecs   int64         `yaml:"conn_timeout_seconds"`
	GroupTimeoutSecs  int64         `yaml:"group_timeout_seconds"`
	CleanupPeriodSecs int64         `yaml:"cleanup_period_seconds"`
}

// Default returns the receiver's built-in tunables, used whenever
// SRTLA_CONFIG is unset.
func Default() Limits {
	l := Limits{
		MaxGroups:         100,
		MaxConnsPerGroup:  16,
		RecvAckInt:        10,
		ConnTimeoutSecs:   10,
		GroupTimeoutSecs:  60,
		CleanupPeriodSecs: 1,
	}
	l.resolveDurations()
	return l
}

func (l *Limits) resolveDurations() {
	l.ConnTimeout = time.Duration(l.ConnTimeoutSecs) * time.Second
	l.GroupTimeout = time.Duration(l.GroupTimeoutSecs) * time.Second
	l.CleanupPeriod = time.Duration(l.CleanupPeriodSecs) * time.Second
}

// Load reads tunable overrides from a YAML file at path, starting from
// Default() and overwriting only the fields present in the file.
func Load(path string) (Limits, error) {
	l := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return l, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("config: parse %s: %w", path, err)
	}

	l.resolveDurations()
	if err := l.validate(); err != nil {
		return l, fmt.Errorf("config: %s: %w", path, err)
	}
	return l, nil
}

// FromEnv loads overrides from the file named by the SRTLA_CONFIG
// environment variable, or returns Default() if it is unset.
func FromEnv() (Limits, error) {
	path := os.Getenv("SRTLA_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (l Limits) validate() error {
	if l.MaxGroups <= 0 {
		return fmt.Errorf("max_groups must be positive")
	}
	if l.MaxConnsPerGroup <= 0 {
		return fmt.Errorf("max_conns_per_group must be positive")
	}
	if l.RecvAckInt <= 0 {
		return fmt.Errorf("recv_ack_int must be positive")
	}
	if l.ConnTimeoutSecs <= 0 || l.GroupTimeoutSecs <= 0 || l.CleanupPeriodSecs <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
