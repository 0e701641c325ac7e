package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Seed                 int64
	Events               int
	ParticipantsPerEvent int
	StartDate            time.Time
	Truncate             bool
}

func DefaultConfig() Config {
	return Config{
		Seed:                 time.Now().UTC().UnixNano(),
		Events:               12,
		ParticipantsPerEvent: 8,
		StartDate:            time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		Truncate:             false,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyInt64(lookup, "BATALLA_SEED_RANDOM_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "BATALLA_SEED_EVENTS", &cfg.Events); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "BATALLA_SEED_PARTICIPANTS", &cfg.ParticipantsPerEvent); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "BATALLA_SEED_START_DATE", &cfg.StartDate); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "BATALLA_SEED_TRUNCATE", &cfg.Truncate); err != nil {
		return Config{}, err
	}

	if cfg.Events <= 0 {
		return Config{}, fmt.Errorf("BATALLA_SEED_EVENTS must be > 0")
	}
	if _, ok := bracketPhases[cfg.ParticipantsPerEvent]; !ok {
		return Config{}, fmt.Errorf("BATALLA_SEED_PARTICIPANTS must be 4, 8 or 16")
	}
	if cfg.ParticipantsPerEvent > len(rappers) {
		return Config{}, fmt.Errorf("BATALLA_SEED_PARTICIPANTS exceeds the %d known rappers", len(rappers))
	}
	return cfg, nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
