package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/dispatch"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Config holds strategy configuration.
type Config struct {
	Name     string
	Symbols  []string
	Quantity float64
	Params   map[string]any
}

// Factory builds a strategy from its configuration.
type Factory func(cfg Config, logger *slog.Logger) (dispatch.Strategy, error)

func (c Config) assets() ([]domain.Asset, error) {
	if len(c.Symbols) == 0 {
		return nil, fmt.Errorf("strategy %s: at least one symbol is required", c.Name)
	}
	out := make([]domain.Asset, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		out = append(out, domain.Spot(s))
	}
	return out, nil
}

func (c Config) stringParam(key, def string) string {
	if v, ok := c.Params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// floatParam accepts the numeric types produced by TOML and JSON decoding.
func (c Config) floatParam(key string, def float64) float64 {
	switch v := c.Params[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

func (c Config) intParam(key string, def int) int {
	switch v := c.Params[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func (c Config) durationParam(key string, def time.Duration) (time.Duration, error) {
	s, ok := c.Params[key].(string)
	if !ok || s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("strategy %s: %s: %w", c.Name, key, err)
	}
	return d, nil
}
