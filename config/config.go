package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// PixelSinkMap maps sink names to endpoint URLs. It decodes
// "name=url,name=url" itself because the stock envconfig map syntax splits
// values on ":" and URLs contain one.
type PixelSinkMap map[string]string

func (m *PixelSinkMap) Decode(value string) error {
	out := PixelSinkMap{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return fmt.Errorf("invalid pixel sink %q, want name=url", pair)
		}
		out[name] = url
	}
	*m = out
	return nil
}

// Config holds every tunable of the service. Values come from the
// environment (after godotenv has loaded .env in main).
type Config struct {
	Port           string `envconfig:"PORT" default:"8080"`
	GinMode        string `envconfig:"GIN_MODE" default:"debug"`
	FrontendOrigin string `envconfig:"FE_ORIGIN" default:"http://localhost:3000"`

	// Postgres is always required: it holds dashboard_users and, unless
	// EVENT_BACKEND says otherwise, the vsl_analytics event table.
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	EventBackend string `envconfig:"EVENT_BACKEND" default:"postgres"`

	ClickHouseHost     string `envconfig:"CLICKHOUSE_HOST"`
	ClickHousePort     int    `envconfig:"CLICKHOUSE_NATIVE_PORT" default:"9000"`
	ClickHouseDB       string `envconfig:"CLICKHOUSE_DB_NAME"`
	ClickHouseUsername string `envconfig:"CLICKHOUSE_USERNAME"`
	ClickHousePassword string `envconfig:"CLICKHOUSE_PASSWORD"`

	JWTSecret string `envconfig:"JWT_SECRET_KEY"`
	APIKey    string `envconfig:"AUTH_DEFAULT"`

	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	LiveWindow   time.Duration `envconfig:"LIVE_WINDOW" default:"2m"`

	// Hour-of-day buckets are computed in this zone for every viewer.
	StatsTimezone string `envconfig:"STATS_TIMEZONE" default:"UTC"`

	// Sessions from these origins are excluded from all reporting.
	ExcludedCountryCodes []string `envconfig:"EXCLUDED_COUNTRY_CODES" default:"BR"`
	ExcludedCountryNames []string `envconfig:"EXCLUDED_COUNTRY_NAMES" default:"Brazil"`

	// Geolocation provider URL templates, tried in order. %s is the IP.
	GeoProviders []string `envconfig:"GEO_PROVIDERS" default:"https://ipwho.is/%s,https://ipapi.co/%s/json/"`

	// Conversion pixel sink endpoints, name=url pairs.
	PixelSinks PixelSinkMap `envconfig:"PIXEL_SINKS"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if cfg.EventBackend != "postgres" && cfg.EventBackend != "clickhouse" {
		return nil, fmt.Errorf("unsupported EVENT_BACKEND %q", cfg.EventBackend)
	}
	if _, err := time.LoadLocation(cfg.StatsTimezone); err != nil {
		return nil, fmt.Errorf("invalid STATS_TIMEZONE %q: %w", cfg.StatsTimezone, err)
	}
	return &cfg, nil
}

// Location resolves StatsTimezone. Load has already validated it, so a
// failure here only happens for a hand-built Config; fall back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
