package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreNone     = "none"
)

type Config struct {
	HTTPAddr       string
	AllowedOrigins []string
	APIVersion     string

	WaypointStore string
	DatabaseURL   string
	WaypointDB    string
	SQLitePath    string

	NATSURL           string
	NATSSubjectPrefix string
	NATSQueue         string

	MetricsAddr string

	GoogleMapsAPIKey  string
	RoadPathTimeout   time.Duration
	RoadPathClients   int
	RoadPathCachePath string
	RoadPathCacheTTL  time.Duration

	BatchWorkers int
	Location     *time.Location

	LogLevel  string
	LogFormat string
}

// fileConfig is the optional YAML overlay named by PLAYBACK_CONFIG. Set
// fields override the environment.
type fileConfig struct {
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	WaypointStore  string   `yaml:"waypoint_store" validate:"omitempty,oneof=postgres sqlite none"`
	DatabaseURL    string   `yaml:"database_url"`
	SQLitePath     string   `yaml:"sqlite_path"`
	NATS           struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix" validate:"omitempty,excludesall=*>"`
		Queue         string `yaml:"queue"`
	} `yaml:"nats"`
	MetricsAddr string `yaml:"metrics_addr"`
	RoadPath    struct {
		APIKey        string `yaml:"api_key"`
		TimeoutMS     int    `yaml:"timeout_ms" validate:"omitempty,gt=0"`
		Clients       int    `yaml:"clients" validate:"omitempty,gte=1"`
		CachePath     string `yaml:"cache_path"`
		CacheTTLHours int    `yaml:"cache_ttl_hours" validate:"omitempty,gt=0"`
	} `yaml:"road_path"`
	BatchWorkers int    `yaml:"batch_workers" validate:"omitempty,gte=1,lte=1024"`
	LogLevel     string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat    string `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		AllowedOrigins:    splitList(getenvDefault("ALLOWED_ORIGINS", "*")),
		APIVersion:        getenvDefault("API_VERSION", "1.0.0"),
		SQLitePath:        os.Getenv("SQLITE_PATH"),
		WaypointDB:        os.Getenv("WAYPOINT_DB"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "playback"),
		NATSQueue:         getenvDefault("NATS_QUEUE", "playback"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		GoogleMapsAPIKey:  os.Getenv("GOOGLE_MAPS_API_KEY"),
		RoadPathCachePath: os.Getenv("ROAD_PATH_CACHE_PATH"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         getenvDefault("LOG_FORMAT", "text"),
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" && os.Getenv("PGDATABASE") != "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		userinfo := urlEscape(user)
		if pass != "" {
			userinfo += ":" + urlEscape(pass)
		}
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", userinfo, host, port, os.Getenv("PGDATABASE"), sslmode)
	}

	ms, err := positiveInt("ROAD_PATH_TIMEOUT_MS", 1500)
	if err != nil {
		return nil, err
	}
	cfg.RoadPathTimeout = time.Duration(ms) * time.Millisecond
	if cfg.RoadPathClients, err = positiveInt("ROAD_PATH_CLIENTS", 8); err != nil {
		return nil, err
	}
	hours, err := positiveInt("ROAD_PATH_CACHE_TTL_HOURS", 168)
	if err != nil {
		return nil, err
	}
	cfg.RoadPathCacheTTL = time.Duration(hours) * time.Hour
	if cfg.BatchWorkers, err = positiveInt("BATCH_WORKERS", 8); err != nil {
		return nil, err
	}

	// Time zone for timestamps without an offset
	if tzName := os.Getenv("TZ"); tzName == "" {
		cfg.Location = time.UTC
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if path := os.Getenv("PLAYBACK_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	cfg.WaypointStore = strings.ToLower(strings.TrimSpace(firstNonEmpty(cfg.WaypointStore, os.Getenv("WAYPOINT_STORE"))))
	if cfg.WaypointStore == "" {
		switch {
		case cfg.DatabaseURL != "":
			cfg.WaypointStore = StorePostgres
		case cfg.SQLitePath != "":
			cfg.WaypointStore = StoreSQLite
		default:
			cfg.WaypointStore = StoreNone
		}
	}
	switch cfg.WaypointStore {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("WAYPOINT_STORE=postgres needs DATABASE_URL, PG_DSN or PGDATABASE")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("WAYPOINT_STORE=sqlite needs SQLITE_PATH")
		}
	case StoreNone:
	default:
		return nil, fmt.Errorf("invalid WAYPOINT_STORE: %q", cfg.WaypointStore)
	}

	return cfg, nil
}

func (cfg *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := validator.New().Struct(fc); err != nil {
		return fmt.Errorf("invalid %s: %w", path, err)
	}

	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	setString(&cfg.WaypointStore, fc.WaypointStore)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.SQLitePath, fc.SQLitePath)
	setString(&cfg.NATSURL, fc.NATS.URL)
	setString(&cfg.NATSSubjectPrefix, fc.NATS.SubjectPrefix)
	setString(&cfg.NATSQueue, fc.NATS.Queue)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.GoogleMapsAPIKey, fc.RoadPath.APIKey)
	setString(&cfg.RoadPathCachePath, fc.RoadPath.CachePath)
	if fc.RoadPath.TimeoutMS > 0 {
		cfg.RoadPathTimeout = time.Duration(fc.RoadPath.TimeoutMS) * time.Millisecond
	}
	if fc.RoadPath.Clients > 0 {
		cfg.RoadPathClients = fc.RoadPath.Clients
	}
	if fc.RoadPath.CacheTTLHours > 0 {
		cfg.RoadPathCacheTTL = time.Duration(fc.RoadPath.CacheTTLHours) * time.Hour
	}
	if fc.BatchWorkers > 0 {
		cfg.BatchWorkers = fc.BatchWorkers
	}
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	return nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func positiveInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
