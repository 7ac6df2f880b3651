// Package config loads service settings from .env, an optional YAML file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"routesolver/internal/matrix"
	"routesolver/internal/model"
	"routesolver/internal/opt"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Matrix MatrixConfig `yaml:"matrix"`
	Solver SolverConfig `yaml:"solver"`
	Region opt.BBox     `yaml:"region"`
	Depot  DepotConfig  `yaml:"depot"`
	Window WindowConfig `yaml:"window"`
}

type ServerConfig struct {
	Port              string        `yaml:"port" validate:"required,numeric"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Environment string `yaml:"environment"`
}

type StoreConfig struct {
	// Driver is memory, mongo or postgres. Empty picks mongo when a Mongo URI
	// is set, postgres when a DSN is set, memory otherwise.
	Driver      string `yaml:"driver" validate:"omitempty,oneof=memory mongo postgres"`
	MongoURI    string `yaml:"mongoURI" validate:"required_if=Driver mongo"`
	MongoDB     string `yaml:"mongoDB"`
	PostgresDSN string `yaml:"postgresDSN" validate:"required_if=Driver postgres"`
	Migrate     bool   `yaml:"migrate"`
	SeedPath    string `yaml:"seedPath"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type MatrixConfig struct {
	Provider string            `yaml:"provider" validate:"oneof=osrm haversine"`
	SpeedKph float64           `yaml:"speedKph" validate:"gte=0"`
	OSRM     matrix.OSRMConfig `yaml:"osrm"`
}

type SolverConfig struct {
	TimeLimit     time.Duration `yaml:"timeLimit"`
	LNSTimeLimit  time.Duration `yaml:"lnsTimeLimit"`
	LNSEvery      int           `yaml:"lnsEvery" validate:"gte=0"`
	MaxIterations int           `yaml:"maxIterations" validate:"gte=0"`
	Seed          int64         `yaml:"seed"`
	MaxWait       int64         `yaml:"maxWait" validate:"gte=0"`
	Horizon       int64         `yaml:"horizon" validate:"gte=0"`
	MetersPerMile float64       `yaml:"metersPerMile" validate:"gt=0"`
	ReportDivisor float64       `yaml:"reportDivisor" validate:"gt=0"`
}

type DepotConfig struct {
	Lat     float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng     float64 `yaml:"lng" validate:"gte=-180,lte=180"`
	Address string  `yaml:"address"`
}

func (d DepotConfig) Point() model.GeoPoint { return model.GeoPoint{Lat: d.Lat, Lng: d.Lng} }

type WindowConfig struct {
	DefaultOpen  string `yaml:"defaultOpen"`
	DefaultClose string `yaml:"defaultClose"`
	Rollover     int64  `yaml:"rollover" validate:"gte=0"`
}

func (w WindowConfig) Opt() opt.WindowConfig {
	return opt.WindowConfig{DefaultOpen: w.DefaultOpen, DefaultClose: w.DefaultClose, Rollover: w.Rollover}
}

// Default returns the built-in settings: a Glasgow depot inside a Great
// Britain bounding box and the solver's standard budgets.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080", ReadHeaderTimeout: 5 * time.Second, ShutdownTimeout: 15 * time.Second},
		Log:    LogConfig{Level: "info", Environment: "development"},
		Store:  StoreConfig{MongoDB: "routesolver", Migrate: true},
		Matrix: MatrixConfig{Provider: "osrm", OSRM: matrix.OSRMConfig{
			BaseURL:           "http://localhost:6000",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             1,
			CacheTTL:          24 * time.Hour,
			BreakerFailures:   5,
			BreakerOpenFor:    30 * time.Second,
		}},
		Solver: SolverConfig{
			TimeLimit:     opt.DefaultTimeLimit,
			LNSTimeLimit:  opt.DefaultLNSTimeLimit,
			LNSEvery:      opt.DefaultLNSEvery,
			Seed:          1,
			MaxWait:       opt.DefaultMaxWait,
			Horizon:       opt.DaySeconds,
			MetersPerMile: 1600,
			ReportDivisor: opt.DefaultReportDivisor,
		},
		Region: opt.BBox{MinLat: 49.9, MaxLat: 60.9, MinLng: -8.6, MaxLng: 1.8},
		Depot:  DepotConfig{Lat: 55.84869, Lng: -4.21531, Address: "Depot Location"},
		Window: WindowConfig{DefaultOpen: opt.DefaultOpen, DefaultClose: opt.DefaultClose, Rollover: opt.DefaultRollover},
	}
}

// Load reads .env (if present), then CONFIG_FILE (default config.yaml, only
// required when named explicitly), then environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit {
		path = "config.yaml"
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.inferDriver()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Log.Level)
	str("ENVIRONMENT", &c.Log.Environment)
	str("STORE_DRIVER", &c.Store.Driver)
	str("MONGO_URI", &c.Store.MongoURI)
	str("MONGO_DB", &c.Store.MongoDB)
	str("DATABASE_URL", &c.Store.PostgresDSN)
	str("SEED_PATH", &c.Store.SeedPath)
	str("REDIS_URL", &c.Redis.URL)
	str("MATRIX_PROVIDER", &c.Matrix.Provider)
	str("OSRM_URL", &c.Matrix.OSRM.BaseURL)
	str("DEPOT_ADDRESS", &c.Depot.Address)
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		c.Store.Migrate = v != "false"
	}

	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	dur("SOLVER_TIME_LIMIT", &c.Solver.TimeLimit)
	dur("SOLVER_LNS_TIME_LIMIT", &c.Solver.LNSTimeLimit)
	dur("OSRM_TIMEOUT", &c.Matrix.OSRM.Timeout)
	if v := os.Getenv("SOLVER_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SOLVER_SEED: %w", err))
		} else {
			c.Solver.Seed = n
		}
	}
	return errors.Join(errs...)
}

func (c *Config) inferDriver() {
	if c.Store.Driver != "" {
		return
	}
	switch {
	case c.Store.MongoURI != "":
		c.Store.Driver = "mongo"
	case c.Store.PostgresDSN != "":
		c.Store.Driver = "postgres"
	default:
		c.Store.Driver = "memory"
	}
}

var validate = validator.New()

// Validate checks field ranges and cross-field requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.Region.Contains(c.Depot.Lat, c.Depot.Lng) {
		return fmt.Errorf("invalid config: depot %v,%v is outside the service region", c.Depot.Lat, c.Depot.Lng)
	}
	return nil
}

// SearchSettings maps solver config onto search settings.
func (s SolverConfig) SearchSettings() opt.Settings {
	return opt.Settings{
		TimeLimit:     s.TimeLimit,
		LNSTimeLimit:  s.LNSTimeLimit,
		LNSEvery:      s.LNSEvery,
		MaxIterations: s.MaxIterations,
		Seed:          s.Seed,
	}
}
