package config

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/capacity-cli/internal/capacity"
	"github.com/sells-group/capacity-cli/internal/db"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	PostGIS  PostGISConfig  `yaml:"postgis" mapstructure:"postgis"`
	Capacity CapacityConfig `yaml:"capacity" mapstructure:"capacity"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run store.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PostGISConfig configures the PostGIS zone source and result sink.
type PostGISConfig struct {
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	ZonesTable      string `yaml:"zones_table" mapstructure:"zones_table"`
	FacilitiesTable string `yaml:"facilities_table" mapstructure:"facilities_table"`
}

// CapacityConfig holds the default recomputation parameters and input
// handling knobs.
type CapacityConfig struct {
	capacity.Params `yaml:",inline" mapstructure:",squash"`

	// SourceEPSG is assumed for inputs that carry no CRS. Zero keeps a
	// missing CRS fatal.
	SourceEPSG int `yaml:"source_epsg" mapstructure:"source_epsg"`
	// Service selects catalog norms when no --service flag is given.
	Service     string `yaml:"service" mapstructure:"service"`
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
	// CRSDefinitions maps EPSG codes to proj4 strings for systems the
	// built-in table lacks.
	CRSDefinitions map[string]string `yaml:"crs_definitions" mapstructure:"crs_definitions"`
	// Column names in the input layers.
	CapacityColumn   string `yaml:"capacity_column" mapstructure:"capacity_column"`
	PopulationColumn string `yaml:"population_column" mapstructure:"population_column"`
	BlockIDColumn    string `yaml:"block_id_column" mapstructure:"block_id_column"`
}

// Definitions returns CRSDefinitions keyed by EPSG code.
func (c CapacityConfig) Definitions() (map[int]string, error) {
	out := make(map[int]string, len(c.CRSDefinitions))
	for k, def := range c.CRSDefinitions {
		code, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(k), "EPSG:"))
		if err != nil || code <= 0 {
			return nil, eris.Errorf("config: crs_definitions: invalid EPSG code %q", k)
		}
		out[code] = def
	}
	return out, nil
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// RateLimit is the sustained recompute requests per second; zero
	// disables limiting.
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxBodyMB   int     `yaml:"max_body_mb" mapstructure:"max_body_mb"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (optional) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional config.yaml in the working directory; a named
// file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("CAPACITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.database_url", "capacity.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("postgis.zones_table", "")
	v.SetDefault("postgis.facilities_table", "capacity_facilities")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 2.0)
	v.SetDefault("server.rate_burst", 4)
	v.SetDefault("server.max_body_mb", 64)
	v.SetDefault("server.timeout_secs", 120)
	v.SetDefault("capacity.epsg", 0)
	v.SetDefault("capacity.demand_per_1000", 0.0)
	v.SetDefault("capacity.base_count", 0.0)
	v.SetDefault("capacity.m2_per_person", 0.0)
	v.SetDefault("capacity.source_epsg", 0)
	v.SetDefault("capacity.service", "")
	v.SetDefault("capacity.catalog_path", "")
	v.SetDefault("capacity.k", capacity.DefaultK)
	v.SetDefault("capacity.max_passes", capacity.DefaultMaxPasses)
	v.SetDefault("capacity.concurrency", capacity.DefaultConcurrency)
	v.SetDefault("capacity.tie_break", string(capacity.TieBreakFirst))
	v.SetDefault("capacity.capacity_column", capacity.ColCapacity)
	v.SetDefault("capacity.population_column", capacity.ColPopulation)
	v.SetDefault("capacity.block_id_column", capacity.ColBlockID)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverNone:
	default:
		errs = append(errs, "store.driver must be sqlite, postgres or none")
	}
	if c.Store.Driver == DriverPostgres && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres driver")
	}
	if _, err := c.Capacity.Definitions(); err != nil {
		errs = append(errs, err.Error())
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server.rate_limit must not be negative")
		}
	case "postgis":
		if c.PostGISURL() == "" {
			errs = append(errs, "postgis.database_url is required (or a postgres store.database_url)")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PostGISURL returns the PostGIS connection string, falling back to the
// store database when it is Postgres.
func (c *Config) PostGISURL() string {
	if c.PostGIS.DatabaseURL != "" {
		return c.PostGIS.DatabaseURL
	}
	if c.Store.Driver == DriverPostgres {
		return c.Store.DatabaseURL
	}
	return ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
