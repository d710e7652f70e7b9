// Package config loads the registry server configuration. Values are layered:
// built-in defaults, then an optional YAML file, then environment variables,
// then command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dlrs-ng/land-registry/internal/db"
	"github.com/dlrs-ng/land-registry/pkg/api"
	"github.com/dlrs-ng/land-registry/pkg/cache"
	"github.com/dlrs-ng/land-registry/pkg/parcel"
)

// StoreBackend selects where parcel records live.
type StoreBackend string

const (
	// StoreGorm keeps records in a SQL table.
	StoreGorm StoreBackend = "gorm"

	// StoreFile keeps records in one JSON file.
	StoreFile StoreBackend = "file"
)

// AuthMode selects how callers are identified.
type AuthMode string

const (
	// AuthNone admits every caller with full access.
	AuthNone AuthMode = "none"

	// AuthHeader trusts the X-User-Role and X-User-Principal headers.
	AuthHeader AuthMode = "header"

	// AuthJWT reads roles from a bearer token.
	AuthJWT AuthMode = "jwt"
)

// Config is the complete server configuration.
type Config struct {
	ListenAddr string         `yaml:"listenAddr"`
	Store      StoreConfig    `yaml:"store"`
	Database   db.Config      `yaml:"database"`
	Registry   RegistryConfig `yaml:"registry"`
	CORS       api.CORSConfig `yaml:"cors"`
	Auth       AuthConfig     `yaml:"auth"`
	Cache      cache.Config   `yaml:"cache"`
	Log        LogConfig      `yaml:"log"`
	Metrics    MetricsConfig  `yaml:"metrics"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`

	// DataFile is the JSON file used by the file backend.
	DataFile string `yaml:"dataFile"`

	// Watch reloads the data file when another process replaces it.
	Watch bool `yaml:"watch"`
}

// RegistryConfig holds lifecycle settings.
type RegistryConfig struct {
	// GeometrySchema is "polygon" or "point".
	GeometrySchema string `yaml:"geometrySchema"`

	// LandIDPrefix prefixes generated land ids.
	LandIDPrefix string `yaml:"landIdPrefix"`
}

// AuthConfig selects the identity extractor.
type AuthConfig struct {
	Mode AuthMode      `yaml:"mode"`
	JWT  api.JWTConfig `yaml:"jwt"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format"`

	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration: an open prototype server on
// :4000 backed by an embedded SQLite database.
func Default() Config {
	return Config{
		ListenAddr: ":4000",
		Store: StoreConfig{
			Backend:  StoreGorm,
			DataFile: "data/parcels.json",
		},
		Database: db.DefaultConfig(),
		Registry: RegistryConfig{
			GeometrySchema: string(parcel.GeometryPolygon),
			LandIDPrefix:   parcel.DefaultLandIDPrefix,
		},
		CORS: api.CORSConfig{
			AllowedOriginSuffixes: append([]string(nil), api.DefaultCORSOriginSuffixes...),
		},
		Auth:    AuthConfig{Mode: AuthNone},
		Cache:   cache.DefaultConfig(),
		Log:     LogConfig{Format: "text", Level: "info"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any, and
// then with environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	cfg.ApplyEnv()
	return &cfg, nil
}

// ApplyEnv overlays environment variables onto cfg.
//
// PORT and CORS_ORIGIN are honoured for compatibility with existing
// deployments; everything else uses the DLRS_ prefix.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + strings.TrimPrefix(v, ":")
	}
	setString(&c.ListenAddr, "DLRS_LISTEN_ADDR")

	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		c.CORS.AllowedOrigins = api.ParseOrigins(v)
	}
	if v, ok := os.LookupEnv("DLRS_CORS_ORIGIN_SUFFIXES"); ok {
		c.CORS.AllowedOriginSuffixes = api.ParseOrigins(v)
	}

	if v := os.Getenv("DLRS_STORE_BACKEND"); v != "" {
		c.Store.Backend = StoreBackend(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(&c.Store.DataFile, "DLRS_DATA_FILE")
	setBool(&c.Store.Watch, "DLRS_DATA_FILE_WATCH")

	if v := os.Getenv("DLRS_DB_TYPE"); v != "" {
		c.Database.Type = db.Type(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(&c.Database.DSN, "DLRS_DB_DSN")
	if v := os.Getenv("DLRS_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Database.MaxOpenConns = n
		}
	}
	setBool(&c.Database.MigrationLock, "DLRS_DB_MIGRATION_LOCK")

	setString(&c.Registry.GeometrySchema, "DLRS_GEOMETRY_SCHEMA")
	setString(&c.Registry.LandIDPrefix, "DLRS_LAND_ID_PREFIX")

	if v := os.Getenv("DLRS_AUTH_MODE"); v != "" {
		c.Auth.Mode = AuthMode(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(&c.Auth.JWT.RoleClaim, "DLRS_JWT_ROLE_CLAIM")
	setString(&c.Auth.JWT.AdminRoleValue, "DLRS_JWT_ADMIN_VALUE")
	setString(&c.Auth.JWT.SurveyorRoleValue, "DLRS_JWT_SURVEYOR_VALUE")
	setString(&c.Auth.JWT.PrincipalClaim, "DLRS_JWT_PRINCIPAL_CLAIM")
	setString(&c.Auth.JWT.PublicKeyPath, "DLRS_JWT_PUBLIC_KEY_PATH")
	setString(&c.Auth.JWT.Issuer, "DLRS_JWT_ISSUER")
	setString(&c.Auth.JWT.Audience, "DLRS_JWT_AUDIENCE")

	setString(&c.Log.Format, "DLRS_LOG_FORMAT")
	setString(&c.Log.Level, "DLRS_LOG_LEVEL")
	setBool(&c.Metrics.Enabled, "DLRS_METRICS_ENABLED")

	c.Cache.ApplyEnv()
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	switch c.Store.Backend {
	case StoreGorm:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	case StoreFile:
		if c.Store.DataFile == "" {
			return fmt.Errorf("store backend %q requires a data file", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q (expected gorm or file)", c.Store.Backend)
	}
	if _, err := parcel.ParseGeometryKind(c.Registry.GeometrySchema); err != nil {
		return err
	}
	switch c.Auth.Mode {
	case AuthNone, AuthHeader, AuthJWT:
	default:
		return fmt.Errorf("unknown auth mode %q (expected none, header or jwt)", c.Auth.Mode)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.Log.Format)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return c.Cache.Validate()
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
