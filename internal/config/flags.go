package config

import (
	"flag"
	"strings"

	"github.com/dlrs-ng/land-registry/internal/db"
)

// Flags are the command-line overrides. They win over file and environment.
type Flags struct {
	ConfigPath     string
	ListenAddr     string
	StoreBackend   string
	DataFile       string
	WatchDataFile  bool
	DBType         string
	DBDSN          string
	GeometrySchema string
	AuthMode       string
	LogLevel       string
}

// RegisterFlags defines the server flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&f.ListenAddr, "listen", "", "Address to listen on (default :4000)")
	fs.StringVar(&f.StoreBackend, "store", "", "Record store backend (gorm or file)")
	fs.StringVar(&f.DataFile, "data-file", "", "JSON data file for the file store")
	fs.BoolVar(&f.WatchDataFile, "watch", false, "Reload the data file when it changes on disk")
	fs.StringVar(&f.DBType, "db-type", "", "Database type (sqlite, postgres or mysql)")
	fs.StringVar(&f.DBDSN, "db-dsn", "", "Database connection string")
	fs.StringVar(&f.GeometrySchema, "geometry", "", "Geometry schema (polygon or point)")
	fs.StringVar(&f.AuthMode, "auth-mode", "", "Auth mode (none, header or jwt)")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return f
}

// Apply copies the flags that were set on the command line into cfg.
func (f *Flags) Apply(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "listen":
			cfg.ListenAddr = f.ListenAddr
		case "store":
			cfg.Store.Backend = StoreBackend(strings.ToLower(f.StoreBackend))
		case "data-file":
			cfg.Store.DataFile = f.DataFile
		case "watch":
			cfg.Store.Watch = f.WatchDataFile
		case "db-type":
			cfg.Database.Type = db.Type(strings.ToLower(f.DBType))
		case "db-dsn":
			cfg.Database.DSN = f.DBDSN
		case "geometry":
			cfg.Registry.GeometrySchema = f.GeometrySchema
		case "auth-mode":
			cfg.Auth.Mode = AuthMode(strings.ToLower(f.AuthMode))
		case "log-level":
			cfg.Log.Level = f.LogLevel
		}
	})
}
