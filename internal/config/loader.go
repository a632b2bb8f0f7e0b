package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/homegraph/internal/db"

	"github.com/spf13/viper"
)

// Peer is one remote replica this replica syncs with.
type Peer struct {
	ID  string
	URL string
}

// SyncConfig controls the replica's exchange loop.
type SyncConfig struct {
	DeviceID       string
	UserID         string
	ConflictWindow time.Duration
	Interval       time.Duration
	Peers          []Peer
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port int
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Sync     SyncConfig
	LogLevel string
}

// DefaultConfig returns sane single-replica defaults.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server:   ServerConfig{Port: 8080},
		Sync: SyncConfig{
			DeviceID:       "replica-1",
			UserID:         "system",
			ConflictWindow: time.Second,
			Interval:       30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads config.yaml from configPath, with environment overrides mapped
// as HOMEGRAPH_DATABASE_HOST, HOMEGRAPH_SYNC_DEVICE_ID, and so on. Missing
// file is fine; defaults plus env apply.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("HOMEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.port")
	v.BindEnv("sync.device_id")
	v.BindEnv("sync.user_id")
	v.BindEnv("sync.conflict_window")
	v.BindEnv("sync.interval")
	v.BindEnv("log_level")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("sync.device_id") {
		cfg.Sync.DeviceID = v.GetString("sync.device_id")
	}
	if v.IsSet("sync.user_id") {
		cfg.Sync.UserID = v.GetString("sync.user_id")
	}
	if v.IsSet("sync.conflict_window") {
		cfg.Sync.ConflictWindow = v.GetDuration("sync.conflict_window")
	}
	if v.IsSet("sync.interval") {
		cfg.Sync.Interval = v.GetDuration("sync.interval")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("sync.peers") {
		var peers []Peer
		if err := v.UnmarshalKey("sync.peers", &peers); err != nil {
			return Config{}, fmt.Errorf("failed to parse sync.peers: %w", err)
		}
		cfg.Sync.Peers = peers
	}

	return cfg, nil
}
