package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend kinds accepted by Server.Storage. Server.Notifier and
// Server.Clients accept StorageMemory (log for the notifier) and StorageRedis.
const (
	StorageMemory  = "memory"
	StorageRedis   = "redis"
	StorageSQLite  = "sqlite"
	StorageLevelDB = "leveldb"

	// NotifierLog writes notifications to the log.
	NotifierLog = "log"
)

// Server holds process-level settings read from the environment.
type Server struct {
	Port       int    `env:"OFFLINE_SHELL_PORT"        envDefault:"8080"`
	ConfigPath string `env:"OFFLINE_SHELL_CONFIG"`
	Upstream   string `env:"OFFLINE_SHELL_UPSTREAM"    envDefault:"http://localhost:3000"`

	Storage     string `env:"OFFLINE_SHELL_STORAGE"      envDefault:"memory"`
	RedisURL    string `env:"OFFLINE_SHELL_REDIS_URL"    envDefault:"localhost:6379"`
	RedisPrefix string `env:"OFFLINE_SHELL_REDIS_PREFIX" envDefault:"offline:"`
	SQLitePath  string `env:"OFFLINE_SHELL_SQLITE_PATH"  envDefault:"offline-shell.db"`
	LevelDBPath string `env:"OFFLINE_SHELL_LEVELDB_PATH" envDefault:"./data/leveldb"`

	Notifier string `env:"OFFLINE_SHELL_NOTIFIER" envDefault:"log"`
	Clients  string `env:"OFFLINE_SHELL_CLIENTS"  envDefault:"memory"`

	LogLevel  string `env:"OFFLINE_SHELL_LOG_LEVEL"  envDefault:"info"`
	LogPretty bool   `env:"OFFLINE_SHELL_LOG_PRETTY" envDefault:"false"`

	FetchTimeout    time.Duration `env:"OFFLINE_SHELL_FETCH_TIMEOUT"    envDefault:"30s"`
	InstallAttempts int           `env:"OFFLINE_SHELL_INSTALL_ATTEMPTS" envDefault:"3"`
	OfflineAfter    int           `env:"OFFLINE_SHELL_OFFLINE_AFTER"    envDefault:"3"`

	ProbeInterval   time.Duration `env:"OFFLINE_SHELL_PROBE_INTERVAL"    envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"OFFLINE_SHELL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseServer loads Server from environment variables.
func ParseServer() (Server, error) {
	var s Server
	if err := env.Parse(&s); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	switch s.Storage {
	case StorageMemory, StorageRedis, StorageSQLite, StorageLevelDB:
	default:
		return Server{}, fmt.Errorf("unsupported storage backend %q", s.Storage)
	}
	if s.Notifier != NotifierLog && s.Notifier != StorageRedis {
		return Server{}, fmt.Errorf("unsupported notifier %q", s.Notifier)
	}
	if s.Clients != StorageMemory && s.Clients != StorageRedis {
		return Server{}, fmt.Errorf("unsupported client host %q", s.Clients)
	}
	if s.ProbeInterval <= 0 {
		return Server{}, fmt.Errorf("probe interval must be positive (got %s)", s.ProbeInterval)
	}
	if s.Port <= 0 {
		return Server{}, fmt.Errorf("port must be positive (got %d)", s.Port)
	}
	return s, nil
}

// UsesRedis reports whether any component is backed by Redis.
func (s Server) UsesRedis() bool {
	return s.Storage == StorageRedis || s.Notifier == StorageRedis || s.Clients == StorageRedis
}
