package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHATSYNC_"

// Remote backends.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
)

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CachePebble = "pebble"
)

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Remote         RemoteConfig       `toml:"remote"`
	Cache          CacheConfig        `toml:"cache"`
	Connectivity   ConnectivityConfig `toml:"connectivity"`
	Metrics        MetricsConfig      `toml:"metrics"`
	Log            LogConfig          `toml:"log"`
}

type RemoteConfig struct {
	Backend string      `toml:"backend"`
	Mongo   MongoConfig `toml:"mongo"`
	Redis   RedisConfig `toml:"redis"`
}

type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Prefix   string   `toml:"prefix"`
	Block    Duration `toml:"block"`
}

type CacheConfig struct {
	Backend string `toml:"backend"`
}

type ConnectivityConfig struct {
	// Probe enables periodic pings of the remote store. When off, readings
	// come only from SetConnectivity.
	Probe    bool     `toml:"probe"`
	Interval Duration `toml:"interval"`
	Timeout  Duration `toml:"timeout"`
}

type MetricsConfig struct {
	// Addr is the TCP listen address for /metrics; empty disables it.
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Remote: RemoteConfig{
			Backend: BackendMemory,
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017/?replicaSet=rs0",
				Database:   "chatsync",
				Collection: "messages",
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "chatsync",
				Block:  Duration{time.Second},
			},
		},
		Cache: CacheConfig{Backend: CacheSQLite},
		Connectivity: ConnectivityConfig{
			Probe:    true,
			Interval: Duration{5 * time.Second},
			Timeout:  Duration{2 * time.Second},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that treats a missing file as the defaults. It then
// loads an optional .env file next to the config and applies environment
// overrides.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from CHATSYNC_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		if v, ok := lookup(EnvPrefix + key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
		}
		return nil
	}

	str("DEFAULT_PROFILE", &c.DefaultProfile)
	str("REMOTE_BACKEND", &c.Remote.Backend)
	str("MONGO_URI", &c.Remote.Mongo.URI)
	str("MONGO_DATABASE", &c.Remote.Mongo.Database)
	str("MONGO_COLLECTION", &c.Remote.Mongo.Collection)
	str("REDIS_ADDR", &c.Remote.Redis.Addr)
	str("REDIS_PASSWORD", &c.Remote.Redis.Password)
	str("REDIS_PREFIX", &c.Remote.Redis.Prefix)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Remote.Redis.DB = n
	}
	if v, ok := lookup(EnvPrefix + "PROBE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPROBE: %w", EnvPrefix, err)
		}
		c.Connectivity.Probe = b
	}
	if err := dur("REDIS_BLOCK", &c.Remote.Redis.Block); err != nil {
		return err
	}
	if err := dur("PROBE_INTERVAL", &c.Connectivity.Interval); err != nil {
		return err
	}
	return dur("PROBE_TIMEOUT", &c.Connectivity.Timeout)
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Remote.Backend) {
	case BackendMemory, BackendMongo, BackendRedis:
	default:
		return fmt.Errorf("unknown remote backend %q", c.Remote.Backend)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case CacheSQLite, CachePebble:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Connectivity.Probe && c.Connectivity.Interval.Duration <= 0 {
		return errors.New("connectivity.interval must be positive")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
