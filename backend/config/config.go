// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the relay runtime parameters.
type Config struct {
	ListenAddress       string         `mapstructure:"listen_address"`
	LogLevel            string         `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration  `mapstructure:"shutdown_grace_period"`
	Database            DatabaseConfig `mapstructure:"database"`
	Redis               RedisConfig    `mapstructure:"redis"`
	Friends             FriendsConfig  `mapstructure:"friends"`
	Auth                AuthConfig     `mapstructure:"auth"`
	Relay               RelayConfig    `mapstructure:"relay"`
	CORS                CORSConfig     `mapstructure:"cors"`
}

// DatabaseConfig selects the message store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// RedisConfig is only used when Address is set.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type FriendsConfig struct {
	ServiceURL     string        `mapstructure:"service_url"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CacheBackend   string        `mapstructure:"cache_backend"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type RelayConfig struct {
	SendBuffer    int    `mapstructure:"send_buffer"`
	Timezone      string `mapstructure:"timezone"`
	MaxFrameBytes int64  `mapstructure:"max_frame_bytes"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

const (
	defaultListenAddress       = ":8083"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultDatabaseURL         = "postgres://localhost/efrelay?sslmode=disable"
	defaultFriendsURL          = "http://localhost:8082/api/friendships"
	defaultCacheTTL            = time.Hour
	defaultRequestTimeout      = 10 * time.Second
	defaultSendBuffer          = 32
	defaultTimezone            = "UTC"
	defaultMaxFrameBytes       = 8192
)

// durations are normalized by hand after Unmarshal.
var durations = []struct {
	key string
	def time.Duration
	set func(*Config, time.Duration)
}{
	{"shutdown_grace_period", defaultShutdownGracePeriod, func(c *Config, d time.Duration) { c.ShutdownGracePeriod = d }},
	{"friends.cache_ttl", defaultCacheTTL, func(c *Config, d time.Duration) { c.Friends.CacheTTL = d }},
	{"friends.request_timeout", defaultRequestTimeout, func(c *Config, d time.Duration) { c.Friends.RequestTimeout = d }},
}

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with RELAY_ and can override file values,
// e.g. RELAY_AUTH_JWT_SECRET.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", defaultDatabaseURL)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("friends.service_url", defaultFriendsURL)
	v.SetDefault("friends.cache_ttl", defaultCacheTTL.String())
	v.SetDefault("friends.cache_backend", CacheMemory)
	v.SetDefault("friends.request_timeout", defaultRequestTimeout.String())
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("relay.send_buffer", defaultSendBuffer)
	v.SetDefault("relay.timezone", defaultTimezone)
	v.SetDefault("relay.max_frame_bytes", defaultMaxFrameBytes)
	v.SetDefault("cors.allowed_origins", []string{})

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	for _, d := range durations {
		dur, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if dur <= 0 {
			dur = d.def
		}
		d.set(&cfg, dur)
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Relay.SendBuffer <= 0 {
		cfg.Relay.SendBuffer = defaultSendBuffer
	}
	if cfg.Relay.MaxFrameBytes <= 0 {
		cfg.Relay.MaxFrameBytes = defaultMaxFrameBytes
	}
	if cfg.Relay.Timezone == "" {
		cfg.Relay.Timezone = defaultTimezone
	}

	return cfg, nil
}

// Validate reports settings the relay cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Friends.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("friends.cache_backend redis needs redis.address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown friends.cache_backend %q", c.Friends.CacheBackend))
	}
	if c.Friends.ServiceURL == "" {
		errs = append(errs, errors.New("friends.service_url is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves relay.timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Relay.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid relay.timezone %q: %w", c.Relay.Timezone, err)
	}
	return loc, nil
}
