// Package config loads the process configuration of the flowstate CLI
// from flags, environment variables, an optional config file and .env
// files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, as in
// FLOWSTATE_MAX_CONVERSATIONS.
const EnvPrefix = "FLOWSTATE"

// Snapshot store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMongo    = "mongo"
	StoreBlob     = "blob"
)

// Keys, as used in config files and, upper-cased, in the environment.
const (
	KeyMaxConversations      = "max_conversations"
	KeyMaxContinuations      = "max_continuations"
	KeyMaxTransitions        = "max_transitions"
	KeyStore                 = "store"
	KeySQLitePath            = "sqlite_path"
	KeyPostgresDSN           = "postgres_dsn"
	KeyRedisAddr             = "redis_addr"
	KeyRedisPrefix           = "redis_prefix"
	KeyMongoURI              = "mongo_uri"
	KeyMongoDatabase         = "mongo_database"
	KeyBlobURL               = "blob_url"
	KeySessionTTL            = "session_ttl"
	KeyLogLevel              = "log_level"
	KeyLogFormat             = "log_format"
	KeyAlwaysRedirectOnPause = "always_redirect_on_pause"
	KeyCompressSnapshots     = "compress_snapshots"
	KeyOTELEndpoint          = "otel_endpoint"
)

var (
	ErrStoreInvalid = errors.New(
		"store must be one of memory, sqlite, postgres, redis, mongo, blob",
	)
	ErrStoreSettingRequired    = errors.New("store setting is required")
	ErrMaxConversationsInvalid = errors.New(
		"max_conversations must be positive or -1",
	)
	ErrMaxContinuationsInvalid = errors.New(
		"max_continuations must be positive or -1",
	)
	ErrMaxTransitionsInvalid = errors.New(
		"max_transitions must be positive or -1",
	)
	ErrSessionTTLInvalid = errors.New("session_ttl must be positive")
	ErrLogLevelInvalid   = errors.New(
		"log_level must be one of debug, info, warn, error",
	)
	ErrLogFormatInvalid = errors.New("log_format must be text or json")
)

// Config is the CLI's process configuration.
type Config struct {
	MaxConversations int `json:"max_conversations"`
	MaxContinuations int `json:"max_continuations"`
	MaxTransitions   int `json:"max_transitions"`

	Store         string `json:"store"`
	SQLitePath    string `json:"sqlite_path,omitempty"`
	PostgresDSN   string `json:"-"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPrefix   string `json:"redis_prefix,omitempty"`
	MongoURI      string `json:"-"`
	MongoDatabase string `json:"mongo_database,omitempty"`
	BlobURL       string `json:"blob_url,omitempty"`

	SessionTTL time.Duration `json:"session_ttl"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	AlwaysRedirectOnPause bool `json:"always_redirect_on_pause"`
	CompressSnapshots     bool `json:"compress_snapshots"`

	// OTELEndpoint is the OTLP/HTTP collector. Empty disables export.
	OTELEndpoint string `json:"otel_endpoint,omitempty"`
}

// New returns a viper instance carrying the defaults and reading
// FLOWSTATE_-prefixed environment variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyMaxConversations, 5)
	v.SetDefault(KeyMaxContinuations, 30)
	v.SetDefault(KeyMaxTransitions, 1000)
	v.SetDefault(KeyStore, StoreMemory)
	v.SetDefault(KeySQLitePath, "flowstate.db")
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPrefix, "flowstate:")
	v.SetDefault(KeyMongoURI, "mongodb://localhost:27017")
	v.SetDefault(KeyMongoDatabase, "flowstate")
	v.SetDefault(KeyBlobURL, "mem://")
	v.SetDefault(KeySessionTTL, 30*time.Minute)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyAlwaysRedirectOnPause, false)
	v.SetDefault(KeyCompressSnapshots, false)
	v.SetDefault(KeyOTELEndpoint, "")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// LoadEnvFiles loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
// Without paths it loads ".env".
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads an optional config file into v and returns the validated
// configuration.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		MaxConversations:      v.GetInt(KeyMaxConversations),
		MaxContinuations:      v.GetInt(KeyMaxContinuations),
		MaxTransitions:        v.GetInt(KeyMaxTransitions),
		Store:                 v.GetString(KeyStore),
		SQLitePath:            v.GetString(KeySQLitePath),
		PostgresDSN:           v.GetString(KeyPostgresDSN),
		RedisAddr:             v.GetString(KeyRedisAddr),
		RedisPrefix:           v.GetString(KeyRedisPrefix),
		MongoURI:              v.GetString(KeyMongoURI),
		MongoDatabase:         v.GetString(KeyMongoDatabase),
		BlobURL:               v.GetString(KeyBlobURL),
		SessionTTL:            v.GetDuration(KeySessionTTL),
		LogLevel:              v.GetString(KeyLogLevel),
		LogFormat:             v.GetString(KeyLogFormat),
		AlwaysRedirectOnPause: v.GetBool(KeyAlwaysRedirectOnPause),
		CompressSnapshots:     v.GetBool(KeyCompressSnapshots),
		OTELEndpoint:          v.GetString(KeyOTELEndpoint),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !boundOK(c.MaxConversations) {
		return ErrMaxConversationsInvalid
	}
	if !boundOK(c.MaxContinuations) {
		return ErrMaxContinuationsInvalid
	}
	if !boundOK(c.MaxTransitions) {
		return ErrMaxTransitionsInvalid
	}
	if c.SessionTTL <= 0 {
		return ErrSessionTTLInvalid
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrLogLevelInvalid
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return ErrLogFormatInvalid
	}

	required := map[string][2]string{
		StoreSQLite:   {KeySQLitePath, c.SQLitePath},
		StorePostgres: {KeyPostgresDSN, c.PostgresDSN},
		StoreRedis:    {KeyRedisAddr, c.RedisAddr},
		StoreMongo:    {KeyMongoURI, c.MongoURI},
		StoreBlob:     {KeyBlobURL, c.BlobURL},
	}
	if c.Store == StoreMemory {
		return nil
	}
	setting, ok := required[c.Store]
	if !ok {
		return fmt.Errorf("%w: %q", ErrStoreInvalid, c.Store)
	}
	if setting[1] == "" {
		return fmt.Errorf("%w: %s for store %s", ErrStoreSettingRequired, setting[0], c.Store)
	}
	return nil
}

func boundOK(n int) bool {
	return n > 0 || n == -1
}
