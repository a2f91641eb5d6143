// Command flowstate runs demo conversations against a configured snapshot
// store and inspects execution keys and configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petrijr/flowstate/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

type cli struct {
	v      *viper.Viper
	cfg    config.Config
	logger *slog.Logger
}

// flagKeys binds persistent flags to configuration keys.
var flagKeys = map[string]string{
	"store":             config.KeyStore,
	"log-level":         config.KeyLogLevel,
	"log-format":        config.KeyLogFormat,
	"max-conversations": config.KeyMaxConversations,
	"max-continuations": config.KeyMaxContinuations,
	"max-transitions":   config.KeyMaxTransitions,
	"sqlite-path":       config.KeySQLitePath,
	"postgres-dsn":      config.KeyPostgresDSN,
	"redis-addr":        config.KeyRedisAddr,
	"redis-prefix":      config.KeyRedisPrefix,
	"mongo-uri":         config.KeyMongoURI,
	"mongo-database":    config.KeyMongoDatabase,
	"blob-url":          config.KeyBlobURL,
	"session-ttl":       config.KeySessionTTL,
	"compress":          config.KeyCompressSnapshots,
	"always-redirect":   config.KeyAlwaysRedirectOnPause,
	"otel-endpoint":     config.KeyOTELEndpoint,
}

func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	flags.String("config-file", "", "Path to config file.")
	flags.String("env-file", ".env", "Path to .env file; missing files are ignored.")
	flags.String("store", config.StoreMemory, "snapshot store: memory, sqlite, postgres, redis, mongo or blob")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "text", "text or json")
	flags.Int("max-conversations", 5, "conversations per user session, -1 for unlimited")
	flags.Int("max-continuations", 30, "snapshots per conversation, -1 for unlimited")
	flags.Int("max-transitions", 1000, "transitions per request, -1 for unlimited")
	flags.String("sqlite-path", "flowstate.db", "SQLite database file")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("redis-addr", "localhost:6379", "Redis host:port")
	flags.String("redis-prefix", "flowstate:", "Redis key prefix")
	flags.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	flags.String("mongo-database", "flowstate", "MongoDB database")
	flags.String("blob-url", "mem://", "blob bucket URL")
	flags.Duration("session-ttl", config.New().GetDuration(config.KeySessionTTL), "idle time after which a session expires")
	flags.Bool("compress", false, "gzip snapshots")
	flags.Bool("always-redirect", false, "request a redirect every time a view state pauses")
	flags.String("otel-endpoint", "", "OTLP/HTTP collector endpoint")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return err
	}
	if err := config.LoadEnvFiles(envFile); err != nil {
		return err
	}

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if c.cfg, err = config.Load(c.v, configFile); err != nil {
		return err
	}

	c.logger = newLogger(c.cfg.LogLevel, c.cfg.LogFormat, cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	return nil
}

func newRootCmd() (*cobra.Command, error) {
	c := &cli{v: config.New()}
	cmd := &cobra.Command{
		Use:               "flowstate",
		Short:             "Run and inspect flowstate conversations",
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	if err := setupFlags(cmd, c.v); err != nil {
		return nil, err
	}
	cmd.AddCommand(c.demoCmd(), c.keysCmd(), c.configCmd())
	return cmd, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, err := newRootCmd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
