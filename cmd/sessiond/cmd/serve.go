package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/cobra"
)

var (
	listenAddr  string
	storeKind   string
	redisDSN    string
	postgresDSN string
	boltPath    string
	logLevel    string
	jsonLogs    bool
	seedUsers   []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(os.Stderr, envOr(logLevel, "LOG_LEVEL"), jsonLogs || envBool("JSON_LOGS"))
		if err != nil {
			return err
		}

		cfg, err := loadServeConfig(cmd)
		if err != nil {
			return err
		}
		users, err := parseSeedUsers(seedUsers)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		be, err := openBackend(ctx, cfg, users, logger)
		cancel()
		if err != nil {
			return err
		}
		defer be.close()

		var auditSink goSession.AuditSink
		if cfg.Audit.Enabled {
			auditSink = goSession.NewSlogSink(logger.With("component", "audit"))
		}
		builder := goSession.New().
			WithConfig(cfg).
			WithStore(be.store).
			WithCredentialVerifier(be.verifier).
			WithLogger(logger).
			WithAuditSink(auditSink)
		if be.throttle != nil {
			builder.WithThrottleRedis(be.throttle)
		}
		engine, err := builder.Build()
		if err != nil {
			return err
		}
		defer engine.Close()

		srv := &server{engine: engine, health: be.health, logger: logger}
		httpServer := &http.Server{
			Addr:              listenAddr,
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()
		logger.Info("sessiond listening", "addr", listenAddr, "store", cfg.Store.Backend)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&storeKind, "store", "", "Session store backend: redis, postgres or bolt (overrides SESSION_STORE_BACKEND)")
	serveCmd.Flags().StringVar(&redisDSN, "redis-dsn", "", "Redis URL (overrides REDIS_DSN)")
	serveCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL DSN (overrides POSTGRES_DSN)")
	serveCmd.Flags().StringVar(&boltPath, "bolt-path", "", "bbolt database file (overrides BOLT_PATH)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	serveCmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Emit JSON logs (or set JSON_LOGS=true)")
	serveCmd.Flags().StringArrayVar(&seedUsers, "user", nil, "Seed user as name:password[:role]; repeatable")
}

// loadServeConfig reads the environment, then applies any flag the user set.
func loadServeConfig(cmd *cobra.Command) (goSession.Config, error) {
	env := os.LookupEnv
	overrides := map[string]string{}
	set := func(flag, envName, value string) {
		if cmd.Flags().Changed(flag) {
			overrides[envName] = value
		}
	}
	set("store", goSession.EnvStoreBackend, storeKind)
	set("redis-dsn", goSession.EnvRedisDSN, redisDSN)
	set("postgres-dsn", goSession.EnvPostgresDSN, postgresDSN)
	set("bolt-path", goSession.EnvBoltPath, boltPath)

	return goSession.LoadConfigFromLookup(func(name string) (string, bool) {
		if v, ok := overrides[name]; ok {
			return v, true
		}
		return env(name)
	})
}

func envOr(value, name string) string {
	if value != "" {
		return value
	}
	return os.Getenv(name)
}

func envBool(name string) bool {
	b, _ := strconv.ParseBool(os.Getenv(name))
	return b
}
