package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/credentials"
	"github.com/MrEthical07/goSession/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backend bundles the session store with whatever else the chosen backend
// provides. close releases every client it opened.
type backend struct {
	store    session.Store
	health   healthCheck
	verifier goSession.CredentialVerifier
	// throttle is set only for the redis backend.
	throttle redis.UniversalClient
	close    func()
}

func openBackend(ctx context.Context, cfg goSession.Config, users []seedUser, logger *slog.Logger) (*backend, error) {
	hasher, err := credentials.NewArgon2(credentials.DefaultArgon2Config())
	if err != nil {
		return nil, err
	}

	switch cfg.Store.Backend {
	case goSession.StoreBackendRedis:
		opts, err := redis.ParseURL(cfg.Store.RedisDSN)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", goSession.EnvRedisDSN, err)
		}
		rdb := redis.NewClient(opts)
		store := session.NewRedisStore(rdb, cfg.Store.Prefix)
		verifier, err := memoryVerifier(hasher, users)
		if err != nil {
			rdb.Close()
			return nil, err
		}
		return &backend{
			store: store,
			health: func(ctx context.Context) error {
				_, err := store.Ping(ctx)
				return err
			},
			verifier: verifier,
			throttle: rdb,
			close:    func() { _ = rdb.Close() },
		}, nil

	case goSession.StoreBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := session.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("session schema: %w", err)
		}
		verifier, err := credentials.NewPostgresVerifier(pool, hasher)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := verifier.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("users schema: %w", err)
		}
		for _, u := range users {
			if _, err := verifier.CreateUser(ctx, u.username, u.password, u.role); err != nil && !errors.Is(err, credentials.ErrUserExists) {
				pool.Close()
				return nil, fmt.Errorf("seed user %s: %w", u.username, err)
			}
		}

		sweepCtx, stopSweep := context.WithCancel(context.Background())
		go sweepPostgres(sweepCtx, store, cfg.Store.SweepInterval, logger)
		return &backend{
			store:    store,
			health:   pool.Ping,
			verifier: verifier,
			close: func() {
				stopSweep()
				pool.Close()
			},
		}, nil

	case goSession.StoreBackendBolt:
		store, err := session.OpenBoltStore(cfg.Store.BoltPath, cfg.Store.SweepInterval)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		verifier, err := memoryVerifier(hasher, users)
		if err != nil {
			store.Close()
			return nil, err
		}
		return &backend{
			store:    store,
			verifier: verifier,
			close:    func() { _ = store.Close() },
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", goSession.ErrConfig, cfg.Store.Backend)
}

func memoryVerifier(hasher *credentials.Argon2, users []seedUser) (*credentials.MemoryVerifier, error) {
	v, err := credentials.NewMemoryVerifier(hasher)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		var attrs map[string]string
		if u.role != "" {
			attrs = map[string]string{"role": u.role}
		}
		if err := v.AddUser(u.username, u.password, u.username, attrs); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.username, err)
		}
	}
	return v, nil
}

func sweepPostgres(ctx context.Context, store *session.PostgresStore, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", "component", "store", "err", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", "component", "store", "count", n)
			}
		}
	}
}

// seedUser is a user created at startup from --user name:password[:role].
type seedUser struct {
	username string
	password string
	role     string
}

func parseSeedUsers(entries []string) ([]seedUser, error) {
	out := make([]seedUser, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --user %q: want name:password[:role]", entry)
		}
		u := seedUser{username: parts[0], password: parts[1]}
		if len(parts) == 3 {
			u.role = parts[2]
		}
		out = append(out, u)
	}
	return out, nil
}
