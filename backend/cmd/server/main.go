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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/efchatnet/efrelay/backend/config"
	"github.com/efchatnet/efrelay/backend/integration"
	"github.com/efchatnet/efrelay/backend/logging"
	"github.com/efchatnet/efrelay/backend/storage"
	"github.com/efchatnet/efrelay/backend/storage/postgres"
	"github.com/efchatnet/efrelay/backend/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable", zap.String("address", cfg.Redis.Address), zap.Error(err))
		}
	}

	relay, err := integration.NewRelayIntegration(&integration.Config{
		Store:          store,
		Redis:          rdb,
		CacheBackend:   cfg.Friends.CacheBackend,
		CacheTTL:       cfg.Friends.CacheTTL,
		FriendsURL:     cfg.Friends.ServiceURL,
		FriendsTimeout: cfg.Friends.RequestTimeout,
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTIssuer:      cfg.Auth.JWTIssuer,
		SendBuffer:     cfg.Relay.SendBuffer,
		MaxFrameBytes:  cfg.Relay.MaxFrameBytes,
		Location:       loc,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Failed to build relay", zap.Error(err))
	}
	if err := relay.ValidateSetup(ctx); err != nil {
		logger.Fatal("Relay setup is invalid", zap.Error(err))
	}
	relay.Start(ctx)

	r := mux.NewRouter()
	relay.RegisterRoutes(r, nil)

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}

	logger.Info("relay server starting",
		zap.String("address", ln.Addr().String()),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("friend_cache", cfg.Friends.CacheBackend))

	if err := serve(ctx, srv, ln, relay, cfg.ShutdownGracePeriod, logger); err != nil {
		logger.Error("relay server stopped uncleanly", zap.Error(err))
		return
	}
	logger.Info("relay server stopped")
}

type sessionCloser interface {
	Shutdown()
}

// serve runs srv on ln until ctx is done, then closes live sessions and
// drains in-flight requests for up to grace. It returns only after the
// drain has finished, so deferred store and cache cleanup runs last.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, sessions sessionCloser, grace time.Duration, logger *zap.Logger) error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Info("shutting down", zap.Duration("grace_period", grace))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		sessions.Shutdown()
		done <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}

func openStore(ctx context.Context, db config.DatabaseConfig) (storage.Store, error) {
	if db.Driver == config.DriverSQLite {
		store, err := sqlite.Open(db.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := postgres.Open(ctx, db.URL)
	if err != nil {
		return nil, err
	}
	return store, nil
}
