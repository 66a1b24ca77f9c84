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

package integration

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/efchatnet/efrelay/backend/friends"
	"github.com/efchatnet/efrelay/backend/handlers"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/registry"
	"github.com/efchatnet/efrelay/backend/relay"
	"github.com/efchatnet/efrelay/backend/storage"
	redisstore "github.com/efchatnet/efrelay/backend/storage/redis"
)

// RelayIntegration wires the chat relay core: registry, friend directory,
// websocket service and the unread side-channel.
type RelayIntegration struct {
	store          storage.Store
	registry       *registry.Registry
	cache          *friends.Cache
	service        *relay.Service
	unreadHandler  *handlers.UnreadHandler
	verifier       *middleware.Verifier
	metrics        *prometheus.Registry
	allowedOrigins []string
	jwtSecret      string
	log            *zap.Logger
}

// Config holds configuration for the relay integration
type Config struct {
	Store storage.Store
	// Redis backs the friend-list cache when CacheBackend is "redis".
	Redis        *redis.Client
	CacheBackend string
	CacheTTL     time.Duration

	// Friends overrides the HTTP friendship client, mostly for tests.
	Friends        friends.Source
	FriendsURL     string
	FriendsTimeout time.Duration

	JWTSecret string
	JWTIssuer string

	SendBuffer     int
	MaxFrameBytes  int64
	Location       *time.Location
	AllowedOrigins []string

	Logger *zap.Logger
}

// NewRelayIntegration builds the relay from cfg. The store must already be migrated.
func NewRelayIntegration(cfg *Config) (*RelayIntegration, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, &ValidationError{Message: "message store is not configured"}
	}
	if cfg.JWTSecret == "" {
		return nil, &ValidationError{Message: "JWT secret is not configured"}
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var friendStore storage.FriendCacheStore
	switch cfg.CacheBackend {
	case "", "memory":
		friendStore = friends.NewMemoryStore()
	case "redis":
		if cfg.Redis == nil {
			return nil, &ValidationError{Message: "redis friend cache selected without a redis client"}
		}
		friendStore = redisstore.NewFriendStore(cfg.Redis)
	default:
		return nil, &ValidationError{Message: "unknown friend cache backend " + cfg.CacheBackend}
	}

	source := cfg.Friends
	if source == nil {
		if cfg.FriendsURL == "" {
			return nil, &ValidationError{Message: "friendship service URL is not configured"}
		}
		source = friends.NewClient(cfg.FriendsURL, cfg.FriendsTimeout)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(promRegistry)

	verifier := middleware.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	reg := registry.New()
	cache := friends.NewCache(source, friendStore, log.Named("friends"), friends.Options{
		TTL:      cfg.CacheTTL,
		OnLookup: metrics.RecordFriendLookup,
	})
	service := relay.NewService(verifier, reg, cache, cfg.Store, log.Named("relay"), relay.Options{
		SendBuffer:    cfg.SendBuffer,
		MaxFrameBytes: cfg.MaxFrameBytes,
		Location:      cfg.Location,
		CheckOrigin:   originChecker(cfg.AllowedOrigins),
		Metrics:       metrics,
	})

	return &RelayIntegration{
		store:          cfg.Store,
		registry:       reg,
		cache:          cache,
		service:        service,
		unreadHandler:  handlers.NewUnreadHandler(cfg.Store, log.Named("unread")),
		verifier:       verifier,
		metrics:        promRegistry,
		allowedOrigins: cfg.AllowedOrigins,
		jwtSecret:      cfg.JWTSecret,
		log:            log,
	}, nil
}

// originChecker accepts requests without an Origin header and, when a list
// is configured, only the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// RegisterRoutes adds the relay routes to an existing router.
// If authMiddleware is nil, it will use the built-in JWT validation
func (e *RelayIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	router.HandleFunc("/ws", e.service.ServeWS).Methods("GET")
	router.HandleFunc("/health", handlers.Health(e.store)).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(e.metrics, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/chat").Subrouter()
	api.Use(middleware.CORS(e.allowedOrigins))
	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(e.verifier, e.log.Named("auth")))
	}

	api.HandleFunc("/unread-messages", e.unreadHandler.GetUnreadCounts).Methods("GET", "OPTIONS")
	api.HandleFunc("/reset-unread-messages", e.unreadHandler.ResetUnread).Methods("POST", "OPTIONS")
}

// Start launches background work that lives as long as ctx.
func (e *RelayIntegration) Start(ctx context.Context) {
	e.cache.StartSweeper(ctx)
}

// Shutdown closes every open websocket session.
func (e *RelayIntegration) Shutdown() {
	e.service.Shutdown()
}

// ValidateSetup checks if the relay is properly configured
func (e *RelayIntegration) ValidateSetup(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return &ValidationError{Message: "database is unreachable: " + err.Error()}
	}

	if e.jwtSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}

	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// GetStore returns the underlying storage implementation
func (e *RelayIntegration) GetStore() storage.Store {
	return e.store
}

func (e *RelayIntegration) GetRegistry() *registry.Registry {
	return e.registry
}

func (e *RelayIntegration) GetFriendCache() *friends.Cache {
	return e.cache
}

func (e *RelayIntegration) GetService() *relay.Service {
	return e.service
}
