package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mcoot/snakesgame/internal/api"
	"github.com/mcoot/snakesgame/internal/dependencies/clock"
	"github.com/mcoot/snakesgame/internal/dependencies/random"
	"github.com/mcoot/snakesgame/internal/model"
	"github.com/mcoot/snakesgame/internal/services/admin"
	"github.com/mcoot/snakesgame/internal/services/auth"
	"github.com/mcoot/snakesgame/internal/services/broadcast"
	"github.com/mcoot/snakesgame/internal/services/connection"
	"github.com/mcoot/snakesgame/internal/services/game"
	"github.com/mcoot/snakesgame/internal/services/janitor"
	"github.com/mcoot/snakesgame/internal/services/session"
	"github.com/mcoot/snakesgame/internal/storage"
	"github.com/mcoot/snakesgame/internal/storage/memory"
	redisstorage "github.com/mcoot/snakesgame/internal/storage/redis"
	sqlitestorage "github.com/mcoot/snakesgame/internal/storage/sqlite"
	"github.com/mcoot/snakesgame/internal/transport/poll"
	"github.com/mcoot/snakesgame/internal/transport/relay"
	"github.com/mcoot/snakesgame/internal/transport/ws"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQLite = "sqlite"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage     storage.Storage
	StorageType string

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// Services
	GameController *game.Controller
	Registry       *connection.Registry
	Broadcaster    *broadcast.Broadcaster
	Dispatcher     *session.Dispatcher
	AdminService   *admin.Service
	AuthService    *auth.Service
	Janitor        *janitor.Janitor // nil when the store expires connections itself

	// Transports
	Hub         *ws.Hub
	Mailbox     *poll.Mailbox
	WSHandler   *ws.Handler
	PollHandler *poll.Handler

	// Node identifies this process to others sharing the store
	Node model.NodeID
	// Relay reaches channels held by other nodes; nil runs single-node
	Relay relay.Bus

	allowedOrigins []string
	relaySub       io.Closer
	ownedClients   []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "sqlite")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLiteConfig holds database settings (required if StorageType is "sqlite")
	SQLiteConfig *sqlitestorage.Config
	// Game tunes the engine; zero fields take game.DefaultConfig values
	Game game.Config
	// Admin is the operator account; empty disables the admin endpoints
	Admin auth.Config
	// ConnectionTTL is the lifetime of WebSocket channel records
	ConnectionTTL time.Duration
	// PollConnectionTTL is the idle lifetime of polling channels
	PollConnectionTTL time.Duration
	// JanitorInterval is how often expired connections are reaped
	JanitorInterval time.Duration
	// AllowedOrigins restricts browser origins; empty allows all
	AllowedOrigins []string
	// NodeID names this process; empty generates one
	NodeID model.NodeID
	// Relay carries pushes between nodes (optional). Without one, a Redis
	// store relays over its own connection and RelayURL opens a dedicated one.
	Relay relay.Bus
	// RelayURL is a Redis URL used to relay pushes when the store is not Redis
	RelayURL string
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	// Create storage based on type
	var store storage.Storage
	var redisClient *goredis.Client
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
		redisClient = redisStore.Client()
	case StorageTypeSQLite:
		if cfg.SQLiteConfig == nil {
			return nil, errors.New("SQLiteConfig required when StorageType is sqlite")
		}
		sqliteStore, err := sqlitestorage.New(*cfg.SQLiteConfig)
		if err != nil {
			return nil, err
		}
		store = sqliteStore
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'sqlite'", storageType)
	}

	var owned []io.Closer
	if cfg.Relay == nil && cfg.RelayURL != "" {
		client, err := dialRelay(cfg.RelayURL)
		if err != nil {
			if closer, ok := store.(io.Closer); ok {
				_ = closer.Close()
			}
			return nil, err
		}
		redisClient = client
		owned = append(owned, client)
	}
	if cfg.Relay == nil && redisClient != nil {
		cfg.Relay = relay.NewRedis(redisClient, logger)
	}

	app := newWithDependencies(store, clock.New(), random.New(), cfg, logger)
	app.StorageType = storageType
	app.ownedClients = owned
	return app, nil
}

func dialRelay(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect relay: %w", err)
	}
	return client, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *App {
	connectionTTL := cfg.ConnectionTTL
	if connectionTTL <= 0 {
		connectionTTL = connection.DefaultTTL
	}

	node := cfg.NodeID
	if node == "" {
		node = model.NodeID("node-" + uuid.NewString())
	}
	logger = logger.With(slog.String("node_id", string(node)))

	// Create services
	gameController := game.NewController(store, cfg.Game, clk, rnd, logger)
	registry := connection.NewRegistry(store, clk, connectionTTL, logger, connection.WithNode(node))

	hub := ws.NewHub(logger)
	mailbox := poll.NewMailbox(clk, logger)
	broadcastOpts := []broadcast.Option{broadcast.WithNode(node)}
	if cfg.Relay != nil {
		broadcastOpts = append(broadcastOpts, broadcast.WithRelay(cfg.Relay))
	}
	broadcaster := broadcast.New(store, broadcast.Fallback(hub, mailbox), logger, broadcastOpts...)

	dispatcher := session.NewDispatcher(gameController, registry, broadcaster, logger)

	var reaper *janitor.Janitor
	if r, ok := store.(storage.Reaper); ok {
		reaper = janitor.New(r, clk, cfg.JanitorInterval, logger)
	}

	return &App{
		Storage:        store,
		StorageType:    StorageTypeMemory,
		Clock:          clk,
		Random:         rnd,
		Logger:         logger,
		GameController: gameController,
		Registry:       registry,
		Broadcaster:    broadcaster,
		Dispatcher:     dispatcher,
		AdminService:   admin.New(store, logger),
		AuthService:    auth.New(cfg.Admin),
		Janitor:        reaper,
		Hub:            hub,
		Mailbox:        mailbox,
		WSHandler:      ws.NewHandler(hub, dispatcher, rnd, cfg.AllowedOrigins, logger),
		PollHandler:    poll.NewHandler(mailbox, registry, gameController, dispatcher, rnd, cfg.PollConnectionTTL, logger),
		Node:           node,
		Relay:          cfg.Relay,
		allowedOrigins: cfg.AllowedOrigins,
	}
}

// Router builds the HTTP handler serving every endpoint
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:         a.Logger,
		GameController: a.GameController,
		AdminService:   a.AdminService,
		AuthService:    a.AuthService,
		WebSocket:      a.WSHandler,
		Poll:           a.PollHandler,
		AllowedOrigins: a.allowedOrigins,
		StorageType:    a.StorageType,
		HealthCheck:    a.HealthCheck,
	})
}

// HealthCheck pings the storage backend when it supports it
func (a *App) HealthCheck(ctx context.Context) error {
	if pinger, ok := a.Storage.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Start begins background work and listens for pushes relayed from other nodes
func (a *App) Start() error {
	if a.Relay != nil && a.relaySub == nil {
		sub, err := a.Relay.Listen(context.Background(), a.Node, a.Broadcaster.DeliverRelayed)
		if err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
		a.relaySub = sub
	}
	if a.Janitor != nil {
		return a.Janitor.Start()
	}
	return nil
}

// Close stops background work, disconnects clients and releases storage
func (a *App) Close() error {
	var errs []error
	if a.relaySub != nil {
		errs = append(errs, a.relaySub.Close())
		a.relaySub = nil
	}
	if a.Janitor != nil {
		errs = append(errs, a.Janitor.Stop())
	}
	a.Hub.Close()
	for _, c := range a.ownedClients {
		errs = append(errs, c.Close())
	}
	if closer, ok := a.Storage.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
