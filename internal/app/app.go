package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"gatekeepersvr/gatekeeper/internal/audit"
	"gatekeepersvr/gatekeeper/internal/auth"
	"gatekeepersvr/gatekeeper/internal/config"
	"gatekeepersvr/gatekeeper/internal/files"
	"gatekeepersvr/gatekeeper/internal/httpserver"
	"gatekeepersvr/gatekeeper/internal/netprobe"
	"gatekeepersvr/gatekeeper/internal/observability"
	"gatekeepersvr/gatekeeper/internal/password"
)

type App struct {
	cfg     config.Config
	log     *slog.Logger
	db      *sql.DB
	redis   *redis.Client
	service *auth.Service
	server  *httpserver.Server
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger()

	var err error
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}
	closeDB := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			closeDB()
			_ = redisClient.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var userStore auth.UserStore
	if db != nil {
		userStore, err = auth.NewPostgresUserStore(db)
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("create postgres user store: %w", err)
		}
	} else {
		userStore, err = auth.NewFileUserStore(cfg.Auth.UserStateFile)
		if err != nil {
			return nil, fmt.Errorf("create user store: %w", err)
		}
	}

	// Session write-through: Redis wins when both backends are configured,
	// the in-memory table stays authoritative either way.
	var sessionStore auth.SessionStore
	switch {
	case redisClient != nil:
		sessionStore, err = auth.NewRedisSessionStore(redisClient)
		if err != nil {
			closeDB()
			_ = redisClient.Close()
			return nil, fmt.Errorf("create redis session store: %w", err)
		}
	case db != nil:
		sessionStore, err = auth.NewPostgresSessionStore(db)
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("create postgres session store: %w", err)
		}
	}

	hasher, err := password.NewHasher(password.Params{
		MemoryKiB:   cfg.Password.MemoryKiB,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create password hasher: %w", err)
	}

	authService, err := auth.NewService(userStore, hasher, auth.ServiceConfig{
		SessionTTL:   cfg.Auth.SessionTTL,
		SessionStore: sessionStore,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	if err := authService.LoadSessionState(); err != nil {
		closeDB()
		return nil, fmt.Errorf("load auth session state: %w", err)
	}

	if cfg.Auth.BootstrapPassword != "" {
		if err := bootstrapAdmin(userStore, hasher, cfg.Auth, logger); err != nil {
			closeDB()
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.Files.RootDir, 0o750); err != nil {
		closeDB()
		return nil, fmt.Errorf("create file root: %w", err)
	}
	fileRoot, err := files.NewRoot(cfg.Files.RootDir)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("open file root: %w", err)
	}

	throttle := auth.NewLoginThrottle(cfg.Auth.LoginMaxFailures, cfg.Auth.LoginFailureWindow)
	guard := auth.NewGuard(authService, throttle, cfg.Auth.AllowAnonymousResources)

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:         authService,
		Guard:        guard,
		Files:        fileRoot,
		Pinger:       netprobe.NewExecPinger(cfg.Probe.Timeout),
		Audit:        audit.NewLogger(cfg.AuditLogFile),
		Metrics:      observability.NewMetrics(),
		Log:          logger,
		CookieSecure: cfg.Auth.CookieSecure,
	})

	return &App{
		cfg:     cfg,
		log:     logger,
		db:      db,
		redis:   redisClient,
		service: authService,
		server:  server,
	}, nil
}

// bootstrapAdmin seeds the one admin account from configuration. Admin
// standing is never reachable through registration, so a fresh deployment
// has exactly this path to its first privileged user.
func bootstrapAdmin(store auth.UserStore, hasher *password.Hasher, cfg config.AuthConfig, log *slog.Logger) error {
	if _, err := store.GetByUsername(cfg.BootstrapUsername); err == nil {
		return nil
	} else if !errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("check bootstrap user: %w", err)
	}

	hash, err := hasher.Hash(cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	if err := store.Insert(auth.User{
		ID:           "bootstrap-admin",
		Username:     cfg.BootstrapUsername,
		PasswordHash: hash,
		Admin:        true,
	}); err != nil {
		return fmt.Errorf("create bootstrap user: %w", err)
	}
	log.Info("bootstrap admin created", "username", cfg.BootstrapUsername)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.db != nil {
			_ = a.db.Close()
		}
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	go a.sweepSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

func (a *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Auth.SessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.service.SweepExpired(); n > 0 {
				a.log.Info("expired sessions swept", "count", n)
			}
		}
	}
}
