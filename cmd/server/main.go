package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"refbook/internal/app"
	"refbook/internal/auth"
	"refbook/internal/backup"
	"refbook/internal/config"
	"refbook/internal/database"
	"refbook/internal/ratelimit"
	"refbook/internal/server"
	"refbook/internal/util"
	"refbook/pkg/docstore"
	"refbook/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	if cfg.JWTSecret == config.DefaultJWTSecret {
		logger.Warn("running with the default JWT secret, set SECRET_KEY in production")
	}

	tables, err := openTables(cfg)
	if err != nil {
		util.Fatal("failed to open storage", "driver", cfg.StorageDriver, "error", err)
	}
	db := database.New(tables, logger)

	var revoker auth.TokenRevoker
	if cfg.RedisAddr != "" {
		revoker = auth.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		logger.Warn("no redis configured, token revocation is process-local")
		revoker = auth.NewMemoryTokenRevoker()
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:   cfg.JWTSecret,
		TTL:      time.Duration(cfg.AccessTokenExpireMinutes) * time.Minute,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Revoker:  revoker,
	})
	if err != nil {
		util.Fatal("failed to init token issuer", "error", err)
	}

	var backupRunner *backup.Runner
	if cfg.BackupEndpoint != "" {
		store, err := storage.NewMinioStore(cfg.BackupEndpoint, cfg.BackupAccessKey, cfg.BackupSecretKey, cfg.BackupBucket, cfg.BackupUseSSL)
		if err != nil {
			util.Fatal("failed to init backup storage", "error", err)
		}
		backupRunner = backup.NewRunner(store, cfg.DataDir, logger)
	}

	appCore, err := app.New(app.Config{
		Database: db,
		Tokens:   tokens,
		Backup:   backupRunner,
		Debug:    cfg.Debug,
	})
	if err != nil {
		util.Fatal("failed to init app", "error", err)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trustedProxyCidrs", "error", err)
	}
	loginLimiter, err := newLimiter(cfg, cfg.LoginRateLimitPerMinute, "refbook:ratelimit:login")
	if err != nil {
		util.Fatal("failed to init login rate limiter", "error", err)
	}
	createLimiter, err := newLimiter(cfg, cfg.CreateRateLimitPerMinute, "refbook:ratelimit:create")
	if err != nil {
		util.Fatal("failed to init create rate limiter", "error", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: trustedProxies,
		LoginLimiter:   loginLimiter,
		CreateLimiter:  createLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("refbook server listening", "addr", addr, "driver", cfg.StorageDriver, "debug", cfg.Debug)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openTables(cfg config.FileConfig) (database.Tables, error) {
	switch cfg.StorageDriver {
	case "postgres":
		db, err := docstore.OpenGormDB(cfg.DatabaseURL)
		if err != nil {
			return database.Tables{}, err
		}
		return database.GormTables(db), nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return database.Tables{}, err
		}
		return database.OpenFileTables(cfg.DataDir)
	}
}

func newLimiter(cfg config.FileConfig, perMinute int, prefix string) (*ratelimit.FixedWindowLimiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	return ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
}
