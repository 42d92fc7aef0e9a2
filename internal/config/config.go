package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// DefaultJWTSecret is used when no secret is configured. The server logs a
// loud warning when it is still in use.
const DefaultJWTSecret = "why_there_is_no_secret_key_wtf_bro_you_should_set_it"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string   `yaml:"port"`
	LogLevel                 string   `yaml:"logLevel"`
	Debug                    bool     `yaml:"debug"`
	DataDir                  string   `yaml:"dataDir"`
	StorageDriver            string   `yaml:"storageDriver"`
	DatabaseURL              string   `yaml:"databaseURL"`
	JWTSecret                string   `yaml:"jwtSecret"`
	JWTIssuer                string   `yaml:"jwtIssuer"`
	JWTAudience              string   `yaml:"jwtAudience"`
	AccessTokenExpireMinutes int      `yaml:"accessTokenExpireMinutes"`
	RedisAddr                string   `yaml:"redisAddr"`
	RedisPassword            string   `yaml:"redisPassword"`
	AllowedOrigins           []string `yaml:"allowedOrigins"`

	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	CreateRateLimitPerMinute int      `yaml:"createRateLimitPerMinute"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`

	BackupEndpoint  string `yaml:"backupEndpoint"`
	BackupAccessKey string `yaml:"backupAccessKey"`
	BackupSecretKey string `yaml:"backupSecretKey"`
	BackupBucket    string `yaml:"backupBucket"`
	BackupUseSSL    bool   `yaml:"backupUseSSL"`
}

// Load reads config from path (defaults to config.yaml), applies environment
// overrides, and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("REFBOOK_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("REFBOOK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("REFBOOK_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("REFBOOK_DATA_DIR"); v != "" {
		cfg.DataDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("REFBOOK_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("REFBOOK_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = strings.TrimSpace(v)
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = strings.TrimSpace(v)
	}
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.AccessTokenExpireMinutes = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CREATE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.CreateRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("REFBOOK_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("REFBOOK_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("REFBOOK_BACKUP_ENDPOINT"); v != "" {
		cfg.BackupEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("REFBOOK_BACKUP_ACCESS_KEY"); v != "" {
		cfg.BackupAccessKey = v
	}
	if v := os.Getenv("REFBOOK_BACKUP_SECRET_KEY"); v != "" {
		cfg.BackupSecretKey = v
	}
	if v := os.Getenv("REFBOOK_BACKUP_BUCKET"); v != "" {
		cfg.BackupBucket = strings.TrimSpace(v)
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = "database_file"
	}
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = "file"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = DefaultJWTSecret
	}
	if cfg.AccessTokenExpireMinutes <= 0 {
		cfg.AccessTokenExpireMinutes = 30
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or REFBOOK_PORT)")
	}
	switch cfg.StorageDriver {
	case "file", "postgres":
	default:
		return fmt.Errorf("config: unknown storageDriver %q (want file or postgres)", cfg.StorageDriver)
	}
	if cfg.StorageDriver == "postgres" && strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required for the postgres storage driver")
	}
	if (cfg.LoginRateLimitPerMinute > 0 || cfg.CreateRateLimitPerMinute > 0) && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when rate limits are set")
	}
	if cfg.BackupEndpoint != "" && strings.TrimSpace(cfg.BackupBucket) == "" {
		return errors.New("config: backupBucket is required when backupEndpoint is set")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
