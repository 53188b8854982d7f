package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP         HTTPConfig
	DatabaseURL  string
	RedisURL     string
	Auth         AuthConfig
	Password     PasswordConfig
	Files        FilesConfig
	Probe        ProbeConfig
	AuditLogFile string
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	BootstrapUsername       string
	BootstrapPassword       string
	SessionTTL              time.Duration
	SessionSweepInterval    time.Duration
	UserStateFile           string
	CookieSecure            bool
	AllowAnonymousResources bool
	LoginMaxFailures        int
	LoginFailureWindow      time.Duration
}

type PasswordConfig struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type FilesConfig struct {
	RootDir string
}

type ProbeConfig struct {
	Timeout time.Duration
}

// Load resolves configuration from the environment, with an optional YAML
// file named by CONFIG_FILE as a fallback layer. Keys in the file match the
// environment variable names; environment values always win.
func Load() (Config, error) {
	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            file.str("HTTP_ADDR", ":8080"),
			ReadTimeout:     time.Duration(file.num("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(file.num("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(file.num("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		DatabaseURL: file.str("DATABASE_URL", ""),
		RedisURL:    file.str("REDIS_URL", ""),
		Auth: AuthConfig{
			BootstrapUsername:       file.str("AUTH_BOOTSTRAP_USERNAME", "admin"),
			BootstrapPassword:       file.str("AUTH_BOOTSTRAP_PASSWORD", ""),
			SessionTTL:              time.Duration(file.num("AUTH_SESSION_TTL_SEC", 1800)) * time.Second,
			SessionSweepInterval:    time.Duration(file.num("AUTH_SESSION_SWEEP_SEC", 60)) * time.Second,
			UserStateFile:           file.str("AUTH_USER_STATE_FILE", "./data/users.json"),
			CookieSecure:            file.flag("AUTH_COOKIE_SECURE", true),
			AllowAnonymousResources: file.flag("AUTH_ALLOW_ANONYMOUS_RESOURCES", false),
			LoginMaxFailures:        file.num("AUTH_LOGIN_MAX_FAILURES", 10),
			LoginFailureWindow:      time.Duration(file.num("AUTH_LOGIN_FAILURE_WINDOW_SEC", 300)) * time.Second,
		},
		Password: PasswordConfig{
			MemoryKiB:   uint32(file.num("PASSWORD_MEMORY_KIB", 64*1024)),
			Time:        uint32(file.num("PASSWORD_TIME", 2)),
			Parallelism: uint8(file.num("PASSWORD_PARALLELISM", 2)),
			SaltLength:  uint32(file.num("PASSWORD_SALT_LENGTH", 16)),
			KeyLength:   uint32(file.num("PASSWORD_KEY_LENGTH", 32)),
		},
		Files: FilesConfig{
			RootDir: file.str("FILES_ROOT_DIR", "./data/files"),
		},
		Probe: ProbeConfig{
			Timeout: time.Duration(file.num("PROBE_TIMEOUT_SEC", 3)) * time.Second,
		},
		AuditLogFile: file.str("AUDIT_LOG_FILE", "./data/audit.log"),
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.Auth.BootstrapUsername == "" && cfg.Auth.BootstrapPassword != "" {
		return Config{}, fmt.Errorf("AUTH_BOOTSTRAP_USERNAME must not be empty when a bootstrap password is set")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("AUTH_SESSION_TTL_SEC must be > 0")
	}
	if cfg.Auth.SessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("AUTH_SESSION_SWEEP_SEC must be > 0")
	}
	if cfg.Auth.UserStateFile == "" {
		return Config{}, fmt.Errorf("AUTH_USER_STATE_FILE must not be empty")
	}
	if cfg.Auth.LoginMaxFailures <= 0 {
		return Config{}, fmt.Errorf("AUTH_LOGIN_MAX_FAILURES must be > 0")
	}
	if cfg.Auth.LoginFailureWindow <= 0 {
		return Config{}, fmt.Errorf("AUTH_LOGIN_FAILURE_WINDOW_SEC must be > 0")
	}
	if cfg.Files.RootDir == "" {
		return Config{}, fmt.Errorf("FILES_ROOT_DIR must not be empty")
	}
	if cfg.Probe.Timeout <= 0 {
		return Config{}, fmt.Errorf("PROBE_TIMEOUT_SEC must be > 0")
	}
	if cfg.AuditLogFile == "" {
		return Config{}, fmt.Errorf("AUDIT_LOG_FILE must not be empty")
	}

	return cfg, nil
}

// fileValues is the optional YAML layer between environment and defaults.
type fileValues map[string]string

func loadFile(path string) (fileValues, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values fileValues
	if err := yaml.Unmarshal(b, &values); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return values, nil
}

func (f fileValues) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	if v, ok := f[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (f fileValues) num(key string, fallback int) int {
	raw := f.str(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (f fileValues) flag(key string, fallback bool) bool {
	raw := f.str(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return b
}
