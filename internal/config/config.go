package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized as config overrides.
const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvPort            = "PORT"
	EnvDBConnection    = "DB_CONNECTION"
	EnvDebugMode       = "DEBUG_MODE"
	EnvJWTSecret       = "JWT_SECRET"
	EnvAccessTokenTTL  = "ACCESS_TOKEN_TTL"
	EnvRefreshTokenTTL = "REFRESH_TOKEN_TTL"
	EnvTokenLocations  = "TOKEN_LOCATIONS"
	EnvOTPTTL          = "OTP_TTL"
	EnvOTPLength       = "OTP_LENGTH"
	EnvMailHost        = "MAIL_HOST"
	EnvMailPort        = "MAIL_PORT"
	EnvMailUsername    = "MAIL_USERNAME"
	EnvMailPassword    = "MAIL_PASSWORD"
	EnvMailFrom        = "MAIL_FROM"
	EnvMailFromName    = "MAIL_FROM_NAME"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvRedisDB         = "REDIS_DB"
	EnvRedisPrefix     = "REDIS_PREFIX"
)

// Token locations the HTTP layer knows how to read bearer tokens from.
const (
	TokenLocationHeader = "header"
	TokenLocationCookie = "cookie"
)

// Defaults applied when the config file and environment omit a value.
const (
	defaultAccessTokenTTL  = 30 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultOTPTTL          = 120 * time.Second
	defaultOTPLength       = 4
	defaultPort            = 8318
)

// JWTConfig holds token signing and lifetime settings.
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTTL      time.Duration `yaml:"access-ttl"`
	RefreshTTL     time.Duration `yaml:"refresh-ttl"`
	TokenLocations []string      `yaml:"token-locations"`
}

// OTPConfig holds one-time passcode settings.
type OTPConfig struct {
	TTL                   time.Duration `yaml:"ttl"`
	Length                int           `yaml:"length"`
	RequestLimitPerSecond int           `yaml:"request-limit-per-second"`
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from-name"`
}

// RedisConfig holds settings for the redis rate-limit backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Config is the resolved application configuration.
type Config struct {
	Host        string      `yaml:"host"`
	Port        int         `yaml:"port"`
	Debug       bool        `yaml:"debug"`
	DatabaseDSN string      `yaml:"database-dsn"`
	JWT         JWTConfig   `yaml:"jwt"`
	OTP         OTPConfig   `yaml:"otp"`
	Mail        MailConfig  `yaml:"mail"`
	Redis       RedisConfig `yaml:"redis"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file and applies environment overrides.
// A missing file is not an error; env vars alone can configure the service.
func Load(configPath string) (Config, error) {
	// .env files are a deployment convenience; absence is fine.
	_ = godotenv.Load()

	cfg := Config{
		Port: defaultPort,
		JWT: JWTConfig{
			AccessTTL:      defaultAccessTokenTTL,
			RefreshTTL:     defaultRefreshTokenTTL,
			TokenLocations: []string{TokenLocationHeader, TokenLocationCookie},
		},
		OTP: OTPConfig{
			TTL:    defaultOTPTTL,
			Length: defaultOTPLength,
		},
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// Validate checks settings the service cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("missing database dsn (set `database-dsn` in config file or env %s)", EnvDBConnection)
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("missing jwt secret (set `jwt.secret` in config file or env %s)", EnvJWTSecret)
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return fmt.Errorf("jwt refresh-ttl must be greater than access-ttl")
	}
	for _, loc := range c.JWT.TokenLocations {
		if loc != TokenLocationHeader && loc != TokenLocationCookie {
			return fmt.Errorf("unsupported token location: %s", loc)
		}
	}
	return nil
}

// MailConfigured reports whether SMTP delivery settings are present.
func (c Config) MailConfigured() bool {
	return strings.TrimSpace(c.Mail.Host) != "" && strings.TrimSpace(c.Mail.From) != ""
}

func applyEnvOverrides(cfg *Config) {
	if port, ok := envInt(EnvPort); ok {
		cfg.Port = port
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if debug, ok := envBool(EnvDebugMode); ok {
		cfg.Debug = debug
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if ttl, ok := envDuration(EnvAccessTokenTTL); ok {
		cfg.JWT.AccessTTL = ttl
	}
	if ttl, ok := envDuration(EnvRefreshTokenTTL); ok {
		cfg.JWT.RefreshTTL = ttl
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTokenLocations)); raw != "" {
		locations := make([]string, 0, 2)
		for _, part := range strings.Split(raw, ",") {
			if loc := strings.ToLower(strings.TrimSpace(part)); loc != "" {
				locations = append(locations, loc)
			}
		}
		if len(locations) > 0 {
			cfg.JWT.TokenLocations = locations
		}
	}

	if ttl, ok := envDuration(EnvOTPTTL); ok {
		cfg.OTP.TTL = ttl
	}
	if length, ok := envInt(EnvOTPLength); ok {
		cfg.OTP.Length = length
	}

	if host := strings.TrimSpace(os.Getenv(EnvMailHost)); host != "" {
		cfg.Mail.Host = host
	}
	if port, ok := envInt(EnvMailPort); ok {
		cfg.Mail.Port = port
	}
	if username := strings.TrimSpace(os.Getenv(EnvMailUsername)); username != "" {
		cfg.Mail.Username = username
	}
	if password := os.Getenv(EnvMailPassword); password != "" {
		cfg.Mail.Password = password
	}
	if from := strings.TrimSpace(os.Getenv(EnvMailFrom)); from != "" {
		cfg.Mail.From = from
	}
	if fromName := strings.TrimSpace(os.Getenv(EnvMailFromName)); fromName != "" {
		cfg.Mail.FromName = fromName
	}

	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv(EnvRedisPassword); password != "" {
		cfg.Redis.Password = password
	}
	if db, ok := envInt(EnvRedisDB); ok {
		cfg.Redis.DB = db
	}
	if prefix := strings.TrimSpace(os.Getenv(EnvRedisPrefix)); prefix != "" {
		cfg.Redis.Prefix = prefix
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}
	if cfg.JWT.AccessTTL <= 0 {
		cfg.JWT.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.JWT.RefreshTTL <= 0 {
		cfg.JWT.RefreshTTL = defaultRefreshTokenTTL
	}
	if len(cfg.JWT.TokenLocations) == 0 {
		cfg.JWT.TokenLocations = []string{TokenLocationHeader, TokenLocationCookie}
	}
	if cfg.OTP.TTL <= 0 {
		cfg.OTP.TTL = defaultOTPTTL
	}
	if cfg.OTP.Length <= 0 {
		cfg.OTP.Length = defaultOTPLength
	}
	if cfg.Mail.Port <= 0 {
		cfg.Mail.Port = 587
	}
}

// envDuration parses a duration env var, accepting bare integers as seconds.
func envDuration(name string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d, true
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func envInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func envBool(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}
