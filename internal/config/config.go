package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath      = "config/config.yaml"
	devJWTSecret     = "dev-access-secret"
	devRefreshSecret = "dev-refresh-secret"
)

type AppConfig struct {
	Env         string `yaml:"env"`
	ExposeCodes bool   `yaml:"expose_codes"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"url"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type SMSConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"api_key"`
	Sender     string        `yaml:"sender"`
	AccountSID string        `yaml:"account_sid"`
	AuthToken  string        `yaml:"auth_token"`
	Timeout    time.Duration `yaml:"timeout"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

// AdminConfig describes the account created on first start when no admin exists.
type AdminConfig struct {
	FullName string `yaml:"full_name"`
	Phone    string `yaml:"phone"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	SMS      SMSConfig      `yaml:"sms"`
	Email    EmailConfig    `yaml:"email"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads the optional YAML file, then .env, then the process environment.
// Environment values win over the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getEnv("CONFIG_PATH", DefaultPath)
	}

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.App.Env, "APP_ENV")
	overrideBool(&c.App.ExposeCodes, "EXPOSE_CODES")
	overrideInt(&c.Server.Port, "PORT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	overrideString(&c.Database.Driver, "DB_DRIVER")
	overrideString(&c.Database.DSN, "DATABASE_URL")
	overrideString(&c.Auth.JWTSecret, "JWT_SECRET")
	overrideString(&c.Auth.RefreshSecret, "JWT_REFRESH_SECRET")
	overrideDuration(&c.Auth.AccessTTL, "ACCESS_TTL")
	overrideDuration(&c.Auth.RefreshTTL, "REFRESH_TTL")
	overrideInt(&c.Auth.BcryptCost, "BCRYPT_COST")
	overrideString(&c.Redis.URL, "REDIS_URL")
	overrideString(&c.SMS.Provider, "SMS_PROVIDER")
	overrideString(&c.SMS.APIKey, "SMS_API_KEY")
	overrideString(&c.SMS.Sender, "SMS_SENDER")
	overrideString(&c.SMS.AccountSID, "TWILIO_ACCOUNT_SID")
	overrideString(&c.SMS.AuthToken, "TWILIO_AUTH_TOKEN")
	overrideDuration(&c.SMS.Timeout, "SMS_TIMEOUT")
	overrideString(&c.Email.SMTPHost, "SMTP_HOST")
	overrideInt(&c.Email.SMTPPort, "SMTP_PORT")
	overrideString(&c.Email.SMTPUser, "SMTP_USER")
	overrideString(&c.Email.SMTPPassword, "SMTP_PASSWORD")
	overrideString(&c.Email.FromEmail, "SMTP_FROM")
	overrideString(&c.Admin.FullName, "ADMIN_FULL_NAME")
	overrideString(&c.Admin.Phone, "ADMIN_PHONE")
	overrideString(&c.Admin.Email, "ADMIN_EMAIL")
	overrideString(&c.Admin.Password, "ADMIN_PASSWORD")
	overrideString(&c.Log.Level, "LOG_LEVEL")
	overrideString(&c.Log.Format, "LOG_FORMAT")
}

func (c *Config) applyDefaults() {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = "file:classsite.db?_foreign_keys=on"
	}
	if c.Auth.JWTSecret == "" && !c.IsProduction() {
		c.Auth.JWTSecret = devJWTSecret
	}
	if c.Auth.RefreshSecret == "" && !c.IsProduction() {
		c.Auth.RefreshSecret = devRefreshSecret
	}
	if c.Auth.AccessTTL <= 0 {
		c.Auth.AccessTTL = 24 * time.Hour
	}
	if c.Auth.RefreshTTL <= 0 {
		c.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}
	if c.SMS.Provider == "" {
		c.SMS.Provider = "dry-run"
	}
	if c.SMS.Timeout <= 0 {
		c.SMS.Timeout = 5 * time.Second
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Admin.FullName == "" {
		c.Admin.FullName = "Администратор"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects configurations that must never reach a running server.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database url is required")
	}
	if c.Auth.JWTSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required")
	}
	if c.IsProduction() {
		if c.Auth.JWTSecret == devJWTSecret || c.Auth.RefreshSecret == devRefreshSecret {
			return errors.New("development secrets are not allowed in production")
		}
		if c.Auth.JWTSecret == c.Auth.RefreshSecret {
			return errors.New("access and refresh secrets must differ")
		}
	}
	switch c.SMS.Provider {
	case "dry-run", "mobizon", "twilio":
	default:
		return fmt.Errorf("unsupported sms provider %q", c.SMS.Provider)
	}
	return nil
}

// IsProduction returns true when APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// ShouldExposeCodes reports whether verification codes may be echoed in API responses.
func (c *Config) ShouldExposeCodes() bool {
	return !c.IsProduction() && c.App.ExposeCodes
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func overrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
