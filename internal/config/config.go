package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env      string // "development", "production", etc.
	LogLevel string

	// Server
	ServerAddr  string
	BaseURL     string
	CORSOrigins string // Comma-separated allowed origins
	ProxyHeader string // Client IP header trusted from private-network proxies, e.g. X-Forwarded-For

	// Database
	DatabaseURL string

	// Redis backs the global HTTP limiter when set; the submission limiter stays in-process.
	RedisURL string

	// Identity headers set by the upstream auth proxy
	AuthUserHeader  string
	AuthEmailHeader string
	AuthNameHeader  string

	// Email
	EmailTransport string // console, smtp, resend
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	SMTPFromName   string
	SMTPTLS        string // none, tls, starttls
	ResendAPIKey   string

	// Signs unsubscribe links
	UnsubscribeSecret string

	// Background jobs
	JobsEnabled bool

	// Optional YAML file with extra bot signatures and content patterns
	SecurityRulesFile string

	// Site Branding
	SiteTitle string
}

// Load reads configuration from .env, config.yaml and environment variables with sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: failed to read config file: %v", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_ADDR", ":3000")
	v.SetDefault("BASE_URL", "http://localhost:3000")
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("PROXY_HEADER", "")
	v.SetDefault("DATABASE_URL", "postgres://localhost:5432/birthdays?sslmode=disable")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("AUTH_USER_HEADER", "X-User-Sub")
	v.SetDefault("AUTH_EMAIL_HEADER", "X-User-Email")
	v.SetDefault("AUTH_NAME_HEADER", "X-User-Name")
	v.SetDefault("EMAIL_TRANSPORT", "console")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_FROM_NAME", "Birthdays")
	v.SetDefault("SMTP_TLS", "starttls")
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("UNSUBSCRIBE_SECRET", "change-me-in-production-min-32-chars")
	v.SetDefault("JOBS_ENABLED", true)
	v.SetDefault("SECURITY_RULES_FILE", "security.yaml")
	v.SetDefault("SITE_TITLE", "Birthdays")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env:               v.GetString("ENV"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		ServerAddr:        v.GetString("SERVER_ADDR"),
		BaseURL:           strings.TrimRight(v.GetString("BASE_URL"), "/"),
		CORSOrigins:       v.GetString("CORS_ORIGINS"),
		ProxyHeader:       v.GetString("PROXY_HEADER"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		RedisURL:          v.GetString("REDIS_URL"),
		AuthUserHeader:    v.GetString("AUTH_USER_HEADER"),
		AuthEmailHeader:   v.GetString("AUTH_EMAIL_HEADER"),
		AuthNameHeader:    v.GetString("AUTH_NAME_HEADER"),
		EmailTransport:    strings.ToLower(v.GetString("EMAIL_TRANSPORT")),
		SMTPHost:          v.GetString("SMTP_HOST"),
		SMTPPort:          v.GetInt("SMTP_PORT"),
		SMTPUsername:      v.GetString("SMTP_USERNAME"),
		SMTPPassword:      v.GetString("SMTP_PASSWORD"),
		SMTPFrom:          v.GetString("SMTP_FROM"),
		SMTPFromName:      v.GetString("SMTP_FROM_NAME"),
		SMTPTLS:           strings.ToLower(v.GetString("SMTP_TLS")),
		ResendAPIKey:      v.GetString("RESEND_API_KEY"),
		UnsubscribeSecret: v.GetString("UNSUBSCRIBE_SECRET"),
		JobsEnabled:       v.GetBool("JOBS_ENABLED"),
		SecurityRulesFile: v.GetString("SECURITY_RULES_FILE"),
		SiteTitle:         v.GetString("SITE_TITLE"),
	}
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsEmailEnabled returns true if the configured transport has what it needs to deliver mail.
func (c *Config) IsEmailEnabled() bool {
	switch c.EmailTransport {
	case "smtp":
		return c.SMTPHost != "" && c.SMTPFrom != ""
	case "resend":
		return c.ResendAPIKey != "" && c.SMTPFrom != ""
	case "console":
		return true
	}
	return false
}
