package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the trust gateway.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Cookie attributes.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	CookieSecure bool   `mapstructure:"COOKIE_SECURE"`

	// Edge guard.
	LoginPath         string   `mapstructure:"LOGIN_PATH"`
	ProtectedPrefixes []string `mapstructure:"PROTECTED_PREFIXES"`

	// Identity provider.
	ProviderBaseURL string `mapstructure:"PROVIDER_BASE_URL"`
	ProviderAPIKey  string `mapstructure:"PROVIDER_API_KEY"`

	// External OAuth provider for the handoff flow.
	OAuthClientID     string `mapstructure:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `mapstructure:"OAUTH_CLIENT_SECRET"`
	OAuthAuthURL      string `mapstructure:"OAUTH_AUTH_URL"`
	OAuthTokenURL     string `mapstructure:"OAUTH_TOKEN_URL"`
	OAuthRedirectURL  string `mapstructure:"OAUTH_REDIRECT_URL"`

	// Agent timing knobs.
	TokenGracePeriod    time.Duration `mapstructure:"TOKEN_GRACE_PERIOD"`
	VisiblePollInterval time.Duration `mapstructure:"VISIBLE_POLL_INTERVAL"`
	HiddenPollInterval  time.Duration `mapstructure:"HIDDEN_POLL_INTERVAL"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/trustgate/")
	v.AddConfigPath("$HOME/.trustgate")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/trustgate_dev")
	v.SetDefault("MONGO_DB_NAME", "trustgate_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PREFIX", "trustgate")
	v.SetDefault("OTEL_SERVICE_NAME", "trustgate")
	v.SetDefault("COOKIE_SECURE", false) // Enable in production.
	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("PROTECTED_PREFIXES", []string{"/dashboard", "/projects", "/settings", "/profile"})
	v.SetDefault("TOKEN_GRACE_PERIOD", 5*time.Second)
	v.SetDefault("VISIBLE_POLL_INTERVAL", 30*time.Second)
	v.SetDefault("HIDDEN_POLL_INTERVAL", 120*time.Second)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
