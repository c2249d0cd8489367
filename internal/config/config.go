package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override,
// e.g. DASHBOARD_OAUTH_CLIENT_ID for oauth.client_id.
const EnvPrefix = "DASHBOARD"

type Config struct {
	AppPort string

	// Request pipeline
	ProtectedPrefix     string
	CacheTTL            time.Duration
	RefreshSafetyMargin time.Duration
	CookieName          string
	CookieSecure        bool
	SessionTTL          time.Duration

	// Upstream OAuth provider
	OAuthProvider     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	OAuthAPIBaseURL   string
	OAuthIssuer       string
	OAuthScopes       []string

	// Session store
	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	DatabaseDSN   string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	LogFormat  string
	LogLevel   string
	LogTraffic bool

	StaticDir string
}

// SetDefaults registers every recognized key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")

	v.SetDefault("auth.protected_prefix", "/api")
	v.SetDefault("auth.cache_ttl_seconds", 3000)
	v.SetDefault("auth.refresh_safety_margin_seconds", 1800)
	v.SetDefault("auth.cookie_name", "userId")
	v.SetDefault("auth.cookie_secure", true)
	v.SetDefault("auth.session_ttl_hours", 720)

	v.SetDefault("oauth.provider", "discord")
	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("oauth.redirect_url", "")
	v.SetDefault("oauth.api_base_url", "https://discord.com/api/v10")
	v.SetDefault("oauth.issuer", "")
	v.SetDefault("oauth.scopes", []string{"identify", "email"})

	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.dsn", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)

	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.traffic", false)

	v.SetDefault("web.static_dir", "")
}

// NewViper returns a viper instance with defaults and environment
// overrides wired. configFile is optional.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	return v, nil
}

// Load reads the configuration from the environment and an optional file.
func Load(configFile string) (Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {

	cfg := Config{

		AppPort: v.GetString("app.port"),

		ProtectedPrefix:     v.GetString("auth.protected_prefix"),
		CacheTTL:            time.Duration(v.GetInt("auth.cache_ttl_seconds")) * time.Second,
		RefreshSafetyMargin: time.Duration(v.GetInt("auth.refresh_safety_margin_seconds")) * time.Second,
		CookieName:          v.GetString("auth.cookie_name"),
		CookieSecure:        v.GetBool("auth.cookie_secure"),
		SessionTTL:          time.Duration(v.GetInt("auth.session_ttl_hours")) * time.Hour,

		OAuthProvider:     strings.ToLower(v.GetString("oauth.provider")),
		OAuthClientID:     v.GetString("oauth.client_id"),
		OAuthClientSecret: v.GetString("oauth.client_secret"),
		OAuthRedirectURL:  v.GetString("oauth.redirect_url"),
		OAuthAPIBaseURL:   strings.TrimRight(v.GetString("oauth.api_base_url"), "/"),
		OAuthIssuer:       v.GetString("oauth.issuer"),
		OAuthScopes:       v.GetStringSlice("oauth.scopes"),

		StoreDriver:   strings.ToLower(v.GetString("store.driver")),
		RedisAddr:     v.GetString("store.redis_addr"),
		RedisPassword: v.GetString("store.redis_password"),
		DatabaseDSN:   v.GetString("store.dsn"),

		RateLimitEnabled: v.GetBool("ratelimit.enabled"),
		RateLimitRPS:     v.GetFloat64("ratelimit.rps"),
		RateLimitBurst:   v.GetInt("ratelimit.burst"),

		LogFormat:  v.GetString("log.format"),
		LogLevel:   v.GetString("log.level"),
		LogTraffic: v.GetBool("log.traffic"),

		StaticDir: v.GetString("web.static_dir"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil

}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.CacheTTL <= 0 {
		return errors.New("config: auth.cache_ttl_seconds must be positive")
	}
	if c.RefreshSafetyMargin <= 0 {
		return errors.New("config: auth.refresh_safety_margin_seconds must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: auth.session_ttl_hours must be positive")
	}
	if !strings.HasPrefix(c.ProtectedPrefix, "/") {
		return fmt.Errorf("config: protected prefix %q must start with /", c.ProtectedPrefix)
	}
	if c.CookieName == "" {
		return errors.New("config: auth.cookie_name is required")
	}
	if c.OAuthClientID == "" || c.OAuthClientSecret == "" {
		return errors.New("config: oauth client credentials missing")
	}

	switch c.OAuthProvider {
	case "discord":
		if c.OAuthAPIBaseURL == "" {
			return errors.New("config: oauth.api_base_url is required for discord")
		}
	case "oidc":
		if c.OAuthIssuer == "" {
			return errors.New("config: oauth.issuer is required for oidc")
		}
	default:
		return fmt.Errorf("config: unknown oauth provider %q", c.OAuthProvider)
	}

	switch c.StoreDriver {
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("config: store.redis_addr is required")
		}
	case "postgres", "sqlite":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("config: store.dsn is required for %s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}

	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return errors.New("config: rate limit rps and burst must be positive")
	}

	return nil
}
