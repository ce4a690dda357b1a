// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every setting. Secrets and a few well-known names are
// also read without the prefix.
const EnvPrefix = "DLMM_SCOUT"

type Config struct {
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int64

	AllowedOrigins []string
	SolanaRPCURL   string
	MeteoraAPIURL  string

	Port        int
	Environment string
	LogLevel    string

	RateLimitMax    int
	RateLimitWindow time.Duration

	SearchBroadenThreshold int
	SearchDelay            time.Duration
	SearchRetries          int

	MemoryEnabled bool
}

const (
	DefaultModel           = "claude-sonnet-4-20250514"
	DefaultMaxTokens       = 1024
	DefaultAllowedOrigins  = "http://localhost:3000"
	DefaultSolanaRPCURL    = "https://api.mainnet-beta.solana.com"
	DefaultMeteoraAPIURL   = "https://dlmm-api.meteora.ag"
	DefaultPort            = 8080
	DefaultEnvironment     = "production"
	DefaultRateLimitMax    = 10
	DefaultRateLimitWindow = time.Minute
	DefaultBroadenAt       = 6
)

// keys maps each setting to the unprefixed environment name it may also be
// read from. An empty name means prefixed only.
var keys = map[string]string{
	"anthropic_api_key":        "ANTHROPIC_API_KEY",
	"anthropic_model":          "ANTHROPIC_MODEL",
	"anthropic_max_tokens":     "",
	"allowed_origins":          "ALLOWED_ORIGINS",
	"solana_rpc_url":           "SOLANA_RPC_URL",
	"meteora_api_url":          "",
	"port":                     "PORT",
	"environment":              "ENVIRONMENT",
	"log_level":                "",
	"rate_limit_max":           "",
	"rate_limit_window":        "",
	"search_broaden_threshold": "",
	"search_delay":             "",
	"search_retries":           "",
	"memory_enabled":           "",
}

// Load reads configuration from the environment. Each of envFiles (".env"
// when none are given) is loaded first if it exists; real environment
// variables take precedence over file entries.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	defaults := map[string]interface{}{
		"anthropic_model":          DefaultModel,
		"anthropic_max_tokens":     DefaultMaxTokens,
		"allowed_origins":          DefaultAllowedOrigins,
		"solana_rpc_url":           DefaultSolanaRPCURL,
		"meteora_api_url":          DefaultMeteoraAPIURL,
		"port":                     DefaultPort,
		"environment":              DefaultEnvironment,
		"rate_limit_max":           DefaultRateLimitMax,
		"rate_limit_window":        DefaultRateLimitWindow,
		"search_broaden_threshold": DefaultBroadenAt,
		"search_delay":             time.Duration(0),
		"search_retries":           0,
		"memory_enabled":           false,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, plain := range keys {
		names := []string{key, EnvPrefix + "_" + strings.ToUpper(key)}
		if plain != "" {
			names = append(names, plain)
		}
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		AnthropicAPIKey:        strings.TrimSpace(v.GetString("anthropic_api_key")),
		AnthropicModel:         v.GetString("anthropic_model"),
		AnthropicMaxTokens:     v.GetInt64("anthropic_max_tokens"),
		AllowedOrigins:         splitList(v.GetString("allowed_origins")),
		SolanaRPCURL:           v.GetString("solana_rpc_url"),
		MeteoraAPIURL:          v.GetString("meteora_api_url"),
		Port:                   v.GetInt("port"),
		Environment:            strings.ToLower(v.GetString("environment")),
		LogLevel:               v.GetString("log_level"),
		RateLimitMax:           v.GetInt("rate_limit_max"),
		RateLimitWindow:        v.GetDuration("rate_limit_window"),
		SearchBroadenThreshold: v.GetInt("search_broaden_threshold"),
		SearchDelay:            v.GetDuration("search_delay"),
		SearchRetries:          v.GetInt("search_retries"),
		MemoryEnabled:          v.GetBool("memory_enabled"),
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting. A missing API key is not an
// error here: the server boots and chat requests fail with a
// ConfigurationError instead.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AnthropicMaxTokens <= 0 {
		return errors.New("anthropic_max_tokens must be positive")
	}
	if c.RateLimitMax <= 0 {
		return errors.New("rate_limit_max must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return errors.New("rate_limit_window must be positive")
	}
	if c.SearchBroadenThreshold < 0 {
		return errors.New("search_broaden_threshold must not be negative")
	}
	if c.SearchDelay < 0 {
		return errors.New("search_delay must not be negative")
	}
	if c.SearchRetries < 0 {
		return errors.New("search_retries must not be negative")
	}
	for name, raw := range map[string]string{
		"solana_rpc_url":  c.SolanaRPCURL,
		"meteora_api_url": c.MeteoraAPIURL,
	} {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// IsDevelopment reports whether detailed errors and console logs are enabled.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
