// Package config loads and validates the server configuration.
//
// Configuration comes from environment variables, optionally seeded from a
// .env file in the working directory. It is read exactly once at startup;
// components receive the values they need through their constructors and
// never consult the environment themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default provider endpoints.
const (
	DefaultAuthURL  = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL = "https://api.twitter.com/2/oauth2/token"
	DefaultAPIURL   = "https://api.twitter.com"
)

// DefaultScopes are the OAuth scopes needed to read the profile, likes and mentions.
// offline.access makes the provider issue a refresh token.
var DefaultScopes = []string{"users.read", "tweet.read", "like.read", "offline.access"}

// minSessionSecret is the shortest SESSION_SECRET we accept.
const minSessionSecret = 32

// Config holds every setting the server needs.
type Config struct {
	Port        int
	Environment string // development, staging, production
	BaseURL     string // public URL of this app, without trailing slash

	// Delegated-authorization provider.
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIURL       string
	Scopes       []string

	SessionSecret string

	// Caption provider. An empty key means every caption is the fallback.
	CaptionAPIKey string
	CaptionModel  string

	LogLevel  string
	LogFormat string

	// Tracing. An empty TraceEndpoint disables span export.
	ServiceName     string
	TraceEndpoint   string
	TraceSampleRate float64

	UpstreamTimeout time.Duration
	CaptionTimeout  time.Duration

	// Outbound limiter shared by every remote API call.
	UpstreamRPS   float64
	UpstreamBurst int

	// Inbound per-client limiter on discovery routes.
	ClientRPS   float64
	ClientBurst int

	CursorBatchSize  int
	ScoringBatchSize int
	ScoringMaxPages  int
	TopN             int
	SnippetCap       int
	MaxSeen          int

	LikedWeight   int
	MentionWeight int
}

// Load reads the configuration from the environment and validates it.
//
// A missing .env file is not an error; the process environment alone is
// enough. Any malformed or missing required value is returned as an error so
// main can exit before the server starts.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		Port:        p.int("PORT", 8080),
		Environment: getEnv("APP_ENV", "development"),
		BaseURL:     strings.TrimRight(getEnv("APP_URL", ""), "/"),

		ClientID:     getEnv("X_CLIENT_ID", ""),
		ClientSecret: getEnv("X_CLIENT_SECRET", ""),
		AuthURL:      getEnv("X_AUTH_URL", DefaultAuthURL),
		TokenURL:     getEnv("X_TOKEN_URL", DefaultTokenURL),
		APIURL:       strings.TrimRight(getEnv("X_API_URL", DefaultAPIURL), "/"),
		Scopes:       DefaultScopes,

		SessionSecret: getEnv("SESSION_SECRET", ""),

		CaptionAPIKey: getEnv("GEMINI_API_KEY", ""),
		CaptionModel:  getEnv("CAPTION_MODEL", "gemini-2.5-flash"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		ServiceName:     getEnv("SERVICE_NAME", "mutual-radar"),
		TraceEndpoint:   getEnv("TRACE_ENDPOINT", ""),
		TraceSampleRate: p.float("TRACE_SAMPLE_RATE", 1),

		UpstreamTimeout: p.duration("UPSTREAM_TIMEOUT", 10*time.Second),
		CaptionTimeout:  p.duration("CAPTION_TIMEOUT", 8*time.Second),

		UpstreamRPS:   p.float("UPSTREAM_RPS", 5),
		UpstreamBurst: p.int("UPSTREAM_BURST", 10),
		ClientRPS:     p.float("CLIENT_RPS", 2),
		ClientBurst:   p.int("CLIENT_BURST", 10),

		CursorBatchSize:  p.int("CURSOR_BATCH_SIZE", 10),
		ScoringBatchSize: p.int("SCORING_BATCH_SIZE", 100),
		ScoringMaxPages:  p.int("SCORING_MAX_PAGES", 1),
		TopN:             p.int("TOP_N", 5),
		SnippetCap:       p.int("SNIPPET_CAP", 10),
		MaxSeen:          p.int("MAX_SEEN", 50),

		LikedWeight:   p.int("LIKED_WEIGHT", 1),
		MentionWeight: p.int("MENTION_WEIGHT", 2),
	}
	if scopes := getEnv("X_SCOPES", ""); scopes != "" {
		cfg.Scopes = strings.Fields(scopes)
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and numeric settings
// are in range. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	required := map[string]string{
		"APP_URL":         c.BaseURL,
		"X_CLIENT_ID":     c.ClientID,
		"X_CLIENT_SECRET": c.ClientSecret,
		"SESSION_SECRET":  c.SessionSecret,
	}
	for _, name := range []string{"APP_URL", "X_CLIENT_ID", "X_CLIENT_SECRET", "SESSION_SECRET"} {
		if required[name] == "" {
			errs = append(errs, fmt.Errorf("%s must be set", name))
		}
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < minSessionSecret {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters (got %d)", minSessionSecret, len(c.SessionSecret)))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	for name, size := range map[string]int{
		"CURSOR_BATCH_SIZE":  c.CursorBatchSize,
		"SCORING_BATCH_SIZE": c.ScoringBatchSize,
	} {
		if size < 1 || size > 100 {
			errs = append(errs, fmt.Errorf("%s must be between 1 and 100 (got %d)", name, size))
		}
	}
	for name, v := range map[string]int{
		"TOP_N":          c.TopN,
		"SNIPPET_CAP":    c.SnippetCap,
		"MAX_SEEN":       c.MaxSeen,
		"UPSTREAM_BURST": c.UpstreamBurst,
		"CLIENT_BURST":   c.ClientBurst,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive (got %d)", name, v))
		}
	}
	if c.ScoringMaxPages < 0 {
		errs = append(errs, fmt.Errorf("SCORING_MAX_PAGES must not be negative (got %d)", c.ScoringMaxPages))
	}
	if c.UpstreamRPS <= 0 || c.ClientRPS <= 0 {
		errs = append(errs, errors.New("UPSTREAM_RPS and CLIENT_RPS must be positive"))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, fmt.Errorf("TRACE_SAMPLE_RATE must be between 0 and 1 (got %g)", c.TraceSampleRate))
	}
	if c.UpstreamTimeout <= 0 || c.CaptionTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT and CAPTION_TIMEOUT must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// IsProduction reports whether cookies must carry the Secure flag.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// CallbackURL is the redirect URI registered with the provider.
func (c *Config) CallbackURL() string {
	return c.BaseURL + "/callback"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return v
}
