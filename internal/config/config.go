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

// DefaultSTUNURL is used when CALL_STUN_URLS is empty.
const DefaultSTUNURL = "stun:stun.l.google.com:19302"

// Config holds all configuration required by the API process and the call agent.
// Values come from env; a .env file in the working directory is loaded first when present.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Call    CallConfig
	Signal  SignalConfig
	Profile ProfileConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CallConfig drives the client-side call state machine.
type CallConfig struct {
	RingTimeout time.Duration
	STUNURLs    []string
}

// SignalConfig drives the signaling channel.
type SignalConfig struct {
	SubscribeTimeout time.Duration
}

type ProfileConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// Load reads the process environment. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	// Durations are optional; defaults are applied in Validate.
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"JWT_ACCESS_TTL", &c.Auth.AccessTokenTTL},
		{"JWT_REFRESH_TTL", &c.Auth.RefreshTokenTTL},
		{"CALL_RING_TIMEOUT", &c.Call.RingTimeout},
		{"SIGNAL_SUBSCRIBE_TIMEOUT", &c.Signal.SubscribeTimeout},
		{"PROFILE_CACHE_TTL", &c.Profile.CacheTTL},
	} {
		v, err := optionalDuration(d.key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*d.dst = v
	}
	c.Call.STUNURLs = splitList(os.Getenv("CALL_STUN_URLS"))
	{
		n, err := optionalInt("PROFILE_CACHE_SIZE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Profile.CacheSize = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills optional ones with defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must not be negative, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Call.RingTimeout <= 0 {
		c.Call.RingTimeout = 30 * time.Second
	}
	if len(c.Call.STUNURLs) == 0 {
		c.Call.STUNURLs = []string{DefaultSTUNURL}
	}
	for _, u := range c.Call.STUNURLs {
		if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "stuns:") {
			errs = append(errs, fmt.Errorf("CALL_STUN_URLS entries must start with stun: or stuns:, got %q", u))
		}
	}

	if c.Signal.SubscribeTimeout <= 0 {
		c.Signal.SubscribeTimeout = 5 * time.Second
	}

	if c.Profile.CacheTTL <= 0 {
		c.Profile.CacheTTL = 5 * time.Minute
	}
	if c.Profile.CacheSize <= 0 {
		c.Profile.CacheSize = 1024
	}

	return joinErrors(errs)
}

// AgentConfig is what a headless call agent needs. It never talks to the
// database or Redis directly; everything goes through the API.
type AgentConfig struct {
	Env         string
	APIURL      string
	RealtimeURL string
	Call        CallConfig
	Signal      SignalConfig
}

// LoadAgent reads the agent's environment. A missing .env file is not an error.
func LoadAgent() (AgentConfig, error) {
	_ = godotenv.Load()

	c := AgentConfig{
		Env:         strings.TrimSpace(os.Getenv("APP_ENV")),
		APIURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("AGENT_API_URL")), "/"),
		RealtimeURL: strings.TrimSpace(os.Getenv("AGENT_REALTIME_URL")),
	}
	var parseErrs []error
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"CALL_RING_TIMEOUT", &c.Call.RingTimeout},
		{"SIGNAL_SUBSCRIBE_TIMEOUT", &c.Signal.SubscribeTimeout},
	} {
		v, err := optionalDuration(d.key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*d.dst = v
	}
	c.Call.STUNURLs = splitList(os.Getenv("CALL_STUN_URLS"))

	if err := joinErrors(parseErrs); err != nil {
		return AgentConfig{}, err
	}
	if err := c.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return c, nil
}

func (c *AgentConfig) Validate() error {
	var errs []error
	if c.Env == "" {
		c.Env = "local"
	} else if !isValidEnv(c.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.Env))
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		errs = append(errs, fmt.Errorf("AGENT_API_URL must be an http(s) url, got %q", c.APIURL))
	} else if c.RealtimeURL == "" {
		c.RealtimeURL = "ws" + strings.TrimPrefix(c.APIURL, "http") + "/v1/realtime"
	}
	if c.Call.RingTimeout <= 0 {
		c.Call.RingTimeout = 30 * time.Second
	}
	if len(c.Call.STUNURLs) == 0 {
		c.Call.STUNURLs = []string{DefaultSTUNURL}
	}
	if c.Signal.SubscribeTimeout <= 0 {
		c.Signal.SubscribeTimeout = 5 * time.Second
	}
	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Contains the password; never log it.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
