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

const (
	BodyStorageFile   = "file"
	BodyStorageInline = "inline"
)

type Config struct {
	Environment          string
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string
	JWTTTL    time.Duration

	BodyStorage    string
	DataPath       string
	MaxTitleLength int

	RateLimitRPS   float64
	RateLimitBurst int

	ReclaimInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the given env files, or .env when none are named and it exists,
// then the process environment. Variables already set in the process win.
func Load(files ...string) (Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}

	cfg := Config{
		Environment:          env.str("APP_ENV", "development"),
		HTTPAddr:             env.str("HTTP_ADDR", ":8080"),
		DatabaseURL:          env.required("DATABASE_URL"),
		CORSAllowCredentials: env.boolean("CORS_ALLOW_CREDENTIALS", false),
		JWTSecret:            env.required("JWT_SECRET"),
		JWTTTL:               env.duration("JWT_TTL", 7*24*time.Hour),
		BodyStorage:          strings.ToLower(env.str("BODY_STORAGE", BodyStorageFile)),
		DataPath:             env.str("DATA_PATH", "./data"),
		MaxTitleLength:       env.integer("MAX_TITLE_LENGTH", 100),
		RateLimitRPS:         env.float("RATE_LIMIT_RPS", 20),
		RateLimitBurst:       env.integer("RATE_LIMIT_BURST", 40),
		ReclaimInterval:      env.duration("RECLAIM_INTERVAL", 30*time.Second),
		LogLevel:             env.str("LOG_LEVEL", "info"),
		LogFormat:            env.str("LOG_FORMAT", ""),
	}

	for _, o := range strings.Split(env.str("CORS_ALLOWED_ORIGINS", ""), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	if len(env.errs) > 0 {
		return Config{}, errors.Join(env.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that parsed but make no sense together.
func (c Config) Validate() error {
	var errs []error
	switch c.Environment {
	case "development", "production":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be development or production, got %q", c.Environment))
	}
	switch c.BodyStorage {
	case BodyStorageFile:
		if c.DataPath == "" {
			errs = append(errs, errors.New("DATA_PATH is required for file body storage"))
		}
	case BodyStorageInline:
	default:
		errs = append(errs, fmt.Errorf("BODY_STORAGE must be file or inline, got %q", c.BodyStorage))
	}
	if c.MaxTitleLength <= 0 {
		errs = append(errs, errors.New("MAX_TITLE_LENGTH must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}
	if c.ReclaimInterval <= 0 {
		errs = append(errs, errors.New("RECLAIM_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key, def string) string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	return v
}

func (e *envReader) required(key string) string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		e.errs = append(e.errs, fmt.Errorf("missing env: %s", key))
	}
	return v
}

func (e *envReader) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *envReader) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
