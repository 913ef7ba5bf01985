package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"story-chain/story/application"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr string `yaml:"listen_addr"`
	StaticDir  string `yaml:"static_dir"`
	LogLevel   string `yaml:"log_level"`

	DB          dbConfig          `yaml:"db"`
	Story       storyConfig       `yaml:"story"`
	Cookie      cookieConfig      `yaml:"cookie"`
	Throttle    throttleConfig    `yaml:"throttle"`
	Concurrency concurrencyConfig `yaml:"concurrency"`
	Stats       statsConfig       `yaml:"stats"`
}

type dbConfig struct {
	Driver string `yaml:"driver"` // "sqlite" ou "postgres"
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type storyConfig struct {
	DayWindow   time.Duration `yaml:"day_window"`
	BypassName  string        `yaml:"bypass_name"`
	MaxSentence int           `yaml:"max_sentence"`
	MaxName     int           `yaml:"max_name"`
}

type cookieConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
	Secure bool          `yaml:"secure"`
}

type throttleConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RPS           float64       `yaml:"rps"`
	Burst         int           `yaml:"burst"`
	TrustXFF      bool          `yaml:"trust_xff"`
	MinRetryAfter time.Duration `yaml:"min_retry_after"`
	AddHeaders    bool          `yaml:"add_headers"`
}

type concurrencyConfig struct {
	Max           int           `yaml:"max"`
	Timeout       time.Duration `yaml:"timeout"`
	SubmitReserve int           `yaml:"submit_reserve"`
}

type statsConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	Bucket        string        `yaml:"bucket"`
	TrackKeys     bool          `yaml:"track_keys"`
}

func defaultConfig() config {
	return config{
		ListenAddr: ":8000",
		LogLevel:   "info",
		DB: dbConfig{
			Driver: "sqlite",
			Path:   "data/sentences.sqlite3",
		},
		Story: storyConfig{
			DayWindow:   24 * time.Hour,
			BypassName:  application.DefaultBypassName,
			MaxSentence: application.DefaultMaxSentenceLen,
			MaxName:     application.DefaultMaxNameLen,
		},
		Cookie: cookieConfig{
			MaxAge: 5 * 365 * 24 * time.Hour,
		},
		Throttle: throttleConfig{
			Enabled:       true,
			RPS:           1,
			Burst:         5,
			MinRetryAfter: 1 * time.Second,
		},
		Concurrency: concurrencyConfig{
			Max:           100,
			SubmitReserve: 10,
		},
		Stats: statsConfig{
			Prefix: "story:stats",
			TTL:    48 * time.Hour,
			Bucket: "minute",
		},
	}
}

// loadConfig monta a configuração em camadas: padrões, arquivo YAML
// (opcional), .env e variáveis de ambiente. Flags da CLI são aplicadas depois.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("loading .env: %w", err)
	}
	cfg.applyEnv()

	return cfg, nil
}

func (c *config) applyEnv() {
	c.ListenAddr = getenvDefault("LISTEN_ADDR", c.ListenAddr)
	c.StaticDir = getenvDefault("STORY_STATIC_DIR", c.StaticDir)
	c.LogLevel = getenvDefault("STORY_LOG_LEVEL", c.LogLevel)

	c.DB.Driver = getenvDefault("STORY_DB_DRIVER", c.DB.Driver)
	c.DB.Path = getenvDefault("STORY_DB_PATH", c.DB.Path)
	c.DB.DSN = getenvDefault("STORY_DB_DSN", c.DB.DSN)

	c.Story.DayWindow = getenvDurationDefault("STORY_DAY_WINDOW", c.Story.DayWindow)
	// vazio desliga o bypass, então aqui importa se a variável existe
	if v, ok := os.LookupEnv("STORY_BYPASS_NAME"); ok {
		c.Story.BypassName = v
	}
	c.Story.MaxSentence = getenvIntDefault("STORY_MAX_SENTENCE", c.Story.MaxSentence)
	c.Story.MaxName = getenvIntDefault("STORY_MAX_NAME", c.Story.MaxName)

	c.Cookie.MaxAge = getenvDurationDefault("STORY_COOKIE_MAX_AGE", c.Cookie.MaxAge)
	c.Cookie.Secure = getenvBoolDefault("STORY_COOKIE_SECURE", c.Cookie.Secure)

	c.Throttle.Enabled = getenvBoolDefault("STORY_THROTTLE_ENABLED", c.Throttle.Enabled)
	c.Throttle.RPS = getenvFloatDefault("STORY_THROTTLE_RPS", c.Throttle.RPS)
	c.Throttle.Burst = getenvIntDefault("STORY_THROTTLE_BURST", c.Throttle.Burst)
	c.Throttle.TrustXFF = getenvBoolDefault("TRUST_XFF", c.Throttle.TrustXFF)
	c.Throttle.MinRetryAfter = getenvDurationDefault("STORY_THROTTLE_MIN_RETRY_AFTER", c.Throttle.MinRetryAfter)
	c.Throttle.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", c.Throttle.AddHeaders)

	c.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", c.Concurrency.Max)
	c.Concurrency.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.Concurrency.Timeout)
	c.Concurrency.SubmitReserve = getenvIntDefault("CONCURRENCY_SUBMIT_RESERVE", c.Concurrency.SubmitReserve)

	c.Stats.RedisAddr = getenvDefault("STORY_STATS_REDIS_ADDR", c.Stats.RedisAddr)
	c.Stats.RedisPassword = getenvDefault("STORY_STATS_REDIS_PASSWORD", c.Stats.RedisPassword)
	c.Stats.RedisDB = getenvIntDefault("STORY_STATS_REDIS_DB", c.Stats.RedisDB)
	c.Stats.Prefix = getenvDefault("STORY_STATS_PREFIX", c.Stats.Prefix)
	c.Stats.TTL = getenvDurationDefault("STORY_STATS_TTL", c.Stats.TTL)
	c.Stats.Bucket = getenvDefault("STORY_STATS_BUCKET", c.Stats.Bucket)
	c.Stats.TrackKeys = getenvBoolDefault("STORY_STATS_TRACK_KEYS", c.Stats.TrackKeys)
}

func (c config) validate() error {
	switch c.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(c.DB.Path) == "" {
			return errors.New("STORY_DB_PATH is required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.DB.DSN) == "" {
			return errors.New("STORY_DB_DSN is required for postgres")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	if c.Story.DayWindow <= 0 {
		return errors.New("STORY_DAY_WINDOW must be > 0")
	}
	if c.Story.MaxSentence <= 0 {
		return errors.New("STORY_MAX_SENTENCE must be > 0")
	}
	if c.Throttle.Enabled {
		if c.Throttle.RPS <= 0 {
			return errors.New("STORY_THROTTLE_RPS must be > 0")
		}
		if c.Throttle.Burst <= 0 {
			return errors.New("STORY_THROTTLE_BURST must be > 0")
		}
	}
	if c.Concurrency.Max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.Concurrency.Max > 0 && (c.Concurrency.SubmitReserve < 0 || c.Concurrency.SubmitReserve >= c.Concurrency.Max) {
		return errors.New("CONCURRENCY_SUBMIT_RESERVE must be >= 0 and < CONCURRENCY_MAX")
	}
	return nil
}

func (c config) slogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
