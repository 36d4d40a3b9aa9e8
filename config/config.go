package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"

	"chesslives/bots"
	"chesslives/rules"
)

var ErrBadConfig = errors.New("config: invalid value")

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	Addr  string
	Logs  LogConfig
	Game  GameConfig
	Store StoreConfig
	DB    PostgresConfig
}

type LogConfig struct {
	Level string
}

// Verbose reports whether per-search and per-request logging is wanted.
func (l LogConfig) Verbose() bool {
	switch strings.ToLower(l.Level) {
	case "warn", "error", "quiet":
		return false
	}
	return true
}

type GameConfig struct {
	Backend    rules.Backend
	Difficulty bots.Difficulty
	DelayScale float64 // 1 is real time, 0 answers immediately
	Seed       int64   // 0 seeds from the clock
}

type StoreConfig struct {
	Kind string
	Dir  string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Database string
}

// DSN builds the lib/pq connection URL.
func (p PostgresConfig) DSN() string {
	port := p.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.Username, p.Password),
		Host:   net.JoinHostPort(p.URL, port),
	}
	if p.Database != "" {
		u.Path = "/" + p.Database
	}
	return u.String()
}

func LoadConfig() (*Config, error) {
	backend, err := rules.ParseBackend(os.Getenv("CHESS_RULES_BACKEND"))
	if err != nil {
		return nil, fmt.Errorf("%w: CHESS_RULES_BACKEND: %v", ErrBadConfig, err)
	}

	difficulty := bots.Novice
	if v := os.Getenv("CHESS_DIFFICULTY"); v != "" {
		if difficulty, err = bots.ParseDifficulty(v); err != nil {
			return nil, fmt.Errorf("%w: CHESS_DIFFICULTY: %v", ErrBadConfig, err)
		}
	}

	scale := 1.0
	if v := os.Getenv("CHESS_DELAY_SCALE"); v != "" {
		scale, err = strconv.ParseFloat(v, 64)
		if err != nil || scale < 0 {
			return nil, fmt.Errorf("%w: CHESS_DELAY_SCALE %q", ErrBadConfig, v)
		}
	}

	var seed int64
	if v := os.Getenv("CHESS_SEED"); v != "" {
		if seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: CHESS_SEED %q", ErrBadConfig, v)
		}
	}

	store := StoreConfig{
		Kind: strings.ToLower(getenv("CHESS_STORE", StoreFile)),
		Dir:  getenv("CHESS_STORE_DIR", "data/meta"),
	}
	if store.Kind != StoreFile && store.Kind != StorePostgres {
		return nil, fmt.Errorf("%w: CHESS_STORE %q", ErrBadConfig, store.Kind)
	}

	cfg := &Config{
		Addr: getenv("CHESS_ADDR", ":8080"),
		Logs: LogConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
		Game: GameConfig{
			Backend:    backend,
			Difficulty: difficulty,
			DelayScale: scale,
			Seed:       seed,
		},
		Store: store,
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      getenv("POSTGRES_URL", "localhost"),
			Port:     os.Getenv("POSTGRES_PORT"),
			Database: os.Getenv("POSTGRES_DB"),
		},
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
