package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"breakdown-api/api"
	"breakdown-api/completion"
)

const (
	backendSQL    = "sql"
	backendTables = "tables"
)

type config struct {
	Debug     bool
	LogFormat string
	Port      string

	Backend       string
	DatabasePath  string
	StorageConn   string
	TasksTable    string
	SubtasksTable string
	EventsQueue   string

	RedisConn      string
	TasksCacheTTL  time.Duration
	IdempotencyTTL time.Duration

	Completion completion.Config
	Dispatcher api.DispatcherConfig

	Auth0Domain   string
	Auth0Audience string
	TestSecret    string
	JWKSCacheTTL  time.Duration

	CORSOrigins []string
}

func loadConfig() (config, error) {
	var errs []error
	cfg := config{
		Debug:          envBool("DEBUG", false, &errs),
		LogFormat:      envString("LOG_FORMAT", "text"),
		Port:           envString("PORT", "8080"),
		Backend:        strings.ToLower(envString("STORAGE_BACKEND", backendSQL)),
		DatabasePath:   envString("DATABASE_PATH", "data/tasks.db"),
		StorageConn:    os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:     envString("TASKS_TABLE", "Tasks"),
		SubtasksTable:  envString("SUBTASKS_TABLE", "Subtasks"),
		EventsQueue:    os.Getenv("EVENTS_QUEUE"),
		RedisConn:      os.Getenv("REDIS_CONNECTION_STRING"),
		TasksCacheTTL:  envDur("TASKS_CACHE_TTL", 5*time.Minute, &errs),
		IdempotencyTTL: envDur("IDEMPOTENCY_TTL", 24*time.Hour, &errs),
		Completion: completion.Config{
			Provider: strings.ToLower(envString("COMPLETION_PROVIDER", completion.ProviderOpenAI)),
			APIKey:   os.Getenv("COMPLETION_API_KEY"),
			Model:    os.Getenv("COMPLETION_MODEL"),
			BaseURL:  os.Getenv("COMPLETION_BASE_URL"),
			Timeout:  envDur("COMPLETION_TIMEOUT", completion.DefaultTimeout, &errs),
		},
		Dispatcher: api.DispatcherConfig{
			Workers:        envInt("EVENT_WORKERS", api.DefaultDispatcherConfig().Workers, &errs),
			Buffer:         envInt("EVENT_BUFFER", api.DefaultDispatcherConfig().Buffer, &errs),
			Timeout:        envDur("EVENT_TIMEOUT", api.DefaultDispatcherConfig().Timeout, &errs),
			HandoffTimeout: envDur("EVENT_HANDOFF_TIMEOUT", api.DefaultDispatcherConfig().HandoffTimeout, &errs),
		},
		Auth0Domain:   os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience: os.Getenv("AUTH0_AUDIENCE"),
		JWKSCacheTTL:  envDur("JWKS_CACHE_TTL", api.DefaultJWKSCacheTTL, &errs),
		CORSOrigins:   envList("CORS_ALLOW_ORIGINS", []string{"*"}),
	}

	// FUNCTIONS_CUSTOMHANDLER_PORT is set by the Azure Functions host.
	if port, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && port != "" {
		cfg.Port = port
	}

	switch mode := strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")); {
	case mode == "hs256":
		cfg.TestSecret = os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if cfg.TestSecret == "" {
			errs = append(errs, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256"))
		}
	case mode != "":
		errs = append(errs, fmt.Errorf("unsupported LOCAL_AUTH_MODE %q", mode))
	case os.Getenv("AUTH0_TEST_MODE") == "1":
		cfg.TestSecret = os.Getenv("TEST_JWT_SECRET")
		if cfg.TestSecret == "" {
			errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1"))
		}
	default:
		if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
			errs = append(errs, errors.New("missing Auth0 config: AUTH0_DOMAIN and AUTH0_AUDIENCE"))
		}
	}

	switch cfg.Backend {
	case backendSQL:
	case backendTables:
		if cfg.StorageConn == "" {
			errs = append(errs, errors.New("STORAGE_CONNECTION_STRING is required for the tables backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.Backend))
	}
	if cfg.EventsQueue != "" && cfg.StorageConn == "" {
		errs = append(errs, errors.New("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING"))
	}
	if cfg.Completion.APIKey == "" {
		errs = append(errs, errors.New("missing COMPLETION_API_KEY"))
	}

	return cfg, errors.Join(errs...)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func envInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", key, v))
		return def
	}
	return n
}

func envDur(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", key, v))
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	addr := strings.TrimSpace(parts[0])
	if addr == "" {
		return nil, errors.New("redis connection string has no address")
	}
	opts := &redis.Options{Addr: addr}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
