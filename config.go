package main

import (
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	storeTables = "tables"
	storeMongo  = "mongo"
)

type config struct {
	Debug      bool
	ListenAddr string

	Store          string
	ConnStr        string
	BoardsTable    string
	UsersTable     string
	EventsQueue    string
	MongoURI       string
	MongoDatabase  string
	RedisConn      string
	BoardCacheTTL  time.Duration
	DeduperTTL     time.Duration
	UpdatesChannel string

	Auth0Domain   string
	Auth0Audience string
	LocalSecret   string
	LocalIssuer   string
	TokenTTL      time.Duration
	SecureCookie  bool

	AllowedOrigins []string
}

// loadConfig reads the environment, after merging a .env file when one is
// present.
func loadConfig() config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("unable to read .env: %v", err)
	}
	cfg := config{
		Debug:          envBool("DEBUG", false),
		ListenAddr:     envString("LISTEN_ADDR", ":8080"),
		Store:          strings.ToLower(envString("BOARD_STORE", storeTables)),
		ConnStr:        os.Getenv("STORAGE_CONNECTION_STRING"),
		BoardsTable:    envString("BOARDS_TABLE", "boards"),
		UsersTable:     envString("USERS_TABLE", "users"),
		EventsQueue:    os.Getenv("BOARD_EVENTS_QUEUE"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDatabase:  envString("MONGO_DATABASE", "board_db"),
		RedisConn:      os.Getenv("REDIS_CONNECTION_STRING"),
		BoardCacheTTL:  envDuration("BOARD_CACHE_TTL", 5*time.Minute),
		DeduperTTL:     envDuration("DEDUPER_TTL", 24*time.Hour),
		UpdatesChannel: envString("BOARD_UPDATES_CHANNEL", "board-updates"),
		Auth0Domain:    os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:  os.Getenv("AUTH0_AUDIENCE"),
		LocalSecret:    os.Getenv("LOCAL_AUTH_SHARED_SECRET"),
		LocalIssuer:    envString("LOCAL_AUTH_ISSUER", "board-api"),
		TokenTTL:       envDuration("LOGIN_TOKEN_TTL", 7*24*time.Hour),
		SecureCookie:   envBool("SECURE_COOKIE", false),
		AllowedOrigins: envList("ALLOWED_ORIGINS"),
	}
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		cfg.ListenAddr = ":" + val
	}
	return cfg
}

func (c config) validate() {
	switch c.Store {
	case storeTables:
		if c.ConnStr == "" {
			log.Fatal("missing storage config")
		}
	case storeMongo:
		if c.MongoURI == "" {
			log.Fatal("missing mongo config")
		}
	default:
		log.Fatalf("invalid BOARD_STORE %q", c.Store)
	}
	if c.RedisConn == "" {
		log.Fatal("missing redis config")
	}
	if c.LocalSecret == "" && c.Auth0Domain == "" {
		log.Fatal("missing auth config")
	}
	if c.Auth0Domain != "" && c.Auth0Audience == "" {
		log.Fatal("missing Auth0 config")
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return d
}

func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// redisOptions accepts a redis:// URL or the Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
