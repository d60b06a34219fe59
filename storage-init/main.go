package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"board-api/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("unable to read .env: %v", err)
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		db := os.Getenv("MONGO_DATABASE")
		if db == "" {
			db = "board_db"
		}
		m, err := storage.NewMongo(ctx, uri, db)
		if err != nil {
			log.Fatalf("mongo indexes: %v", err)
		}
		if err := m.Close(ctx); err != nil {
			log.WithError(err).Warn("mongo close")
		}
		log.WithField("database", db).Info("mongo indexes ensured")
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Info("STORAGE_CONNECTION_STRING not set; skipping table storage")
		return
	}
	if err := storage.CreateTables(ctx, connStr,
		envOr("BOARDS_TABLE", "boards"),
		envOr("USERS_TABLE", "users"),
	); err != nil {
		log.Fatalf("create tables: %v", err)
	}
	if err := storage.CreateQueues(ctx, connStr, os.Getenv("BOARD_EVENTS_QUEUE")); err != nil {
		log.Fatalf("create queues: %v", err)
	}

	log.Info("storage init complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
