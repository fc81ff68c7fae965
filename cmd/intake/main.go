// Package main provides the intake worker: it consumes documents from
// a NATS subject, runs tariff extraction on each one and persists the
// results.
//
// Tariffs land in PostgreSQL (with versioned archiving of superseded
// rows), extraction analytics in ClickHouse, and documents that
// produced nothing in the local SQLite review queue. Each store can be
// switched off individually, down to a log-only dry run.
//
// Usage:
//
//	intake [options]
//
// Options:
//
//	-nats-url URL       NATS server (default: nats://127.0.0.1:4222, env: NATS_URL)
//	-subject SUBJ       Subject to subscribe to (default: tariffs.documents)
//	-queue NAME         Queue group (default: tariff-intake)
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: tariff_state, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: tariff, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: tariff, env: POSTGRES_PASSWORD)
//	-ch-host HOST       ClickHouse host (default: localhost, env: CLICKHOUSE_HOST)
//	-ch-port PORT       ClickHouse port (default: 9000, env: CLICKHOUSE_PORT)
//	-ch-database DB     ClickHouse database (default: tariffs, env: CLICKHOUSE_DATABASE)
//	-ch-user USER       ClickHouse user (default: default, env: CLICKHOUSE_USER)
//	-ch-password PASS   ClickHouse password (env: CLICKHOUSE_PASSWORD)
//	-review-db PATH     SQLite review queue path (default: review.db)
//	-no-pg              Skip tariff persistence
//	-no-ch              Skip extraction analytics
//	-no-review          Skip the review queue
//	-create-schemas     Create database schemas on startup
//	-cities FILE        City table YAML overriding the embedded one
//	-log-level LEVEL    debug|info|warn|error (default: info)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"tariff_parser/internal/extractor"
	"tariff_parser/internal/intake"
	"tariff_parser/internal/logger"
	"tariff_parser/internal/storage"
)

func main() {
	// NATS flags.
	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL")
	subject := flag.String("subject", "tariffs.documents", "NATS subject to subscribe to")
	queue := flag.String("queue", "tariff-intake", "NATS queue group")

	// PostgreSQL flags.
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "tariff"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "tariff"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "tariff_state"), "PostgreSQL database")

	// ClickHouse flags.
	chHost := flag.String("ch-host", envOrDefault("CLICKHOUSE_HOST", "localhost"), "ClickHouse host")
	chPort := flag.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse port")
	chUser := flag.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := flag.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")
	chDB := flag.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "tariffs"), "ClickHouse database")

	// Store toggles and worker flags.
	reviewPath := flag.String("review-db", "review.db", "SQLite review queue path")
	noPG := flag.Bool("no-pg", false, "Skip tariff persistence")
	noCH := flag.Bool("no-ch", false, "Skip extraction analytics")
	noReview := flag.Bool("no-review", false, "Skip the review queue")
	createSchemas := flag.Bool("create-schemas", false, "Create database schemas on startup")
	cityTable := flag.String("cities", "", "City table YAML overriding the embedded one")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")

	flag.Parse()

	log, err := logger.New(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := extractor.New(extractor.Config{CityTablePath: *cityTable}, log)
	if err != nil {
		log.Errorf("build engine: %v", err)
		os.Exit(1)
	}

	var tariffs intake.TariffStore
	if !*noPG {
		pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		})
		if err != nil {
			log.Errorf("open postgres: %v", err)
			os.Exit(1)
		}
		defer pg.Close()
		if *createSchemas {
			if err := pg.CreateSchema(ctx); err != nil {
				log.Errorf("create postgres schema: %v", err)
				os.Exit(1)
			}
		}
		tariffs = pg
	}

	var events intake.EventStore
	if !*noCH {
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDB,
			User:     *chUser,
			Password: *chPassword,
		})
		if err != nil {
			log.Errorf("open clickhouse: %v", err)
			os.Exit(1)
		}
		defer ch.Close()
		if *createSchemas {
			if err := ch.CreateSchema(ctx); err != nil {
				log.Errorf("create clickhouse schema: %v", err)
				os.Exit(1)
			}
		}
		events = ch
	}

	var review intake.ReviewQueue
	if !*noReview {
		rq, err := storage.OpenReview(*reviewPath)
		if err != nil {
			log.Errorf("open review queue: %v", err)
			os.Exit(1)
		}
		defer rq.Close()
		review = rq
	}

	worker := intake.NewWorker(engine, tariffs, events, review, log, intake.Config{
		URL:     *natsURL,
		Subject: *subject,
		Queue:   *queue,
	})

	if err := worker.Run(ctx); err != nil {
		log.Errorf("intake worker: %v", err)
		os.Exit(1)
	}
	log.Infof("intake worker stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
