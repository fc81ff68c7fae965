// Package main provides the review-api server for the tariff backend.
//
// This is a standalone REST API server exposing the extraction engine,
// the stored tariffs with their version archive, and the operator
// review queue. It is the operational surface for the people who feed
// rate sheets into the system and check what came out.
//
// Usage:
//
//	review-api [options]
//
// Options:
//
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: tariff_state, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: tariff, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: tariff, env: POSTGRES_PASSWORD)
//	-no-pg              Run without PostgreSQL (tariff endpoints report 503)
//	-review-db PATH     SQLite review queue path (default: review.db)
//	-cities FILE        City table YAML overriding the embedded one
//	-port N             HTTP port (default: 8081)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys
//
// API Endpoints:
//
//	GET  /api/v1/health
//	    Health check endpoint.
//
//	POST /api/v1/extract
//	    Run extraction on raw text. Body: {"text": "...", "transport_hint": "auto", "supplier": "..."}
//
//	POST /api/v1/detect
//	    Report strategy detection scores. Body: {"text": "..."}
//
//	GET  /api/v1/tariffs[?supplier=&transport=&origin=&destination=&basis=]
//	GET  /api/v1/tariffs/stats
//	GET  /api/v1/tariffs/{id}
//	GET  /api/v1/tariffs/{id}/versions
//	    Stored tariffs and their superseded versions.
//
//	GET  /api/v1/review[?status=&strategy=&supplier=&q=]
//	GET  /api/v1/review/{id}
//	POST /api/v1/review/{id}/status
//	GET  /api/v1/review/stats
//	    Review queue listing, full-text search and workflow.
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tariff_parser/internal/api"
	"tariff_parser/internal/extractor"
	"tariff_parser/internal/storage"
)

func main() {
	// PostgreSQL connection flags.
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "tariff"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "tariff"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "tariff_state"), "PostgreSQL database")
	noPG := flag.Bool("no-pg", false, "Run without PostgreSQL (tariff endpoints report 503)")

	// Review queue and engine flags.
	reviewPath := flag.String("review-db", "review.db", "SQLite review queue path")
	cityTable := flag.String("cities", "", "City table YAML overriding the embedded one")

	// API server flags.
	port := flag.Int("port", 8081, "HTTP port for API server")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")

	flag.Parse()

	ctx := context.Background()

	engine, err := extractor.New(extractor.Config{CityTablePath: *cityTable}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building engine: %v\n", err)
		os.Exit(1)
	}

	var pg *storage.PostgresDB
	if !*noPG {
		pg, err = storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
	}

	rq, err := storage.OpenReview(*reviewPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening review queue: %v\n", err)
		os.Exit(1)
	}
	defer rq.Close()

	// Parse API keys.
	var keys []string
	if *apiKeys != "" {
		keys = strings.Split(*apiKeys, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
	}

	// Create and run server.
	server := api.NewServer(engine, pg, rq, api.Config{
		Port:        *port,
		AuthEnabled: *authEnabled,
		APIKeys:     keys,
	})

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
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
