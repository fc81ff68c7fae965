package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for extraction analytics.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS extraction_events (
			id              UUID,
			document_id     UInt64,
			timestamp       DateTime64(3),
			supplier        LowCardinality(String),
			source          LowCardinality(String),
			strategy        LowCardinality(String),
			transport       LowCardinality(String),
			confidence      Float32,
			candidates      UInt8,
			text_sample     String,
			text_length     UInt32,
			duration_ms     UInt32,
			created_at      DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (strategy, supplier, timestamp, id)
		SETTINGS index_granularity = 8192`,

		`CREATE TABLE IF NOT EXISTS strategy_scores (
			document_id     UInt64,
			timestamp       DateTime64(3),
			strategy        LowCardinality(String),
			transport       LowCardinality(String),
			matched         UInt32,
			total           UInt32,
			confidence      Float32,
			selected        UInt8,
			recorded_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (strategy, timestamp, document_id)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Add bloom filter index for full-text search (ignore error if already exists).
	_ = d.conn.Exec(ctx, `ALTER TABLE extraction_events ADD INDEX IF NOT EXISTS idx_text_sample_bloom text_sample TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 1`)

	return nil
}

// ExtractionEvent is one row of extraction analytics: a processed document
// with the strategy that won and how much it produced.
type ExtractionEvent struct {
	ID         uuid.UUID
	DocumentID uint64
	Timestamp  time.Time
	Supplier   string
	Source     string
	Strategy   string
	Transport  string
	Confidence float32
	Candidates uint8
	TextSample string
	TextLength uint32
	DurationMS uint32
	CreatedAt  time.Time
}

// sampleLimit caps how much raw text an event row keeps. Full documents
// live in the review queue, not in analytics.
const sampleLimit = 500

func sampleText(s string) string {
	r := []rune(s)
	if len(r) <= sampleLimit {
		return s
	}
	return string(r[:sampleLimit])
}

// InsertEvent stores a single extraction event. A zero ID is replaced with
// a fresh UUID.
func (d *ClickHouseDB) InsertEvent(ctx context.Context, ev ExtractionEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	err := d.conn.Exec(ctx, `
		INSERT INTO extraction_events (id, document_id, timestamp, supplier, source, strategy, transport, confidence, candidates, text_sample, text_length, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.DocumentID, ev.Timestamp, ev.Supplier, ev.Source, ev.Strategy, ev.Transport, ev.Confidence, ev.Candidates, sampleText(ev.TextSample), ev.TextLength, ev.DurationMS)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// InsertEventBatch stores multiple extraction events efficiently.
func (d *ClickHouseDB) InsertEventBatch(ctx context.Context, events []ExtractionEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO extraction_events (id, document_id, timestamp, supplier, source, strategy, transport, confidence, candidates, text_sample, text_length, duration_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		err = batch.Append(ev.ID, ev.DocumentID, ev.Timestamp, ev.Supplier, ev.Source, ev.Strategy, ev.Transport, ev.Confidence, ev.Candidates, sampleText(ev.TextSample), ev.TextLength, ev.DurationMS)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// StrategyScore is one detection trace row: how a strategy scored against
// a document, whether or not it won.
type StrategyScore struct {
	DocumentID uint64
	Timestamp  time.Time
	Strategy   string
	Transport  string
	Matched    uint32
	Total      uint32
	Confidence float32
	Selected   bool
}

// InsertScores stores the detection trace for one document.
func (d *ClickHouseDB) InsertScores(ctx context.Context, scores []StrategyScore) error {
	if len(scores) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO strategy_scores (document_id, timestamp, strategy, transport, matched, total, confidence, selected)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sc := range scores {
		selected := uint8(0)
		if sc.Selected {
			selected = 1
		}
		err = batch.Append(sc.DocumentID, sc.Timestamp, sc.Strategy, sc.Transport, sc.Matched, sc.Total, sc.Confidence, selected)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// EventQueryParams contains filtering options for querying events.
type EventQueryParams struct {
	DocumentID uint64
	Supplier   string
	Strategy   string
	Transport  string
	EmptyOnly  bool   // only documents that produced no candidates
	FullText   string // LIKE match on text_sample
	Limit      int
	Offset     int
	OrderBy    string
	OrderDesc  bool
}

// QueryEvents retrieves extraction events matching the given parameters.
func (d *ClickHouseDB) QueryEvents(ctx context.Context, p EventQueryParams) ([]ExtractionEvent, error) {
	var conditions []string
	var args []interface{}

	if p.DocumentID != 0 {
		conditions = append(conditions, "document_id = ?")
		args = append(args, p.DocumentID)
	}
	if p.Supplier != "" {
		conditions = append(conditions, "supplier = ?")
		args = append(args, p.Supplier)
	}
	if p.Strategy != "" {
		conditions = append(conditions, "strategy = ?")
		args = append(args, p.Strategy)
	}
	if p.Transport != "" {
		conditions = append(conditions, "transport = ?")
		args = append(args, p.Transport)
	}
	if p.EmptyOnly {
		conditions = append(conditions, "candidates = 0")
	}
	if p.FullText != "" {
		conditions = append(conditions, "text_sample LIKE ?")
		args = append(args, "%"+p.FullText+"%")
	}

	query := `SELECT id, document_id, timestamp, supplier, source, strategy, transport, confidence, candidates, text_sample, text_length, duration_ms, created_at FROM extraction_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	// Order by.
	orderField := "timestamp"
	if p.OrderBy != "" {
		switch p.OrderBy {
		case "timestamp", "strategy", "supplier", "confidence", "candidates":
			orderField = p.OrderBy
		}
	}
	direction := "ASC"
	if p.OrderDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderField, direction)

	// Limit and offset.
	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []ExtractionEvent
	for rows.Next() {
		var ev ExtractionEvent
		err := rows.Scan(&ev.ID, &ev.DocumentID, &ev.Timestamp, &ev.Supplier, &ev.Source, &ev.Strategy,
			&ev.Transport, &ev.Confidence, &ev.Candidates, &ev.TextSample, &ev.TextLength, &ev.DurationMS, &ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}

// EventStats contains aggregate statistics about extraction events.
type EventStats struct {
	TotalEvents    uint64
	ByStrategy     map[string]uint64
	ByTransport    map[string]uint64
	EmptyDocuments uint64
	AvgConfidence  float64
	AvgCandidates  float64
}

// GetEventStats returns statistics about stored extraction events.
func (d *ClickHouseDB) GetEventStats(ctx context.Context) (*EventStats, error) {
	stats := &EventStats{
		ByStrategy:  make(map[string]uint64),
		ByTransport: make(map[string]uint64),
	}

	// Totals and averages in one pass.
	row := d.conn.QueryRow(ctx, "SELECT count(), avg(confidence), avg(candidates) FROM extraction_events")
	if err := row.Scan(&stats.TotalEvents, &stats.AvgConfidence, &stats.AvgCandidates); err != nil {
		return nil, err
	}

	// By strategy.
	rows, err := d.conn.Query(ctx, "SELECT strategy, count() FROM extraction_events GROUP BY strategy ORDER BY count() DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		var count uint64
		if err := rows.Scan(&name, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan strategy stats: %w", err)
		}
		stats.ByStrategy[name] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate strategy stats: %w", err)
	}
	rows.Close()

	// By transport.
	rows, err = d.conn.Query(ctx, "SELECT transport, count() FROM extraction_events GROUP BY transport ORDER BY count() DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		var count uint64
		if err := rows.Scan(&name, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transport stats: %w", err)
		}
		stats.ByTransport[name] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate transport stats: %w", err)
	}
	rows.Close()

	// Documents that produced nothing.
	row = d.conn.QueryRow(ctx, "SELECT count() FROM extraction_events WHERE candidates = 0")
	if err := row.Scan(&stats.EmptyDocuments); err != nil {
		return nil, err
	}

	return stats, nil
}

// CountEvents returns the total number of events, optionally filtered by strategy.
func (d *ClickHouseDB) CountEvents(ctx context.Context, strategy string) (uint64, error) {
	var count uint64
	var err error
	if strategy != "" {
		row := d.conn.QueryRow(ctx, "SELECT count() FROM extraction_events WHERE strategy = ?", strategy)
		err = row.Scan(&count)
	} else {
		row := d.conn.QueryRow(ctx, "SELECT count() FROM extraction_events")
		err = row.Scan(&count)
	}
	return count, err
}

// DistinctEvents returns distinct values for a given event column.
func (d *ClickHouseDB) DistinctEvents(ctx context.Context, column string) ([]string, error) {
	// Validate column name to prevent SQL injection.
	validColumns := map[string]bool{
		"supplier":  true,
		"source":    true,
		"strategy":  true,
		"transport": true,
	}
	if !validColumns[column] {
		return nil, fmt.Errorf("invalid column: %s", column)
	}

	query := fmt.Sprintf("SELECT DISTINCT %s FROM extraction_events WHERE %s != '' ORDER BY %s", column, column, column)
	rows, err := d.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}
	return values, nil
}
