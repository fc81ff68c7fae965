package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Review statuses. An item enters the queue pending and leaves it
// approved or rejected.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var (
	// ErrUnknownStatus is returned for status values outside the workflow.
	ErrUnknownStatus = errors.New("unknown review status")
	// ErrNotFound is returned when a review item does not exist.
	ErrNotFound = errors.New("review item not found")
)

// ReviewItem is one queued extraction awaiting operator review.
type ReviewItem struct {
	ID              int64
	DocumentID      int64
	ReceivedAt      time.Time
	Supplier        string
	Strategy        string
	Transport       string
	OriginCity      string
	DestinationCity string
	RawText         string
	CandidatesJSON  string
	Confidence      float64
	Status          string
	Reviewer        string
	Note            string
}

// ReviewDB wraps a SQLite database for the local review queue.
type ReviewDB struct {
	db *sql.DB
}

// OpenReview opens or creates a review queue database at the given path.
func OpenReview(path string) (*ReviewDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	// Create schema.
	if err := createReviewSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &ReviewDB{db: db}, nil
}

// Close closes the database connection.
func (d *ReviewDB) Close() error {
	return d.db.Close()
}

// createReviewSchema creates the database tables and indices.
func createReviewSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS review_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER,
		received_at TEXT NOT NULL,
		supplier TEXT,
		strategy TEXT NOT NULL,
		transport TEXT NOT NULL,
		origin_city TEXT,
		destination_city TEXT,
		raw_text TEXT NOT NULL,
		candidates_json TEXT NOT NULL,
		confidence REAL,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewer TEXT,
		note TEXT,
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_review_strategy ON review_queue(strategy);
	CREATE INDEX IF NOT EXISTS idx_review_supplier ON review_queue(supplier);
	CREATE INDEX IF NOT EXISTS idx_review_document ON review_queue(document_id);
	-- Note: idx_review_status created by migration for existing DBs

	-- FTS5 virtual table for full-text search on raw document text.
	CREATE VIRTUAL TABLE IF NOT EXISTS review_fts USING fts5(
		raw_text,
		content='review_queue',
		content_rowid='id'
	);

	-- Triggers to keep FTS index in sync.
	CREATE TRIGGER IF NOT EXISTS review_ai AFTER INSERT ON review_queue BEGIN
		INSERT INTO review_fts(rowid, raw_text) VALUES (new.id, new.raw_text);
	END;

	CREATE TRIGGER IF NOT EXISTS review_ad AFTER DELETE ON review_queue BEGIN
		INSERT INTO review_fts(review_fts, rowid, raw_text) VALUES('delete', old.id, old.raw_text);
	END;

	CREATE TRIGGER IF NOT EXISTS review_au AFTER UPDATE ON review_queue BEGIN
		INSERT INTO review_fts(review_fts, rowid, raw_text) VALUES('delete', old.id, old.raw_text);
		INSERT INTO review_fts(rowid, raw_text) VALUES (new.id, new.raw_text);
	END;
	`

	_, err := db.Exec(schema)
	if err != nil {
		return err
	}

	// Run migrations for existing databases.
	return migrateReviewSchema(db)
}

// migrateReviewSchema adds new columns to existing databases.
func migrateReviewSchema(db *sql.DB) error {
	// Check if reviewer column exists.
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('review_queue') WHERE name='reviewer'`).Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		// Add columns for the reviewer workflow.
		migrations := []string{
			`ALTER TABLE review_queue ADD COLUMN reviewer TEXT`,
			`ALTER TABLE review_queue ADD COLUMN note TEXT`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				// Ignore "duplicate column" errors for idempotency.
				if !strings.Contains(err.Error(), "duplicate column") {
					return err
				}
			}
		}
	}

	// Create index.
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_review_status ON review_queue(status)`)

	return nil
}

// EnqueueParams contains the parameters for queueing an extraction.
type EnqueueParams struct {
	DocumentID      int64
	ReceivedAt      string
	Supplier        string
	Strategy        string
	Transport       string
	OriginCity      string
	DestinationCity string
	RawText         string
	Candidates      interface{}
	Confidence      float64
}

// Enqueue stores an extraction in the review queue with status pending.
func (d *ReviewDB) Enqueue(p EnqueueParams) (int64, error) {
	candidatesJSON, err := json.Marshal(p.Candidates)
	if err != nil {
		return 0, fmt.Errorf("marshal candidates: %w", err)
	}

	result, err := d.db.Exec(`
		INSERT INTO review_queue (document_id, received_at, supplier, strategy, transport, origin_city, destination_city, raw_text, candidates_json, confidence, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.DocumentID, p.ReceivedAt, p.Supplier, p.Strategy, p.Transport, p.OriginCity, p.DestinationCity, p.RawText, string(candidatesJSON), p.Confidence, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	return result.LastInsertId()
}

// ReviewQueryParams contains filtering options for querying the queue.
type ReviewQueryParams struct {
	ID         int64  // Filter by specific item ID.
	DocumentID int64  // Filter by source document.
	Status     string // Filter by workflow status.
	Strategy   string // Filter by winning strategy.
	Supplier   string // Filter by supplier (exact match).
	FullText   string // FTS5 full-text search on raw_text.
	Limit      int    // Max results (default 100).
	Offset     int    // Pagination offset.
	OrderBy    string // Sort field (received_at, strategy, confidence, status).
	OrderDesc  bool   // Sort descending.
}

// Query retrieves review items matching the given parameters.
func (d *ReviewDB) Query(p ReviewQueryParams) ([]ReviewItem, error) {
	var conditions []string
	var args []interface{}

	if p.ID != 0 {
		conditions = append(conditions, "id = ?")
		args = append(args, p.ID)
	}
	if p.DocumentID != 0 {
		conditions = append(conditions, "document_id = ?")
		args = append(args, p.DocumentID)
	}
	if p.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, p.Status)
	}
	if p.Strategy != "" {
		conditions = append(conditions, "strategy = ?")
		args = append(args, p.Strategy)
	}
	if p.Supplier != "" {
		conditions = append(conditions, "supplier = ?")
		args = append(args, p.Supplier)
	}

	// Handle FTS5 search - requires a JOIN with the FTS table.
	var query string
	if p.FullText != "" {
		query = `SELECT r.id, r.document_id, r.received_at, r.supplier, r.strategy, r.transport,
				r.origin_city, r.destination_city, r.raw_text, r.candidates_json, r.confidence,
				r.status, r.reviewer, r.note
				FROM review_queue r
				JOIN review_fts fts ON r.id = fts.rowid
				WHERE review_fts MATCH ?`
		args = append([]interface{}{p.FullText}, args...)
		if len(conditions) > 0 {
			query += " AND " + strings.Join(conditions, " AND ")
		}
	} else {
		query = `SELECT id, document_id, received_at, supplier, strategy, transport,
				origin_city, destination_city, raw_text, candidates_json, confidence,
				status, reviewer, note
				FROM review_queue`
		if len(conditions) > 0 {
			query += " WHERE " + strings.Join(conditions, " AND ")
		}
	}

	// Order by.
	orderField := "id"
	if p.OrderBy != "" {
		switch p.OrderBy {
		case "received_at", "strategy", "confidence", "status", "supplier":
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

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []ReviewItem
	for rows.Next() {
		var it ReviewItem
		var docID sql.NullInt64
		var received, supplier, origin, dest, reviewer, note sql.NullString
		var confidence sql.NullFloat64

		err := rows.Scan(&it.ID, &docID, &received, &supplier, &it.Strategy, &it.Transport,
			&origin, &dest, &it.RawText, &it.CandidatesJSON, &confidence,
			&it.Status, &reviewer, &note)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if docID.Valid {
			it.DocumentID = docID.Int64
		}
		if received.Valid {
			it.ReceivedAt, _ = time.Parse(time.RFC3339, received.String)
		}
		if supplier.Valid {
			it.Supplier = supplier.String
		}
		if origin.Valid {
			it.OriginCity = origin.String
		}
		if dest.Valid {
			it.DestinationCity = dest.String
		}
		if confidence.Valid {
			it.Confidence = confidence.Float64
		}
		if reviewer.Valid {
			it.Reviewer = reviewer.String
		}
		if note.Valid {
			it.Note = note.String
		}

		items = append(items, it)
	}

	return items, rows.Err()
}

// GetByID retrieves a single review item by ID.
func (d *ReviewDB) GetByID(id int64) (*ReviewItem, error) {
	items, err := d.Query(ReviewQueryParams{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// SetStatus transitions a review item and records who decided and why.
func (d *ReviewDB) SetStatus(id int64, status, reviewer, note string) error {
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStatus, status)
	}

	result, err := d.db.Exec(`UPDATE review_queue SET status = ?, reviewer = ?, note = ? WHERE id = ?`,
		status, reviewer, note, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// ReviewStats contains aggregate statistics about the review queue.
type ReviewStats struct {
	TotalItems int
	ByStatus   map[string]int
	ByStrategy map[string]int
}

// GetReviewStats returns statistics about the review queue.
func (d *ReviewDB) GetReviewStats() (*ReviewStats, error) {
	stats := &ReviewStats{
		ByStrategy: make(map[string]int),
	}

	// Total items.
	row := d.db.QueryRow("SELECT COUNT(*) FROM review_queue")
	if err := row.Scan(&stats.TotalItems); err != nil {
		return nil, err
	}

	byStatus, err := d.CountByStatus()
	if err != nil {
		return nil, err
	}
	stats.ByStatus = byStatus

	// By strategy.
	rows, err := d.db.Query("SELECT strategy, COUNT(*) FROM review_queue GROUP BY strategy ORDER BY COUNT(*) DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.ByStrategy[strategy] = count
	}
	_ = rows.Close()

	return stats, nil
}

// CountByStatus returns item counts grouped by status.
func (d *ReviewDB) CountByStatus() (map[string]int, error) {
	counts := make(map[string]int)
	rows, err := d.db.Query("SELECT status, COUNT(*) FROM review_queue GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
