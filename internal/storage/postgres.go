package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"tariff_parser/internal/tariff"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool for tariff storage.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
//
// A tariff is identified by its natural key (supplier, transport_type,
// origin_city, destination_city, basis, vehicle_type). Re-extracting the
// same lane replaces prices and validity; the superseded row is copied to
// tariff_archive first.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Current tariffs, one row per lane per supplier.
	CREATE TABLE IF NOT EXISTS tariffs (
		id                      SERIAL PRIMARY KEY,
		supplier                TEXT NOT NULL DEFAULT '',
		transport_type          TEXT NOT NULL,
		basis                   TEXT NOT NULL,
		origin_country          TEXT NOT NULL DEFAULT '',
		origin_city             TEXT NOT NULL,
		destination_country     TEXT NOT NULL DEFAULT '',
		destination_city        TEXT NOT NULL,
		vehicle_type            TEXT NOT NULL DEFAULT '',
		price_usd               NUMERIC(14,2),
		price_rub               NUMERIC(14,2),
		price_cny               NUMERIC(14,2),
		transit_time_days       INTEGER,
		validity_date           TEXT NOT NULL DEFAULT '',
		cbx_cost                NUMERIC(14,2),
		terminal_handling_cost  NUMERIC(14,2),
		auto_pickup_cost        NUMERIC(14,2),
		security_cost           NUMERIC(14,2),
		precarriage_cost        NUMERIC(14,2),
		car_parking_cost        NUMERIC(14,2),
		handling_cost           NUMERIC(14,2),
		declaration_cost        NUMERIC(14,2),
		registration_cost       NUMERIC(14,2),
		source_strategy         TEXT NOT NULL DEFAULT '',
		source_file             TEXT NOT NULL DEFAULT '',
		document_id             BIGINT NOT NULL DEFAULT 0,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(supplier, transport_type, origin_city, destination_city, basis, vehicle_type)
	);

	CREATE INDEX IF NOT EXISTS idx_tariffs_supplier ON tariffs(supplier);
	CREATE INDEX IF NOT EXISTS idx_tariffs_transport ON tariffs(transport_type);
	CREATE INDEX IF NOT EXISTS idx_tariffs_route ON tariffs(origin_city, destination_city);

	-- Superseded versions, copied here before each replacement.
	CREATE TABLE IF NOT EXISTS tariff_archive (
		id                      SERIAL PRIMARY KEY,
		original_tariff_id      INTEGER NOT NULL REFERENCES tariffs(id),
		supplier                TEXT NOT NULL DEFAULT '',
		transport_type          TEXT NOT NULL,
		basis                   TEXT NOT NULL,
		origin_country          TEXT NOT NULL DEFAULT '',
		origin_city             TEXT NOT NULL,
		destination_country     TEXT NOT NULL DEFAULT '',
		destination_city        TEXT NOT NULL,
		vehicle_type            TEXT NOT NULL DEFAULT '',
		price_usd               NUMERIC(14,2),
		price_rub               NUMERIC(14,2),
		price_cny               NUMERIC(14,2),
		transit_time_days       INTEGER,
		validity_date           TEXT NOT NULL DEFAULT '',
		cbx_cost                NUMERIC(14,2),
		terminal_handling_cost  NUMERIC(14,2),
		auto_pickup_cost        NUMERIC(14,2),
		security_cost           NUMERIC(14,2),
		precarriage_cost        NUMERIC(14,2),
		car_parking_cost        NUMERIC(14,2),
		handling_cost           NUMERIC(14,2),
		declaration_cost        NUMERIC(14,2),
		registration_cost       NUMERIC(14,2),
		source_strategy         TEXT NOT NULL DEFAULT '',
		source_file             TEXT NOT NULL DEFAULT '',
		document_id             BIGINT NOT NULL DEFAULT 0,
		created_at              TIMESTAMPTZ NOT NULL,
		archived_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_tariff_archive_original ON tariff_archive(original_tariff_id);
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Tariff represents a stored tariff row. Money fields use decimals to
// round-trip the NUMERIC columns without float drift; nil means the
// extraction left the field absent.
type Tariff struct {
	ID                 int64
	Supplier           string
	TransportType      string
	Basis              string
	OriginCountry      string
	OriginCity         string
	DestinationCountry string
	DestinationCity    string
	VehicleType        string

	PriceUSD *decimal.Decimal
	PriceRUB *decimal.Decimal
	PriceCNY *decimal.Decimal

	TransitTimeDays *int
	ValidityDate    string

	CBXCost              *decimal.Decimal
	TerminalHandlingCost *decimal.Decimal
	AutoPickupCost       *decimal.Decimal
	SecurityCost         *decimal.Decimal
	PrecarriageCost      *decimal.Decimal
	CarParkingCost       *decimal.Decimal
	HandlingCost         *decimal.Decimal
	DeclarationCost      *decimal.Decimal
	RegistrationCost     *decimal.Decimal

	SourceStrategy string
	SourceFile     string
	DocumentID     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ArchivedTariff is a superseded tariff version.
type ArchivedTariff struct {
	Tariff
	OriginalTariffID int64
	ArchivedAt       time.Time
}

// TariffFromCandidate converts an extracted candidate into a storable
// tariff row. Prices are rounded to two decimal places.
func TariffFromCandidate(c *tariff.Candidate, documentID int64, sourceFile string) Tariff {
	t := Tariff{
		Supplier:           c.Supplier,
		TransportType:      string(c.TransportType),
		Basis:              c.Basis,
		OriginCountry:      c.OriginCountry,
		OriginCity:         c.OriginCity,
		DestinationCountry: c.DestinationCountry,
		DestinationCity:    c.DestinationCity,
		SourceStrategy:     c.SourceStrategy,
		SourceFile:         sourceFile,
		DocumentID:         documentID,
	}
	if c.VehicleType != nil {
		t.VehicleType = *c.VehicleType
	}
	if c.ValidityDate != nil {
		t.ValidityDate = *c.ValidityDate
	}
	if c.TransitTimeDays != nil {
		v := *c.TransitTimeDays
		t.TransitTimeDays = &v
	}

	t.PriceUSD = moneyPtr(c.PriceUSD)
	t.PriceRUB = moneyPtr(c.PriceRUB)
	t.PriceCNY = moneyPtr(c.PriceCNY)

	t.CBXCost = moneyPtr(c.CBXCost)
	t.TerminalHandlingCost = moneyPtr(c.TerminalHandlingCost)
	t.AutoPickupCost = moneyPtr(c.AutoPickupCost)
	t.SecurityCost = moneyPtr(c.SecurityCost)
	t.PrecarriageCost = moneyPtr(c.PrecarriageCost)
	t.CarParkingCost = moneyPtr(c.CarParkingCost)
	t.HandlingCost = moneyPtr(c.HandlingCost)
	t.DeclarationCost = moneyPtr(c.DeclarationCost)
	t.RegistrationCost = moneyPtr(c.RegistrationCost)

	return t
}

func moneyPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f).Round(2)
	return &d
}

// decArg renders a decimal for a NUMERIC parameter; Postgres casts the
// text form itself, so no driver codec is needed.
func decArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func decFromText(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}

// tariffColumns is the shared SELECT list. NUMERIC columns come back as
// text so they land in decimals losslessly.
const tariffColumns = `id, supplier, transport_type, basis, origin_country, origin_city,
	destination_country, destination_city, vehicle_type,
	price_usd::text, price_rub::text, price_cny::text,
	transit_time_days, validity_date,
	cbx_cost::text, terminal_handling_cost::text, auto_pickup_cost::text,
	security_cost::text, precarriage_cost::text, car_parking_cost::text,
	handling_cost::text, declaration_cost::text, registration_cost::text,
	source_strategy, source_file, document_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTariff(row rowScanner) (*Tariff, error) {
	var t Tariff
	var usd, rub, cny *string
	var costs [9]*string
	var transit *int

	err := row.Scan(&t.ID, &t.Supplier, &t.TransportType, &t.Basis, &t.OriginCountry, &t.OriginCity,
		&t.DestinationCountry, &t.DestinationCity, &t.VehicleType,
		&usd, &rub, &cny,
		&transit, &t.ValidityDate,
		&costs[0], &costs[1], &costs[2], &costs[3], &costs[4], &costs[5], &costs[6], &costs[7], &costs[8],
		&t.SourceStrategy, &t.SourceFile, &t.DocumentID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.PriceUSD = decFromText(usd)
	t.PriceRUB = decFromText(rub)
	t.PriceCNY = decFromText(cny)
	t.TransitTimeDays = transit
	t.CBXCost = decFromText(costs[0])
	t.TerminalHandlingCost = decFromText(costs[1])
	t.AutoPickupCost = decFromText(costs[2])
	t.SecurityCost = decFromText(costs[3])
	t.PrecarriageCost = decFromText(costs[4])
	t.CarParkingCost = decFromText(costs[5])
	t.HandlingCost = decFromText(costs[6])
	t.DeclarationCost = decFromText(costs[7])
	t.RegistrationCost = decFromText(costs[8])

	return &t, nil
}

// UpsertTariff inserts a tariff or replaces the existing row for the same
// natural key. When a row is replaced, the old version is copied to
// tariff_archive inside the same transaction. Returns the tariff ID and
// whether a previous version was archived.
func (d *PostgresDB) UpsertTariff(ctx context.Context, t Tariff) (int64, bool, error) {
	if t.TransportType == "" || t.Basis == "" || t.OriginCity == "" || t.DestinationCity == "" {
		return 0, false, fmt.Errorf("tariff missing natural key fields")
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existingID int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM tariffs
		WHERE supplier = $1 AND transport_type = $2 AND origin_city = $3
		  AND destination_city = $4 AND basis = $5 AND vehicle_type = $6
		FOR UPDATE
	`, t.Supplier, t.TransportType, t.OriginCity, t.DestinationCity, t.Basis, t.VehicleType).Scan(&existingID)

	if errors.Is(err, pgx.ErrNoRows) {
		var id int64
		err = tx.QueryRow(ctx, `
			INSERT INTO tariffs (supplier, transport_type, basis, origin_country, origin_city,
				destination_country, destination_city, vehicle_type,
				price_usd, price_rub, price_cny, transit_time_days, validity_date,
				cbx_cost, terminal_handling_cost, auto_pickup_cost, security_cost, precarriage_cost,
				car_parking_cost, handling_cost, declaration_cost, registration_cost,
				source_strategy, source_file, document_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
			RETURNING id
		`, t.Supplier, t.TransportType, t.Basis, t.OriginCountry, t.OriginCity,
			t.DestinationCountry, t.DestinationCity, t.VehicleType,
			decArg(t.PriceUSD), decArg(t.PriceRUB), decArg(t.PriceCNY), t.TransitTimeDays, t.ValidityDate,
			decArg(t.CBXCost), decArg(t.TerminalHandlingCost), decArg(t.AutoPickupCost), decArg(t.SecurityCost), decArg(t.PrecarriageCost),
			decArg(t.CarParkingCost), decArg(t.HandlingCost), decArg(t.DeclarationCost), decArg(t.RegistrationCost),
			t.SourceStrategy, t.SourceFile, t.DocumentID).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("insert tariff: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("commit: %w", err)
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup tariff: %w", err)
	}

	// Copy the current version to the archive, then replace it.
	_, err = tx.Exec(ctx, `
		INSERT INTO tariff_archive (original_tariff_id, supplier, transport_type, basis,
			origin_country, origin_city, destination_country, destination_city, vehicle_type,
			price_usd, price_rub, price_cny, transit_time_days, validity_date,
			cbx_cost, terminal_handling_cost, auto_pickup_cost, security_cost, precarriage_cost,
			car_parking_cost, handling_cost, declaration_cost, registration_cost,
			source_strategy, source_file, document_id, created_at)
		SELECT id, supplier, transport_type, basis,
			origin_country, origin_city, destination_country, destination_city, vehicle_type,
			price_usd, price_rub, price_cny, transit_time_days, validity_date,
			cbx_cost, terminal_handling_cost, auto_pickup_cost, security_cost, precarriage_cost,
			car_parking_cost, handling_cost, declaration_cost, registration_cost,
			source_strategy, source_file, document_id, created_at
		FROM tariffs WHERE id = $1
	`, existingID)
	if err != nil {
		return 0, false, fmt.Errorf("archive tariff: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE tariffs SET
			origin_country = $2,
			destination_country = $3,
			price_usd = $4, price_rub = $5, price_cny = $6,
			transit_time_days = $7, validity_date = $8,
			cbx_cost = $9, terminal_handling_cost = $10, auto_pickup_cost = $11,
			security_cost = $12, precarriage_cost = $13, car_parking_cost = $14,
			handling_cost = $15, declaration_cost = $16, registration_cost = $17,
			source_strategy = $18, source_file = $19, document_id = $20,
			updated_at = NOW()
		WHERE id = $1
	`, existingID,
		t.OriginCountry, t.DestinationCountry,
		decArg(t.PriceUSD), decArg(t.PriceRUB), decArg(t.PriceCNY),
		t.TransitTimeDays, t.ValidityDate,
		decArg(t.CBXCost), decArg(t.TerminalHandlingCost), decArg(t.AutoPickupCost),
		decArg(t.SecurityCost), decArg(t.PrecarriageCost), decArg(t.CarParkingCost),
		decArg(t.HandlingCost), decArg(t.DeclarationCost), decArg(t.RegistrationCost),
		t.SourceStrategy, t.SourceFile, t.DocumentID)
	if err != nil {
		return 0, false, fmt.Errorf("update tariff: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return existingID, true, nil
}

// GetTariff retrieves a tariff by ID.
func (d *PostgresDB) GetTariff(ctx context.Context, id int64) (*Tariff, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+tariffColumns+` FROM tariffs WHERE id = $1`, id)
	t, err := scanTariff(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// TariffFilter contains filtering options for listing tariffs.
type TariffFilter struct {
	Supplier        string
	TransportType   string
	OriginCity      string
	DestinationCity string
	Basis           string
	Limit           int
	Offset          int
}

// ListTariffs retrieves tariffs matching the given filter.
func (d *PostgresDB) ListTariffs(ctx context.Context, f TariffFilter) ([]Tariff, error) {
	var conditions []string
	var args []interface{}

	add := func(column string, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("supplier", f.Supplier)
	add("transport_type", f.TransportType)
	add("origin_city", f.OriginCity)
	add("destination_city", f.DestinationCity)
	add("basis", f.Basis)

	query := `SELECT ` + tariffColumns + ` FROM tariffs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY supplier, origin_city, destination_city, id"

	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, f.Offset)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []Tariff
	for rows.Next() {
		t, err := scanTariff(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tariff: %w", err)
		}
		tariffs = append(tariffs, *t)
	}
	return tariffs, rows.Err()
}

// ArchivedVersions retrieves the archived versions of a tariff, newest first.
func (d *PostgresDB) ArchivedVersions(ctx context.Context, originalID int64) ([]ArchivedTariff, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, original_tariff_id, supplier, transport_type, basis, origin_country, origin_city,
			destination_country, destination_city, vehicle_type,
			price_usd::text, price_rub::text, price_cny::text,
			transit_time_days, validity_date,
			cbx_cost::text, terminal_handling_cost::text, auto_pickup_cost::text,
			security_cost::text, precarriage_cost::text, car_parking_cost::text,
			handling_cost::text, declaration_cost::text, registration_cost::text,
			source_strategy, source_file, document_id, created_at, archived_at
		FROM tariff_archive
		WHERE original_tariff_id = $1
		ORDER BY archived_at DESC, id DESC
	`, originalID)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var versions []ArchivedTariff
	for rows.Next() {
		var a ArchivedTariff
		var usd, rub, cny *string
		var costs [9]*string
		var transit *int

		err := rows.Scan(&a.ID, &a.OriginalTariffID, &a.Supplier, &a.TransportType, &a.Basis,
			&a.OriginCountry, &a.OriginCity, &a.DestinationCountry, &a.DestinationCity, &a.VehicleType,
			&usd, &rub, &cny,
			&transit, &a.ValidityDate,
			&costs[0], &costs[1], &costs[2], &costs[3], &costs[4], &costs[5], &costs[6], &costs[7], &costs[8],
			&a.SourceStrategy, &a.SourceFile, &a.DocumentID, &a.CreatedAt, &a.ArchivedAt)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		a.PriceUSD = decFromText(usd)
		a.PriceRUB = decFromText(rub)
		a.PriceCNY = decFromText(cny)
		a.TransitTimeDays = transit
		a.CBXCost = decFromText(costs[0])
		a.TerminalHandlingCost = decFromText(costs[1])
		a.AutoPickupCost = decFromText(costs[2])
		a.SecurityCost = decFromText(costs[3])
		a.PrecarriageCost = decFromText(costs[4])
		a.CarParkingCost = decFromText(costs[5])
		a.HandlingCost = decFromText(costs[6])
		a.DeclarationCost = decFromText(costs[7])
		a.RegistrationCost = decFromText(costs[8])

		versions = append(versions, a)
	}
	return versions, rows.Err()
}

// CountTariffsByTransport returns tariff counts grouped by transport type.
func (d *PostgresDB) CountTariffsByTransport(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	rows, err := d.pool.Query(ctx, `SELECT transport_type, COUNT(*) FROM tariffs GROUP BY transport_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var count int64
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scan count by transport: %w", err)
		}
		counts[typ] = count
	}
	return counts, rows.Err()
}
