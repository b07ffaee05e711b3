package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default DSNs used when none is configured.
const (
	DefaultSQLiteDSN   = "file:thermo-dash.db?_pragma=busy_timeout(5000)"
	DefaultPostgresDSN = "postgres://localhost:5432/thermodash?sslmode=disable"
)

// DefaultDSN returns the default DSN for a driver name.
func DefaultDSN(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql":
		return DefaultPostgresDSN
	default:
		return DefaultSQLiteDSN
	}
}

// NewBackend opens a SQL backend for the given driver name.
func NewBackend(driver, dsn string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		return NewSQLite(dsn)
	case DriverPostgres, "postgresql":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

// NewSQLite opens a SQLite backend (modernc.org/sqlite, no cgo).
func NewSQLite(dsn string) (*SQLBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultSQLiteDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)
	return newSQLBackend(db, DriverSQLite), nil
}

// NewPostgres opens a PostgreSQL backend through the pgx stdlib driver.
func NewPostgres(dsn string) (*SQLBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = DefaultPostgresDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLBackend(db, DriverPostgres), nil
}

// SQLBackend stores chemical records in a SQL table.
type SQLBackend struct {
	db      *sql.DB
	dialect string
	now     func() time.Time

	mu     sync.Mutex
	nextID int
	subs   map[int]func([]ChemicalRecord)
}

func newSQLBackend(db *sql.DB, dialect string) *SQLBackend {
	return &SQLBackend{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
		subs:    make(map[int]func([]ChemicalRecord)),
	}
}

// Init creates the chemicals table if needed.
func (b *SQLBackend) Init(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS chemicals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			backend_id TEXT NOT NULL UNIQUE,
			chem_name TEXT NOT NULL,
			formula TEXT NOT NULL DEFAULT '',
			boiling_point REAL,
			freezing_point REAL,
			hazard_level TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`
	if b.dialect == DriverPostgres {
		stmt = `CREATE TABLE IF NOT EXISTS chemicals (
			id BIGSERIAL PRIMARY KEY,
			backend_id TEXT NOT NULL UNIQUE,
			chem_name TEXT NOT NULL,
			formula TEXT NOT NULL DEFAULT '',
			boiling_point DOUBLE PRECISION,
			freezing_point DOUBLE PRECISION,
			hazard_level TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	}
	if _, err := b.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create chemicals table: %w", err)
	}
	return nil
}

// List returns all records ordered by id.
func (b *SQLBackend) List(ctx context.Context) ([]ChemicalRecord, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, backend_id, chem_name, formula, boiling_point, freezing_point, hazard_level, notes
		FROM chemicals ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list chemicals: %w", err)
	}
	defer rows.Close()

	out := []ChemicalRecord{}
	for rows.Next() {
		var rec ChemicalRecord
		var bp, fp sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.BackendID, &rec.ChemName, &rec.Formula, &bp, &fp, &rec.HazardLevel, &rec.Notes); err != nil {
			return nil, fmt.Errorf("scan chemical: %w", err)
		}
		rec.BoilingPoint = floatPtr(bp)
		rec.FreezingPoint = floatPtr(fp)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chemicals: %w", err)
	}
	return out, nil
}

// Create inserts a record with a fresh backend id.
func (b *SQLBackend) Create(ctx context.Context, rec ChemicalRecord) Result {
	rec.BackendID = uuid.NewString()
	now := b.now()

	err := b.db.QueryRowContext(ctx, b.rebind(
		`INSERT INTO chemicals (backend_id, chem_name, formula, boiling_point, freezing_point, hazard_level, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		rec.BackendID, rec.ChemName, rec.Formula, nullFloat(rec.BoilingPoint), nullFloat(rec.FreezingPoint),
		rec.HazardLevel, rec.Notes, now, now,
	).Scan(&rec.ID)
	if err != nil {
		return failed(fmt.Errorf("insert chemical: %w", err))
	}

	b.changed(ctx)
	return Result{Success: true, Record: rec}
}

// Update rewrites the record identified by BackendID.
func (b *SQLBackend) Update(ctx context.Context, rec ChemicalRecord) Result {
	if rec.BackendID == "" {
		return failed(fmt.Errorf("%w: missing backend id", ErrNotFound))
	}
	res, err := b.db.ExecContext(ctx, b.rebind(
		`UPDATE chemicals SET chem_name = ?, formula = ?, boiling_point = ?, freezing_point = ?, hazard_level = ?, notes = ?, updated_at = ?
		WHERE backend_id = ?`),
		rec.ChemName, rec.Formula, nullFloat(rec.BoilingPoint), nullFloat(rec.FreezingPoint),
		rec.HazardLevel, rec.Notes, b.now(), rec.BackendID,
	)
	if err != nil {
		return failed(fmt.Errorf("update chemical: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return failed(fmt.Errorf("%w: %s", ErrNotFound, rec.BackendID))
	}

	b.changed(ctx)
	return Result{Success: true, Record: rec}
}

// Delete removes the record identified by BackendID.
func (b *SQLBackend) Delete(ctx context.Context, rec ChemicalRecord) Result {
	if rec.BackendID == "" {
		return failed(fmt.Errorf("%w: missing backend id", ErrNotFound))
	}
	res, err := b.db.ExecContext(ctx, b.rebind(`DELETE FROM chemicals WHERE backend_id = ?`), rec.BackendID)
	if err != nil {
		return failed(fmt.Errorf("delete chemical: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return failed(fmt.Errorf("%w: %s", ErrNotFound, rec.BackendID))
	}

	b.changed(ctx)
	return Result{Success: true, Record: rec}
}

// Subscribe registers a change listener.
func (b *SQLBackend) Subscribe(fn func([]ChemicalRecord)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close closes the database.
func (b *SQLBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// changed reloads the table and delivers it to subscribers.
func (b *SQLBackend) changed(ctx context.Context) {
	recs, err := b.List(ctx)
	if err != nil {
		// Subscribers keep their previous set; the next change retries.
		log.Printf("records: reload after change failed: %v", err)
		return
	}

	b.mu.Lock()
	subs := make([]func([]ChemicalRecord), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		cp := make([]ChemicalRecord, len(recs))
		copy(cp, recs)
		fn(cp)
	}
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (b *SQLBackend) rebind(query string) string {
	if b.dialect != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// isNotFound reports whether err came from a missing record.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
