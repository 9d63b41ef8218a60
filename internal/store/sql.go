package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/bukken/internal/models"
)

// SQL implements Store over sqlx. The same code runs against a local SQLite
// file (dev, tests) and a managed Postgres-compatible service; placeholders
// are rebound per driver.
type SQL struct {
	db     *sqlx.DB
	driver string

	mu      sync.RWMutex
	columns map[string]columnInfo // field name -> column info
}

type columnInfo struct {
	Column string
	Type   models.FieldType
}

// NewSQL opens the database for the given driver ("sqlite3" or "postgres")
// and DSN, and initializes the schema. For SQLite, parent directories are
// created and WAL is enabled.
func NewSQL(driver, dsn string) (*SQL, error) {
	if driver == "sqlite3" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	s := &SQL{db: db, driver: driver, columns: make(map[string]columnInfo)}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.loadCatalog(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load column catalog: %w", err)
	}
	return s, nil
}

func (s *SQL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		unit_key TEXT PRIMARY KEY,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS unit_fields (
		column_name TEXT PRIMARY KEY,
		field_name TEXT NOT NULL,
		field_type TEXT NOT NULL,
		label TEXT
	);

	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		filename TEXT,
		size_bytes BIGINT,
		parsed_rows INTEGER,
		units INTEGER,
		dropped_no_key INTEGER,
		created_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// loadCatalog reads previously provisioned columns into the in-memory map.
func (s *SQL) loadCatalog() error {
	rows, err := s.db.Query(`SELECT column_name, field_name, field_type FROM unit_fields`)
	if err != nil {
		return err
	}
	defer rows.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var col, field, typ string
		if err := rows.Scan(&col, &field, &typ); err != nil {
			return err
		}
		s.columns[field] = columnInfo{Column: col, Type: models.FieldType(typ)}
	}
	return rows.Err()
}

// EnsureColumns issues ALTER TABLE ... ADD COLUMN for fields not yet
// provisioned and records them in the catalog table.
func (s *SQL) EnsureColumns(ctx context.Context, fields []*models.FieldDescriptor) error {
	for _, fd := range fields {
		s.mu.RLock()
		_, known := s.columns[fd.Name]
		s.mu.RUnlock()
		if known {
			continue
		}
		col := s.freeColumnName(fd.Name)
		sqlType := "TEXT"
		if fd.Type == models.FieldNumber {
			sqlType = "DOUBLE PRECISION"
		}
		ddl := fmt.Sprintf(`ALTER TABLE units ADD COLUMN %s %s`, quoteIdent(col), sqlType)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to add column for field %q: %w", fd.Name, err)
		}
		q := s.db.Rebind(`INSERT INTO unit_fields (column_name, field_name, field_type, label) VALUES (?, ?, ?, ?)`)
		if _, err := s.db.ExecContext(ctx, q, col, fd.Name, string(fd.Type), fd.Label); err != nil {
			return fmt.Errorf("failed to catalog field %q: %w", fd.Name, err)
		}
		s.mu.Lock()
		s.columns[fd.Name] = columnInfo{Column: col, Type: fd.Type}
		s.mu.Unlock()
	}
	return nil
}

// freeColumnName returns an unused column identifier for a field name,
// suffixing on collision (two field names can normalize identically).
func (s *SQL) freeColumnName(field string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	base := columnName(field)
	col := base
	for n := 2; s.columnTaken(col); n++ {
		col = base + "_" + strconv.Itoa(n)
	}
	return col
}

func (s *SQL) columnTaken(col string) bool {
	for _, info := range s.columns {
		if info.Column == col {
			return true
		}
	}
	return false
}

// UpsertUnits inserts or updates one row per merged record.
func (s *SQL) UpsertUnits(ctx context.Context, keyField string, units []models.Record) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, unit := range units {
		key := unitKey(unit, keyField)
		if key == "" {
			continue
		}
		cols := []string{"unit_key", "created_at", "updated_at"}
		args := []interface{}{key, now, now}
		sets := []string{"updated_at = " + excludedRef("updated_at")}
		s.mu.RLock()
		// The key field is stored twice: in unit_key for identity and in its
		// own column so reads reconstruct the full record.
		for field, v := range unit {
			info, ok := s.columns[field]
			if !ok {
				continue
			}
			cols = append(cols, quoteIdent(info.Column))
			args = append(args, storeValue(v, info.Type))
			sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(info.Column), excludedRef(info.Column)))
		}
		s.mu.RUnlock()

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		q := fmt.Sprintf(
			`INSERT INTO units (%s) VALUES (%s) ON CONFLICT (unit_key) DO UPDATE SET %s`,
			strings.Join(cols, ", "), placeholders, strings.Join(sets, ", "),
		)
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return fmt.Errorf("failed to upsert unit %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// GetUnit returns the stored record for a natural key.
func (s *SQL) GetUnit(ctx context.Context, key string) (models.Record, error) {
	q := s.db.Rebind(`SELECT * FROM units WHERE unit_key = ?`)
	row := s.db.QueryRowxContext(ctx, q, key)
	raw := map[string]interface{}{}
	if err := row.MapScan(raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("unit not found: %s", key)
		}
		return nil, err
	}
	return s.rowToRecord(raw), nil
}

// ListUnits returns stored records, most recently updated first.
func (s *SQL) ListUnits(ctx context.Context, offset, limit int) ([]models.Record, error) {
	q := s.db.Rebind(`SELECT * FROM units ORDER BY updated_at DESC LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryxContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Record
	for rows.Next() {
		raw := map[string]interface{}{}
		if err := rows.MapScan(raw); err != nil {
			return nil, err
		}
		out = append(out, s.rowToRecord(raw))
	}
	return out, rows.Err()
}

// CountUnits returns the total number of stored units.
func (s *SQL) CountUnits(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units`).Scan(&count)
	return count, err
}

// RecordUpload inserts one upload history row.
func (s *SQL) RecordUpload(ctx context.Context, up *models.Upload) error {
	if up.CreatedAt.IsZero() {
		up.CreatedAt = time.Now()
	}
	q := s.db.Rebind(`INSERT INTO uploads (id, filename, size_bytes, parsed_rows, units, dropped_no_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		up.ID, up.Filename, up.SizeBytes, up.ParsedRows, up.Units, up.DroppedNoKey, up.CreatedAt)
	return err
}

// ListUploads returns upload history, newest first.
func (s *SQL) ListUploads(ctx context.Context, offset, limit int) ([]*models.Upload, error) {
	q := s.db.Rebind(`SELECT id, filename, size_bytes, parsed_rows, units, dropped_no_key, created_at
		FROM uploads ORDER BY created_at DESC LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryxContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Upload
	for rows.Next() {
		var up models.Upload
		if err := rows.StructScan(&up); err != nil {
			return nil, err
		}
		out = append(out, &up)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// rowToRecord converts a scanned row back into a Record keyed by original
// field names, using the column catalog. Bookkeeping columns are skipped.
func (s *SQL) rowToRecord(raw map[string]interface{}) models.Record {
	byColumn := make(map[string]string)
	types := make(map[string]models.FieldType)
	s.mu.RLock()
	for field, info := range s.columns {
		byColumn[info.Column] = field
		types[field] = info.Type
	}
	s.mu.RUnlock()

	rec := models.Record{}
	for col, v := range raw {
		if v == nil || col == "created_at" || col == "updated_at" {
			continue
		}
		if col == "unit_key" {
			rec["unit_key"] = scanString(v)
			continue
		}
		field, ok := byColumn[col]
		if !ok {
			continue
		}
		if types[field] == models.FieldNumber {
			if f, ok := scanFloat(v); ok {
				rec[field] = f
			}
			continue
		}
		rec[field] = scanString(v)
	}
	return rec
}

func unitKey(rec models.Record, keyField string) string {
	switch v := rec[keyField].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// storeValue coerces a record value to the provisioned column type.
func storeValue(v interface{}, typ models.FieldType) interface{} {
	if typ == models.FieldNumber {
		switch n := v.(type) {
		case float64:
			return n
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f
			}
			return nil
		default:
			return nil
		}
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func scanString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func scanFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// columnName normalizes a field name to a safe SQL identifier: lowercase,
// non-alphanumerics collapsed to underscores.
func columnName(field string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(field)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	col := strings.Trim(b.String(), "_")
	if col == "" {
		col = "field"
	}
	if col[0] >= '0' && col[0] <= '9' {
		col = "f_" + col
	}
	// Reserved bookkeeping names cannot be shadowed by user columns.
	switch col {
	case "unit_key", "created_at", "updated_at":
		col = col + "_field"
	}
	return col
}

func quoteIdent(ident string) string {
	return `"` + ident + `"`
}

// excludedRef returns the conflict-row reference for an upsert SET clause.
// Both SQLite and Postgres use the excluded pseudo-table.
func excludedRef(col string) string {
	return "excluded." + quoteIdent(col)
}
