package readmodels

import (
	"database/sql"
	"encoding/json"
)

// SQLiteTenantStore persists rows of a read model as JSON blobs keyed by
// (tenant, table, key), trading query-ability for reuse across every
// read-model row type without a migration per projection.
type SQLiteTenantStore[K comparable, V any] struct {
	db    *sql.DB
	table string
}

const readModelSchema = `
CREATE TABLE IF NOT EXISTS read_model_rows (
	table_name TEXT NOT NULL,
	tenant_id  TEXT NOT NULL,
	row_key    TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (table_name, tenant_id, row_key)
);
`

// NewSQLiteTenantStore migrates the shared read_model_rows table (if
// absent) and returns a store scoped to table, so independent projections
// sharing one *sql.DB don't collide on row_key.
func NewSQLiteTenantStore[K comparable, V any](db *sql.DB, table string) (*SQLiteTenantStore[K, V], error) {
	if _, err := db.Exec(readModelSchema); err != nil {
		return nil, err
	}
	return &SQLiteTenantStore[K, V]{db: db, table: table}, nil
}

func (s *SQLiteTenantStore[K, V]) keyString(key K) string {
	b, _ := json.Marshal(key)
	return string(b)
}

func (s *SQLiteTenantStore[K, V]) Get(tenant string, key K) (V, bool) {
	var zero V
	var body string
	err := s.db.QueryRow(`SELECT body FROM read_model_rows WHERE table_name = ? AND tenant_id = ? AND row_key = ?`,
		s.table, tenant, s.keyString(key)).Scan(&body)
	if err != nil {
		return zero, false
	}
	var v V
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return zero, false
	}
	return v, true
}

func (s *SQLiteTenantStore[K, V]) Upsert(tenant string, key K, value V) {
	body, err := json.Marshal(value)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`
		INSERT INTO read_model_rows (table_name, tenant_id, row_key, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(table_name, tenant_id, row_key) DO UPDATE SET body = excluded.body`,
		s.table, tenant, s.keyString(key), string(body))
}

func (s *SQLiteTenantStore[K, V]) Delete(tenant string, key K) {
	_, _ = s.db.Exec(`DELETE FROM read_model_rows WHERE table_name = ? AND tenant_id = ? AND row_key = ?`,
		s.table, tenant, s.keyString(key))
}

func (s *SQLiteTenantStore[K, V]) List(tenant string) []V {
	rows, err := s.db.Query(`SELECT body FROM read_model_rows WHERE table_name = ? AND tenant_id = ?`, s.table, tenant)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []V
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			continue
		}
		var v V
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (s *SQLiteTenantStore[K, V]) ClearTenant(tenant string) {
	_, _ = s.db.Exec(`DELETE FROM read_model_rows WHERE table_name = ? AND tenant_id = ?`, s.table, tenant)
}
