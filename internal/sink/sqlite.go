// internal/sink/sqlite.go
package sink

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DBFile is the database file name inside the output directory
const DBFile = "results.db"

// SQLite appends each table to <dir>/results.db. Every row carries the
// session id so repeated measurements into one directory stay separable.
type SQLite struct {
	Session string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewSQLite creates a sink with a fresh session id.
func NewSQLite() *SQLite {
	return &SQLite{
		Session: uuid.NewString(),
		dbs:     make(map[string]*sql.DB),
	}
}

func (s *SQLite) open(dir string) (*sql.DB, error) {
	path := filepath.Join(dir, DBFile)
	if db, ok := s.dbs[path]; ok {
		return db, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// Analyzers may finish concurrently; one connection keeps writes serialized
	db.SetMaxOpenConns(1)
	s.dbs[path] = db
	return db, nil
}

func (s *SQLite) Write(dir string, t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open(dir)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(t.Header)+1)
	cols = append(cols, "session TEXT")
	for i, h := range t.Header {
		cols = append(cols, quoteIdent(h)+" "+columnType(t.Rows, i))
	}
	if _, err := db.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(t.Name), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	if len(t.Rows) == 0 {
		return nil
	}

	names := make([]string, 0, len(t.Header)+1)
	names = append(names, "session")
	for _, h := range t.Header {
		names = append(names, quoteIdent(h))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.Name), strings.Join(names, ", "), placeholders)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert %s: %w", t.Name, err)
	}
	defer stmt.Close()

	args := make([]any, len(names))
	args[0] = s.Session
	for _, row := range t.Rows {
		copy(args[1:], row)
		if _, err := stmt.Exec(args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", t.Name, err)
		}
	}
	return tx.Commit()
}

// Close closes every database the sink opened.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for path, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(s.dbs, path)
	}
	return errors.Join(errs...)
}

func columnType(rows [][]any, i int) string {
	if len(rows) == 0 {
		return ""
	}
	switch rows[0][i].(type) {
	case int, int64:
		return "INTEGER"
	case float64, float32:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
