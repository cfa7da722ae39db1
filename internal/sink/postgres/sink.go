// Package postgres provides a crawler.Sink that writes datasets into
// Postgres tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Sink writes each dataset to the table <prefix><dataset>. Rows are keyed by
// session and row number, so rewriting a session replaces its rows.
type Sink struct {
	pool      pool
	prefix    string
	sessionID string
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	if err := validatePrefix(cfg.TablePrefix); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Sink{pool: p, prefix: cfg.TablePrefix}, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(p pool, tablePrefix string) (*Sink, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if err := validatePrefix(tablePrefix); err != nil {
		return nil, err
	}
	return &Sink{pool: p, prefix: tablePrefix}, nil
}

// ForSession returns a sink that tags rows with sessionID. The pool is shared.
func (s *Sink) ForSession(sessionID string) *Sink {
	return &Sink{pool: s.pool, prefix: s.prefix, sessionID: sessionID}
}

// Close releases the underlying pool resources.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Write creates the dataset table if needed and replaces this session's rows
// in one transaction. Every column is TEXT and rows keep their input order
// through row_num.
func (s *Sink) Write(ctx context.Context, dataset string, columns []string, rows []crawler.Row) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres sink is not configured")
	}
	if s.sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	table := s.prefix + dataset
	if !validIdentifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	for _, c := range columns {
		if !validIdentifier.MatchString(c) || c == "session_id" || c == "row_num" {
			return fmt.Errorf("invalid column name %q", c)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	ident := pgx.Identifier{table}
	if _, err = tx.Exec(ctx, createTableSQL(ident, columns)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE session_id = $1", ident.Sanitize())
	if _, err = tx.Exec(ctx, deleteSQL, s.sessionID); err != nil {
		return fmt.Errorf("clear session rows in %s: %w", table, err)
	}

	copyColumns := append([]string{"session_id", "row_num"}, columns...)
	values := make([][]any, 0, len(rows))
	for i, row := range rows {
		v := make([]any, 0, len(copyColumns))
		v = append(v, s.sessionID, int32(i+1))
		for _, field := range crawler.Project(row, columns) {
			v = append(v, field)
		}
		values = append(values, v)
	}
	if _, err = tx.CopyFrom(ctx, ident, copyColumns, pgx.CopyFromRows(values)); err != nil {
		return fmt.Errorf("copy rows into %s: %w", table, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	return nil
}

func createTableSQL(ident pgx.Identifier, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (session_id TEXT NOT NULL, row_num INTEGER NOT NULL", ident.Sanitize())
	for _, c := range columns {
		fmt.Fprintf(&b, ", %s TEXT NOT NULL", pgx.Identifier{c}.Sanitize())
	}
	b.WriteString(", PRIMARY KEY (session_id, row_num))")
	return b.String()
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if !validIdentifier.MatchString(prefix) {
		return fmt.Errorf("invalid table prefix %q", prefix)
	}
	return nil
}
