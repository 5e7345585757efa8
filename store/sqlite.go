package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA trusted_schema=OFF;",
}

type sqliteStore struct {
	db     *sql.DB
	closed atomic.Bool
}

func openSQLite(ctx context.Context, cfg Config, log *zap.Logger) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	// pragmas are per connection; a single writer also avoids SQLITE_BUSY
	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Warn("failed to execute pragma", zap.String("pragma", pragma), zap.Error(err))
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	if cfg.Migrate {
		if err := migrateSQLite(db, log); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) CreateContactMessage(ctx context.Context, m *ContactMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	created := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_messages (name, email, subject, message, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.Name, m.Email, m.Subject, m.Message, created,
	)
	if err != nil {
		return fmt.Errorf("sqlite insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite insert id: %w", err)
	}
	m.ID = strconv.FormatInt(id, 10)
	m.CreatedAt = created
	return nil
}

func (s *sqliteStore) ContactMessages(ctx context.Context) ([]ContactMessage, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, subject, message, created_at
		 FROM contact_messages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite select: %w", err)
	}
	defer rows.Close()

	var out []ContactMessage
	for rows.Next() {
		var (
			m  ContactMessage
			id int64
		)
		if err := rows.Scan(&id, &m.Name, &m.Email, &m.Subject, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
