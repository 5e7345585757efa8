package store

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type postgresStore struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

func openPostgres(ctx context.Context, cfg Config, log *zap.Logger) (*postgresStore, error) {
	if cfg.Migrate {
		if err := migratePostgres(cfg.DSN, log); err != nil {
			return nil, err
		}
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

// CreateContactMessage fills m.ID from the RETURNING clause.
func (s *postgresStore) CreateContactMessage(ctx context.Context, m *ContactMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO contact_messages (name, email, subject, message, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		m.Name, m.Email, m.Subject, m.Message, now(),
	).Scan(&id, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres insert: %w", err)
	}
	m.ID = strconv.FormatInt(id, 10)
	m.CreatedAt = m.CreatedAt.UTC()
	return nil
}

func (s *postgresStore) ContactMessages(ctx context.Context) ([]ContactMessage, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, email, subject, message, created_at
		 FROM contact_messages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres select: %w", err)
	}
	defer rows.Close()

	var out []ContactMessage
	for rows.Next() {
		var (
			m  ContactMessage
			id int64
		)
		if err := rows.Scan(&id, &m.Name, &m.Email, &m.Subject, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres scan: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *postgresStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	if !s.closed.Swap(true) {
		s.pool.Close()
	}
	return nil
}
