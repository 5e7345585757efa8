// Package store persists contact form submissions.
//
// Four backends share one interface: an embedded bbolt file (the default),
// sqlite, postgres and mongo. Records are append-only.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ContactMessage is one submission of the contact form.
type ContactMessage struct {
	ID        string    `json:"id" bson:"-"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	Subject   string    `json:"subject" bson:"subject"`
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Store is safe for concurrent use.
type Store interface {
	// CreateContactMessage inserts m and sets m.ID and m.CreatedAt.
	CreateContactMessage(ctx context.Context, m *ContactMessage) error
	// ContactMessages returns every record, oldest first.
	ContactMessages(ctx context.Context) ([]ContactMessage, error)
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Type         string // bolt, sqlite, postgres or mongo
	DSN          string
	Name         string // mongo database
	Migrate      bool
	MaxOpenConns int
}

var (
	ErrUnknownBackend = errors.New("store: unknown backend")
	ErrClosed         = errors.New("store: closed")
)

const table = "contact_messages"

// Open connects to the backend named by cfg.Type and prepares its schema.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("store").With(zap.String("backend", cfg.Type))

	var (
		st  Store
		err error
	)
	switch cfg.Type {
	case "bolt", "":
		st, err = openBolt(cfg.DSN)
	case "sqlite":
		st, err = openSQLite(ctx, cfg, log)
	case "postgres":
		st, err = openPostgres(ctx, cfg, log)
	case "mongo":
		st, err = openMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	log.Info("store ready")
	return st, nil
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
