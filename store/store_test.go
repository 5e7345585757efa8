package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// backends returns every store the environment can provide.
// postgres and mongo need DOJOD_TEST_POSTGRES_DSN and DOJOD_TEST_MONGO_URI.
func backends(t *testing.T) map[string]Config {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Config{
		"bolt":   {Type: "bolt", DSN: filepath.Join(dir, "contact.db")},
		"sqlite": {Type: "sqlite", DSN: filepath.Join(dir, "contact.sqlite"), Migrate: true},
	}
	if dsn := os.Getenv("DOJOD_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = Config{Type: "postgres", DSN: dsn, Migrate: true}
	}
	if uri := os.Getenv("DOJOD_TEST_MONGO_URI"); uri != "" {
		out["mongo"] = Config{Type: "mongo", DSN: uri, Name: fmt.Sprintf("dojod_test_%d", time.Now().UnixNano()), Migrate: true}
	}
	return out
}

func openTest(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func countOf(t *testing.T, st Store) int {
	t.Helper()
	msgs, err := st.ContactMessages(context.Background())
	require.NoError(t, err)
	return len(msgs)
}

func TestStores(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := openTest(t, cfg)
			base := countOf(t, st)

			require.NoError(t, st.Ping(ctx))

			first := &ContactMessage{
				Name:    "Ann",
				Email:   "ann@x.io",
				Subject: "Hi",
				Message: "Hello",
			}
			before := time.Now().Add(-time.Second)
			require.NoError(t, st.CreateContactMessage(ctx, first))
			assert.NotEmpty(t, first.ID)
			assert.WithinDuration(t, time.Now(), first.CreatedAt, time.Minute)
			assert.True(t, first.CreatedAt.After(before))

			// values are kept byte for byte, markup included
			second := &ContactMessage{
				Name:    "  <b>Bob</b>  ",
				Email:   "not-an-email",
				Subject: "Ünïcode ✓",
				Message: "line one\nline two",
			}
			require.NoError(t, st.CreateContactMessage(ctx, second))
			assert.NotEqual(t, first.ID, second.ID)

			msgs, err := st.ContactMessages(ctx)
			require.NoError(t, err)
			require.Len(t, msgs, base+2)

			got := msgs[base:]
			assert.Equal(t, first.ID, got[0].ID)
			assert.Equal(t, "Ann", got[0].Name)
			assert.Equal(t, "ann@x.io", got[0].Email)
			assert.Equal(t, "Hi", got[0].Subject)
			assert.Equal(t, "Hello", got[0].Message)

			assert.Equal(t, second.ID, got[1].ID)
			assert.Equal(t, "  <b>Bob</b>  ", got[1].Name)
			assert.Equal(t, "not-an-email", got[1].Email)
			assert.Equal(t, "Ünïcode ✓", got[1].Subject)
			assert.Equal(t, "line one\nline two", got[1].Message)
			assert.WithinDuration(t, second.CreatedAt, got[1].CreatedAt, time.Millisecond)
		})
	}
}

func TestStoresNoDedup(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := openTest(t, cfg)
			base := countOf(t, st)

			for i := 0; i < 2; i++ {
				m := &ContactMessage{Name: "Ann", Email: "ann@x.io", Subject: "Hi", Message: "Hello"}
				require.NoError(t, st.CreateContactMessage(ctx, m))
			}
			assert.Equal(t, base+2, countOf(t, st))
		})
	}
}

func TestStoresConcurrent(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := openTest(t, cfg)
			base := countOf(t, st)

			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- st.CreateContactMessage(ctx, &ContactMessage{
						Name: fmt.Sprintf("user%d", i), Email: "a@b.c", Subject: "s", Message: "m",
					})
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			msgs, err := st.ContactMessages(ctx)
			require.NoError(t, err)
			require.Len(t, msgs, base+n)
			ids := map[string]bool{}
			for _, m := range msgs {
				assert.False(t, ids[m.ID], "duplicate id %s", m.ID)
				ids[m.ID] = true
			}
		})
	}
}

func TestStoresClosed(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(ctx, cfg, nil)
			require.NoError(t, err)
			require.NoError(t, st.Close())
			require.NoError(t, st.Close())

			err = st.CreateContactMessage(ctx, &ContactMessage{Name: "a", Email: "b", Subject: "c", Message: "d"})
			assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
			_, err = st.ContactMessages(ctx)
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, st.Ping(ctx), ErrClosed)
		})
	}
}

func TestStoresReopen(t *testing.T) {
	dir := t.TempDir()
	for _, cfg := range []Config{
		{Type: "bolt", DSN: filepath.Join(dir, "contact.db")},
		{Type: "sqlite", DSN: filepath.Join(dir, "contact.sqlite"), Migrate: true},
	} {
		t.Run(cfg.Type, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(ctx, cfg, nil)
			require.NoError(t, err)
			m := &ContactMessage{Name: "Ann", Email: "ann@x.io", Subject: "Hi", Message: "Hello"}
			require.NoError(t, st.CreateContactMessage(ctx, m))
			require.NoError(t, st.Close())

			// migrations already applied, second open must not fail
			st = openTest(t, cfg)
			msgs, err := st.ContactMessages(ctx)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, m.ID, msgs[0].ID)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "mysql"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestOpenBoltBadPath(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "bolt", DSN: filepath.Join(t.TempDir(), "missing", "contact.db")}, nil)
	assert.Error(t, err)
}

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", pgx5URL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/db", pgx5URL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://localhost/db", pgx5URL("pgx5://localhost/db"))
}

func TestItobOrder(t *testing.T) {
	assert.Less(t, string(itob(9)), string(itob(10)))
	assert.Less(t, string(itob(255)), string(itob(256)))
}
