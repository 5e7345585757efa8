package system

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/aerth/dojod/config"
	"github.com/aerth/dojod/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testSite struct {
	sys    *System
	store  store.Store
	srv    *httptest.Server
	client *http.Client
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	public := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(public, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(public, "css", "style.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(public, "robots.txt"), []byte("User-agent: *\n"), 0o644))

	var c config.Config
	c.Meta.SiteName = "NL DOJO"
	c.Meta.SiteURL = "http://localhost:8080"
	c.Meta.PathPublic = public
	c.Sec.HashKey = "0123456789abcdef0123456789abcdef"
	c.Sec.BlockKey = "fedcba9876543210fedcba9876543210"
	c.Sec.CSRFKey = "abcdefghijklmnopqrstuvwxyz012345"
	c.Sec.CookieName = "dojod"
	return c
}

// newTestSite serves a System backed by a bolt file in a temp dir.
// mutate may adjust the config before New is called.
func newTestSite(t *testing.T, mutate ...func(*config.Config)) *testSite {
	t.Helper()
	cfg := testConfig(t)
	for _, f := range mutate {
		f(&cfg)
	}
	st, err := store.Open(context.Background(), store.Config{Type: "bolt", DSN: filepath.Join(t.TempDir(), "contact.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return newTestSiteWithStore(t, cfg, st)
}

func newTestSiteWithStore(t *testing.T, cfg config.Config, st store.Store) *testSite {
	t.Helper()
	sys, err := New(cfg, st, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	srv := httptest.NewServer(sys.Router())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testSite{sys: sys, store: st, srv: srv, client: client}
}

func (ts *testSite) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := ts.client.Get(ts.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (ts *testSite) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := ts.client.PostForm(ts.srv.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (ts *testSite) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

var (
	csrfInput = regexp.MustCompile(`name="_csrf" value="([^"]+)"`)
	csrfMeta  = regexp.MustCompile(`name="csrf-token" content="[^"]+"`)
)

// token loads the contact form and returns its csrf token.
func (ts *testSite) token(t *testing.T) string {
	t.Helper()
	resp, body := ts.get(t, contactPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := csrfInput.FindStringSubmatch(body)
	require.Len(t, m, 2, "no csrf field in form")
	return m[1]
}

func (ts *testSite) messages(t *testing.T) []store.ContactMessage {
	t.Helper()
	msgs, err := ts.store.ContactMessages(context.Background())
	require.NoError(t, err)
	return msgs
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// failingStore errors on every write and ping.
type failingStore struct {
	mu    sync.Mutex
	tries int
}

var errBroken = errors.New("disk on fire")

func (f *failingStore) CreateContactMessage(context.Context, *store.ContactMessage) error {
	f.mu.Lock()
	f.tries++
	f.mu.Unlock()
	return errBroken
}
func (f *failingStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tries
}
func (f *failingStore) ContactMessages(context.Context) ([]store.ContactMessage, error) {
	return nil, errBroken
}
func (f *failingStore) Ping(context.Context) error { return errBroken }
func (f *failingStore) Close() error               { return nil }
