package system

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aerth/dojod/config"
	"github.com/aerth/dojod/store"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

//go:embed templates
var embedded embed.FS

// pages are the top level templates, each parsed with every partial.
var pages = []string{"index.html", "contact.html"}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

type System struct {
	Stats *Stats

	config   config.Config
	store    store.Store
	log      *zap.Logger
	audit    *zap.Logger
	sessions *sessions.CookieStore
	metrics  *metrics
	registry *prometheus.Registry
	csp      string

	tlsCert, tlsKey string

	tmu       sync.RWMutex
	templates map[string]*template.Template
}

// New wires config, store and logger into a System. A nil registry gets a
// fresh one; the registry backs /metrics.
func New(cfg config.Config, st store.Store, log *zap.Logger, reg *prometheus.Registry) (*System, error) {
	t1 := time.Now()
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	csp, err := cspHeader(cfg.Meta.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("content security policy: %w", err)
	}
	sys := &System{
		Stats:    NewStats(),
		config:   cfg,
		store:    st,
		log:      log,
		audit:    log.Named("audit"),
		sessions: newSessionStore(cfg),
		metrics:  newMetrics(reg),
		registry: reg,
		csp:      csp,
	}
	if err := sys.ReloadTemplates(); err != nil {
		return nil, err
	}
	log.Debug("system ready", zap.Duration("took", time.Since(t1)))
	return sys, nil
}

func (s *System) Config() config.Config {
	return s.config
}

// SetTLS makes Run also serve HTTPS on Meta.listentls.
func (s *System) SetTLS(certFile, keyFile string) {
	s.tlsCert, s.tlsKey = certFile, keyFile
}

func (s *System) templateFS() (fs.FS, error) {
	if dir := s.config.Meta.PathTemplates; dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, "templates")
}

func (s *System) parseTemplates() (map[string]*template.Template, error) {
	fsys, err := s.templateFS()
	if err != nil {
		return nil, err
	}
	partials, err := fs.Glob(fsys, "_partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("couldn't enumerate partial templates: %w", err)
	}
	templates := map[string]*template.Template{}
	for _, name := range pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(fsys, append([]string{name}, partials...)...)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse template %q: %w", name, err)
		}
		templates[name] = t
	}
	return templates, nil
}

func (s *System) ReloadTemplates() error {
	t1 := time.Now()
	templates, err := s.parseTemplates()
	if err != nil {
		return err
	}
	s.tmu.Lock()
	s.templates = templates
	s.tmu.Unlock()
	s.log.Debug("parsed templates", zap.Int("count", len(templates)), zap.Duration("took", time.Since(t1)))
	return nil
}

func (s *System) lookupTemplate(name string) (*template.Template, error) {
	var templates map[string]*template.Template
	if s.config.Meta.LiveTemplate {
		var err error
		if templates, err = s.parseTemplates(); err != nil {
			return nil, err
		}
	} else {
		s.tmu.RLock()
		templates = s.templates
		s.tmu.RUnlock()
	}
	t, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("no template %q", name)
	}
	return t, nil
}

// WatchSignals reloads templates on SIGUSR2 until stop is closed.
func (s *System) WatchSignals(stop <-chan struct{}) {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGUSR2)
	defer signal.Stop(sigchan)
	for {
		select {
		case <-stop:
			return
		case sig := <-sigchan:
			s.log.Info("got signal, reloading templates", zap.String("signal", sig.String()))
			if err := s.ReloadTemplates(); err != nil {
				s.log.Error("error reloading templates", zap.Error(err))
			}
		}
	}
}
