package system

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// Router returns the full site handler.
func (s *System) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.RequestID, s.HitCounter, middleware.Recoverer, middleware.GetHead)

	// templated
	r.Group(func(r chi.Router) {
		r.Use(plaintext, limitBody, s.CSRF())
		r.Get("/", s.HomeHandler)
		r.HandleFunc(contactPath, s.ContactHandler)
	})
	r.Get("/contact_view", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, contactPath, http.StatusMovedPermanently)
	})

	// static files
	r.Get("/static/*", s.StaticHandler)
	for _, name := range []string{"/favicon.ico", "/robots.txt", "/humans.txt", "/sitemap.xml"} {
		r.Get(name, s.StaticHandler)
	}

	// status
	r.Get("/status", s.StatusHandler)
	r.Get("/health", s.HealthHandler)
	r.Method(http.MethodGet, "/metrics", s.MetricsHandler())
	return r
}

// CSRF trusts the siteurl host as an Origin, so a browser posting over https
// to a proxy that forwards plain http still passes the origin check.
func (s *System) CSRF() func(http.Handler) http.Handler {
	var trusted []string
	if u, err := url.Parse(s.config.Meta.SiteURL); err == nil && u.Host != "" {
		trusted = append(trusted, u.Host)
	}
	return csrf.Protect([]byte(s.config.Sec.CSRFKey),
		csrf.TrustedOrigins(trusted),
		csrf.Secure(s.config.IsTLS()),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.FieldName("_csrf"),
		csrf.CookieName(s.config.Sec.CookieName+"_csrf"),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailure)))
}

func (s *System) csrfFailure(w http.ResponseWriter, r *http.Request) {
	logger(r).Warn("csrf check failed", append(logr(r), zap.Error(csrf.FailureReason(r)))...)
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// plaintext marks requests that arrived without TLS, so csrf only enforces
// Referer checks on HTTPS.
func plaintext(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		h.ServeHTTP(w, r)
	})
}
