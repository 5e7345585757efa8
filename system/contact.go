package system

import (
	"errors"
	"net/http"

	"github.com/aerth/dojod/store"
	"go.uber.org/zap"
)

const (
	contactPath    = "/contact_view/"
	contactSuccess = "Your message has been submitted."
	maxFormBytes   = 1 << 20
)

// contactFromForm reports false unless all four fields are non-empty.
// Both urlencoded and multipart bodies are accepted.
func contactFromForm(r *http.Request) (*store.ContactMessage, bool) {
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, false
	}
	m := &store.ContactMessage{
		Name:    r.PostForm.Get("name"),
		Email:   r.PostForm.Get("email"),
		Subject: r.PostForm.Get("subject"),
		Message: r.PostForm.Get("message"),
	}
	if m.Name == "" || m.Email == "" || m.Subject == "" || m.Message == "" {
		return nil, false
	}
	return m, true
}

func (s *System) ContactHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.serveTemplate(w, r, "contact.html", "Contact", nil)
	case http.MethodPost:
		m, ok := contactFromForm(r)
		if !ok {
			s.metrics.contacts.WithLabelValues("incomplete").Inc()
			s.serveTemplate(w, r, "contact.html", "Contact", nil)
			return
		}
		if err := s.store.CreateContactMessage(r.Context(), m); err != nil {
			s.metrics.contacts.WithLabelValues("error").Inc()
			logger(r).Error("storing contact message", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		s.metrics.contacts.WithLabelValues("stored").Inc()
		s.auditlog(r, m)
		s.addFlash(w, r, contactSuccess)
		http.Redirect(w, r, contactPath, http.StatusFound)
	default:
		http.Error(w, "bad method", http.StatusMethodNotAllowed)
	}
}

// limitBody caps form bodies before anything parses them.
func limitBody(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		}
		h.ServeHTTP(w, r)
	})
}
