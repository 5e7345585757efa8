package system

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/crewjam/csp"
	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

func cspHeader(siteurl string) (string, error) {
	u, err := url.Parse(siteurl)
	if err != nil {
		return "", err
	}
	src := []string{"'self'"}
	if host := u.Hostname(); host != "" {
		src = append(src, host)
	}
	return csp.Header{
		DefaultSrc: src,
	}.String(), nil
}

func (s *System) SetCSPHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", s.csp)
}

// serveTemplate renders tname into a buffer, so a failing template becomes a
// 500 rather than a half written page. Pending flashes are consumed here.
func (s *System) serveTemplate(w http.ResponseWriter, r *http.Request, tname, title string, page interface{}) {
	log := logger(r)
	t, err := s.lookupTemplate(tname)
	if err != nil {
		log.Error("template lookup", zap.String("template", tname), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var pageTitle = s.config.Meta.SiteName
	if pageTitle != "" {
		pageTitle += " | "
	}
	pageTitle += title

	sess := s.session(r)
	flashes := flashStrings(sess.Flashes())

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, tname, map[string]interface{}{
		csrf.TemplateTag: csrf.TemplateField(r),
		"csrfToken":      csrf.Token(r),
		"pageTitle":      pageTitle,
		"sitename":       s.config.Meta.SiteName,
		"copyrightname":  s.config.Meta.CopyrightName,
		"year":           time.Now().Year(),
		"meta":           s.config.Meta.TemplateData,
		"flashes":        flashes,
		"page":           page,
	}); err != nil {
		log.Error("executing template", zap.String("template", tname), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(flashes) > 0 {
		if err := sess.Save(r, w); err != nil {
			log.Warn("saving session", zap.Error(err))
		}
	}
	s.SetCSPHeader(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	w.Write(buf.Bytes())
}

// StaticHandler serves files from the public directory. /static/x maps to
// publicdir/x, every other route maps to the file of the same name.
func (s *System) StaticHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "bad method on staticHandler", http.StatusMethodNotAllowed)
		return
	}
	name := path.Clean("/" + strings.TrimPrefix(r.URL.Path, "/static"))
	filename := filepath.Join(s.config.Meta.PathPublic, filepath.FromSlash(name))
	fi, err := os.Stat(filename)
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Expires", time.Now().Add(time.Hour*24).UTC().Truncate(time.Second).Format(http.TimeFormat))
	http.ServeFile(w, r, filename)
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

// RequestID tags each request with an id, echoed in X-Request-ID and carried
// by the request logger.
func (s *System) RequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = context.WithValue(ctx, loggerKey, s.log.With(zap.String("request_id", id)))
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

func logger(r *http.Request) *zap.Logger {
	if l, ok := r.Context().Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// ez http log
func logr(r *http.Request) []zap.Field {
	ipaddr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ipaddr = r.RemoteAddr
	}
	fields := []zap.Field{
		zap.String("host", r.Host),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("ip", ipaddr),
		zap.String("ua", truncate(r.UserAgent(), 50)),
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		fields = append(fields, zap.String("forwarded_for", fwd))
	}
	return fields
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
