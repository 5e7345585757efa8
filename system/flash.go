package system

import (
	"net/http"

	"github.com/aerth/dojod/config"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

func newSessionStore(cfg config.Config) *sessions.CookieStore {
	var hashKey = []byte(cfg.Sec.HashKey)
	var blockKey = []byte(cfg.Sec.BlockKey)
	if cfg.Meta.DevelopmentMode {
		blockKey = nil // not encrypted cookies
	}
	st := sessions.NewCookieStore(hashKey, blockKey)
	st.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	}
	return st
}

func (s *System) sessionName() string {
	return s.config.Sec.CookieName + "_session"
}

// session never fails; a cookie that does not decode yields a new session.
func (s *System) session(r *http.Request) *sessions.Session {
	sess, err := s.sessions.Get(r, s.sessionName())
	if err != nil {
		logger(r).Debug("discarding undecodable session cookie", zap.Error(err))
	}
	return sess
}

func (s *System) addFlash(w http.ResponseWriter, r *http.Request, msg string) {
	sess := s.session(r)
	sess.AddFlash(msg)
	if err := sess.Save(r, w); err != nil {
		logger(r).Warn("saving flash", zap.Error(err))
	}
}

func flashStrings(flashes []interface{}) []string {
	out := make([]string, 0, len(flashes))
	for _, f := range flashes {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}
