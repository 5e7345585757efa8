package system

import (
	"net"
	"net/http"

	"github.com/aerth/dojod/store"
	"go.uber.org/zap"
)

// auditlog records a stored submission. Message bodies are not logged.
func (s *System) auditlog(r *http.Request, m *store.ContactMessage) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	s.audit.Info("contact message stored",
		zap.String("id", m.ID),
		zap.Time("created_at", m.CreatedAt),
		zap.String("ip", ip),
		zap.String("referer", r.Referer()),
		zap.String("request_id", requestID(r)),
	)
}
