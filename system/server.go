package system

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func (s *System) newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(s.log.Named("http")),
	}
}

// Run serves h on Meta.listen, and on Meta.listentls when SetTLS was called,
// until ctx is cancelled. Shutdown waits up to 10 seconds for open requests.
func (s *System) Run(ctx context.Context, h http.Handler) error {
	servers := []*http.Server{s.newServer(s.config.Meta.ListenAddr, h)}
	useTLS := s.tlsCert != "" && s.tlsKey != "" && s.config.Meta.ListenAddrTLS != ""
	if useTLS {
		servers = append(servers, s.newServer(s.config.Meta.ListenAddrTLS, h))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		srv := srv
		tls := i == 1
		g.Go(func() error {
			var err error
			if tls {
				s.log.Info("serving TLS", zap.String("addr", srv.Addr))
				err = srv.ListenAndServeTLS(s.tlsCert, s.tlsKey)
			} else {
				s.log.Info("serving HTTP", zap.String("addr", srv.Addr), zap.String("siteurl", s.config.Meta.SiteURL))
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
