package frontend

import (
	"context"
	"crypto/tls"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pgshuttle/pgshuttle/pkg/config"
	"github.com/pgshuttle/pgshuttle/pkg/plugin"
	"github.com/pgshuttle/pgshuttle/pkg/pool"
)

// Service handles incoming client connections, routing each one to the
// ServerConfig matching its startup database name and driving it through
// Session.Run.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	config  *config.Config
	secrets *config.SecretCache
	pool    *pool.Pool
	plugins *plugin.Registry

	// tlsConfig is shared across every listener. The client's SSLRequest
	// arrives before the startup message names a database, so there is no
	// way to pick a per-server certificate at that point; the first server
	// with TLS enabled supplies it for the whole service.
	tlsConfig *tls.Config

	pidCounter     atomic.Uint32
	cancelRegistry *cancelRegistry
}

// NewService creates a new frontend Service: it validates cfg, builds the
// shared backend connection pool across every configured server, and
// loads TLS material if any server enables it.
func NewService(ctx context.Context, cfg *config.Config, fsys fs.FS, secrets *config.SecretCache, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(ctx, fsys, secrets, logger); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	var maxConns int32
	for _, server := range cfg.Servers {
		maxConns += server.Backend.PoolMaxConns
	}
	if maxConns <= 0 {
		maxConns = 1
	}

	p, err := pool.NewPool(cfg, secrets, logger, maxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend pool: %w", err)
	}

	plugins, err := plugin.Build(cfg.Plugins)
	if err != nil {
		return nil, fmt.Errorf("failed to build plugin registry: %w", err)
	}

	innerCtx, cancel := context.WithCancel(ctx)

	if err := p.Start(innerCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start backend pool: %w", err)
	}

	var tlsConfig *tls.Config
	for _, server := range cfg.Servers {
		if server.TLS == nil || !server.TLS.Enabled() {
			continue
		}
		result, err := server.TLS.NewTLS(fsys, func(p string) string { return filepath.Join(cfg.Dir(), p) })
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		tlsConfig = result.Config
		break
	}

	return &Service{
		ctx:            innerCtx,
		cancel:         cancel,
		logger:         logger,
		config:         cfg,
		secrets:        secrets,
		pool:           p,
		plugins:        plugins,
		tlsConfig:      tlsConfig,
		cancelRegistry: newCancelRegistry(),
	}, nil
}

// allocPID assigns a synthetic backend PID to a new client session,
// distinct from the PID of whatever real backend connection it eventually
// acquires (each Session's PID identifies it to CancelRequests; the real
// backend PID belongs to the pooled connection, which may be shared
// across many client sessions over its lifetime).
func (s *Service) allocPID() uint32 {
	return s.pidCounter.Add(1)
}

// findServer returns the ServerConfig matching database, preferring the
// entry with no explicit Role (the primary) when more than one server
// shares the same database name.
func (s *Service) findServer(database string) (config.ServerConfig, bool) {
	var fallback config.ServerConfig
	found := false
	for _, server := range s.config.Servers {
		if server.Database != database {
			continue
		}
		if server.Role == "" {
			return server, true
		}
		if !found {
			fallback = server
			found = true
		}
	}
	return fallback, found
}

// Listen starts the service and listens for incoming connections on every
// address in the top-level listen list. Each accepted connection is
// routed to a backend by the database name it requests at startup.
// Blocks until the service's context is cancelled or a listener fails.
func (s *Service) Listen() error {
	listeners := make([]net.Listener, 0, len(s.config.Listen))
	for _, addr := range s.config.Listen {
		ln, err := net.Listen("tcp", addr.String())
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		listeners = append(listeners, ln)
		s.logger.Info("listening", "addr", addr.String())
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(listeners))

	for _, ln := range listeners {
		wg.Add(1)
		go func(ln net.Listener) {
			defer wg.Done()
			if err := s.acceptLoop(ln); err != nil {
				errCh <- err
			}
		}(ln)
	}

	var firstErr error
	select {
	case <-s.ctx.Done():
		firstErr = s.ctx.Err()
	case err := <-errCh:
		firstErr = err
	}

	s.cancel()
	for _, ln := range listeners {
		_ = ln.Close()
	}
	wg.Wait()
	s.pool.Close()

	return firstErr
}

func (s *Service) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Service) handleConn(conn net.Conn) {
	sessionCtx, cancel := context.WithCancel(s.ctx)
	session := &Session{
		ctx:       sessionCtx,
		cancel:    cancel,
		service:   s,
		conn:      conn,
		logger:    s.logger,
		tlsConfig: s.tlsConfig,
		secrets:   s.secrets,
		config:    s.config,
	}
	session.Run()
}

// Shutdown cancels the service's context, triggering graceful shutdown.
func (s *Service) Shutdown() {
	s.cancel()
}
