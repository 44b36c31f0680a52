// Package server implements the top-level IRC server: listeners, the
// WebSocket gateway and the hub that owns protocol state.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server ties the hub to its network endpoints.
type Server struct {
	cfg Config
	log *slog.Logger
	hub *Hub
	tls *tls.Config

	listeners  []net.Listener
	httpServer *http.Server
	wsListener net.Listener
}

// New validates cfg and prepares a server. TLS material and the state store
// are loaded here so that problems surface before anything is bound.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, log: logger}
	if cfg.TLSCertFile != "" {
		tlsCfg, err := LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		s.tls = tlsCfg
	}

	hub, err := NewHub(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.hub = hub
	return s, nil
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub { return s.hub }

// Listen binds every configured port and, when enabled, the WebSocket
// gateway address.
func (s *Server) Listen() error {
	listeners, err := listenTCP(s.cfg)
	if err != nil {
		return err
	}
	s.listeners = listeners
	for _, ln := range listeners {
		s.log.Info("Listening", "addr", ln.Addr().String(), "tls", s.tls != nil)
	}

	if s.cfg.WebSocketAddr == "" {
		return nil
	}
	wsLn, err := net.Listen("tcp", s.cfg.WebSocketAddr)
	if err != nil {
		s.closeListeners()
		return fmt.Errorf("could not bind websocket address %s: %w", s.cfg.WebSocketAddr, err)
	}
	s.wsListener = wsLn
	s.httpServer = CreateServer(s.cfg.WebSocketAddr, SetupRoutes(s.hub))
	s.log.Info("WebSocket gateway listening", "addr", wsLn.Addr().String())
	return nil
}

// Addrs returns the bound IRC listener addresses.
func (s *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// WebSocketAddr returns the bound gateway address, or nil when disabled.
func (s *Server) WebSocketAddr() net.Addr {
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// Serve runs the hub, the accept loops and the gateway until ctx is cancelled
// or one of them fails, then shuts everything down. Listen must be called
// first.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run()
		return nil
	})

	for _, ln := range s.listeners {
		ln := ln
		g.Go(func() error {
			return s.acceptLoop(gctx, g, ln)
		})
	}

	if s.httpServer != nil {
		g.Go(func() error {
			err := s.httpServer.Serve(s.wsListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("websocket gateway: %w", err)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.closeListeners()
		if s.httpServer != nil {
			_ = ShutdownServer(s.httpServer, shutdownTimeout, s.log)
		}
		if err := s.hub.Shutdown(shutdownTimeout); err != nil {
			s.log.Warn("Hub shutdown incomplete", "error", err)
		}
		return nil
	})

	err := g.Wait()
	return errors.Join(err, s.hub.Close())
}

func (s *Server) closeListeners() {
	for _, ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Debug("Error closing listener", "addr", ln.Addr().String(), "error", err)
		}
	}
}
