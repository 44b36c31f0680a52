package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	handshakeTimeout = 10 * time.Second
	minAcceptDelay   = 5 * time.Millisecond
	maxAcceptDelay   = time.Second
)

// LoadTLSConfig reads the server certificate. keyFile may be empty when
// certFile holds both the certificate and the private key.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if keyFile == "" {
		keyFile = certFile
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// listenTCP binds one listener per configured port. On failure every
// listener opened so far is closed again.
func listenTCP(cfg Config) ([]net.Listener, error) {
	network := "tcp4"
	if cfg.IPv6 {
		network = "tcp6"
	}

	listeners := make([]net.Listener, 0, len(cfg.Ports))
	for _, port := range cfg.Ports {
		addr := net.JoinHostPort(cfg.Listen, strconv.Itoa(port))
		ln, err := net.Listen(network, addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return nil, fmt.Errorf("could not bind port %d: %w", port, err)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

// acceptLoop hands accepted connections to the hub until ln is closed or ctx
// is done. Other accept errors, such as running out of file descriptors, are
// logged and retried with a growing delay. TLS handshakes run in their own
// goroutines so a slow client cannot stall the loop.
func (s *Server) acceptLoop(ctx context.Context, g *errgroup.Group, ln net.Listener) error {
	var retryDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			retryDelay = nextAcceptDelay(retryDelay)
			s.log.Warn("Accept error; retrying",
				"addr", ln.Addr().String(), "error", err, "delay", retryDelay)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		retryDelay = 0

		if s.tls == nil {
			s.offer(conn, KindTCP)
			continue
		}
		g.Go(func() error {
			s.handshake(ctx, conn)
			return nil
		})
	}
}

// nextAcceptDelay doubles the previous retry delay, starting at
// minAcceptDelay and capped at maxAcceptDelay.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	if next := 2 * prev; next < maxAcceptDelay {
		return next
	}
	return maxAcceptDelay
}

func (s *Server) handshake(ctx context.Context, conn net.Conn) {
	tlsConn := tls.Server(conn, s.tls)
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := tlsConn.HandshakeContext(hctx); err != nil {
		s.log.Error("SSL handshake failed", "addr", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}
	s.offer(tlsConn, KindTLS)
}

// offer registers conn with the hub, closing it if the hub has stopped.
func (s *Server) offer(conn net.Conn, kind string) {
	s.log.Info("Accepted connection", "addr", conn.RemoteAddr().String(), "kind", kind)
	if err := s.hub.accept(conn, kind); err != nil {
		_ = conn.Close()
	}
}
