// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest implements the petition ingestion server: a TLS
// listener that runs one connection handler per accepted connection.
//
// The wire protocol is newline-delimited JSON over TLS 1.3. A request
// is one JSON array of petition objects on a single line; the reply is
// one JSON object {"status": "SUCCESS"|"ERROR", "message": ...} per
// request. The connection stays open across rejected batches — only
// transport failures or the peer closing end it.
package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/petitionworks/petitiond/lib/clock"
	"github.com/petitionworks/petitiond/lib/petition"
	"github.com/petitionworks/petitiond/lib/ratelimit"
)

// Store is the write half of the petition store the server needs.
type Store interface {
	InsertBatch(ctx context.Context, records []petition.Record) error
}

// Config holds the server dependencies. All fields without a stated
// default are required.
type Config struct {
	// Listen is the host:port to bind. Use ":0" for a random port.
	Listen string

	// TLS is the server credential configuration from the keystore.
	TLS *tls.Config

	// Store persists validated batches.
	Store Store

	// Limiter applies the per-client burst guard and serializes
	// check-then-insert per client.
	Limiter *ratelimit.Limiter

	// Verify checks petition signatures during batch validation.
	Verify petition.VerifyFunc

	// Logger receives connection and batch outcome messages.
	Logger *slog.Logger

	// Clock drives timeouts. Defaults to the real clock.
	Clock clock.Clock

	// MaxBatchBytes bounds a single request line. Default 64 KiB.
	MaxBatchBytes int

	// DrainTimeout bounds the wait for in-flight handlers after the
	// context is cancelled. Default 10s.
	DrainTimeout time.Duration
}

// Server accepts TLS connections and spawns a connection handler per
// connection. Handlers share the petition store and the rate limiter;
// they own no other mutable state.
type Server struct {
	cfg Config

	mu       sync.Mutex
	listener net.Listener

	// activeConnections tracks in-flight handlers so Serve can drain
	// them on shutdown.
	activeConnections sync.WaitGroup
}

// New validates the configuration and returns an unstarted server.
func New(cfg Config) (*Server, error) {
	if cfg.Listen == "" {
		return nil, fmt.Errorf("ingest: Listen is required")
	}
	if cfg.TLS == nil {
		return nil, fmt.Errorf("ingest: TLS is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("ingest: Store is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("ingest: Limiter is required")
	}
	if cfg.Verify == nil {
		return nil, fmt.Errorf("ingest: Verify is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("ingest: Logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = 64 * 1024
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg}, nil
}

// Serve binds the TLS listener and accepts connections until ctx is
// cancelled or the listener fails fatally. A bind failure is returned
// immediately; accept errors after cancellation end the loop, other
// accept errors are logged and the loop continues.
//
// On cancellation the listener closes, in-flight handlers observe the
// cancellation at their next liveness poll, and Serve waits for them
// up to DrainTimeout before returning.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := tls.Listen("tcp", s.cfg.Listen, s.cfg.TLS)
	if err != nil {
		return fmt.Errorf("ingest: listening on %s: %w", s.cfg.Listen, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	defer listener.Close()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.cfg.Logger.Info("server listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.cfg.Logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	return s.drain()
}

// Addr returns the bound address, or "" before Serve binds. Useful
// with Listen ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// drain waits for in-flight handlers, bounded by DrainTimeout.
// Shutdown is best-effort: a handler blocked on a slow peer is
// abandoned after the timeout rather than joined forever.
func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.activeConnections.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cfg.Logger.Info("all connections drained")
		return nil
	case <-s.cfg.Clock.After(s.cfg.DrainTimeout):
		s.cfg.Logger.Warn("drain timeout, abandoning in-flight connections")
		return nil
	}
}
