// Package server exposes a command executor over a line-oriented TCP
// protocol, one goroutine per client connection.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brettbedarf/treestore/config"
	"github.com/brettbedarf/treestore/internal/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// Banner is sent to every client as soon as its session starts
	Banner = "100 Connected to server\n"
	// ReplyTooManyConnections is sent to clients over the connection limit
	ReplyTooManyConnections = "503 Service Unavailable: too many connections\n"

	acceptRetryDelay = 10 * time.Millisecond
	lingerTimeout    = time.Second
	shutdownTimeout  = 5 * time.Second
)

var (
	// ErrServerClosed is returned by Serve after Shutdown or context cancellation
	ErrServerClosed = errors.New("server closed")
	// ErrLineTooLong ends a session whose request line exceeds the configured limit
	ErrLineTooLong = errors.New("request line too long")
)

// CommandExecutor runs one parsed request and returns the reply text.
// Implementations must be safe for concurrent use.
type CommandExecutor interface {
	Execute(cmd, path, value string) string
}

// Server accepts protocol clients and feeds their requests to a CommandExecutor.
type Server struct {
	cfg      *config.Config
	exec     CommandExecutor
	sem      *semaphore.Weighted
	sessions *xsync.Map[string, *Session]

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	ready    chan struct{}
	closed   atomic.Bool
}

// New creates a Server for cfg. Nothing is bound until Serve.
func New(cfg *config.Config, exec CommandExecutor) *Server {
	return &Server{
		cfg:      cfg,
		exec:     exec,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConnections)),
		sessions: xsync.NewMap[string, *Session](),
		ready:    make(chan struct{}),
	}
}

// Serve binds the protocol listener (and the metrics endpoint when
// configured) and blocks until ctx is cancelled, Shutdown is called, or a
// listener fails. A clean stop returns [ErrServerClosed]. A Server serves
// at most once.
func (s *Server) Serve(ctx context.Context) error {
	logger := util.GetLogger("Server.Serve")

	if s.closed.Load() {
		return ErrServerClosed
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closed.Store(true)

	s.mu.Lock()
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()
	close(s.ready)

	// Shutdown may have raced with the bind above
	if s.closed.Load() {
		cancel()
	}

	logger.Info().Str("addr", ln.Addr().String()).Int("maxConnections", s.cfg.MaxConnections).Msg("Listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		s.closeAll()
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})
	if s.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return s.serveMetrics(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Server stopped")
	return ErrServerClosed
}

// Start runs Serve in the background. The returned channel yields Serve's
// result once and is then closed.
func (s *Server) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- s.Serve(ctx)
		close(done)
	}()

	return done
}

// Ready is closed once the protocol listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or "" before Serve has bound it.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SessionCount returns the number of clients currently connected.
func (s *Server) SessionCount() int {
	return s.sessions.Size()
}

// Shutdown stops accepting, disconnects every session and makes Serve return.
// It is safe to call more than once and before Serve.
func (s *Server) Shutdown() {
	s.closed.Store(true)

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Server) closeAll() {
	logger := util.GetLogger("Server.closeAll")

	s.mu.Lock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Warn().Err(err).Msg("Failed to close listener")
		}
	}
	s.mu.Unlock()

	s.sessions.Range(func(id string, sess *Session) bool {
		logger.Debug().Str("session", id).Msg("Closing session")
		sess.Close() // nolint:errcheck
		return true
	})
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	logger := util.GetLogger("Server.acceptLoop")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn().Err(err).Msg("Accept error")
			time.Sleep(acceptRetryDelay)
			continue
		}

		if !s.sem.TryAcquire(1) {
			connectionsTotal.WithLabelValues("rejected").Inc()
			logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Connection limit reached, rejecting client")
			io.WriteString(conn, ReplyTooManyConnections) // nolint:errcheck
			conn.Close()                                  // nolint:errcheck
			continue
		}
		connectionsTotal.WithLabelValues("accepted").Inc()

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle runs one client session until the client disconnects, the server
// shuts down, or the client sends an oversized line. It releases the
// connection slot acquired by the accept loop.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	sess := newSession(conn)
	logger := util.GetLogger("Session").With().Str("session", sess.ID).Str("remote", sess.RemoteAddr).Logger()

	s.sessions.Store(sess.ID, sess)
	connectionsActive.Inc()
	defer func() {
		s.sem.Release(1)
		s.sessions.Delete(sess.ID)
		connectionsActive.Dec()
		conn.Close() // nolint:errcheck
		logger.Info().Dur("duration", time.Since(sess.Started)).Msg("Client disconnected")
	}()

	// closeAll may already have swept the registry before this session joined
	if ctx.Err() != nil {
		return
	}
	logger.Info().Msg("Client connected")

	if _, err := io.WriteString(conn, Banner); err != nil {
		logger.Debug().Err(err).Msg("Failed to send banner")
		return
	}

	scanner := bufio.NewScanner(conn)
	// room for the line terminator on top of the line itself
	maxToken := s.cfg.MaxLineBytes + 2
	scanner.Buffer(make([]byte, 0, min(maxToken, 4096)), maxToken)

	for scanner.Scan() {
		cmd, path, value := ParseLine(scanner.Text())
		logger.Trace().Str("command", cmd).Str("path", path).Msg("Request")

		// no socket I/O happens while the executor holds the store
		reply := s.exec.Execute(cmd, path, value)

		if _, err := io.WriteString(conn, reply); err != nil {
			logger.Debug().Err(err).Msg("Failed to write reply")
			return
		}
	}

	err := scanner.Err()
	switch {
	case errors.Is(err, bufio.ErrTooLong):
		logger.Warn().Err(ErrLineTooLong).Int("maxLineBytes", s.cfg.MaxLineBytes).Msg("Ending session")
		fmt.Fprintf(conn, "400 Bad Request: Line exceeds %d bytes.\n", s.cfg.MaxLineBytes) // nolint:errcheck
		lingerClose(conn)
	case err != nil && ctx.Err() == nil:
		logger.Debug().Err(err).Msg("Read error")
	}
}

// lingerClose half-closes conn and discards unread input for a short while
// so the final reply is not lost to a reset.
func lingerClose(conn net.Conn) {
	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}
	conn.SetReadDeadline(time.Now().Add(lingerTimeout)) // nolint:errcheck
	io.Copy(io.Discard, conn)                           // nolint:errcheck
}

func (s *Server) serveMetrics(ctx context.Context) error {
	logger := util.GetLogger("Server.serveMetrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              s.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	logger.Info().Str("addr", s.cfg.MetricsAddr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
