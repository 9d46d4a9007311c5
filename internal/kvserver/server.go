//go:build linux

package kvserver

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"kvring/internal/ring"
)

// Server owns the engine, the listening handle, the accept context,
// the live connection list, and the store. It is the sole registered
// completion callback: every accept/recv/write/close the engine
// completes routes back through Server.dispatch.
type Server struct {
	cfg Config
	log *zap.Logger

	engine   *ring.Engine
	listenFD ring.Handle
	accept   ring.IoContext

	connections *Connection
	store       *Store

	running atomic.Bool
}

// New constructs a Server. It creates the I/O engine (which performs
// the kernel-version check and ring/buffer-group setup) and binds the
// dual-stack listening socket, but does not submit the first accept or
// enter the event loop — call Run for that.
func New(log *zap.Logger, opts ...ServerOption) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	engine, err := ring.New(cfg.RingDepth, cfg.BufferSlots, cfg.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("kvserver: engine init: %w", err)
	}

	fd, err := listen(cfg.ListenAddr)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("kvserver: listen: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		listenFD: ring.Handle(fd),
		store:    NewStore(),
	}
	s.accept.User = s
	return s, nil
}

// listen opens a non-blocking, dual-stack TCP socket bound to addr with
// SO_REUSEPORT set and IPV6_V6ONLY cleared, and starts it listening.
// Only the port from addr is honored; the socket always binds the IPv6
// wildcard address so that IPv4 clients arrive as IPv4-mapped IPv6
// peers on the same listener.
func listen(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, fmt.Errorf("parse listen port %q: %w", portStr, err)
	}

	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEPORT: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt IPV6_V6ONLY: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set non-blocking: %w", err)
	}

	sa := &unix.SockaddrInet6{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind :%d: %w", port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// Run submits the first accept, installs signal handlers, and enters
// the engine's event loop. It blocks until the running flag is
// cleared (by a signal or a fatal callback error) and the loop
// returns.
func (s *Server) Run() error {
	s.running.Store(true)
	s.accept.Kind = ring.KindAccept
	s.accept.Callback = s.dispatch
	if err := s.engine.Accept(&s.accept, s.listenFD); err != nil {
		s.running.Store(false)
		return fmt.Errorf("kvserver: submit initial accept: %w", err)
	}

	installSignalHandlers(s)

	s.log.Info("listening", zap.String("addr", s.cfg.ListenAddr))
	err := s.engine.Enter()
	s.running.Store(false)
	return err
}

// Stop clears the running flag, signaling the event loop to return
// after it finishes dispatching whatever completions it already
// reaped. Safe to call from a goroutine other than the one running Run
// (a signal handler, typically).
func (s *Server) Stop() {
	s.running.Store(false)
	s.engine.Stop()
}

// Running reports whether the server has been started and has not yet
// observed a stop signal.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Shutdown tears down the listening socket, the engine, and the store.
// The normal call sequence is Stop then Run returning then Shutdown.
// Before tearing down, Shutdown waits up to cfg.ShutdownTimeout for the
// server's running flag to be cleared, then tears down anyway. Stop
// clears that flag at once, so after Stop this wait does not cover the
// event loop itself returning.
func (s *Server) Shutdown() error {
	deadline := time.Now().Add(s.cfg.ShutdownTimeout)
	for s.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.running.Load() {
		s.log.Warn("event loop still running at shutdown deadline, forcing teardown",
			zap.Duration("timeout", s.cfg.ShutdownTimeout))
	}
	s.store.Close()
	if err := unix.Close(int(s.listenFD)); err != nil {
		s.log.Warn("close listening socket", zap.Error(err))
	}
	return s.engine.Close()
}
