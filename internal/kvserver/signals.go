//go:build linux

package kvserver

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// installSignalHandlers ignores SIGPIPE (a write to a half-closed
// connection must surface as a negative write result through the
// engine, not kill the process) and arms SIGTERM/SIGINT to clear the
// server's running flag so the event loop returns at its next
// iteration.
func installSignalHandlers(s *Server) {
	signal.Ignore(syscall.SIGPIPE)

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-term
		s.log.Info("received shutdown signal", zap.String("signal", sig.String()))
		s.Stop()
	}()
}
