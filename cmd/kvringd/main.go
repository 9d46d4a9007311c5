// Command kvringd runs the RESP key-value server: build a logger,
// construct the server against its default configuration, and block
// in the event loop until a signal or a fatal engine error returns it.
package main

import (
	"os"

	"go.uber.org/zap"

	"kvring/internal/kvserver"
	"kvring/internal/log"
)

func main() {
	logger := log.New()
	defer logger.Sync()

	srv, err := kvserver.New(logger)
	if err != nil {
		logger.Fatal("server init failed", zap.Error(err))
	}

	if err := srv.Run(); err != nil {
		logger.Error("event loop exited with error", zap.Error(err))
		srv.Shutdown()
		os.Exit(1)
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		os.Exit(1)
	}
}
