// Command ragserverd is the ragserver process entry point: it builds a
// Config, wires a server.State on top of it, and serves the HTTP API
// until interrupted, grounded on cmd/webui/main.go's listen/graceful-
// shutdown shape.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"manifold/internal/config"
	"manifold/internal/httpapi"
	"manifold/internal/logging"
	"manifold/internal/server"
)

func main() {
	logging.Init(os.Getenv("LOG_FILE"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	st, err := server.New(context.Background(), cfg, logging.New())
	if err != nil {
		log.Fatal().Err(err).Msg("build server state")
	}

	addr := ":" + firstNonEmpty(os.Getenv("RAGSERVER_PORT"), "8090")
	srv := &http.Server{Addr: addr, Handler: httpapi.NewServer(st)}

	go func() {
		log.Info().Str("addr", addr).Msg("ragserverd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	} else {
		log.Info().Msg("ragserverd stopped")
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
