package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if err := initLogger(cfg.LogPath); err != nil {
		Fatalf("%v", err)
	}
	defer closeLogger()

	store := NewStore()

	logger, err := openTransactionLogger(cfg)
	if err != nil {
		Fatalf("%v", err)
	}
	go watchTransactionErrors(logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: NewRouter(store, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		Infof("Starting server, listening on %s (journal: %s)", cfg.Addr, cfg.Journal)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Close()
			Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		Infof("Shutting down with %d entries in store", store.Len())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			Errorf("shutdown: %v", err)
		}
	}

	if err := logger.Close(); err != nil {
		Errorf("closing journal: %v", err)
	}
}

// watchTransactionErrors reports journal write failures. The store keeps
// serving; only the audit trail stops growing.
func watchTransactionErrors(logger TransactionLogger) {
	errs := logger.Err()
	if errs == nil {
		return
	}
	for err := range errs {
		Errorf("journal write failed: %v", err)
	}
}
