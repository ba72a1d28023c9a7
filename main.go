package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"productcatalog/api"
)

func main() {
	args := ParseArgs()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: args.Level()})))
	if !args.Validate() {
		slog.Error("Missing arguments")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, args.ServerConfig)
	if err != nil {
		slog.Error("Fail to create server", slog.Any("error", err))
		os.Exit(1)
	}
	defer server.Close()
	if err := server.Start(); err != nil {
		slog.Error("Fail to start server", slog.Any("error", err))
		return
	}

	httpServer := &http.Server{
		Addr:              args.ServerURL,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Fail to shutdown http server", slog.Any("error", err))
		}
	}()

	slog.Info("Listening", slog.String("addr", args.ServerURL))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Fail to serve", slog.Any("error", err))
	}
}
