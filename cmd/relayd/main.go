// relayd runs the relay API gateway as a standalone daemon, configured
// entirely from RELAY_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prilive-com/relay"
)

var (
	listenAddr = flag.String("listen", "", "Listen address (overrides RELAY_LISTEN_ADDR)")
	logJSON    = flag.Bool("log-json", true, "Emit JSON logs")
)

func main() {
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("RELAY_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	opts := []relay.Option{relay.WithLogger(logger)}
	if *listenAddr != "" {
		opts = append(opts, relay.WithListenAddr(*listenAddr))
	}

	gateway, err := relay.NewFromEnv(opts...)
	if err != nil {
		logger.Error("failed to create gateway", "error", err)
		os.Exit(1)
	}
	defer gateway.Close()

	logger.Info("relayd starting", "services", gateway.Services())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gateway.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("relayd stopped")
}
