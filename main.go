// main.go
// Application entry point: loads configuration, initializes the logger and
// runs the chat server until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erilali/chatwire/internal/api"
	"github.com/erilali/chatwire/internal/config"
	"github.com/erilali/chatwire/internal/logger"
)

func main() {
	configPath := flag.String("config", "chatwire.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.Logger)
	serverLogger := logger.NewLogger("server")
	serverLogger.WithFields(map[string]interface{}{
		"level":       cfg.Logger.Level,
		"log_to_file": cfg.Logger.LogToFile,
		"log_to_json": cfg.Logger.LogToJSON,
		"file_path":   cfg.Logger.FilePath,
	}).Info("Logger configuration details")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := api.StartServer(ctx, cfg, serverLogger); err != nil {
		serverLogger.Fatalf("Server error: %v", err)
	}
}
