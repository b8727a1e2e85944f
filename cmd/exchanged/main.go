// Command exchanged runs the binary-market exchange daemon: it opens the
// Ledger, wires the Admission/Matching/Settlement pipeline, and serves the
// REST+WebSocket API over HTTP.
package main

import (
	"log"
	"os"

	"github.com/predictionmkt/exchange/internal/api"
	"github.com/predictionmkt/exchange/internal/config"
	"github.com/predictionmkt/exchange/internal/exchange"
	"github.com/predictionmkt/exchange/internal/logging"
)

func main() {
	cfg := config.LoadFromEnv("") // "" means load .env from the current directory

	logFile := os.Getenv("EXCHANGE_LOG_FILE")
	if logFile == "" {
		logFile = "data/exchanged.log"
	}

	logger, err := logging.NewWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Sugar().Infow("logger_initialized", "log_file", logFile)

	ex, err := exchange.New(cfg, logger)
	if err != nil {
		logger.Sugar().Fatalw("exchange_init_failed", "err", err)
	}
	defer ex.Close()

	server := api.NewServer(ex, logger)
	logger.Sugar().Infow("api_server_starting", "addr", cfg.ListenAddr)
	if err := server.Start(cfg.ListenAddr); err != nil {
		logger.Sugar().Fatalw("api_server_failed", "err", err)
	}
}
