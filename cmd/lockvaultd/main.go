// Command lockvaultd runs the trusted lock manager as a standalone HTTP
// server: flag.Parse, cfg.Load/Validate, zerolog console-or-JSON setup,
// telemetry init, then server start.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dmlab-tud/lockvault/cfg"
	"github.com/dmlab-tud/lockvault/manager"
	"github.com/dmlab-tud/lockvault/rpcserver"
	"github.com/dmlab-tud/lockvault/telemetry"
)

func main() {
	flag.Parse()

	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).With().Timestamp().Logger()
	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("lockvaultd starting")

	if cfg.Config.Prometheus.Enabled {
		telemetry.Enabled()
	}

	mgr, err := manager.New(manager.Options{
		NumWorkers:           cfg.Config.Workers.NumThreads,
		RegistrationWorker:   cfg.Config.Workers.TxThreadID,
		BucketCount:          cfg.Config.Workers.BucketCount,
		QueueSize:            cfg.Config.Workers.QueueDepth,
		TransactionTableSize: cfg.Config.Tables.TransactionTableSize,
		LockTableSize:        cfg.Config.Tables.LockTableSize,
		KeyVaultPath:         cfg.Config.KeyVault.SealDir,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize lock manager")
		return
	}
	defer mgr.Close()

	collector := telemetry.NewMetricsCollector(mgr, telemetry.NewMetrics(), 10*time.Second)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	rpc := rpcserver.New(mgr, os.Getenv("LOCKVAULT_SHARED_SECRET"))
	mux.Handle("/", rpc.Router())
	if handler := telemetry.Handler(); handler != nil {
		mux.Handle("/metrics", handler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Config.RPC.BindAddress, cfg.Config.RPC.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Msg("rpc server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("rpc server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
