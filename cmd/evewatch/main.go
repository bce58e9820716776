package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evewatch/internal/aggregate"
	"evewatch/internal/api"
	"evewatch/internal/config"
	"evewatch/internal/ingest"
	"evewatch/internal/metrics"
	"evewatch/internal/notify"
	"evewatch/internal/pipeline"
	"evewatch/internal/state"
	"evewatch/internal/synth"
	"evewatch/internal/types"
	"evewatch/internal/ws"
)

const version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "version":
		fmt.Printf("evewatch %s\n", version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: evewatch <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  run       Start the dashboard backend")
	fmt.Println("  version   Print the version")
}

func loadConfig(path string) *types.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[CONFIG] %s not found, using defaults", path)
			return config.Default()
		}
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	eveLog := fs.String("eve-log", "", "Override eve.json path")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *eveLog != "" {
		cfg.Input.EveLogPath = *eveLog
	}

	fmt.Printf("Starting evewatch %s...\n", version)
	fmt.Printf("Monitoring: %s (every %ds)\n", cfg.Input.EveLogPath, cfg.Input.PollIntervalSeconds)

	// Durable log
	store, err := state.NewStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to open alert database: %v", err)
	}
	defer store.Close()

	// Aggregates + fan-out
	agg := aggregate.NewStore()
	hub := ws.NewHub(agg.Snapshot)
	go hub.Run()
	defer hub.Close()

	// Notifier
	notifier := notify.NewNotifier(cfg.Notification.WebhookURL)

	// Ingestion pipeline: rebuild from storage, then start the writer
	pipe := pipeline.New(agg, store, hub, notifier)
	if err := pipe.Rebuild(); err != nil {
		log.Printf("[STATE] Failed to rebuild aggregates: %v", err)
	}

	tailer := ingest.NewTailer(
		cfg.Input.EveLogPath,
		time.Duration(cfg.Input.PollIntervalSeconds)*time.Second,
		cfg.Input.ReplayLines,
	)
	if count, err := store.Count(); err == nil && count > 0 {
		// history is already durable; backfilling the file tail again
		// would double-count it
		tailer.ResumeAtEnd()
	}
	pipe.Start(tailer.Start())

	// Synthetic generator (debug surface)
	var generator *synth.Generator
	if cfg.Debug.EnableGenerator {
		generator = synth.NewGenerator(pipe, time.Duration(cfg.Debug.GeneratorIntervalSeconds)*time.Second)
		generator.Start()
	}

	// Prometheus metrics server
	if cfg.Metrics.Addr != "" {
		go func() {
			log.Printf("[METRICS] Starting on %s", cfg.Metrics.Addr)
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				log.Printf("[METRICS] Failed to start: %v", err)
			}
		}()
	}

	// HTTP surface
	server := api.NewServer(agg, store, hub, pipe, cfg)
	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: server.Router()}
	go func() {
		log.Printf("[API] Listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			log.Println("[CONFIG] SIGHUP received, reloading configuration...")
			newCfg := loadConfig(*configPath)
			notifier.UpdateURL(newCfg.Notification.WebhookURL)
			if generator != nil {
				generator.Stop()
				generator = nil
			}
			if newCfg.Debug.EnableGenerator {
				generator = synth.NewGenerator(pipe, time.Duration(newCfg.Debug.GeneratorIntervalSeconds)*time.Second)
				generator.Start()
			}
			// Tail path and listen addresses need a restart; notification
			// and debug settings apply immediately.
			log.Println("[CONFIG] Reload successful")
			continue
		}

		fmt.Println("\nShutting down...")
		break
	}

	// Stop producers before the writer so nothing blocks on a full channel
	if generator != nil {
		generator.Stop()
	}
	tailer.Stop()
	pipe.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(ctx)

	fmt.Println("Shutdown complete.")
}
