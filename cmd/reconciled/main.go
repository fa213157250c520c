// Command reconciled is the process entrypoint: load configuration, build
// the engine, start the inspection HTTP server and the pulse websocket
// hub, then drive the 8-beat scheduler until an OS signal arrives.
// Grounded on the teacher's cmd/server/main.go: construct domain services,
// construct the HTTP server wrapping them, start, fatal-log on error.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eightbeat/reconciler/internal/config"
	"github.com/eightbeat/reconciler/internal/engine"
	"github.com/eightbeat/reconciler/internal/inspect"
	"github.com/eightbeat/reconciler/internal/pulse"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("reconciled: load config: %v", err)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("reconciled: build engine: %v", err)
	}

	hub := pulse.NewHub()
	hubStop := make(chan struct{})
	go hub.Run(hubStop)

	ch := eng.Pulses.Subscribe()
	go func() {
		for event := range ch {
			hub.Broadcast(event)
		}
	}()

	inspectSrv := inspect.New(eng.Monitor, eng.Hooks)
	router := inspectSrv.Router()
	router.HandleFunc("/pulse/ws", hub.HandleWebSocket)

	go func() {
		log.Printf("reconciled: inspection surface listening on %s", cfg.Inspection.Addr)
		if err := http.ListenAndServe(cfg.Inspection.Addr, router); err != nil {
			log.Fatalf("reconciled: inspection server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	log.Println("reconciled: scheduler running")
	for {
		select {
		case <-sigCh:
			log.Println("reconciled: shutting down")
			close(hubStop)
			eng.Pulses.Unsubscribe(ch)
			return
		case <-ticker.C:
			if _, _, _, err := eng.Advance(ctx); err != nil {
				log.Printf("reconciled: pulse commit error: %v", err)
			}
		}
	}
}
