package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"navguard/internal/config"
	"navguard/internal/web"
)

func main() {
	var configPath string
	var summarize string
	flag.StringVar(&configPath, "config", "./navguard.yaml", "Path to YAML config")
	flag.StringVar(&summarize, "summarize", "", "Print a summary of a MIP capture file and exit")
	flag.Parse()

	if summarize != "" {
		if err := printCaptureSummary(os.Stdout, summarize); err != nil {
			log.Fatalf("capture summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("navguard starting config=%s", configPath)

	rt, err := newRuntime(ctx, cfg, logs)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer rt.Close()

	if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("navguard stopped: %v", err)
	}
	log.Printf("navguard stopping")
}
