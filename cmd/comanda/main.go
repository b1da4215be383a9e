package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"comanda/internal/config"
	"comanda/internal/logger"
	"comanda/internal/microservices/api"
	"comanda/internal/microservices/board"
)

func main() {
	mode := flag.String("mode", "", "api-service | board-gateway")
	port := flag.Int("port", 0, "http port")
	cfgPath := flag.String("config", "", "path to config.yaml (default: auto-discover)")
	flag.Parse()

	path := *cfgPath
	if path == "" {
		p, err := config.FindConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "no config.yaml found, pass --config")
			os.Exit(2)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "api-service":
		if *port == 0 {
			*port = 3000
		}
		lg := logger.New("api-service", cfg.Debug)
		defer func() { _ = lg.Sync() }()
		lg.Infow("service_started", "port", *port)
		if err := api.Run(ctx, *port, cfg, lg); err != nil {
			lg.Errorw("fatal", "err", err)
			os.Exit(1)
		}
	case "board-gateway":
		if *port == 0 {
			*port = 3001
		}
		lg := logger.New("board-gateway", cfg.Debug)
		defer func() { _ = lg.Sync() }()
		lg.Infow("service_started", "port", *port)
		if err := board.Run(ctx, *port, cfg, lg); err != nil {
			lg.Errorw("fatal", "err", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: api-service | board-gateway")
		os.Exit(2)
	}
}
