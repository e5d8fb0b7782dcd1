// Package main is the entry point for the dualseq API server
package main

import (
	"flag"
	"fmt"
	"os"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/james-see/dualseq/pkg/api"
	"github.com/james-see/dualseq/pkg/app"
	"github.com/james-see/dualseq/pkg/config"
	"github.com/james-see/dualseq/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "Config file (default ~/.config/dualseq/config.yaml)")
	port := flag.Int("port", 0, "Server port (default from config)")
	backend := flag.String("backend", "", "Sequencer backend (legacy, modern)")
	flag.Parse()

	if err := run(*configFile, *port, *backend); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, port int, backend string) error {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFrom(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if port != 0 {
		cfg.ServerPort = port
	}
	if err := logger.InitLogger(cfg.LogLevel); err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Starting dualseq API server on port %d (%s backend)...\n", cfg.ServerPort, cfg.Backend)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", cfg.ServerPort)
	return api.StartServer(a, cfg.ServerPort)
}
