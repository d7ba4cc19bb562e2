package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/pgorski/dosetrack/internal/app"
	"github.com/pgorski/dosetrack/internal/config"
	"github.com/pgorski/dosetrack/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	version    = "dev"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("dosetrack version %s\n", version)
			return
		}
	}

	flag.Parse()

	var logger *zap.Logger
	var err error
	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.Open(cfg.Storage.SQLitePath, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}

	application := app.New(cfg, st, logger)
	application.RunServer()
}
