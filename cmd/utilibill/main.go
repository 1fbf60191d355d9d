// Package main is the entry point for the utilibill billing service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/artpar/utilibill/bootstrap"
	"github.com/artpar/utilibill/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "utilibill.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("utilibill %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if *validate {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration valid\n")
		fmt.Printf("  Database: %s (%s)\n", cfg.Database.DSN, cfg.Database.Driver)
		fmt.Printf("  Oracle max age: %ds, min reliability: %d\n",
			cfg.Oracle.MaxAgeSeconds, cfg.Oracle.MinReliability)
		fmt.Printf("  Redis: %v, Kafka: %v\n", cfg.Redis.Enabled, cfg.Kafka.Enabled)
		os.Exit(0)
	}

	app, err := bootstrap.New(*configPath, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
