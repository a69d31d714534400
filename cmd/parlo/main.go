package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/sjawhar/parlo/internal/cli"
	"github.com/sjawhar/parlo/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parlo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	path := os.Getenv(config.EnvPrefix + "CONFIG")
	if path == "" {
		path = "parlo.yaml"
	}
	cfg, warnings, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps := &cli.Dependencies{
		Config:     &cfg,
		ConfigPath: path,
		Warnings:   warnings,
	}
	return cli.NewRootCmd(deps).ExecuteContext(context.Background())
}
