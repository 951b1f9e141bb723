package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/conjur-go/cmd/conjur/commands"
	"github.com/systmms/conjur-go/internal/config"
	"github.com/systmms/conjur-go/internal/credentials"
	dserrors "github.com/systmms/conjur-go/internal/errors"
	"github.com/systmms/conjur-go/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	defer memguard.Purge()

	registry := prometheus.NewRegistry()
	app := &commands.App{
		Config:      &config.Config{},
		Credentials: credentials.NewKeyringStore(),
		Metrics:     metrics.New(registry),
		Gatherer:    registry,
	}

	rootCmd := commands.NewRootCommand(app, fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	return rootCmd.Execute()
}
