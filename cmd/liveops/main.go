// Package main is the entry point for the liveops binary. It serves
// the live-operations API of the dashboard: resource watch streams,
// workload log reads, and interactive shell sessions against the
// cluster that hosts the per-pull-request workloads.
//
// Dependencies are assembled via Google Wire; see wire.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/catalyst-dev/liveops/internal/cmd"
	"github.com/catalyst-dev/liveops/internal/config"
	"github.com/catalyst-dev/liveops/internal/server"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Cobra is configured with SilenceErrors: true, so we
		// print the error here for consistent formatting.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires all dependencies and executes the root Cobra command.
func run(ctx context.Context) error {
	rootCmd, cleanup, err := wireCmd()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	return rootCmd.ExecuteContext(ctx)
}

// newCmd is a Wire provider that constructs the root Cobra command and
// registers the serve subcommand. The server injector is passed as a
// closure so that configuration is loaded once and shared.
func newCmd(conf *config.Config) (*cobra.Command, error) {
	c := &cobra.Command{
		Use:           "liveops",
		Short:         "Live-operations API for per-pull-request workloads: watch, logs, shell.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd, err := cmd.NewServeCommand(conf, func() (*server.Server, func(), error) {
		return wireServer(conf)
	})
	if err != nil {
		return nil, err
	}

	c.AddCommand(serveCmd)

	return c, nil
}
