// Package cmd defines the Cobra subcommands and their Wire provider
// sets. It bridges configuration, dependency injection, and the
// transport/application layers.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catalyst-dev/liveops/internal/config"
	"github.com/catalyst-dev/liveops/internal/server"
)

// ServerInjector builds the fully wired server; see cmd/liveops/wire.go.
type ServerInjector func() (*server.Server, func(), error)

func NewServeCommand(conf *config.Config, newServer ServerInjector) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the live-operations API server",
		Example: "liveops serve --address=:8299 --watch-max-reconnects=5",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, cleanup, err := newServer()
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}
			defer cleanup()

			cfg := server.Config{
				Address:        conf.ServerAddress(),
				AllowedOrigins: conf.ServerAllowedOrigins(),
				ReapInterval:   conf.ShellReapInterval(),
			}

			return srv.Run(cmd.Context(), cfg)
		},
	}

	if err := conf.BindFlags(cmd.Flags(), config.ServerOptions); err != nil {
		return nil, err
	}
	if err := conf.BindFlags(cmd.Flags(), config.ClusterOptions); err != nil {
		return nil, err
	}

	return cmd, nil
}
