//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/spf13/cobra"

	"github.com/catalyst-dev/liveops/internal/cmd"
	"github.com/catalyst-dev/liveops/internal/config"
	"github.com/catalyst-dev/liveops/internal/core"
	"github.com/catalyst-dev/liveops/internal/handler"
	"github.com/catalyst-dev/liveops/internal/kubernetes"
	"github.com/catalyst-dev/liveops/internal/metrics"
	"github.com/catalyst-dev/liveops/internal/server"
)

func wireCmd() (*cobra.Command, func(), error) {
	panic(wire.Build(
		newCmd,
		config.ProviderSet,
	))
}

func wireServer(conf *config.Config) (*server.Server, func(), error) {
	panic(wire.Build(
		cmd.ProviderSet,
		handler.ProviderSet,
		core.ProviderSet,
		kubernetes.ProviderSet,
		metrics.ProviderSet,
	))
}
