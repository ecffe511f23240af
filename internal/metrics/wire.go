package metrics

import (
	"github.com/google/wire"

	"github.com/catalyst-dev/liveops/internal/core"
)

var ProviderSet = wire.NewSet(
	New,
	wire.Bind(new(core.Monitor), new(*Metrics)),
)
