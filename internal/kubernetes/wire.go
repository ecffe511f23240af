package kubernetes

import (
	"github.com/google/wire"
)

var ProviderSet = wire.NewSet(
	ProvideRestConfig,
	New,
	NewWatchRepo,
	NewLogRepo,
	NewExecRepo,
)
