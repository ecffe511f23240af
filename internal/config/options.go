package config

import (
	"strings"

	"github.com/catalyst-dev/liveops/internal/core"
)

// ConfigOption describes a single configuration entry: its viper key,
// the corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type ConfigOption struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// ServerOptions defines the entries for the HTTP surface. Each entry
// is registered as a viper default and a CLI flag.
var ServerOptions = []ConfigOption{
	{Key: KeyServerAddress, Flag: flag(KeyServerAddress), Default: ":8299", Description: "Server listen address"},
	{Key: KeyServerAllowedOrigins, Flag: flag(KeyServerAllowedOrigins), Default: []string{}, Description: "Server allowed origins"},
	{Key: KeyServerDebugEnabled, Flag: flag(KeyServerDebugEnabled), Default: false, Description: "Server debug enabled"},
}

// ClusterOptions defines the entries for cluster access and the
// live-operations defaults.
var ClusterOptions = []ConfigOption{
	{Key: KeyKubeconfig, Flag: flag(KeyKubeconfig), Default: "", Description: "Path to kubeconfig (empty: in-cluster, then default path)"},
	{Key: KeyWatchBackoffBase, Flag: flag(KeyWatchBackoffBase), Default: core.DefaultBackoffBase, Description: "Watch reconnect backoff base delay"},
	{Key: KeyWatchBackoffCap, Flag: flag(KeyWatchBackoffCap), Default: core.DefaultBackoffCap, Description: "Watch reconnect backoff cap"},
	{Key: KeyWatchMaxReconnects, Flag: flag(KeyWatchMaxReconnects), Default: core.DefaultMaxReconnects, Description: "Watch reconnect attempts before giving up"},
	{Key: KeyLogsTailDefault, Flag: flag(KeyLogsTailDefault), Default: int(core.DefaultTailLines), Description: "Default log tail line budget"},
	{Key: KeyShellReapInterval, Flag: flag(KeyShellReapInterval), Default: core.DefaultReapInterval, Description: "Sweep interval for finished shell sessions"},
}

// flag converts a viper key like "watch.backoff_base" into a CLI flag
// like "watch-backoff-base" by lower-casing, replacing dots and
// underscores with hyphens, and stripping the "server-" prefix.
func flag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimPrefix(flag, "server-")
	return flag
}
