// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix CATALYST_)
//  3. Config file (config.yaml in . or /etc/catalyst/)
//  4. Compiled defaults
package config

// Viper keys for the HTTP surface.
const (
	KeyServerAddress        = "server.address"
	KeyServerAllowedOrigins = "server.allowed_origins"
	KeyServerDebugEnabled   = "server.debug.enabled"
)

// Viper keys for cluster access and live-operations tuning.
const (
	KeyKubeconfig         = "kube.kubeconfig"
	KeyWatchBackoffBase   = "watch.backoff_base"
	KeyWatchBackoffCap    = "watch.backoff_cap"
	KeyWatchMaxReconnects = "watch.max_reconnects"
	KeyLogsTailDefault    = "logs.tail_default"
	KeyShellReapInterval  = "shell.reap_interval"
)
