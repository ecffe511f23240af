package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	v *viper.Viper
}

func New() (*Config, error) {
	v := viper.New()

	// default values
	for _, o := range ServerOptions {
		v.SetDefault(o.Key, o.Default)
	}

	for _, o := range ClusterOptions {
		v.SetDefault(o.Key, o.Default)
	}

	// load config from file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/catalyst/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// load config from environment variables
	v.SetEnvPrefix("CATALYST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

func (c *Config) BindFlags(fs *pflag.FlagSet, options []ConfigOption) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

func (c *Config) ServerAddress() string {
	return c.v.GetString(KeyServerAddress) // CATALYST_SERVER_ADDRESS
}

func (c *Config) ServerAllowedOrigins() []string {
	return c.v.GetStringSlice(KeyServerAllowedOrigins) // CATALYST_SERVER_ALLOWED_ORIGINS
}

func (c *Config) ServerDebugEnabled() bool {
	return c.v.GetBool(KeyServerDebugEnabled) // CATALYST_SERVER_DEBUG_ENABLED
}

func (c *Config) Kubeconfig() string {
	return c.v.GetString(KeyKubeconfig) // CATALYST_KUBE_KUBECONFIG
}

func (c *Config) WatchBackoffBase() time.Duration {
	return c.v.GetDuration(KeyWatchBackoffBase) // CATALYST_WATCH_BACKOFF_BASE
}

func (c *Config) WatchBackoffCap() time.Duration {
	return c.v.GetDuration(KeyWatchBackoffCap) // CATALYST_WATCH_BACKOFF_CAP
}

func (c *Config) WatchMaxReconnects() int {
	return c.v.GetInt(KeyWatchMaxReconnects) // CATALYST_WATCH_MAX_RECONNECTS
}

func (c *Config) LogsTailDefault() int64 {
	return c.v.GetInt64(KeyLogsTailDefault) // CATALYST_LOGS_TAIL_DEFAULT
}

func (c *Config) ShellReapInterval() time.Duration {
	return c.v.GetDuration(KeyShellReapInterval) // CATALYST_SHELL_REAP_INTERVAL
}
