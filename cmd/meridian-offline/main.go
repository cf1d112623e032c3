// Command meridian-offline runs the offline cache as a caching proxy in
// front of the Meridian Mastery origin.
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "meridian-offline",
		Short: "Offline cache proxy for Meridian Mastery",
		Long:  "Serves the Meridian Mastery app through a versioned offline cache and maintains its namespaces.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/meridian-offline/config.yaml)")
	flags.String("store", "memory", "store backend: memory, redis or disk")
	flags.String("redis-addr", "localhost:6379", "redis address for the redis store")
	flags.String("disk-dir", defaultDataDir(), "directory for the disk store")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("log-pretty", false, "human readable logs")

	bind(v, flags.Lookup("store"), "store")
	bind(v, flags.Lookup("redis-addr"), "redis.addr")
	bind(v, flags.Lookup("disk-dir"), "disk.dir")
	bind(v, flags.Lookup("log-level"), "log.level")
	bind(v, flags.Lookup("log-pretty"), "log.pretty")

	root.AddCommand(newServeCmd(v), newSweepCmd(v))
	return root
}

func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "meridian-offline")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "meridian-offline")
	}
	return ".meridian-offline"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "meridian-offline")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "meridian-offline")
	}
	return ".meridian-offline"
}
