package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/glbridge/vdevice/internal/config"
	"github.com/glbridge/vdevice/internal/logging"
)

// rootFlags holds the flags every subcommand reads config/logging from.
// cobra-bound flags are the highest-precedence layer over env and YAML
// (internal/config's own documented precedence).
type rootFlags struct {
	configPath string
	logLevel   string
	logPretty  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "vdeviced",
		Short:         "host bridge device model for the guest graphics-library proxy",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to an optional YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.logPretty, "log-pretty", false, "render console-friendly log output instead of JSON")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newSelftestCmd(flags))

	return root
}

// loadConfig layers the root command's flags over internal/config's
// env/YAML/defaults chain.
func (f *rootFlags) loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, zerolog.Logger{}, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logPretty {
		cfg.LogPretty = true
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	return cfg, log, nil
}
