package main

import (
	"github.com/spf13/cobra"

	"github.com/serenitylabs/serenity/internal/config"
	"github.com/serenitylabs/serenity/internal/logging"
)

// globalOptions are the persistent flags shared by all commands
type globalOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "serenityctl",
		Short: "Run Holt-Winters forecasts locally and follow run events",
		Long: `serenityctl fits the linear, additive and multiplicative Holt-Winters
models to three price files merged by date, prints the in-sample metrics and
exports the forecast scenarios. It can also follow the run events published
by a serenity server.`,
		Version:       Version + " (" + GitCommit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newForecastCmd(g))
	rootCmd.AddCommand(newWatchCmd(g))

	return rootCmd
}

// load reads the configuration and builds a logger writing to stderr
func (g *globalOptions) load(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}

	logCfg := cfg.Logging
	logCfg.OutputPath = "stderr"
	logCfg.Format = "console"
	if g.verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.NewFromConfig(logCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
