// Package main is the storefront command: an HTTP API and a terminal browser
// over the product catalog and an optimistic cart.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/storefront/internal/config"
	"github.com/fairyhunter13/storefront/internal/obs"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		obs.Logger.Error("command_failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Product catalog browsing with an optimistic shopping cart",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file; environment variables override it")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newBrowseCmd(flags), newVersionCmd())
	return root
}

// loadConfig reads the file named by --config, or the environment alone, and
// applies --log-level.
func loadConfig(flags *rootFlags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "storefront", version)
		},
	}
}
