// Emsctl talks to BLE EMS massage devices through a WebSocket bridge.
//
// It encodes and decodes the device's framed wire protocol, sends commands
// to a live device, and can run a simulated device behind a local bridge
// for development without hardware.
//
// Usage:
//
//	emsctl [command] [flags]
//
// See 'emsctl --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/emslink/internal/config"
	"github.com/muurk/emslink/internal/logging"
	"github.com/muurk/emslink/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	logLevel    string
	configPath  string
	bridgeURL   string
	channelFlag int
	deviceName  string
	timeoutSecs int
)

var rootCmd = &cobra.Command{
	Use:   "emsctl",
	Short: "EMS massage device control utility",
	Long: `A command line utility for BLE EMS massage devices.

Frames are built and checked locally. Commands that talk to a device go
through a BLE-to-WebSocket bridge, found via --bridge, the config file,
or mDNS discovery. 'emsctl simulate' runs such a bridge with a simulated
device attached.`,
	Version:           version.Full(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: platform config dir, or $"+config.ConfigEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "Bridge URL, e.g. ws://192.168.4.1:8080/bridge (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&channelFlag, "channel", 0, "Channel to address: 1, 2 or 4 (default from config)")
	rootCmd.PersistentFlags().StringVar(&deviceName, "device", "", "Device name from the config file")
	rootCmd.PersistentFlags().IntVar(&timeoutSecs, "timeout", 0, "Seconds to wait for each device operation (default from config)")

	rootCmd.AddCommand(versionCmd)
}

// setupLogging applies --log-level, then EMSLINK_LOG_LEVEL, then the
// config file preference.
func setupLogging(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		if reg, err := loadRegistry(); err == nil && reg.Preferences != nil {
			level = reg.Preferences.LogLevel
		}
	}
	return logging.Initialize(level)
}

// loadRegistry reads --config when given, else the shared registry.
func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.LoadRegistry()
}

func saveRegistry(reg *config.Registry) error {
	if configPath != "" {
		return reg.SaveTo(configPath)
	}
	return reg.Save()
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			return writeJSON(cmd.OutOrStdout(), version.Get())
		}
		i := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "emsctl %s (commit: %s, %s)\n", i.Version, i.Commit, i.GoVersion)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print as JSON")
}
