package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/emslink/internal/config"
	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/transport"
	"github.com/muurk/emslink/internal/ui"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd, configBridgeCmd, configDeviceCmd, configPresetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the emsctl configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := config.CreateDefaultConfig(path); err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Config written", map[string]string{"Path": path})
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(reg)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var (
	bridgeInstance string
	bridgeAck      int
	gattService    string
	gattWrite      string
	gattNotify     string
)

var configBridgeCmd = &cobra.Command{
	Use:   "bridge [url]",
	Short: "Set bridge and GATT settings",
	Long: `Set the bridge URL (empty string clears it and re-enables discovery),
the mDNS instance to prefer, the ack timeout and the GATT identifiers.`,
	Example: `  emsctl config bridge ws://192.168.4.1:8080/bridge
  emsctl config bridge "" --instance kitchen-bridge
  emsctl config bridge --notify 0000ffe1-0000-1000-8000-00805f9b34fb`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if reg.Bridge == nil {
			reg.Bridge = &config.Bridge{}
		}
		if len(args) == 1 {
			reg.Bridge.URL = args[0]
		}
		if cmd.Flags().Changed("instance") {
			reg.Bridge.Instance = bridgeInstance
		}
		if cmd.Flags().Changed("ack-timeout") {
			reg.Bridge.AckTimeout = bridgeAck
		}

		profile := reg.Profile()
		if gattService != "" {
			profile.Service = gattService
		}
		if gattWrite != "" {
			profile.WriteChar = gattWrite
		}
		if gattNotify != "" {
			profile.NotifyChar = gattNotify
		}
		if err := profile.Validate(); err != nil {
			return err
		}
		profile = profile.Normalize()
		if profile == transport.DefaultProfile() {
			reg.GATT = nil
		} else {
			reg.GATT = &profile
		}

		return saveAndReport(cmd, reg, "Bridge settings saved", map[string]string{
			"URL":     valueOr(reg.Bridge.URL, "discover"),
			"Service": profile.Service,
		})
	},
}

func init() {
	f := configBridgeCmd.Flags()
	f.StringVar(&bridgeInstance, "instance", "", "mDNS instance name to prefer")
	f.IntVar(&bridgeAck, "ack-timeout", 5, "Seconds to wait for a write ack")
	f.StringVar(&gattService, "service", "", "GATT service UUID")
	f.StringVar(&gattWrite, "write", "", "Write characteristic UUID")
	f.StringVar(&gattNotify, "notify", "", "Notify characteristic UUID")
}

var (
	deviceNickname string
	deviceChannels int
)

var configDeviceCmd = &cobra.Command{
	Use:   "device <name>",
	Short: "Add or update a device entry",
	Example: `  emsctl config device living-room --nickname "Sofa pad" --channels 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		name := args[0]
		reg.EnsureDevice(name)
		if cmd.Flags().Changed("nickname") {
			reg.SetDeviceNickname(name, deviceNickname)
		}
		if cmd.Flags().Changed("channels") {
			if err := reg.SetDeviceChannels(name, deviceChannels); err != nil {
				return err
			}
		}
		d := reg.GetDevice(name)
		return saveAndReport(cmd, reg, "Device saved", map[string]string{
			"Name":     name,
			"Nickname": valueOr(d.Nickname, "-"),
			"Channels": strconv.Itoa(d.Channels),
		})
	},
}

func init() {
	configDeviceCmd.Flags().StringVar(&deviceNickname, "nickname", "", "Display name")
	configDeviceCmd.Flags().IntVar(&deviceChannels, "channels", 1, "Output channels: 1, 2 or 4")
}

var (
	presetMode      string
	presetIntensity int
	presetWorkTime  int
)

var configPresetCmd = &cobra.Command{
	Use:     "preset <device> <name>",
	Short:   "Save a preset for a device",
	Example: `  emsctl config preset living-room evening --mode relax --intensity 6 --work-time 20`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		mode, err := protocol.ParseMode(presetMode)
		if err != nil {
			return err
		}
		preset := &config.Preset{
			Mode:      mode.String(),
			Intensity: presetIntensity,
			WorkTime:  presetWorkTime,
		}
		if err := reg.SetPreset(args[0], args[1], preset); err != nil {
			return err
		}
		return saveAndReport(cmd, reg, "Preset saved", map[string]string{
			"Device":    args[0],
			"Preset":    args[1],
			"Mode":      preset.Mode,
			"Intensity": strconv.Itoa(preset.Intensity),
		})
	},
}

func init() {
	f := configPresetCmd.Flags()
	f.StringVar(&presetMode, "mode", protocol.ModeKneading.String(), "Program name or code")
	f.IntVar(&presetIntensity, "intensity", 1, "Intensity level 0-255")
	f.IntVar(&presetWorkTime, "work-time", 0, "Session minutes 1-99 (0 leaves it unchanged)")
}

func saveAndReport(cmd *cobra.Command, reg *config.Registry, title string, details map[string]string) error {
	if err := saveRegistry(reg); err != nil {
		return err
	}
	path, err := resolveConfigPath()
	if err == nil {
		details["Path"] = path
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess(title, details)
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
