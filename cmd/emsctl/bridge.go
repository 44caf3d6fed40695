package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/emslink/internal/discovery"
	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/server"
	"github.com/muurk/emslink/internal/simulator"
	"github.com/muurk/emslink/internal/ui"
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(scanCmd)
}

// Simulate command flags
var (
	simHost        string
	simPort        int
	simPath        string
	simCert        string
	simKey         string
	simAnalysisDir string
	simAdvertise   bool
	simInstance    string
	simBattery     int
	simFirmware    string
	simChannels    int
	simMode        string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a bridge with a simulated device",
	Long: `Start a WebSocket bridge that speaks the same protocol as a real
BLE-to-WebSocket bridge, backed by a simulated device. Every connection
gets its own device.

To capture traffic for protocol analysis, use --analysis-dir; each
connection writes a JSONL file with the decoded frame of every message.`,
	Example: `  # Local bridge on :8080
  emsctl simulate

  # Two-channel device with a low battery, advertised over mDNS
  emsctl simulate --channels 2 --battery 15 --advertise

  # wss:// with your own certificate
  emsctl simulate --cert cert.pem --key key.pem --port 8443

  # Capture messages
  emsctl simulate --analysis-dir ./captures`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simHost, "host", "", "Listen address (empty = all interfaces)")
	f.IntVar(&simPort, "port", server.DefaultPort, "Listen port")
	f.StringVar(&simPath, "path", server.DefaultPath, "WebSocket endpoint path")
	f.StringVar(&simCert, "cert", "", "TLS certificate file (serves wss:// with --key)")
	f.StringVar(&simKey, "key", "", "TLS private key file")
	f.StringVar(&simAnalysisDir, "analysis-dir", "", "Directory to write message captures (disabled if not specified)")
	f.BoolVar(&simAdvertise, "advertise", false, "Advertise the bridge via mDNS")
	f.StringVar(&simInstance, "instance", server.DefaultInstance, "mDNS instance name")
	f.IntVar(&simBattery, "battery", int(simulator.DefaultBattery), "Battery percentage reported by the device")
	f.StringVar(&simFirmware, "firmware", fmt.Sprintf("%d.%d", simulator.DefaultFirmwareMajor, simulator.DefaultFirmwareMinor), "Firmware version reported by the device")
	f.IntVar(&simChannels, "channels", 1, "Output channels on the device: 1, 2 or 4")
	f.StringVar(&simMode, "mode", simulator.DefaultMode.String(), "Program active at boot")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if (simCert == "") != (simKey == "") {
		return fmt.Errorf("both --cert and --key must be provided together")
	}
	for _, path := range []string{simCert, simKey} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
	}

	opts, err := simulatorOptions()
	if err != nil {
		return err
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	level := logLevel
	if level == "" {
		level = "info"
	}

	srv, err := server.New(&server.Config{
		Host:        simHost,
		Port:        simPort,
		Path:        simPath,
		CertPath:    simCert,
		KeyPath:     simKey,
		LogLevel:    level,
		AnalysisDir: simAnalysisDir,
		Advertise:   simAdvertise,
		Instance:    simInstance,
		Profile:     reg.Profile(),
		Device:      opts,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

func simulatorOptions() ([]simulator.Option, error) {
	if simBattery < 0 || simBattery > 100 {
		return nil, fmt.Errorf("battery %d out of range 0-100", simBattery)
	}
	var major, minor byte
	if _, err := fmt.Sscanf(simFirmware, "%d.%d", &major, &minor); err != nil {
		return nil, fmt.Errorf("invalid firmware %q, want major.minor", simFirmware)
	}
	ch, err := protocol.ParseChannel(simChannels)
	if err != nil {
		return nil, err
	}
	mode, err := protocol.ParseMode(simMode)
	if err != nil {
		return nil, err
	}

	return []simulator.Option{
		simulator.WithBattery(byte(simBattery)),
		simulator.WithFirmware(major, minor),
		simulator.WithChannels(ch),
		simulator.WithMode(mode),
	}, nil
}

var scanTimeout int

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for bridges on the network",
	Long: `Scan for BLE-to-WebSocket bridges using mDNS/DNS-SD discovery
(service type ` + discovery.ServiceType + `).`,
	Example: `  emsctl scan
  emsctl scan --timeout 10`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", int(discovery.DefaultScanTimeout/time.Second), "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Println(fmt.Sprintf("Scanning for bridges (timeout: %ds)...", scanTimeout))
	p.Newline()

	bridges, err := discovery.ScanForBridges(cmd.Context(), time.Duration(scanTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(bridges) == 0 {
		p.PrintWarning("No bridges found", map[string]string{
			"Hint": "Increase --timeout, or pass --bridge with the URL",
		})
		return nil
	}

	for i, b := range bridges {
		details := map[string]string{
			"URL":      b.URL(),
			"Hostname": b.Hostname,
		}
		for k, v := range b.Metadata {
			details[k] = v
		}
		p.PrintSuccess(fmt.Sprintf("Bridge %d: %s", i+1, b.Instance), details)
	}
	return nil
}
