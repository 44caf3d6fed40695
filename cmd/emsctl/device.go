package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/emslink/internal/config"
	"github.com/muurk/emslink/internal/device"
	"github.com/muurk/emslink/internal/discovery"
	"github.com/muurk/emslink/internal/logging"
	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/transport"
	"github.com/muurk/emslink/internal/ui"
	"github.com/muurk/emslink/internal/version"
)

const defaultTimeout = 5 * time.Second

// link is an open session to one device channel through a bridge.
type link struct {
	session *device.Session
	bridge  *transport.Bridge
	url     string
	timeout time.Duration
	reg     *config.Registry
}

func (l *link) Close() {
	_ = l.session.Close()
	_ = l.bridge.Close()
}

// connect resolves the bridge, dials it and opens a session on the
// selected channel.
func connect(ctx context.Context, opts ...device.Option) (*link, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	ch, err := resolveChannel(reg)
	if err != nil {
		return nil, err
	}

	url, err := resolveBridgeURL(ctx, reg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	br, err := transport.DialBridge(ctx, url, header)
	if err != nil {
		return nil, err
	}

	session, err := device.Open(br, reg.Profile(), ch, opts...)
	if err != nil {
		_ = br.Close()
		return nil, err
	}

	logging.Info("Session opened",
		zap.String("bridge", url),
		zap.String("channel", ch.String()),
		zap.String("device", deviceName),
	)

	return &link{
		session: session,
		bridge:  br,
		url:     url,
		timeout: resolveTimeout(reg),
		reg:     reg,
	}, nil
}

// resolveChannel applies --channel, then the config default, and checks the
// channel against the device's output count when it is known.
func resolveChannel(reg *config.Registry) (protocol.Channel, error) {
	ch := reg.DefaultChannel()
	if channelFlag != 0 {
		var err error
		if ch, err = protocol.ParseChannel(channelFlag); err != nil {
			return 0, err
		}
	}
	if deviceName != "" {
		if d := reg.GetDevice(deviceName); d != nil && d.Channels != 0 && int(ch) > d.Channels {
			return 0, fmt.Errorf("device %q has %d channel(s); %s is not available", deviceName, d.Channels, ch)
		}
	}
	return ch, nil
}

func resolveBridgeURL(ctx context.Context, reg *config.Registry) (string, error) {
	if bridgeURL != "" {
		return bridgeURL, nil
	}
	if reg.Bridge != nil && reg.Bridge.URL != "" {
		return reg.Bridge.URL, nil
	}

	scanner := discovery.NewScanner()
	if reg.Preferences != nil && reg.Preferences.DiscoverTimeout > 0 {
		scanner.Timeout = time.Duration(reg.Preferences.DiscoverTimeout) * time.Second
	}
	instance := ""
	if reg.Bridge != nil {
		instance = reg.Bridge.Instance
	}

	b, err := scanner.WaitForBridge(ctx, instance)
	if err != nil {
		return "", fmt.Errorf("no bridge configured and discovery failed: %w", err)
	}
	logging.Info("Discovered bridge", zap.String("bridge", b.String()))
	return b.URL(), nil
}

func resolveTimeout(reg *config.Registry) time.Duration {
	if timeoutSecs > 0 {
		return time.Duration(timeoutSecs) * time.Second
	}
	if reg.Bridge != nil && reg.Bridge.AckTimeout > 0 {
		return time.Duration(reg.Bridge.AckTimeout) * time.Second
	}
	return defaultTimeout
}

// sessionFunc runs against an open session and returns details for the
// result box.
type sessionFunc func(ctx context.Context, s *device.Session) (map[string]string, error)

// withSession connects, runs fn under the operation timeout and prints the
// outcome.
func withSession(cmd *cobra.Command, title string, fn sessionFunc) error {
	p := ui.NewPrinter(cmd.OutOrStdout())

	l, err := connect(cmd.Context())
	if err != nil {
		p.PrintError(title+" failed", err, ui.BridgeTroubleshooting)
		return err
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), l.timeout)
	defer cancel()

	details, err := fn(ctx, l.session)
	if err != nil {
		p.PrintError(title+" failed", err, troubleshootingFor(err))
		return err
	}

	if details == nil {
		details = make(map[string]string)
	}
	details["Bridge"] = l.url
	details["Channel"] = l.session.Channel().String()
	p.PrintSuccess(title, details)
	return nil
}

func troubleshootingFor(err error) []string {
	var encErr *protocol.EncodingError
	switch {
	case errors.As(err, &encErr):
		return []string{"Run 'emsctl catalog' for valid operations and modes"}
	case errors.Is(err, context.DeadlineExceeded):
		return []string{
			"The device did not answer in time; raise --timeout",
			"Check the device is awake and paired with the bridge",
		}
	default:
		return ui.BridgeTroubleshooting
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(monitorCmd)

	sendCmd.AddCommand(
		sendByteCmd("intensity", "Set stimulation intensity", "level",
			func(ctx context.Context, s *device.Session, v byte) error { return s.SetIntensity(ctx, v) }),
		sendByteCmd("climbing-time", "Set the pulse climbing time", "value",
			func(ctx context.Context, s *device.Session, v byte) error { return s.SetClimbingTime(ctx, v) }),
		sendByteCmd("peak-time", "Set the pulse peak time", "value",
			func(ctx context.Context, s *device.Session, v byte) error { return s.SetPeakTime(ctx, v) }),
		sendByteCmd("stop-time", "Set the pulse stop time", "value",
			func(ctx context.Context, s *device.Session, v byte) error { return s.SetStopTime(ctx, v) }),
		sendModeCmd,
		sendWorkTimeCmd,
		sendSimpleCmd("start", "Start therapy", (*device.Session).StartTherapy),
		sendSimpleCmd("stop", "Stop therapy", (*device.Session).StopTherapy),
		sendSimpleCmd("power-off", "Power the device off", (*device.Session).PowerOff),
		sendSimpleCmd("info", "Ask the device to report its full state", (*device.Session).RequestDeviceInfo),
		sendRawCmd,
		sendPresetCmd,
	)
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a command to the device",
	Long: `Send one command to the device through the bridge and wait for the
bridge to acknowledge it. Device replies that arrive meanwhile are folded
into the result.`,
	Example: `  emsctl send intensity 5 --bridge ws://localhost:8080/bridge
  emsctl send mode shiatsu --channel 2
  emsctl send preset evening --device living-room`,
}

func sendByteCmd(name, short, arg string, fn func(context.Context, *device.Session, byte) error) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s <%s>", name, arg),
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseByte(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, short, func(ctx context.Context, s *device.Session) (map[string]string, error) {
				if err := fn(ctx, s, v); err != nil {
					return nil, err
				}
				return map[string]string{name: strconv.Itoa(int(v))}, nil
			})
		},
	}
}

func sendSimpleCmd(name, short string, fn func(*device.Session, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, short, func(ctx context.Context, s *device.Session) (map[string]string, error) {
				return nil, fn(s, ctx)
			})
		},
	}
}

var sendModeCmd = &cobra.Command{
	Use:   "mode <mode>",
	Short: "Select a stimulation program",
	Long:  "Select a stimulation program by name or code. 'emsctl catalog' lists them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := protocol.ParseMode(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, "Set mode", func(ctx context.Context, s *device.Session) (map[string]string, error) {
			if err := s.SetMode(ctx, mode); err != nil {
				return nil, err
			}
			return map[string]string{"Mode": mode.String()}, nil
		})
	},
}

var sendWorkTimeCmd = &cobra.Command{
	Use:   "work-time <minutes>",
	Short: "Set the session length",
	Long: fmt.Sprintf("Set the session length in minutes. Values are clamped to %d-%d.",
		device.MinWorkTime, device.MaxWorkTime),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid minutes %q", args[0])
		}
		return withSession(cmd, "Set work time", func(ctx context.Context, s *device.Session) (map[string]string, error) {
			if err := s.SetWorkTime(ctx, minutes); err != nil {
				return nil, err
			}
			return map[string]string{"Work time": fmt.Sprintf("%d min", device.ClampWorkTime(minutes))}, nil
		})
	},
}

var sendRawCmd = &cobra.Command{
	Use:   "raw <base64>",
	Short: "Write a pre-encoded frame as is",
	Long: `Write a base64 frame without rebuilding it. The frame is decoded first
and a warning is logged when it does not check out, but it is sent anyway.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res := protocol.Decode(args[0])
		if !res.Valid {
			logging.Warn("Sending invalid frame", zap.String("reason", res.Reason.String()))
		}
		return withSession(cmd, "Write frame", func(ctx context.Context, s *device.Session) (map[string]string, error) {
			if err := s.Write(ctx, args[0]); err != nil {
				return nil, err
			}
			return map[string]string{"Frame": args[0], "Valid": strconv.FormatBool(res.Valid)}, nil
		})
	},
}

var presetStart bool

var sendPresetCmd = &cobra.Command{
	Use:   "preset <name>",
	Short: "Apply a preset from the config file",
	Long: `Apply a named preset of the --device entry: mode, intensity and work time,
then start therapy when --start is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreset,
}

func init() {
	sendPresetCmd.Flags().BoolVar(&presetStart, "start", false, "Start therapy after applying the preset")
}

func runPreset(cmd *cobra.Command, args []string) error {
	if deviceName == "" {
		return errors.New("--device is required to look up presets")
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	preset, ok := reg.GetPreset(deviceName, args[0])
	if !ok {
		return fmt.Errorf("device %q has no preset %q", deviceName, args[0])
	}
	mode, err := protocol.ParseMode(preset.Mode)
	if err != nil {
		return err
	}

	steps := []string{
		"Set mode " + mode.String(),
		fmt.Sprintf("Set intensity %d", preset.Intensity),
		"Set work time",
		"Start therapy",
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:           "Apply preset",
		Command:         "emsctl send preset " + args[0],
		Params:          map[string]string{"Device": deviceName, "Preset": args[0]},
		Steps:           steps,
		Troubleshooting: ui.BridgeTroubleshooting,
		Output:          cmd.OutOrStdout(),
	})

	return runner.Run(cmd.Context(), func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
		l, err := connect(ctx)
		if err != nil {
			return nil, err
		}
		defer l.Close()

		ctx, cancel := context.WithTimeout(ctx, l.timeout*time.Duration(len(steps)))
		defer cancel()

		step := func(n int, skip bool, note string, fn func() error) error {
			if skip {
				onStep(n, ui.StepSkipped, note)
				return nil
			}
			onStep(n, ui.StepRunning, "")
			start := time.Now()
			if err := fn(); err != nil {
				onStep(n, ui.StepFailed, err.Error())
				return err
			}
			onStep(n, ui.StepComplete, time.Since(start).Round(time.Millisecond).String())
			return nil
		}

		s := l.session
		if err := step(1, false, "", func() error { return s.SetMode(ctx, mode) }); err != nil {
			return nil, err
		}
		if err := step(2, false, "", func() error { return s.SetIntensity(ctx, byte(preset.Intensity)) }); err != nil {
			return nil, err
		}
		if err := step(3, preset.WorkTime == 0, "not set", func() error { return s.SetWorkTime(ctx, preset.WorkTime) }); err != nil {
			return nil, err
		}
		if err := step(4, !presetStart, "use --start", func() error { return s.StartTherapy(ctx) }); err != nil {
			return nil, err
		}

		details := map[string]string{
			"Mode":      mode.String(),
			"Intensity": strconv.Itoa(preset.Intensity),
		}
		if preset.WorkTime != 0 {
			details["Work time"] = fmt.Sprintf("%d min", preset.WorkTime)
		}
		return details, nil
	})
}

var readCmd = &cobra.Command{
	Use:       "read <battery|version|intensity|mode>",
	Short:     "Query one value from the device",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"battery", "version", "intensity", "mode"},
	RunE: func(cmd *cobra.Command, args []string) error {
		what := args[0]
		return withSession(cmd, "Read "+what, func(ctx context.Context, s *device.Session) (map[string]string, error) {
			switch what {
			case "battery":
				v, err := s.ReadBattery(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]string{"Battery": fmt.Sprintf("%d%%", v)}, nil
			case "version":
				major, minor, err := s.ReadVersion(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]string{"Firmware": fmt.Sprintf("%d.%d", major, minor)}, nil
			case "intensity":
				v, err := s.ReadIntensity(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]string{"Intensity": strconv.Itoa(int(v))}, nil
			case "mode":
				m, err := s.ReadMode(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]string{"Mode": m.String()}, nil
			}
			return nil, fmt.Errorf("unknown value %q", what)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the device's full state",
	Long: `Request a full device report and the firmware version, then print what
the device said. With --device the firmware and last-seen time are saved to
the config file.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())

	l, err := connect(cmd.Context())
	if err != nil {
		p.PrintError("Status failed", err, ui.BridgeTroubleshooting)
		return err
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), l.timeout)
	defer cancel()

	s := l.session
	// Work time is the last reply in a device info burst
	if _, err := s.Request(ctx, protocol.OpWorkTimeReport, func() (string, error) {
		return protocol.GetDeviceInfo(s.Channel())
	}); err != nil {
		p.PrintError("Status failed", err, troubleshootingFor(err))
		return err
	}
	if _, _, err := s.ReadVersion(ctx); err != nil {
		logging.Warn("Version query failed", zap.Error(err))
	}

	state := s.State()
	title := l.url
	if deviceName != "" {
		title = deviceName
		if d := l.reg.GetDevice(deviceName); d != nil && d.Nickname != "" {
			title = d.Nickname
		}
		l.reg.UpdateDeviceLastSeen(deviceName, state.Firmware())
		if err := saveRegistry(l.reg); err != nil {
			logging.Warn("Could not save config", zap.Error(err))
		}
	}

	p.Println(ui.RenderState(title, state, p.Width()))
	return nil
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard for one channel",
	Long: `Open an interactive dashboard that shows device replies as they arrive
and lets you adjust intensity, mode and therapy from the keyboard.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	var program atomic.Pointer[tea.Program]
	var session atomic.Pointer[device.Session]

	handler := protocol.ReplyHandlerFunc(func(res protocol.Result, reply protocol.Reply) {
		p, s := program.Load(), session.Load()
		if p == nil || s == nil {
			return
		}
		p.Send(ui.StateMsg{State: s.State(), Reply: reply})
	})

	l, err := connect(cmd.Context(), device.WithReplyHandler(handler))
	if err != nil {
		return err
	}
	defer l.Close()
	session.Store(l.session)

	title := l.url
	if deviceName != "" {
		title = deviceName
	}

	p := tea.NewProgram(ui.NewMonitorModel(title, l.session),
		tea.WithContext(cmd.Context()),
		tea.WithAltScreen(),
	)
	program.Store(p)

	go func() {
		<-l.bridge.Done()
		p.Quit()
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && cmd.Context().Err() != nil {
		return nil
	}
	if err == nil && l.bridge.Err() != nil && !errors.Is(l.bridge.Err(), transport.ErrClosed) {
		return fmt.Errorf("bridge connection lost: %w", l.bridge.Err())
	}
	return err
}
