package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/emslink/internal/protocol"
	"github.com/muurk/emslink/internal/ui"
)

func init() {
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(catalogCmd)
}

// Output formats shared by encode and decode
const (
	formatDetailed = "detailed"
	formatBase64   = "base64"
	formatHex      = "hex"
	formatJSON     = "json"
)

var (
	encodeFormat string
	decodeFormat string
	decodeHex    bool
)

// frameBuilder turns CLI arguments into a base64 frame.
type frameBuilder struct {
	usage   string
	minArgs int
	maxArgs int
	build   func(ch protocol.Channel, args []string) (string, error)
}

var builders = map[string]frameBuilder{
	"get-version":     noArgs(protocol.GetVersion),
	"start-therapy":   noArgs(protocol.StartTherapy),
	"stop-therapy":    noArgs(protocol.StopTherapy),
	"power-off":       noArgs(protocol.PowerOff),
	"get-intensity":   noArgs(protocol.GetIntensity),
	"get-mode":        noArgs(protocol.GetMode),
	"get-device-info": noArgs(protocol.GetDeviceInfo),
	"get-battery": {
		usage: "[value]", maxArgs: 1,
		build: func(ch protocol.Channel, args []string) (string, error) {
			var v byte
			if len(args) == 1 {
				var err error
				if v, err = parseByte(args[0]); err != nil {
					return "", err
				}
			}
			return protocol.GetBattery(ch, v)
		},
	},
	"set-intensity":     byteArg("<level>", protocol.SetIntensity),
	"set-climbing-time": byteArg("<value>", protocol.SetClimbingTime),
	"set-peak-time":     byteArg("<value>", protocol.SetPeakTime),
	"set-stop-time":     byteArg("<value>", protocol.SetStopTime),
	"set-mode":          modeArg(protocol.SetMode),
	"set-work-time":     minutesArg(protocol.SetWorkTime),
	"reply-intensity":   byteArg("<level>", protocol.ReplyIntensity),
	"reply-battery":     byteArg("<percent>", protocol.ReplyBattery),
	"reply-mode":        modeArg(protocol.ReplyMode),
	"reply-work-time":   minutesArg(protocol.ReplyWorkTime),
	"reply-version": {
		usage: "<major> <minor>", minArgs: 2, maxArgs: 2,
		build: func(ch protocol.Channel, args []string) (string, error) {
			major, err := parseByte(args[0])
			if err != nil {
				return "", err
			}
			minor, err := parseByte(args[1])
			if err != nil {
				return "", err
			}
			return protocol.ReplyVersion(major, minor, ch)
		},
	},
	"reply-device-status": {
		usage: "<start|stop>", minArgs: 1, maxArgs: 1,
		build: func(ch protocol.Channel, args []string) (string, error) {
			switch args[0] {
			case "start", "running":
				return protocol.ReplyDeviceStatus(protocol.TherapyStart, ch)
			case "stop", "stopped":
				return protocol.ReplyDeviceStatus(protocol.TherapyStop, ch)
			}
			return "", fmt.Errorf("status must be start or stop, got %q", args[0])
		},
	},
}

func noArgs(fn func(protocol.Channel) (string, error)) frameBuilder {
	return frameBuilder{build: func(ch protocol.Channel, _ []string) (string, error) { return fn(ch) }}
}

func byteArg(usage string, fn func(byte, protocol.Channel) (string, error)) frameBuilder {
	return frameBuilder{
		usage: usage, minArgs: 1, maxArgs: 1,
		build: func(ch protocol.Channel, args []string) (string, error) {
			v, err := parseByte(args[0])
			if err != nil {
				return "", err
			}
			return fn(v, ch)
		},
	}
}

func modeArg(fn func(protocol.DeviceMode, protocol.Channel) (string, error)) frameBuilder {
	return frameBuilder{
		usage: "<mode>", minArgs: 1, maxArgs: 1,
		build: func(ch protocol.Channel, args []string) (string, error) {
			mode, err := protocol.ParseMode(args[0])
			if err != nil {
				return "", err
			}
			return fn(mode, ch)
		},
	}
}

func minutesArg(fn func(uint16, protocol.Channel) (string, error)) frameBuilder {
	return frameBuilder{
		usage: "<minutes>", minArgs: 1, maxArgs: 1,
		build: func(ch protocol.Channel, args []string) (string, error) {
			v, err := strconv.ParseUint(args[0], 0, 16)
			if err != nil {
				return "", fmt.Errorf("invalid minutes %q: %w", args[0], err)
			}
			return fn(uint16(v), ch)
		},
	}
}

// parseByte accepts decimal or 0x-prefixed hex.
func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q: must be 0-255", s)
	}
	return byte(v), nil
}

func builderNames() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var encodeCmd = &cobra.Command{
	Use:   "encode <operation> [args...]",
	Short: "Build a frame for an operation",
	Long: `Build the frame for a named operation and print it.

Operations are listed by 'emsctl catalog'. The channel comes from --channel
(default 1); GET_VERSION always travels on channel 0.`,
	Example: `  emsctl encode set-intensity 3
  emsctl encode set-mode relax --channel 2
  emsctl encode get-version --format base64
  emsctl encode reply-battery 80 --format hex`,
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: builderNames(),
	RunE:      runEncode,
}

func init() {
	encodeCmd.Flags().StringVar(&encodeFormat, "format", formatDetailed, "Output format (detailed, base64, hex, json)")
}

func runEncode(cmd *cobra.Command, args []string) error {
	b, ok := builders[args[0]]
	if !ok {
		return fmt.Errorf("unknown operation %q (see 'emsctl catalog')", args[0])
	}
	rest := args[1:]
	maxArgs := b.maxArgs
	if maxArgs < b.minArgs {
		maxArgs = b.minArgs
	}
	if len(rest) < b.minArgs || len(rest) > maxArgs {
		return fmt.Errorf("usage: emsctl encode %s %s", args[0], b.usage)
	}

	ch, err := channelOrDefault()
	if err != nil {
		return err
	}

	encoded, err := b.build(ch, rest)
	if err != nil {
		return err
	}
	raw, err := protocol.DecodeBase64(encoded)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch encodeFormat {
	case formatBase64:
		fmt.Fprintln(out, encoded)
	case formatHex:
		fmt.Fprintln(out, hex.EncodeToString(raw))
	case formatJSON:
		return writeJSON(out, frameJSON(raw, protocol.DecodeBytes(raw), nil))
	case formatDetailed:
		res := protocol.DecodeBytes(raw)
		frame := protocol.Frame{
			Header:    raw[0],
			Direction: res.Direction,
			Channel:   res.Channel,
			Command:   res.Command,
			Length:    byte(len(res.Data)),
			Payload:   res.Data,
			Checksum:  raw[len(raw)-1],
		}
		fmt.Fprintln(out, ui.RenderFrame(frame, encoded, ui.GetTerminalWidth()))
	default:
		return fmt.Errorf("unknown format %q", encodeFormat)
	}
	return nil
}

// channelOrDefault resolves --channel without touching the config file.
func channelOrDefault() (protocol.Channel, error) {
	if channelFlag == 0 {
		return protocol.DefaultChannel, nil
	}
	return protocol.ParseChannel(channelFlag)
}

var decodeCmd = &cobra.Command{
	Use:   "decode <frame>...",
	Short: "Decode and check frames",
	Long: `Decode base64 frames (or hex with --hex) and report what they contain.

Decoding never fails: a malformed frame is shown as INVALID with the reason
and the field that did not check out.`,
	Example: `  emsctl decode WgEBAwIBA2U=
  emsctl decode --hex 5a02010c020750c2
  emsctl decode --format json WgICDAIHZNc=`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVar(&decodeFormat, "format", formatDetailed, "Output format (detailed, json)")
	decodeCmd.Flags().BoolVar(&decodeHex, "hex", false, "Frames are hex instead of base64")
}

func runDecode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var results []frameReport

	for _, arg := range args {
		raw, res, err := decodeArg(arg)
		if err != nil {
			return err
		}

		var reply protocol.Reply
		if res.Valid && res.Direction == protocol.DeviceToApp {
			// A truncated known reply still renders; the error is in the result
			reply, _ = protocol.ParseReply(res)
		}

		switch decodeFormat {
		case formatJSON:
			results = append(results, frameJSON(raw, res, reply))
		case formatDetailed:
			fmt.Fprintln(out, ui.RenderDecode(raw, res, reply, ui.GetTerminalWidth()))
		default:
			return fmt.Errorf("unknown format %q", decodeFormat)
		}
	}

	if decodeFormat == formatJSON {
		return writeJSON(out, results)
	}
	return nil
}

func decodeArg(arg string) ([]byte, protocol.Result, error) {
	arg = strings.TrimSpace(arg)
	if !decodeHex {
		raw, _ := protocol.DecodeBase64(arg)
		return raw, protocol.Decode(arg), nil
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(arg, " ", ""))
	if err != nil {
		return nil, protocol.Result{}, fmt.Errorf("invalid hex %q: %w", arg, err)
	}
	return raw, protocol.DecodeBytes(raw), nil
}

// frameReport is the JSON form of a decoded frame.
type frameReport struct {
	Hex       string `json:"hex"`
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason"`
	Direction string `json:"direction"`
	Channel   string `json:"channel"`
	Command   string `json:"command"`
	Operation string `json:"operation"`
	Data      string `json:"data"`
	Reply     string `json:"reply,omitempty"`
}

func frameJSON(raw []byte, res protocol.Result, reply protocol.Reply) frameReport {
	r := frameReport{
		Hex:       hex.EncodeToString(raw),
		Valid:     res.Valid,
		Reason:    res.Reason.String(),
		Direction: res.Direction.String(),
		Channel:   res.Channel.String(),
		Command:   res.Command.String(),
		Operation: res.Operation().String(),
		Data:      hex.EncodeToString(res.Data),
	}
	if reply != nil {
		r.Reply = reply.String()
	}
	return r
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List operations and modes",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderCatalog(protocol.Catalog(), ui.GetTerminalWidth()))
		return nil
	},
}
