// Package config provides user configuration management for emslink.
//
// This package manages a YAML configuration file holding the bridge
// connection, the GATT identifiers the device exposes, per-device nicknames,
// channel counts and presets, and application preferences.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/emslink/config.yaml or $HOME/.config/emslink/config.yaml
//   - macOS: $HOME/.config/emslink/config.yaml
//   - Windows: %LOCALAPPDATA%\emslink\config.yaml
//
// EMSLINK_CONFIG overrides the location.
//
// # Example File
//
//	version: 1
//	bridge:
//	  url: ws://192.168.4.1:8080/bridge
//	  ack_timeout: 5
//	gatt:
//	  service: 0000fff0-0000-1000-8000-00805f9b34fb
//	  write_characteristic: 0000fff2-0000-1000-8000-00805f9b34fb
//	  notify_characteristic: 0000fff1-0000-1000-8000-00805f9b34fb
//	devices:
//	  living-room:
//	    nickname: Living room pad
//	    channels: 2
//	    presets:
//	      evening: {mode: relax, intensity: 6, work_time: 20}
//	preferences:
//	  default_channel: 1
//	  discover_timeout: 5
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry.SetDeviceNickname("living-room", "Sofa")
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// LoadRegistry is safe for concurrent use and returns a shared instance.
// Writes are serialised and atomic (temp file then rename). The Registry
// itself is not synchronised; callers mutate it from one goroutine.
package config
