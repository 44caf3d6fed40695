// Package logging provides structured logging for emslink.
//
// This package wraps a package-level zap logger with convenience functions
// used by the codec, the transports, the device session and the bridge server.
// Logging is silent unless a level is requested, so library callers and the
// CLI produce no output by default.
//
// # Log Levels
//
//   - Debug: frame hex/base64 dumps, decode failure reasons, bridge envelopes
//   - Info: connections, session state changes, server lifecycle
//   - Warn: invalid device frames, dropped notifications
//   - Error: transport failures, startup failures
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Or from the environment:
//
//	EMSLINK_LOG_LEVEL=debug emsctl decode WgICDAIHZNc=
//
// # Frame Logging
//
//	logging.LogFrame("Encoded frame", raw, encoded)
//
// LogFrame is a no-op unless debug logging is enabled. It is advisory only:
// nothing in the codec depends on whether it ran.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. SetLogger and Initialize
// are meant to be called once at startup (or from tests) before concurrent use.
package logging
