// Package server implements a BLE-to-WebSocket bridge backed by simulated
// EMS devices.
//
// Real bridges (typically an ESP32 running a GATT proxy) expose a paired
// device over a WebSocket. This server speaks the same JSON envelope
// protocol but puts a simulator.Device behind every connection, so emsctl
// and other clients can be exercised without hardware.
//
// # Envelope Protocol
//
// Every message is one JSON text frame (see transport.Envelope):
//
//	-> {"op":"subscribe","id":1,"service":"0000fff0-...","characteristic":"0000fff1-..."}
//	<- {"op":"ack","id":1}
//	-> {"op":"write","id":2,"service":"0000fff0-...","characteristic":"0000fff2-...","value":"WgEBAwIBCGo="}
//	<- {"op":"notify","service":"0000fff0-...","characteristic":"0000fff1-...","value":"..."}
//	<- {"op":"ack","id":2}
//
// Notifications produced by a write are sent before its ack. Failed
// requests are answered with {"op":"error","id":n,"error":"..."}.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{Port: 8080, Advertise: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Start blocks until SIGINT/SIGTERM or a listener error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Capture
//
// When AnalysisDir is set, every envelope in either direction is appended to
// a per-connection JSONL file with the frame decoded alongside it.
//
// # Discovery
//
// With Advertise set the server registers "_emslink._tcp" via mDNS so
// `emsctl scan` can find it.
//
// # Graceful Shutdown
//
// SIGINT and SIGTERM stop the listener, withdraw the mDNS record, send a
// close frame to every client and wait for their goroutines to finish.
package server
