// Package simulator implements an in-process EMS massage device.
//
// A Device speaks the same frames as the real firmware: it decodes writes,
// updates its state and answers through the protocol reply builders. It
// implements transport.Peripheral, so it can sit behind a Loopback transport
// in tests or behind the bridge server for clients that have no hardware.
//
//	dev := simulator.New(simulator.WithBattery(80))
//	tr := transport.NewLoopback(transport.DefaultProfile(), dev)
//
// Corrupt frames are logged and ignored, as the hardware does. After
// POWER_OFF every write fails with ErrPoweredOff.
package simulator
