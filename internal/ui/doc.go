// Package ui renders emsctl's terminal output.
//
// Components are built on Lipgloss and follow a "render once and exit"
// pattern, except for the monitor which is a Bubble Tea program:
//
//   - Header: command banner with the resolved parameters
//   - Result: success, warning or failure box with sorted details
//   - RenderFrame / RenderDecode: byte-by-byte view of a frame, with the
//     field the decoder rejected highlighted
//   - RenderCatalog: the named operations and mode table
//   - RenderState: what a device session has learned
//   - Runner + Progress: step list for multi-command sequences such as
//     applying a preset
//   - MonitorModel: live dashboard fed by device notifications
//
// # Monitor
//
// Replies reach the model through tea.Program.Send:
//
//	model := ui.NewMonitorModel("Living room", session)
//	p := tea.NewProgram(model)
//	// in the session's reply handler:
//	p.Send(ui.StateMsg{State: session.State(), Reply: reply})
//
// # Logging Integration
//
// zap logging is silent unless EMSLINK_LOG_LEVEL is set, so these
// components own stdout by default.
package ui
