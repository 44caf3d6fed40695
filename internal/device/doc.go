// Package device drives one EMS device over a transport.
//
// A Session subscribes to the notify characteristic, builds request frames
// through the protocol catalog and writes them to the write characteristic.
// Every notification is decoded and applied to a State snapshot; invalid
// frames are counted and logged, never returned as errors.
//
//	s, err := device.Open(tr, transport.DefaultProfile(), protocol.ChannelOne)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.SetIntensity(ctx, 8); err != nil {
//	    return err
//	}
//	pct, err := s.ReadBattery(ctx)
//
// Requests are not retried. A lost reply surfaces as a context error from
// the Read* methods.
package device
