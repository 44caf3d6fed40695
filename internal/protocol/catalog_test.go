package protocol

import (
	"bytes"
	"testing"
)

func TestCatalogBuilders(t *testing.T) {
	tests := []struct {
		name        string
		build       func() (string, error)
		wantDir     Direction
		wantChannel Channel
		wantCommand CommandType
		wantPayload []byte
		wantOp      Operation
	}{
		{"set intensity", func() (string, error) { return SetIntensity(8, ChannelOne) }, AppToDevice, ChannelOne, CmdSetIntensity, []byte{0x01, 0x08}, OpSetIntensity},
		{"get intensity", func() (string, error) { return GetIntensity(ChannelTwo) }, AppToDevice, ChannelTwo, CmdGetIntensity, []byte{}, OpGetIntensity},
		{"set mode", func() (string, error) { return SetMode(ModeShiatsu, ChannelFour) }, AppToDevice, ChannelFour, CmdSetMode, []byte{0x07}, OpSetMode},
		{"get mode", func() (string, error) { return GetMode(ChannelOne) }, AppToDevice, ChannelOne, CmdGetMode, []byte{}, OpGetMode},
		{"start therapy", func() (string, error) { return StartTherapy(ChannelTwo) }, AppToDevice, ChannelTwo, CmdDeviceStatus, []byte{0x02, 0x01}, OpStartTherapy},
		{"stop therapy", func() (string, error) { return StopTherapy(ChannelTwo) }, AppToDevice, ChannelTwo, CmdDeviceStatus, []byte{0x02, 0x02}, OpStopTherapy},
		{"power off", func() (string, error) { return PowerOff(ChannelOne) }, AppToDevice, ChannelOne, CmdPowerOff, []byte{}, OpPowerOff},
		{"get battery", func() (string, error) { return GetBattery(ChannelOne, 0x00) }, AppToDevice, ChannelOne, CmdGetBattery, []byte{0x00}, OpGetBattery},
		{"get version", func() (string, error) { return GetVersion(ChannelTwo) }, AppToDevice, ChannelNone, CmdGetVersion, []byte{0x00}, OpGetVersion},
		{"set work time", func() (string, error) { return SetWorkTime(355, ChannelOne) }, AppToDevice, ChannelOne, CmdSetWorkTime, []byte{0x01, 0x01, 0x63}, OpSetWorkTime},
		{"set work time small", func() (string, error) { return SetWorkTime(30, ChannelFour) }, AppToDevice, ChannelFour, CmdSetWorkTime, []byte{0x04, 0x00, 0x1E}, OpSetWorkTime},
		{"set climbing time", func() (string, error) { return SetClimbingTime(3, ChannelOne) }, AppToDevice, ChannelOne, CmdSetClimbingTime, []byte{0x03}, OpSetClimbingTime},
		{"set peak time", func() (string, error) { return SetPeakTime(5, ChannelOne) }, AppToDevice, ChannelOne, CmdSetPeakTime, []byte{0x05}, OpSetPeakTime},
		{"set stop time", func() (string, error) { return SetStopTime(2, ChannelOne) }, AppToDevice, ChannelOne, CmdSetStopTime, []byte{0x02}, OpSetStopTime},
		{"get device info", func() (string, error) { return GetDeviceInfo(ChannelOne) }, AppToDevice, ChannelOne, CmdGetDeviceInfo, []byte{0x00}, OpGetDeviceInfo},
		{"reply intensity", func() (string, error) { return ReplyIntensity(12, ChannelTwo) }, DeviceToApp, ChannelTwo, CmdGetDeviceInfo, []byte{0x03, 0x02, 0x0C}, OpIntensityReport},
		{"reply mode", func() (string, error) { return ReplyMode(ModeRelax, ChannelOne) }, DeviceToApp, ChannelOne, CmdGetDeviceInfo, []byte{0x05, 0x0D}, OpModeReport},
		{"reply work time", func() (string, error) { return ReplyWorkTime(20, ChannelOne) }, DeviceToApp, ChannelOne, CmdGetDeviceInfo, []byte{0x08, 0x00, 0x14}, OpWorkTimeReport},
		{"reply device status", func() (string, error) { return ReplyDeviceStatus(TherapyStart, ChannelOne) }, DeviceToApp, ChannelOne, CmdGetDeviceInfo, []byte{0x02, 0x01, 0x01}, OpStatusReport},
		{"reply battery", func() (string, error) { return ReplyBattery(80, ChannelOne) }, DeviceToApp, ChannelOne, CmdGetDeviceInfo, []byte{0x07, 0x50}, OpBatteryReport},
		{"reply version", func() (string, error) { return ReplyVersion(1, 4, ChannelFour) }, DeviceToApp, ChannelNone, CmdGetVersion, []byte{0x01, 0x04}, OpVersionReport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.build()
			if err != nil {
				t.Fatalf("build error = %v", err)
			}

			res := Decode(encoded)
			if !res.Valid {
				t.Fatalf("decode invalid: %s", res.Reason)
			}
			if res.Direction != tt.wantDir {
				t.Errorf("direction = %s, want %s", res.Direction, tt.wantDir)
			}
			if res.Channel != tt.wantChannel {
				t.Errorf("channel = %s, want %s", res.Channel, tt.wantChannel)
			}
			if res.Command != tt.wantCommand {
				t.Errorf("command = %s, want %s", res.Command, tt.wantCommand)
			}
			if !bytes.Equal(res.Data, tt.wantPayload) {
				t.Errorf("payload = % x, want % x", res.Data, tt.wantPayload)
			}
			if op := res.Operation(); op != tt.wantOp {
				t.Errorf("operation = %s, want %s", op, tt.wantOp)
			}
		})
	}
}

func TestCatalogExactBytes(t *testing.T) {
	tests := []struct {
		name  string
		build func() (string, error)
		want  []byte
	}{
		{"start therapy CH2", func() (string, error) { return StartTherapy(ChannelTwo) }, []byte{0x5A, 0x01, 0x02, 0x02, 0x02, 0x02, 0x01, 0x64}},
		{"stop therapy CH2", func() (string, error) { return StopTherapy(ChannelTwo) }, []byte{0x5A, 0x01, 0x02, 0x02, 0x02, 0x02, 0x02, 0x65}},
		{"get version ignores CH2", func() (string, error) { return GetVersion(ChannelTwo) }, []byte{0x5A, 0x01, 0x00, 0x01, 0x01, 0x00, 0x5D}},
		{"set work time 355", func() (string, error) { return SetWorkTime(355, ChannelOne) }, []byte{0x5A, 0x01, 0x01, 0x08, 0x03, 0x01, 0x01, 0x63, 0xCC}},
		{"reply battery 80", func() (string, error) { return ReplyBattery(80, ChannelOne) }, []byte{0x5A, 0x02, 0x01, 0x0C, 0x02, 0x07, 0x50, 0xC2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.build()
			if err != nil {
				t.Fatalf("build error = %v", err)
			}
			if raw := mustDecodeBase64(t, encoded); !bytes.Equal(raw, tt.want) {
				t.Errorf("bytes = % x, want % x", raw, tt.want)
			}
		})
	}
}

func TestCatalogBuildersAreDeterministic(t *testing.T) {
	a, _ := SetWorkTime(99, ChannelTwo)
	b, _ := SetWorkTime(99, ChannelTwo)
	if a != b {
		t.Errorf("SetWorkTime not referentially transparent: %q != %q", a, b)
	}
}

func TestCatalogRejectsInvalidChannel(t *testing.T) {
	if _, err := SetIntensity(5, Channel(0x03)); !IsEncodingError(err) {
		t.Errorf("SetIntensity(ch=3) error = %v, want *EncodingError", err)
	}
	if _, err := GetVersion(ChannelNone); !IsEncodingError(err) {
		t.Errorf("GetVersion(ch=0) error = %v, want *EncodingError", err)
	}
}

func TestCatalogEntries(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range Catalog() {
		if seen[e.Name] {
			t.Errorf("duplicate catalog entry %q", e.Name)
		}
		seen[e.Name] = true
		if !e.Command.Known() {
			t.Errorf("entry %q has unknown command %s", e.Name, e.Command)
		}
	}
	if len(seen) != 20 {
		t.Errorf("catalog has %d entries, want 20", len(seen))
	}
}
