package protocol

import "testing"

func TestOverlappingCodesArePreserved(t *testing.T) {
	if CmdPowerOff != CmdDeviceStatus {
		t.Errorf("POWER_OFF = 0x%02x, DEVICE_STATUS = 0x%02x; firmware uses one byte for both", byte(CmdPowerOff), byte(CmdDeviceStatus))
	}
	if byte(TherapyStop) != byte(CmdDeviceStatus) {
		t.Errorf("stop action byte = 0x%02x, want 0x02", byte(TherapyStop))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		dir  Direction
		cmd  CommandType
		data []byte
		want Operation
	}{
		{"power off", AppToDevice, CmdPowerOff, nil, OpPowerOff},
		{"start", AppToDevice, CmdDeviceStatus, []byte{0x01, 0x01}, OpStartTherapy},
		{"stop", AppToDevice, CmdDeviceStatus, []byte{0x01, 0x02}, OpStopTherapy},
		{"status query", AppToDevice, CmdDeviceStatus, []byte{0x01}, OpDeviceStatus},
		{"status with unknown action", AppToDevice, CmdDeviceStatus, []byte{0x01, 0x09}, OpDeviceStatus},
		{"set intensity", AppToDevice, CmdSetIntensity, []byte{0x01, 0x02}, OpSetIntensity},
		{"unknown app command", AppToDevice, CommandType(0x30), nil, OpUnknown},
		{"version reply", DeviceToApp, CmdGetVersion, []byte{1, 2}, OpVersionReport},
		{"status reply", DeviceToApp, CmdGetDeviceInfo, []byte{0x02, 0x01, 0x01}, OpStatusReport},
		{"battery reply", DeviceToApp, CmdGetDeviceInfo, []byte{0x07, 0x50}, OpBatteryReport},
		{"empty info reply", DeviceToApp, CmdGetDeviceInfo, nil, OpUnknown},
		{"unknown sub-command", DeviceToApp, CmdGetDeviceInfo, []byte{0x0B}, OpUnknown},
		{"device echoes set intensity", DeviceToApp, CmdSetIntensity, []byte{0x01, 0x02}, OpUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.dir, tt.cmd, tt.data); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseChannel(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		ch, err := ParseChannel(n)
		if err != nil || int(ch) != n {
			t.Errorf("ParseChannel(%d) = %v, %v", n, ch, err)
		}
	}
	for _, n := range []int{-1, 0, 3, 5, 256} {
		if _, err := ParseChannel(n); err == nil {
			t.Errorf("ParseChannel(%d) succeeded, want error", n)
		}
	}
}

func TestModes(t *testing.T) {
	modes := Modes()
	if len(modes) != 13 {
		t.Fatalf("len(Modes()) = %d, want 13", len(modes))
	}
	for i, m := range modes {
		if byte(m) != byte(i+1) {
			t.Errorf("mode %d has code 0x%02x", i, byte(m))
		}
	}

	m, err := ParseMode("shiatsu")
	if err != nil || m != ModeShiatsu {
		t.Errorf("ParseMode(shiatsu) = %v, %v", m, err)
	}
	m, err = ParseMode("13")
	if err != nil || m != ModeRelax {
		t.Errorf("ParseMode(13) = %v, %v", m, err)
	}
	if _, err := ParseMode("14"); err == nil {
		t.Error("ParseMode(14) succeeded, want error")
	}
}

func TestParseModeRejectsMalformedNumbers(t *testing.T) {
	tests := []struct {
		in      string
		want    DeviceMode
		wantErr bool
	}{
		{in: "0x0a", want: ModeVibration},
		{in: "3", want: ModeScraping},
		{in: "-255", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "+3", wantErr: true},
		{in: "3abc", wantErr: true},
		{in: " 3", wantErr: true},
		{in: "257", wantErr: true},
		{in: "0", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMode(%q) = %s, want error", tt.in, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMode(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	if c, ok := ParseCommand("POWER_OFF"); !ok || c != CmdPowerOff {
		t.Errorf("ParseCommand(POWER_OFF) = %v, %v", c, ok)
	}
	if c, ok := ParseCommand("SET_PEAK_TIME"); !ok || c != CmdSetPeakTime {
		t.Errorf("ParseCommand(SET_PEAK_TIME) = %v, %v", c, ok)
	}
	if _, ok := ParseCommand("UNKNOWN"); ok {
		t.Error("ParseCommand(UNKNOWN) succeeded, want false")
	}
}
