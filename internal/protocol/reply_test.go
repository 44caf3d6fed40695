package protocol

import (
	"errors"
	"testing"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (string, error)
		wantErr bool
		verify  func(t *testing.T, r Reply)
	}{
		{
			name:  "intensity",
			build: func() (string, error) { return ReplyIntensity(15, ChannelTwo) },
			verify: func(t *testing.T, r Reply) {
				m, ok := r.(*IntensityReply)
				if !ok {
					t.Fatalf("reply type = %T, want *IntensityReply", r)
				}
				if m.Level != 15 || m.Channel != ChannelTwo {
					t.Errorf("got %s", m)
				}
			},
		},
		{
			name:  "mode",
			build: func() (string, error) { return ReplyMode(ModeCupping, ChannelOne) },
			verify: func(t *testing.T, r Reply) {
				m, ok := r.(*ModeReply)
				if !ok || m.Mode != ModeCupping {
					t.Errorf("got %v, want cupping", r)
				}
			},
		},
		{
			name:  "work time big endian",
			build: func() (string, error) { return ReplyWorkTime(0x0102, ChannelOne) },
			verify: func(t *testing.T, r Reply) {
				m, ok := r.(*WorkTimeReply)
				if !ok || m.Minutes != 0x0102 {
					t.Errorf("got %v, want 258 minutes", r)
				}
			},
		},
		{
			name:  "device status running",
			build: func() (string, error) { return ReplyDeviceStatus(TherapyStart, ChannelFour) },
			verify: func(t *testing.T, r Reply) {
				m, ok := r.(*DeviceStatusReply)
				if !ok || !m.Running() || m.Channel != ChannelFour {
					t.Errorf("got %v, want running on CH4", r)
				}
			},
		},
		{
			name:  "battery",
			build: func() (string, error) { return ReplyBattery(64, ChannelOne) },
			verify: func(t *testing.T, r Reply) {
				m, ok := r.(*BatteryReply)
				if !ok || m.Percent != 64 {
					t.Errorf("got %v, want 64%%", r)
				}
			},
		},
		{
			name:  "version",
			build: func() (string, error) { return ReplyVersion(2, 7, ChannelOne) },
			verify: func(t *testing.T, r Reply) {
				m, ok := r.(*VersionReply)
				if !ok || m.Major != 2 || m.Minor != 7 {
					t.Errorf("got %v, want 2.7", r)
				}
			},
		},
		{
			name:  "app to device frame is raw",
			build: func() (string, error) { return SetIntensity(3, ChannelOne) },
			verify: func(t *testing.T, r Reply) {
				if _, ok := r.(*RawReply); !ok {
					t.Errorf("reply type = %T, want *RawReply", r)
				}
			},
		},
		{
			name:    "truncated battery reply",
			build:   func() (string, error) { return encode(DeviceToApp, CmdGetDeviceInfo, []byte{byte(SubBattery)}, ChannelOne) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.build()
			if err != nil {
				t.Fatalf("build error = %v", err)
			}

			reply, err := ParseReply(Decode(encoded))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseReply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if reply != nil {
					t.Errorf("reply = %v on error, want nil", reply)
				}
				return
			}
			tt.verify(t, reply)
		})
	}
}

func TestParseReplyRejectsInvalidResult(t *testing.T) {
	_, err := ParseReply(Decode("AAAA"))
	if !errors.Is(err, ErrInvalidResult) {
		t.Errorf("error = %v, want ErrInvalidResult", err)
	}
}
