package protocol

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty", data: nil, want: 0x00},
		{name: "single byte", data: []byte{0x5A}, want: 0x5A},
		{name: "set intensity header and payload", data: []byte{0x5A, 0x01, 0x01, 0x03, 0x02, 0x01, 0x08}, want: 0x6A},
		{name: "wraps at 256", data: []byte{0xFF, 0x02}, want: 0x01},
		{name: "many wraps", data: []byte{0xFF, 0xFF, 0xFF, 0xFF}, want: 0xFC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(% x) = 0x%02x, want 0x%02x", tt.data, got, tt.want)
			}
		})
	}
}

func TestChecksumMatchesModularSum(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 7)
	}

	total := 0
	for _, b := range data {
		total += int(b)
	}

	if got := Checksum(data); got != byte(total%256) {
		t.Errorf("Checksum = 0x%02x, want 0x%02x", got, byte(total%256))
	}
}

func TestVerifyChecksum(t *testing.T) {
	good := []byte{0x5A, 0x01, 0x01, 0x03, 0x02, 0x01, 0x08, 0x6A}
	if !VerifyChecksum(good) {
		t.Error("VerifyChecksum(good frame) = false, want true")
	}

	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF
	if VerifyChecksum(bad) {
		t.Error("VerifyChecksum(corrupted frame) = true, want false")
	}

	if VerifyChecksum(nil) {
		t.Error("VerifyChecksum(nil) = true, want false")
	}

	if !VerifyChecksum([]byte{0x00}) {
		t.Error("VerifyChecksum([0x00]) = false, want true (empty prefix sums to 0)")
	}
}
