package protocol

// Checksum returns the 8-bit additive checksum of data: the sum of every
// byte truncated to 8 bits. Callers pass every frame byte except the
// checksum slot itself. The empty sequence sums to 0.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// VerifyChecksum reports whether the last byte of frame equals the checksum
// of the bytes before it. Frames shorter than one byte never verify.
func VerifyChecksum(frame []byte) bool {
	if len(frame) < 1 {
		return false
	}
	last := len(frame) - 1
	return Checksum(frame[:last]) == frame[last]
}
