package cardcrypto

import "errors"

// PadISO9797M2 pads data to a multiple of blockSize with 0x80 followed by
// zeros (ISO/IEC 9797-1 padding method 2), always adding at least one byte
// of padding: input that is already a multiple of blockSize grows by a full
// block of 0x80 00 .. 00.
func PadISO9797M2(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// UnpadISO9797M2 strips ISO/IEC 9797-1 method-2 padding, scanning back over
// trailing zero bytes to the 0x80 marker.
func UnpadISO9797M2(data []byte) ([]byte, error) {
	idx := len(data) - 1
	for idx >= 0 && data[idx] == 0x00 {
		idx--
	}
	if idx < 0 || data[idx] != 0x80 {
		return nil, errors.New("cardcrypto: bad ISO 9797-1 padding")
	}
	return data[:idx], nil
}

// RotateLeft1 returns a new slice with in rotated left by one byte:
// rol(b0 b1 ... bn-1) = b1 ... bn-1 b0.
func RotateLeft1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	copy(out, in[1:])
	out[len(in)-1] = in[0]
	return out
}

// RotateRight1 returns a new slice with in rotated right by one byte.
func RotateRight1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	out[0] = in[len(in)-1]
	copy(out[1:], in[:len(in)-1])
	return out
}
