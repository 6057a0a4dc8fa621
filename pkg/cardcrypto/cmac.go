package cardcrypto

import "crypto/cipher"

// GenerateCMACSubkeys derives SK1/SK2 from block per NIST SP 800-38B,
// matching cmac_generate_subkeys: encrypt an all-zero block, then left-shift
// with carry, XOR-ing in R (0x1B for 8-byte blocks, 0x87 for 16-byte) when
// the shifted-out bit was set.
func GenerateCMACSubkeys(block cipher.Block, blockSize int) (sk1, sk2 []byte) {
	r := byte(0x87)
	if blockSize == 8 {
		r = 0x1B
	}

	l := make([]byte, blockSize)
	block.Encrypt(l, l)

	sk1 = make([]byte, blockSize)
	leftShift1(sk1, l)
	if l[0]&0x80 != 0 {
		sk1[blockSize-1] ^= r
	}

	sk2 = make([]byte, blockSize)
	leftShift1(sk2, sk1)
	if sk1[0]&0x80 != 0 {
		sk2[blockSize-1] ^= r
	}
	return sk1, sk2
}

func leftShift1(dst, src []byte) {
	carry := byte(0)
	for i := len(src) - 1; i >= 0; i-- {
		dst[i] = (src[i] << 1) | carry
		carry = (src[i] >> 7) & 1
	}
}

// CMAC computes the CMAC of data under block, chaining through iv (iv is
// mutated to the final CMAC value, matching cmac()'s in-place ivect use so
// the chain can be resumed by the next plain/MACed exchange in the New
// authentication scheme). The message is copied before padding; the caller's
// slice is never modified.
func CMAC(block cipher.Block, blockSize int, iv []byte, sk1, sk2 []byte, data []byte) []byte {
	padded := make([]byte, paddedLength(len(data), blockSize))
	copy(padded, data)

	if len(data) == 0 || len(data)%blockSize != 0 {
		padded[len(data)] = 0x80
		xorInto(padded[len(padded)-blockSize:], sk2)
	} else {
		xorInto(padded[len(padded)-blockSize:], sk1)
	}

	CBCProcess(block, blockSize, iv, padded, Send, Encypher)

	out := make([]byte, blockSize)
	copy(out, iv)
	return out
}

func paddedLength(nbytes, blockSize int) int {
	if nbytes == 0 || nbytes%blockSize != 0 {
		return (nbytes/blockSize + 1) * blockSize
	}
	return nbytes
}

// TruncateCMAC8 truncates a 16-byte AES CMAC to the 8 leading bytes, the
// convention native DESFire framing uses for CMAC_COMMAND/CMAC_VERIFY
// (distinct from the NTAG424 EV2 secure-messaging MACt convention, which
// instead takes the odd-indexed bytes of the full CMAC).
func TruncateCMAC8(cmac []byte) []byte {
	out := make([]byte, 8)
	copy(out, cmac[:8])
	return out
}
