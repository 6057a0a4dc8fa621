package classic

// AccessBits is a 3-bit (C1,C2,C3) access-condition code, 0-7.
type AccessBits byte

// KeyType selects which of a sector's two keys authenticated the session.
type KeyType int

const (
	KeyA KeyType = iota
	KeyB
)

// Data-block permission bits, indexed MCAB_* in the original.
const (
	PermIncrement = 1 << iota
	PermDecrement
	PermWrite
	PermRead
)

// Trailer-block permission bits.
const (
	PermWriteKeyB       = 0x001
	PermReadKeyB        = 0x004
	PermWriteAccessBits = 0x010
	PermReadAccessBits  = 0x040
	PermWriteKeyA       = 0x100
	PermReadKeyA        = 0x400
)

// dataAccessPermissions[access_bits] packs, per key type, which of
// read/write/decrement/increment that access-bits value grants on a data
// block: bits 7-4 for key A, bits 3-0 for key B.
var dataAccessPermissions = [8]byte{
	0xff, // 000 default (blank card)
	0x8c, // 001
	0x88, // 010
	0xaf, // 011
	0xaa, // 100
	0x08, // 101
	0x0c, // 110
	0x00, // 111
}

// trailerAccessPermissions[access_bits] packs read/write permission for
// key A, key B, and the access-bits field itself on the trailer block.
var trailerAccessPermissions = [8]uint16{
	0x28a, // 000
	0x1c1, // 001
	0x088, // 010
	0x0c0, // 011
	0x2aa, // 100 default (blank card)
	0x0d0, // 101
	0x1d1, // 110
	0x0c0, // 111
}

// DataBlockPermission reports whether keyType grants permission (one of the
// Perm* data-block bits) on a data block with the given access bits.
func DataBlockPermission(access AccessBits, permission byte, keyType KeyType) bool {
	shift := 0
	if keyType == KeyA {
		shift = 4
	}
	return dataAccessPermissions[access&0x7]&(permission<<shift) != 0
}

// TrailerBlockPermission reports whether keyType grants permission (one of
// the Perm* trailer-block bits) on the trailer block with the given access
// bits.
func TrailerBlockPermission(access AccessBits, permission uint16, keyType KeyType) bool {
	shift := uint16(0)
	if keyType == KeyA {
		shift = 1
	}
	return trailerAccessPermissions[access&0x7]&(permission<<shift) != 0
}

// DB_AB/TB_AB in the original mask a raw access-bit nibble to 3 bits;
// callers pass already-masked AccessBits values here so no equivalent
// helper is needed.

// TrailerBlockBytes builds the 16-byte trailer block (keyA | access bits |
// GPB | keyB) from three data-block access-bits triplets, the trailer's own
// triplet, and a general purpose byte.
func TrailerBlockBytes(keyA [6]byte, ab0, ab1, ab2, abTrailer AccessBits, gpb byte, keyB [6]byte) [16]byte {
	pack := func(ab AccessBits) uint32 {
		c1 := uint32(ab & 0x1)
		c2 := uint32((ab >> 1) & 0x1)
		c3 := uint32((ab >> 2) & 0x1)
		return (c3 << 8) | (c2 << 4) | c1
	}

	accessBits := pack(ab0) | (pack(ab1) << 1) | (pack(ab2) << 2) | (pack(abTrailer) << 3)
	accessBitsInv := (^accessBits) & 0x00000fff

	packed := (accessBits << 12) | accessBitsInv

	var block [16]byte
	copy(block[0:6], keyA[:])
	block[6] = byte(packed)
	block[7] = byte(packed >> 8)
	block[8] = byte(packed >> 16)
	block[9] = gpb
	copy(block[10:16], keyB[:])
	return block
}
