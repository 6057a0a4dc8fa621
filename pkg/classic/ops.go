package classic

import (
	"log/slog"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/transport"
)

// PC/SC Part 3 contactless-storage-card pseudo-APDU instruction bytes.
const (
	insLoadKeys        = 0x82
	insGeneralAuth     = 0x86
	insReadBinary      = 0xB0
	insUpdateBinary    = 0xD6
	loadKeysStructure  = 0x00 // plain key, volatile memory
	generalAuthVersion = 0x01
)

// Tag is a connected MIFARE Classic target.
type Tag struct {
	card                   transport.Card
	lastAuthKeyType        KeyType
	cachedTrailer          BlockNumber
	cachedAccessBitsValid  bool
	cachedSectorAccessBits uint16
	cachedBlockNum         BlockNumber
	cachedBlockAccessBits  AccessBits
}

// New wraps an already-selected transport.Card as a Classic tag.
func New(card transport.Card) *Tag {
	return &Tag{card: card, cachedTrailer: -1, cachedBlockNum: -1}
}

func (t *Tag) transceive(apdu []byte) ([]byte, error) {
	body, sw, err := transport.Transceive(t.card, apdu)
	if err != nil {
		return nil, carderr.Wrap(carderr.KindTransport, err, "classic transceive")
	}
	if sw != 0x9000 {
		return nil, carderr.WithRaw(sw, "classic command failed")
	}
	return body, nil
}

// Authenticate loads a 6-byte key into the reader's volatile key store and
// runs General Authenticate against block.
func (t *Tag) Authenticate(block BlockNumber, key [6]byte, keyType KeyType) error {
	keyNum := byte(0x00)
	apdu := append([]byte{0xFF, insLoadKeys, loadKeysStructure, keyNum, 0x06}, key[:]...)
	if _, err := t.transceive(apdu); err != nil {
		return err
	}

	keyRef := byte(0x60) // Key A
	if keyType == KeyB {
		keyRef = 0x61
	}
	auth := []byte{0xFF, insGeneralAuth, 0x00, 0x00, 0x05, generalAuthVersion, 0x00, byte(block), keyRef, keyNum}
	if _, err := t.transceive(auth); err != nil {
		return carderr.Wrap(carderr.KindAccessDenied, err, "classic authenticate")
	}
	t.lastAuthKeyType = keyType
	t.cachedTrailer = -1
	t.cachedAccessBitsValid = false
	slog.Debug("classic: authenticated, access-bits cache invalidated", "block", block, "key_type", keyType)
	return nil
}

// Read reads one 16-byte block.
func (t *Tag) Read(block BlockNumber) ([16]byte, error) {
	var out [16]byte
	apdu := []byte{0xFF, insReadBinary, 0x00, byte(block), 0x10}
	body, err := t.transceive(apdu)
	if err != nil {
		return out, err
	}
	if len(body) != 16 {
		return out, carderr.Newf(carderr.KindIntegrity, "classic read returned %d bytes, want 16", len(body))
	}
	copy(out[:], body)
	return out, nil
}

// Write writes one 16-byte block.
func (t *Tag) Write(block BlockNumber, data [16]byte) error {
	apdu := append([]byte{0xFF, insUpdateBinary, 0x00, byte(block), 0x10}, data[:]...)
	_, err := t.transceive(apdu)
	return err
}

// InitValue writes block as a value block encoding value at address adr.
func (t *Tag) InitValue(block BlockNumber, value int32, adr byte) error {
	var b [16]byte
	uv := uint32(value)
	b[0], b[1], b[2], b[3] = byte(uv), byte(uv>>8), byte(uv>>16), byte(uv>>24)
	nv := ^uv
	b[4], b[5], b[6], b[7] = byte(nv), byte(nv>>8), byte(nv>>16), byte(nv>>24)
	b[8], b[9], b[10], b[11] = b[0], b[1], b[2], b[3]
	b[12] = adr
	b[13] = ^adr
	b[14] = adr
	b[15] = ^adr
	return t.Write(block, b)
}

// ReadValue reads a value block, verifying its triple-redundant encoding.
func (t *Tag) ReadValue(block BlockNumber) (value int32, adr byte, err error) {
	b, err := t.Read(block)
	if err != nil {
		return 0, 0, err
	}
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	vInv := uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24
	v2 := uint32(b[8]) | uint32(b[9])<<8 | uint32(b[10])<<16 | uint32(b[11])<<24
	if (v^(^vInv)) != 0 || v != v2 {
		return 0, 0, carderr.New(carderr.KindIntegrity, "value block value redundancy mismatch")
	}
	a, aInv, a2, a2Inv := b[12], b[13], b[14], b[15]
	if (a^(^aInv)) != 0 || a != a2 || aInv != a2Inv {
		return 0, 0, carderr.New(carderr.KindIntegrity, "value block address redundancy mismatch")
	}
	return int32(v), a, nil
}

// value-block arithmetic command opcodes.
const (
	cmdIncrement = 0xC1
	cmdDecrement = 0xC0
	cmdRestore   = 0xC2
	cmdTransfer  = 0xB0
)

func (t *Tag) valueCmd(cmd byte, block BlockNumber, delta int32) error {
	d := uint32(delta)
	apdu := []byte{0xFF, cmd, 0x00, byte(block), byte(d), byte(d >> 8), byte(d >> 16), byte(d >> 24)}
	_, err := t.transceive(apdu)
	return err
}

func (t *Tag) Increment(block BlockNumber, delta int32) error { return t.valueCmd(cmdIncrement, block, delta) }
func (t *Tag) Decrement(block BlockNumber, delta int32) error { return t.valueCmd(cmdDecrement, block, delta) }
func (t *Tag) Restore(block BlockNumber) error {
	apdu := []byte{0xFF, cmdRestore, 0x00, byte(block)}
	_, err := t.transceive(apdu)
	return err
}
func (t *Tag) Transfer(block BlockNumber) error {
	apdu := []byte{0xFF, cmdTransfer, 0x00, byte(block)}
	_, err := t.transceive(apdu)
	return err
}

// getBlockAccessBits fetches and caches the access-bits triplet governing
// block, reading its sector's trailer if not already cached.
func (t *Tag) getBlockAccessBits(block BlockNumber) (AccessBits, error) {
	if block == 0 {
		return 0, carderr.New(carderr.KindInvalidArgument, "manufacturer block has no well-defined access bits")
	}

	trailer := SectorLastBlock(BlockSector(block))

	if !t.cachedAccessBitsValid || t.cachedTrailer != trailer {
		data, err := t.Read(trailer)
		if err != nil {
			return 0, err
		}
		sectorBitsInv := uint16(data[6]) | (uint16(data[7]&0x0f) << 8) | 0xf000
		sectorBits := (uint16(data[7]&0xf0) >> 4) | (uint16(data[8]) << 4)
		if sectorBits^(^sectorBitsInv) != 0 {
			return 0, carderr.New(carderr.KindIntegrity, "sector locked: access-bit redundancy mismatch")
		}
		t.cachedTrailer = trailer
		t.cachedSectorAccessBits = sectorBits
		t.cachedAccessBitsValid = true
		t.cachedBlockNum = -1
	}

	if t.cachedBlockNum == block {
		return t.cachedBlockAccessBits, nil
	}

	shift := blockAccessBitsShift(block, trailer)
	mask := uint16(0x0111) << shift
	var bits AccessBits
	if t.cachedSectorAccessBits&mask&0x000f != 0 {
		bits |= 0x01
	}
	if t.cachedSectorAccessBits&mask&0x00f0 != 0 {
		bits |= 0x02
	}
	if t.cachedSectorAccessBits&mask&0x0f00 != 0 {
		bits |= 0x04
	}
	t.cachedBlockNum = block
	t.cachedBlockAccessBits = bits
	return bits, nil
}

// GetDataBlockPermission reports whether the tag's last authentication key
// grants permission on a data block (not the trailer).
func (t *Tag) GetDataBlockPermission(block BlockNumber, permission byte) (bool, error) {
	bits, err := t.getBlockAccessBits(block)
	if err != nil {
		return false, err
	}
	if t.cachedTrailer == block {
		return false, carderr.New(carderr.KindInvalidArgument, "block is a trailer, not a data block")
	}
	return DataBlockPermission(bits, permission, t.lastAuthKeyType), nil
}

// GetTrailerBlockPermission reports whether the tag's last authentication
// key grants permission on the trailer block itself.
func (t *Tag) GetTrailerBlockPermission(block BlockNumber, permission uint16) (bool, error) {
	bits, err := t.getBlockAccessBits(block)
	if err != nil {
		return false, err
	}
	if t.cachedTrailer != block {
		return false, carderr.New(carderr.KindInvalidArgument, "block is not a trailer")
	}
	return TrailerBlockPermission(bits, permission, t.lastAuthKeyType), nil
}

// DefaultTrailer is the factory-default trailer: both keys all-FF, access
// bits 0xFF0780, GPB 0x69.
var DefaultTrailer = [16]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0x07, 0x80,
	0x69,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// FormatSector zeroes every data block in sector and resets its trailer to
// DefaultTrailer, after verifying the currently authenticated key grants
// write permission on every block touched.
func (t *Tag) FormatSector(sector SectorNumber) error {
	first := SectorFirstBlock(sector)
	last := SectorLastBlock(sector)
	if first == 0 {
		first = 1 // manufacturer block is read-only
	}

	for n := first; n < last; n++ {
		ok, err := t.GetDataBlockPermission(n, PermWrite)
		if err != nil {
			return err
		}
		if !ok {
			return carderr.New(carderr.KindAccessDenied, "insufficient permission to write data block during format")
		}
	}
	for _, p := range []uint16{PermWriteKeyA, PermWriteAccessBits, PermWriteKeyB} {
		ok, err := t.GetTrailerBlockPermission(last, p)
		if err != nil {
			return err
		}
		if !ok {
			return carderr.New(carderr.KindAccessDenied, "insufficient permission to write trailer during format")
		}
	}

	var zero [16]byte
	for n := first; n < last; n++ {
		if err := t.Write(n, zero); err != nil {
			return err
		}
	}
	return t.Write(last, DefaultTrailer)
}
