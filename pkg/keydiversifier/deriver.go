package keydiversifier

import (
	"errors"
	"fmt"

	"github.com/barnettlynn/gofreefare/pkg/cardcrypto"
	"github.com/barnettlynn/gofreefare/pkg/desfirekey"
)

const maxMessageLen = 48

// DIV constants from AN10922 §3.2.
const (
	divAES128  = 0x01
	div2K3DES1 = 0x21
	div2K3DES2 = 0x22
	div3K3DES1 = 0x31
	div3K3DES2 = 0x32
	div3K3DES3 = 0x33
)

// Flags controls opt-in emulation of historical deployment quirks.
type Flags struct {
	// EmulateIssue91 reproduces a once-deployed bug where the AES128 (from
	// a 16-byte master) derivation path ran its CMAC pass twice over a
	// shared, non-reset chaining IV instead of the single zero-IV pass
	// AN10922 specifies. New deployments should leave this false; it
	// exists only so sites that diversified keys under the buggy behaviour
	// can keep deriving the same keys.
	EmulateIssue91 bool
}

// ErrOverflow is returned once the accumulated message would exceed 48
// bytes, and persists until Begin is called again.
var ErrOverflow = errors.New("keydiversifier: message buffer overflow")

// Deriver is a stateful AN10922 diversification builder: construct with
// New, accumulate message bytes with the Update* methods between Begin/End.
type Deriver struct {
	master     *desfirekey.Key
	outputKind desfirekey.Kind
	flags      Flags

	m         [maxMessageLen]byte
	len       int // bytes used in m, including the reserved DIV byte
	overflown bool
}

// New validates the master key / output kind combination per AN10922 and
// prepares a Deriver. Master kind is taken from master.Kind directly
// (DES/2K3DES/3K3DES/AES), not from its cipher block size, since 2K3DES and
// plain DES masters share an 8-byte block size but drive different
// derivation paths. Valid combinations: AES128 output requires an AES
// master; 2K3DES output accepts a DES or 2K3DES master; 3K3DES output
// requires a DES master. Deriving a plain DES output key is not supported —
// AN10922 defines no DIV constant for it.
func New(master *desfirekey.Key, outputKind desfirekey.Kind, flags Flags) (*Deriver, error) {
	switch outputKind {
	case desfirekey.AES:
		if master.Kind != desfirekey.AES {
			return nil, fmt.Errorf("keydiversifier: AES128 output requires an AES master key")
		}
	case desfirekey.K2K3DES:
		if master.Kind != desfirekey.DES && master.Kind != desfirekey.K2K3DES {
			return nil, fmt.Errorf("keydiversifier: 2K3DES output requires a DES or 2K3DES master key")
		}
	case desfirekey.K3K3DES:
		if master.Kind != desfirekey.DES {
			return nil, fmt.Errorf("keydiversifier: 3K3DES output requires a DES master key")
		}
	default:
		return nil, fmt.Errorf("keydiversifier: AN10922 defines no DIV constant for output kind %v", outputKind)
	}

	d := &Deriver{master: master, outputKind: outputKind, flags: flags}
	d.Begin()
	return d, nil
}

// Begin clears the accumulating message and reserves byte 0 for the DIV
// constant end_raw will fill in.
func (d *Deriver) Begin() {
	d.m = [maxMessageLen]byte{}
	d.len = 1
	d.overflown = false
}

// UpdateData appends arbitrary bytes to the message.
func (d *Deriver) UpdateData(data []byte) error {
	if d.overflown {
		return ErrOverflow
	}
	if len(data) > maxMessageLen-d.len {
		d.overflown = true
		return ErrOverflow
	}
	copy(d.m[d.len:], data)
	d.len += len(data)
	return nil
}

// UpdateCstr appends a string's bytes (no trailing NUL) to the message.
func (d *Deriver) UpdateCstr(s string) error {
	return d.UpdateData([]byte(s))
}

// UpdateAID appends a 3-byte little-endian DESFire AID to the message.
func (d *Deriver) UpdateAID(aid [3]byte) error {
	return d.UpdateData(aid[:])
}

// UpdateUID appends a tag UID to the message.
func (d *Deriver) UpdateUID(uid []byte) error {
	return d.UpdateData(uid)
}

// cmacIV runs one CMAC pass over the DIV-prefixed message using the
// supplied starting IV (mutated in place to the resulting CMAC value, so a
// chained call can be made by passing the previous call's iv back in).
func (d *Deriver) cmacIV(divConst byte, iv []byte) []byte {
	d.m[0] = divConst
	block, _ := d.master.Block()
	blockSize := d.master.BlockSize()
	// AN10922 diversification always uses CMAC, never the legacy 4-byte
	// CBC-MAC, regardless of the master key's own authentication scheme —
	// so DES/2K3DES masters (which Key.CMACSubkeys rejects, since they
	// authenticate via CBC-MAC) still get CMAC subkeys generated here.
	sk1, sk2 := cardcrypto.GenerateCMACSubkeys(block, blockSize)
	return cardcrypto.CMAC(block, blockSize, iv, sk1, sk2, d.m[:d.len])
}

// cmacFreshIV runs one CMAC pass from a zero IV, per AN10922 / deriver_cmac.
func (d *Deriver) cmacFreshIV(divConst byte) []byte {
	iv := make([]byte, d.master.BlockSize())
	return d.cmacIV(divConst, iv)
}

// EndRaw runs the CMAC diversification and returns the raw derived bytes:
// 16 for AES128 and for 2K3DES from a DES master, 8 for 2K3DES from a
// 2K3DES master (a single CMAC pass), 24 for 3K3DES. It is an error to call this after an
// Update* call has overflowed the message buffer.
func (d *Deriver) EndRaw() ([]byte, error) {
	if d.overflown {
		return nil, ErrOverflow
	}

	var out []byte

	switch {
	case d.master.Kind == desfirekey.AES && d.outputKind == desfirekey.AES:
		if d.flags.EmulateIssue91 {
			// Historical bug: some deployments ran the AES128 derivation
			// path through two CMAC passes without resetting the chaining
			// IV to zero between them, instead of AN10922's single
			// fresh-IV pass. Reproduced here by chaining the IV from the
			// first call into the second and keeping the second result.
			iv := make([]byte, d.master.BlockSize())
			d.cmacIV(divAES128, iv)
			out = d.cmacIV(divAES128, iv)
		} else {
			out = d.cmacFreshIV(divAES128)
		}
	case d.master.Kind == desfirekey.K2K3DES && d.outputKind == desfirekey.K2K3DES:
		out = d.cmacFreshIV(div2K3DES1)
	case d.master.Kind == desfirekey.DES && d.outputKind == desfirekey.K2K3DES:
		part1 := d.cmacFreshIV(div2K3DES1)
		part2 := d.cmacFreshIV(div2K3DES2)
		out = append(part1, part2...)
	case d.master.Kind == desfirekey.DES && d.outputKind == desfirekey.K3K3DES:
		part1 := d.cmacFreshIV(div3K3DES1)
		part2 := d.cmacFreshIV(div3K3DES2)
		part3 := d.cmacFreshIV(div3K3DES3)
		out = append(append(part1, part2...), part3...)
	default:
		return nil, fmt.Errorf("keydiversifier: AN10922 does not describe this derivation")
	}

	return out, nil
}

// End wraps EndRaw's bytes as a typed key carrying the master key's
// version.
func (d *Deriver) End() (*desfirekey.Key, error) {
	raw, err := d.EndRaw()
	if err != nil {
		return nil, err
	}

	var derived *desfirekey.Key
	switch d.outputKind {
	case desfirekey.AES:
		var b [16]byte
		copy(b[:], raw)
		derived = desfirekey.NewAESKey(b)
	case desfirekey.K2K3DES:
		var b [16]byte
		copy(b[:], raw)
		derived = desfirekey.New2K3DESKey(b)
	case desfirekey.K3K3DES:
		var b [24]byte
		copy(b[:], raw)
		derived = desfirekey.New3K3DESKey(b)
	}

	derived.SetVersion(d.master.Version())
	return derived, nil
}
