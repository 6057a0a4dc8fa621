package ultralight

import "github.com/barnettlynn/gofreefare/pkg/carderr"

// NTAG21x configuration-page offsets relative to lastPage, fixed across
// all three detected models (CFG0, CFG1, PWD, PACK occupy the last four
// pages in that order).
const (
	offsetCFG0 = 3
	offsetCFG1 = 2
	offsetPWD  = 1
	offsetPACK = 0

	bitProtection = 0x80 // CFG1 byte 0, PROT bit
)

func (t *Tag) requireNTAG() error {
	if t.subtype != SubtypeNTAG21x {
		return carderr.New(carderr.KindInvalidState, "ultralight: configuration pages require an NTAG21x tag")
	}
	return nil
}

func (t *Tag) cfg0Page() byte { return t.lastPage - offsetCFG0 }
func (t *Tag) cfg1Page() byte { return t.lastPage - offsetCFG1 }
func (t *Tag) pwdPage() byte  { return t.lastPage - offsetPWD }
func (t *Tag) packPage() byte { return t.lastPage - offsetPACK }

// GetInfo reads GET_VERSION and reports the detected NTAG21x model,
// matching the public API's get_info name (§6.2).
func (t *Tag) GetInfo() (Version, NTAGModel, error) {
	v, err := t.GetVersion()
	return v, t.model, err
}

// SetAuth0 writes page to AUTH0 (the first page number requiring
// authentication); any page at or above this boundary is protected.
// Writing lastPage+1 removes protection entirely, per S6.
func (t *Tag) SetAuth0(page byte) error {
	if err := t.requireNTAG(); err != nil {
		return err
	}
	cur, err := t.Read(t.cfg0Page())
	if err != nil {
		return err
	}
	cur[0] = page
	return t.Write(t.cfg0Page(), cur)
}

// Auth0 returns the currently configured AUTH0 boundary page.
func (t *Tag) Auth0() (byte, error) {
	if err := t.requireNTAG(); err != nil {
		return 0, err
	}
	cfg0, err := t.Read(t.cfg0Page())
	if err != nil {
		return 0, err
	}
	return cfg0[0], nil
}

// SetPassword writes the 4-byte password page.
func (t *Tag) SetPassword(pwd [4]byte) error {
	if err := t.requireNTAG(); err != nil {
		return err
	}
	return t.Write(t.pwdPage(), pwd)
}

// SetPack writes the 2-byte PACK into the low half of the PACK/RFUI page,
// preserving the RFUI bytes already stored there.
func (t *Tag) SetPack(pack [2]byte) error {
	if err := t.requireNTAG(); err != nil {
		return err
	}
	cur, err := t.Read(t.packPage())
	if err != nil {
		return err
	}
	cur[0], cur[1] = pack[0], pack[1]
	return t.Write(t.packPage(), cur)
}

// AccessEnable sets CFG1's PROT bit, requiring authentication for both
// reads and writes at or above AUTH0 (rather than writes only).
func (t *Tag) AccessEnable() error { return t.setProtectionBit(true) }

// AccessDisable clears CFG1's PROT bit, requiring authentication for
// writes only.
func (t *Tag) AccessDisable() error { return t.setProtectionBit(false) }

func (t *Tag) setProtectionBit(enable bool) error {
	if err := t.requireNTAG(); err != nil {
		return err
	}
	cur, err := t.Read(t.cfg1Page())
	if err != nil {
		return err
	}
	if enable {
		cur[0] |= bitProtection
	} else {
		cur[0] &^= bitProtection
	}
	return t.Write(t.cfg1Page(), cur)
}
