package cardtag

import (
	"bytes"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/classic"
	"github.com/barnettlynn/gofreefare/pkg/desfire"
	"github.com/barnettlynn/gofreefare/pkg/transport"
	"github.com/barnettlynn/gofreefare/pkg/ultralight"
)

// Family names a supported card variant.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyClassic1K
	FamilyClassic4K
	FamilyUltralight
	FamilyUltralightC
	FamilyNTAG21x
	FamilyDESFire
	FamilyFeliCa
)

func (f Family) String() string {
	switch f {
	case FamilyClassic1K:
		return "MIFARE Classic 1K"
	case FamilyClassic4K:
		return "MIFARE Classic 4K"
	case FamilyUltralight:
		return "MIFARE Ultralight"
	case FamilyUltralightC:
		return "MIFARE Ultralight C"
	case FamilyNTAG21x:
		return "NTAG21x"
	case FamilyDESFire:
		return "MIFARE DESFire"
	case FamilyFeliCa:
		return "FeliCa"
	default:
		return "unknown"
	}
}

// Modulation names the ISO/IEC 14443 (or JIS X 6319-4) modulation scheme a
// target answered on.
type Modulation int

const (
	ModulationTypeA Modulation = iota
	ModulationTypeB
	ModulationFeliCa
)

// TargetInfo is the low-level descriptor a PC/SC reader hands back after
// anticollision: the bytes a dispatcher has to work with before it knows
// which card family it is holding.
type TargetInfo struct {
	Modulation Modulation
	UID        []byte
	SAK        byte
	ATS        []byte
}

// Target is the result of a successful dispatch: the detected family plus
// whichever family-specific state was allocated for it. Exactly one of
// Classic/Ultralight/DESFire is non-nil, matching Family.
type Target struct {
	Family Family
	UID    []byte
	ATS    []byte

	Classic    *classic.Tag
	Ultralight *ultralight.Tag
	DESFire    *desfire.Session
}

// predicate runs an extra on-card probe to disambiguate targets whose SAK
// and ATS alone don't distinguish them (Ultralight vs Ultralight-C vs
// NTAG21x all answer SAK 0x00 with no ATS).
type predicate func(card transport.Card) bool

type signature struct {
	family     Family
	modulation Modulation
	sak        byte
	hasSAK     bool
	atsPrefix  []byte
	predicate  predicate
}

func (s signature) matches(card transport.Card, info TargetInfo) bool {
	if s.modulation != info.Modulation {
		return false
	}
	if s.hasSAK && s.sak != info.SAK {
		return false
	}
	if len(s.atsPrefix) > 0 && !bytes.HasPrefix(info.ATS, s.atsPrefix) {
		return false
	}
	if s.predicate != nil && !s.predicate(card) {
		return false
	}
	return true
}

// table lists supported signatures in priority order; the first match
// wins. NTAG21x and Ultralight-C are checked (via predicate) ahead of
// plain Ultralight, since all three share SAK 0x00 with no ATS.
var table = []signature{
	{family: FamilyClassic1K, modulation: ModulationTypeA, sak: 0x08, hasSAK: true},
	{family: FamilyClassic4K, modulation: ModulationTypeA, sak: 0x18, hasSAK: true},
	{family: FamilyDESFire, modulation: ModulationTypeA, sak: 0x20, hasSAK: true},
	{family: FamilyNTAG21x, modulation: ModulationTypeA, sak: 0x00, hasSAK: true, predicate: probeGetVersion},
	{family: FamilyUltralightC, modulation: ModulationTypeA, sak: 0x00, hasSAK: true, predicate: probeUltralightCAuth},
	{family: FamilyUltralight, modulation: ModulationTypeA, sak: 0x00, hasSAK: true},
	{family: FamilyFeliCa, modulation: ModulationFeliCa},
}

// Dispatch matches info against the signature table and allocates the
// matched family's session state over card.
func Dispatch(card transport.Card, info TargetInfo) (*Target, error) {
	for _, s := range table {
		if !s.matches(card, info) {
			continue
		}

		t := &Target{Family: s.family, UID: info.UID, ATS: info.ATS}
		switch s.family {
		case FamilyClassic1K, FamilyClassic4K:
			t.Classic = classic.New(card)
		case FamilyUltralight:
			t.Ultralight = ultralight.New(card, ultralight.SubtypePlain)
		case FamilyUltralightC:
			t.Ultralight = ultralight.New(card, ultralight.SubtypeC)
		case FamilyNTAG21x:
			t.Ultralight = ultralight.New(card, ultralight.SubtypeNTAG21x)
		case FamilyDESFire:
			t.DESFire = desfire.New(card)
		case FamilyFeliCa:
			return nil, carderr.New(carderr.KindUnknownTagType, "cardtag: FeliCa signature matched but has no engine in this build")
		}
		return t, nil
	}

	return nil, carderr.New(carderr.KindUnknownTagType, "cardtag: no known signature matches this target")
}

// probeUltralightCAuth sends a 3DES ISO authenticate-0 command (the same
// 0x1A opcode DESFire ISO authentication uses) and treats an additional-
// frame response carrying an 8-byte encrypted challenge as evidence of
// Ultralight-C; plain Ultralight has no such command and answers with an
// error status instead.
func probeUltralightCAuth(card transport.Card) bool {
	resp, err := card.Transmit([]byte{0x1a, 0x00})
	if err != nil || len(resp) < 2 {
		return false
	}
	status := resp[0]
	body := resp[1:]
	return status == 0xaf && len(body) == 8
}

// probeGetVersion sends GET_VERSION (0x60) with raw framing; a non-error,
// 8-byte response identifies an NTAG21x (plain Ultralight and Ultralight-C
// don't implement this command).
func probeGetVersion(card transport.Card) bool {
	resp, err := card.Transmit([]byte{0x60})
	if err != nil {
		return false
	}
	return len(resp) == 8
}
