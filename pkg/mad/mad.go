package mad

import (
	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/cardcrypto"
	"github.com/barnettlynn/gofreefare/pkg/classic"
)

const (
	sector0x00AIDs = 15
	sector0x10AIDs = 23
	firstSector    = 1
)

// AID is a 2-byte MAD application identifier.
type AID struct {
	FunctionClusterCode byte
	ApplicationCode     byte
}

var (
	// FreeAID marks a sector as unallocated.
	FreeAID = AID{0x00, 0x00}
	// DefectAID marks a sector whose keys are destroyed/unknown.
	DefectAID = AID{0x00, 0x01}
	// ReservedAID marks a sector reserved for the MAD itself.
	ReservedAID = AID{0x00, 0x02}
	// CardHolderAID marks a sector holding card-holder ASCII info.
	CardHolderAID = AID{0x00, 0x04}
	// NotApplicableAID marks a sector above the card's memory size.
	NotApplicableAID = AID{0x00, 0x05}
	// NFCForumAID is the NDEF/NFC Forum application identifier.
	NFCForumAID = AID{0xe1, 0x03}
)

// PublicKeyA is the well-known key A used to authenticate MAD sectors.
var PublicKeyA = [6]byte{0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5}

// MAD holds a parsed MIFARE Application Directory. Version 1 covers
// sectors 1-15 via sector_0x00's 15 AID slots; version 2 additionally
// covers sectors 17-39 (sector 16 is reserved for the directory itself)
// via sector_0x10's 23 AID slots.
type MAD struct {
	Version byte
	Info00  byte // card-publisher-sector byte for sectors 1-15
	Info10  byte // card-publisher-sector byte for sectors 17-39
	aids00  [sector0x00AIDs]AID
	aids10  [sector0x10AIDs]AID
}

// New allocates an empty MAD of the given version (1 or 2).
func New(version byte) *MAD {
	return &MAD{Version: version}
}

// crc8 computes the NXP CRC-8 (preset 0xC7, poly 0x1D) over an info byte
// followed by AIDs in (application_code, function_cluster_code) byte
// order, matching sector_0x00_crc8/sector_0x10_crc8 exactly. The bit-level
// CRC itself is shared with the rest of the module via cardcrypto.CRC8MAD;
// this function only assembles the byte stream in MAD's specific order.
func crc8(info byte, aids []AID) byte {
	data := make([]byte, 0, 1+2*len(aids))
	data = append(data, info)
	for _, a := range aids {
		data = append(data, a.ApplicationCode, a.FunctionClusterCode)
	}
	return cardcrypto.CRC8MAD(data)
}

func (m *MAD) crc00() byte { return crc8(m.Info00, m.aids00[:]) }
func (m *MAD) crc10() byte { return crc8(m.Info10, m.aids10[:]) }

// sectorReserved reports whether sector 0 or 16 (the MAD's own sectors)
// is being addressed.
func sectorReserved(sector classic.SectorNumber) bool {
	return sector == 0 || sector == 0x10
}

// GetAID returns the application identifier registered for sector.
func (m *MAD) GetAID(sector classic.SectorNumber) (AID, error) {
	if sector < 1 || sector == 0x10 || sector > 0x27 {
		return AID{}, carderr.New(carderr.KindInvalidArgument, "mad: sector out of range for an AID slot")
	}
	if sector > 0x0f {
		if m.Version != 2 {
			return AID{}, carderr.New(carderr.KindInvalidArgument, "mad: sector requires a v2 MAD")
		}
		return m.aids10[sector-0x0f-2], nil
	}
	return m.aids00[sector-1], nil
}

// SetAID registers aid for sector.
func (m *MAD) SetAID(sector classic.SectorNumber, aid AID) error {
	if sector < 1 || sector == 0x10 || sector > 0x27 {
		return carderr.New(carderr.KindInvalidArgument, "mad: sector out of range for an AID slot")
	}
	if sector > 0x0f {
		if m.Version != 2 {
			return carderr.New(carderr.KindInvalidArgument, "mad: sector requires a v2 MAD")
		}
		m.aids10[sector-0x0f-2] = aid
		return nil
	}
	m.aids00[sector-1] = aid
	return nil
}

// CardPublisherSector returns the sector number of the card publisher, as
// encoded in the low 6 bits of Info00.
func (m *MAD) CardPublisherSector() classic.SectorNumber {
	return classic.SectorNumber(m.Info00 & 0x3f)
}

// SetCardPublisherSector sets the card-publisher sector, enforcing the
// per-version bound (v1: sectors up to 0x0F; v2: up to 0x27). The original
// C bounds check mis-parenthesizes `(v==2 && cps>0x27) | (v==1) && (cps>0x0F)`
// — this uses the intended fully short-circuit `||`-of-`&&` form instead.
func (m *MAD) SetCardPublisherSector(cps classic.SectorNumber) error {
	if (m.Version == 2 && cps > 0x27) || (m.Version == 1 && cps > 0x0f) {
		return carderr.New(carderr.KindInvalidArgument, "mad: card publisher sector out of range for this MAD version")
	}
	m.Info00 = byte(cps) & 0x3f
	return nil
}
