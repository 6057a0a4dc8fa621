package mad

import "github.com/barnettlynn/gofreefare/pkg/classic"

func aidEqual(a, b AID) bool {
	return a.FunctionClusterCode == b.FunctionClusterCode && a.ApplicationCode == b.ApplicationCode
}

// Find returns every sector number currently registered to aid, in
// ascending sector order, or nil if aid is not present.
func Find(m *MAD, aid AID) []classic.SectorNumber {
	sMax := classic.SectorNumber(0x0f)
	if m.Version == 2 {
		sMax = 0x27
	}

	var out []classic.SectorNumber
	for s := classic.SectorNumber(firstSector); s <= sMax; s++ {
		if sectorReserved(s) {
			continue
		}
		c, err := m.GetAID(s)
		if err != nil {
			continue
		}
		if aidEqual(c, aid) {
			out = append(out, s)
		}
	}
	return out
}

// Free clears every sector registered to aid back to FreeAID.
func Free(m *MAD, aid AID) {
	for _, s := range Find(m, aid) {
		_ = m.SetAID(s, FreeAID)
	}
}

// Alloc reserves enough sectors to hold size bytes for aid, returning the
// allocated sector numbers in ascending order. Nil is returned if aid is
// already registered, or if there is not enough free space.
//
// Grounded on mifare_application_alloc: a v2 MAD first greedily consumes
// large (15-block, 240-byte) sectors from the top (32-39) as long as at
// least 192 bytes (12*16) remain to place, then falls back to small
// (3-block, 48-byte) sectors from the bottom (1-31). The 192-vs-240
// mismatch between the continuation threshold and the amount actually
// consumed per sector is the original algorithm's behavior, not
// rounded up or corrected here.
func Alloc(m *MAD, aid AID, size int) []classic.SectorNumber {
	if len(Find(m, aid)) > 0 {
		return nil
	}

	var sectorMap [40]bool
	remaining := size

	if m.Version == 2 {
		for sector := classic.SectorNumber(32); remaining >= 12*16 && sector < 40; sector++ {
			c, err := m.GetAID(sector)
			if err != nil {
				continue
			}
			if aidEqual(c, FreeAID) {
				sectorMap[sector] = true
				remaining -= 15 * 16
			}
		}
	}

	sMax := classic.SectorNumber(15)
	if m.Version == 2 {
		sMax = 31
	}
	for sector := classic.SectorNumber(firstSector); remaining > 0 && sector <= sMax; sector++ {
		c, err := m.GetAID(sector)
		if err != nil {
			continue
		}
		if aidEqual(c, FreeAID) {
			sectorMap[sector] = true
			remaining -= 3 * 16
		}
	}

	if remaining > 0 {
		return nil
	}

	var out []classic.SectorNumber
	for s := classic.SectorNumber(firstSector); s < 40; s++ {
		if sectorMap[s] {
			out = append(out, s)
			_ = m.SetAID(s, aid)
		}
	}
	return out
}
