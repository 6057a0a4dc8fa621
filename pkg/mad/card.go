package mad

import (
	"log/slog"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/classic"
)

// Read authenticates sector 0 with the MAD public key and loads the
// directory, validating its CRC-8 (and, for v2, authenticating and
// validating sector 16 too).
func Read(tag *classic.Tag) (*MAD, error) {
	if err := tag.Authenticate(3, PublicKeyA, classic.KeyA); err != nil {
		return nil, err
	}

	trailer, err := tag.Read(3)
	if err != nil {
		return nil, err
	}
	gpb := trailer[9]
	if gpb&0x80 == 0 {
		return nil, carderr.New(carderr.KindInvalidState, "mad: MAD not available (DA bit clear)")
	}

	m := &MAD{}
	switch gpb & 0x03 {
	case 0x01:
		m.Version = 1
	case 0x02:
		m.Version = 2
	default:
		return nil, carderr.New(carderr.KindInvalidState, "mad: MAD enabled but version not supported")
	}

	b1, err := tag.Read(1)
	if err != nil {
		return nil, err
	}
	b2, err := tag.Read(2)
	if err != nil {
		return nil, err
	}
	m.Info00 = b1[1]
	unpackAIDs(append(b1[2:16], b2[:]...), m.aids00[:])

	if m.crc00() != b1[0] {
		return nil, carderr.New(carderr.KindIntegrity, "mad: sector 0 CRC mismatch")
	}

	if m.Version == 2 {
		if err := tag.Authenticate(0x43, PublicKeyA, classic.KeyA); err != nil {
			return nil, err
		}
		b40, err := tag.Read(0x40)
		if err != nil {
			return nil, err
		}
		b41, err := tag.Read(0x41)
		if err != nil {
			return nil, err
		}
		b42, err := tag.Read(0x42)
		if err != nil {
			return nil, err
		}
		m.Info10 = b40[1]
		body := append(append(append([]byte{}, b40[2:16]...), b41[:]...), b42[:]...)
		unpackAIDs(body, m.aids10[:])

		if m.crc10() != b40[0] {
			return nil, carderr.New(carderr.KindIntegrity, "mad: sector 16 CRC mismatch")
		}
	}

	slog.Debug("mad: read", "version", m.Version)
	return m, nil
}

// unpackAIDs/packAIDs mirror struct MadAid's in-memory field order
// (function_cluster_code then application_code) — the storage order, which
// is distinct from crc8's calculation order (application_code then
// function_cluster_code); both are taken verbatim from mad.c.
func unpackAIDs(body []byte, out []AID) {
	for i := range out {
		if 2*i+1 >= len(body) {
			break
		}
		out[i] = AID{FunctionClusterCode: body[2*i], ApplicationCode: body[2*i+1]}
	}
}

func packAIDs(aids []AID) []byte {
	out := make([]byte, 2*len(aids))
	for i, a := range aids {
		out[2*i] = a.FunctionClusterCode
		out[2*i+1] = a.ApplicationCode
	}
	return out
}

// Write rewrites the MAD's data blocks and trailers using keyB00/keyB10
// (the latter only consulted for a v2 MAD), requiring that Key B on each
// sector grants write permission on the data blocks and on the trailer's
// key-A and access-bits fields.
func Write(tag *classic.Tag, m *MAD, keyB00, keyB10 [6]byte) error {
	if err := tag.Authenticate(0, keyB00, classic.KeyB); err != nil {
		return err
	}
	if err := requirePermissions(tag, 1, 2, 3, classic.KeyB); err != nil {
		return err
	}

	gpb := byte(0x80 | 0x40) // DA=1, MA=1 (multi-application card)
	switch m.Version {
	case 1:
		gpb |= 0x01
	case 2:
		gpb |= 0x02
	}

	if m.Version == 2 {
		trailerSector10 := classic.SectorLastBlock(0x10)
		if err := tag.Authenticate(0x40, keyB10, classic.KeyB); err != nil {
			return err
		}
		if err := requirePermissions(tag, 0x40, 0x41, trailerSector10, classic.KeyB); err != nil {
			return err
		}

		body := append([]byte{m.Info10}, packAIDs(m.aids10[:])...)
		crc := m.crc10()

		block40 := [16]byte{crc}
		copy(block40[1:], body[:15])
		if err := tag.Write(0x40, block40); err != nil {
			return err
		}
		var block41 [16]byte
		copy(block41[:], body[15:31])
		if err := tag.Write(0x41, block41); err != nil {
			return err
		}
		var block42 [16]byte
		copy(block42[:], body[31:])
		if err := tag.Write(0x42, block42); err != nil {
			return err
		}

		trailer := classic.TrailerBlockBytes(PublicKeyA, 0x0, 0x1, 0x1, 0x6, 0x00, keyB10)
		if err := tag.Write(trailerSector10, trailer); err != nil {
			return err
		}
	}

	body := append([]byte{m.Info00}, packAIDs(m.aids00[:])...)
	crc := m.crc00()

	if err := tag.Authenticate(0, keyB00, classic.KeyB); err != nil {
		return err
	}
	block1 := [16]byte{crc}
	copy(block1[1:], body[:15])
	if err := tag.Write(1, block1); err != nil {
		return err
	}
	var block2 [16]byte
	copy(block2[:], body[15:])
	if err := tag.Write(2, block2); err != nil {
		return err
	}

	trailer := classic.TrailerBlockBytes(PublicKeyA, 0x0, 0x1, 0x1, 0x6, gpb, keyB00)
	if err := tag.Write(3, trailer); err != nil {
		return err
	}
	slog.Info("mad: written", "version", m.Version)
	return nil
}

func requirePermissions(tag *classic.Tag, dataBlock1, dataBlock2, trailerBlock classic.BlockNumber, keyType classic.KeyType) error {
	for _, b := range []classic.BlockNumber{dataBlock1, dataBlock2} {
		ok, err := tag.GetDataBlockPermission(b, classic.PermWrite)
		if err != nil {
			return err
		}
		if !ok {
			return carderr.New(carderr.KindAccessDenied, "mad: key B lacks write permission on a MAD data block")
		}
	}
	for _, p := range []uint16{classic.PermWriteKeyA, classic.PermWriteAccessBits} {
		ok, err := tag.GetTrailerBlockPermission(trailerBlock, p)
		if err != nil {
			return err
		}
		if !ok {
			return carderr.New(carderr.KindAccessDenied, "mad: key B lacks write permission on the MAD trailer")
		}
	}
	return nil
}
