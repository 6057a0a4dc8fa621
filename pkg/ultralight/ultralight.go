package ultralight

import (
	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/transport"
)

// Subtype distinguishes the three families this package drives. Plain and
// C are known at dispatch time from the SAK/predicate match; the exact
// NTAG21x model (213/215/216) is only known after GetInfo reads the
// storage-size byte from GET_VERSION.
type Subtype int

const (
	SubtypePlain Subtype = iota
	SubtypeC
	SubtypeNTAG21x
)

func (s Subtype) String() string {
	switch s {
	case SubtypePlain:
		return "Ultralight"
	case SubtypeC:
		return "Ultralight-C"
	case SubtypeNTAG21x:
		return "NTAG21x"
	default:
		return "unknown"
	}
}

// Native command opcodes, per §4.9.
const (
	cmdRead        = 0x30
	cmdWrite       = 0xa2
	cmdFastRead    = 0x3a
	cmdCompatWrite = 0xa0
	cmdGetVersion  = 0x60
	cmdAuth        = 0x1b
	cmdReadSig     = 0x3c
)

const (
	pageSize = 4
	maxPages = 0x30 + 1 // Ultralight-C range; plain UL uses a prefix of this, higher NTAG215/216 pages are not cached

	// Default last-page limits until GetInfo narrows an NTAG21x tag to its
	// exact model, per §4.9's storage-size-byte table.
	lastPagePlainUL = 0x0f
	lastPageULC     = 0x2c
	lastPageNTAG213 = 0x2c
	lastPageNTAG215 = 0x86
	lastPageNTAG216 = 0xe6
)

// NTAGModel names a detected NTAG21x storage size.
type NTAGModel int

const (
	NTAGUnknown NTAGModel = iota
	NTAG213
	NTAG215
	NTAG216
)

// Tag is a connected Ultralight/Ultralight-C/NTAG21x target: 4-byte page
// I/O through a rolling read cache, generalized from pkg/classic's Tag
// cache-and-transceive shape to this family's page-oriented command set.
type Tag struct {
	card    transport.Card
	subtype Subtype
	model   NTAGModel
	lastPage byte

	cache      [maxPages][pageSize]byte
	cacheValid [maxPages]bool
}

// New wraps an already-selected transport.Card. subtype is the coarse
// family the dispatcher matched (Plain/C/NTAG21x); NTAG21x's exact model
// and last-page limit are only known after GetInfo.
func New(card transport.Card, subtype Subtype) *Tag {
	t := &Tag{card: card, subtype: subtype}
	switch subtype {
	case SubtypeC:
		t.lastPage = lastPageULC
	case SubtypeNTAG21x:
		t.lastPage = lastPageNTAG213 // narrowed by GetInfo
	default:
		t.lastPage = lastPagePlainUL
	}
	return t
}

// Subtype reports the family this tag was dispatched as.
func (t *Tag) Subtype() Subtype { return t.subtype }

// Model reports the NTAG21x storage size GetInfo detected, or NTAGUnknown
// before GetInfo has run or for non-NTAG tags.
func (t *Tag) Model() NTAGModel { return t.model }

func (t *Tag) transceive(cmd byte, args []byte) ([]byte, error) {
	apdu := append([]byte{cmd}, args...)
	resp, err := t.card.Transmit(apdu)
	if err != nil {
		return nil, carderr.Wrap(carderr.KindTransport, err, "ultralight transceive")
	}
	// A 1-byte answer is a 4-bit ACK (0x0A) or NAK.
	if len(resp) == 1 {
		if resp[0] == 0x0a {
			return nil, nil
		}
		return nil, carderr.WithRaw(uint16(resp[0]), "ultralight command NAKed")
	}
	return resp, nil
}

// invalidate clears page's cache entry (and is a no-op if page is out of
// the cache's backing range).
func (t *Tag) invalidate(page byte) {
	if int(page) < len(t.cacheValid) {
		t.cacheValid[page] = false
	}
}

// Read returns page's 4 bytes, filling the 4-page run starting at page
// (with wraparound past lastPage) from the cache when present.
func (t *Tag) Read(page byte) ([4]byte, error) {
	if int(page) < len(t.cacheValid) && t.cacheValid[page] {
		return t.cache[page], nil
	}

	body, err := t.transceive(cmdRead, []byte{page})
	if err != nil {
		return [4]byte{}, err
	}
	if len(body) < 16 {
		return [4]byte{}, carderr.Newf(carderr.KindIntegrity, "ultralight read returned %d bytes, want 16", len(body))
	}

	for i := 0; i < 4; i++ {
		p := page + byte(i)
		if int(p) > int(t.lastPage) {
			p -= t.lastPage + 1 // wrap around, per §4.9's cache rule
		}
		if int(p) < len(t.cacheValid) {
			copy(t.cache[p][:], body[i*4:i*4+4])
			t.cacheValid[p] = true
		}
	}
	var out [4]byte
	copy(out[:], body[0:4])
	return out, nil
}

// Write writes one 4-byte page and invalidates its cache entry.
func (t *Tag) Write(page byte, data [4]byte) error {
	_, err := t.transceive(cmdWrite, append([]byte{page}, data[:]...))
	t.invalidate(page)
	return err
}

// CompatWrite writes one page using the 16-byte-padded legacy WRITE
// command some older Ultralight readers require instead of the 4-byte
// native WRITE.
func (t *Tag) CompatWrite(page byte, data [4]byte) error {
	body := make([]byte, 16)
	copy(body, data[:])
	_, err := t.transceive(cmdCompatWrite, append([]byte{page}, body...))
	t.invalidate(page)
	return err
}

// FastRead reads the inclusive page range [start, end] in one frame
// (NTAG only), populating the cache for every page read.
func (t *Tag) FastRead(start, end byte) ([]byte, error) {
	if end < start {
		return nil, carderr.New(carderr.KindInvalidArgument, "ultralight fast read: end before start")
	}
	body, err := t.transceive(cmdFastRead, []byte{start, end})
	if err != nil {
		return nil, err
	}
	want := int(end-start+1) * pageSize
	if len(body) < want {
		return nil, carderr.Newf(carderr.KindIntegrity, "ultralight fast read returned %d bytes, want %d", len(body), want)
	}
	for i := 0; i <= int(end-start); i++ {
		p := start + byte(i)
		if int(p) < len(t.cacheValid) {
			copy(t.cache[p][:], body[i*4:i*4+4])
			t.cacheValid[p] = true
		}
	}
	return body[:want], nil
}

// Version is GET_VERSION's 8-byte parsed response.
type Version struct {
	VendorID       byte
	Type           byte
	SubType        byte
	MajorVersion   byte
	MinorVersion   byte
	StorageSize    byte
	ProtocolType   byte
}

// GetVersion sends GET_VERSION and, for an NTAG21x tag, narrows Model and
// lastPage from the storage-size byte.
func (t *Tag) GetVersion() (Version, error) {
	body, err := t.transceive(cmdGetVersion, nil)
	if err != nil {
		return Version{}, err
	}
	if len(body) < 8 {
		return Version{}, carderr.Newf(carderr.KindIntegrity, "ultralight get_version returned %d bytes, want 8", len(body))
	}
	v := Version{
		VendorID:     body[1],
		Type:         body[2],
		SubType:      body[3],
		MajorVersion: body[4],
		MinorVersion: body[5],
		StorageSize:  body[6],
		ProtocolType: body[7],
	}
	if t.subtype == SubtypeNTAG21x {
		switch v.StorageSize {
		case 0x0f:
			t.model, t.lastPage = NTAG213, lastPageNTAG213
		case 0x11:
			t.model, t.lastPage = NTAG215, lastPageNTAG215
		case 0x13:
			t.model, t.lastPage = NTAG216, lastPageNTAG216
		}
	}
	return v, nil
}

// ReadSignature reads the NTAG originality-signature page (NTAG only).
func (t *Tag) ReadSignature() ([32]byte, error) {
	var out [32]byte
	body, err := t.transceive(cmdReadSig, []byte{0x00})
	if err != nil {
		return out, err
	}
	if len(body) < 32 {
		return out, carderr.Newf(carderr.KindIntegrity, "ultralight read_sig returned %d bytes, want 32", len(body))
	}
	copy(out[:], body)
	return out, nil
}

// Authenticate sends AUTH|pwd and verifies the returned PACK matches
// expectedPack. Per §4.9, success is defined entirely by the PACK
// comparison; a NAK in place of the PACK is reported as AccessDenied too.
func (t *Tag) Authenticate(pwd [4]byte, expectedPack [2]byte) error {
	body, err := t.transceive(cmdAuth, pwd[:])
	if err != nil {
		if carderr.IsCardError(err) {
			return carderr.Wrap(carderr.KindAccessDenied, err, "ultralight password authentication failed")
		}
		return err
	}
	if len(body) < 2 {
		return carderr.New(carderr.KindIntegrity, "ultralight auth returned no PACK")
	}
	if body[0] != expectedPack[0] || body[1] != expectedPack[1] {
		return carderr.New(carderr.KindAccessDenied, "ultralight password authentication failed")
	}
	return nil
}
