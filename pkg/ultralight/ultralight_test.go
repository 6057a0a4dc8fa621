package ultralight

import (
	"bytes"
	"testing"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
)

// fakeCard models a single NTAG213 worth of pages, dispatching native
// Ultralight/NTAG opcodes the way a real tag would.
type fakeCard struct {
	pages   [lastPageNTAG213 + 1][4]byte
	pwd     [4]byte
	pack    [2]byte
	hasAuth bool
}

func newFakeCard() *fakeCard {
	c := &fakeCard{}
	// CFG0 defaults AUTH0 to one past the last page (no protection).
	c.pages[lastPageNTAG213-offsetCFG0][0] = lastPageNTAG213 + 1
	return c
}

func (c *fakeCard) Transmit(apdu []byte) ([]byte, error) {
	if len(apdu) == 0 {
		return nil, carderr.New(carderr.KindInvalidArgument, "empty apdu")
	}
	cmd, args := apdu[0], apdu[1:]
	switch cmd {
	case cmdRead:
		page := args[0]
		out := make([]byte, 0, 16)
		for i := 0; i < 4; i++ {
			p := page + byte(i)
			if int(p) > lastPageNTAG213 {
				p -= lastPageNTAG213 + 1
			}
			out = append(out, c.pages[p][:]...)
		}
		return out, nil
	case cmdWrite:
		page := args[0]
		copy(c.pages[page][:], args[1:5])
		return []byte{0x0a}, nil
	case cmdGetVersion:
		return []byte{0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x0f, 0x03}, nil
	case cmdAuth:
		var pwd [4]byte
		copy(pwd[:], args[:4])
		if pwd != c.pwd {
			return []byte{0x00}, nil // NAK-ish wrong-PACK response
		}
		return []byte{c.pack[0], c.pack[1]}, nil
	default:
		return nil, carderr.Newf(carderr.KindInvalidArgument, "fakeCard: unhandled opcode 0x%02x", cmd)
	}
}

func TestReadFillsFourPageCache(t *testing.T) {
	card := newFakeCard()
	copy(card.pages[4][:], []byte{1, 2, 3, 4})
	copy(card.pages[5][:], []byte{5, 6, 7, 8})

	tag := New(card, SubtypeNTAG21x)
	got, err := tag.Read(4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != ([4]byte{1, 2, 3, 4}) {
		t.Fatalf("Read(4) = %v", got)
	}
	if !tag.cacheValid[5] {
		t.Fatal("Read(4) should have populated the cache for page 5")
	}
	if tag.cache[5] != ([4]byte{5, 6, 7, 8}) {
		t.Fatalf("cached page 5 = %v", tag.cache[5])
	}
}

func TestWriteInvalidatesCache(t *testing.T) {
	card := newFakeCard()
	tag := New(card, SubtypeNTAG21x)
	if _, err := tag.Read(4); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := tag.Write(4, [4]byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if tag.cacheValid[4] {
		t.Fatal("Write should invalidate the written page's cache entry")
	}
	got, err := tag.Read(4)
	if err != nil {
		t.Fatalf("Read after write: %v", err)
	}
	if got != ([4]byte{9, 9, 9, 9}) {
		t.Fatalf("Read after write = %v, want the freshly written bytes", got)
	}
}

// TestPasswordRemovalScenario exercises S6: get_info identifies the
// subtype, authenticate succeeds once configured, and set_auth(0xFF)
// removes page protection (confirmed by get_auth returning 0xFF).
func TestPasswordRemovalScenario(t *testing.T) {
	card := newFakeCard()
	card.pwd = [4]byte{0xff, 0xff, 0xff, 0xff}
	card.pack = [2]byte{0xaa, 0xaa}

	tag := New(card, SubtypeNTAG21x)

	if _, model, err := tag.GetInfo(); err != nil {
		t.Fatalf("GetInfo: %v", err)
	} else if model != NTAG213 {
		t.Fatalf("GetInfo subtype = %v, want NTAG213", model)
	}

	if err := tag.Authenticate([4]byte{0xff, 0xff, 0xff, 0xff}, [2]byte{0xaa, 0xaa}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := tag.SetAuth0(0xff); err != nil {
		t.Fatalf("SetAuth0: %v", err)
	}
	got, err := tag.Auth0()
	if err != nil {
		t.Fatalf("Auth0: %v", err)
	}
	if got != 0xff {
		t.Fatalf("Auth0() = 0x%02x, want 0xff", got)
	}
}

func TestAuthenticateWrongPasswordFails(t *testing.T) {
	card := newFakeCard()
	card.pwd = [4]byte{0xff, 0xff, 0xff, 0xff}
	card.pack = [2]byte{0xaa, 0xaa}

	tag := New(card, SubtypeNTAG21x)
	err := tag.Authenticate([4]byte{0x00, 0x00, 0x00, 0x00}, [2]byte{0xaa, 0xaa})
	if !carderr.IsAccessDenied(err) {
		t.Fatalf("Authenticate with wrong password: err = %v, want AccessDenied", err)
	}
}

func TestFastReadReturnsRequestedRange(t *testing.T) {
	card := newFakeCard()
	copy(card.pages[10][:], []byte{1, 1, 1, 1})
	copy(card.pages[11][:], []byte{2, 2, 2, 2})

	// fakeCard doesn't implement FAST_READ; use a minimal stand-in inline.
	fr := func(apdu []byte) ([]byte, error) {
		if apdu[0] == cmdFastRead {
			start, end := apdu[1], apdu[2]
			out := make([]byte, 0)
			for p := start; p <= end; p++ {
				out = append(out, card.pages[p][:]...)
			}
			return out, nil
		}
		return card.Transmit(apdu)
	}
	tag := New(transmitFunc(fr), SubtypeNTAG21x)
	body, err := tag.FastRead(10, 11)
	if err != nil {
		t.Fatalf("FastRead: %v", err)
	}
	if !bytes.Equal(body, []byte{1, 1, 1, 1, 2, 2, 2, 2}) {
		t.Fatalf("FastRead body = %v", body)
	}
}

type transmitFunc func([]byte) ([]byte, error)

func (f transmitFunc) Transmit(apdu []byte) ([]byte, error) { return f(apdu) }
