package transport

import (
	"bytes"
	"testing"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
)

type fakeCard struct {
	resp []byte
	err  error
}

func (f *fakeCard) Transmit(apdu []byte) ([]byte, error) {
	return f.resp, f.err
}

func TestTransceiveSplitsStatusWord(t *testing.T) {
	card := &fakeCard{resp: []byte{0x01, 0x02, 0x03, 0x91, 0x00}}
	body, sw, err := Transceive(card, []byte{0x00})
	if err != nil {
		t.Fatal(err)
	}
	if sw != 0x9100 {
		t.Fatalf("sw = 0x%04X, want 0x9100", sw)
	}
	if !bytes.Equal(body, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("body = %X, want 010203", body)
	}
}

func TestTransceiveRejectsShortResponse(t *testing.T) {
	card := &fakeCard{resp: []byte{0x00}}
	if _, _, err := Transceive(card, []byte{0x00}); !carderr.IsTransportError(err) {
		t.Fatalf("expected a TransportError for a 1-byte response, got %v", err)
	}
}

func TestGetUIDReturnsUIDOnWildcardLe(t *testing.T) {
	uid := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	card := &fakeCard{resp: append(append([]byte{}, uid...), 0x90, 0x00)}
	got, err := GetUID(card)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, uid) {
		t.Fatalf("GetUID = %X, want %X", got, uid)
	}
}
