package keydiversifier

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/barnettlynn/gofreefare/pkg/desfirekey"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestAN10922AES128DerivationVector(t *testing.T) {
	var raw [16]byte
	copy(raw[:], mustHex(t, "00112233445566778899AABBCCDDEEFF"))
	master := desfirekey.NewAESKeyWithVersion(raw, 16)

	d, err := New(master, desfirekey.AES, Flags{})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.UpdateData(mustHex(t, "04782E21801D80")); err != nil {
		t.Fatal(err)
	}
	if err := d.UpdateData(mustHex(t, "3042F5")); err != nil {
		t.Fatal(err)
	}
	if err := d.UpdateCstr("NXP Abu"); err != nil {
		t.Fatal(err)
	}

	got, err := d.EndRaw()
	if err != nil {
		t.Fatal(err)
	}

	want := mustHex(t, "A8DD63A3B89D54B37CA802473FDA9175")
	if !bytes.Equal(got, want) {
		t.Fatalf("end_raw = %X, want %X", got, want)
	}
}

func TestAN10922PreservesMasterVersion(t *testing.T) {
	var raw [16]byte
	master := desfirekey.NewAESKeyWithVersion(raw, 0x42)

	d, err := New(master, desfirekey.AES, Flags{})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.UpdateCstr("x"); err != nil {
		t.Fatal(err)
	}
	derived, err := d.End()
	if err != nil {
		t.Fatal(err)
	}
	if derived.Version() != 0x42 {
		t.Fatalf("derived version = 0x%02X, want 0x42", derived.Version())
	}
}

func TestAN10922EmulateIssue91ChangesOutput(t *testing.T) {
	var raw [16]byte
	for i := range raw {
		raw[i] = byte(i)
	}
	master := desfirekey.NewAESKeyWithVersion(raw, 0)

	plain, err := New(master, desfirekey.AES, Flags{})
	if err != nil {
		t.Fatal(err)
	}
	plain.UpdateCstr("some data")
	plainOut, err := plain.EndRaw()
	if err != nil {
		t.Fatal(err)
	}

	buggy, err := New(master, desfirekey.AES, Flags{EmulateIssue91: true})
	if err != nil {
		t.Fatal(err)
	}
	buggy.UpdateCstr("some data")
	buggyOut, err := buggy.EndRaw()
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(plainOut, buggyOut) {
		t.Fatal("EmulateIssue91 produced the same output as the correct single-pass derivation")
	}
}

func TestAN10922RejectsDESOutput(t *testing.T) {
	var raw [8]byte
	master := desfirekey.NewDESKeyWithVersion(raw)
	if _, err := New(master, desfirekey.DES, Flags{}); err == nil {
		t.Fatal("expected error deriving a plain DES output key")
	}
}

func TestAN10922TwoKeyDESFromDESMaster(t *testing.T) {
	var raw [8]byte
	for i := range raw {
		raw[i] = byte(0x20 + i)
	}
	master := desfirekey.NewDESKeyWithVersion(raw)

	d, err := New(master, desfirekey.K2K3DES, Flags{})
	if err != nil {
		t.Fatal(err)
	}
	d.UpdateCstr("app-context")
	out, err := d.EndRaw()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 16 {
		t.Fatalf("2K3DES-from-DES derivation length = %d, want 16", len(out))
	}
}

func TestAN10922ThreeKeyDESFromDESMaster(t *testing.T) {
	var raw [8]byte
	for i := range raw {
		raw[i] = byte(0x30 + i)
	}
	master := desfirekey.NewDESKeyWithVersion(raw)

	d, err := New(master, desfirekey.K3K3DES, Flags{})
	if err != nil {
		t.Fatal(err)
	}
	d.UpdateCstr("app-context")
	out, err := d.EndRaw()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 24 {
		t.Fatalf("3K3DES-from-DES derivation length = %d, want 24", len(out))
	}
}

func TestAN10922OverflowLatches(t *testing.T) {
	var raw [16]byte
	master := desfirekey.NewAESKeyWithVersion(raw, 0)
	d, err := New(master, desfirekey.AES, Flags{})
	if err != nil {
		t.Fatal(err)
	}
	big := make([]byte, maxMessageLen)
	if err := d.UpdateData(big); err == nil {
		t.Fatal("expected overflow error")
	}
	if _, err := d.EndRaw(); err == nil {
		t.Fatal("expected EndRaw to report the latched overflow")
	}
}
