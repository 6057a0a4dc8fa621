package desfirekey

import (
	"bytes"
	"testing"
)

func TestDESKeyVersionRoundTrip(t *testing.T) {
	var raw [8]byte
	for i := range raw {
		raw[i] = 0xAA
	}
	k := NewDESKey(raw)
	for _, version := range []byte{0x00, 0x01, 0x55, 0xFF, 0xA5} {
		k.SetVersion(version)
		for i := 0; i < 8; i++ {
			want := (version >> (7 - i)) & 1
			got := k.Data[i] & 1
			if got != want {
				t.Fatalf("version=0x%02X byte %d: bit=%d want %d", version, i, got, want)
			}
		}
		if got := k.Version(); got != version {
			t.Fatalf("Version() = 0x%02X, want 0x%02X", got, version)
		}
	}
}

func Test2K3DESVersionNeverEqualizesHalves(t *testing.T) {
	var raw [16]byte
	for i := range raw {
		raw[i] = 0x10
	}
	k := New2K3DESKey(raw)
	for _, version := range []byte{0x00, 0xFF} {
		k.SetVersion(version)
		if bytes.Equal(k.Data[0:8], k.Data[8:16]) {
			t.Fatalf("version=0x%02X: K1 equals K2, key degraded to single DES", version)
		}
	}
}

func TestAESVersionIsSeparateByte(t *testing.T) {
	var raw [16]byte
	k := NewAESKeyWithVersion(raw, 0x2A)
	if k.Version() != 0x2A {
		t.Fatalf("Version() = 0x%02X, want 0x2A", k.Version())
	}
	k.SetVersion(0x3B)
	if k.Version() != 0x3B {
		t.Fatalf("Version() after SetVersion = 0x%02X, want 0x3B", k.Version())
	}
	for _, b := range k.Data {
		if b != 0 {
			t.Fatal("AES key bytes should be untouched by SetVersion")
		}
	}
}

func TestNewSessionKeyByteRanges(t *testing.T) {
	rndA := make([]byte, 16)
	rndB := make([]byte, 16)
	for i := range rndA {
		rndA[i] = byte(0x10 + i)
		rndB[i] = byte(0x80 + i)
	}

	des, err := NewSessionKey(DES, rndA, rndB)
	if err != nil {
		t.Fatal(err)
	}
	want := append(append([]byte{}, rndA[0:4]...), rndB[0:4]...)
	if !bytes.Equal(des.Data, want) {
		t.Fatalf("DES session key = %x, want %x", des.Data, want)
	}

	aesKey, err := NewSessionKey(AES, rndA, rndB)
	if err != nil {
		t.Fatal(err)
	}
	wantAES := append(append(append(append([]byte{}, rndA[0:4]...), rndB[0:4]...), rndA[12:16]...), rndB[12:16]...)
	if !bytes.Equal(aesKey.Data, wantAES) {
		t.Fatalf("AES session key = %x, want %x", aesKey.Data, wantAES)
	}
}

func TestCMACSubkeysRejectedForDESFamily(t *testing.T) {
	var raw [8]byte
	k := NewDESKey(raw)
	if _, _, err := k.CMACSubkeys(); err == nil {
		t.Fatal("expected error requesting CMAC subkeys for a DES key")
	}
}
