package cardcrypto

import (
	"bytes"
	"testing"
)

func TestCRC32DESFireKnownVector(t *testing.T) {
	// "123456789" is the standard CRC self-check string; CRC-32/JAMCRC
	// (same poly/init/refin/refout, no final xor) of it is 0x340BC6D9.
	got := CRC32DESFire([]byte("123456789"))
	want := uint32(0x340BC6D9)
	if got != want {
		t.Fatalf("CRC32DESFire(%q) = 0x%08X, want 0x%08X", "123456789", got, want)
	}
}

func TestCRC16AKnownVector(t *testing.T) {
	// CRC-16/ISO-14443A check value for "123456789" is 0xBF05.
	got := CRC16A([]byte("123456789"))
	want := uint16(0xBF05)
	if got != want {
		t.Fatalf("CRC16A(%q) = 0x%04X, want 0x%04X", "123456789", got, want)
	}
}

func TestPadUnpadRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 15, 16, 17} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}
		padded := PadISO9797M2(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("padded length %d not block aligned for n=%d", len(padded), n)
		}
		unpadded, err := UnpadISO9797M2(padded)
		if err != nil {
			t.Fatalf("unpad n=%d: %v", n, err)
		}
		if !bytes.Equal(unpadded, data) {
			t.Fatalf("round trip n=%d: got %x want %x", n, unpadded, data)
		}
	}
}

func TestRotateLeftRightRoundTrip(t *testing.T) {
	in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	rol := RotateLeft1(in)
	if !bytes.Equal(rol, []byte{2, 3, 4, 5, 6, 7, 8, 1}) {
		t.Fatalf("RotateLeft1 = %v", rol)
	}
	back := RotateRight1(rol)
	if !bytes.Equal(back, in) {
		t.Fatalf("RotateRight1(RotateLeft1(x)) = %v, want %v", back, in)
	}
}

func TestAESCBCSendReceiveRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	block, err := NewBlockCipher(KindAES, key)
	if err != nil {
		t.Fatal(err)
	}

	plain := []byte("0123456789ABCDEF0123456789ABCDEF")[:32]
	ivEnc := make([]byte, 16)
	ciphertext := append([]byte(nil), plain...)
	CBCProcess(block, 16, ivEnc, ciphertext, Send, Encypher)
	if bytes.Equal(ciphertext, plain) {
		t.Fatal("ciphertext equals plaintext")
	}

	ivDec := make([]byte, 16)
	decrypted := append([]byte(nil), ciphertext...)
	CBCProcess(block, 16, ivDec, decrypted, Receive, Decypher)
	if !bytes.Equal(decrypted, plain) {
		t.Fatalf("decrypted = %x, want %x", decrypted, plain)
	}
}

func TestCMACSubkeysDeterministic(t *testing.T) {
	key := make([]byte, 16)
	block, err := NewBlockCipher(KindAES, key)
	if err != nil {
		t.Fatal(err)
	}
	sk1, sk2 := GenerateCMACSubkeys(block, 16)
	if len(sk1) != 16 || len(sk2) != 16 {
		t.Fatalf("unexpected subkey lengths %d %d", len(sk1), len(sk2))
	}
	sk1b, sk2b := GenerateCMACSubkeys(block, 16)
	if !bytes.Equal(sk1, sk1b) || !bytes.Equal(sk2, sk2b) {
		t.Fatal("subkey generation not deterministic")
	}
}

func TestCMACChainContinuesAcrossCalls(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i * 3)
	}
	block, _ := NewBlockCipher(KindAES, key)
	sk1, sk2 := GenerateCMACSubkeys(block, 16)

	iv := make([]byte, 16)
	first := CMAC(block, 16, iv, sk1, sk2, []byte("hello"))

	iv2 := make([]byte, 16)
	second := CMAC(block, 16, iv2, sk1, sk2, []byte("hello"))
	if !bytes.Equal(first, second) {
		t.Fatal("CMAC over identical message/IV should match")
	}

	// Continuing the chain with the mutated iv must differ from starting fresh.
	continued := CMAC(block, 16, iv, sk1, sk2, []byte("world"))
	freshIV := make([]byte, 16)
	fresh := CMAC(block, 16, freshIV, sk1, sk2, []byte("world"))
	if bytes.Equal(continued, fresh) {
		t.Fatal("chained CMAC unexpectedly matches a fresh-IV CMAC")
	}
}
