package desfirekey

import (
	"crypto/cipher"
	"fmt"

	"github.com/barnettlynn/gofreefare/pkg/cardcrypto"
)

// Kind re-exports cardcrypto's key-kind enum so callers need only import
// this package for ordinary key handling.
type Kind = cardcrypto.KeyKind

const (
	DES     = cardcrypto.KindDES
	K2K3DES = cardcrypto.Kind2K3DES
	K3K3DES = cardcrypto.Kind3K3DES
	AES     = cardcrypto.KindAES
)

// Key holds one DESFire key, its expanded block cipher, and — for the New
// scheme kinds — its CMAC subkeys.
type Key struct {
	Kind       Kind
	Data       []byte // KeyLen(Kind) bytes
	AESVersion byte   // version byte, AES only

	block   cipher.Block
	cmacSK1 []byte
	cmacSK2 []byte
}

func (k *Key) expand() error {
	block, err := cardcrypto.NewBlockCipher(k.Kind, k.Data)
	if err != nil {
		return err
	}
	k.block = block
	if k.Kind == cardcrypto.Kind3K3DES || k.Kind == cardcrypto.KindAES {
		k.cmacSK1, k.cmacSK2 = cardcrypto.GenerateCMACSubkeys(block, cardcrypto.BlockSize(k.Kind))
	}
	return nil
}

// Block returns the expanded cipher.Block, building it on first use.
func (k *Key) Block() (cipher.Block, error) {
	if k.block == nil {
		if err := k.expand(); err != nil {
			return nil, err
		}
	}
	return k.block, nil
}

// CMACSubkeys returns SK1/SK2 for keys that use CMAC (3K3DES, AES); it is an
// error to call this for DES/2K3DES, which use legacy CBC-MAC instead.
func (k *Key) CMACSubkeys() (sk1, sk2 []byte, err error) {
	if k.Kind != cardcrypto.Kind3K3DES && k.Kind != cardcrypto.KindAES {
		return nil, nil, fmt.Errorf("desfirekey: %s keys do not use CMAC subkeys", k.Kind)
	}
	if _, err := k.Block(); err != nil {
		return nil, nil, err
	}
	return k.cmacSK1, k.cmacSK2, nil
}

// BlockSize returns 8 for DES-family keys, 16 for AES.
func (k *Key) BlockSize() int { return cardcrypto.BlockSize(k.Kind) }

func maskParity(b byte) byte { return b &^ 0x01 }

// NewDESKey builds an 8-byte DES key from raw bytes, masking bit 0 of each
// byte to clear any version previously encoded there.
func NewDESKey(raw [8]byte) *Key {
	data := raw[:]
	for i := range data {
		data[i] = maskParity(data[i])
	}
	return NewDESKeyWithVersion(raw)
}

// NewDESKeyWithVersion builds an 8-byte DES key preserving the supplied
// bytes verbatim (including any encoded version bits).
func NewDESKeyWithVersion(raw [8]byte) *Key {
	data := make([]byte, 8)
	copy(data, raw[:])
	return &Key{Kind: DES, Data: data}
}

// New2K3DESKey builds a 16-byte 2K3DES key (K1||K2), masking K1's parity
// bits and forcing K2's low bit to 1 so K1 != K2 (a key with K1==K2 is
// semantically single DES, per mifare_desfire_3des_key_new).
func New2K3DESKey(raw [16]byte) *Key {
	data := raw[:]
	for i := 0; i < 8; i++ {
		data[i] = maskParity(data[i])
	}
	for i := 8; i < 16; i++ {
		data[i] |= 0x01
	}
	return New2K3DESKeyWithVersion(raw)
}

// New2K3DESKeyWithVersion preserves the supplied bytes verbatim.
func New2K3DESKeyWithVersion(raw [16]byte) *Key {
	data := make([]byte, 16)
	copy(data, raw[:])
	return &Key{Kind: K2K3DES, Data: data}
}

// New3K3DESKey builds a 24-byte 3K3DES key (K1||K2||K3), masking K1's parity
// bits.
func New3K3DESKey(raw [24]byte) *Key {
	data := raw[:]
	for i := 0; i < 8; i++ {
		data[i] = maskParity(data[i])
	}
	return New3K3DESKeyWithVersion(raw)
}

// New3K3DESKeyWithVersion preserves the supplied bytes verbatim.
func New3K3DESKeyWithVersion(raw [24]byte) *Key {
	data := make([]byte, 24)
	copy(data, raw[:])
	return &Key{Kind: K3K3DES, Data: data}
}

// NewAESKey builds a 16-byte AES-128 key with version 0.
func NewAESKey(raw [16]byte) *Key {
	return NewAESKeyWithVersion(raw, 0)
}

// NewAESKeyWithVersion builds a 16-byte AES-128 key with an explicit
// version byte, stored separately from the key bytes.
func NewAESKeyWithVersion(raw [16]byte, version byte) *Key {
	data := make([]byte, 16)
	copy(data, raw[:])
	return &Key{Kind: AES, Data: data, AESVersion: version}
}

// Version returns the key's version byte. For AES this is the explicit
// AESVersion field; for DES-family keys it is reconstructed from bit 0 of
// each of the first 8 key bytes (MSB of the result is bit 0 of byte 0).
func (k *Key) Version() byte {
	if k.Kind == AES {
		return k.AESVersion
	}
	var version byte
	for n := 0; n < 8; n++ {
		version |= (k.Data[n] & 1) << (7 - n)
	}
	return version
}

// SetVersion rewrites the key's version byte. For AES it simply replaces
// AESVersion. For DES-family keys it rewrites bit 0 of bytes 0..7; for a
// plain DES key (single 8-byte block) nothing else changes, but for
// 2K3DES/3K3DES it writes the *complement* of each version bit into bit 0
// of the corresponding K2 byte (8..15), so that encoding a version can never
// accidentally make K1 equal K2 and degrade the key to single DES.
func (k *Key) SetVersion(version byte) {
	if k.Kind == AES {
		k.AESVersion = version
		return
	}
	k.block = nil // invalidate cached schedule
	for n := 0; n < 8; n++ {
		bit := (version >> (7 - n)) & 1
		k.Data[n] = maskParity(k.Data[n]) | bit
		if k.Kind != DES {
			k.Data[n+8] = maskParity(k.Data[n+8]) | (^bit & 1)
		}
	}
}
