package desfirekey

import "fmt"

// NewSessionKey builds the session key from the two authentication nonces,
// following mifare_desfire_session_key_new exactly: the byte ranges taken
// from each nonce depend on the authentication key's kind.
func NewSessionKey(authKind Kind, rndA, rndB []byte) (*Key, error) {
	switch authKind {
	case DES:
		if len(rndA) < 4 || len(rndB) < 4 {
			return nil, fmt.Errorf("desfirekey: DES session key needs 4+4 random bytes")
		}
		var buf [8]byte
		copy(buf[0:4], rndA[0:4])
		copy(buf[4:8], rndB[0:4])
		return NewDESKeyWithVersion(buf), nil
	case K2K3DES:
		if len(rndA) < 8 || len(rndB) < 8 {
			return nil, fmt.Errorf("desfirekey: 2K3DES session key needs 8+8 random bytes")
		}
		var buf [16]byte
		copy(buf[0:4], rndA[0:4])
		copy(buf[4:8], rndB[0:4])
		copy(buf[8:12], rndA[4:8])
		copy(buf[12:16], rndB[4:8])
		return New2K3DESKeyWithVersion(buf), nil
	case K3K3DES:
		if len(rndA) < 16 || len(rndB) < 16 {
			return nil, fmt.Errorf("desfirekey: 3K3DES session key needs 16+16 random bytes")
		}
		var buf [24]byte
		copy(buf[0:4], rndA[0:4])
		copy(buf[4:8], rndB[0:4])
		copy(buf[8:12], rndA[6:10])
		copy(buf[12:16], rndB[6:10])
		copy(buf[16:20], rndA[12:16])
		copy(buf[20:24], rndB[12:16])
		return New3K3DESKey(buf), nil
	case AES:
		if len(rndA) < 16 || len(rndB) < 16 {
			return nil, fmt.Errorf("desfirekey: AES session key needs 16+16 random bytes")
		}
		var buf [16]byte
		copy(buf[0:4], rndA[0:4])
		copy(buf[4:8], rndB[0:4])
		copy(buf[8:12], rndA[12:16])
		copy(buf[12:16], rndB[12:16])
		return NewAESKey(buf), nil
	default:
		return nil, fmt.Errorf("desfirekey: unknown key kind %d", authKind)
	}
}
