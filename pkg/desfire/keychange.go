package desfire

import (
	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/cardcrypto"
	"github.com/barnettlynn/gofreefare/pkg/desfirekey"
)

// ChangeKey installs newKey at keyNo. oldKey is required (and its bytes
// XORed into the payload) whenever keyNo is not the currently-authenticated
// key; pass nil when changing the authenticated key itself. At PICC level
// (no application selected) the new key's kind is additionally encoded in
// the key-number byte's high nibble (0x40 for 3K3DES, 0x80 for AES).
//
// Per §4.6.5: same-key-number payload is
// new_key ∥ KeyVersion(AES only) ∥ CRC_over_payload, enciphered with NO_CRC
// (the engine's own CRC insertion suppressed since the payload's CRC is
// computed over exactly this assembled buffer). Different-key-number
// payload additionally XORs in the old key and appends a second CRC binding
// the new key bytes alone, so a forged differential is rejected.
func (s *Session) ChangeKey(keyNo byte, newKey *desfirekey.Key, oldKey *desfirekey.Key) error {
	if s.key == nil {
		return carderr.New(carderr.KindInvalidState, "desfire: ChangeKey requires an authenticated session")
	}

	sameKey := keyNo == s.authKeyNo
	keyNoByte := keyNo
	if !s.hasSelection {
		keyNoByte |= keyKindByte(newKey.Kind)
	}

	var body []byte
	if sameKey {
		body = append([]byte{}, newKey.Data...)
	} else {
		if oldKey == nil {
			return carderr.New(carderr.KindInvalidArgument, "desfire: changing a different key number requires the old key to XOR against")
		}
		if len(oldKey.Data) != len(newKey.Data) {
			return carderr.New(carderr.KindInvalidArgument, "desfire: old and new key must be the same length")
		}
		body = make([]byte, len(newKey.Data))
		for i := range body {
			body[i] = newKey.Data[i] ^ oldKey.Data[i]
		}
	}

	if newKey.Kind == desfirekey.AES {
		body = append(body, newKey.Version())
	}
	body = cardcrypto.AppendCRC32(body)
	if !sameKey {
		body = append(body, cardcrypto.AppendCRC32(append([]byte{}, newKey.Data...))[len(newKey.Data):]...)
	}

	payload, err := s.preProcess(cmdChangeKey, []byte{keyNoByte}, body, MDCMEnciphered|NoCRC)
	if err != nil {
		return err
	}

	if err := s.statusOnly(cmdChangeKey, append([]byte{keyNoByte}, payload...)); err != nil {
		return err
	}

	// Changing the currently-authenticated key invalidates the session;
	// the caller must re-authenticate.
	if sameKey {
		s.dropSessionKey()
	}
	return nil
}
