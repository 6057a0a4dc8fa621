package desfire

import (
	"log/slog"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/cardcrypto"
	"github.com/barnettlynn/gofreefare/pkg/desfirekey"
)

// Authenticate runs the Legacy DES/2K3DES authentication (command 0x0A)
// against keyNo using key, establishing SchemeLegacy on success.
func (s *Session) Authenticate(keyNo byte, key *desfirekey.Key) error {
	return s.authenticate(cmdAuthenticateLegacy, keyNo, key, SchemeLegacy, key.BlockSize())
}

// AuthenticateISO runs the ISO 3K3DES authentication (command 0x1A),
// establishing SchemeNew on success.
func (s *Session) AuthenticateISO(keyNo byte, key *desfirekey.Key) error {
	return s.authenticate(cmdAuthenticateISO, keyNo, key, SchemeNew, 16)
}

// AuthenticateAES runs the AES authentication (command 0xAA), establishing
// SchemeNew on success.
func (s *Session) AuthenticateAES(keyNo byte, key *desfirekey.Key) error {
	return s.authenticate(cmdAuthenticateAES, keyNo, key, SchemeNew, 16)
}

// authenticate drives the three-message challenge/response common to all
// three schemes. rndLen is 8 for Legacy DES/2K3DES, 16 for ISO 3K3DES and
// AES. Failure at any step clears any partial session state and returns an
// error (AccessDenied for a wrong challenge length or a failed RndA check).
func (s *Session) authenticate(cmd byte, keyNo byte, key *desfirekey.Key, scheme Scheme, rndLen int) error {
	s.dropSessionKey()

	block, err := key.Block()
	if err != nil {
		return carderr.Wrap(carderr.KindCryptoConfig, err, "desfire: authentication key could not be expanded")
	}
	blockSize := cardcrypto.BlockSize(key.Kind)

	// Authentication's own continuation frame carries a real payload (the
	// challenge response), unlike ordinary multi-frame reads where every
	// continuation is empty — so this drives frame() directly rather than
	// the auto-looping transceive().
	encRndB, status, err := s.frame(cmd, []byte{keyNo})
	if err != nil {
		slog.Warn("desfire: auth attempt failed", "cmd", cmd, "key_no", keyNo, "error", err)
		return err
	}
	if status != StatusAdditionalFrame {
		return s.errorFromStatus(status)
	}
	if len(encRndB) != rndLen {
		return carderr.New(carderr.KindAccessDenied, "desfire: authentication step 1 returned the wrong challenge length")
	}

	iv := make([]byte, blockSize)
	rndB := append([]byte{}, encRndB...)
	cardcrypto.CBCProcess(block, blockSize, iv, rndB, cardcrypto.Receive, cardcrypto.Decypher)

	rndA, err := randBytes(rndLen)
	if err != nil {
		return err
	}

	rndBRot := cardcrypto.RotateLeft1(rndB)
	plain := append(append([]byte{}, rndA...), rndBRot...)

	// Legacy always resets the chaining IV to zero for this step; the New
	// scheme keeps chaining from the IV left by decrypting RndB above.
	if scheme == SchemeLegacy {
		for i := range iv {
			iv[i] = 0
		}
	}
	cardcrypto.CBCProcess(block, blockSize, iv, plain, cardcrypto.Send, cardcrypto.Encypher)

	encRndAResp, status, err := s.frame(cmdAdditionalFrame, plain)
	if err != nil {
		return err
	}
	if status != StatusOK {
		return s.errorFromStatus(status)
	}
	if len(encRndAResp) != rndLen {
		return carderr.New(carderr.KindAccessDenied, "desfire: authentication step 2 returned the wrong challenge length")
	}

	// Legacy resets the chaining IV to zero before every CBC call, including
	// this one; the New scheme keeps chaining the IV mutated by step 2.
	if scheme == SchemeLegacy {
		for i := range iv {
			iv[i] = 0
		}
	}
	rndARotResp := append([]byte{}, encRndAResp...)
	cardcrypto.CBCProcess(block, blockSize, iv, rndARotResp, cardcrypto.Receive, cardcrypto.Decypher)
	rndACheck := cardcrypto.RotateRight1(rndARotResp)
	if !bytesEqual(rndACheck, rndA) {
		return carderr.New(carderr.KindAccessDenied, "desfire: authentication RndA check failed")
	}

	sessionKey, err := desfirekey.NewSessionKey(key.Kind, rndA, rndB)
	if err != nil {
		return carderr.Wrap(carderr.KindCryptoConfig, err, "desfire: session key derivation failed")
	}

	s.key = sessionKey
	s.scheme = scheme
	s.authKeyNo = keyNo
	s.cmacIV = make([]byte, sessionKey.BlockSize())
	slog.Info("desfire: authenticated", "cmd", cmd, "key_no", keyNo, "scheme", scheme)
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
