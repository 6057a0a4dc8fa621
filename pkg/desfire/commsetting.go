package desfire

import (
	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/cardcrypto"
)

// CommSetting is the bit set of cryptographic framing flags that controls
// how pre/postProcess transform one command's payload, per spec §4.6.3.
type CommSetting uint16

const (
	// MDCMPlain: no cryptographic body transformation.
	MDCMPlain CommSetting = 1 << iota
	// MDCMMaced: append MAC (Legacy) or CMAC (New) to the sent body;
	// verify on receive.
	MDCMMaced
	// MDCMEnciphered: append CRC over the body, pad to a block, encrypt.
	MDCMEnciphered
	// CMACCommand: fold the sent bytes into the rolling CMAC (New scheme),
	// without transmitting a MAC — the plain/MACed distinction affects
	// whether the computed value is appended to the wire, not whether the
	// chain advances.
	CMACCommand
	// CMACVerify: verify the rolling CMAC against the received bytes.
	CMACVerify
	// ENCCommand: this command's body must be enciphered outbound, even in
	// an otherwise-plain exchange (SetConfiguration's payload).
	ENCCommand
	// NoCRC: suppress the engine's own CRC insertion (the payload already
	// carries one, as key-change payloads do).
	NoCRC
)

// preProcess transforms payload (the portion after the unsecured header)
// for transmission, given the active comm setting. header is prepended to
// the CMAC computation but never itself transformed.
func (s *Session) preProcess(cmd byte, header, payload []byte, setting CommSetting) ([]byte, error) {
	out := append([]byte{}, payload...)

	switch {
	case setting&MDCMEnciphered != 0 || setting&ENCCommand != 0:
		enc, err := s.encipher(header, out, setting&NoCRC != 0)
		if err != nil {
			return nil, err
		}
		out = enc
	case setting&MDCMMaced != 0:
		mac, err := s.macOrCMAC(append(append([]byte{cmd}, header...), out...), true)
		if err != nil {
			return nil, err
		}
		out = append(out, mac...)
	case setting&CMACCommand != 0 && s.scheme == SchemeNew:
		// Not transmitted, but still advances the chain.
		if _, err := s.macOrCMAC(append(append([]byte{cmd}, header...), out...), true); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// postProcess validates and decrypts a received body, given the active
// comm setting. header is the portion of the command the response is
// implicitly keyed to (usually empty on responses; kept for symmetry).
func (s *Session) postProcess(status Status, header, body []byte, setting CommSetting) ([]byte, error) {
	switch {
	case setting&MDCMEnciphered != 0:
		return s.decipher(body)
	case setting&MDCMMaced != 0:
		if len(body) < macLen(s) {
			return nil, s.integrityError("desfire: response too short to carry a (C)MAC")
		}
		plain := body[:len(body)-macLen(s)]
		tag := body[len(plain):]
		expect, err := s.macOrCMAC(append(append([]byte{byte(status)}, header...), plain...), true)
		if err != nil {
			return nil, err
		}
		if !bytesEqual(tag, expect) {
			return nil, s.integrityError("desfire: (C)MAC verification failed")
		}
		return plain, nil
	case setting&CMACVerify != 0 && s.scheme == SchemeNew:
		if len(body) < 8 {
			return nil, s.integrityError("desfire: response too short to carry a CMAC")
		}
		plain := body[:len(body)-8]
		tag := body[len(plain):]
		expect, err := s.macOrCMAC(append(append([]byte{byte(status)}, header...), plain...), true)
		if err != nil {
			return nil, err
		}
		if !bytesEqual(tag, expect) {
			return nil, s.integrityError("desfire: CMAC verification failed")
		}
		return plain, nil
	default:
		return body, nil
	}
}

func macLen(s *Session) int {
	if s.scheme == SchemeNew {
		return 8
	}
	return 4
}

// macOrCMAC advances the session's authentication chain over data and
// returns the transmittable tag: for SchemeNew this is an 8-byte truncated
// CMAC with the IV chained across the whole session (reset only by a new
// authentication); for SchemeLegacy this is the first 4 bytes of a
// zero-IV CBC-MAC, recomputed fresh every call.
func (s *Session) macOrCMAC(data []byte, advance bool) ([]byte, error) {
	if s.key == nil {
		return nil, carderr.New(carderr.KindInvalidState, "desfire: no authenticated session")
	}
	block, err := s.key.Block()
	if err != nil {
		return nil, err
	}
	blockSize := s.key.BlockSize()

	if s.scheme == SchemeNew {
		sk1, sk2, err := s.key.CMACSubkeys()
		if err != nil {
			return nil, err
		}
		full := cardcrypto.CMAC(block, blockSize, s.cmacIV, sk1, sk2, data)
		return cardcrypto.TruncateCMAC8(full), nil
	}

	iv := make([]byte, blockSize)
	padded := cardcrypto.PadISO9797M2(data, blockSize)
	if len(data)%blockSize == 0 {
		padded = append(append([]byte{}, data...), make([]byte, blockSize)...)
		padded[len(data)] = 0 // legacy CBC-MAC pads with zero bytes, not 0x80, when already aligned
	}
	cardcrypto.CBCProcess(block, blockSize, iv, padded, cardcrypto.Send, cardcrypto.Encypher)
	return iv[:4], nil
}

// encipher zero-pads payload (prefixing header only for CRC computation,
// never transmitting it) to a block boundary and encrypts with the
// session key, chaining through the session's rolling IV (New scheme) or a
// fresh zero IV (Legacy). The CRC algorithm itself depends on the scheme:
// CRC-16/A for Legacy DES/3DES, CRC-32/DESFire for ISO 3K3DES/AES, matching
// the original's enciphered-comm CRC dispatch. noCRC suppresses the
// engine's own CRC insertion for payloads that already carry one (e.g.
// ChangeKey, which binds multiple CRCs into a single enciphered buffer
// itself).
func (s *Session) encipher(header, payload []byte, noCRC bool) ([]byte, error) {
	if s.key == nil {
		return nil, carderr.New(carderr.KindInvalidState, "desfire: no authenticated session")
	}
	block, err := s.key.Block()
	if err != nil {
		return nil, err
	}
	blockSize := s.key.BlockSize()

	body := append([]byte{}, payload...)
	if !noCRC {
		whole := append(append([]byte{}, header...), payload...)
		var withCRC []byte
		if s.scheme == SchemeLegacy {
			withCRC = cardcrypto.AppendCRC16A(whole)
		} else {
			withCRC = cardcrypto.AppendCRC32(whole)
		}
		body = withCRC[len(header):]
	}
	padLen := (blockSize - len(body)%blockSize) % blockSize
	padded := append(body, make([]byte, padLen)...)

	iv := s.cmacIV
	if s.scheme == SchemeLegacy || iv == nil {
		iv = make([]byte, blockSize)
	}
	// Per §4.6.3's comm-setting table, the enciphered send direction runs
	// the block cipher's encrypt primitive for Legacy but its decrypt
	// primitive for the New scheme ("CBC-Send (Legacy) or
	// CBC-Decypher-Send (New)") — a DESFire hardware quirk, not a typo.
	op := cardcrypto.Encypher
	if s.scheme == SchemeNew {
		op = cardcrypto.Decypher
	}
	cardcrypto.CBCProcess(block, blockSize, iv, padded, cardcrypto.Send, op)
	return padded, nil
}

// decipher reverses encipher and locates the embedded CRC by scanning
// backward from the end of the decrypted buffer for the offset at which
// the CRC over the preceding bytes matches the embedded value, per
// §6.3/§4.6.7 ("scanning for a position that zeroes it"). Legacy sessions
// embed a 2-byte CRC-16/A; New-scheme sessions embed a 4-byte
// CRC-32/DESFire, matching encipher's choice.
func (s *Session) decipher(body []byte) ([]byte, error) {
	if s.key == nil {
		return nil, carderr.New(carderr.KindInvalidState, "desfire: no authenticated session")
	}
	block, err := s.key.Block()
	if err != nil {
		return nil, err
	}
	blockSize := s.key.BlockSize()

	plain := append([]byte{}, body...)
	iv := s.cmacIV
	if s.scheme == SchemeLegacy || iv == nil {
		iv = make([]byte, blockSize)
	}
	op := cardcrypto.Decypher
	if s.scheme == SchemeNew {
		op = cardcrypto.Encypher
	}
	cardcrypto.CBCProcess(block, blockSize, iv, plain, cardcrypto.Receive, op)

	if s.scheme == SchemeLegacy {
		for i := len(plain) - 2; i >= 0; i-- {
			if cardcrypto.CRC16A(plain[:i]) == uint16(plain[i])|uint16(plain[i+1])<<8 {
				return plain[:i], nil
			}
		}
		return nil, s.integrityError("desfire: could not locate CRC16 in enciphered response")
	}

	for i := len(plain) - 4; i >= 0; i-- {
		if cardcrypto.CRC32DESFire(plain[:i]) == le32(plain[i:i+4]) {
			return plain[:i], nil
		}
	}
	return nil, s.integrityError("desfire: could not locate CRC32 in enciphered response")
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
