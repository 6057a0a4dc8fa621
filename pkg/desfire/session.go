package desfire

import (
	"crypto/rand"
	"log/slog"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/desfirekey"
	"github.com/barnettlynn/gofreefare/pkg/transport"
)

// Scheme distinguishes the two cryptographic exchange conventions a
// DESFire authentication can establish.
type Scheme int

const (
	// SchemeNone is the zero value: no authenticated session.
	SchemeNone Scheme = iota
	// SchemeLegacy is the DES/2K3DES 0x0A authentication: CBC-MAC
	// integrity, IV reset to zero on every exchange.
	SchemeLegacy
	// SchemeNew is the ISO 3K3DES (0x1A) / AES (0xAA) authentication:
	// CMAC integrity, IV chained across the whole session.
	SchemeNew
)

// Native command opcodes used directly by the session engine; the
// remaining application/file/data opcodes live alongside their callers.
const (
	cmdAuthenticateLegacy = 0x0a
	cmdAuthenticateISO    = 0x1a
	cmdAuthenticateAES    = 0xaa
	cmdAdditionalFrame    = 0xaf
)

// Session is one authenticated (or not yet authenticated) DESFire
// connection over a transport.Card. Selecting a different application,
// formatting the card, changing the authenticated key, or disconnecting
// drops the session key — see dropSessionKey.
type Session struct {
	card transport.Card
	iso  bool // wrap native commands in a 0x90 CMD 00 00 Lc .. 00 ISO envelope

	key       *desfirekey.Key
	scheme    Scheme
	authKeyNo byte
	cmacIV    []byte // chain state; lives exactly as long as key

	selected      [3]byte
	hasSelection  bool
	fileSettings  map[byte]FileSettings
	lastStatus    Status
	scratch       []byte // monotonically-growing pre/post-process buffer
}

// New allocates a session engine over card, defaulting to ISO 7816 APDU
// wrapping (the framing most PC/SC contactless readers require).
func New(card transport.Card) *Session {
	return &Session{card: card, iso: true, fileSettings: map[byte]FileSettings{}}
}

// SetISOWrapping selects whether native commands are wrapped in a
// 0x90 CMD 00 00 Lc .. 00 ISO 7816 envelope (true, the default) or sent as
// bare opcode+payload frames (false), per §4.6.1's "the engine chooses
// wrapping per transport".
func (s *Session) SetISOWrapping(wrap bool) { s.iso = wrap }

// LastStatus returns the most recent native status byte the card reported.
func (s *Session) LastStatus() Status { return s.lastStatus }

// Authenticated reports whether a session key is currently established.
func (s *Session) Authenticated() bool { return s.key != nil }

func (s *Session) dropSessionKey() {
	if s.key != nil {
		slog.Debug("desfire: session key dropped, CMAC chain reset")
	}
	for i := range s.cmacIV {
		s.cmacIV[i] = 0
	}
	s.key = nil
	s.scheme = SchemeNone
	s.cmacIV = nil
	s.authKeyNo = 0
}

func (s *Session) growScratch(n int) []byte {
	if cap(s.scratch) < n {
		s.scratch = make([]byte, n)
	}
	return s.scratch[:n]
}

// transceive sends one native command/payload and follows the
// ADDITIONAL_FRAME (0xAF) continuation loop, returning the concatenated
// body across every frame plus the terminal status.
func (s *Session) transceive(cmd byte, payload []byte) ([]byte, Status, error) {
	body, status, err := s.frame(cmd, payload)
	if err != nil {
		return nil, 0, err
	}

	all := append([]byte{}, body...)
	for status == StatusAdditionalFrame {
		slog.Debug("desfire: multi-frame continuation", "cmd", cmd)
		body, status, err = s.frame(cmdAdditionalFrame, nil)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, body...)
	}
	s.lastStatus = status
	return all, status, nil
}

// frame sends exactly one native frame and splits its status byte back out
// of the response, wrapping in an ISO envelope if s.iso is set.
func (s *Session) frame(cmd byte, payload []byte) ([]byte, Status, error) {
	var apdu []byte
	if s.iso {
		apdu = make([]byte, 0, 6+len(payload))
		apdu = append(apdu, 0x90, cmd, 0x00, 0x00, byte(len(payload)))
		apdu = append(apdu, payload...)
		apdu = append(apdu, 0x00)
	} else {
		apdu = make([]byte, 0, 1+len(payload))
		apdu = append(apdu, cmd)
		apdu = append(apdu, payload...)
	}

	resp, sw, err := transport.Transceive(s.card, apdu)
	if err != nil {
		s.dropSessionKey()
		return nil, 0, carderr.Wrap(carderr.KindTransport, err, "desfire: transceive failed")
	}

	if s.iso {
		// ISO wrapping folds the DESFire status byte into the response
		// body's last byte; sw itself is the ISO 7816 SW, which Transceive
		// already validated carries a body.
		if len(resp) == 0 {
			s.dropSessionKey()
			return nil, 0, carderr.New(carderr.KindTransport, "desfire: empty ISO response")
		}
		status := Status(resp[len(resp)-1])
		return resp[:len(resp)-1], status, nil
	}

	if len(resp) == 0 {
		s.dropSessionKey()
		return nil, 0, carderr.New(carderr.KindTransport, "desfire: empty native response")
	}
	_ = sw
	return resp[1:], Status(resp[0]), nil
}

// transceiveChained runs a plain command under an authenticated New-scheme
// session, folding the outbound command into the rolling CMAC chain before
// sending and verifying the response's trailing CMAC against that same
// chain afterward — per testable property 6, even a plain command's reply
// must CMAC-verify once a New-scheme session is established. Legacy
// sessions and unauthenticated calls pass through unchanged.
func (s *Session) transceiveChained(cmd byte, payload []byte) ([]byte, Status, error) {
	chained := s.scheme == SchemeNew && s.key != nil
	if chained {
		if _, err := s.preProcess(cmd, nil, payload, CMACCommand); err != nil {
			return nil, 0, err
		}
	}
	body, status, err := s.transceive(cmd, payload)
	if err != nil || status != StatusOK {
		return body, status, err
	}
	if chained {
		body, err = s.postProcess(status, nil, body, CMACVerify)
		if err != nil {
			return nil, status, err
		}
	}
	return body, status, nil
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, carderr.Wrap(carderr.KindTransport, err, "desfire: random generation failed")
	}
	return b, nil
}
