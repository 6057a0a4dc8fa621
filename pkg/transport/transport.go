package transport

import (
	"log/slog"

	"github.com/ebfe/scard"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
)

// Card abstracts transmit behavior for a real PC/SC card and test doubles
// alike, matching the teacher's Card interface exactly.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// Framing selects how the reader handles the ISO 14443A link layer.
type Framing int

const (
	// EasyFraming lets the reader compute and verify CRC/parity itself.
	EasyFraming Framing = iota
	// RawFraming has the caller supply CRC.
	RawFraming
)

// Reader is one opened PC/SC connection to a reader slot. It implements
// Card. Grounded on the teacher's pcsc.go Connection type, generalized to
// track a framing mode and log through log/slog the way the teacher's
// library files do.
type Reader struct {
	ctx    *scard.Context
	card   *scard.Card
	name   string
	index  int
	framer Framing
}

// Context owns the process-wide PC/SC context; initialise once, tear down
// once, per §5 of the design.
type Context struct {
	ctx *scard.Context
}

// NewContext establishes the PC/SC context.
func NewContext() (*Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, carderr.Wrap(carderr.KindTransport, err, "establish PC/SC context")
	}
	return &Context{ctx: ctx}, nil
}

// Close releases the PC/SC context.
func (c *Context) Close() error {
	if c == nil || c.ctx == nil {
		return nil
	}
	if err := c.ctx.Release(); err != nil {
		return carderr.Wrap(carderr.KindTransport, err, "release PC/SC context")
	}
	return nil
}

// ListReaders returns the names of every reader slot visible on this
// context.
func (c *Context) ListReaders() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	if err != nil {
		return nil, carderr.Wrap(carderr.KindTransport, err, "list readers")
	}
	return readers, nil
}

// Open connects to the reader at readerIndex (0-based, per ListReaders'
// order) with the given framing mode, matching the reader-selection Non-goal
// of "no reader-selection logic beyond a single index."
func (c *Context) Open(readerIndex int, framing Framing) (*Reader, error) {
	readers, err := c.ListReaders()
	if err != nil {
		return nil, err
	}
	if len(readers) == 0 {
		return nil, carderr.New(carderr.KindTransport, "no readers found")
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		return nil, carderr.Newf(carderr.KindInvalidArgument, "reader index out of range (0..%d)", len(readers)-1)
	}

	name := readers[readerIndex]
	card, err := c.ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, carderr.Wrap(carderr.KindTransport, err, "connect to reader")
	}

	slog.Debug("reader opened", "reader", name, "index", readerIndex)
	return &Reader{ctx: c.ctx, card: card, name: name, index: readerIndex, framer: framing}, nil
}

// SetFraming switches the framing mode used for subsequent Transmit calls.
// The reader itself does not change configuration ahead of a select; this
// just records which mode the caller intends to speak so higher layers
// (e.g. the DESFire engine choosing ISO-wrapped vs native framing) can
// query it back.
func (r *Reader) SetFraming(f Framing) { r.framer = f }

// Framing reports the reader's current framing mode.
func (r *Reader) Framing() Framing { return r.framer }

// Name returns the PC/SC reader name this Reader is bound to.
func (r *Reader) Name() string { return r.name }

// Close disconnects the card, leaving it on the reader (no forced reset).
func (r *Reader) Close() error {
	if r == nil || r.card == nil {
		return nil
	}
	if err := r.card.Disconnect(scard.LeaveCard); err != nil {
		return carderr.Wrap(carderr.KindTransport, err, "disconnect reader")
	}
	return nil
}

// Transmit sends a raw APDU/command frame to whatever card is seated on
// the reader and returns the raw response. Implements Card.
func (r *Reader) Transmit(apdu []byte) ([]byte, error) {
	if r == nil || r.card == nil {
		return nil, carderr.New(carderr.KindInvalidState, "reader not connected")
	}
	resp, err := r.card.Transmit(apdu)
	if err != nil {
		return nil, carderr.Wrap(carderr.KindTransport, err, "transceive")
	}
	return resp, nil
}

// Transceive sends apdu and splits the trailing 2-byte ISO 7816 status
// word from the response body, matching the teacher's package-level
// Transmit helper in card.go.
func Transceive(card Card, apdu []byte) (body []byte, sw uint16, err error) {
	resp, err := card.Transmit(apdu)
	if err != nil {
		return nil, 0, err
	}
	if len(resp) < 2 {
		return nil, 0, carderr.Newf(carderr.KindTransport, "short response: %d bytes", len(resp))
	}
	sw = uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	return resp[:len(resp)-2], sw, nil
}

// GetUID retrieves the card UID via the ISO 7816 GET DATA command
// (FF CA 00 00), trying a wildcard Le then an explicit 4-byte Le.
func GetUID(card Card) ([]byte, error) {
	for _, le := range []byte{0x00, 0x04} {
		apdu := []byte{0xFF, 0xCA, 0x00, 0x00, le}
		data, sw, err := Transceive(card, apdu)
		if err == nil && sw == 0x9000 && len(data) > 0 {
			return data, nil
		}
	}
	return nil, carderr.New(carderr.KindTransport, "UID not available via GET DATA")
}
