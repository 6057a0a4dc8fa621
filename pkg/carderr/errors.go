// Package carderr is the error taxonomy every package above the transport
// layer returns: TransportError, InvalidState, InvalidArgument,
// AccessDenied, IntegrityError, CardError, CryptoConfigError, and
// UnknownTagType, per §7 of the design. Classification helpers
// (IsAccessDenied, IsIntegrityError, ...) let callers branch on kind
// without type-asserting every concrete error value, generalizing the
// teacher's SWError/IsAuthError/IsBoundaryError pattern to a
// family-agnostic taxonomy instead of one tied to DESFire status words.
package carderr

import "fmt"

// Kind identifies one of the taxonomy's error categories.
type Kind int

const (
	// KindTransport: reader I/O failed; session state becomes suspect.
	KindTransport Kind = iota
	// KindInvalidState: operation called on an inactive tag or wrong family.
	KindInvalidState
	// KindInvalidArgument: malformed key length, out-of-range page/block,
	// unknown communication mode.
	KindInvalidArgument
	// KindAccessDenied: card reports a permission, authentication, or
	// access-rights violation.
	KindAccessDenied
	// KindIntegrity: CRC, MAC, or CMAC mismatch in a received payload, or a
	// value-block self-consistency failure.
	KindIntegrity
	// KindCard: any other card-reported status; the verbatim byte/word is
	// preserved in Error.Raw.
	KindCard
	// KindCryptoConfig: attempt to diversify into an unsupported key kind,
	// or overflow of the diversifier message buffer.
	KindCryptoConfig
	// KindUnknownTagType: the dispatcher could not match the target
	// descriptor against any known signature.
	KindUnknownTagType
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TransportError"
	case KindInvalidState:
		return "InvalidState"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindAccessDenied:
		return "AccessDenied"
	case KindIntegrity:
		return "IntegrityError"
	case KindCard:
		return "CardError"
	case KindCryptoConfig:
		return "CryptoConfigError"
	case KindUnknownTagType:
		return "UnknownTagType"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every package in this module returns
// for a card- or protocol-level failure. Raw carries the verbatim
// card-reported status (byte for Classic/MAD ACK codes, uint16 status
// word for DESFire/ISO 7816) when Kind == KindCard; it is 0 otherwise.
type Error struct {
	Kind Kind
	Raw  uint16
	Msg  string
	Err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Raw != 0 {
		return fmt.Sprintf("%s: %s (raw=0x%04X)", e.Kind, e.Msg, e.Raw)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithRaw attaches a verbatim card status code to a KindCard error.
func WithRaw(raw uint16, msg string) *Error {
	return &Error{Kind: KindCard, Raw: raw, Msg: msg}
}

func is(err error, kind Kind) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == kind
}

func IsTransportError(err error) bool    { return is(err, KindTransport) }
func IsInvalidState(err error) bool      { return is(err, KindInvalidState) }
func IsInvalidArgument(err error) bool   { return is(err, KindInvalidArgument) }
func IsAccessDenied(err error) bool      { return is(err, KindAccessDenied) }
func IsIntegrityError(err error) bool    { return is(err, KindIntegrity) }
func IsCardError(err error) bool         { return is(err, KindCard) }
func IsCryptoConfigError(err error) bool { return is(err, KindCryptoConfig) }
func IsUnknownTagType(err error) bool    { return is(err, KindUnknownTagType) }
