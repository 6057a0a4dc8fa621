// Package transport is the reader-facing boundary (component C1):
// establishing a PC/SC context, listing and opening readers, selecting a
// framing mode, and transceiving raw bytes to whatever card is on the
// reader. Every higher-level package (cardcrypto-driven session engines,
// the tag dispatcher) talks to a card exclusively through the Card
// interface this package defines; nothing above this layer imports
// github.com/ebfe/scard directly.
//
// Grounded on the teacher's pkg/ntag424/pcsc.go and card.go, generalized
// from a single hardcoded NTAG424 connection helper into a small reader
// abstraction that also exposes the easy/raw framing switch SPEC_FULL.md's
// transport adapter requires.
package transport
