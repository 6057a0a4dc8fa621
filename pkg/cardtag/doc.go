// Package cardtag dispatches a detected contactless target to the card
// family that can drive it, allocating that family's session state.
//
// Grounded on the signature-table idea in
// oo-developer-acr122u/database/card_probe.go (a table of known values
// matched by prefix, first/best match wins), generalized from ATR strings
// to the (modulation, SAK, ATS-prefix, predicate) tuples a PC/SC reader
// actually exposes for a contactless target.
package cardtag
