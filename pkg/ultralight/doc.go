// Package ultralight drives MIFARE Ultralight, Ultralight-C, and NTAG21x
// targets: 4-byte page I/O through a rolling read cache, NTAG subtype
// detection from GetVersion's storage-size byte, and NTAG21x password
// authentication / configuration-page access.
//
// Grounded on pkg/classic's Tag (a cache shape generalized from its
// access-bits cache) for page-oriented cards that share a reader
// abstraction with Classic and DESFire. Every command, including
// GET_VERSION, AUTH and READ_SIG, is sent to the card as its bare native
// opcode and arguments, with no pseudo-APDU wrapper and no ISO 7816 status
// word.
package ultralight
