// Package desfire implements the MIFARE DESFire request/response session
// engine: mutual authentication (Legacy DES/3DES, ISO 3K3DES, AES), the
// per-command cryptographic framing DESFire calls "communication settings"
// (plain / MACed / enciphered, with a CMAC chain that spans the whole
// session), multi-frame chaining, and the application/file/data operation
// surface built on top of it.
//
// Grounded on the teacher's NTAG424 secure-messaging session
// (pkg/ntag424/auth.go, secure.go) for the shape of a session-keyed engine
// over a transceive loop, generalized from NTAG424's single EV2 scheme to
// DESFire's three authentication schemes and much larger command set.
package desfire
