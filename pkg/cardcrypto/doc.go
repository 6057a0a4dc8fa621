// Package cardcrypto implements the block-cipher, chaining, CRC and CMAC
// primitives shared by the DESFire, Classic and MAD engines: DES/3DES/AES
// ECB, direction-aware CBC chaining, ISO 14443A CRC-16, DESFire CRC-32, NXP
// MAD CRC-8, and CMAC subkey generation/computation.
//
// Key kinds map onto Go's standard block ciphers rather than a bespoke DES
// implementation: T_DES and the two three-key variants all reduce to
// crypto/des's single- and triple-DES constructors, and AES-128 to
// crypto/aes. No third-party cipher library in the retrieved example pack
// offers DES at all, so the stdlib primitives are the only grounded choice
// for this concern.
package cardcrypto
