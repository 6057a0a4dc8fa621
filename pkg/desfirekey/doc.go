// Package desfirekey represents the four DESFire key kinds (DES, 2K3DES,
// 3K3DES, AES-128), their parity/version-byte conventions, and the derived
// session key a successful authentication produces. It is grounded on
// mifare_desfire_key.c, generalising the teacher's NTAG424 AES-only
// keys.go to every key kind the DESFire session engine supports.
package desfirekey
