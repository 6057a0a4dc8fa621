// Package keydiversifier implements the AN10922 key diversification
// algorithm: build a message from master-key-specific and application
// data, then run CMAC(master, DIV||message) once, twice, or three times
// depending on the output key kind and master key size, concatenating the
// results into a derived key. Grounded on mifare_key_deriver.c.
package keydiversifier
