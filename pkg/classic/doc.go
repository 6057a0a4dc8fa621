// Package classic implements the MIFARE Classic command set (component
// C7): authentication, block read/write, value-block arithmetic, access-bit
// permission queries, sector formatting, and sector geometry helpers.
//
// Grounded on mifare_classic.c in full. Card transport uses the PC/SC Part
// 3 contactless-storage-card pseudo-APDUs (Load Keys FF 82, General
// Authenticate FF 86, Read Binary FF B0, Update Binary FF D6) over the same
// transport.Card the rest of this module uses, following the same
// GET-DATA-pseudo-APDU convention the teacher's transport.GetUID already
// established for UID retrieval.
package classic
