// Package mad implements the MIFARE Application Directory (component C8):
// MADv1/v2 structures, NXP CRC-8 validation, card read/write through
// pkg/classic, and application sector allocation/free/find.
//
// Grounded on mad.c and mifare_application.c in full.
package mad
