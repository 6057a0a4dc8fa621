package desfirekey

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/barnettlynn/gofreefare/pkg/cardcrypto"
)

// HexFile is one key loaded from a .hex file: a bare line of hex digits
// whose length implies the key kind (16 chars -> DES, 32 -> 2K3DES or AES,
// 48 -> 3K3DES). Ambiguity between 2K3DES and AES (both 32 hex chars) is
// resolved by the caller supplying the expected kind; LoadKeyHexFile does
// not guess.
type HexFile struct {
	Name string
	Kind Kind
	Raw  []byte
}

// LoadKeyHexFile loads a single key from a hex-encoded file, generalising
// the teacher's AES-only LoadKeyHexFile to every key kind via an expected
// byte length.
func LoadKeyHexFile(path string, kind Kind) (*Key, error) {
	raw, err := loadHexLine(path, cardcrypto.KeyLen(kind))
	if err != nil {
		return nil, err
	}
	return rawToKey(kind, raw)
}

func loadHexLine(path string, wantLen int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) != wantLen*2 {
			return nil, fmt.Errorf("desfirekey: key must be %d hex chars, got %d", wantLen*2, len(line))
		}
		raw, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("desfirekey: invalid hex key: %v", err)
		}
		return raw, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("desfirekey: key file is empty")
}

func rawToKey(kind Kind, raw []byte) (*Key, error) {
	switch kind {
	case DES:
		var b [8]byte
		copy(b[:], raw)
		return NewDESKeyWithVersion(b), nil
	case K2K3DES:
		var b [16]byte
		copy(b[:], raw)
		return New2K3DESKeyWithVersion(b), nil
	case K3K3DES:
		var b [24]byte
		copy(b[:], raw)
		return New3K3DESKeyWithVersion(b), nil
	case AES:
		var b [16]byte
		copy(b[:], raw)
		return NewAESKey(b), nil
	default:
		return nil, fmt.Errorf("desfirekey: unknown key kind %d", kind)
	}
}

// LoadAllHexKeys loads every *.hex file in dir as a key of the given kind,
// skipping files that fail to parse — matching the teacher's
// LoadAllHexKeys's silent-skip behaviour for a directory of candidate keys.
func LoadAllHexKeys(dir string, kind Kind) ([]HexFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []HexFile
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".hex" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := loadHexLine(path, cardcrypto.KeyLen(kind))
		if err != nil {
			continue
		}
		out = append(out, HexFile{Name: e.Name(), Kind: kind, Raw: raw})
	}
	return out, nil
}
