package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/barnettlynn/gofreefare/pkg/cardtag"
	"github.com/barnettlynn/gofreefare/pkg/desfirekey"
)

type ValidationMode int

const (
	ValidationFull ValidationMode = iota
	ValidationAuthDiag
)

// Config is a reader session profile: which PC/SC reader to open, which
// card family to assume when a batch tool can't wait for full dispatch,
// and which key material to authenticate with.
type Config struct {
	Family  FamilyConfig  `yaml:"family"`
	Keys    KeysConfig    `yaml:"keys"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

// FamilyConfig names the card family a batch tool should assume and, for
// DESFire, the application it should select before doing anything else.
type FamilyConfig struct {
	Default    string `yaml:"default"`
	DefaultAID string `yaml:"default_aid"`
}

// KeysConfig names the key material a session should authenticate with.
// AuthKeyKind is one of "des", "2k3des", "3k3des", "aes" and only matters
// for DESFire; Classic and Ultralight profiles leave it blank.
type KeysConfig struct {
	AuthKeyNo      *int   `yaml:"auth_key_no"`
	AuthKeyKind    string `yaml:"auth_key_kind"`
	AuthKeyHexFile string `yaml:"auth_key_hex_file"`

	WriteKeyNo      *int   `yaml:"write_key_no"`
	WriteKeyHexFile string `yaml:"write_key_hex_file"`
}

// RuntimeConfig controls which reader to open and how a batch tool should
// behave once a card is on it.
type RuntimeConfig struct {
	ReaderIndex    *int  `yaml:"reader_index"`
	DiagnosticOnly *bool `yaml:"diagnostic_only"`
	ForcePlainComm *bool `yaml:"force_plain_comm"`
}

var familyNames = map[string]cardtag.Family{
	"classic1k":    cardtag.FamilyClassic1K,
	"classic4k":    cardtag.FamilyClassic4K,
	"ultralight":   cardtag.FamilyUltralight,
	"ultralight-c": cardtag.FamilyUltralightC,
	"ntag21x":      cardtag.FamilyNTAG21x,
	"desfire":      cardtag.FamilyDESFire,
	"felica":       cardtag.FamilyFeliCa,
}

var keyKindNames = map[string]desfirekey.Kind{
	"des":    desfirekey.DES,
	"2k3des": desfirekey.K2K3DES,
	"3k3des": desfirekey.K3K3DES,
	"aes":    desfirekey.AES,
}

func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationFull)
}

func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return c.ValidateWithMode(ValidationFull)
}

func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	switch mode {
	case ValidationAuthDiag:
		return c.validateAuthDiagMode()
	case ValidationFull:
		return c.validateFullMode()
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateCommon() error {
	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}
	return nil
}

// validateAuthDiagMode is the lightweight profile: enough to open a reader
// and attempt one authentication, without committing to a full batch run.
func (c *Config) validateAuthDiagMode() error {
	if c.Keys.AuthKeyNo == nil {
		return fmt.Errorf("config.keys.auth_key_no is required")
	}
	if *c.Keys.AuthKeyNo < 0 || *c.Keys.AuthKeyNo > 15 {
		return fmt.Errorf("config.keys.auth_key_no must be 0..15")
	}
	if strings.TrimSpace(c.Keys.AuthKeyHexFile) == "" {
		return fmt.Errorf("config.keys.auth_key_hex_file is required")
	}
	if err := validateReadableFile(c.Keys.AuthKeyHexFile, "config.keys.auth_key_hex_file"); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFullMode() error {
	family, ok := familyNames[strings.ToLower(strings.TrimSpace(c.Family.Default))]
	if !ok {
		return fmt.Errorf("config.family.default must be one of: classic1k, classic4k, ultralight, ultralight-c, ntag21x, desfire, felica")
	}

	if family == cardtag.FamilyDESFire {
		if err := validateAID(c.Family.DefaultAID); err != nil {
			return fmt.Errorf("config.family.default_aid: %w", err)
		}
		if _, ok := keyKindNames[strings.ToLower(strings.TrimSpace(c.Keys.AuthKeyKind))]; !ok {
			return fmt.Errorf("config.keys.auth_key_kind must be one of: des, 2k3des, 3k3des, aes")
		}
	}

	if err := c.validateAuthDiagMode(); err != nil {
		return err
	}

	if c.Keys.WriteKeyNo == nil {
		return fmt.Errorf("config.keys.write_key_no is required")
	}
	if *c.Keys.WriteKeyNo < 0 || *c.Keys.WriteKeyNo > 15 {
		return fmt.Errorf("config.keys.write_key_no must be 0..15")
	}
	if strings.TrimSpace(c.Keys.WriteKeyHexFile) == "" {
		return fmt.Errorf("config.keys.write_key_hex_file is required")
	}
	if err := validateReadableFile(c.Keys.WriteKeyHexFile, "config.keys.write_key_hex_file"); err != nil {
		return err
	}

	if c.Runtime.DiagnosticOnly == nil {
		return fmt.Errorf("config.runtime.diagnostic_only is required")
	}
	if c.Runtime.ForcePlainComm == nil {
		return fmt.Errorf("config.runtime.force_plain_comm is required")
	}

	return nil
}

// ResolvedFamily resolves the configured default family name, or
// FamilyUnknown with ok=false if it doesn't match a known name. Callers
// that reached validateFullMode successfully are guaranteed a known match.
func (c *Config) ResolvedFamily() (cardtag.Family, bool) {
	f, ok := familyNames[strings.ToLower(strings.TrimSpace(c.Family.Default))]
	return f, ok
}

// ResolvedAuthKeyKind resolves the configured DESFire auth key kind.
func (c *Config) ResolvedAuthKeyKind() (desfirekey.Kind, bool) {
	k, ok := keyKindNames[strings.ToLower(strings.TrimSpace(c.Keys.AuthKeyKind))]
	return k, ok
}

func validateAID(hexAID string) error {
	trimmed := strings.TrimSpace(hexAID)
	if trimmed == "" {
		return fmt.Errorf("is required for the desfire family")
	}
	if len(trimmed) != 6 {
		return fmt.Errorf("must be 3 bytes of hex (6 characters), got %q", trimmed)
	}
	for _, r := range trimmed {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return fmt.Errorf("must be hex, got %q", trimmed)
		}
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Keys.AuthKeyHexFile = resolvePath(configDir, c.Keys.AuthKeyHexFile)
	c.Keys.WriteKeyHexFile = resolvePath(configDir, c.Keys.WriteKeyHexFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
