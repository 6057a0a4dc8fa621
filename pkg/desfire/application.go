package desfire

import (
	"log/slog"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
	"github.com/barnettlynn/gofreefare/pkg/desfirekey"
)

// AID is a 3-byte little-endian DESFire application identifier.
type AID [3]byte

const (
	cmdCreateApplication    = 0xca
	cmdDeleteApplication    = 0xda
	cmdGetApplicationIDs    = 0x6a
	cmdGetDFNames           = 0x6d
	cmdSelectApplication    = 0x5a
	cmdFormatPICC           = 0xfc
	cmdGetVersion           = 0x60
	cmdFreeMemory           = 0x6e
	cmdChangeKeySettings    = 0x54
	cmdGetKeySettings       = 0x45
	cmdChangeKey            = 0xc4
	cmdGetKeyVersion        = 0x64
	cmdSetConfiguration     = 0x5c
	cmdGetCardUID           = 0x51
)

// KeySettings mirrors DESFire's application key-settings byte plus the
// key-count/kind byte returned by GetKeySettings and consumed by
// CreateApplication.
type KeySettings struct {
	ChangeKeyAccessRights byte // 0x0..0xD = a specific key, 0xE = same key only, 0xF = frozen
	ConfigurationChangeable bool
	FreeCreateDelete        bool
	FreeDirectoryList       bool
	AllowChangeWithoutAuth  bool

	KeyCount byte
	KeyKind  desfirekey.Kind
}

func (k KeySettings) settingsByte() byte {
	b := k.ChangeKeyAccessRights << 4
	if k.ConfigurationChangeable {
		b |= 0x08
	}
	if k.FreeCreateDelete {
		b |= 0x04
	}
	if k.FreeDirectoryList {
		b |= 0x02
	}
	if k.AllowChangeWithoutAuth {
		b |= 0x01
	}
	return b
}

func keySettingsFromByte(b byte) KeySettings {
	return KeySettings{
		ChangeKeyAccessRights:   b >> 4,
		ConfigurationChangeable: b&0x08 != 0,
		FreeCreateDelete:        b&0x04 != 0,
		FreeDirectoryList:       b&0x02 != 0,
		AllowChangeWithoutAuth:  b&0x01 != 0,
	}
}

func keyKindByte(k desfirekey.Kind) byte {
	switch k {
	case desfirekey.AES:
		return 0x80
	case desfirekey.K3K3DES:
		return 0x40
	default:
		return 0x00
	}
}

func kindFromKeyKindByte(b byte) desfirekey.Kind {
	switch b & 0xc0 {
	case 0x80:
		return desfirekey.AES
	case 0x40:
		return desfirekey.K3K3DES
	default:
		return desfirekey.K2K3DES
	}
}

// CreateApplication creates a new application with the given AID, key
// settings, and key count/kind.
func (s *Session) CreateApplication(aid AID, settings KeySettings) error {
	payload := []byte{aid[0], aid[1], aid[2], settings.settingsByte(), settings.KeyCount | keyKindByte(settings.KeyKind)}
	return s.statusOnly(cmdCreateApplication, payload)
}

// CreateApplicationISO additionally registers an ISO file ID and/or DF
// name for the application.
func (s *Session) CreateApplicationISO(aid AID, settings KeySettings, isoFileID uint16, dfName []byte) error {
	payload := []byte{aid[0], aid[1], aid[2], settings.settingsByte(), settings.KeyCount | keyKindByte(settings.KeyKind)}
	if isoFileID != 0 {
		payload = append(payload, byte(isoFileID), byte(isoFileID>>8))
	}
	payload = append(payload, dfName...)
	return s.statusOnly(cmdCreateApplication, payload)
}

// DeleteApplication removes aid. If aid is the currently-selected
// application, the session key is dropped.
func (s *Session) DeleteApplication(aid AID) error {
	if err := s.statusOnly(cmdDeleteApplication, aid[:]); err != nil {
		return err
	}
	if s.hasSelection && s.selected == aid {
		s.dropSessionKey()
		s.hasSelection = false
	}
	return nil
}

// GetApplicationIDs lists every application on the PICC. The response may
// span multiple frames (3 bytes per AID) and, under an authenticated
// session, is CMAC-verified as one concatenated payload.
func (s *Session) GetApplicationIDs() ([]AID, error) {
	body, status, err := s.transceiveChained(cmdGetApplicationIDs, nil)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, s.errorFromStatus(status)
	}

	var out []AID
	for i := 0; i+3 <= len(body); i += 3 {
		out = append(out, AID{body[i], body[i+1], body[i+2]})
	}
	return out, nil
}

// SelectApplication selects aid for subsequent operations, or the PICC
// level if aid is nil. Selecting clears the session key, resets the CMAC
// chain, and invalidates the file-settings cache.
func (s *Session) SelectApplication(aid *AID) error {
	payload := []byte{0, 0, 0}
	if aid != nil {
		payload = aid[:]
	}
	if err := s.statusOnly(cmdSelectApplication, payload); err != nil {
		return err
	}
	s.dropSessionKey()
	s.fileSettings = map[byte]FileSettings{}
	if aid != nil {
		s.selected = *aid
		s.hasSelection = true
		slog.Debug("desfire: application selected", "aid", *aid)
	} else {
		s.hasSelection = false
		slog.Debug("desfire: PICC master application selected")
	}
	return nil
}

// FormatPICC erases all applications and files, clearing session state and
// reselecting the master application. It is idempotent: calling it twice
// in succession succeeds both times and leaves zero applications
// (testable property 8).
func (s *Session) FormatPICC() error {
	if err := s.statusOnly(cmdFormatPICC, nil); err != nil {
		return err
	}
	s.dropSessionKey()
	s.fileSettings = map[byte]FileSettings{}
	s.hasSelection = false
	slog.Info("desfire: PICC formatted")
	return nil
}

// Version is the PICC/chip identification GetVersion returns, across its
// three response frames.
type Version struct {
	HardwareVendor, SoftwareVendor             byte
	HardwareType, SoftwareType                 byte
	HardwareSubtype, SoftwareSubtype           byte
	HardwareMajor, HardwareMinor               byte
	SoftwareMajor, SoftwareMinor               byte
	HardwareStorageSize, SoftwareStorageSize   byte
	HardwareProtocol, SoftwareProtocol         byte
	UID                                        [7]byte
	BatchNo                                    [5]byte
	ProductionWeek, ProductionYear             byte
}

// GetVersion reads the three-frame hardware/software/production response.
// Under an authenticated New-scheme session this is a plain command whose
// reply still must CMAC-verify (testable property 6, scenario S5).
func (s *Session) GetVersion() (Version, error) {
	var v Version
	body, status, err := s.transceiveChained(cmdGetVersion, nil)
	if err != nil {
		return v, err
	}
	if status != StatusOK {
		return v, s.errorFromStatus(status)
	}
	if len(body) < 28 {
		return v, carderr.New(carderr.KindCard, "desfire: malformed GetVersion response")
	}
	v.HardwareVendor, v.HardwareType, v.HardwareSubtype = body[0], body[1], body[2]
	v.HardwareMajor, v.HardwareMinor, v.HardwareStorageSize, v.HardwareProtocol = body[3], body[4], body[5], body[6]
	v.SoftwareVendor, v.SoftwareType, v.SoftwareSubtype = body[7], body[8], body[9]
	v.SoftwareMajor, v.SoftwareMinor, v.SoftwareStorageSize, v.SoftwareProtocol = body[10], body[11], body[12], body[13]
	copy(v.UID[:], body[14:21])
	copy(v.BatchNo[:], body[21:26])
	v.ProductionWeek, v.ProductionYear = body[26], body[27]
	return v, nil
}

// FreeMemory returns the number of free EEPROM bytes.
func (s *Session) FreeMemory() (uint32, error) {
	body, status, err := s.transceive(cmdFreeMemory, nil)
	if err != nil {
		return 0, err
	}
	if status != StatusOK || len(body) < 3 {
		return 0, carderr.New(carderr.KindCard, "desfire: malformed FreeMem response")
	}
	return uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16, nil
}

// ChangeKeySettings changes the selected application's key settings. Must
// be called under an authenticated session (enciphered).
func (s *Session) ChangeKeySettings(settings KeySettings) error {
	payload, err := s.preProcess(cmdChangeKeySettings, nil, []byte{settings.settingsByte()}, MDCMEnciphered)
	if err != nil {
		return err
	}
	return s.statusOnly(cmdChangeKeySettings, payload)
}

// GetKeySettings returns the selected application's key settings and
// key-count/kind byte.
func (s *Session) GetKeySettings() (KeySettings, error) {
	body, status, err := s.transceive(cmdGetKeySettings, nil)
	if err != nil {
		return KeySettings{}, err
	}
	if status != StatusOK || len(body) < 2 {
		return KeySettings{}, carderr.New(carderr.KindCard, "desfire: malformed GetKeySettings response")
	}
	ks := keySettingsFromByte(body[0])
	ks.KeyCount = body[1] & 0x0f
	ks.KeyKind = kindFromKeyKindByte(body[1])
	return ks, nil
}

// GetKeyVersion returns the version byte stored for keyNo.
func (s *Session) GetKeyVersion(keyNo byte) (byte, error) {
	body, status, err := s.transceive(cmdGetKeyVersion, []byte{keyNo})
	if err != nil {
		return 0, err
	}
	if status != StatusOK || len(body) < 1 {
		return 0, s.errorFromStatus(status)
	}
	return body[0], nil
}

// DFName is one entry of GetDFNames: an application's AID paired with its
// registered ISO file ID and DF name string. Unlike GetApplicationIDs,
// entries are variable-length and do not concatenate across frames — each
// 0xAF continuation carries exactly one more entry.
type DFName struct {
	AID       AID
	ISOFileID uint16
	Name      []byte
}

// GetDFNames lists the ISO DF name registered for every application on the
// PICC, looping on ADDITIONAL_FRAME the same way GetApplicationIDs does,
// but decoding one entry per frame instead of concatenating raw bytes.
func (s *Session) GetDFNames() ([]DFName, error) {
	var out []DFName
	body, status, err := s.frame(cmdGetDFNames, nil)
	if err != nil {
		return nil, err
	}
	for {
		if status != StatusOK && status != StatusAdditionalFrame {
			return nil, s.errorFromStatus(status)
		}
		if len(body) > 0 {
			if len(body) < 5 {
				return nil, carderr.New(carderr.KindCard, "desfire: malformed GetDFNames entry")
			}
			out = append(out, DFName{
				AID:       AID{body[0], body[1], body[2]},
				ISOFileID: uint16(body[3]) | uint16(body[4])<<8,
				Name:      append([]byte{}, body[5:]...),
			})
		}
		if status != StatusAdditionalFrame {
			break
		}
		body, status, err = s.frame(cmdAdditionalFrame, nil)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetConfiguration toggles two persistent PICC options: disableFormat makes
// FormatPICC permanently refuse once set, enableRandomUID switches the
// PICC's 7-byte UID to a random value on every anticollision response.
// Only the flags byte is encrypted; the 0x00 subcommand stays in the clear
// header, same split as the original's preprocess_data offset of 2.
func (s *Session) SetConfiguration(disableFormat, enableRandomUID bool) error {
	flags := byte(0)
	if enableRandomUID {
		flags |= 0x02
	}
	if disableFormat {
		flags |= 0x01
	}
	header := []byte{0x00}
	secured, err := s.preProcess(cmdSetConfiguration, header, []byte{flags}, MDCMEnciphered|ENCCommand)
	if err != nil {
		return err
	}
	return s.statusOnly(cmdSetConfiguration, append(header, secured...))
}

// GetCardUID returns the PICC's real 7-byte UID, which differs from the
// anticollision UID once SetConfiguration has enabled random UID rotation.
// The request only advances the CMAC chain (MDCM_PLAIN | CMAC_COMMAND); the
// response comes back enciphered.
func (s *Session) GetCardUID() ([7]byte, error) {
	var uid [7]byte
	if _, err := s.preProcess(cmdGetCardUID, nil, nil, CMACCommand); err != nil {
		return uid, err
	}
	body, status, err := s.transceive(cmdGetCardUID, nil)
	if err != nil {
		return uid, err
	}
	if status != StatusOK {
		return uid, s.errorFromStatus(status)
	}
	body, err = s.postProcess(status, nil, body, MDCMEnciphered)
	if err != nil {
		return uid, err
	}
	if len(body) < 7 {
		return uid, carderr.New(carderr.KindCard, "desfire: malformed GetCardUID response")
	}
	copy(uid[:], body[:7])
	return uid, nil
}

// statusOnly runs a command expecting no response body beyond the status
// byte.
func (s *Session) statusOnly(cmd byte, payload []byte) error {
	_, status, err := s.transceive(cmd, payload)
	if err != nil {
		return err
	}
	if status != StatusOK {
		return s.errorFromStatus(status)
	}
	return nil
}
