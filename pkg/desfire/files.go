package desfire

import "github.com/barnettlynn/gofreefare/pkg/carderr"

// FileType names one of DESFire's five file kinds.
type FileType byte

const (
	FileStdData      FileType = 0x00
	FileBackupData   FileType = 0x01
	FileValue        FileType = 0x02
	FileLinearRecord FileType = 0x03
	FileCyclicRecord FileType = 0x04
)

// FileSettings mirrors the file-settings record format of §6.3:
// type(1) | commSetting(1) | accessRights(2 LE), then a type-specific body.
type FileSettings struct {
	Type        FileType
	CommSetting CommSetting
	AccessRights uint16 // read(4)|write(4)|readwrite(4)|change(4), nibble-packed LE

	// FileStdData / FileBackupData
	Size uint32

	// FileValue
	LowerLimit, UpperLimit, LimitedCreditValue int32
	LimitedCreditEnabled                       bool

	// FileLinearRecord / FileCyclicRecord
	RecordSize, MaxRecords, CurrentRecords uint32
}

const (
	cmdGetFileIDs        = 0x6f
	cmdGetFileSettings   = 0xf5
	cmdChangeFileSettings = 0x5f
	cmdCreateStdDataFile  = 0xcd
	cmdCreateBackupFile   = 0xcb
	cmdCreateValueFile    = 0xcc
	cmdCreateLinearRecord = 0xc1
	cmdCreateCyclicRecord = 0xc0
	cmdDeleteFile         = 0xdf
)

// commSettingFromWire decodes the wire comm-setting byte (0=plain,
// 1=MACed, 3=enciphered) into the engine's internal CommSetting flags.
func commSettingFromWire(b byte) CommSetting {
	switch b & 0x03 {
	case 0x01:
		return MDCMMaced
	case 0x03:
		return MDCMEnciphered
	default:
		return MDCMPlain
	}
}

func commSettingToWire(c CommSetting) byte {
	switch {
	case c&MDCMEnciphered != 0:
		return 0x03
	case c&MDCMMaced != 0:
		return 0x01
	default:
		return 0x00
	}
}

// GetFileIDs lists the file numbers present in the selected application.
func (s *Session) GetFileIDs() ([]byte, error) {
	body, status, err := s.transceive(cmdGetFileIDs, nil)
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, s.errorFromStatus(status)
	}
	return body, nil
}

// GetFileSettings returns (and caches) fileNo's settings record.
func (s *Session) GetFileSettings(fileNo byte) (FileSettings, error) {
	if fs, ok := s.fileSettings[fileNo]; ok {
		return fs, nil
	}

	body, status, err := s.transceive(cmdGetFileSettings, []byte{fileNo})
	if err != nil {
		return FileSettings{}, err
	}
	if status != StatusOK || len(body) < 4 {
		return FileSettings{}, s.errorFromStatus(status)
	}

	fs := FileSettings{
		Type:         FileType(body[0]),
		CommSetting:  commSettingFromWire(body[1]),
		AccessRights: uint16(body[2]) | uint16(body[3])<<8,
	}
	rest := body[4:]
	switch fs.Type {
	case FileStdData, FileBackupData:
		if len(rest) >= 3 {
			fs.Size = le24(rest)
		}
	case FileValue:
		if len(rest) >= 13 {
			fs.LowerLimit = int32(le32(rest[0:4]))
			fs.UpperLimit = int32(le32(rest[4:8]))
			fs.LimitedCreditValue = int32(le32(rest[8:12]))
			fs.LimitedCreditEnabled = rest[12] != 0
		}
	case FileLinearRecord, FileCyclicRecord:
		if len(rest) >= 9 {
			fs.RecordSize = le24(rest[0:3])
			fs.MaxRecords = le24(rest[3:6])
			fs.CurrentRecords = le24(rest[6:9])
		}
	}

	s.fileSettings[fileNo] = fs
	return fs, nil
}

// ChangeFileSettings rewrites fileNo's comm setting and access rights.
// The exchange is plain when the access-rights change field is FREE
// (nibble 0xE in the low 4 bits of AccessRights), enciphered otherwise.
func (s *Session) ChangeFileSettings(fileNo byte, commSetting CommSetting, accessRights uint16) error {
	payload := []byte{commSettingToWire(commSetting), byte(accessRights), byte(accessRights >> 8)}

	setting := MDCMPlain
	if accessRights&0x0f != 0x0e {
		setting = MDCMEnciphered
	}
	body, err := s.preProcess(cmdChangeFileSettings, []byte{fileNo}, payload, setting)
	if err != nil {
		return err
	}
	if err := s.statusOnly(cmdChangeFileSettings, append([]byte{fileNo}, body...)); err != nil {
		return err
	}
	delete(s.fileSettings, fileNo)
	return nil
}

func createFilePayload(fileNo byte, commSetting CommSetting, accessRights uint16, body []byte) []byte {
	out := []byte{fileNo, commSettingToWire(commSetting), byte(accessRights), byte(accessRights >> 8)}
	return append(out, body...)
}

// CreateStdDataFile creates a standard (non-backup) data file of size bytes.
func (s *Session) CreateStdDataFile(fileNo byte, commSetting CommSetting, accessRights uint16, size uint32) error {
	payload := createFilePayload(fileNo, commSetting, accessRights, le24Bytes(size))
	err := s.statusOnly(cmdCreateStdDataFile, payload)
	delete(s.fileSettings, fileNo)
	return err
}

// CreateBackupDataFile creates a transaction-backed data file.
func (s *Session) CreateBackupDataFile(fileNo byte, commSetting CommSetting, accessRights uint16, size uint32) error {
	payload := createFilePayload(fileNo, commSetting, accessRights, le24Bytes(size))
	err := s.statusOnly(cmdCreateBackupFile, payload)
	delete(s.fileSettings, fileNo)
	return err
}

// CreateValueFile creates a value file with the given bounds, initial
// value, and optional limited-credit support.
func (s *Session) CreateValueFile(fileNo byte, commSetting CommSetting, accessRights uint16, lower, upper, value int32, limitedCreditEnabled bool) error {
	body := make([]byte, 0, 13)
	body = append(body, le32Bytes(uint32(lower))...)
	body = append(body, le32Bytes(uint32(upper))...)
	body = append(body, le32Bytes(uint32(value))...)
	flag := byte(0)
	if limitedCreditEnabled {
		flag = 1
	}
	body = append(body, flag)
	payload := createFilePayload(fileNo, commSetting, accessRights, body)
	err := s.statusOnly(cmdCreateValueFile, payload)
	delete(s.fileSettings, fileNo)
	return err
}

// CreateLinearRecordFile creates a non-wrapping record file with room for
// maxRecords records of recordSize bytes each.
func (s *Session) CreateLinearRecordFile(fileNo byte, commSetting CommSetting, accessRights uint16, recordSize, maxRecords uint32) error {
	body := append(le24Bytes(recordSize), le24Bytes(maxRecords)...)
	payload := createFilePayload(fileNo, commSetting, accessRights, body)
	err := s.statusOnly(cmdCreateLinearRecord, payload)
	delete(s.fileSettings, fileNo)
	return err
}

// CreateCyclicRecordFile creates a wrapping record file: once maxRecords
// is reached, writing a new record overwrites the oldest one.
func (s *Session) CreateCyclicRecordFile(fileNo byte, commSetting CommSetting, accessRights uint16, recordSize, maxRecords uint32) error {
	body := append(le24Bytes(recordSize), le24Bytes(maxRecords)...)
	payload := createFilePayload(fileNo, commSetting, accessRights, body)
	err := s.statusOnly(cmdCreateCyclicRecord, payload)
	delete(s.fileSettings, fileNo)
	return err
}

// DeleteFile removes fileNo, invalidating its cached settings.
func (s *Session) DeleteFile(fileNo byte) error {
	err := s.statusOnly(cmdDeleteFile, []byte{fileNo})
	delete(s.fileSettings, fileNo)
	return err
}

func le24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func le24Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

func le32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func requireSelection(s *Session) error {
	if !s.hasSelection {
		return carderr.New(carderr.KindInvalidState, "desfire: no application selected")
	}
	return nil
}
