package desfire

import "github.com/barnettlynn/gofreefare/pkg/carderr"

const (
	cmdReadData           = 0xbd
	cmdWriteData           = 0x3d
	cmdGetValue            = 0x6c
	cmdCredit              = 0x0c
	cmdDebit               = 0xdc
	cmdLimitedCredit       = 0x1c
	cmdWriteRecord         = 0x3b
	cmdReadRecords         = 0xbb
	cmdClearRecordFile     = 0xeb
	cmdCommitTransaction   = 0xc7
	cmdAbortTransaction    = 0xa7

	maxFrameChunk = 52 // conservative payload budget per frame under a 64-byte APDU
)

// ReadData reads length bytes starting at offset from a standard or backup
// data file, looping on ADDITIONAL_FRAME until the whole range arrives.
func (s *Session) ReadData(fileNo byte, offset, length uint32) ([]byte, error) {
	return s.readDataEx(fileNo, offset, length, s.commSettingFor(fileNo))
}

// ReadDataEx is ReadData with an explicit communication mode, bypassing
// the file-settings cache.
func (s *Session) ReadDataEx(fileNo byte, offset, length uint32, setting CommSetting) ([]byte, error) {
	return s.readDataEx(fileNo, offset, length, setting)
}

func (s *Session) readDataEx(fileNo byte, offset, length uint32, setting CommSetting) ([]byte, error) {
	if err := requireSelection(s); err != nil {
		return nil, err
	}
	header := []byte{fileNo}
	payload := append(le24Bytes(offset), le24Bytes(length)...)

	body, status, err := s.transceive(cmdReadData, append(header, payload...))
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, s.errorFromStatus(status)
	}
	return s.postProcess(status, nil, body, verifySettingFor(setting))
}

// WriteData writes data at offset into a standard or backup data file,
// chunking across multiple frames when it exceeds the per-frame limit. The
// last frame's terminal status ends the transaction; 0xAF is never
// terminal and any non-zero status is a PICC error.
func (s *Session) WriteData(fileNo byte, offset uint32, data []byte) error {
	return s.writeDataEx(fileNo, offset, data, s.commSettingFor(fileNo))
}

// WriteDataEx is WriteData with an explicit communication mode.
func (s *Session) WriteDataEx(fileNo byte, offset uint32, data []byte, setting CommSetting) error {
	return s.writeDataEx(fileNo, offset, data, setting)
}

func (s *Session) writeDataEx(fileNo byte, offset uint32, data []byte, setting CommSetting) error {
	if err := requireSelection(s); err != nil {
		return err
	}
	header := append([]byte{fileNo}, append(le24Bytes(offset), le24Bytes(uint32(len(data)))...)...)

	secured, err := s.preProcess(cmdWriteData, header, data, commandSettingFor(setting))
	if err != nil {
		return err
	}

	return s.sendChunked(cmdWriteData, header, secured)
}

// sendChunked sends header+body as the first frame (truncated to the
// per-frame budget) followed by 0xAF continuations carrying the rest,
// exactly as §4.6.4 describes.
func (s *Session) sendChunked(cmd byte, header, body []byte) error {
	first := append([]byte{}, header...)
	remaining := body

	budget := maxFrameChunk - len(header)
	if budget < 0 {
		budget = 0
	}
	if len(remaining) < budget {
		budget = len(remaining)
	}
	first = append(first, remaining[:budget]...)
	remaining = remaining[budget:]

	_, status, err := s.frame(cmd, first)
	if err != nil {
		return err
	}

	for status == StatusAdditionalFrame {
		chunk := remaining
		if len(chunk) > maxFrameChunk {
			chunk = chunk[:maxFrameChunk]
		}
		_, st, err := s.frame(cmdAdditionalFrame, chunk)
		if err != nil {
			return err
		}
		remaining = remaining[len(chunk):]
		status = st
		if len(remaining) == 0 && status == StatusAdditionalFrame {
			// Card still expects more after we ran out of body: treat as
			// a protocol error rather than looping forever.
			return s.integrityError("desfire: card requested more frames than the payload provided")
		}
	}

	s.lastStatus = status
	if status != StatusOK {
		return s.errorFromStatus(status)
	}
	return nil
}

// GetValue reads a value file's current balance.
func (s *Session) GetValue(fileNo byte) (int32, error) {
	if err := requireSelection(s); err != nil {
		return 0, err
	}
	body, status, err := s.transceive(cmdGetValue, []byte{fileNo})
	if err != nil {
		return 0, err
	}
	if status != StatusOK {
		return 0, s.errorFromStatus(status)
	}
	body, err = s.postProcess(status, nil, body, s.commSettingFor(fileNo)|CMACVerify)
	if err != nil {
		return 0, err
	}
	if len(body) < 4 {
		return 0, carderr.New(carderr.KindCard, "desfire: malformed GetValue response")
	}
	return int32(le32(body)), nil
}

func (s *Session) valueOp(cmd, fileNo byte, amount int32) error {
	if err := requireSelection(s); err != nil {
		return err
	}
	payload, err := s.preProcess(cmd, []byte{fileNo}, le32Bytes(uint32(amount)), commandSettingFor(s.commSettingFor(fileNo)))
	if err != nil {
		return err
	}
	return s.statusOnly(cmd, append([]byte{fileNo}, payload...))
}

// Credit adds amount to a value file's balance.
func (s *Session) Credit(fileNo byte, amount int32) error { return s.valueOp(cmdCredit, fileNo, amount) }

// Debit subtracts amount from a value file's balance.
func (s *Session) Debit(fileNo byte, amount int32) error { return s.valueOp(cmdDebit, fileNo, amount) }

// LimitedCredit adds amount to a value file enabled for limited credit
// without requiring the Credit key.
func (s *Session) LimitedCredit(fileNo byte, amount int32) error {
	return s.valueOp(cmdLimitedCredit, fileNo, amount)
}

// WriteRecord appends a record to a linear or cyclic record file.
func (s *Session) WriteRecord(fileNo byte, offset uint32, data []byte) error {
	if err := requireSelection(s); err != nil {
		return err
	}
	header := append([]byte{fileNo}, append(le24Bytes(offset), le24Bytes(uint32(len(data)))...)...)
	secured, err := s.preProcess(cmdWriteRecord, header, data, commandSettingFor(s.commSettingFor(fileNo)))
	if err != nil {
		return err
	}
	return s.sendChunked(cmdWriteRecord, header, secured)
}

// ReadRecords reads count records of recordSize bytes each, starting
// offsetFromNewest records back from the most recently written one.
func (s *Session) ReadRecords(fileNo byte, offsetFromNewest, count uint32) ([]byte, error) {
	if err := requireSelection(s); err != nil {
		return nil, err
	}
	payload := append(le24Bytes(offsetFromNewest), le24Bytes(count)...)
	body, status, err := s.transceive(cmdReadRecords, append([]byte{fileNo}, payload...))
	if err != nil {
		return nil, err
	}
	if status != StatusOK {
		return nil, s.errorFromStatus(status)
	}
	return s.postProcess(status, nil, body, verifySettingFor(s.commSettingFor(fileNo)))
}

// ClearRecordFile empties a cyclic or linear record file's contents
// without deleting the file itself.
func (s *Session) ClearRecordFile(fileNo byte) error {
	return s.statusOnly(cmdClearRecordFile, []byte{fileNo})
}

// CommitTransaction finalizes every pending value/record change since the
// last commit/abort.
func (s *Session) CommitTransaction() error { return s.statusOnly(cmdCommitTransaction, nil) }

// AbortTransaction discards every pending value/record change since the
// last commit/abort.
func (s *Session) AbortTransaction() error { return s.statusOnly(cmdAbortTransaction, nil) }

// commSettingFor looks up fileNo's cached comm setting, defaulting to
// plain if the file hasn't been queried yet (the caller is expected to
// have called GetFileSettings, or to use the _Ex variant).
func (s *Session) commSettingFor(fileNo byte) CommSetting {
	if fs, ok := s.fileSettings[fileNo]; ok {
		return fs.CommSetting
	}
	return MDCMPlain
}

// commandSettingFor maps a file's comm setting to the flag preProcess
// should act on when sending (enciphered or MACed data is secured before
// transmission; plain data still advances the CMAC chain under the New
// scheme so future reads can be verified).
func commandSettingFor(setting CommSetting) CommSetting {
	switch {
	case setting&MDCMEnciphered != 0:
		return MDCMEnciphered
	case setting&MDCMMaced != 0:
		return MDCMMaced
	default:
		return CMACCommand
	}
}

// verifySettingFor is commandSettingFor's receive-side counterpart.
func verifySettingFor(setting CommSetting) CommSetting {
	switch {
	case setting&MDCMEnciphered != 0:
		return MDCMEnciphered
	case setting&MDCMMaced != 0:
		return MDCMMaced
	default:
		return CMACVerify
	}
}
