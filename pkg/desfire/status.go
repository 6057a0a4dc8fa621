package desfire

import (
	"fmt"

	"github.com/barnettlynn/gofreefare/pkg/carderr"
)

// Status is a native DESFire PICC status byte.
type Status byte

// Native status bytes, values per the well-known libfreefare/DESFire
// functional specification taxonomy named in spec §4.6.8.
const (
	StatusOK                  Status = 0x00
	StatusNoChanges           Status = 0x0c
	StatusOutOfEEPROM         Status = 0x0e
	StatusIllegalCommand      Status = 0x1c
	StatusIntegrityError      Status = 0x1e
	StatusNoSuchKey           Status = 0x40
	StatusLengthError         Status = 0x7e
	StatusPermissionDenied    Status = 0x9d
	StatusParameterError      Status = 0x9e
	StatusApplicationNotFound Status = 0xa0
	StatusApplIntegrityError  Status = 0xa1
	StatusAuthenticationError Status = 0xae
	StatusAdditionalFrame     Status = 0xaf
	StatusBoundaryError       Status = 0xbe
	StatusPICCIntegrityError  Status = 0xc1
	StatusCommandAborted      Status = 0xca
	StatusPICCDisabled        Status = 0xcd
	StatusCountError          Status = 0xce
	StatusDuplicateError      Status = 0xde
	StatusEEPROMError         Status = 0xee
	StatusFileNotFound        Status = 0xf0
	StatusFileIntegrityError Status = 0xf1
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoChanges:
		return "NO_CHANGES"
	case StatusOutOfEEPROM:
		return "OUT_OF_EEPROM"
	case StatusIllegalCommand:
		return "ILLEGAL_COMMAND"
	case StatusIntegrityError:
		return "INTEGRITY_ERROR"
	case StatusNoSuchKey:
		return "NO_SUCH_KEY"
	case StatusLengthError:
		return "LENGTH_ERROR"
	case StatusPermissionDenied:
		return "PERMISSION_DENIED"
	case StatusParameterError:
		return "PARAMETER_ERROR"
	case StatusApplicationNotFound:
		return "APPLICATION_NOT_FOUND"
	case StatusApplIntegrityError:
		return "APPL_INTEGRITY_ERROR"
	case StatusAuthenticationError:
		return "AUTHENTICATION_ERROR"
	case StatusAdditionalFrame:
		return "ADDITIONAL_FRAME"
	case StatusBoundaryError:
		return "BOUNDARY_ERROR"
	case StatusPICCIntegrityError:
		return "PICC_INTEGRITY_ERROR"
	case StatusCommandAborted:
		return "COMMAND_ABORTED"
	case StatusPICCDisabled:
		return "PICC_DISABLED"
	case StatusCountError:
		return "COUNT_ERROR"
	case StatusDuplicateError:
		return "DUPLICATE_ERROR"
	case StatusEEPROMError:
		return "EEPROM_ERROR"
	case StatusFileNotFound:
		return "FILE_NOT_FOUND"
	case StatusFileIntegrityError:
		return "FILE_INTEGRITY_ERROR"
	default:
		return fmt.Sprintf("status(0x%02X)", byte(s))
	}
}

// errorFromStatus classifies a non-OK, non-additional-frame status into the
// shared carderr taxonomy, preserving the raw byte.
func errorFromStatus(s Status) error {
	kind := carderr.KindCard
	switch s {
	case StatusPermissionDenied, StatusAuthenticationError:
		kind = carderr.KindAccessDenied
	case StatusIntegrityError, StatusApplIntegrityError, StatusPICCIntegrityError, StatusFileIntegrityError:
		kind = carderr.KindIntegrity
	case StatusParameterError, StatusLengthError, StatusCountError:
		kind = carderr.KindInvalidArgument
	}
	return &carderr.Error{Kind: kind, Raw: uint16(s), Msg: "desfire: " + s.String()}
}

// errorFromStatus classifies status into the shared carderr taxonomy and, per
// spec §7 ("On any IntegrityError or TransportError during a DESFire
// command, the session key is discarded"), drops the session key whenever
// the classification is KindIntegrity.
func (s *Session) errorFromStatus(status Status) error {
	err := errorFromStatus(status)
	if carderr.IsIntegrityError(err) {
		s.dropSessionKey()
	}
	return err
}

// integrityError builds a KindIntegrity error for a locally-detected (C)MAC
// or CRC mismatch and discards the session key, same rule as errorFromStatus.
func (s *Session) integrityError(msg string) error {
	s.dropSessionKey()
	return carderr.New(carderr.KindIntegrity, msg)
}
