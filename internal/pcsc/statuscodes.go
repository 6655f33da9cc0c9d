// Package pcsc implements the PC/SC smart-card RPC proxy: a local Unix
// socket stub that speaks the PC/SC-Lite client wire protocol, and a
// remote peer that drives a real PC/SC Backend over the LTSM channel
// (spec §4.6).
package pcsc

import "fmt"

// Status is the PC/SC-Lite result code enumeration. The proxy never
// invents its own error taxonomy here: every failure surfaces as the
// exact code the backend (or the remote peer) reported (spec §7:
// ScardError "surface as the exact PC/SC status code").
type Status uint32

// The PC/SC-Lite status code table (winscard.h), reproduced in full so
// callers can match exact codes rather than a lossy local subset (spec
// §4.6 DESIGN FLAG: "the full PC/SC-Lite status code table").
const (
	SCardSSuccess              Status = 0x00000000
	SCardFInternalError        Status = 0x80100001
	SCardECancelled            Status = 0x80100002
	SCardEInvalidHandle        Status = 0x80100003
	SCardEInvalidParameter     Status = 0x80100004
	SCardEInvalidTarget        Status = 0x80100005
	SCardENoMemory             Status = 0x80100006
	SCardFWaitedTooLong        Status = 0x80100007
	SCardEInsufficientBuffer   Status = 0x80100008
	SCardEUnknownReader        Status = 0x80100009
	SCardETimeout              Status = 0x8010000A
	SCardESharingViolation     Status = 0x8010000B
	SCardENoSmartcard          Status = 0x8010000C
	SCardEUnknownCard          Status = 0x8010000D
	SCardECantDispose          Status = 0x8010000E
	SCardEProtoMismatch        Status = 0x8010000F
	SCardENotReady             Status = 0x80100010
	SCardEInvalidValue         Status = 0x80100011
	SCardESystemCancelled      Status = 0x80100012
	SCardECommError            Status = 0x80100013
	SCardEUnknownError         Status = 0x80100014
	SCardEInvalidATR           Status = 0x80100015
	SCardENotTransacted        Status = 0x80100016
	SCardEReaderUnavailable    Status = 0x80100017
	SCardPShutdown             Status = 0x80100018
	SCardEPCITooSmall          Status = 0x80100019
	SCardEReaderUnsupported    Status = 0x8010001A
	SCardEDuplicateReader      Status = 0x8010001B
	SCardECardUnsupported      Status = 0x8010001C
	SCardENoService            Status = 0x8010001D
	SCardEServiceStopped       Status = 0x8010001E
	SCardEUnexpected           Status = 0x8010001F
	SCardEUnsupportedFeature   Status = 0x8010001F
	SCardEICCInstallation      Status = 0x80100020
	SCardEICCCreateOrder       Status = 0x80100021
	SCardEDirNotFound          Status = 0x80100023
	SCardEFileNotFound         Status = 0x80100024
	SCardENoDir                Status = 0x80100025
	SCardENoFile               Status = 0x80100026
	SCardENoAccess             Status = 0x80100027
	SCardEWriteTooMany         Status = 0x80100028
	SCardEBadSeek              Status = 0x80100029
	SCardEInvalidChv           Status = 0x8010002A
	SCardEUnknownResMng        Status = 0x8010002B
	SCardENoSuchCertificate    Status = 0x8010002C
	SCardECertificateUnavailable Status = 0x8010002D
	SCardENoReadersAvailable   Status = 0x8010002E
	SCardECommDataLost         Status = 0x8010002F
	SCardENoKeyContainer       Status = 0x80100030
	SCardEServerTooBusy        Status = 0x80100031
	SCardWUnsupportedCard      Status = 0x80100065
	SCardWUnresponsiveCard     Status = 0x80100066
	SCardWUnpoweredCard        Status = 0x80100067
	SCardWResetCard            Status = 0x80100068
	SCardWRemovedCard          Status = 0x80100069
	SCardWSecurityViolation    Status = 0x8010006A
	SCardWWrongChv             Status = 0x8010006B
	SCardWChvBlocked           Status = 0x8010006C
	SCardWEOF                  Status = 0x8010006D
	SCardWCancelledByUser      Status = 0x8010006E
	SCardWCardNotAuthenticated Status = 0x8010006F
)

var statusNames = map[Status]string{
	SCardSSuccess:                "SCARD_S_SUCCESS",
	SCardFInternalError:          "SCARD_F_INTERNAL_ERROR",
	SCardECancelled:              "SCARD_E_CANCELLED",
	SCardEInvalidHandle:          "SCARD_E_INVALID_HANDLE",
	SCardEInvalidParameter:       "SCARD_E_INVALID_PARAMETER",
	SCardEInvalidTarget:          "SCARD_E_INVALID_TARGET",
	SCardENoMemory:               "SCARD_E_NO_MEMORY",
	SCardFWaitedTooLong:          "SCARD_F_WAITED_TOO_LONG",
	SCardEInsufficientBuffer:     "SCARD_E_INSUFFICIENT_BUFFER",
	SCardEUnknownReader:          "SCARD_E_UNKNOWN_READER",
	SCardETimeout:                "SCARD_E_TIMEOUT",
	SCardESharingViolation:       "SCARD_E_SHARING_VIOLATION",
	SCardENoSmartcard:            "SCARD_E_NO_SMARTCARD",
	SCardEUnknownCard:            "SCARD_E_UNKNOWN_CARD",
	SCardECantDispose:            "SCARD_E_CANT_DISPOSE",
	SCardEProtoMismatch:          "SCARD_E_PROTO_MISMATCH",
	SCardENotReady:               "SCARD_E_NOT_READY",
	SCardEInvalidValue:           "SCARD_E_INVALID_VALUE",
	SCardESystemCancelled:        "SCARD_E_SYSTEM_CANCELLED",
	SCardECommError:              "SCARD_E_COMM_ERROR",
	SCardEUnknownError:           "SCARD_E_UNKNOWN_ERROR",
	SCardEInvalidATR:             "SCARD_E_INVALID_ATR",
	SCardENotTransacted:          "SCARD_E_NOT_TRANSACTED",
	SCardEReaderUnavailable:      "SCARD_E_READER_UNAVAILABLE",
	SCardPShutdown:               "SCARD_P_SHUTDOWN",
	SCardEPCITooSmall:            "SCARD_E_PCI_TOO_SMALL",
	SCardEReaderUnsupported:      "SCARD_E_READER_UNSUPPORTED",
	SCardEDuplicateReader:        "SCARD_E_DUPLICATE_READER",
	SCardECardUnsupported:        "SCARD_E_CARD_UNSUPPORTED",
	SCardENoService:              "SCARD_E_NO_SERVICE",
	SCardEServiceStopped:         "SCARD_E_SERVICE_STOPPED",
	SCardEUnsupportedFeature:     "SCARD_E_UNSUPPORTED_FEATURE",
	SCardEICCInstallation:        "SCARD_E_ICC_INSTALLATION",
	SCardEICCCreateOrder:         "SCARD_E_ICC_CREATEORDER",
	SCardEDirNotFound:            "SCARD_E_DIR_NOT_FOUND",
	SCardEFileNotFound:           "SCARD_E_FILE_NOT_FOUND",
	SCardENoDir:                  "SCARD_E_NO_DIR",
	SCardENoFile:                 "SCARD_E_NO_FILE",
	SCardENoAccess:               "SCARD_E_NO_ACCESS",
	SCardEWriteTooMany:           "SCARD_E_WRITE_TOO_MANY",
	SCardEBadSeek:                "SCARD_E_BAD_SEEK",
	SCardEInvalidChv:             "SCARD_E_INVALID_CHV",
	SCardEUnknownResMng:          "SCARD_E_UNKNOWN_RES_MNG",
	SCardENoSuchCertificate:      "SCARD_E_NO_SUCH_CERTIFICATE",
	SCardECertificateUnavailable: "SCARD_E_CERTIFICATE_UNAVAILABLE",
	SCardENoReadersAvailable:     "SCARD_E_NO_READERS_AVAILABLE",
	SCardECommDataLost:           "SCARD_E_COMM_DATA_LOST",
	SCardENoKeyContainer:         "SCARD_E_NO_KEY_CONTAINER",
	SCardEServerTooBusy:          "SCARD_E_SERVER_TOO_BUSY",
	SCardWUnsupportedCard:        "SCARD_W_UNSUPPORTED_CARD",
	SCardWUnresponsiveCard:       "SCARD_W_UNRESPONSIVE_CARD",
	SCardWUnpoweredCard:          "SCARD_W_UNPOWERED_CARD",
	SCardWResetCard:              "SCARD_W_RESET_CARD",
	SCardWRemovedCard:            "SCARD_W_REMOVED_CARD",
	SCardWSecurityViolation:      "SCARD_W_SECURITY_VIOLATION",
	SCardWWrongChv:               "SCARD_W_WRONG_CHV",
	SCardWChvBlocked:             "SCARD_W_CHV_BLOCKED",
	SCardWEOF:                    "SCARD_W_EOF",
	SCardWCancelledByUser:        "SCARD_W_CANCELLED_BY_USER",
	SCardWCardNotAuthenticated:   "SCARD_W_CARD_NOT_AUTHENTICATED",
}

// String renders the symbolic PC/SC-Lite name, falling back to the raw
// hex code for anything outside the table.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}
