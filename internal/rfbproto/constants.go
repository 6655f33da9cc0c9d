package rfbproto

// Version banners recognized during the RFB handshake (spec §4.3).
const (
	Version003003 = "RFB 003.003\n"
	Version003007 = "RFB 003.007\n"
	Version003008 = "RFB 003.008\n"
)

// Security types (spec §4.3).
const (
	SecurityInvalid  uint8 = 0
	SecurityNone     uint8 = 1
	SecurityVNC      uint8 = 2
	SecurityVeNCrypt uint8 = 19
)

// SecurityResult values.
const (
	SecurityResultOK     uint32 = 0
	SecurityResultFailed uint32 = 1
)

// VeNCrypt sub-types (spec §4.3).
const (
	VeNCryptTLSNone uint32 = 257
	VeNCryptTLSVnc  uint32 = 258
	VeNCryptX509None uint32 = 260
	VeNCryptX509Vnc  uint32 = 261
)

// Client-to-server message types.
const (
	MsgSetPixelFormat           uint8 = 0
	MsgSetEncodings             uint8 = 2
	MsgFramebufferUpdateRequest uint8 = 3
	MsgKeyEvent                 uint8 = 4
	MsgPointerEvent             uint8 = 5
	MsgClientCutText            uint8 = 6
	MsgEnableContinuousUpdates  uint8 = 150
	MsgSetDesktopSize           uint8 = 251
)

// Server-to-client message types.
const (
	MsgFramebufferUpdate uint8 = 0
	MsgSetColourMap      uint8 = 1
	MsgBell              uint8 = 2
	MsgServerCutText     uint8 = 3
)

// LTSM extension reserved message-type range (spec §6.1).
const (
	MsgLTSMSystem  uint8 = 0xF0
	MsgLTSMChannel uint8 = 0xF1
	MsgLTSMConnect uint8 = 0xF2
	MsgLTSMAck     uint8 = 0xF3
	MsgLTSMClose   uint8 = 0xF4
)

// Encoding identifiers, both real pixel encodings and pseudo-encodings
// (spec §4.3, §4.4).
const (
	EncodingRaw      int32 = 0
	EncodingCopyRect int32 = 1
	EncodingRRE      int32 = 2
	EncodingCoRRE    int32 = 4
	EncodingHextile  int32 = 5
	EncodingZlib     int32 = 6
	EncodingTRLE     int32 = 15
	EncodingZRLE     int32 = 16
	EncodingZlibHex  int32 = 8

	EncodingLTSMQOI   int32 = -301
	EncodingLTSMLZ4   int32 = -302
	EncodingLTSMTJPG  int32 = -303
	EncodingFFMPEGH264 int32 = -311
	EncodingFFMPEGAV1  int32 = -312
	EncodingFFMPEGVP8  int32 = -313

	PseudoEncodingDesktopSize         int32 = -223
	PseudoEncodingExtendedDesktopSize int32 = -308
	PseudoEncodingContinuousUpdates   int32 = -314
	PseudoEncodingCursor              int32 = -239
	PseudoEncodingLTSMCursor          int32 = -305
	PseudoEncodingExtClipboard        int32 = -309
	PseudoEncodingLastRect            int32 = -224
)

// Desktop-resize screen change flags / status codes (ExtendedDesktopSize,
// spec §4.3).
const (
	ExtDesktopSizeStatusAdvertise uint8 = 0
	ExtDesktopSizeStatusResult    uint8 = 1

	ExtDesktopSizeErrorNone    uint8 = 0
	ExtDesktopSizeErrorInvalid uint8 = 1
)

// Extended clipboard capability flags (spec §4.3).
const (
	ClipboardTypeText uint32 = 1 << 0
	ClipboardTypeRTF  uint32 = 1 << 1
	ClipboardTypeHTML uint32 = 1 << 2
	ClipboardOpRequest uint32 = 1 << 24
	ClipboardOpNotify  uint32 = 1 << 25
	ClipboardOpProvide uint32 = 1 << 26
)

// DesktopResizeMode distinguishes how a session negotiated resize support.
type DesktopResizeMode int

const (
	DesktopResizeNone DesktopResizeMode = iota
	DesktopResizeExtended
)
