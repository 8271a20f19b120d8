// Package wire implements the binary uplink/downlink formats spoken by
// the node: fixed-layout little-endian telemetry packets with a CRC16
// trailer, and the single-byte-tagged command/response frames carried
// on the command port.
package wire

// Magic is the 2-byte prefix of every framed telemetry packet.
const Magic uint16 = 0xA5A5

// Telemetry packet type tags.
const (
	PacketTypeSensor    byte = 0x01
	PacketTypeDetection byte = 0x02
	PacketTypeStatus    byte = 0x03
)

// Downlink command identifiers.
const (
	CmdPing        byte = 0x00
	CmdSetInterval byte = 0x01
	CmdSetDataRate byte = 0x02
	CmdSetTxPower  byte = 0x03
	CmdReboot      byte = 0x04
	CmdGetStatus   byte = 0x05
	CmdSetLED      byte = 0x06
	CmdSetAlarm    byte = 0x07
	CmdGetBattery  byte = 0x08
	CmdSetADR      byte = 0x09
	CmdClearStats  byte = 0x0A
)

// Uplink response tags.
const (
	RespAck     byte = 0x80
	RespNack    byte = 0x81
	RespStatus  byte = 0x82
	RespBattery byte = 0x83
	RespError   byte = 0xFF
)

// Wire error codes carried in an ERROR response frame.
const (
	CodeUnknownCommand   byte = 0x01
	CodeInvalidParameter byte = 0x02
	CodeNotImplemented   byte = 0x03
	CodeBufferOverflow   byte = 0x04
	CodeChecksumFail     byte = 0x05
	CodeNotJoined        byte = 0x06
	CodeNetworkError     byte = 0x07
	CodeQueueOverflow    byte = 0x08
)

// Status flag bits of the SensorData status byte.
const (
	StatusSensorOK     byte = 1 << 0
	StatusMotionDetect byte = 1 << 1
	StatusObjectDetect byte = 1 << 2
	StatusAlarmActive  byte = 1 << 3
	StatusLowBattery   byte = 1 << 4
	StatusSensorError  byte = 1 << 5
	StatusNetworkError byte = 1 << 6
	StatusMemoryError  byte = 1 << 7
)

// MaxCommandPayload is the largest command payload the node accepts.
const MaxCommandPayload = 16

// Parameter ranges enforced by the command processor.
const (
	IntervalMinMs = 10000
	IntervalMaxMs = 3600000
	DataRateMin   = 0
	DataRateMax   = 5
	TxPowerMinDbm = 0
	TxPowerMaxDbm = 20
)

// CodeName returns a short human-readable name for a wire error code.
func CodeName(code byte) string {
	switch code {
	case CodeUnknownCommand:
		return "unknown command"
	case CodeInvalidParameter:
		return "invalid parameter"
	case CodeNotImplemented:
		return "not implemented"
	case CodeBufferOverflow:
		return "buffer overflow"
	case CodeChecksumFail:
		return "checksum failed"
	case CodeNotJoined:
		return "not joined"
	case CodeNetworkError:
		return "network error"
	case CodeQueueOverflow:
		return "queue overflow"
	default:
		return "unknown error"
	}
}
