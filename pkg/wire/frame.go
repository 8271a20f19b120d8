package wire

import (
	"encoding/binary"
	"errors"
)

// Frame errors.
var (
	ErrEmptyFrame      = errors.New("empty command frame")
	ErrPayloadTooLarge = errors.New("command payload too large")
)

// Command is a parsed downlink command frame: a single identifier byte
// followed by an optional payload. The wire carries no length prefix;
// the payload length is implicit from the transport frame size.
type Command struct {
	ID      byte
	Payload []byte
}

// ParseCommand splits a downlink frame into command ID and payload.
// The command set itself is validated by the processor, not here.
func ParseCommand(frame []byte) (Command, error) {
	if len(frame) == 0 {
		return Command{}, ErrEmptyFrame
	}
	if len(frame)-1 > MaxCommandPayload {
		return Command{}, ErrPayloadTooLarge
	}

	cmd := Command{ID: frame[0]}
	if len(frame) > 1 {
		cmd.Payload = frame[1:]
	}
	return cmd, nil
}

// KnownCommand reports whether id belongs to the supported command set.
func KnownCommand(id byte) bool {
	switch id {
	case CmdPing, CmdSetInterval, CmdSetDataRate, CmdSetTxPower,
		CmdReboot, CmdGetStatus, CmdSetLED, CmdSetAlarm,
		CmdGetBattery, CmdSetADR, CmdClearStats:
		return true
	}
	return false
}

// AckResponse builds the single-byte ACK frame.
func AckResponse() []byte { return []byte{RespAck} }

// NackResponse builds the single-byte NACK frame.
func NackResponse() []byte { return []byte{RespNack} }

// ErrorResponse builds an ERROR frame carrying a wire error code.
func ErrorResponse(code byte) []byte { return []byte{RespError, code} }

// StatusInfo is the configuration/counter snapshot reported by the
// GET_STATUS command.
type StatusInfo struct {
	TransmitIntervalMs uint32
	DataRate           byte
	TxPowerDbm         int8
	ADREnabled         bool
	LEDEnabled         bool
	AlarmEnabled       bool
	TxCount            uint32
	RxCount            uint32
}

// StatusResponseLen is the encoded size of a STATUS response frame.
const StatusResponseLen = 18

// StatusResponse encodes the 18-byte GET_STATUS reply.
func StatusResponse(info StatusInfo) []byte {
	buf := make([]byte, StatusResponseLen)
	buf[0] = RespStatus
	binary.LittleEndian.PutUint32(buf[1:5], info.TransmitIntervalMs)
	buf[5] = info.DataRate
	buf[6] = byte(info.TxPowerDbm)
	buf[7] = boolByte(info.ADREnabled)
	buf[8] = boolByte(info.LEDEnabled)
	buf[9] = boolByte(info.AlarmEnabled)
	binary.LittleEndian.PutUint32(buf[10:14], info.TxCount)
	binary.LittleEndian.PutUint32(buf[14:18], info.RxCount)
	return buf
}

// ParseStatusResponse decodes a STATUS response frame; counterpart of
// StatusResponse for consumers and tests.
func ParseStatusResponse(frame []byte) (StatusInfo, error) {
	if len(frame) < StatusResponseLen {
		return StatusInfo{}, ErrTooShort
	}
	if frame[0] != RespStatus {
		return StatusInfo{}, ErrUnknownType
	}
	return StatusInfo{
		TransmitIntervalMs: binary.LittleEndian.Uint32(frame[1:5]),
		DataRate:           frame[5],
		TxPowerDbm:         int8(frame[6]),
		ADREnabled:         frame[7] != 0,
		LEDEnabled:         frame[8] != 0,
		AlarmEnabled:       frame[9] != 0,
		TxCount:            binary.LittleEndian.Uint32(frame[10:14]),
		RxCount:            binary.LittleEndian.Uint32(frame[14:18]),
	}, nil
}

// BatteryResponse encodes the GET_BATTERY reply: percent 0-100 and
// voltage scaled x10 (42 = 4.2 V).
func BatteryResponse(percent byte, voltage float64) []byte {
	return []byte{RespBattery, percent, byte(voltage * 10)}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
