package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode errors.
var (
	ErrTooShort         = errors.New("packet too short")
	ErrBadMagic         = errors.New("bad packet magic")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUnknownType      = errors.New("unknown packet type")
)

// Encoded packet sizes in bytes.
const (
	SensorDataLen = 21
	DetectionLen  = 13
	StatusLen     = 19
)

// Packet is an uplink telemetry packet that can be framed onto the wire.
type Packet interface {
	// Type returns the packet type tag.
	Type() byte
	// Marshal encodes the packet with magic prefix and CRC16 trailer.
	Marshal() []byte
}

// SensorData carries one environmental sample. Scaled fields follow the
// wire convention: temperature and humidity x100, pressure x10, gas
// resistance (kOhm) and IAQ x10.
type SensorData struct {
	Timestamp     uint32
	Temperature   int16
	Humidity      uint16
	Pressure      uint16
	GasResistance uint16
	IAQ           uint16
	Status        byte
	Battery       byte
}

// Type returns the sensor packet type tag.
func (p SensorData) Type() byte { return PacketTypeSensor }

// Marshal encodes the packet into its 21-byte wire form.
func (p SensorData) Marshal() []byte {
	buf := make([]byte, SensorDataLen)
	binary.LittleEndian.PutUint16(buf[0:2], Magic)
	buf[2] = PacketTypeSensor
	binary.LittleEndian.PutUint32(buf[3:7], p.Timestamp)
	binary.LittleEndian.PutUint16(buf[7:9], uint16(p.Temperature))
	binary.LittleEndian.PutUint16(buf[9:11], p.Humidity)
	binary.LittleEndian.PutUint16(buf[11:13], p.Pressure)
	binary.LittleEndian.PutUint16(buf[13:15], p.GasResistance)
	binary.LittleEndian.PutUint16(buf[15:17], p.IAQ)
	buf[17] = p.Status
	buf[18] = p.Battery
	seal(buf)
	return buf
}

// Detection reports one vision event from the camera/ML subsystem.
type Detection struct {
	Timestamp     uint32
	DetectionType byte
	Confidence    byte
	Duration      uint16
}

// Type returns the detection packet type tag.
func (p Detection) Type() byte { return PacketTypeDetection }

// Marshal encodes the packet into its 13-byte wire form.
func (p Detection) Marshal() []byte {
	buf := make([]byte, DetectionLen)
	binary.LittleEndian.PutUint16(buf[0:2], Magic)
	buf[2] = PacketTypeDetection
	binary.LittleEndian.PutUint32(buf[3:7], p.Timestamp)
	buf[7] = p.DetectionType
	buf[8] = p.Confidence
	binary.LittleEndian.PutUint16(buf[9:11], p.Duration)
	seal(buf)
	return buf
}

// Status carries periodic node health counters.
type Status struct {
	Uptime   uint32
	TxCount  uint32
	RxCount  uint32
	DataRate byte
	Battery  byte
}

// Type returns the status packet type tag.
func (p Status) Type() byte { return PacketTypeStatus }

// Marshal encodes the packet into its 19-byte wire form.
func (p Status) Marshal() []byte {
	buf := make([]byte, StatusLen)
	binary.LittleEndian.PutUint16(buf[0:2], Magic)
	buf[2] = PacketTypeStatus
	binary.LittleEndian.PutUint32(buf[3:7], p.Uptime)
	binary.LittleEndian.PutUint32(buf[7:11], p.TxCount)
	binary.LittleEndian.PutUint32(buf[11:15], p.RxCount)
	buf[15] = p.DataRate
	buf[16] = p.Battery
	seal(buf)
	return buf
}

// seal stamps the CRC16 over everything but the trailing checksum field.
func seal(buf []byte) {
	crc := CRC16(buf[:len(buf)-2])
	binary.LittleEndian.PutUint16(buf[len(buf)-2:], crc)
}

// Decode parses a framed telemetry packet, dispatching on the type tag.
// It fails with ErrTooShort, ErrBadMagic or ErrChecksumMismatch before
// any field is interpreted.
func Decode(data []byte) (Packet, error) {
	if len(data) < 3 {
		return nil, ErrTooShort
	}
	if binary.LittleEndian.Uint16(data[0:2]) != Magic {
		return nil, ErrBadMagic
	}

	var want int
	switch data[2] {
	case PacketTypeSensor:
		want = SensorDataLen
	case PacketTypeDetection:
		want = DetectionLen
	case PacketTypeStatus:
		want = StatusLen
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, data[2])
	}

	if len(data) < want {
		return nil, ErrTooShort
	}
	if err := checkCRC(data[:want]); err != nil {
		return nil, err
	}

	switch data[2] {
	case PacketTypeSensor:
		return SensorData{
			Timestamp:     binary.LittleEndian.Uint32(data[3:7]),
			Temperature:   int16(binary.LittleEndian.Uint16(data[7:9])),
			Humidity:      binary.LittleEndian.Uint16(data[9:11]),
			Pressure:      binary.LittleEndian.Uint16(data[11:13]),
			GasResistance: binary.LittleEndian.Uint16(data[13:15]),
			IAQ:           binary.LittleEndian.Uint16(data[15:17]),
			Status:        data[17],
			Battery:       data[18],
		}, nil
	case PacketTypeDetection:
		return Detection{
			Timestamp:     binary.LittleEndian.Uint32(data[3:7]),
			DetectionType: data[7],
			Confidence:    data[8],
			Duration:      binary.LittleEndian.Uint16(data[9:11]),
		}, nil
	default:
		return Status{
			Uptime:   binary.LittleEndian.Uint32(data[3:7]),
			TxCount:  binary.LittleEndian.Uint32(data[7:11]),
			RxCount:  binary.LittleEndian.Uint32(data[11:15]),
			DataRate: data[15],
			Battery:  data[16],
		}, nil
	}
}

// IsFramed reports whether payload starts with the packet magic, i.e.
// whether it claims to be a CRC-protected telemetry packet.
func IsFramed(payload []byte) bool {
	return len(payload) >= 2 && binary.LittleEndian.Uint16(payload[0:2]) == Magic
}

// Validate verifies the CRC16 trailer of a framed payload. Payloads
// without the packet magic pass through untouched; framed payloads with
// a stale checksum are rejected so corrupt data never leaves the node.
func Validate(payload []byte) error {
	if !IsFramed(payload) {
		return nil
	}
	if len(payload) < 5 {
		return ErrTooShort
	}
	return checkCRC(payload)
}

func checkCRC(data []byte) error {
	got := binary.LittleEndian.Uint16(data[len(data)-2:])
	want := CRC16(data[:len(data)-2])
	if got != want {
		return fmt.Errorf("%w: got 0x%04x want 0x%04x", ErrChecksumMismatch, got, want)
	}
	return nil
}
