package wire

import (
	"errors"
	"testing"
)

func TestDecode_SensorDataRoundTrip(t *testing.T) {
	in := SensorData{
		Timestamp:     1735689600,
		Temperature:   2345, // 23.45 C
		Humidity:      6500, // 65.00 %
		Pressure:      10132,
		GasResistance: 5200,
		IAQ:           87,
		Status:        StatusSensorOK | StatusMotionDetect,
		Battery:       91,
	}

	buf := in.Marshal()
	if len(buf) != SensorDataLen {
		t.Fatalf("encoded length = %d, want %d", len(buf), SensorDataLen)
	}

	out, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, ok := out.(SensorData); !ok || got != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDecode_DetectionRoundTrip(t *testing.T) {
	in := Detection{Timestamp: 42, DetectionType: 2, Confidence: 88, Duration: 1500}

	out, err := Decode(in.Marshal())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, ok := out.(Detection); !ok || got != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDecode_StatusRoundTrip(t *testing.T) {
	in := Status{Uptime: 86400, TxCount: 512, RxCount: 17, DataRate: 3, Battery: 76}

	out, err := Decode(in.Marshal())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, ok := out.(Status); !ok || got != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDecode_SingleBitFlipFailsChecksum(t *testing.T) {
	buf := Detection{Timestamp: 7, DetectionType: 1, Confidence: 50, Duration: 10}.Marshal()

	// Flip every bit of every byte except the trailing CRC itself;
	// each corruption must surface as a checksum mismatch.
	for i := 0; i < len(buf)-2; i++ {
		// Skip the magic and type: those fail earlier, with their
		// own errors.
		if i < 3 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			corrupted := make([]byte, len(buf))
			copy(corrupted, buf)
			corrupted[i] ^= 1 << bit

			_, err := Decode(corrupted)
			if !errors.Is(err, ErrChecksumMismatch) {
				t.Fatalf("byte %d bit %d: err = %v, want ErrChecksumMismatch", i, bit, err)
			}
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	good := Status{Uptime: 1}.Marshal()

	short := make([]byte, StatusLen-1)
	copy(short, good)

	badMagic := make([]byte, len(good))
	copy(badMagic, good)
	badMagic[0] = 0x00

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{name: "too short header", data: []byte{0xA5}, want: ErrTooShort},
		{name: "truncated body", data: short, want: ErrTooShort},
		{name: "bad magic", data: badMagic, want: ErrBadMagic},
		{name: "unknown type", data: []byte{0xA5, 0xA5, 0x7E, 0x00}, want: ErrUnknownType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.data); !errors.Is(err, tc.want) {
				t.Errorf("Decode err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidate_FramedAndOpaque(t *testing.T) {
	framed := SensorData{Timestamp: 9}.Marshal()
	if err := Validate(framed); err != nil {
		t.Errorf("valid framed payload rejected: %v", err)
	}

	framed[5] ^= 0x01
	if err := Validate(framed); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("corrupt framed payload: err = %v, want ErrChecksumMismatch", err)
	}

	// Opaque payloads are not CRC-checked.
	if err := Validate([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Errorf("opaque payload rejected: %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte{CmdSetInterval, 0x60, 0xEA, 0x00, 0x00})
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.ID != CmdSetInterval || len(cmd.Payload) != 4 {
		t.Errorf("cmd = %+v, want id 0x01 with 4-byte payload", cmd)
	}

	if _, err := ParseCommand(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("empty frame err = %v, want ErrEmptyFrame", err)
	}

	oversized := make([]byte, 1+MaxCommandPayload+1)
	if _, err := ParseCommand(oversized); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized frame err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestStatusResponseRoundTrip(t *testing.T) {
	in := StatusInfo{
		TransmitIntervalMs: 60000,
		DataRate:           3,
		TxPowerDbm:         14,
		ADREnabled:         true,
		LEDEnabled:         true,
		AlarmEnabled:       false,
		TxCount:            5,
		RxCount:            2,
	}

	frame := StatusResponse(in)
	if len(frame) != StatusResponseLen {
		t.Fatalf("frame length = %d, want %d", len(frame), StatusResponseLen)
	}

	out, err := ParseStatusResponse(frame)
	if err != nil {
		t.Fatalf("ParseStatusResponse: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestBatteryResponse(t *testing.T) {
	frame := BatteryResponse(87, 4.2)
	if frame[0] != RespBattery || frame[1] != 87 || frame[2] != 42 {
		t.Errorf("battery frame = %v, want [0x83 87 42]", frame)
	}
}
