package sensor

import "testing"

func TestToWireScaling(t *testing.T) {
	s := Sample{
		Temperature:   22.57,
		Humidity:      48.2,
		Pressure:      1008.4,
		GasResistance: 131.7,
		IAQ:           52.5,
	}

	pkt := ToWire(s, 1700000000, 0x01, 88)

	if pkt.Temperature != 2257 {
		t.Errorf("temperature = %d, want 2257", pkt.Temperature)
	}
	if pkt.Humidity != 4820 {
		t.Errorf("humidity = %d, want 4820", pkt.Humidity)
	}
	if pkt.Pressure != 10084 {
		t.Errorf("pressure = %d, want 10084", pkt.Pressure)
	}
	if pkt.GasResistance != 1317 {
		t.Errorf("gas resistance = %d, want 1317", pkt.GasResistance)
	}
	if pkt.IAQ != 525 {
		t.Errorf("iaq = %d, want 525", pkt.IAQ)
	}
	if pkt.Timestamp != 1700000000 || pkt.Status != 0x01 || pkt.Battery != 88 {
		t.Errorf("pass-through fields wrong: %+v", pkt)
	}
}

func TestToWireNegativeTemperature(t *testing.T) {
	pkt := ToWire(Sample{Temperature: -7.25}, 0, 0, 0)
	if pkt.Temperature != -725 {
		t.Errorf("temperature = %d, want -725", pkt.Temperature)
	}
}

func TestSimStaysInRange(t *testing.T) {
	sim := NewSim(1)
	for i := 0; i < 1000; i++ {
		s, err := sim.Sample()
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if s.Temperature < -10 || s.Temperature > 45 {
			t.Fatalf("temperature out of range: %f", s.Temperature)
		}
		if s.Humidity < 10 || s.Humidity > 95 {
			t.Fatalf("humidity out of range: %f", s.Humidity)
		}
		if s.Pressure < 950 || s.Pressure > 1060 {
			t.Fatalf("pressure out of range: %f", s.Pressure)
		}
	}
}

func TestSimDeterministicForSeed(t *testing.T) {
	a, b := NewSim(42), NewSim(42)
	for i := 0; i < 10; i++ {
		sa, _ := a.Sample()
		sb, _ := b.Sample()
		if sa != sb {
			t.Fatalf("samples diverged at step %d: %+v vs %+v", i, sa, sb)
		}
	}
}
