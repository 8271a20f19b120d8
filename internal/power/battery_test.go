package power

import "testing"

func TestPercentFromVoltage(t *testing.T) {
	cases := []struct {
		voltage float64
		want    uint8
	}{
		{2.5, 0},
		{3.0, 0},
		{3.6, 50},
		{4.2, 100},
		{4.5, 100},
	}
	for _, tc := range cases {
		if got := PercentFromVoltage(tc.voltage); got != tc.want {
			t.Errorf("PercentFromVoltage(%.2f) = %d, want %d", tc.voltage, got, tc.want)
		}
	}
}

func TestReadingLow(t *testing.T) {
	m := NewSimMonitor(4.0)
	r, err := m.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Low() {
		t.Errorf("reading %+v flagged low", r)
	}

	m.SetVoltage(3.1)
	r, err = m.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !r.Low() {
		t.Errorf("reading %+v not flagged low", r)
	}
}
