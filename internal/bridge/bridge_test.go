package bridge

import "testing"

func TestConfidencePercent(t *testing.T) {
	cases := []struct {
		in   float64
		want byte
	}{
		{0, 0},
		{0.5, 50},
		{1.0, 100},
		{87, 87},
		{150, 100},
		{-2, 0},
	}
	for _, tc := range cases {
		if got := confidencePercent(tc.in); got != tc.want {
			t.Errorf("confidencePercent(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDetectionType(t *testing.T) {
	cases := []struct {
		ev   detectionEvent
		want byte
	}{
		{detectionEvent{Type: "motion"}, DetectionMotion},
		{detectionEvent{Type: "object"}, DetectionObject},
		{detectionEvent{Class: 0x07}, 0x07},
		{detectionEvent{}, DetectionObject},
	}
	for _, tc := range cases {
		if got := detectionType(tc.ev); got != tc.want {
			t.Errorf("detectionType(%+v) = %d, want %d", tc.ev, got, tc.want)
		}
	}
}
