// Package power models the battery supply: voltage sampling and the
// voltage-to-percent mapping used in telemetry and command replies.
package power

import (
	"errors"
	"sync"
)

// Li-ion pack operating range. Percent is linear across it.
const (
	VoltageEmpty = 3.0
	VoltageFull  = 4.2
)

// LowBatteryPercent is the threshold below which the node reports the
// low-battery status flag.
const LowBatteryPercent = 20

// ErrNoReading is returned when the monitor has no sample available.
var ErrNoReading = errors.New("power: no battery reading available")

// Reading is one battery sample.
type Reading struct {
	Voltage float64
	Percent uint8
}

// Low reports whether the sample is below the low-battery threshold.
func (r Reading) Low() bool { return r.Percent < LowBatteryPercent }

// Monitor supplies battery samples.
type Monitor interface {
	Read() (Reading, error)
}

// PercentFromVoltage maps a pack voltage onto 0-100, clamped at the
// operating range.
func PercentFromVoltage(v float64) uint8 {
	if v <= VoltageEmpty {
		return 0
	}
	if v >= VoltageFull {
		return 100
	}
	return uint8((v - VoltageEmpty) / (VoltageFull - VoltageEmpty) * 100)
}

// SimMonitor is an adjustable in-process Monitor for host-side runs
// and tests.
type SimMonitor struct {
	mu      sync.Mutex
	voltage float64
}

// NewSimMonitor creates a monitor reporting the given pack voltage.
func NewSimMonitor(voltage float64) *SimMonitor {
	return &SimMonitor{voltage: voltage}
}

// SetVoltage changes the reported pack voltage.
func (m *SimMonitor) SetVoltage(v float64) {
	m.mu.Lock()
	m.voltage = v
	m.mu.Unlock()
}

// Read returns the current simulated sample.
func (m *SimMonitor) Read() (Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Reading{
		Voltage: m.voltage,
		Percent: PercentFromVoltage(m.voltage),
	}, nil
}
