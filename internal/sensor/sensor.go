// Package sensor supplies environmental samples for the periodic
// telemetry uplink. The production sampler reads the BME/IAQ stack
// over I2C; the simulated sampler drifts around plausible indoor
// values for host-side runs and tests.
package sensor

import (
	"math/rand"
	"sync"

	"github.com/lora-node/lora-node-agent/pkg/wire"
)

// Sample is one environment reading in engineering units.
type Sample struct {
	Temperature   float64 // degrees C
	Humidity      float64 // %RH
	Pressure      float64 // hPa
	GasResistance float64 // kOhm
	IAQ           float64 // index 0..500
}

// Sampler supplies environment readings.
type Sampler interface {
	Sample() (Sample, error)
}

// ToWire scales a sample into the packed telemetry fields: temperature
// and humidity x100, pressure x10, gas resistance (kOhm) and IAQ x10.
func ToWire(s Sample, timestamp uint32, status, battery byte) *wire.SensorData {
	return &wire.SensorData{
		Timestamp:     timestamp,
		Temperature:   int16(s.Temperature * 100),
		Humidity:      uint16(s.Humidity * 100),
		Pressure:      uint16(s.Pressure * 10),
		GasResistance: uint16(s.GasResistance * 10),
		IAQ:           uint16(s.IAQ * 10),
		Status:        status,
		Battery:       battery,
	}
}

// Sim is a Sampler producing a slow random walk around indoor
// baseline values.
type Sim struct {
	mu   sync.Mutex
	cur  Sample
	rand *rand.Rand
}

// NewSim creates a simulated sampler.
func NewSim(seed int64) *Sim {
	return &Sim{
		cur: Sample{
			Temperature:   21.5,
			Humidity:      45.0,
			Pressure:      1013.2,
			GasResistance: 120.0,
			IAQ:           35.0,
		},
		rand: rand.New(rand.NewSource(seed)),
	}
}

// Sample returns the next reading of the random walk.
func (s *Sim) Sample() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cur.Temperature = drift(s.rand, s.cur.Temperature, 0.2, -10, 45)
	s.cur.Humidity = drift(s.rand, s.cur.Humidity, 0.5, 10, 95)
	s.cur.Pressure = drift(s.rand, s.cur.Pressure, 0.3, 950, 1060)
	s.cur.GasResistance = drift(s.rand, s.cur.GasResistance, 2.0, 10, 500)
	s.cur.IAQ = drift(s.rand, s.cur.IAQ, 1.5, 0, 500)
	return s.cur, nil
}

func drift(r *rand.Rand, v, step, min, max float64) float64 {
	v += (r.Float64()*2 - 1) * step
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
