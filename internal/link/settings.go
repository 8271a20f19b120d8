package link

import "sync"

// SettingsView is an immutable snapshot of the node's runtime settings.
type SettingsView struct {
	TransmitIntervalMs uint32 `json:"transmit_interval_ms"`
	DataRate           uint8  `json:"data_rate"`
	TxPowerDbm         int8   `json:"tx_power_dbm"`
	LEDEnabled         bool   `json:"led_enabled"`
	AlarmEnabled       bool   `json:"alarm_enabled"`
	ADREnabled         bool   `json:"adr_enabled"`
	MotionThreshold    uint16 `json:"motion_threshold"`
	ObjectThreshold    uint16 `json:"object_threshold"`
}

// Settings is the mutable runtime configuration shared between the
// command processor (writes) and telemetry/radio paths (reads). All
// mutation goes through the Manager's setters so radio state stays in
// step with the stored values.
type Settings struct {
	mu sync.RWMutex
	v  SettingsView
}

// NewSettings creates runtime settings from initial values.
func NewSettings(initial SettingsView) *Settings {
	return &Settings{v: initial}
}

// Snapshot returns a copy of the current settings.
func (s *Settings) Snapshot() SettingsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

func (s *Settings) update(fn func(*SettingsView)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.v)
}
