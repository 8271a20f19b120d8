// Package link owns the LoRaWAN session: join lifecycle, duty-cycle
// accounting, the retrying transmit engine and the traffic counters.
// It drives a radio.Driver and reports outcomes through an injected
// Handler, so tests run against the simulated driver with fake
// handlers.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lora-node/lora-node-agent/internal/radio"
	"github.com/lora-node/lora-node-agent/pkg/wire"
)

// State is the link lifecycle state.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateConnected
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Uplink ports per packet class.
const (
	PortSensor    uint8 = 1
	PortDetection uint8 = 2
	PortStatus    uint8 = 3
	PortCommand   uint8 = 10
)

// Link errors.
var (
	ErrJoinInProgress       = errors.New("join already in progress")
	ErrJoinCooldown         = errors.New("join retry too soon")
	ErrJoinRetriesExhausted = errors.New("join retries exhausted")
	ErrJoinFailed           = errors.New("join failed")
	ErrNotJoined            = errors.New("not joined")
	ErrPayloadTooLarge      = errors.New("payload exceeds data-rate limit")
	ErrDutyCycleLimited     = errors.New("duty cycle limit reached")
	ErrTxFailed             = errors.New("transmit failed after all retries")
	ErrInvalidParameter     = errors.New("parameter out of range")
)

// Handler receives link notifications. Implementations run on the
// manager's goroutines and must not call back into blocking manager
// operations.
type Handler interface {
	OnJoin(ok bool)
	OnTxComplete(ok bool)
	OnDownlink(port uint8, payload []byte, rssi int)
	OnError(code byte)
}

// NopHandler discards all notifications.
type NopHandler struct{}

func (NopHandler) OnJoin(bool)                   {}
func (NopHandler) OnTxComplete(bool)             {}
func (NopHandler) OnDownlink(uint8, []byte, int) {}
func (NopHandler) OnError(byte)                  {}

// ActivationMode selects OTAA or ABP activation.
type ActivationMode int

const (
	ModeOTAA ActivationMode = iota
	ModeABP
)

// Credentials holds activation material for either mode. Set once at
// construction; never mutated afterwards.
type Credentials struct {
	Mode ActivationMode
	OTAA radio.OTAAKeys
	ABP  radio.ABPKeys
}

// Config holds the link timing and budget parameters.
type Config struct {
	JoinTimeout     time.Duration
	JoinRetryDelay  time.Duration
	JoinMaxRetries  int
	RejoinPause     time.Duration
	MaxRetries      int
	RetryDelayInit  time.Duration
	RetryDelayMax   time.Duration
	TxTimeout       time.Duration
	DutyCycleLimit  float64
	DutyCycleWindow time.Duration
}

// DefaultConfig returns the production link parameters.
func DefaultConfig() Config {
	return Config{
		JoinTimeout:     60 * time.Second,
		JoinRetryDelay:  60 * time.Second,
		JoinMaxRetries:  10,
		RejoinPause:     time.Second,
		MaxRetries:      3,
		RetryDelayInit:  time.Second,
		RetryDelayMax:   60 * time.Second,
		TxTimeout:       30 * time.Second,
		DutyCycleLimit:  1.0,
		DutyCycleWindow: time.Hour,
	}
}

// Manager is the link-management state machine. One instance owns one
// radio driver; all shared state lives on the instance, none in
// package globals.
type Manager struct {
	cfg      Config
	drv      radio.Driver
	creds    Credentials
	settings *Settings
	stats    *Stats
	duty     *DutyCycle
	handler  Handler
	log      zerolog.Logger

	mu              sync.Mutex
	state           State
	lastJoinAttempt time.Time
	joinRetryCount  int
	joinWait        chan bool
	txWait          chan bool
	lastTx          time.Time

	// txMu serializes transmit calls so only one payload is in
	// flight at the radio at a time.
	txMu sync.Mutex

	rejoinCh  chan struct{}
	startedAt time.Time

	now func() time.Time
}

// NewManager wires a link manager to a radio driver.
func NewManager(drv radio.Driver, cfg Config, creds Credentials, settings *Settings, handler Handler, log zerolog.Logger) *Manager {
	if handler == nil {
		handler = NopHandler{}
	}
	return &Manager{
		cfg:       cfg,
		drv:       drv,
		creds:     creds,
		settings:  settings,
		stats:     &Stats{},
		duty:      NewDutyCycle(cfg.DutyCycleLimit, cfg.DutyCycleWindow),
		handler:   handler,
		log:       log,
		rejoinCh:  make(chan struct{}, 1),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Run pumps radio events until the context is cancelled. Link-loss
// recovery happens here, on the manager's own goroutines, never inside
// the event dispatch path.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.applyRadioSettings(); err != nil {
		return fmt.Errorf("apply radio settings: %w", err)
	}

	go m.rejoinLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-m.drv.Events():
			if !ok {
				return nil
			}
			m.handleEvent(ev)
		}
	}
}

// Connect brings the link up. For ABP the session is installed
// immediately. For OTAA it initiates a join and waits for the outcome
// or the join timeout. It returns without side effects when already
// connected, when a join is in flight, when the retry cooldown has not
// elapsed, or when the retry ceiling has been hit.
func (m *Manager) Connect(ctx context.Context) error {
	if m.creds.Mode == ModeABP {
		return m.connectABP()
	}

	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateJoining:
		m.mu.Unlock()
		return ErrJoinInProgress
	}
	if m.cfg.JoinMaxRetries > 0 && m.joinRetryCount >= m.cfg.JoinMaxRetries {
		m.mu.Unlock()
		return ErrJoinRetriesExhausted
	}
	if !m.lastJoinAttempt.IsZero() && m.now().Sub(m.lastJoinAttempt) < m.cfg.JoinRetryDelay {
		m.mu.Unlock()
		return ErrJoinCooldown
	}

	m.state = StateJoining
	m.lastJoinAttempt = m.now()
	m.joinRetryCount++
	attempt := m.joinRetryCount
	wait := make(chan bool, 1)
	m.joinWait = wait
	m.mu.Unlock()

	m.stats.incJoinRetry()
	m.log.Info().Int("attempt", attempt).Msg("joining network")

	if err := m.drv.Join(m.creds.OTAA); err != nil {
		m.finishJoin(false)
		return fmt.Errorf("start join: %w", err)
	}

	timer := time.NewTimer(m.cfg.JoinTimeout)
	defer timer.Stop()

	var ok bool
	select {
	case ok = <-wait:
	case <-timer.C:
		m.log.Warn().Msg("join timeout")
	case <-ctx.Done():
		m.finishJoin(false)
		return ctx.Err()
	}

	if !ok {
		m.finishJoin(false)
		return ErrJoinFailed
	}

	m.finishJoin(true)
	m.log.Info().Uint32("dev_addr", m.drv.DevAddr()).Msg("join successful")
	return nil
}

// Disconnect unconditionally drops the session and returns to Idle.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()

	m.drv.Reset()
	m.log.Info().Msg("disconnected")
}

// Rejoin drops the session and reconnects after a short pause; used as
// link-loss recovery.
func (m *Manager) Rejoin(ctx context.Context) error {
	m.Disconnect()
	if err := sleepCtx(ctx, m.cfg.RejoinPause); err != nil {
		return err
	}
	return m.Connect(ctx)
}

// ResetJoinBackoff clears the retry counter and cooldown so an
// operator can force a fresh join after the ceiling was hit.
func (m *Manager) ResetJoinBackoff() {
	m.mu.Lock()
	m.joinRetryCount = 0
	m.lastJoinAttempt = time.Time{}
	m.mu.Unlock()
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the link is up.
func (m *Manager) Connected() bool { return m.State() == StateConnected }

// JoinRetryCount returns the consecutive join attempt counter.
func (m *Manager) JoinRetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinRetryCount
}

// DevAddr returns the network-assigned device address.
func (m *Manager) DevAddr() uint32 { return m.drv.DevAddr() }

// Settings exposes the shared runtime settings.
func (m *Manager) Settings() *Settings { return m.settings }

// Stats exposes the traffic counters.
func (m *Manager) Stats() *Stats { return m.stats }

// DutyCycle exposes the duty-cycle tracker.
func (m *Manager) DutyCycle() *DutyCycle { return m.duty }

// Uptime returns the time since the manager was constructed.
func (m *Manager) Uptime() time.Duration { return time.Since(m.startedAt) }

// LastTransmission returns the completion time of the most recent
// successful uplink.
func (m *Manager) LastTransmission() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTx
}

// SetDataRate validates and applies a new data rate to the radio and
// the shared settings.
func (m *Manager) SetDataRate(dr uint8) error {
	if dr > wire.DataRateMax {
		return fmt.Errorf("%w: data rate %d", ErrInvalidParameter, dr)
	}
	if err := m.drv.SetDataRate(dr); err != nil {
		return fmt.Errorf("set data rate: %w", err)
	}
	m.settings.update(func(v *SettingsView) { v.DataRate = dr })
	m.log.Info().Uint8("data_rate", dr).Msg("data rate updated")
	return nil
}

// SetTxPower validates and applies a new transmit power.
func (m *Manager) SetTxPower(dbm int8) error {
	if dbm < wire.TxPowerMinDbm || dbm > wire.TxPowerMaxDbm {
		return fmt.Errorf("%w: tx power %d dBm", ErrInvalidParameter, dbm)
	}
	if err := m.drv.SetTxPower(dbm); err != nil {
		return fmt.Errorf("set tx power: %w", err)
	}
	m.settings.update(func(v *SettingsView) { v.TxPowerDbm = dbm })
	m.log.Info().Int8("tx_power_dbm", dbm).Msg("tx power updated")
	return nil
}

// SetADR applies a new ADR mode.
func (m *Manager) SetADR(enabled bool) error {
	if err := m.drv.SetADR(enabled); err != nil {
		return fmt.Errorf("set adr: %w", err)
	}
	m.settings.update(func(v *SettingsView) { v.ADREnabled = enabled })
	m.log.Info().Bool("adr", enabled).Msg("adr mode updated")
	return nil
}

// SetTransmitInterval validates and stores a new uplink interval.
func (m *Manager) SetTransmitInterval(ms uint32) error {
	if ms < wire.IntervalMinMs || ms > wire.IntervalMaxMs {
		return fmt.Errorf("%w: interval %d ms", ErrInvalidParameter, ms)
	}
	m.settings.update(func(v *SettingsView) { v.TransmitIntervalMs = ms })
	m.log.Info().Uint32("interval_ms", ms).Msg("transmit interval updated")
	return nil
}

// SetLED stores the LED indicator state.
func (m *Manager) SetLED(enabled bool) {
	m.settings.update(func(v *SettingsView) { v.LEDEnabled = enabled })
}

// SetAlarm stores the alarm output state.
func (m *Manager) SetAlarm(enabled bool) {
	m.settings.update(func(v *SettingsView) { v.AlarmEnabled = enabled })
}

// SetThresholds stores the detection thresholds.
func (m *Manager) SetThresholds(motion, object uint16) {
	m.settings.update(func(v *SettingsView) {
		v.MotionThreshold = motion
		v.ObjectThreshold = object
	})
}

// ResetStatistics zeroes all counters and the duty-cycle accumulator.
func (m *Manager) ResetStatistics() {
	m.stats.Reset()
	m.duty.Reset()
	m.log.Info().Msg("statistics reset")
}

func (m *Manager) connectABP() error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.drv.SetSession(m.creds.ABP); err != nil {
		return fmt.Errorf("set abp session: %w", err)
	}

	m.mu.Lock()
	m.state = StateConnected
	m.mu.Unlock()

	m.handler.OnJoin(true)
	m.log.Info().Uint32("dev_addr", m.creds.ABP.DevAddr).Msg("abp session installed")
	return nil
}

func (m *Manager) finishJoin(ok bool) {
	m.mu.Lock()
	if ok {
		m.state = StateConnected
		m.joinRetryCount = 0
	} else {
		m.state = StateIdle
	}
	m.joinWait = nil
	m.mu.Unlock()

	m.handler.OnJoin(ok)
}

func (m *Manager) handleEvent(ev radio.Event) {
	switch ev.Type {
	case radio.EventJoined, radio.EventJoinFailed:
		m.mu.Lock()
		wait := m.joinWait
		m.mu.Unlock()
		if wait == nil {
			m.log.Warn().Stringer("event", ev.Type).Msg("join event with no join in flight")
			return
		}
		select {
		case wait <- ev.Type == radio.EventJoined:
		default:
		}

	case radio.EventTxComplete, radio.EventTxFailed:
		m.mu.Lock()
		wait := m.txWait
		m.mu.Unlock()
		if wait == nil {
			return
		}
		select {
		case wait <- ev.Type == radio.EventTxComplete:
		default:
		}

	case radio.EventDownlink:
		m.stats.incRx()
		m.log.Debug().
			Uint8("port", ev.Port).
			Int("size", len(ev.Payload)).
			Int("rssi", ev.RSSI).
			Msg("downlink received")
		m.handler.OnDownlink(ev.Port, ev.Payload, ev.RSSI)

	case radio.EventLinkDead:
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.log.Warn().Msg("link dead, scheduling rejoin")
		m.handler.OnError(wire.CodeNetworkError)
		select {
		case m.rejoinCh <- struct{}{}:
		default:
		}

	case radio.EventLinkAlive:
		m.log.Debug().Msg("link alive")
	}
}

// rejoinLoop consumes rejoin requests posted by the event loop and
// retries until the link is back up or the retry ceiling is reached.
func (m *Manager) rejoinLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.rejoinCh:
		}

		for {
			err := m.Rejoin(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				break
			}
			if errors.Is(err, ErrJoinRetriesExhausted) {
				m.log.Error().
					Int("retries", m.cfg.JoinMaxRetries).
					Msg("auto rejoin stopped, operator action required")
				break
			}
			m.log.Warn().Err(err).Msg("rejoin attempt failed")
			if sleepCtx(ctx, m.cfg.JoinRetryDelay) != nil {
				return
			}
		}
	}
}

func (m *Manager) applyRadioSettings() error {
	v := m.settings.Snapshot()
	if err := m.drv.SetDataRate(v.DataRate); err != nil {
		return err
	}
	if err := m.drv.SetTxPower(v.TxPowerDbm); err != nil {
		return err
	}
	return m.drv.SetADR(v.ADREnabled)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
