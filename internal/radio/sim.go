package radio

import (
	"errors"
	"sync"
	"time"
)

// ErrNotConfigured is returned by Send before any activation.
var ErrNotConfigured = errors.New("radio: no session configured")

// Sim is an in-process Driver used for host-side development and
// tests. Join and transmit outcomes are scriptable via the JoinOutcome
// and TxOutcome hooks; downlinks are injected with InjectDownlink.
type Sim struct {
	mu sync.Mutex

	events chan Event

	// JoinOutcome decides whether the n-th join attempt (1-based)
	// succeeds. Nil means every join succeeds.
	JoinOutcome func(attempt int) bool

	// TxOutcome decides whether the n-th send (1-based) completes.
	// Nil means every send completes.
	TxOutcome func(attempt int) bool

	// EventDelay is the simulated latency before an outcome event is
	// delivered. Zero means immediate.
	EventDelay time.Duration

	joinAttempts int
	sendAttempts int
	devAddr      uint32
	session      bool
	dataRate     uint8
	txPower      int8
	adr          bool

	sent []SentFrame
}

// SentFrame records one payload handed to Send.
type SentFrame struct {
	Port    uint8
	Payload []byte
}

// NewSim creates a simulated driver.
func NewSim() *Sim {
	return &Sim{events: make(chan Event, 16)}
}

// Join simulates an OTAA join exchange.
func (s *Sim) Join(keys OTAAKeys) error {
	s.mu.Lock()
	s.joinAttempts++
	attempt := s.joinAttempts
	ok := s.JoinOutcome == nil || s.JoinOutcome(attempt)
	if ok {
		s.session = true
		s.devAddr = 0x26000000 | uint32(attempt)
	}
	s.mu.Unlock()

	s.deliver(func() {
		if ok {
			s.events <- Event{Type: EventJoined}
		} else {
			s.events <- Event{Type: EventJoinFailed}
		}
	})
	return nil
}

// SetSession installs ABP keys; the simulated link comes up at once.
func (s *Sim) SetSession(keys ABPKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = true
	s.devAddr = keys.DevAddr
	return nil
}

// Send simulates a transmission.
func (s *Sim) Send(port uint8, payload []byte) error {
	s.mu.Lock()
	if !s.session {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	s.sendAttempts++
	attempt := s.sendAttempts
	frame := SentFrame{Port: port, Payload: append([]byte(nil), payload...)}
	s.sent = append(s.sent, frame)
	ok := s.TxOutcome == nil || s.TxOutcome(attempt)
	s.mu.Unlock()

	s.deliver(func() {
		if ok {
			s.events <- Event{Type: EventTxComplete}
		} else {
			s.events <- Event{Type: EventTxFailed}
		}
	})
	return nil
}

// SetDataRate records the commanded data rate.
func (s *Sim) SetDataRate(dr uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataRate = dr
	return nil
}

// SetTxPower records the commanded transmit power.
func (s *Sim) SetTxPower(dbm int8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txPower = dbm
	return nil
}

// SetADR records the commanded ADR mode.
func (s *Sim) SetADR(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adr = enabled
	return nil
}

// DevAddr returns the simulated device address.
func (s *Sim) DevAddr() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devAddr
}

// Events returns the event stream.
func (s *Sim) Events() <-chan Event { return s.events }

// Reset drops the simulated session.
func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = false
	s.devAddr = 0
}

// InjectDownlink delivers a downlink frame as if received in an RX
// window.
func (s *Sim) InjectDownlink(port uint8, payload []byte, rssi int) {
	data := append([]byte(nil), payload...)
	s.events <- Event{Type: EventDownlink, Port: port, Payload: data, RSSI: rssi, SNR: 7}
}

// InjectLinkDead signals loss of the network link.
func (s *Sim) InjectLinkDead() {
	s.events <- Event{Type: EventLinkDead}
}

// Sent returns a copy of every frame handed to Send, in order.
func (s *Sim) Sent() []SentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentFrame, len(s.sent))
	copy(out, s.sent)
	return out
}

// DataRate returns the last commanded data rate.
func (s *Sim) DataRate() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataRate
}

// TxPower returns the last commanded transmit power.
func (s *Sim) TxPower() int8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txPower
}

// ADR returns the last commanded ADR mode.
func (s *Sim) ADR() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adr
}

func (s *Sim) deliver(fn func()) {
	if s.EventDelay == 0 {
		fn()
		return
	}
	go func() {
		time.Sleep(s.EventDelay)
		fn()
	}()
}
