package link

import (
	"context"
	"fmt"
	"time"

	"github.com/lora-node/lora-node-agent/pkg/wire"
)

// Transmit sends one payload on the given port, retrying failed
// attempts with exponential backoff. The payload is checked against
// the link state, the current data-rate size limit, the duty-cycle
// budget and, for framed payloads, its checksum, in that order, before
// the radio is touched.
func (m *Manager) Transmit(ctx context.Context, port uint8, payload []byte) error {
	if m.State() != StateConnected {
		m.handler.OnError(wire.CodeNotJoined)
		return ErrNotJoined
	}

	view := m.settings.Snapshot()
	if max := MaxPayload(view.DataRate); len(payload) > max {
		m.log.Warn().
			Int("size", len(payload)).
			Int("max", max).
			Uint8("data_rate", view.DataRate).
			Msg("payload too large for data rate")
		m.handler.OnError(wire.CodeBufferOverflow)
		return fmt.Errorf("%w: %d bytes, max %d at DR%d", ErrPayloadTooLarge, len(payload), max, view.DataRate)
	}

	if !m.duty.CanTransmit() {
		m.log.Warn().
			Float64("usage_percent", m.duty.UsagePercent()).
			Msg("duty cycle limit reached, transmission deferred")
		return ErrDutyCycleLimited
	}

	if err := wire.Validate(payload); err != nil {
		m.handler.OnError(wire.CodeChecksumFail)
		return fmt.Errorf("validate payload: %w", err)
	}

	airtime := EstimateAirtime(len(payload), view.DataRate)

	m.txMu.Lock()
	defer m.txMu.Unlock()

	attempts := m.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay(m.cfg, attempt-1)
			m.log.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying transmission")
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}

		m.stats.incTx()

		wait := make(chan bool, 1)
		m.mu.Lock()
		m.txWait = wait
		m.mu.Unlock()

		if err := m.drv.Send(port, payload); err != nil {
			m.stats.incTxFail()
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("radio send failed")
			m.handler.OnError(wire.CodeNetworkError)
			continue
		}

		ok, err := m.awaitTx(ctx, wait)
		if err != nil {
			return err
		}
		if ok {
			m.stats.incTxSuccess()
			m.duty.Record(airtime)
			m.mu.Lock()
			m.lastTx = m.now()
			m.txWait = nil
			m.mu.Unlock()
			m.log.Debug().
				Uint8("port", port).
				Int("size", len(payload)).
				Dur("airtime", airtime).
				Msg("transmission complete")
			m.handler.OnTxComplete(true)
			return nil
		}

		m.stats.incTxFail()
		m.handler.OnError(wire.CodeNetworkError)
	}

	m.mu.Lock()
	m.txWait = nil
	m.mu.Unlock()

	m.log.Error().Int("attempts", attempts).Msg("transmission failed after all retries")
	m.handler.OnTxComplete(false)
	return ErrTxFailed
}

// TransmitSensorData marshals and sends an environment packet.
func (m *Manager) TransmitSensorData(ctx context.Context, p *wire.SensorData) error {
	return m.Transmit(ctx, PortSensor, p.Marshal())
}

// TransmitDetection marshals and sends a detection packet.
func (m *Manager) TransmitDetection(ctx context.Context, p *wire.Detection) error {
	return m.Transmit(ctx, PortDetection, p.Marshal())
}

// TransmitStatus marshals and sends a status packet.
func (m *Manager) TransmitStatus(ctx context.Context, p *wire.Status) error {
	return m.Transmit(ctx, PortStatus, p.Marshal())
}

func (m *Manager) awaitTx(ctx context.Context, wait <-chan bool) (bool, error) {
	timer := time.NewTimer(m.cfg.TxTimeout)
	defer timer.Stop()
	select {
	case ok := <-wait:
		return ok, nil
	case <-timer.C:
		m.log.Warn().Msg("transmit confirmation timeout")
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// retryDelay returns the backoff before retry k, doubling from the
// initial delay and capped at the configured maximum.
func retryDelay(cfg Config, k int) time.Duration {
	d := cfg.RetryDelayInit << (k - 1)
	if d > cfg.RetryDelayMax || d <= 0 {
		return cfg.RetryDelayMax
	}
	return d
}
