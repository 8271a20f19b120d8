package command

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lora-node/lora-node-agent/internal/link"
	"github.com/lora-node/lora-node-agent/internal/power"
	"github.com/lora-node/lora-node-agent/pkg/wire"
)

// Rebooter restarts the node process. The production implementation
// exits so the service supervisor starts the agent again; tests
// substitute a recorder.
type Rebooter interface {
	Reboot(reason string) error
}

// Config holds processor parameters.
type Config struct {
	// ResponsePort carries command replies upstream.
	ResponsePort uint8
	// RebootDelay is the settle time between acknowledging a REBOOT
	// command and executing it, so the ACK leaves the radio first.
	RebootDelay time.Duration
}

// DefaultConfig returns the production processor parameters.
func DefaultConfig() Config {
	return Config{
		ResponsePort: link.PortCommand,
		RebootDelay:  2 * time.Second,
	}
}

// Processor executes downlink commands. HandleDownlink runs on the
// radio event goroutine and only parses and enqueues; Run owns
// execution and reply transmission on its own goroutine, so replies
// never block event dispatch.
type Processor struct {
	cfg     Config
	mgr     *link.Manager
	battery power.Monitor
	reboot  Rebooter
	queue   *Queue
	log     zerolog.Logger

	pending chan []byte
	wake    chan struct{}
}

// NewProcessor wires a command processor to the link manager.
func NewProcessor(cfg Config, mgr *link.Manager, battery power.Monitor, reboot Rebooter, log zerolog.Logger) *Processor {
	return &Processor{
		cfg:     cfg,
		mgr:     mgr,
		battery: battery,
		reboot:  reboot,
		queue:   NewQueue(),
		log:     log,
		pending: make(chan []byte, QueueCapacity),
		wake:    make(chan struct{}, 1),
	}
}

// Queue exposes the command FIFO.
func (p *Processor) Queue() *Queue { return p.queue }

// HandleDownlink accepts a downlink frame from the radio event path.
// Frames on other ports are ignored. Malformed frames and queue
// overflows are answered with ERROR frames sent from the Run
// goroutine.
func (p *Processor) HandleDownlink(port uint8, payload []byte, rssi int) {
	if port != p.cfg.ResponsePort {
		p.log.Debug().Uint8("port", port).Msg("ignoring downlink on non-command port")
		return
	}

	cmd, err := wire.ParseCommand(payload)
	if err != nil {
		p.log.Warn().Err(err).Int("size", len(payload)).Msg("malformed command frame")
		switch {
		case errors.Is(err, wire.ErrPayloadTooLarge):
			p.post(wire.ErrorResponse(wire.CodeBufferOverflow))
		default:
			p.post(wire.ErrorResponse(wire.CodeInvalidParameter))
		}
		return
	}

	entry := Entry{
		ID:       cmd.ID,
		Payload:  append([]byte(nil), cmd.Payload...),
		Received: time.Now(),
	}
	if !p.queue.Push(entry) {
		p.log.Warn().Uint8("cmd", cmd.ID).Msg("command queue full, dropping")
		p.post(wire.ErrorResponse(wire.CodeQueueOverflow))
		return
	}

	p.log.Debug().
		Uint8("cmd", cmd.ID).
		Int("payload", len(cmd.Payload)).
		Int("rssi", rssi).
		Msg("command queued")
	p.signal()
}

// Run executes queued commands until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp := <-p.pending:
			p.send(ctx, resp)
			continue
		case <-p.wake:
		}

		for {
			e, ok := p.queue.Pop()
			if !ok {
				break
			}
			p.execute(ctx, e)
		}
	}
}

func (p *Processor) execute(ctx context.Context, e Entry) {
	resp := p.dispatch(e)
	if resp != nil {
		p.send(ctx, resp)
	}

	if e.ID == wire.CmdReboot && resp != nil && resp[0] == wire.RespAck {
		p.log.Info().Dur("delay", p.cfg.RebootDelay).Msg("reboot commanded")
		if sleepCtx(ctx, p.cfg.RebootDelay) != nil {
			return
		}
		if err := p.reboot.Reboot("remote command"); err != nil {
			p.log.Error().Err(err).Msg("reboot failed")
		}
	}
}

// dispatch validates and applies one command, returning the reply
// frame. Payload lengths are exact: a SET command with a trailing byte
// is rejected, not truncated.
func (p *Processor) dispatch(e Entry) []byte {
	if !wire.KnownCommand(e.ID) {
		p.log.Warn().Uint8("cmd", e.ID).Msg("unknown command")
		return wire.ErrorResponse(wire.CodeUnknownCommand)
	}

	switch e.ID {
	case wire.CmdPing:
		if len(e.Payload) != 0 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		return wire.AckResponse()

	case wire.CmdSetInterval:
		if len(e.Payload) != 4 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		ms := binary.LittleEndian.Uint32(e.Payload)
		return p.applySetting("interval", func() error { return p.mgr.SetTransmitInterval(ms) })

	case wire.CmdSetDataRate:
		if len(e.Payload) != 1 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		return p.applySetting("data rate", func() error { return p.mgr.SetDataRate(e.Payload[0]) })

	case wire.CmdSetTxPower:
		if len(e.Payload) != 1 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		return p.applySetting("tx power", func() error { return p.mgr.SetTxPower(int8(e.Payload[0])) })

	case wire.CmdReboot:
		if len(e.Payload) != 0 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		if p.reboot == nil {
			return wire.ErrorResponse(wire.CodeNotImplemented)
		}
		return wire.AckResponse()

	case wire.CmdGetStatus:
		if len(e.Payload) != 0 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		return wire.StatusResponse(p.statusInfo())

	case wire.CmdSetLED:
		on, ok := boolParam(e.Payload)
		if !ok {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		p.mgr.SetLED(on)
		return wire.AckResponse()

	case wire.CmdSetAlarm:
		on, ok := boolParam(e.Payload)
		if !ok {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		p.mgr.SetAlarm(on)
		return wire.AckResponse()

	case wire.CmdGetBattery:
		if len(e.Payload) != 0 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		if p.battery == nil {
			return wire.ErrorResponse(wire.CodeNotImplemented)
		}
		r, err := p.battery.Read()
		if err != nil {
			p.log.Error().Err(err).Msg("battery read failed")
			return wire.NackResponse()
		}
		return wire.BatteryResponse(r.Percent, r.Voltage)

	case wire.CmdSetADR:
		on, ok := boolParam(e.Payload)
		if !ok {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		return p.applySetting("adr", func() error { return p.mgr.SetADR(on) })

	case wire.CmdClearStats:
		if len(e.Payload) != 0 {
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		p.mgr.ResetStatistics()
		p.queue.ClearOverflow()
		return wire.AckResponse()
	}

	return wire.ErrorResponse(wire.CodeUnknownCommand)
}

func (p *Processor) applySetting(name string, apply func() error) []byte {
	if err := apply(); err != nil {
		if errors.Is(err, link.ErrInvalidParameter) {
			p.log.Warn().Err(err).Str("setting", name).Msg("setting rejected")
			return wire.ErrorResponse(wire.CodeInvalidParameter)
		}
		p.log.Error().Err(err).Str("setting", name).Msg("setting failed")
		return wire.NackResponse()
	}
	return wire.AckResponse()
}

func (p *Processor) statusInfo() wire.StatusInfo {
	settings := p.mgr.Settings().Snapshot()
	stats := p.mgr.Stats().Snapshot()
	return wire.StatusInfo{
		TransmitIntervalMs: settings.TransmitIntervalMs,
		DataRate:           settings.DataRate,
		TxPowerDbm:         settings.TxPowerDbm,
		ADREnabled:         settings.ADREnabled,
		LEDEnabled:         settings.LEDEnabled,
		AlarmEnabled:       settings.AlarmEnabled,
		TxCount:            stats.TxCount,
		RxCount:            stats.RxCount,
	}
}

func (p *Processor) send(ctx context.Context, frame []byte) {
	if err := p.mgr.Transmit(ctx, p.cfg.ResponsePort, frame); err != nil {
		p.log.Warn().Err(err).Uint8("resp", frame[0]).Msg("response transmission failed")
	}
}

// post hands a reply to the Run goroutine without blocking the caller.
func (p *Processor) post(frame []byte) {
	select {
	case p.pending <- frame:
	default:
		p.log.Warn().Msg("response backlog full, dropping reply")
	}
}

func (p *Processor) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
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

func boolParam(payload []byte) (value, ok bool) {
	if len(payload) != 1 || payload[0] > 1 {
		return false, false
	}
	return payload[0] == 1, true
}
