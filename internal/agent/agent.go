// Package agent ties the link manager, command processor, sensor
// sampler and integrations together into the running node. It owns the
// periodic telemetry loops and is the link event handler that fans
// radio events out to storage, NATS and the command processor.
package agent

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lora-node/lora-node-agent/internal/bridge"
	"github.com/lora-node/lora-node-agent/internal/command"
	"github.com/lora-node/lora-node-agent/internal/link"
	"github.com/lora-node/lora-node-agent/internal/power"
	"github.com/lora-node/lora-node-agent/internal/sensor"
	"github.com/lora-node/lora-node-agent/internal/storage"
	"github.com/lora-node/lora-node-agent/pkg/wire"
)

// txTimeout bounds one telemetry transmission including retries.
const txTimeout = 2 * time.Minute

// Config holds the telemetry loop intervals.
type Config struct {
	// SensorInterval is the fallback sensor uplink period used when the
	// runtime transmit interval setting is zero.
	SensorInterval time.Duration
	// StatusInterval is the period of the status packet uplink.
	StatusInterval time.Duration
}

// Agent runs the node's telemetry loops and dispatches link events.
type Agent struct {
	cfg     Config
	store   storage.Store
	sampler sensor.Sampler
	battery power.Monitor
	log     zerolog.Logger

	mgr    *link.Manager
	proc   *command.Processor
	bridge *bridge.Bridge
}

// New creates an agent. Attach must be called before the agent is used
// as a link handler or run.
func New(cfg Config, store storage.Store, sampler sensor.Sampler, battery power.Monitor, log zerolog.Logger) *Agent {
	return &Agent{
		cfg:     cfg,
		store:   store,
		sampler: sampler,
		battery: battery,
		log:     log.With().Str("component", "agent").Logger(),
	}
}

// Attach wires the link manager, command processor and optional NATS
// bridge. The bridge may be nil.
func (a *Agent) Attach(mgr *link.Manager, proc *command.Processor, br *bridge.Bridge) {
	a.mgr = mgr
	a.proc = proc
	a.bridge = br
}

// Run drives the periodic sensor and status uplinks until ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	sensorTimer := time.NewTimer(a.sensorInterval())
	defer sensorTimer.Stop()
	statusTicker := time.NewTicker(a.cfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sensorTimer.C:
			a.sendSensorData(ctx)
			sensorTimer.Reset(a.sensorInterval())
		case <-statusTicker.C:
			a.sendStatus(ctx)
		}
	}
}

// sensorInterval prefers the runtime transmit interval setting so the
// SET_INTERVAL command takes effect on the next cycle.
func (a *Agent) sensorInterval() time.Duration {
	if ms := a.mgr.Settings().Snapshot().TransmitIntervalMs; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return a.cfg.SensorInterval
}

func (a *Agent) sendSensorData(ctx context.Context) {
	if !a.mgr.Connected() {
		return
	}

	sample, err := a.sampler.Sample()
	if err != nil {
		a.log.Error().Err(err).Msg("Sensor read failed")
		a.recordEvent(storage.EventTypeError, storage.LevelError, "", "sensor read failed: "+err.Error())
		return
	}

	status := wire.StatusSensorOK
	var pct uint8
	if a.battery != nil {
		if reading, err := a.battery.Read(); err == nil {
			pct = reading.Percent
			if reading.Low() {
				status |= wire.StatusLowBattery
			}
		}
	}
	if a.mgr.Settings().Snapshot().AlarmEnabled {
		status |= wire.StatusAlarmActive
	}

	pkt := sensor.ToWire(sample, uint32(time.Now().Unix()), status, pct)

	txCtx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	if err := a.mgr.TransmitSensorData(txCtx, pkt); err != nil {
		a.log.Warn().Err(err).Msg("Sensor uplink failed")
		return
	}
	a.recordFrame(storage.DirectionUplink, link.PortSensor, pkt.Marshal(), 0)
	if a.bridge != nil {
		a.bridge.PublishUplink(link.PortSensor, pkt.Marshal())
	}
}

func (a *Agent) sendStatus(ctx context.Context) {
	if !a.mgr.Connected() {
		return
	}

	stats := a.mgr.Stats().Snapshot()
	var pct uint8
	if a.battery != nil {
		if reading, err := a.battery.Read(); err == nil {
			pct = reading.Percent
		}
	}
	pkt := &wire.Status{
		Uptime:   uint32(a.mgr.Uptime() / time.Second),
		TxCount:  stats.TxCount,
		RxCount:  stats.RxCount,
		DataRate: a.mgr.Settings().Snapshot().DataRate,
		Battery:  pct,
	}

	txCtx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()
	if err := a.mgr.TransmitStatus(txCtx, pkt); err != nil {
		a.log.Warn().Err(err).Msg("Status uplink failed")
		return
	}
	a.recordFrame(storage.DirectionUplink, link.PortStatus, pkt.Marshal(), 0)
	if a.bridge != nil {
		a.bridge.PublishUplink(link.PortStatus, pkt.Marshal())
	}
}

// OnJoin implements link.Handler.
func (a *Agent) OnJoin(ok bool) {
	if ok {
		a.recordEvent(storage.EventTypeJoin, storage.LevelInfo, "", fmt.Sprintf("joined, devaddr %08X", a.mgr.DevAddr()))
	} else {
		a.recordEvent(storage.EventTypeJoin, storage.LevelWarning, "", "join attempt failed")
	}
	if a.bridge != nil {
		a.bridge.PublishJoin(ok)
	}
}

// OnTxComplete implements link.Handler.
func (a *Agent) OnTxComplete(ok bool) {
	if !ok {
		a.recordEvent(storage.EventTypeError, storage.LevelWarning, "", "transmission failed after retries")
	}
}

// OnDownlink implements link.Handler. It records the frame and hands
// it to the command processor.
func (a *Agent) OnDownlink(port uint8, payload []byte, rssi int) {
	a.recordFrame(storage.DirectionDownlink, port, payload, rssi)
	if a.bridge != nil {
		a.bridge.PublishRx(port, payload, rssi)
	}
	a.proc.HandleDownlink(port, payload, rssi)
}

// OnError implements link.Handler.
func (a *Agent) OnError(code byte) {
	a.recordEvent(storage.EventTypeError, storage.LevelError,
		fmt.Sprintf("0x%02X", code), wire.CodeName(code))
}

func (a *Agent) recordEvent(eventType, level, code, description string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.store.CreateEventLog(ctx, &storage.EventLog{
		ID:          uuid.New(),
		CreatedAt:   time.Now(),
		Type:        eventType,
		Level:       level,
		Code:        code,
		Description: description,
	})
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to record event log")
	}
}

func (a *Agent) recordFrame(direction string, port uint8, payload []byte, rssi int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.store.CreateFrameLog(ctx, &storage.FrameLog{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		Direction: direction,
		Port:      port,
		Payload:   payload,
		RSSI:      rssi,
	})
	if err != nil {
		a.log.Error().Err(err).
			Str("payload", hex.EncodeToString(payload)).
			Msg("Failed to record frame log")
	}
}

// ProcessRebooter restarts the node by exiting the process. The
// service supervisor is expected to start the agent again.
type ProcessRebooter struct {
	Log zerolog.Logger
}

// Reboot implements command.Rebooter.
func (r ProcessRebooter) Reboot(reason string) error {
	r.Log.Warn().Str("reason", reason).Msg("Rebooting node")
	os.Exit(0)
	return nil
}
