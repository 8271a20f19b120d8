// Package bridge connects the agent to the local NATS bus: it turns
// detection events published by the vision subsystem into radio
// uplinks, and mirrors the node's own link activity onto node.<id>.*
// subjects for local consumers.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lora-node/lora-node-agent/internal/config"
	"github.com/lora-node/lora-node-agent/internal/link"
	"github.com/lora-node/lora-node-agent/internal/storage"
	"github.com/lora-node/lora-node-agent/pkg/wire"
)

// transmitTimeout bounds one detection uplink including retries.
const transmitTimeout = 2 * time.Minute

// Detection type codes carried in the Detection packet.
const (
	DetectionMotion byte = 0x01
	DetectionObject byte = 0x02
)

// Connect dials the NATS server with the configured reconnect policy.
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	return nats.Connect(cfg.URL,
		nats.Name(cfg.ClientID),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
}

// Bridge subscribes to vision detections and publishes node activity.
type Bridge struct {
	nc     *nats.Conn
	cfg    config.NATSConfig
	nodeID string
	mgr    *link.Manager
	store  storage.Store
	log    zerolog.Logger
	subs   []*nats.Subscription
}

// NewBridge creates a bridge over an established NATS connection.
func NewBridge(nc *nats.Conn, cfg config.NATSConfig, nodeID string, mgr *link.Manager, store storage.Store, log zerolog.Logger) *Bridge {
	return &Bridge{
		nc:     nc,
		cfg:    cfg,
		nodeID: nodeID,
		mgr:    mgr,
		store:  store,
		log:    log,
		subs:   make([]*nats.Subscription, 0),
	}
}

// Start subscribes and blocks until the context is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.cfg.DetectionSubject, b.handleDetection)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.cfg.DetectionSubject, err)
	}
	b.subs = append(b.subs, sub)

	b.log.Info().
		Str("subject", b.cfg.DetectionSubject).
		Msg("vision bridge started")

	<-ctx.Done()

	for _, sub := range b.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// detectionEvent is the JSON shape published by the vision subsystem.
type detectionEvent struct {
	Type       string  `json:"type"` // motion | object
	Class      byte    `json:"class,omitempty"`
	Confidence float64 `json:"confidence"` // 0..1
	DurationMs uint16  `json:"duration_ms"`
	Timestamp  int64   `json:"timestamp,omitempty"` // unix seconds
}

// handleDetection turns one vision event into a Detection uplink.
func (b *Bridge) handleDetection(msg *nats.Msg) {
	b.log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("detection event received")

	var ev detectionEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.log.Error().Err(err).Msg("failed to unmarshal detection event")
		return
	}

	pkt := &wire.Detection{
		Timestamp:     uint32(ev.Timestamp),
		DetectionType: detectionType(ev),
		Confidence:    confidencePercent(ev.Confidence),
		Duration:      ev.DurationMs,
	}
	if ev.Timestamp == 0 {
		pkt.Timestamp = uint32(time.Now().Unix())
	}

	ctx, cancel := context.WithTimeout(context.Background(), transmitTimeout)
	defer cancel()

	if err := b.mgr.TransmitDetection(ctx, pkt); err != nil {
		b.log.Warn().Err(err).Msg("detection uplink failed")
		b.logEvent(storage.EventTypeError, storage.LevelWarning, fmt.Sprintf("detection uplink failed: %v", err))
		return
	}

	b.log.Info().
		Uint8("type", pkt.DetectionType).
		Uint8("confidence", pkt.Confidence).
		Msg("detection uplinked")

	b.PublishUplink(link.PortDetection, pkt.Marshal())
	b.logEvent(storage.EventTypeUplink, storage.LevelInfo,
		fmt.Sprintf("detection uplink - type: %d, confidence: %d%%", pkt.DetectionType, pkt.Confidence))
}

// PublishJoin announces a join outcome on node.<id>.join.
func (b *Bridge) PublishJoin(ok bool) {
	b.publish("join", map[string]interface{}{
		"ok":       ok,
		"dev_addr": fmt.Sprintf("%08X", b.mgr.DevAddr()),
	})
}

// PublishUplink announces a transmitted frame on node.<id>.uplink.
func (b *Bridge) PublishUplink(port uint8, payload []byte) {
	b.publish("uplink", map[string]interface{}{
		"port": port,
		"data": payload,
	})
}

// PublishRx announces a received downlink on node.<id>.rx.
func (b *Bridge) PublishRx(port uint8, payload []byte, rssi int) {
	b.publish("rx", map[string]interface{}{
		"port": port,
		"data": payload,
		"rssi": rssi,
	})
}

func (b *Bridge) publish(kind string, payload map[string]interface{}) {
	payload["node_id"] = b.nodeID
	payload["time"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error().Err(err).Str("kind", kind).Msg("failed to marshal node event")
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", b.cfg.PublishPrefix, b.nodeID, kind)
	if err := b.nc.Publish(subject, data); err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("failed to publish node event")
	}
}

func (b *Bridge) logEvent(eventType, level, description string) {
	if b.store == nil {
		return
	}
	event := &storage.EventLog{
		Type:        eventType,
		Level:       level,
		Description: description,
	}
	if err := b.store.CreateEventLog(context.Background(), event); err != nil {
		b.log.Error().Err(err).Msg("failed to create event log")
	}
}

func detectionType(ev detectionEvent) byte {
	switch ev.Type {
	case "motion":
		return DetectionMotion
	case "object":
		return DetectionObject
	}
	if ev.Class != 0 {
		return ev.Class
	}
	return DetectionObject
}

// confidencePercent maps a 0..1 score onto 0..100; values already
// above 1 are treated as percentages.
func confidencePercent(c float64) byte {
	if c <= 1.0 {
		c *= 100
	}
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return byte(c)
}
