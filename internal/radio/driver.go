// Package radio defines the boundary to the LoRaWAN MAC layer. The
// link manager consumes a Driver: a thin, event-driven façade over
// whatever MAC implementation the node runs on. Channel hopping,
// encryption and modulation stay below this line.
package radio

// EventType identifies an asynchronous radio event.
type EventType int

const (
	EventJoined EventType = iota
	EventJoinFailed
	EventTxComplete
	EventTxFailed
	EventDownlink
	EventLinkDead
	EventLinkAlive
)

// String returns the event name for logging.
func (t EventType) String() string {
	switch t {
	case EventJoined:
		return "joined"
	case EventJoinFailed:
		return "join_failed"
	case EventTxComplete:
		return "tx_complete"
	case EventTxFailed:
		return "tx_failed"
	case EventDownlink:
		return "downlink"
	case EventLinkDead:
		return "link_dead"
	case EventLinkAlive:
		return "link_alive"
	default:
		return "unknown"
	}
}

// Event is delivered on the driver's event channel. Payload, RSSI and
// SNR are set for downlink events only.
type Event struct {
	Type    EventType
	Port    uint8
	Payload []byte
	RSSI    int
	SNR     int
}

// OTAAKeys holds over-the-air activation credentials.
type OTAAKeys struct {
	AppEUI [8]byte
	DevEUI [8]byte
	AppKey [16]byte
}

// ABPKeys holds activation-by-personalization session credentials.
type ABPKeys struct {
	NwkSKey [16]byte
	AppSKey [16]byte
	DevAddr uint32
}

// Driver is the MAC-layer interface the link manager drives. Join and
// Send only initiate work; outcomes arrive as events. Implementations
// must keep the Events channel open for the lifetime of the driver.
type Driver interface {
	// Join starts an OTAA join. The outcome is reported through an
	// EventJoined or EventJoinFailed event.
	Join(keys OTAAKeys) error

	// SetSession installs ABP session keys; the link is usable
	// immediately, no join exchange happens.
	SetSession(keys ABPKeys) error

	// Send hands a payload to the MAC for transmission on the given
	// port. Completion is reported through EventTxComplete or
	// EventTxFailed.
	Send(port uint8, payload []byte) error

	// Radio parameter control.
	SetDataRate(dr uint8) error
	SetTxPower(dbm int8) error
	SetADR(enabled bool) error

	// DevAddr returns the device address assigned by the network,
	// or zero before activation.
	DevAddr() uint32

	// Events is the stream of asynchronous MAC events.
	Events() <-chan Event

	// Reset aborts any in-flight operation and drops the session.
	Reset()
}
