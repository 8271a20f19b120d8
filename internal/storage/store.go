// Package storage persists the node's event and frame history. The
// production store is PostgreSQL; a bounded in-memory store backs
// deployments without a database.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// Event types recorded by the agent.
const (
	EventTypeJoin    = "join"
	EventTypeUplink  = "uplink"
	EventTypeCommand = "command"
	EventTypeError   = "error"
)

// Event levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Frame directions.
const (
	DirectionUplink   = "uplink"
	DirectionDownlink = "downlink"
)

// EventLog is one operational event (join, error, command) kept for
// the history API.
type EventLog struct {
	ID          uuid.UUID `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Type        string    `json:"type"`
	Level       string    `json:"level"`
	Code        string    `json:"code,omitempty"`
	Description string    `json:"description"`
}

// FrameLog is one radio frame, either direction.
type FrameLog struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Direction string    `json:"direction"`
	Port      uint8     `json:"port"`
	Payload   []byte    `json:"payload"`
	RSSI      int       `json:"rssi,omitempty"`
}

// Store defines the storage interface
type Store interface {
	CreateEventLog(ctx context.Context, event *EventLog) error
	ListEventLogs(ctx context.Context, limit, offset int) ([]*EventLog, int64, error)

	CreateFrameLog(ctx context.Context, frame *FrameLog) error
	ListFrameLogs(ctx context.Context, limit, offset int) ([]*FrameLog, int64, error)

	Close() error
}
