package storage

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryStoreEventLogs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.CreateEventLog(ctx, &EventLog{
			Type:        EventTypeUplink,
			Level:       LevelInfo,
			Description: fmt.Sprintf("event %d", i),
		})
		if err != nil {
			t.Fatalf("CreateEventLog: %v", err)
		}
	}

	events, total, err := s.ListEventLogs(ctx, 3, 0)
	if err != nil {
		t.Fatalf("ListEventLogs: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(events) != 3 {
		t.Fatalf("page size = %d, want 3", len(events))
	}
	// Newest first.
	if events[0].Description != "event 4" || events[2].Description != "event 2" {
		t.Errorf("page order wrong: %q .. %q", events[0].Description, events[2].Description)
	}

	events, _, err = s.ListEventLogs(ctx, 3, 3)
	if err != nil {
		t.Fatalf("ListEventLogs offset: %v", err)
	}
	if len(events) != 2 || events[0].Description != "event 1" {
		t.Errorf("offset page wrong: %v", events)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < memoryRetention+10; i++ {
		if err := s.CreateFrameLog(ctx, &FrameLog{Direction: DirectionUplink, Port: 1}); err != nil {
			t.Fatalf("CreateFrameLog: %v", err)
		}
	}

	_, total, err := s.ListFrameLogs(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListFrameLogs: %v", err)
	}
	if total != memoryRetention {
		t.Errorf("total = %d, want %d", total, memoryRetention)
	}
}

func TestMemoryStoreAssignsIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	e := &EventLog{Type: EventTypeJoin, Level: LevelInfo, Description: "joined"}
	if err := s.CreateEventLog(ctx, e); err != nil {
		t.Fatalf("CreateEventLog: %v", err)
	}
	if e.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("ID not assigned")
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
}
