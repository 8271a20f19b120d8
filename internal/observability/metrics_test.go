package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lora-node/lora-node-agent/internal/command"
	"github.com/lora-node/lora-node-agent/internal/link"
	"github.com/lora-node/lora-node-agent/internal/radio"
)

func TestCollectorExposesLinkMetrics(t *testing.T) {
	drv := radio.NewSim()
	cfg := link.DefaultConfig()
	cfg.JoinRetryDelay = 0
	settings := link.NewSettings(link.SettingsView{TransmitIntervalMs: 60000, TxPowerDbm: 14})
	mgr := link.NewManager(drv, cfg, link.Credentials{Mode: link.ModeOTAA}, settings, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	if err := mgr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := mgr.Transmit(ctx, link.PortSensor, []byte{0x01}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	queue := command.NewQueue()
	queue.Push(command.Entry{ID: 0x00, Received: time.Now()})

	reg := prometheus.NewRegistry()
	collector, err := NewLinkCollector(reg, mgr, queue)
	if err != nil {
		t.Fatalf("NewLinkCollector: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"node_tx_attempts_total 1",
		"node_tx_success_total 1",
		"node_link_state 2",
		"node_command_queue_depth 1",
		"node_join_retries_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCollectorDoubleRegistration(t *testing.T) {
	drv := radio.NewSim()
	settings := link.NewSettings(link.SettingsView{TransmitIntervalMs: 60000, TxPowerDbm: 14})
	mgr := link.NewManager(drv, link.DefaultConfig(), link.Credentials{}, settings, nil, zerolog.Nop())
	queue := command.NewQueue()

	reg := prometheus.NewRegistry()
	if _, err := NewLinkCollector(reg, mgr, queue); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewLinkCollector(reg, mgr, queue); err != nil {
		t.Fatalf("second registration: %v", err)
	}
}
