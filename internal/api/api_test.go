package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lora-node/lora-node-agent/internal/command"
	"github.com/lora-node/lora-node-agent/internal/config"
	"github.com/lora-node/lora-node-agent/internal/link"
	"github.com/lora-node/lora-node-agent/internal/power"
	"github.com/lora-node/lora-node-agent/internal/radio"
	"github.com/lora-node/lora-node-agent/internal/storage"
)

type testEnv struct {
	srv *RESTServer
	drv *radio.Sim
	mgr *link.Manager
}

type forwardHandler struct {
	link.NopHandler
	proc *command.Processor
}

func (h *forwardHandler) OnDownlink(port uint8, payload []byte, rssi int) {
	h.proc.HandleDownlink(port, payload, rssi)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Node.Name = "test-node"
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.AccessTokenTTL = time.Minute
	cfg.JWT.RefreshTokenTTL = time.Hour
	cfg.Auth.Username = "admin"
	cfg.Auth.Password = "hunter2"

	drv := radio.NewSim()
	lcfg := link.DefaultConfig()
	lcfg.JoinRetryDelay = 0
	lcfg.RejoinPause = 0
	lcfg.RetryDelayInit = time.Millisecond
	lcfg.RetryDelayMax = 4 * time.Millisecond

	h := &forwardHandler{}
	settings := link.NewSettings(link.SettingsView{
		TransmitIntervalMs: 60000,
		TxPowerDbm:         14,
		ADREnabled:         true,
	})
	mgr := link.NewManager(drv, lcfg, link.Credentials{Mode: link.ModeOTAA}, settings, h, zerolog.Nop())

	pcfg := command.DefaultConfig()
	proc := command.NewProcessor(pcfg, mgr, power.NewSimMonitor(3.9), nil, zerolog.Nop())
	h.proc = proc

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mgr.Run(ctx)
	go proc.Run(ctx)

	if err := mgr.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	srv, err := NewRESTServer(cfg, storage.NewMemoryStore(), mgr, proc, power.NewSimMonitor(3.9), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRESTServer: %v", err)
	}
	return &testEnv{srv: srv, drv: drv, mgr: mgr}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.AccessToken
}

func TestHealthIsPublic(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/link", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}
}

func TestLinkStatus(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodGet, "/api/v1/link", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		State     string `json:"state"`
		Connected bool   `json:"connected"`
		DevAddr   string `json:"dev_addr"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "connected" || !resp.Connected || resp.DevAddr == "" {
		t.Errorf("link status = %+v", resp)
	}
}

func TestUpdateSettings(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodPut, "/api/v1/settings", token, map[string]interface{}{
		"transmit_interval_ms": 30000,
		"data_rate":            2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	view := e.mgr.Settings().Snapshot()
	if view.TransmitIntervalMs != 30000 || view.DataRate != 2 {
		t.Errorf("settings = %+v", view)
	}

	rec = e.do(t, http.MethodPut, "/api/v1/settings", token, map[string]interface{}{
		"transmit_interval_ms": 5000,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range status = %d, want 400", rec.Code)
	}
}

func TestInjectDownlinkExecutesCommand(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodPost, "/api/v1/downlink", token, map[string]interface{}{
		"payload": "00", // PING
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range e.drv.Sent() {
			if f.Port == link.PortCommand && len(f.Payload) == 1 && f.Payload[0] == 0x80 {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("injected PING never acknowledged")
}

func TestStatsAndClear(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	if err := e.mgr.Transmit(context.Background(), link.PortSensor, []byte{0x01}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	rec := e.do(t, http.MethodGet, "/api/v1/stats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var resp struct {
		Counters link.StatsView `json:"counters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Counters.TxCount != 1 {
		t.Errorf("tx count = %d, want 1", resp.Counters.TxCount)
	}

	rec = e.do(t, http.MethodDelete, "/api/v1/stats", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want 204", rec.Code)
	}
	if got := e.mgr.Stats().Snapshot().TxCount; got != 0 {
		t.Errorf("tx count after clear = %d, want 0", got)
	}
}

func TestBattery(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t)

	rec := e.do(t, http.MethodGet, "/api/v1/battery", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("battery status = %d", rec.Code)
	}
	var resp struct {
		Percent int     `json:"percent"`
		Voltage float64 `json:"voltage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Percent != 75 || resp.Voltage != 3.9 {
		t.Errorf("battery = %+v", resp)
	}
}
