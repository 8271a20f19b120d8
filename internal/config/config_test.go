package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
node:
  name: test-node
radio:
  activation: otaa
  dev_eui: "0102030405060708"
  app_eui: "0807060504030201"
  app_key: "000102030405060708090a0b0c0d0e0f"
jwt:
  secret: test-secret
auth:
  username: admin
  password: admin
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Link.JoinTimeout != 60*time.Second {
		t.Errorf("join timeout = %v, want 60s", cfg.Link.JoinTimeout)
	}
	if cfg.Link.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.Link.MaxRetries)
	}
	if cfg.Link.DutyCycleLimit != 1.0 {
		t.Errorf("duty cycle limit = %v, want 1.0", cfg.Link.DutyCycleLimit)
	}
	if cfg.Radio.TxPowerDbm != 14 {
		t.Errorf("tx power = %d, want 14", cfg.Radio.TxPowerDbm)
	}
	if cfg.NATS.DetectionSubject != "vision.detection" {
		t.Errorf("detection subject = %q", cfg.NATS.DetectionSubject)
	}
	if got := cfg.APIAddr(); got != "0.0.0.0:8090" {
		t.Errorf("api addr = %q", got)
	}
}

func TestLoadOTAAKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	keys, err := cfg.OTAAKeys()
	if err != nil {
		t.Fatalf("OTAAKeys: %v", err)
	}
	if keys.DevEUI != [8]byte{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Errorf("dev eui = %v", keys.DevEUI)
	}
	if keys.AppKey[15] != 0x0F {
		t.Errorf("app key tail = %#x, want 0x0f", keys.AppKey[15])
	}
}

func TestLoadABP(t *testing.T) {
	yml := `
radio:
  activation: abp
  dev_addr: "26011F42"
  nwks_key: "000102030405060708090a0b0c0d0e0f"
  apps_key: "0f0e0d0c0b0a09080706050403020100"
jwt:
  secret: s
auth:
  username: admin
  password: admin
`
	cfg, err := Load(writeConfig(t, yml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	keys, err := cfg.ABPKeys()
	if err != nil {
		t.Fatalf("ABPKeys: %v", err)
	}
	if keys.DevAddr != 0x26011F42 {
		t.Errorf("dev addr = %#x, want 0x26011F42", keys.DevAddr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("jwt secret = %q, want env override", cfg.JWT.Secret)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadRejectsBadActivation(t *testing.T) {
	yml := strings.Replace(minimalYAML, "activation: otaa", "activation: magic", 1)
	if _, err := Load(writeConfig(t, yml)); err == nil {
		t.Fatal("Load accepted unknown activation mode")
	}
}

func TestLoadRejectsShortKey(t *testing.T) {
	yml := strings.Replace(minimalYAML, `app_key: "000102030405060708090a0b0c0d0e0f"`, `app_key: "0001"`, 1)
	if _, err := Load(writeConfig(t, yml)); err == nil {
		t.Fatal("Load accepted truncated app key")
	}
}
