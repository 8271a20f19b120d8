// Package config loads the agent configuration: a YAML file with
// environment-variable overrides and defaults filled for anything the
// file leaves out.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lora-node/lora-node-agent/internal/radio"
)

// Config represents the agent configuration
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Radio    RadioConfig    `yaml:"radio"`
	Link     LinkConfig     `yaml:"link"`
	Uplink   UplinkConfig   `yaml:"uplink"`
	API      APIConfig      `yaml:"api"`
	JWT      JWTConfig      `yaml:"jwt"`
	Auth     AuthConfig     `yaml:"auth"`
	NATS     NATSConfig     `yaml:"nats"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// NodeConfig identifies this node
type NodeConfig struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// RadioConfig holds activation material and initial radio parameters.
// Keys are hex strings.
type RadioConfig struct {
	Activation string `yaml:"activation"` // otaa | abp
	DevEUI     string `yaml:"dev_eui"`
	AppEUI     string `yaml:"app_eui"`
	AppKey     string `yaml:"app_key"`
	DevAddr    string `yaml:"dev_addr"`
	NwkSKey    string `yaml:"nwks_key"`
	AppSKey    string `yaml:"apps_key"`
	DataRate   uint8  `yaml:"data_rate"`
	TxPowerDbm int8   `yaml:"tx_power_dbm"`
	ADREnabled bool   `yaml:"adr_enabled"`
}

// LinkConfig tunes the join and retry behaviour
type LinkConfig struct {
	JoinTimeout     time.Duration `yaml:"join_timeout"`
	JoinRetryDelay  time.Duration `yaml:"join_retry_delay"`
	JoinMaxRetries  int           `yaml:"join_max_retries"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelayInit  time.Duration `yaml:"retry_delay_initial"`
	RetryDelayMax   time.Duration `yaml:"retry_delay_max"`
	TxTimeout       time.Duration `yaml:"tx_timeout"`
	DutyCycleLimit  float64       `yaml:"duty_cycle_limit"`
	DutyCycleWindow time.Duration `yaml:"duty_cycle_window"`
}

// UplinkConfig schedules the periodic telemetry
type UplinkConfig struct {
	SensorInterval time.Duration `yaml:"sensor_interval"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// APIConfig represents the management API listener
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// AuthConfig holds the operator credential. PasswordHash is a bcrypt
// hash; Password is accepted for development setups only.
type AuthConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// NATSConfig represents the vision-bridge connection
type NATSConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	DetectionSubject  string        `yaml:"detection_subject"`
	PublishPrefix     string        `yaml:"publish_prefix"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// DatabaseConfig represents the optional event/frame log store
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
		c.Database.Enabled = true
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if appKey := os.Getenv("LORA_APP_KEY"); appKey != "" {
		c.Radio.AppKey = appKey
	}
}

func (c *Config) setDefaults() {
	if c.Node.Name == "" {
		c.Node.Name = "lora-node"
	}

	if c.Radio.Activation == "" {
		c.Radio.Activation = "otaa"
	}
	if c.Radio.TxPowerDbm == 0 {
		c.Radio.TxPowerDbm = 14
	}

	if c.Link.JoinTimeout == 0 {
		c.Link.JoinTimeout = 60 * time.Second
	}
	if c.Link.JoinRetryDelay == 0 {
		c.Link.JoinRetryDelay = 60 * time.Second
	}
	if c.Link.JoinMaxRetries == 0 {
		c.Link.JoinMaxRetries = 10
	}
	if c.Link.MaxRetries == 0 {
		c.Link.MaxRetries = 3
	}
	if c.Link.RetryDelayInit == 0 {
		c.Link.RetryDelayInit = time.Second
	}
	if c.Link.RetryDelayMax == 0 {
		c.Link.RetryDelayMax = 60 * time.Second
	}
	if c.Link.TxTimeout == 0 {
		c.Link.TxTimeout = 30 * time.Second
	}
	if c.Link.DutyCycleLimit == 0 {
		c.Link.DutyCycleLimit = 1.0
	}
	if c.Link.DutyCycleWindow == 0 {
		c.Link.DutyCycleWindow = time.Hour
	}

	if c.Uplink.SensorInterval == 0 {
		c.Uplink.SensorInterval = 60 * time.Second
	}
	if c.Uplink.StatusInterval == 0 {
		c.Uplink.StatusInterval = 10 * time.Minute
	}

	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8090
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = c.Node.Name
	}
	if c.NATS.DetectionSubject == "" {
		c.NATS.DetectionSubject = "vision.detection"
	}
	if c.NATS.PublishPrefix == "" {
		c.NATS.PublishPrefix = "node"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 5 * time.Second
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 5
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Radio.Activation) {
	case "otaa":
		if _, err := c.OTAAKeys(); err != nil {
			return err
		}
	case "abp":
		if _, err := c.ABPKeys(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown activation mode %q", c.Radio.Activation)
	}

	if c.Radio.DataRate > 5 {
		return fmt.Errorf("data rate %d out of range 0-5", c.Radio.DataRate)
	}
	if c.Radio.TxPowerDbm < 0 || c.Radio.TxPowerDbm > 20 {
		return fmt.Errorf("tx power %d out of range 0-20 dBm", c.Radio.TxPowerDbm)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret not set")
	}
	if c.Auth.Username == "" {
		return fmt.Errorf("auth username not set")
	}
	if c.Auth.Password == "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth password or password_hash not set")
	}
	return nil
}

// OTAAKeys parses the configured OTAA activation material.
func (c *Config) OTAAKeys() (radio.OTAAKeys, error) {
	var keys radio.OTAAKeys
	if err := hexInto(keys.DevEUI[:], c.Radio.DevEUI, "dev_eui"); err != nil {
		return keys, err
	}
	if err := hexInto(keys.AppEUI[:], c.Radio.AppEUI, "app_eui"); err != nil {
		return keys, err
	}
	if err := hexInto(keys.AppKey[:], c.Radio.AppKey, "app_key"); err != nil {
		return keys, err
	}
	return keys, nil
}

// ABPKeys parses the configured ABP session material.
func (c *Config) ABPKeys() (radio.ABPKeys, error) {
	var keys radio.ABPKeys
	var addr [4]byte
	if err := hexInto(addr[:], c.Radio.DevAddr, "dev_addr"); err != nil {
		return keys, err
	}
	keys.DevAddr = uint32(addr[0])<<24 | uint32(addr[1])<<16 | uint32(addr[2])<<8 | uint32(addr[3])
	if err := hexInto(keys.NwkSKey[:], c.Radio.NwkSKey, "nwks_key"); err != nil {
		return keys, err
	}
	if err := hexInto(keys.AppSKey[:], c.Radio.AppSKey, "apps_key"); err != nil {
		return keys, err
	}
	return keys, nil
}

// APIAddr returns the host:port the management API binds to.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

func hexInto(dst []byte, s, name string) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("parse %s: got %d bytes, want %d", name, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}
