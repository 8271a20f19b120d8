package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lora-node/lora-node-agent/internal/agent"
	"github.com/lora-node/lora-node-agent/internal/api"
	"github.com/lora-node/lora-node-agent/internal/bridge"
	"github.com/lora-node/lora-node-agent/internal/command"
	"github.com/lora-node/lora-node-agent/internal/config"
	"github.com/lora-node/lora-node-agent/internal/link"
	"github.com/lora-node/lora-node-agent/internal/observability"
	"github.com/lora-node/lora-node-agent/internal/power"
	"github.com/lora-node/lora-node-agent/internal/radio"
	"github.com/lora-node/lora-node-agent/internal/sensor"
	"github.com/lora-node/lora-node-agent/internal/storage"
)

func main() {
	var configPath = flag.String("config", "config/node-agent.yml", "path to the configuration file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	log.Info().
		Str("node", cfg.Node.Name).
		Str("activation", cfg.Radio.Activation).
		Msg("Node agent starting")

	// Event/frame history store
	var store storage.Store
	if cfg.Database.Enabled {
		store, err = storage.NewPostgresStore(cfg.Database.DSN,
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	creds, err := credentials(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse activation keys")
	}

	battery := power.NewSimMonitor(3.9)
	sampler := sensor.NewSim(time.Now().UnixNano())
	drv := radio.NewSim()

	a := agent.New(agent.Config{
		SensorInterval: cfg.Uplink.SensorInterval,
		StatusInterval: cfg.Uplink.StatusInterval,
	}, store, sampler, battery, log.Logger)

	settings := link.NewSettings(link.SettingsView{
		TransmitIntervalMs: uint32(cfg.Uplink.SensorInterval / time.Millisecond),
		DataRate:           cfg.Radio.DataRate,
		TxPowerDbm:         cfg.Radio.TxPowerDbm,
		ADREnabled:         cfg.Radio.ADREnabled,
	})
	mgr := link.NewManager(drv, linkConfig(cfg), creds, settings, a, log.Logger)

	rebooter := agent.ProcessRebooter{Log: log.Logger}
	proc := command.NewProcessor(command.DefaultConfig(), mgr, battery, rebooter, log.Logger)

	// Optional NATS bridge
	var br *bridge.Bridge
	var startBridge func(context.Context)
	if cfg.NATS.Enabled {
		nc, err := bridge.Connect(cfg.NATS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()

		br = bridge.NewBridge(nc, cfg.NATS, cfg.Node.ID, mgr, store, log.Logger)
		startBridge = func(ctx context.Context) {
			if err := br.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Bridge stopped")
			}
		}
	}
	a.Attach(mgr, proc, br)

	collector, err := observability.NewLinkCollector(prometheus.DefaultRegisterer, mgr, proc.Queue())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	server, err := api.NewRESTServer(cfg, store, mgr, proc, battery, collector.Handler(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Link manager stopped")
			cancel()
		}
	}()
	go func() {
		if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Command processor stopped")
			cancel()
		}
	}()
	go func() {
		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Telemetry loop stopped")
			cancel()
		}
	}()
	if startBridge != nil {
		go startBridge(ctx)
	}
	go func() {
		log.Info().Str("addr", cfg.APIAddr()).Msg("Management API listening")
		if err := server.ListenAndServe(cfg.APIAddr()); err != nil {
			log.Error().Err(err).Msg("API server stopped")
			cancel()
		}
	}()

	// Initial activation. The manager keeps rejoining on its own after
	// link loss, so only the first attempt is driven from here.
	go func() {
		if err := mgr.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("Initial join failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API shutdown failed")
	}
	log.Info().Msg("Node agent stopped")
}

func credentials(cfg *config.Config) (link.Credentials, error) {
	if cfg.Radio.Activation == "abp" {
		keys, err := cfg.ABPKeys()
		if err != nil {
			return link.Credentials{}, err
		}
		return link.Credentials{Mode: link.ModeABP, ABP: keys}, nil
	}
	keys, err := cfg.OTAAKeys()
	if err != nil {
		return link.Credentials{}, err
	}
	return link.Credentials{Mode: link.ModeOTAA, OTAA: keys}, nil
}

func linkConfig(cfg *config.Config) link.Config {
	lc := link.DefaultConfig()
	lc.JoinTimeout = cfg.Link.JoinTimeout
	lc.JoinRetryDelay = cfg.Link.JoinRetryDelay
	lc.JoinMaxRetries = cfg.Link.JoinMaxRetries
	lc.MaxRetries = cfg.Link.MaxRetries
	lc.RetryDelayInit = cfg.Link.RetryDelayInit
	lc.RetryDelayMax = cfg.Link.RetryDelayMax
	lc.TxTimeout = cfg.Link.TxTimeout
	lc.DutyCycleLimit = cfg.Link.DutyCycleLimit
	lc.DutyCycleWindow = cfg.Link.DutyCycleWindow
	return lc
}
