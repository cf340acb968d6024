package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"zigbee-bridge/internal/codec"
	"zigbee-bridge/internal/control"
	"zigbee-bridge/internal/discovery"
	"zigbee-bridge/internal/dispatch"
	"zigbee-bridge/internal/ncp"
	"zigbee-bridge/internal/store"
	"zigbee-bridge/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Daemon struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"daemon"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		Advertise      bool     `yaml:"advertise"` // mDNS / DNS-SD
	} `yaml:"web"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		Encoding    string `yaml:"encoding"` // json | cbor
	} `yaml:"mqtt"`
	Dispatch struct {
		Mode      string `yaml:"mode"` // direct | queued
		QueueSize int    `yaml:"queue_size"`
	} `yaml:"dispatch"`
	Automation struct {
		ScriptsDir string `yaml:"scripts_dir"`
	} `yaml:"automation"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if c.Daemon.Port == "" {
		return fmt.Errorf("daemon.port is required")
	}
	if c.Daemon.Baud <= 0 {
		return fmt.Errorf("daemon.baud must be positive, got %d", c.Daemon.Baud)
	}
	switch c.Dispatch.Mode {
	case "direct":
	case "queued":
		if c.Dispatch.QueueSize <= 0 {
			return fmt.Errorf("dispatch.queue_size must be positive, got %d", c.Dispatch.QueueSize)
		}
	default:
		return fmt.Errorf("dispatch.mode must be direct or queued, got %q", c.Dispatch.Mode)
	}
	if _, err := codec.ParseFormat(c.MQTT.Encoding); err != nil {
		return fmt.Errorf("mqtt.encoding: %w", err)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// delivery returns the configured envelope delivery strategy.
func (c *Config) delivery() dispatch.Delivery {
	if c.Dispatch.Mode == "queued" {
		return dispatch.Queued(c.Dispatch.QueueSize)
	}
	return dispatch.Direct()
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("zigbee-bridge starting", "version", version)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	link, err := ncp.OpenSerial(cfg.Daemon.Port, cfg.Daemon.Baud, logger)
	if err != nil {
		logger.Error("open daemon link", "err", err)
		os.Exit(1)
	}
	defer link.Close()

	ctrl := control.New(link, db, logger)

	// Decoded notifications fan out through the bus; the store keeps the
	// device table current from discovery and announce envelopes.
	bus := dispatch.NewBus(logger)
	tracker := store.NewTracker(db, logger)
	bus.On(codec.TypeDeviceDiscover, tracker.Handle)
	bus.On(codec.TypeDeviceAnnounce, tracker.Handle)

	dispatcher := dispatch.New(codec.NewCodec(logger), bus.Publish,
		dispatch.WithDelivery(cfg.delivery()),
		dispatch.WithLogger(logger),
	)
	link.OnNotification(dispatcher.Notify)
	logger.Info("dispatcher ready", "mode", cfg.Dispatch.Mode, "queue_size", cfg.Dispatch.QueueSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	localEUI := startupSync(ctx, ctrl, logger)

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(ctrl, bus, cfg, logger)

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(ctrl, bus, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(ctrl, bus, cfg, logger)

	advertiser := discovery.NewAdvertiser(logger)
	if cfg.Web.Advertise {
		err := advertiser.Start(discovery.Info{
			Listen:         cfg.Web.Listen,
			Version:        version,
			EUI64:          localEUI,
			APIKeyRequired: cfg.Web.APIKey != "",
		})
		if err != nil {
			logger.Warn("mdns advertise", "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "err", err)
	}

	advertiser.Stop()
	auto.Stop()
	mqtt.Stop()
	webServer.Stop()

	// Stop notifications before draining the queue.
	if err := link.Close(); err != nil {
		logger.Warn("close daemon link", "err", err)
	}
	dispatcher.Close()

	logger.Info("goodbye")
}

// startupSync re-declares persisted endpoints and reads the local device.
// Failures are logged; the bridge still serves its API. It returns the local
// EUI64, or "" when unknown.
func startupSync(ctx context.Context, ctrl *control.Controller, logger *slog.Logger) string {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if n, err := ctrl.RestoreEndpoints(ctx); err != nil {
		logger.Error("restore endpoints", "restored", n, "err", err)
	} else if n > 0 {
		logger.Info("endpoints restored", "count", n)
	}

	dev, err := ctrl.LocalDevice(ctx)
	if err != nil {
		logger.Warn("query local device", "err", err)
		return ""
	}
	logger.Info("local device", "eui64", dev.EUI64, "node_id", dev.NodeID, "endpoints", len(dev.Endpoints))
	return dev.EUI64
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Daemon.Baud == 0 {
		cfg.Daemon.Baud = 115200
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "zigbee-bridge.db"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "zigbee-bridge"
	}
	if cfg.MQTT.Encoding == "" {
		cfg.MQTT.Encoding = string(codec.FormatJSON)
	}
	if cfg.Dispatch.Mode == "" {
		cfg.Dispatch.Mode = "queued"
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 256
	}
	if cfg.Automation.ScriptsDir == "" {
		cfg.Automation.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

// newLogger builds the process logger. Unknown levels fall back to info,
// unknown formats to text.
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
