// Idiotic Core - device-centric home automation controller
//
// This is the main entry point for the controller. It hosts the device
// registry and the trigger engine, serves embedded devices over
// WebSocket at /embedded, and optionally mirrors state onto MQTT,
// records routine telemetry in InfluxDB and advertises itself over mDNS.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/idiotic-core/internal/api"
	"github.com/nerrad567/idiotic-core/internal/audit"
	"github.com/nerrad567/idiotic-core/internal/automation"
	"github.com/nerrad567/idiotic-core/internal/device"
	"github.com/nerrad567/idiotic-core/internal/discovery"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/config"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/database"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/logging"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/idiotic-core/internal/protocol"
	"github.com/nerrad567/idiotic-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// feedBuffer is how many attribute changes may queue for the sinks.
	feedBuffer = 1024
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Idiotic Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing useful to do on exit
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Devices, change feed and engine.
	registry := device.NewRegistry(device.NewCatalog())
	registry.SetLogger(log)
	feed := device.NewFeed(feedBuffer)
	feed.SetLogger(log)
	registry.SetFeed(feed)
	feed.AddSink(device.ConnectionSink(registry))

	engine := automation.NewEngine(automation.EngineConfig{
		MaxCascadeDepth: cfg.Automation.MaxCascadeDepth,
		QueueLimit:      cfg.Automation.QueueLimit,
	}, log)

	repo := device.NewSQLiteRepository(db.DB)
	triggers, err := loadSite(ctx, cfg.Automation.SiteFile, repo, registry, engine, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range triggers {
			t.Detach()
		}
	}()

	activity := audit.NewSQLiteRepository(db.DB)
	pruneActivity(ctx, activity, cfg.Database.ActivityRetentionDays, log)
	recorder := audit.NewRecorder(activity, log)
	metrics := metricsFanout{recorder}

	dispatcher := protocol.NewDispatcher(registry, engine, log)
	dispatcher.AddObserver(&catalogueObserver{repo: repo, log: log})
	dispatcher.AddObserver(recorder)

	hub := api.NewHub(cfg.WebSocket, log)
	engine.SetHub(hub)
	feed.AddSink(hub)
	dispatcher.AddObserver(hub)

	checks := map[string]api.HealthChecker{"database": db}

	// InfluxDB telemetry (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = append(metrics, influxClient)
		dispatcher.AddObserver(&telemetryObserver{influx: influxClient})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	engine.SetMetrics(metrics)

	// MQTT command source and state mirror (optional)
	if cfg.MQTT.Enabled {
		mqttClient, err := startMQTT(ctx, cfg.MQTT, dispatcher, feed, engine, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	go feed.Run(ctx)

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Registry:   registry,
		Dispatcher: dispatcher,
		Engine:     engine,
		Feed:       feed,
		Hub:        hub,
		Activity:   activity,
		Checks:     checks,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if cfg.Discovery.Enabled {
		advertiser, err := advertise(cfg, srv.Addr(), log)
		if err != nil {
			// Devices can still be pointed at the controller by hand.
			log.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer advertiser.Stop()
		}
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", srv.Addr(), "devices", registry.Len(), "rules", len(triggers))

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Idiotic Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IDIOTIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IDIOTIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadSite registers the site's classes, restores devices seen in
// earlier runs, then declares the site's devices and arms its rules.
// A site declaration wins over a restored device holding its name.
// An empty path runs with no site file.
func loadSite(ctx context.Context, path string, repo device.Repository, registry *device.Registry,
	engine *automation.Engine, log *logging.Logger) ([]*automation.Trigger, error) {
	site := &automation.Site{}
	if path != "" {
		var err error
		if site, err = automation.LoadSite(path); err != nil {
			return nil, fmt.Errorf("loading site file: %w", err)
		}
	}

	if err := site.RegisterClasses(registry.Catalog()); err != nil {
		return nil, fmt.Errorf("loading site file: %w", err)
	}
	restored, err := device.Restore(ctx, repo, registry, site.DeviceRefs()...)
	if err != nil {
		return nil, fmt.Errorf("restoring known devices: %w", err)
	}

	triggers, err := site.Apply(ctx, registry, engine, log)
	if err != nil {
		return nil, fmt.Errorf("applying site file: %w", err)
	}
	log.Info("site loaded", "path", path, "classes", len(registry.Catalog().Classes()),
		"restored", restored, "devices", registry.Len(), "rules", len(triggers))
	return triggers, nil
}

// pruneActivity drops activity entries older than the retention window.
// A failure is logged; the controller still starts.
func pruneActivity(ctx context.Context, repo audit.Repository, days int, log *logging.Logger) {
	if days <= 0 {
		return
	}
	n, err := repo.Prune(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		log.Warn("pruning activity log failed", "error", err)
		return
	}
	log.Info("activity log pruned", "removed", n, "retention_days", days)
}

// startMQTT connects to the broker, subscribes the command source and
// attaches the retained state mirror to the feed.
func startMQTT(ctx context.Context, cfg config.MQTTConfig, dispatcher *protocol.Dispatcher,
	feed *device.Feed, engine *automation.Engine, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)

	commands := protocol.NewCommandSource(dispatcher, log)
	if err := commands.Start(client, byte(cfg.QoS)); err != nil { // #nosec G115 -- validated 0..2
		client.Close() //nolint:errcheck // already failing
		return nil, err
	}
	feed.AddSink(protocol.NewStateSink(client, log))
	engine.SetEventPublisher(client)

	log.Info("MQTT connected",
		"broker", net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port)),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

// advertise publishes the device endpoint on the bound API port.
func advertise(cfg *config.Config, addr string, log *logging.Logger) (*discovery.Advertiser, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing listen port %q: %w", portStr, err)
	}

	advertiser := discovery.NewAdvertiser(discovery.Config{
		Interface: cfg.Discovery.Interface,
		TTL:       time.Duration(cfg.Discovery.TTL) * time.Second,
	}, log)
	err = advertiser.Start(discovery.Info{
		Instance: cfg.Discovery.Instance,
		Port:     port,
		Path:     cfg.WebSocket.DevicePath,
		SiteID:   cfg.Site.ID,
		Version:  version,
	})
	if err != nil {
		return nil, err
	}
	return advertiser, nil
}

// healthCheck verifies every configured component once at startup.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
