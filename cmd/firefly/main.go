package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatusOllah/slogcolor"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/firefly-mesh/firefly/pkg/config"
	"github.com/firefly-mesh/firefly/pkg/ingest"
	"github.com/firefly-mesh/firefly/pkg/mesh"
	"github.com/firefly-mesh/firefly/pkg/notify"
	"github.com/firefly-mesh/firefly/pkg/session"
	"github.com/firefly-mesh/firefly/pkg/store"
)

// localSessionID is the session the bridge itself holds when a profile is
// auto-activated from config.
const localSessionID = "local"

func main() {
	configPath := flag.String("config", "firefly.yaml", "path to the configuration file")
	flag.Parse()

	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, slogcolor.DefaultOptions)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseDSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.RunMigrations(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	stores := store.New(db)

	notifier := notify.New()
	if cfg.MQTT.Enabled {
		mirror, err := notify.NewMQTTMirror(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.RootTopic)
		if err != nil {
			slog.Error("mqtt mirror unavailable, continuing without it", "error", err)
		} else {
			notifier.AttachSink(mirror)
			defer mirror.Close()
		}
	}

	// The transport delivers into the pipeline, the pipeline consults the
	// session manager, and the manager drives the transport. The handler
	// closure breaks the construction cycle; the transport only delivers
	// once the manager starts it, well after wiring completes.
	var pipeline *ingest.Pipeline
	transport, err := mesh.NewUDPTransport(cfg.Mesh.MulticastGroup, cfg.Mesh.MulticastPort, func(pkt mesh.Packet) {
		pipeline.Enqueue(pkt)
	})
	if err != nil {
		slog.Error("failed to create transport", "error", err)
		os.Exit(1)
	}

	manager := session.NewManager(transport, stores.Messages, notifier, cfg.Mesh.AnnounceDelay)
	pipeline = ingest.New(stores.Messages, stores.Nodes, notifier, manager, ingest.Options{
		QueueSize:     cfg.Mesh.QueueSize,
		DedupCapacity: cfg.Mesh.DedupCapacity,
		AnnounceDelay: cfg.Mesh.AnnounceDelay,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pipeline.Run(ctx)

	if cfg.Mesh.AutoProfileID != "" {
		profile, err := stores.Profiles.GetByID(cfg.Mesh.AutoProfileID)
		switch {
		case err != nil:
			slog.Error("failed to load auto profile", "profile", cfg.Mesh.AutoProfileID, "error", err)
		case profile == nil:
			slog.Warn("auto profile not found", "profile", cfg.Mesh.AutoProfileID)
		default:
			if channel, err := manager.Activate(profile, localSessionID); err != nil {
				slog.Error("failed to activate auto profile", "profile", profile.ID, "error", err)
			} else {
				slog.Info("auto profile active", "profile", profile.ID, "channel", channel)
			}
		}
	}

	slog.Info("firefly bridge running",
		"group", cfg.Mesh.MulticastGroup, "port", cfg.Mesh.MulticastPort)

	<-ctx.Done()
	manager.Deactivate(localSessionID)
	slog.Info("shutting down")
}
