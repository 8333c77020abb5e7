package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitelink/fenceline/internal/broker"
	"github.com/sitelink/fenceline/internal/bus"
	"github.com/sitelink/fenceline/internal/config"
	"github.com/sitelink/fenceline/internal/database"
	"github.com/sitelink/fenceline/internal/events"
	"github.com/sitelink/fenceline/internal/fence"
	"github.com/sitelink/fenceline/internal/gateway"
	"github.com/sitelink/fenceline/internal/handlers"
	"github.com/sitelink/fenceline/internal/heartbeat"
	"github.com/sitelink/fenceline/internal/models"
	"github.com/sitelink/fenceline/internal/outbox"
	"github.com/sitelink/fenceline/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.SalesOrder{},
		&models.CustomerNote{},
		&models.StockMovement{},
		&models.OutboxMessage{},
		&models.AppliedEvent{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 4. Connect the broker. role=disabled runs single-site with an
	// in-process broker and no peer machinery.
	var b broker.Broker
	if cfg.Role == fence.RoleDisabled {
		log.Println("🔌 Sync disabled, using in-process broker")
		b = broker.NewInproc()
	} else {
		amqpBroker, err := broker.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("Failed to connect to broker: %v", err)
		}
		b = amqpBroker
		log.Printf("✅ Broker connected (%s)", cfg.AMQPURL)
	}

	// 5. Fence store and dashboard hub
	store := fence.NewStore()
	hub := websocket.NewHub()
	go hub.Run()
	store.Notify(func(tenantID string, mode fence.FenceMode) {
		hub.BroadcastFence(tenantID, string(mode))
	})

	// 6. Command bus
	cb := bus.New(b)
	if err := cb.Start(ctx); err != nil {
		log.Fatalf("Failed to start command bus: %v", err)
	}

	// 7. Gateway and its apply handlers
	registry := gateway.NewRegistry(db.DB)
	obWriter := outbox.NewWriter(db.DB)
	gw := gateway.New(cfg.Role, store, cb, obWriter, registry, cfg.TenantID, cfg.Command.Timeout)

	// 8. Peer machinery per role
	if cfg.Role != fence.RoleDisabled {
		sender := heartbeat.NewSender(b, cfg.Role, cfg.TenantID, cfg.Heartbeat.Interval)
		go sender.Run(ctx)

		if cfg.Heartbeat.Mode == "probe" {
			prober := heartbeat.NewProber(cfg.Heartbeat.ProbeURL, store, cfg.TenantID, cfg.Heartbeat.Interval, cfg.Heartbeat.MaxFails)
			go prober.Run(ctx)
		} else {
			receiver := heartbeat.NewReceiver(b, store, cfg.Role, cfg.TenantID, cfg.Heartbeat.Grace)
			if err := receiver.Start(ctx); err != nil {
				log.Fatalf("Failed to start heartbeat receiver: %v", err)
			}
		}

		commands := gateway.NewCommandConsumer(b, gw, cfg.Role, cfg.TenantID)
		if err := commands.Start(ctx); err != nil {
			log.Fatalf("Failed to start command consumer: %v", err)
		}

		if cfg.Role == fence.RoleLocal {
			consumer := events.NewConsumer(b, db.DB, gw, cfg.TenantID, string(cfg.Role))
			if err := consumer.Start(ctx); err != nil {
				log.Fatalf("Failed to start event consumer: %v", err)
			}
		}

		direction := models.DirectionToCloud
		if cfg.Role == fence.RoleCloud {
			direction = models.DirectionToLocal
		}
		flusher := outbox.NewFlusher(db.DB, store, cb, events.NewPublisher(b),
			cfg.TenantID, direction, cfg.Outbox.Tick, cfg.Outbox.BatchSize, cfg.Command.Timeout)
		flusher.Notify = func(flushed int) {
			hub.BroadcastFlush(cfg.TenantID, flushed)
		}
		go flusher.Run(ctx)
	}

	// 9. HTTP router
	router := handlers.NewRouter(db.DB, store, gw, obWriter, hub, cfg.Role, cfg.TenantID, cfg.JWTSecret, cfg.AdminHash)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server (%s, tenant %s) starting on port %s\n", cfg.Role, cfg.TenantID, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop consumers, flushers and heartbeats
	stop()

	if err := b.Close(); err != nil {
		log.Printf("Broker close error: %v", err)
	}

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
