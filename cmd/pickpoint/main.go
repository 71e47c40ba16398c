package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"pickpoint/config"
	"pickpoint/engine"
	"pickpoint/messaging"
	"pickpoint/posestate"
	"pickpoint/store"
	"pickpoint/vision"
	"pickpoint/www"
)

const version = "dev"

func main() {
	configPath := flag.String("config", "pickpoint.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *port > 0 {
		cfg.Web.Port = *port
	}

	// Open database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	ensureAdminUser(db)

	// Pose mirror: Redis when configured, in-process otherwise
	var poses posestate.Store = posestate.NewMemoryStore()
	if cfg.PoseCache.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.PoseCache.Addr,
			DB:   cfg.PoseCache.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("redis %s unreachable: %v (using in-memory pose mirror)", cfg.PoseCache.Addr, err)
		} else {
			poses = posestate.NewRedisStore(rdb)
			defer rdb.Close()
		}
	}

	// Capture source
	var source vision.Source = &vision.StaticSource{}
	if cfg.Vision.Endpoint != "" {
		source = vision.NewHTTPSource(cfg.Vision)
	} else {
		log.Printf("no capture endpoint configured; batch captures will return no points")
	}

	// Create and start engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Source:     source,
		Poses:      poses,
		LogFunc:    log.Printf,
		Debug:      *debug,
	})
	eng.Start()
	defer eng.Stop()

	// Set up messaging
	if cfg.Messaging.Enabled {
		msgClient := messaging.NewClient(&cfg.Messaging, cfg.ClientID())
		defer msgClient.Close()
		if err := msgClient.Connect(); err != nil {
			log.Printf("messaging connect: %v (will retry via outbox)", err)
		} else {
			drainer := messaging.NewOutboxDrainer(db, msgClient, &cfg.Messaging)
			drainer.Start()
			defer drainer.Stop()

			ctrl := messaging.NewControlSubscriber(msgClient, cfg, eng)
			if err := ctrl.Start(); err != nil {
				log.Printf("control subscribe: %v", err)
			} else {
				log.Printf("control subscriber listening on %s (cell=%s)", cfg.Messaging.ControlTopic, cfg.CellID)
			}

			hb := messaging.NewHeartbeater(msgClient, cfg.CellID, version, cfg.Messaging.TelemetryTopic, eng)
			hb.Start()
			defer hb.Stop()
		}
	}

	// Set up HTTP server
	router, stopWeb := www.NewRouter(eng)
	defer stopWeb()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{Addr: addr, Handler: router}

	// Start HTTP server
	go func() {
		log.Printf("PickPoint cell %s listening on %s", cfg.CellID, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Stop SSE event hub first so long-lived connections close
	stopWeb()

	// Graceful HTTP shutdown with 10s deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
}

// ensureAdminUser creates the default admin account on first run.
func ensureAdminUser(db *store.DB) {
	exists, err := db.AdminUserExists()
	if err != nil {
		log.Printf("check admin users: %v", err)
		return
	}
	if exists {
		return
	}
	hash, err := www.HashPassword("pickpoint")
	if err != nil {
		log.Printf("hash default password: %v", err)
		return
	}
	if err := db.CreateAdminUser("admin", hash); err != nil {
		log.Printf("create default admin: %v", err)
		return
	}
	log.Printf("created default admin user (admin/pickpoint); change the password")
}
