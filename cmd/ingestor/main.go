package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jtdct/ingestor/internal/catalog"
	"github.com/jtdct/ingestor/internal/config"
	"github.com/jtdct/ingestor/internal/db"
	"github.com/jtdct/ingestor/internal/imagequeue"
	"github.com/jtdct/ingestor/internal/mediaserver"
	"github.com/jtdct/ingestor/internal/queuestore"
	"github.com/jtdct/ingestor/internal/version"
	"github.com/jtdct/ingestor/internal/watcher"
	"github.com/jtdct/ingestor/internal/worker"
)

func main() {
	ver := version.Load()
	log.Printf("ingestor %s starting...", ver.Version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	conn, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	store := queuestore.New(conn)
	catalogClient := catalog.New(cfg.CatalogBaseURL, cfg.CatalogToken, cfg.SearchOrder())
	msClient := mediaserver.New(cfg.MediaServerBaseURL, cfg.MediaServerAPIKey, cfg.MediaServerUserID)

	images := imagequeue.New(cfg.RedisAddr)
	images.RegisterHandler(msClient)
	go func() {
		if err := images.Start(); err != nil {
			log.Fatalf("imagequeue: %v", err)
		}
	}()

	fileProcessor := worker.NewFileProcessor(store, catalogClient, cfg.DestinationDir)
	mediaServerUpdater := worker.NewMediaServerUpdater(store, msClient, cfg.MediaServerParentFolder, images)
	retryScheduler := worker.NewRetryScheduler(store)
	manager := worker.NewManager(fileProcessor, mediaServerUpdater, retryScheduler)
	manager.Start()

	w, err := watcher.New(
		cfg.WatchDir,
		cfg.VideoExtensionSet(),
		time.Duration(cfg.StabilityCheckIntervalSeconds)*time.Second,
		cfg.StabilityMinStableChecks,
		store,
	)
	if err != nil {
		log.Fatalf("watcher: %v", err)
	}
	w.Start()

	log.Printf("ingestor running, watching %s", cfg.WatchDir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	w.Stop()
	manager.Stop()
	images.Stop()
}
