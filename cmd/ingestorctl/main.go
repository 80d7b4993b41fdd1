package main

import (
	"log"
	"os"

	"github.com/jtdct/ingestor/internal/cli"
	"github.com/jtdct/ingestor/internal/config"
	"github.com/jtdct/ingestor/internal/db"
	"github.com/jtdct/ingestor/internal/queuestore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	conn, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer conn.Close()

	store := queuestore.New(conn)
	root := cli.RootCmd(store)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
