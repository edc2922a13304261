package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"

	pc "github.com/cityworks/parking-recommend-cluster"
)

func main() {
	cfg := pc.LoadConfigFromEnv()
	pc.SetNodeMetadata(string(cfg.NodeID))

	dsn := strings.TrimSpace(os.Getenv("DATAVIEW_DSN"))
	if dsn == "" {
		dsn = "file:parkcluster.db?cache=shared&_fk=1&mode=ro"
	}
	view, err := pc.NewSQLiteDataView(dsn)
	if err != nil {
		log.Fatalf("data view init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := pc.NewAMQPBroker(ctx, cfg)
	if err != nil {
		log.Fatalf("broker connect: %v", err)
	}

	node := pc.NewNode(cfg, broker, view)

	events := pc.NewClusterEventBroadcaster()
	go events.Run()
	node.SetEventBroadcaster(events)

	pc.RecordAudit(ctx, pc.AuditLevelInfo, "node", "start", "node boot sequence", map[string]any{
		"node_id":   string(cfg.NodeID),
		"min_nodes": cfg.MinNodes,
	})

	if err := node.Start(ctx); err != nil {
		log.Fatalf("node start: %v", err)
	}

	r := mux.NewRouter()
	pc.RegisterClusterHTTP(r, node)
	r.HandleFunc("/ws", events.ServeWS)

	addr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("node %s listening on %s", cfg.NodeID, addr)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
