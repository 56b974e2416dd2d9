package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echoreel/moderation/internal/config"
	"github.com/echoreel/moderation/internal/ingest"
	"github.com/echoreel/moderation/internal/item"
	"github.com/echoreel/moderation/internal/messaging"
	"github.com/echoreel/moderation/internal/metrics"
	"github.com/echoreel/moderation/internal/store"
)

func main() {
	log.Println("Starting moderation ingest daemon...")

	cfg, err := config.LoadIngest()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := st.Migrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "moderation-ingestd"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	d := &daemon{store: st, insertTimeout: cfg.InsertTimeout}

	if err := natsClient.SubscribeFlagsCreated(d.handleFlags); err != nil {
		log.Fatalf("failed to subscribe to %s: %v", messaging.SubjectFlagsCreated, err)
	}
	if err := natsClient.SubscribeReportsCreated(d.handleReports); err != nil {
		log.Fatalf("failed to subscribe to %s: %v", messaging.SubjectReportsCreated, err)
	}

	log.Printf("Moderation ingest daemon running")
	log.Printf("  nats_url:       %s", cfg.NATSURL)
	log.Printf("  insert_timeout: %s", cfg.InsertTimeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	if err := st.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}
}

type daemon struct {
	store         *store.Store
	insertTimeout time.Duration
}

func (d *daemon) handleFlags(data []byte) {
	var batch ingest.FlagBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		log.Printf("[ingestd] unmarshal flag batch: %v", err)
		return
	}

	items := ingest.NormalizeFlags(batch.Flags, ingest.SetOf(batch.ClipIDs), time.Now().UTC())
	log.Printf("[ingestd] flag batch: %d raw, %d normalized", len(batch.Flags), len(items))
	d.persist(items, batch.ClipIDs)
}

func (d *daemon) handleReports(data []byte) {
	var batch ingest.ReportBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		log.Printf("[ingestd] unmarshal report batch: %v", err)
		return
	}

	items := ingest.NormalizeReports(batch.Reports,
		ingest.SetOf(batch.ClipIDs), ingest.SetOf(batch.ProfileIDs), time.Now().UTC())
	log.Printf("[ingestd] report batch: %d raw, %d normalized", len(batch.Reports), len(items))
	d.persist(items, batch.ClipIDs)
}

// persist ensures the referenced clips exist, then inserts the items.
// Duplicate item ids are skipped by the store; a single failed item is
// logged and does not abort the rest of the batch.
func (d *daemon) persist(items []item.ModerationItem, clipIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.insertTimeout)
	defer cancel()

	seen := make(map[string]bool, len(clipIDs))
	for i := range items {
		if items[i].Subject.Kind != item.SubjectClip || seen[items[i].Subject.ID] {
			continue
		}
		seen[items[i].Subject.ID] = true
		if err := d.store.UpsertClip(ctx, items[i].Subject.ID); err != nil {
			log.Printf("[ingestd] upsert clip %s: %v", items[i].Subject.ID, err)
		}
	}

	for i := range items {
		if err := d.store.Insert(ctx, &items[i]); err != nil {
			log.Printf("[ingestd] insert item %s: %v", items[i].ID, err)
			continue
		}
		metrics.ItemsIngested.WithLabelValues(string(items[i].Kind)).Inc()
	}
}
