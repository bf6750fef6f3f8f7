package main

import (
	"context"
	"flag"
	"log"
	"time"

	"broker/internal/journal"
	"broker/internal/ops"
	"broker/internal/state"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	snapshotPath := flag.String("snapshot", "", "Snapshot to verify (default: snapshotPath from config)")
	since := flag.String("since", "", "Only replay fills executed at or after this RFC3339 time")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	path := *snapshotPath
	if path == "" {
		path = loaded.SnapshotPath
	}
	var from time.Time
	if *since != "" {
		from, err = time.Parse(time.RFC3339, *since)
		if err != nil {
			log.Fatalf("invalid since: %v", err)
		}
	}

	if err := run(context.Background(), loaded.Journal, path, from); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

func run(ctx context.Context, cfg journal.Config, snapshotPath string, since time.Time) error {
	expected, err := state.ReadSnapshot(snapshotPath)
	if err != nil {
		return err
	}

	jr, err := journal.Open(cfg)
	if err != nil {
		return err
	}
	defer jr.Close()

	fills, err := jr.FillsSince(ctx, since)
	if err != nil {
		return err
	}

	ledger := state.Replay(expected.StartingCash, fills)
	actual := ledger.Snapshot()
	if err := state.CompareSnapshots(expected, actual); err != nil {
		return err
	}
	log.Printf("snapshot verified: fills=%d positions=%d cash=%s", len(fills), len(actual.Positions), actual.Cash)
	return nil
}
