package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"broker/pkg/exception"

	"github.com/shopspring/decimal"
)

// Snapshot captures the ledger at a point in time.
type Snapshot struct {
	Timestamp    int64           `json:"timestamp"`
	StartingCash decimal.Decimal `json:"startingCash"`
	Cash         decimal.Decimal `json:"cash"`
	Positions    []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	Symbol      string          `json:"symbol"`
	Size        decimal.Decimal `json:"size"`
	Cost        decimal.Decimal `json:"cost"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	Commission  decimal.Decimal `json:"commission"`
}

// Snapshot builds a snapshot of the current ledger.
func (l *Ledger) Snapshot() Snapshot {
	positions := l.Positions()
	entries := make([]PositionEntry, 0, len(positions))
	for _, pos := range positions {
		entries = append(entries, PositionEntry{
			Symbol:      pos.Symbol,
			Size:        pos.Size,
			Cost:        pos.Cost,
			Price:       pos.Price,
			RealizedPnL: pos.RealizedPnL,
			Commission:  pos.Commission,
		})
	}
	return Snapshot{
		Timestamp:    time.Now().UTC().UnixNano(),
		StartingCash: l.StartingCash(),
		Cash:         l.Cash(),
		Positions:    entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks if two snapshots describe the same books.
// Flat positions are ignored on both sides.
func CompareSnapshots(expected, actual Snapshot) error {
	if !expected.Cash.Equal(actual.Cash) {
		return fmt.Errorf("%w: cash expected=%s actual=%s", exception.ErrSnapshotDiffers, expected.Cash, actual.Cash)
	}

	want := openEntries(expected)
	got := openEntries(actual)
	if len(want) != len(got) {
		return fmt.Errorf("%w: open positions expected=%d actual=%d", exception.ErrSnapshotDiffers, len(want), len(got))
	}
	for symbol, w := range want {
		g, ok := got[symbol]
		if !ok {
			return fmt.Errorf("%w: %s", exception.ErrSnapshotMissing, symbol)
		}
		if !w.Size.Equal(g.Size) || !w.Cost.Equal(g.Cost) || !w.Price.Equal(g.Price) {
			return fmt.Errorf("%w: symbol=%s expected=%s@%s actual=%s@%s",
				exception.ErrSnapshotDiffers, symbol, w.Size, w.Price, g.Size, g.Price)
		}
	}
	return nil
}

func openEntries(s Snapshot) map[string]PositionEntry {
	out := make(map[string]PositionEntry, len(s.Positions))
	for _, entry := range s.Positions {
		if entry.Size.IsZero() {
			continue
		}
		out[entry.Symbol] = entry
	}
	return out
}
