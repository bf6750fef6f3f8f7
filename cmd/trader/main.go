package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"broker/internal/broker"
	"broker/internal/exchange/binance"
	"broker/internal/journal"
	"broker/internal/notify"
	"broker/internal/obs"
	"broker/internal/ops"
	"broker/internal/risk"
	"broker/internal/schema"
	"broker/internal/state"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Risk config reload interval (0=disable)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disable)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "broker/trader",
			ServerAddress:   *pyroscopeAddr,
			Tags: map[string]string{
				"quote": loaded.QuoteAsset,
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, loaded, *configPath, *configReload); err != nil {
		log.Fatalf("trader failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded, configPath string, configReload time.Duration) error {
	client, err := binance.NewClient(nil, loaded.Client)
	if err != nil {
		return err
	}
	if err := loadFilters(ctx, client, loaded.Instruments); err != nil {
		return err
	}

	engine := risk.NewEngine(loaded.Risk)
	if configPath != "" && configReload > 0 {
		go watchRisk(ctx, configPath, configReload, func(cfg risk.Config) {
			if engine.Update(cfg) {
				logs.Infof("risk config updated, version: %d", cfg.Version)
			}
		})
	}

	var jr *journal.Journal
	if loaded.Journal.Enabled {
		jr, err = journal.Open(loaded.Journal)
		if err != nil {
			return err
		}
		defer func() {
			if err := jr.Close(); err != nil {
				logs.Errorf("close journal, err: %+v", err)
			}
		}()
	}

	metrics := obs.NewMetrics()
	queue := notify.NewQueue(1024)
	ledger := state.NewLedger(decimal.Zero)
	b := broker.New(client, loaded.Instruments, ledger, queue,
		broker.WithRisk(engine),
		broker.WithMetrics(metrics),
		broker.WithRefGenerator(obs.NewRefGenerator(0)),
	)

	if err := initCash(ctx, b, loaded); err != nil {
		return err
	}
	logs.Infof("broker ready, symbols: %v, cash: %s %s", loaded.Instruments.Symbols(), b.Cash(), loaded.QuoteAsset)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stream := binance.NewUserStream(client, loaded.StreamURL)
		if err := stream.Run(ctx, b.HandleEvent); err != nil {
			streamErr <- err
		}
		cancel()
	}()

	pollNotifications(ctx, b, jr, loaded.PollInterval)
	cancel()
	wg.Wait()
	queue.Close()
	drainNotifications(context.Background(), b, jr)

	if loaded.SnapshotPath != "" {
		if err := state.WriteSnapshot(loaded.SnapshotPath, b.Ledger().Snapshot()); err != nil {
			logs.Errorf("write snapshot, err: %+v", err)
		}
	}

	snapshot := metrics.Snapshot()
	logs.Infof("metrics: events=%v outcomes=%v risk_reasons=%v submits=%d rejects=%d notifications=%d drops=%d connectivity=%d submit_latency=%+v event_latency=%+v",
		snapshot.EventCounts, snapshot.EventOutcomes, snapshot.RiskReasonCounts, snapshot.Submits,
		snapshot.SubmitRejects, snapshot.Notifications, snapshot.NotifyDrops, snapshot.ConnectivityErrs,
		snapshot.SubmitLatency, snapshot.EventLatency)

	select {
	case err := <-streamErr:
		return err
	default:
		return nil
	}
}

func loadFilters(ctx context.Context, client *binance.Client, instruments *schema.Registry) error {
	symbols := instruments.Symbols()
	infos, err := client.ExchangeInfo(ctx, symbols...)
	if err != nil {
		return err
	}
	for _, symbol := range symbols {
		info, ok := infos[symbol]
		if !ok {
			return fmt.Errorf("symbol %s not listed on exchange", symbol)
		}
		if err := instruments.SetFilters(symbol, info.Filters); err != nil {
			return err
		}
	}
	return nil
}

// initCash seeds the ledger with the configured cash, or the whole quote
// balance when none is configured.
func initCash(ctx context.Context, b *broker.Broker, loaded ops.Loaded) error {
	if loaded.StartingCash != nil {
		return b.SetCash(ctx, loaded.QuoteAsset, *loaded.StartingCash)
	}
	balance, err := b.AssetBalance(ctx, loaded.QuoteAsset)
	if err != nil {
		return err
	}
	return b.SetCash(ctx, loaded.QuoteAsset, balance)
}

func pollNotifications(ctx context.Context, b *broker.Broker, jr *journal.Journal, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drainNotifications(ctx, b, jr)
		}
	}
}

func drainNotifications(ctx context.Context, b *broker.Broker, jr *journal.Journal) {
	for {
		o, ok := b.Notification()
		if !ok {
			return
		}
		logs.Infof("order %d %s %s %s size: %s executed: %s avg: %s",
			o.ID, o.Symbol, o.Side, o.Status, o.Size, o.Executed.Size, o.Executed.Price)
		if jr == nil || len(o.Fills) == 0 {
			continue
		}
		n, err := jr.SaveOrder(ctx, o)
		if err != nil {
			logs.Errorf("journal order %d, err: %+v", o.ID, err)
			continue
		}
		if n > 0 {
			logs.Infof("journaled %d trades of order %d", n, o.ID)
		}
	}
}

func watchRisk(ctx context.Context, path string, interval time.Duration, update func(risk.Config)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				log.Printf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			cfg, err := ops.LoadRisk(path)
			if err != nil {
				log.Printf("config reload failed: %v", err)
				continue
			}
			update(cfg)
			lastMod = info.ModTime()
		}
	}
}
