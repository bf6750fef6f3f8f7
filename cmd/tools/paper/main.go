package main

import (
	"context"
	"flag"
	"log"
	"math/rand"

	"broker/internal/broker"
	"broker/internal/chaos"
	"broker/internal/notify"
	"broker/internal/obs"
	"broker/internal/og"
	"broker/internal/ops"
	"broker/internal/risk"
	"broker/internal/schema"
	"broker/internal/state"

	"github.com/shopspring/decimal"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config (instruments and risk)")
	orders := flag.Int("orders", 100, "Number of orders to submit")
	cash := flag.String("cash", "100000", "Starting cash")
	basePrice := flag.String("base-price", "2000", "Initial mark price")
	size := flag.String("size", "0.1", "Order size")
	slices := flag.Int("slices", 3, "Trades per execution")
	ackFills := flag.Bool("ack-fills", true, "Report the first trade in the ack")
	inline := flag.Bool("inline", false, "Deliver events before the ack returns")
	commission := flag.String("commission", "0.001", "Commission rate in the quote asset")
	seed := flag.Int64("seed", 1, "Random seed")
	dropRate := flag.Float64("drop-rate", 0, "Event drop probability")
	duplicateRate := flag.Float64("duplicate-rate", 0, "Event duplicate probability")
	reorderWindow := flag.Int("reorder-window", 1, "Event reorder window")
	flag.Parse()

	if *orders <= 0 {
		log.Fatalf("orders must be > 0")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	chaosCfg := chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *duplicateRate,
		ReorderWindow: *reorderWindow,
	}
	engine, err := chaos.NewEngine(chaosCfg)
	if err != nil {
		log.Fatalf("chaos init failed: %v", err)
	}

	startingCash, err := decimal.NewFromString(*cash)
	if err != nil {
		log.Fatalf("invalid cash: %v", err)
	}
	sim := simulation{
		paper: chaos.NewPaper(chaos.PaperConfig{
			QuoteAsset:     loaded.QuoteAsset,
			Balance:        startingCash,
			CommissionRate: decimal.RequireFromString(*commission),
			Slices:         *slices,
			AckFills:       *ackFills,
		}, engine),
		rng:   rand.New(rand.NewSource(*seed)),
		price: decimal.RequireFromString(*basePrice),
		size:  decimal.RequireFromString(*size),
	}

	metrics := obs.NewMetrics()
	sim.broker = broker.New(sim.paper, loaded.Instruments, state.NewLedger(decimal.Zero), notify.NewQueue(1024),
		broker.WithRisk(risk.NewEngine(loaded.Risk)),
		broker.WithMetrics(metrics),
		broker.WithRefGenerator(obs.NewRefGenerator(uint64(*seed))),
	)
	if *inline {
		sim.paper.SetHandler(sim.broker.HandleEvent)
	}

	ctx := context.Background()
	if err := sim.broker.SetCash(ctx, loaded.QuoteAsset, startingCash); err != nil {
		log.Fatalf("set cash failed: %v", err)
	}

	symbols := loaded.Instruments.Symbols()
	for _, symbol := range symbols {
		sim.mark(symbol)
	}
	for i := 0; i < *orders; i++ {
		sim.step(ctx, symbols[i%len(symbols)])
	}
	if err := sim.paper.Flush(); err != nil {
		log.Printf("flush: %v", err)
	}
	sim.deliver()
	sim.drain()

	dropped, duplicated := engine.Stats()
	expected := state.Replay(startingCash, sim.paper.Trades()).Snapshot()
	actual := sim.broker.Ledger().Snapshot()
	diffErr := state.CompareSnapshots(expected, actual)

	snapshot := metrics.Snapshot()
	log.Printf("paper: orders=%d trades=%d resting=%d open=%d notifications=%d dropped=%d duplicated=%d",
		*orders, len(sim.paper.Trades()), sim.paper.Resting(), len(sim.broker.OpenOrders()), sim.notifications, dropped, duplicated)
	log.Printf("metrics: events=%v outcomes=%v risk_reasons=%v submits=%d rejects=%d submit_latency=%+v event_latency=%+v",
		snapshot.EventCounts, snapshot.EventOutcomes, snapshot.RiskReasonCounts, snapshot.Submits,
		snapshot.SubmitRejects, snapshot.SubmitLatency, snapshot.EventLatency)
	log.Printf("ledger: cash=%s value=%s", actual.Cash, sim.broker.Value())

	switch {
	case diffErr == nil:
		log.Printf("ledger matches exchange trades")
	case chaosCfg.Lossless():
		log.Fatalf("ledger diverged without event loss: %v", diffErr)
	default:
		log.Printf("ledger diverged under event loss or reordering: %v", diffErr)
	}
}

type simulation struct {
	paper  *chaos.Paper
	broker *broker.Broker
	rng    *rand.Rand
	price  decimal.Decimal
	size   decimal.Decimal

	resting       []og.Order
	notifications int
}

// step moves the market, places one order and occasionally cancels a
// resting one.
func (s *simulation) step(ctx context.Context, symbol string) {
	move := decimal.NewFromFloat(s.rng.NormFloat64() * 0.002).Round(6)
	s.price = s.broker.FormatPrice(symbol, s.price.Mul(decimal.NewFromInt(1).Add(move)).Round(2))
	s.mark(symbol)

	req := broker.Request{Symbol: symbol, Size: s.broker.FormatSize(symbol, s.size)}
	if s.rng.Intn(2) == 0 {
		req.Type = schema.OrderTypeLimit
		offset := decimal.NewFromFloat(s.rng.Float64() * 0.004).Round(6)
		req.Price = s.broker.FormatPrice(symbol, s.price.Mul(decimal.NewFromInt(1).Sub(offset)).Round(2))
	}

	side := schema.OrderSideBuy
	if s.rng.Intn(2) == 0 {
		side = schema.OrderSideSell
		if req.Type == schema.OrderTypeLimit {
			req.Price = s.broker.FormatPrice(symbol, s.price.Mul(decimal.NewFromInt(2)).Sub(req.Price))
		}
	}

	order, err := s.broker.Submit(ctx, side, req)
	if err != nil {
		log.Printf("submit failed: %v", err)
		return
	}
	if order.Status == og.StatusAccepted {
		s.resting = append(s.resting, order)
	}
	s.deliver()

	if len(s.resting) > 0 && s.rng.Intn(4) == 0 {
		idx := s.rng.Intn(len(s.resting))
		victim := s.resting[idx]
		s.resting = append(s.resting[:idx], s.resting[idx+1:]...)
		if err := s.broker.Cancel(ctx, victim); err != nil {
			log.Printf("cancel order %d: %v", victim.ID, err)
		}
		s.deliver()
	}
	s.drain()
}

func (s *simulation) mark(symbol string) {
	s.broker.Mark(symbol, s.price)
	if err := s.paper.SetMark(symbol, s.price); err != nil {
		log.Printf("mark %s: %v", symbol, err)
	}
}

// deliver hands queued exchange events to the broker.
func (s *simulation) deliver() {
	for _, ev := range s.paper.Events() {
		if err := s.broker.HandleEvent(ev); err != nil {
			log.Printf("event order %d: %v", ev.OrderID, err)
		}
	}
}

func (s *simulation) drain() {
	for {
		if _, ok := s.broker.Notification(); !ok {
			return
		}
		s.notifications++
	}
}
