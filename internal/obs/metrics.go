package obs

import (
	"sync/atomic"
	"time"

	"broker/internal/risk"
	"broker/internal/schema"
)

const (
	maxEventType  = int(schema.EventError)
	maxRiskReason = int(risk.ReasonMinNotional)
)

// EventOutcome classifies how a push-channel event was handled.
type EventOutcome uint8

const (
	EventApplied EventOutcome = iota
	EventIgnored
	EventUnresolved
	EventStashed
	EventFailed
	maxEventOutcome = int(EventFailed)
)

func (o EventOutcome) String() string {
	switch o {
	case EventApplied:
		return "applied"
	case EventIgnored:
		return "ignored"
	case EventUnresolved:
		return "unresolved"
	case EventStashed:
		return "stashed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts      [maxEventType + 1]uint64
	eventOutcomes    [maxEventOutcome + 1]uint64
	riskReasonCounts [maxRiskReason + 1]uint64
	submits          uint64
	submitRejects    uint64
	notifications    uint64
	notifyDrops      uint64
	connectivityErrs uint64

	submitLatency LatencyStats
	eventLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	EventOutcomes    map[EventOutcome]uint64
	RiskReasonCounts map[risk.Reason]uint64
	Submits          uint64
	SubmitRejects    uint64
	Notifications    uint64
	NotifyDrops      uint64
	ConnectivityErrs uint64
	SubmitLatency    LatencySnapshot
	EventLatency     LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts an event by type and outcome.
func (m *Metrics) ObserveEvent(typ schema.EventType, outcome EventOutcome) {
	if m == nil {
		return
	}
	if idx := int(typ); idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if idx := int(outcome); idx >= 0 && idx < len(m.eventOutcomes) {
		atomic.AddUint64(&m.eventOutcomes[idx], 1)
	}
}

// IncRiskReason increments the risk reason counter.
func (m *Metrics) IncRiskReason(reason risk.Reason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// IncSubmit records an order sent to the exchange.
func (m *Metrics) IncSubmit() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.submits, 1)
}

// IncSubmitReject records an order rejected before or during submission.
func (m *Metrics) IncSubmitReject() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.submitRejects, 1)
}

// IncNotification records a queued notification, or a drop when queued is false.
func (m *Metrics) IncNotification(queued bool) {
	if m == nil {
		return
	}
	if queued {
		atomic.AddUint64(&m.notifications, 1)
		return
	}
	atomic.AddUint64(&m.notifyDrops, 1)
}

// IncConnectivity records a transport failure.
func (m *Metrics) IncConnectivity() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.connectivityErrs, 1)
}

// ObserveSubmit measures the submit round trip.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// ObserveEventLatency measures exchange event time to local handling.
func (m *Metrics) ObserveEventLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.eventLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	outcomes := make(map[EventOutcome]uint64)
	for i := range m.eventOutcomes {
		if v := atomic.LoadUint64(&m.eventOutcomes[i]); v > 0 {
			outcomes[EventOutcome(i)] = v
		}
	}
	riskCounts := make(map[risk.Reason]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[risk.Reason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		EventOutcomes:    outcomes,
		RiskReasonCounts: riskCounts,
		Submits:          atomic.LoadUint64(&m.submits),
		SubmitRejects:    atomic.LoadUint64(&m.submitRejects),
		Notifications:    atomic.LoadUint64(&m.notifications),
		NotifyDrops:      atomic.LoadUint64(&m.notifyDrops),
		ConnectivityErrs: atomic.LoadUint64(&m.connectivityErrs),
		SubmitLatency:    m.submitLatency.Snapshot(),
		EventLatency:     m.eventLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		low := atomic.LoadUint64(&l.min)
		if low != 0 && nanos >= low {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, low, nanos) {
			break
		}
	}

	for {
		high := atomic.LoadUint64(&l.max)
		if nanos <= high {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, high, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
