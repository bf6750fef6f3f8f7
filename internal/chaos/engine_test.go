package chaos

import (
	"sort"
	"testing"

	"broker/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func events(n int) []schema.Event {
	out := make([]schema.Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, schema.Event{Type: schema.EventExecutionReport, OrderID: int64(i)})
	}
	return out
}

func run(e *Engine, in []schema.Event) []schema.Event {
	var out []schema.Event
	for _, ev := range in {
		out = append(out, e.Process(ev)...)
	}
	return append(out, e.Flush()...)
}

func ids(in []schema.Event) []int64 {
	out := make([]int64, 0, len(in))
	for _, ev := range in {
		out = append(out, ev.OrderID)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
	}{
		{desc: "negative drop rate", cfg: Config{DropRate: -0.1}},
		{desc: "drop rate above one", cfg: Config{DropRate: 1.5}},
		{desc: "duplicate rate above one", cfg: Config{DuplicateRate: 2}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewEngine(tc.cfg)
			require.Error(t, err)
		})
	}

	require.Error(t, Config{}.Validate())
	assert.True(t, Config{ReorderWindow: 1}.Lossless())
	assert.False(t, Config{ReorderWindow: 4}.Lossless())
	assert.False(t, Config{DropRate: 0.1}.Lossless())
}

func TestNilEnginePassesThrough(t *testing.T) {
	var e *Engine
	out := run(e, events(3))
	assert.Equal(t, []int64{1, 2, 3}, ids(out))
}

func TestDropAll(t *testing.T) {
	e, err := NewEngine(Config{Seed: 7, DropRate: 1})
	require.NoError(t, err)
	assert.Empty(t, run(e, events(5)))
	dropped, duplicated := e.Stats()
	assert.Equal(t, 5, dropped)
	assert.Zero(t, duplicated)
}

func TestDuplicateAll(t *testing.T) {
	e, err := NewEngine(Config{Seed: 7, DuplicateRate: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2, 2, 3, 3}, ids(run(e, events(3))))
	_, duplicated := e.Stats()
	assert.Equal(t, 3, duplicated)
}

func TestReorderKeepsEveryEvent(t *testing.T) {
	first, err := NewEngine(Config{Seed: 42, ReorderWindow: 4})
	require.NoError(t, err)
	second, err := NewEngine(Config{Seed: 42, ReorderWindow: 4})
	require.NoError(t, err)

	a := ids(run(first, events(20)))
	b := ids(run(second, events(20)))
	assert.Equal(t, a, b, "same seed, same order")

	sorted := append([]int64(nil), a...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	assert.Equal(t, ids(events(20)), sorted)
}
