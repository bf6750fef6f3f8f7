package journal

import (
	"testing"
	"time"

	"broker/internal/og"
	"broker/internal/schema"
	"broker/internal/state"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testOrder() og.Order {
	at := time.UnixMilli(1707120960761).UTC()
	return og.Order{
		ID:            15859894465,
		ClientOrderID: "oVoRofmTTXJCqnGNuvcuEu",
		Symbol:        "ETHUSDT",
		Side:          schema.OrderSideSell,
		Size:          dec("1"),
		Status:        og.StatusCompleted,
		Fills: []og.Fill{
			{TradeID: 1, Size: dec("0.4"), Price: dec("2000"), Commission: dec("0.8"), CommissionAsset: "USDT", QuoteCommission: dec("0.8"), At: at},
			{TradeID: 2, Size: dec("0.6"), Price: dec("2010"), Commission: dec("1.206"), CommissionAsset: "USDT", QuoteCommission: dec("1.206"), At: at},
		},
	}
}

func TestRecords(t *testing.T) {
	records := Records(testOrder(), "binance")
	require.Len(t, records, 2)
	assert.Equal(t, "SELL", records[0].Side)
	assert.Equal(t, "ETHUSDT", records[0].Ticker)
	assert.Equal(t, int64(15859894465), records[1].OrderID)
	assert.Equal(t, int64(2), records[1].TradeID)
	assert.Equal(t, "binance", records[1].Custody)

	fill := records[1].Fill()
	assert.True(t, fill.Size.Equal(dec("-0.6")))
	assert.True(t, fill.Commission.Equal(dec("1.206")))

	assert.Nil(t, Records(og.Order{ID: 1}, "binance"))
}

func TestRecordsKeyFillsWithoutTradeID(t *testing.T) {
	order := testOrder()
	order.Fills[0].TradeID = -1
	order.Fills[1].TradeID = 0
	order.Fills = append(order.Fills, og.Fill{TradeID: 7, Size: dec("0.1"), Price: dec("2020")})

	records := Records(order, "binance")
	require.Len(t, records, 3)
	assert.Equal(t, int64(-1), records[0].TradeID)
	assert.Equal(t, int64(-2), records[1].TradeID)
	assert.Equal(t, int64(7), records[2].TradeID)

	// saving the order again yields the same keys
	again := Records(order, "binance")
	for i := range records {
		assert.Equal(t, records[i].TradeID, again[i].TradeID)
	}
}

func TestRecordsReplayIntoLedger(t *testing.T) {
	var fills []state.Fill
	for _, r := range Records(testOrder(), "") {
		fills = append(fills, r.Fill())
	}
	l := state.Replay(dec("0"), fills)
	pos := l.Position("ETHUSDT")
	assert.True(t, pos.Size.Equal(dec("-1")))
	assert.True(t, pos.Price.Equal(dec("2006")))
	assert.True(t, l.Cash().Equal(dec("-2008.006")))
}

func TestConfigDSN(t *testing.T) {
	assert.Equal(t, "postgres://localhost:5432?sslmode=disable", Config{}.DSN())
	assert.Equal(t, "postgres://bot:secret@db:5433/trades?application_name=broker&sslmode=require", Config{
		Host:     "db",
		Port:     5433,
		User:     "bot",
		Password: "secret",
		Database: "trades",
		SSLMode:  "require",
		Params:   map[string]string{"application_name": "broker"},
	}.DSN())
	assert.Equal(t, "host=x", Config{ConnString: "host=x", Host: "ignored"}.DSN())
}

func TestSaveOrderSkipsDuplicates(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=bot dbname=trades sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	j, err := New(db, "binance")
	require.NoError(t, err)

	stmt := j.insert(db, Records(testOrder(), "binance")).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, `INSERT INTO "tb_trade"`)
	assert.Contains(t, sql, `ON CONFLICT ("id_order","id_exchange_trade") DO NOTHING`)
}

func TestFillsSinceQuery(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=bot dbname=trades sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	j, err := New(db, "binance")
	require.NoError(t, err)

	var records []TradeRecord
	sql := j.query(db, time.Unix(1707120960, 0)).Find(&records).Statement.SQL.String()
	assert.Contains(t, sql, "dt_execution >= $1")
	assert.Contains(t, sql, "ds_custody = $2")
	assert.Contains(t, sql, "ORDER BY dt_execution, id_trade")

	sql = j.query(db.Session(&gorm.Session{NewDB: true}), time.Time{}).Find(&records).Statement.SQL.String()
	assert.NotContains(t, sql, "dt_execution >=")
}
