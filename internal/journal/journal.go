package journal

import (
	"context"
	"time"

	"broker/internal/og"
	"broker/internal/state"
	"broker/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TradeRecord is one journaled fill. A fill is stored once per
// (order id, trade id). Fills the exchange reported without a trade id are
// keyed by their position in the order instead, as -1, -2, ...
type TradeRecord struct {
	ID              uint64          `gorm:"column:id_trade;primaryKey;autoIncrement"`
	CreatedAt       time.Time       `gorm:"column:dt_create;autoCreateTime"`
	ExecutedAt      time.Time       `gorm:"column:dt_execution;index"`
	OrderID         int64           `gorm:"column:id_order;uniqueIndex:ux_tb_trade_order_trade"`
	TradeID         int64           `gorm:"column:id_exchange_trade;uniqueIndex:ux_tb_trade_order_trade"`
	ClientOrderID   string          `gorm:"column:ds_client_order_id"`
	Side            string          `gorm:"column:ds_side"`
	Ticker          string          `gorm:"column:ticker"`
	Price           decimal.Decimal `gorm:"column:vl_exec_price;type:numeric"`
	Quantity        decimal.Decimal `gorm:"column:vl_quantity;type:numeric"`
	Commission      decimal.Decimal `gorm:"column:vl_commission;type:numeric"`
	CommissionAsset string          `gorm:"column:ds_commission_asset"`
	QuoteCommission decimal.Decimal `gorm:"column:vl_quote_commission;type:numeric"`
	Custody         string          `gorm:"column:ds_custody"`
}

func (TradeRecord) TableName() string {
	return "tb_trade"
}

// Fill converts the record back into a signed ledger fill.
func (r TradeRecord) Fill() state.Fill {
	size := r.Quantity
	if r.Side == "SELL" {
		size = size.Neg()
	}
	return state.Fill{
		Symbol:     r.Ticker,
		Size:       size,
		Price:      r.Price,
		Commission: r.QuoteCommission,
	}
}

// Records flattens the fills of an order into trade records.
func Records(order og.Order, custody string) []TradeRecord {
	if len(order.Fills) == 0 {
		return nil
	}
	out := make([]TradeRecord, 0, len(order.Fills))
	for i, f := range order.Fills {
		tradeID := f.TradeID
		if tradeID <= 0 {
			tradeID = -int64(i + 1)
		}
		out = append(out, TradeRecord{
			ExecutedAt:      f.At,
			OrderID:         order.ID,
			TradeID:         tradeID,
			ClientOrderID:   order.ClientOrderID,
			Side:            order.Side.String(),
			Ticker:          order.Symbol,
			Price:           f.Price,
			Quantity:        f.Size,
			Commission:      f.Commission,
			CommissionAsset: f.CommissionAsset,
			QuoteCommission: f.QuoteCommission,
			Custody:         custody,
		})
	}
	return out
}

// Journal persists executed fills.
type Journal struct {
	db      *gorm.DB
	custody string
}

// Open connects to postgres and migrates the trade table.
func Open(cfg Config) (*Journal, error) {
	db, err := openPostgres(cfg, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	j, err := New(db, cfg.Custody)
	if err != nil {
		return nil, err
	}
	if err := j.db.AutoMigrate(&TradeRecord{}); err != nil {
		_ = j.Close()
		return nil, errors.Wrap(err, "migrate journal")
	}
	return j, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, custody string) (*Journal, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	return &Journal{db: db, custody: custody}, nil
}

// SaveOrder stores every fill of the order. Fills already journaled are
// skipped; it returns the number of new rows.
func (j *Journal) SaveOrder(ctx context.Context, order og.Order) (int64, error) {
	records := Records(order, j.custody)
	if len(records) == 0 {
		return 0, nil
	}
	result := j.insert(j.db.WithContext(ctx), records)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "save trades").With("order", order.ID)
	}
	return result.RowsAffected, nil
}

func (j *Journal) insert(db *gorm.DB, records []TradeRecord) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id_order"}, {Name: "id_exchange_trade"}},
		DoNothing: true,
	}).Create(&records)
}

// Fills loads the journaled fills in execution order.
func (j *Journal) Fills(ctx context.Context) ([]state.Fill, error) {
	return j.FillsSince(ctx, time.Time{})
}

// FillsSince loads the fills executed at or after since, in execution order.
func (j *Journal) FillsSince(ctx context.Context, since time.Time) ([]state.Fill, error) {
	var records []TradeRecord
	if err := j.query(j.db.WithContext(ctx), since).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "load trades").With("since", since)
	}
	out := make([]state.Fill, 0, len(records))
	for _, r := range records {
		out = append(out, r.Fill())
	}
	return out, nil
}

func (j *Journal) query(db *gorm.DB, since time.Time) *gorm.DB {
	if !since.IsZero() {
		db = db.Where("dt_execution >= ?", since)
	}
	if j.custody != "" {
		db = db.Where("ds_custody = ?", j.custody)
	}
	return db.Order("dt_execution, id_trade")
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
