package binance

import (
	"context"
	"errors"
	"testing"

	"broker/internal/schema"
	"broker/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, payload string) (schema.Event, bool) {
	t.Helper()
	ev, ok, err := decodeEvent(func(v any) error {
		return sonic.Unmarshal([]byte(payload), v)
	})
	require.NoError(t, err)
	return ev, ok
}

func TestDecodeExecutionReportNew(t *testing.T) {
	payload := `{"e":"executionReport","E":1707120960762,"s":"ETHUSDT","c":"oVoRofmTTXJCqnGNuvcuEu","S":"BUY","o":"MARKET","f":"GTC","q":"0.00220000","p":"0.00000000","P":"0.00000000","F":"0.00000000","g":-1,"C":"","x":"NEW","X":"NEW","r":"NONE","i":15859894465,"l":"0.00000000","z":"0.00000000","L":"0.00000000","n":"0","N":null,"T":1707120960761,"t":-1,"I":33028455024,"w":true,"m":false,"M":false,"O":1707120960761,"Z":"0.00000000","Y":"0.00000000","Q":"0.00000000","W":1707120960761,"V":"EXPIRE_MAKER"}`

	ev, ok := decodePayload(t, payload)
	require.True(t, ok)
	assert.Equal(t, schema.EventExecutionReport, ev.Type)
	assert.Equal(t, "ETHUSDT", ev.Symbol)
	assert.Equal(t, int64(15859894465), ev.OrderID)
	assert.Equal(t, "oVoRofmTTXJCqnGNuvcuEu", ev.ClientOrderID)
	assert.Equal(t, schema.OrderSideBuy, ev.Side)
	assert.Equal(t, schema.ExchangeStatusNew, ev.Status)
	assert.False(t, ev.HasFill())
	assert.Empty(t, ev.CommissionAsset)
	assert.Empty(t, ev.Message)
	assert.Equal(t, int64(-1), ev.TradeID)
	assert.Equal(t, int64(1707120960761), ev.TransactTime.UnixMilli())
}

func TestDecodeExecutionReportTrade(t *testing.T) {
	payload := `{"e":"executionReport","E":1707120960762,"s":"ETHUSDT","c":"oVoRofmTTXJCqnGNuvcuEu","S":"BUY","o":"MARKET","f":"GTC","q":"0.00220000","p":"0.00000000","P":"0.00000000","F":"0.00000000","g":-1,"C":"","x":"TRADE","X":"FILLED","r":"NONE","i":15859894465,"l":"0.00220000","z":"0.00220000","L":"2319.53000000","n":"0.00000220","N":"ETH","T":1707120960761,"t":1297224255,"I":33028455025,"w":false,"m":false,"M":true,"O":1707120960761,"Z":"5.10296600","Y":"5.10296600","Q":"0.00000000","W":1707120960761,"V":"EXPIRE_MAKER"}`

	ev, ok := decodePayload(t, payload)
	require.True(t, ok)
	assert.Equal(t, schema.ExchangeStatusFilled, ev.Status)
	assert.True(t, ev.HasFill())
	assert.True(t, ev.LastFilledQty.Equal(decimal.RequireFromString("0.0022")))
	assert.True(t, ev.LastFilledPrice.Equal(decimal.RequireFromString("2319.53")))
	assert.True(t, ev.Commission.Equal(decimal.RequireFromString("0.0000022")))
	assert.Equal(t, "ETH", ev.CommissionAsset)
	assert.Equal(t, int64(1297224255), ev.TradeID)
}

func TestDecodeExecutionReportEmptyNumbers(t *testing.T) {
	ev, ok := decodePayload(t, `{"e":"executionReport","s":"ETHUSDT","i":7,"X":"CANCELED","l":"","L":"","n":""}`)
	require.True(t, ok)
	assert.Equal(t, schema.ExchangeStatusCanceled, ev.Status)
	assert.True(t, ev.LastFilledQty.IsZero())
	assert.True(t, ev.Commission.IsZero())
}

func TestDecodeOtherEvents(t *testing.T) {
	testCases := []struct {
		desc    string
		payload string
		typ     schema.EventType
		ok      bool
		message string
	}{
		{
			desc:    "account position",
			payload: `{"e":"outboundAccountPosition","E":1564034571105,"u":1564034571073,"B":[{"a":"ETH","f":"10000.000000","l":"0.000000"}]}`,
			typ:     schema.EventAccountPosition,
			ok:      true,
		},
		{
			desc:    "balance update",
			payload: `{"e":"balanceUpdate","E":1573200697110,"a":"BTC","d":"100.00000000","T":1573200697068}`,
			typ:     schema.EventBalanceUpdate,
			ok:      true,
		},
		{
			desc:    "listen key expired",
			payload: `{"e":"listenKeyExpired","E":1576653824250,"listenKey":"OfYGbUzi3PraNagEkdKuFwUHn48brFsItTdsuiIXrucEvD0rhRXZ7I6URWfE8YE8"}`,
			typ:     schema.EventError,
			ok:      true,
			message: "listenKeyExpired",
		},
		{
			desc:    "error",
			payload: `{"e":"error","m":"Max reconnect retries reached"}`,
			typ:     schema.EventError,
			ok:      true,
			message: "Max reconnect retries reached",
		},
		{
			desc:    "subscription reply",
			payload: `{"result":null,"id":1}`,
			ok:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			ev, ok := decodePayload(t, tc.payload)
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.typ, ev.Type)
			assert.Equal(t, tc.message, ev.Message)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, _, err := decodeEvent(func(v any) error {
		return sonic.Unmarshal([]byte(`{"e":`), v)
	})
	require.Error(t, err)
}

type fakeListenKeys struct {
	createErr error
	closed    []string
}

func (f *fakeListenKeys) CreateListenKey(context.Context) (string, error) {
	return "", f.createErr
}

func (f *fakeListenKeys) KeepAliveListenKey(context.Context, string) error { return nil }

func (f *fakeListenKeys) CloseListenKey(_ context.Context, key string) error {
	f.closed = append(f.closed, key)
	return nil
}

func TestUserStreamListenKeyFailure(t *testing.T) {
	keys := &fakeListenKeys{createErr: errors.New("boom")}
	err := NewUserStream(keys, StreamURLTestnet).Run(t.Context(), func(schema.Event) error { return nil })
	require.ErrorIs(t, err, exception.ErrConnectivity)
	assert.Empty(t, keys.closed)

	keys.createErr = nil
	err = NewUserStream(keys, "").Run(t.Context(), func(schema.Event) error { return nil })
	require.ErrorIs(t, err, exception.ErrEmptyListenKey)
}
