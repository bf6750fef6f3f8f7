package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"broker/internal/exchange/binance"
	"broker/internal/journal"
	"broker/internal/risk"
	"broker/internal/schema"

	"github.com/shopspring/decimal"
)

const (
	EnvAPIKey           = "BINANCE_API_KEY"
	EnvAPISecret        = "BINANCE_API_SECRET"
	EnvTestnetAPIKey    = "BINANCE_TESTNET_API_KEY"
	EnvTestnetAPISecret = "BINANCE_TESTNET_API_SECRET"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Exchange     ExchangeConfig     `json:"exchange"`
	Instruments  []InstrumentConfig `json:"instruments"`
	Risk         risk.Config        `json:"risk"`
	Journal      journal.Config     `json:"journal"`
	SnapshotPath string             `json:"snapshotPath"`
	StartingCash *decimal.Decimal   `json:"startingCash"`
	PollInterval string             `json:"pollInterval"`
}

// ExchangeConfig selects the endpoints.
type ExchangeConfig struct {
	Testnet    bool   `json:"testnet"`
	BaseURL    string `json:"baseUrl"`
	StreamURL  string `json:"streamUrl"`
	RecvWindow string `json:"recvWindow"`
	Timeout    string `json:"timeout"`
	QuoteAsset string `json:"quoteAsset"`
}

// InstrumentConfig describes a tracked symbol.
type InstrumentConfig struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Client       binance.Config
	StreamURL    string
	QuoteAsset   string
	Instruments  *schema.Registry
	Risk         risk.Config
	Journal      journal.Config
	SnapshotPath string
	// StartingCash is nil when the exchange balance should be used.
	StartingCash *decimal.Decimal
	PollInterval time.Duration
}

// Load reads a JSON config file. An empty path yields the defaults.
// Credentials always come from the environment.
func Load(path string) (Loaded, error) {
	cfg := defaultFileConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, err
		}
	}
	return resolve(cfg, os.Getenv)
}

// LoadRisk reads only the risk section, used for hot reload.
func LoadRisk(path string) (risk.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return risk.Config{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return risk.Config{}, err
	}
	return cfg.Risk, nil
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Exchange: ExchangeConfig{
			Testnet:    true,
			QuoteAsset: "USDT",
		},
		Instruments: []InstrumentConfig{
			{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT"},
		},
		Risk: risk.Config{
			Version:        1,
			EnforceFilters: true,
		},
		Journal: journal.Config{
			Custody: "binance",
		},
		SnapshotPath: "data/ledger.json",
		PollInterval: "1s",
	}
}

func resolve(cfg FileConfig, getenv func(string) string) (Loaded, error) {
	registry, err := buildRegistry(cfg.Instruments)
	if err != nil {
		return Loaded{}, err
	}

	client := binance.Config{BaseURL: cfg.Exchange.BaseURL}
	streamURL := cfg.Exchange.StreamURL
	if cfg.Exchange.Testnet {
		client.APIKey, client.APISecret = getenv(EnvTestnetAPIKey), getenv(EnvTestnetAPISecret)
		if client.BaseURL == "" {
			client.BaseURL = binance.BaseURLTestnet
		}
		if streamURL == "" {
			streamURL = binance.StreamURLTestnet
		}
	} else {
		client.APIKey, client.APISecret = getenv(EnvAPIKey), getenv(EnvAPISecret)
		if client.BaseURL == "" {
			client.BaseURL = binance.BaseURL
		}
		if streamURL == "" {
			streamURL = binance.StreamURL
		}
	}

	if client.RecvWindow, err = parseDuration(cfg.Exchange.RecvWindow, 5*time.Second); err != nil {
		return Loaded{}, fmt.Errorf("invalid recvWindow: %w", err)
	}
	if client.Timeout, err = parseDuration(cfg.Exchange.Timeout, 15*time.Second); err != nil {
		return Loaded{}, fmt.Errorf("invalid timeout: %w", err)
	}
	poll, err := parseDuration(cfg.PollInterval, time.Second)
	if err != nil {
		return Loaded{}, fmt.Errorf("invalid pollInterval: %w", err)
	}

	quote := strings.ToUpper(cfg.Exchange.QuoteAsset)
	if quote == "" {
		quote = "USDT"
	}
	if cfg.StartingCash != nil && cfg.StartingCash.IsNegative() {
		return Loaded{}, fmt.Errorf("startingCash must be >= 0")
	}
	if cfg.Journal.Custody == "" {
		cfg.Journal.Custody = "binance"
	}

	return Loaded{
		Client:       client,
		StreamURL:    streamURL,
		QuoteAsset:   quote,
		Instruments:  registry,
		Risk:         cfg.Risk,
		Journal:      cfg.Journal,
		SnapshotPath: cfg.SnapshotPath,
		StartingCash: cfg.StartingCash,
		PollInterval: poll,
	}, nil
}

func buildRegistry(cfg []InstrumentConfig) (*schema.Registry, error) {
	if len(cfg) == 0 {
		return nil, fmt.Errorf("no instruments configured")
	}
	reg := schema.NewRegistry()
	for _, inst := range cfg {
		symbol := strings.ToUpper(inst.Symbol)
		if err := reg.Add(schema.Instrument{
			Symbol:     symbol,
			BaseAsset:  strings.ToUpper(inst.Base),
			QuoteAsset: strings.ToUpper(inst.Quote),
		}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be > 0")
	}
	return d, nil
}
