// Package feedsim is an in-process brokerage gateway stand-in. It speaks
// the full wire dialect (handshake, heartbeat, market data, order flow,
// queries) against deterministic seeded state, for integration tests and
// local development without a real gateway.
package feedsim

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"

	"tradegw/internal/schema"
)

// SymbolConfig seeds one tradable symbol. Prices are decimal strings.
type SymbolConfig struct {
	Name   string          `json:"name"`
	Seed   decimal.Decimal `json:"seed"`
	Spread decimal.Decimal `json:"spread"`
}

// AccountConfig seeds the simulated account summary.
type AccountConfig struct {
	Name        string          `json:"name"`
	Equity      decimal.Decimal `json:"equity"`
	Cash        decimal.Decimal `json:"cash"`
	Maintenance decimal.Decimal `json:"maintenance"`
}

// FileConfig mirrors the JSON config layout for cmd/feedsim.
type FileConfig struct {
	Endpoint       string         `json:"endpoint"`
	Heartbeat      string         `json:"heartbeat"`
	TickInterval   string         `json:"tickInterval"`
	FillDelay      string         `json:"fillDelay"`
	Seed           int64          `json:"seed"`
	Symbols        []SymbolConfig `json:"symbols"`
	Account        AccountConfig  `json:"account"`
	FillRatios     []float64      `json:"fillRatios"`
	DuplicateFills bool           `json:"duplicateFills"`
	RejectSymbol   string         `json:"rejectSymbol"`
	NextOrderID    uint64         `json:"nextOrderId"`
}

// SymbolSpec is a resolved tradable symbol.
type SymbolSpec struct {
	Name   string
	Seed   schema.Price
	Spread schema.Price
}

// AccountSpec is the resolved account summary.
type AccountSpec struct {
	Name        string
	Equity      schema.Price
	Cash        schema.Price
	Maintenance schema.Price
}

// Config drives one simulated gateway.
type Config struct {
	// Endpoint is the listen address: "host:port", "tcp://host:port", or
	// "unix:///path/to.sock". Port 0 picks a free port; read the bound
	// address back with Endpoint after Start.
	Endpoint string
	// Heartbeat is advertised in SessionAccept.
	Heartbeat time.Duration
	// TickInterval paces each subscribed stream.
	TickInterval time.Duration
	// FillDelay separates the ack from the first fill and fills from each
	// other.
	FillDelay time.Duration
	// Seed fixes the price walk. Same seed, same ticks.
	Seed int64

	Symbols []SymbolSpec
	Account AccountSpec

	// FillRatios split each accepted order into fills. They must sum to 1;
	// the last fill absorbs rounding.
	FillRatios []float64
	// DuplicateFills resends every execution once with the same sequence,
	// exercising client-side dedup.
	DuplicateFills bool
	// RejectSymbol refuses orders on one symbol with a margin reject.
	RejectSymbol string
	// NextOrderID seeds each client's order id allocator.
	NextOrderID uint64

	MaxPayload uint32
}

const scaleUnit = 100_000_000

// LoadConfig reads a JSON config for cmd/feedsim.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var fc FileConfig
	if err := sonic.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc.resolve()
}

func (fc FileConfig) resolve() (Config, error) {
	cfg := Config{
		Endpoint:       fc.Endpoint,
		Seed:           fc.Seed,
		FillRatios:     fc.FillRatios,
		DuplicateFills: fc.DuplicateFills,
		RejectSymbol:   fc.RejectSymbol,
		NextOrderID:    fc.NextOrderID,
	}
	var err error
	if cfg.Heartbeat, err = parseSimDuration("heartbeat", fc.Heartbeat); err != nil {
		return Config{}, err
	}
	if cfg.TickInterval, err = parseSimDuration("tickInterval", fc.TickInterval); err != nil {
		return Config{}, err
	}
	if cfg.FillDelay, err = parseSimDuration("fillDelay", fc.FillDelay); err != nil {
		return Config{}, err
	}
	for _, sym := range fc.Symbols {
		spec, err := resolveSymbol(sym)
		if err != nil {
			return Config{}, err
		}
		cfg.Symbols = append(cfg.Symbols, spec)
	}
	if cfg.Account, err = resolveAccount(fc.Account); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSymbol(sym SymbolConfig) (SymbolSpec, error) {
	if sym.Name == "" {
		return SymbolSpec{}, fmt.Errorf("symbol name is empty")
	}
	seed, err := parsePrice(sym.Seed)
	if err != nil || seed <= 0 {
		return SymbolSpec{}, fmt.Errorf("symbol %s: seed price must be > 0", sym.Name)
	}
	spread, err := parsePrice(sym.Spread)
	if err != nil || spread < 0 {
		return SymbolSpec{}, fmt.Errorf("symbol %s: invalid spread", sym.Name)
	}
	return SymbolSpec{Name: sym.Name, Seed: seed, Spread: spread}, nil
}

func resolveAccount(acct AccountConfig) (AccountSpec, error) {
	spec := AccountSpec{Name: acct.Name}
	var err error
	if spec.Equity, err = parsePrice(acct.Equity); err != nil {
		return AccountSpec{}, fmt.Errorf("account equity: %w", err)
	}
	if spec.Cash, err = parsePrice(acct.Cash); err != nil {
		return AccountSpec{}, fmt.Errorf("account cash: %w", err)
	}
	if spec.Maintenance, err = parsePrice(acct.Maintenance); err != nil {
		return AccountSpec{}, fmt.Errorf("account maintenance: %w", err)
	}
	return spec, nil
}

func parsePrice(d decimal.Decimal) (schema.Price, error) {
	s := d.String()
	if s == "" {
		return 0, nil
	}
	return schema.ParsePrice(s)
}

func parseSimDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	return d, nil
}

func (cfg Config) withDefaults() Config {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "127.0.0.1:4002"
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 5 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.FillDelay <= 0 {
		cfg.FillDelay = 2 * time.Millisecond
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []SymbolSpec{
			{Name: "AAPL", Seed: 190 * scaleUnit, Spread: scaleUnit / 50},
			{Name: "MSFT", Seed: 420 * scaleUnit, Spread: scaleUnit / 50},
			{Name: "ES", Seed: 5300 * scaleUnit, Spread: scaleUnit / 4},
		}
	}
	if cfg.Account.Name == "" {
		cfg.Account.Name = "SIM-001"
	}
	if cfg.Account.Equity == 0 {
		cfg.Account.Equity = 250_000 * scaleUnit
	}
	if cfg.Account.Cash == 0 {
		cfg.Account.Cash = 100_000 * scaleUnit
	}
	if cfg.Account.Maintenance == 0 {
		cfg.Account.Maintenance = 25_000 * scaleUnit
	}
	if len(cfg.FillRatios) == 0 {
		cfg.FillRatios = []float64{0.4, 0.6}
	}
	if cfg.NextOrderID == 0 {
		cfg.NextOrderID = 1001
	}
	if cfg.MaxPayload == 0 {
		cfg.MaxPayload = 1 << 20
	}
	return cfg
}

// Validate rejects configs the gateway cannot serve.
func (cfg Config) Validate() error {
	var sum float64
	for _, r := range cfg.FillRatios {
		if r <= 0 || r > 1 {
			return fmt.Errorf("invalid feedsim config: fill ratio %v out of (0, 1]", r)
		}
		sum += r
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("invalid feedsim config: fill ratios sum to %v, want 1", sum)
	}
	seen := make(map[string]struct{}, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		if len(sym.Name) > len(schema.Str16{}) {
			return fmt.Errorf("invalid feedsim config: symbol %s too long", sym.Name)
		}
		if _, dup := seen[sym.Name]; dup {
			return fmt.Errorf("invalid feedsim config: duplicate symbol %s", sym.Name)
		}
		seen[sym.Name] = struct{}{}
	}
	return nil
}
