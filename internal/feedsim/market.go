package feedsim

import (
	"math/rand"
	"sync"
	"time"

	"tradegw/internal/schema"
)

// quote is one generated market state for a symbol.
type quote struct {
	Bid      schema.Price
	BidSize  schema.Quantity
	Ask      schema.Price
	AskSize  schema.Quantity
	Last     schema.Price
	LastSize schema.Quantity
	TsNano   int64
}

type walk struct {
	mid    int64
	spread int64
	last   int64
}

// market walks prices for the configured universe. One instance serves
// every connection, so prices stay continuous across reconnects.
type market struct {
	mu     sync.Mutex
	rng    *rand.Rand
	byName map[string]*walk
}

func newMarket(symbols []SymbolSpec, seed int64) *market {
	m := &market{
		rng:    rand.New(rand.NewSource(seed)),
		byName: make(map[string]*walk, len(symbols)),
	}
	for _, sym := range symbols {
		spread := int64(sym.Spread)
		if spread <= 0 {
			spread = int64(sym.Seed) / 10_000
		}
		if spread < 2 {
			spread = 2
		}
		m.byName[sym.Name] = &walk{
			mid:    int64(sym.Seed),
			spread: spread,
			last:   int64(sym.Seed),
		}
	}
	return m
}

func (m *market) knows(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byName[symbol]
	return ok
}

// next advances the walk one step and returns the new quote. The step is
// bounded to one spread so the walk wanders instead of jumping.
func (m *market) next(symbol string) (quote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byName[symbol]
	if !ok {
		return quote{}, false
	}

	step := m.rng.Int63n(w.spread+1) - w.spread/2
	w.mid += step
	floor := w.spread * 2
	if w.mid < floor {
		w.mid = floor
	}
	w.last = w.mid + m.rng.Int63n(w.spread+1) - w.spread/2

	half := w.spread / 2
	return quote{
		Bid:      schema.Price(w.mid - half),
		BidSize:  schema.Quantity((1 + m.rng.Int63n(9)) * scaleUnit),
		Ask:      schema.Price(w.mid + half + w.spread%2),
		AskSize:  schema.Quantity((1 + m.rng.Int63n(9)) * scaleUnit),
		Last:     schema.Price(w.last),
		LastSize: schema.Quantity((1 + m.rng.Int63n(4)) * scaleUnit),
		TsNano:   time.Now().UnixNano(),
	}, true
}

// fillPrice picks the marketable side for an immediate execution.
func (m *market) fillPrice(symbol string, side schema.OrderSide, limit schema.Price) schema.Price {
	q, ok := m.next(symbol)
	if !ok {
		return limit
	}
	var px schema.Price
	switch side {
	case schema.OrderSideBuy:
		px = q.Ask
		if limit > 0 && limit < px {
			px = limit
		}
	case schema.OrderSideSell:
		px = q.Bid
		if limit > 0 && limit > px {
			px = limit
		}
	default:
		px = q.Last
	}
	if px <= 0 {
		px = q.Last
	}
	return px
}
