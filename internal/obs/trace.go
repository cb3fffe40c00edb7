package obs

import (
	"sync/atomic"
	"time"
)

// TraceGenerator allocates monotonically increasing trace ids for journal
// records. Seeding from the clock keeps ids unique across restarts.
type TraceGenerator struct {
	next uint64
}

// NewTraceGenerator returns a generator seeded with the given value, or the
// current time when seed is zero.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &TraceGenerator{next: seed}
}

// Next returns the next trace id.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return atomic.AddUint64(&g.next, 1)
}
