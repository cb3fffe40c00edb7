package client

import (
	"context"

	"tradegw/internal/feed"
	"tradegw/internal/schema"
)

// SubscribeTicks opens or joins the (symbol, kind) market data stream. The
// first call subscribes on the wire; further calls share the stream. depth
// overrides the configured subscriber queue length when positive.
func (c *Client) SubscribeTicks(symbol string, kind schema.TickKind, depth int) (*feed.Ticket, error) {
	return c.mux.Subscribe(symbol, kind, depth)
}

// OnTick subscribes and pumps updates into fn from a dedicated goroutine
// until cancel is called or the feed closes. fn runs on that goroutine.
func (c *Client) OnTick(symbol string, kind schema.TickKind, fn func(feed.Update)) (cancel func(), err error) {
	ticket, err := c.mux.Subscribe(symbol, kind, 0)
	if err != nil {
		return nil, err
	}
	ctx, stop := context.WithCancel(context.Background())
	go func() {
		defer func() { _ = ticket.Close() }()
		for {
			u, err := ticket.Next(ctx)
			if err != nil {
				return
			}
			fn(u)
		}
	}()
	return stop, nil
}

// LatestSnapshot returns the cached view of an open stream, if any tick
// arrived yet.
func (c *Client) LatestSnapshot(symbol string, kind schema.TickKind) (schema.TickSnapshot, bool) {
	return c.mux.Latest(symbol, kind)
}

// ActiveStreams lists the streams at least one subscriber holds open.
func (c *Client) ActiveStreams() []feed.Key {
	return c.mux.Keys()
}
