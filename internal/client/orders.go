package client

import (
	"context"

	"tradegw/internal/order"
	"tradegw/internal/schema"
)

// SubmitOrder validates and dispatches an order. The handle follows its
// lifecycle; its event queue is bounded and AwaitTerminal never misses the
// end state.
func (c *Client) SubmitOrder(spec schema.OrderSpec) (*order.Handle, error) {
	return c.orders.Submit(spec)
}

// PlaceOrder submits and blocks until the order reaches Filled, Cancelled,
// or Rejected, or ctx gives up. The latest order view returns either way.
func (c *Client) PlaceOrder(ctx context.Context, spec schema.OrderSpec) (order.Order, error) {
	h, err := c.orders.Submit(spec)
	if err != nil {
		return order.Order{}, err
	}
	return h.AwaitTerminal(ctx)
}

// CancelOrder asks the gateway to cancel a working order. The order stays
// in its current state until the gateway confirms.
func (c *Client) CancelOrder(id uint64) error {
	return c.orders.Cancel(id)
}

// GetOrder returns the current view of one order.
func (c *Client) GetOrder(id uint64) (order.Order, bool) {
	return c.orders.Get(id)
}

// OpenOrders lists every order still working.
func (c *Client) OpenOrders() []order.Order {
	return c.orders.Open()
}

// OnOrderEvent registers a listener for every applied order transition.
// Listeners run on the apply goroutine and must be cheap.
func (c *Client) OnOrderEvent(fn func(order.Event)) (cancel func()) {
	return c.orders.OnEvent(fn)
}

// RestoreOrders seeds the order book of record from journal replay. Call
// before Run; the first reconcile folds anything that moved while the
// process was down.
func (c *Client) RestoreOrders(orders []order.Order) {
	c.orders.Restore(orders)
}
