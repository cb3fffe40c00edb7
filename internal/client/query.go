package client

import (
	"context"
	"fmt"
	"time"

	"tradegw/internal/codec"
	"tradegw/internal/pending"
	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

// GatewayFault is a request-scoped failure reported by the gateway.
type GatewayFault struct {
	Code uint16
	Text string
}

func (e *GatewayFault) Error() string {
	return fmt.Sprintf("gateway fault %d: %s", e.Code, e.Text)
}

// GatewayTime asks for the gateway clock and blocks for the answer.
func (c *Client) GatewayTime(ctx context.Context) (time.Time, error) {
	msg, err := c.query(ctx, schema.MsgCurrentTime, func(reqID uint64, dst []byte) []byte {
		return codec.EncodeTimeQuery(dst, schema.TimeQuery{ReqID: reqID})
	})
	if err != nil {
		return time.Time{}, err
	}
	ct, ok := msg.Body.(schema.CurrentTime)
	if !ok {
		return time.Time{}, exception.ErrUnexpectedResponse
	}
	return time.Unix(0, ct.TimeNano), nil
}

// MarketSnapshot asks for a one-shot quote without opening a stream.
func (c *Client) MarketSnapshot(ctx context.Context, symbol string, kind schema.TickKind) (schema.Snapshot, error) {
	if symbol == "" || len(symbol) > len(schema.Str16{}) {
		return schema.Snapshot{}, exception.ErrInvalidSubscription
	}
	msg, err := c.query(ctx, schema.MsgSnapshot, func(reqID uint64, dst []byte) []byte {
		return codec.EncodeSnapshotQuery(dst, schema.SnapshotQuery{
			ReqID:  reqID,
			Symbol: schema.NewStr16(symbol),
			Kind:   kind,
		})
	})
	if err != nil {
		return schema.Snapshot{}, err
	}
	snap, ok := msg.Body.(schema.Snapshot)
	if !ok {
		return schema.Snapshot{}, exception.ErrUnexpectedResponse
	}
	return snap, nil
}

// AccountSummary asks for the account state the gateway tracks.
func (c *Client) AccountSummary(ctx context.Context) (schema.Account, error) {
	msg, err := c.query(ctx, schema.MsgAccount, func(reqID uint64, dst []byte) []byte {
		return codec.EncodeAccountQuery(dst, schema.AccountQuery{ReqID: reqID})
	})
	if err != nil {
		return schema.Account{}, err
	}
	acct, ok := msg.Body.(schema.Account)
	if !ok {
		return schema.Account{}, exception.ErrUnexpectedResponse
	}
	return acct, nil
}

// GatewayTimeAsync dispatches a clock query and returns its future. The
// resolved body is a schema.CurrentTime.
func (c *Client) GatewayTimeAsync(ctx context.Context) (*pending.Future, error) {
	return c.table.Send(ctx, schema.MsgCurrentTime, func(reqID uint64, dst []byte) []byte {
		return codec.EncodeTimeQuery(dst, schema.TimeQuery{ReqID: reqID})
	})
}

// MarketSnapshotAsync dispatches a snapshot query and returns its future.
// The resolved body is a schema.Snapshot.
func (c *Client) MarketSnapshotAsync(ctx context.Context, symbol string, kind schema.TickKind) (*pending.Future, error) {
	if symbol == "" || len(symbol) > len(schema.Str16{}) {
		return nil, exception.ErrInvalidSubscription
	}
	return c.table.Send(ctx, schema.MsgSnapshot, func(reqID uint64, dst []byte) []byte {
		return codec.EncodeSnapshotQuery(dst, schema.SnapshotQuery{
			ReqID:  reqID,
			Symbol: schema.NewStr16(symbol),
			Kind:   kind,
		})
	})
}

// AccountSummaryAsync dispatches an account query and returns its future.
// The resolved body is a schema.Account.
func (c *Client) AccountSummaryAsync(ctx context.Context) (*pending.Future, error) {
	return c.table.Send(ctx, schema.MsgAccount, func(reqID uint64, dst []byte) []byte {
		return codec.EncodeAccountQuery(dst, schema.AccountQuery{ReqID: reqID})
	})
}

// query dispatches one correlated request and awaits its answer. A request
// cut down by a reconnect retries once after the next handshake, still
// inside the caller's deadline; queries are reads, the gateway never sees
// a double effect.
func (c *Client) query(ctx context.Context, expect schema.MsgType, encode func(uint64, []byte) []byte) (codec.Message, error) {
	msg, err := c.queryOnce(ctx, expect, encode)
	if !retryable(err) {
		return msg, err
	}
	if werr := c.waitUp(ctx); werr != nil {
		return codec.Message{}, err
	}
	return c.queryOnce(ctx, expect, encode)
}

func (c *Client) queryOnce(ctx context.Context, expect schema.MsgType, encode func(uint64, []byte) []byte) (codec.Message, error) {
	fut, err := c.table.Send(ctx, expect, encode)
	if err != nil {
		return codec.Message{}, err
	}
	return fut.Await(ctx)
}

// retryable matches the sentinels the session and the correlation table
// fail with when an epoch ends under a request.
func retryable(err error) bool {
	return err == exception.ErrConnectionLost || err == exception.ErrSessionUnavailable
}
