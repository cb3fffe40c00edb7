package session

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tradegw/pkg/uds"
)

// Dialer opens the gateway transport. Endpoints take the forms "host:port",
// "tcp://host:port", and "unix:///path/to.sock".
type Dialer struct {
	Endpoint    string
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	KeepAlive   time.Duration
}

func (d Dialer) Dial(ctx context.Context) (net.Conn, error) {
	if path, ok := strings.CutPrefix(d.Endpoint, "unix://"); ok {
		return d.dialUnix(ctx, path)
	}

	addr := strings.TrimPrefix(d.Endpoint, "tcp://")
	nd := net.Dialer{
		Timeout:   d.DialTimeout,
		KeepAlive: d.KeepAlive,
	}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial gateway").With("endpoint", d.Endpoint)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		if d.KeepAlive > 0 {
			_ = tcp.SetKeepAlivePeriod(d.KeepAlive)
		}
	}

	if d.TLSConfig == nil {
		return conn, nil
	}
	tconn := tls.Client(conn, d.TLSConfig)
	if err := tconn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "tls handshake").With("endpoint", d.Endpoint)
	}
	return tconn, nil
}

func (d Dialer) dialUnix(ctx context.Context, path string) (net.Conn, error) {
	client, err := uds.NewClient(path)
	if err != nil {
		return nil, err
	}
	if d.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}
	conn, err := client.DialContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dial unix socket").With("path", path)
	}
	return conn, nil
}
