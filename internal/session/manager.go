package session

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"tradegw/internal/codec"
	"tradegw/internal/obs"
	"tradegw/internal/schema"
	"tradegw/pkg/exception"
)

const (
	// DefaultHeartbeat is the ping cadence used until SessionAccept
	// overrides it.
	DefaultHeartbeat = 5 * time.Second

	defaultMissLimit        = 3
	defaultWriteQueueSize   = 1024
	defaultWriteTimeout     = 5 * time.Second
	defaultHandshakeTimeout = 5 * time.Second
)

var errHeartbeatStale = errors.New("session: heartbeat stale")

// Config defines the manager runtime configuration.
type Config struct {
	// Endpoint is the gateway address: "host:port", "tcp://host:port", or
	// "unix:///path/to.sock".
	Endpoint string
	// ClientID is the identity bound by StartSession. The gateway allows
	// one live session per id.
	ClientID int32

	TLS              *tls.Config
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration

	// Heartbeat is the ping cadence. The gateway may override it in
	// SessionAccept.
	Heartbeat time.Duration
	// MissLimit is how many silent heartbeat intervals mark the session
	// degraded and end the epoch.
	MissLimit int

	Backoff Backoff
	// MaxAttempts caps consecutive connection failures; 0 retries forever.
	MaxAttempts int

	WriteQueueSize int
	WriteOverflow  OverflowPolicy
	// WriteRate paces data frames per second; 0 leaves writes unpaced.
	// Pings bypass the pacer.
	WriteRate    float64
	WriteBurst   int
	WriteTimeout time.Duration
	MaxPayload   uint32

	// OfflineQueueSize enables parking SendOrBuffer payloads while the
	// session is down; 0 fails them with ErrSessionUnavailable instead.
	OfflineQueueSize int

	// OnFrame receives every inbound payload except pongs, on the read
	// goroutine. The buffer is reused; handlers copy what they keep.
	OnFrame func(payload []byte)
	// OnUp runs after each handshake completes, before queued traffic
	// flushes. It must not block: the serve loop is not draining yet.
	OnUp func(ctx context.Context, epoch uint64)
	// OnDown runs after each epoch ends with the terminating error.
	OnDown func(err error, epoch uint64)
	// OnState observes every state change. Handlers must be cheap.
	OnState func(state State)

	Metrics *obs.Metrics
}

// Manager owns the gateway connection lifecycle: dial, handshake, heartbeat,
// reconnect, and the single write path. Everything reaching the socket goes
// through Send or SendOrBuffer.
type Manager struct {
	cfg     Config
	sess    *Session
	dialer  Dialer
	writer  *writer
	offline chan []byte

	heartbeatNanos atomic.Int64
	lastPingNanos  atomic.Int64
}

// NewManager validates config and builds a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("session: empty endpoint")
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.MissLimit <= 0 {
		cfg.MissLimit = defaultMissLimit
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = defaultWriteQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Backoff.Min == 0 && cfg.Backoff.Max == 0 && cfg.Backoff.Factor == 0 && cfg.Backoff.Jitter == 0 {
		cfg.Backoff = DefaultBackoff()
	}

	m := &Manager{
		cfg:  cfg,
		sess: newSession(cfg.Endpoint, cfg.ClientID),
		dialer: Dialer{
			Endpoint:    cfg.Endpoint,
			TLSConfig:   cfg.TLS,
			DialTimeout: cfg.DialTimeout,
			KeepAlive:   cfg.Heartbeat,
		},
		writer: newWriter(cfg.WriteQueueSize, cfg.WriteOverflow),
	}
	if cfg.OfflineQueueSize > 0 {
		m.offline = make(chan []byte, cfg.OfflineQueueSize)
	}
	m.heartbeatNanos.Store(int64(cfg.Heartbeat))
	return m, nil
}

// Session returns the live session view.
func (m *Manager) Session() *Session {
	return m.sess
}

// IsHealthy reports an authenticated session with a fresh heartbeat.
func (m *Manager) IsHealthy() bool {
	if m.sess.State() != StateAuthenticated {
		return false
	}
	window := time.Duration(m.heartbeatNanos.Load()) * time.Duration(m.cfg.MissLimit)
	return time.Since(m.sess.LastHeartbeat()) <= window
}

// Send enqueues one encoded payload for the socket, copying it. It fails
// fast while the session is down.
func (m *Manager) Send(payload []byte) error {
	if m.writer.send(payload) {
		return nil
	}
	if !m.writer.isConnected() {
		return exception.ErrSessionUnavailable
	}
	return exception.ErrWriteBacklog
}

// SendOrBuffer enqueues a payload, parking it while the session is down if
// the offline queue is enabled. Parked payloads flush in order once a
// handshake completes; they were never dispatched, so flushing is not a
// retry.
func (m *Manager) SendOrBuffer(payload []byte) error {
	if m.writer.send(payload) {
		return nil
	}
	if m.writer.isConnected() {
		return exception.ErrWriteBacklog
	}
	if m.offline == nil {
		return exception.ErrSessionUnavailable
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case m.offline <- buf:
		m.cfg.Metrics.Inc(obs.CounterOfflineQueued)
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Run drives the epoch loop and blocks until ctx is done, the attempt cap
// is exhausted, or the gateway refuses this client id.
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.setState(StateConnecting)
		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			m.cfg.Metrics.Inc(obs.CounterDialFailures)
			logs.Errorf("dial gateway, err: %+v", err)
			m.setState(StateDisconnected)
			attempt++
			if m.cfg.MaxAttempts > 0 && attempt >= m.cfg.MaxAttempts {
				return exception.ErrConnectionLost
			}
			m.sleepBackoff(ctx, attempt)
			continue
		}

		fw := codec.NewFrameWriter(conn)
		fr := codec.NewFrameReader(conn, m.cfg.MaxPayload)
		accept, fatal, err := m.handshake(conn, fr, fw)
		if err != nil {
			_ = conn.Close()
			m.setState(StateDisconnected)
			if fatal {
				return err
			}
			logs.Errorf("gateway handshake, err: %+v", err)
			attempt++
			if m.cfg.MaxAttempts > 0 && attempt >= m.cfg.MaxAttempts {
				return exception.ErrConnectionLost
			}
			m.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		epoch := m.sess.beginEpoch()
		m.sess.seedOrderIDs(accept.NextOrderID)
		heartbeat := m.cfg.Heartbeat
		if accept.HeartbeatNano > 0 {
			heartbeat = time.Duration(accept.HeartbeatNano)
		}
		m.heartbeatNanos.Store(int64(heartbeat))
		m.sess.touchHeartbeat(time.Now())
		m.writer.setConnected(true)
		m.setState(StateAuthenticated)
		if epoch > 1 {
			m.cfg.Metrics.Inc(obs.CounterReconnects)
		}
		logs.Infof("session up: endpoint=%s epoch=%d", m.cfg.Endpoint, epoch)
		if m.cfg.OnUp != nil {
			m.cfg.OnUp(ctx, epoch)
		}

		err = m.serve(ctx, conn, fr, fw, heartbeat)

		m.writer.setConnected(false)
		m.writer.drain()
		_ = conn.Close()
		m.setState(StateDisconnected)
		logs.Errorf("session down: epoch=%d, err: %+v", epoch, err)
		if m.cfg.OnDown != nil {
			m.cfg.OnDown(err, epoch)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		if m.cfg.MaxAttempts > 0 && attempt >= m.cfg.MaxAttempts {
			return exception.ErrConnectionLost
		}
		m.sleepBackoff(ctx, attempt)
	}
}

// handshake speaks the preamble, version, and identity sequence. fatal
// marks refusals that must not be retried.
func (m *Manager) handshake(conn net.Conn, fr *codec.FrameReader, fw *codec.FrameWriter) (accept schema.SessionAccept, fatal bool, err error) {
	_ = conn.SetDeadline(time.Now().Add(m.cfg.HandshakeTimeout))
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	if err := codec.WritePreamble(conn); err != nil {
		return accept, false, errors.Wrap(err, "write preamble")
	}
	hello := schema.Hello{MinVersion: schema.WireVersion, MaxVersion: schema.WireVersion}
	if err := fw.Write(codec.EncodeHello(nil, hello)); err != nil {
		return accept, false, errors.Wrap(err, "write hello")
	}
	payload, err := fr.Read()
	if err != nil {
		return accept, false, errors.Wrap(err, "read hello ack")
	}
	ack, ok := codec.DecodeHelloAck(payload)
	if !ok || ack.Version != schema.WireVersion {
		return accept, false, exception.ErrHandshake
	}

	if err := fw.Write(codec.EncodeStartSession(nil, schema.StartSession{ClientID: m.cfg.ClientID})); err != nil {
		return accept, false, errors.Wrap(err, "write start session")
	}
	payload, err = fr.Read()
	if err != nil {
		return accept, false, errors.Wrap(err, "read session answer")
	}

	switch codec.PayloadType(payload) {
	case schema.MsgSessionAccept:
		accept, ok = codec.DecodeSessionAccept(payload)
		if !ok {
			return accept, false, exception.ErrHandshake
		}
		return accept, false, nil
	case schema.MsgSessionReject:
		reject, ok := codec.DecodeSessionReject(payload)
		if ok && reject.Code == schema.RejectIdentityConflict {
			m.cfg.Metrics.Inc(obs.CounterIdentityConflicts)
			logs.Errorf("client id %d already in use, reason: %s", m.cfg.ClientID, reject.Reason.String())
			return accept, true, exception.ErrIdentityConflict
		}
		return accept, false, exception.ErrHandshake
	default:
		return accept, false, exception.ErrHandshake
	}
}

// serve owns the socket until the epoch ends: it is the only goroutine that
// writes, and it watches the read loop, the pacer, and heartbeat staleness.
func (m *Manager) serve(ctx context.Context, conn net.Conn, fr *codec.FrameReader, fw *codec.FrameWriter, heartbeat time.Duration) error {
	readErr := make(chan error, 1)
	go m.readLoop(fr, readErr)

	m.flushOffline()

	pingTicker := time.NewTicker(heartbeat)
	defer pingTicker.Stop()

	var limiter *rate.Limiter
	if m.cfg.WriteRate > 0 {
		burst := m.cfg.WriteBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(m.cfg.WriteRate), burst)
	}

	writeTimer := time.NewTimer(0)
	if !writeTimer.Stop() {
		<-writeTimer.C
	}
	defer writeTimer.Stop()

	stale := time.Duration(m.cfg.MissLimit) * heartbeat
	var held []byte
	var pingBuf []byte

	for {
		// Holding a frame for a pacer token pauses the data queue; pings
		// and read errors keep flowing.
		queue := m.writer.queue
		if held != nil {
			queue = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case buf := <-queue:
			if buf == nil {
				continue
			}
			if limiter != nil {
				if delay := limiter.Reserve().Delay(); delay > 0 {
					held = buf
					writeTimer.Reset(delay)
					continue
				}
			}
			err := m.writeFrame(conn, fw, buf)
			m.writer.recycle(buf)
			if err != nil {
				return err
			}

		case <-writeTimer.C:
			if held == nil {
				continue
			}
			buf := held
			held = nil
			err := m.writeFrame(conn, fw, buf)
			m.writer.recycle(buf)
			if err != nil {
				return err
			}

		case <-pingTicker.C:
			if time.Since(m.sess.LastHeartbeat()) > stale {
				m.setState(StateDegraded)
				return errHeartbeatStale
			}
			now := time.Now()
			m.lastPingNanos.Store(now.UnixNano())
			pingBuf = codec.EncodePing(pingBuf, schema.Ping{TimeNano: now.UnixNano()})
			if err := m.writeFrame(conn, fw, pingBuf); err != nil {
				return err
			}
			m.flushOffline()
		}
	}
}

func (m *Manager) writeFrame(conn net.Conn, fw *codec.FrameWriter, buf []byte) error {
	if m.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	}
	if err := fw.Write(buf); err != nil {
		return errors.Wrap(err, "write frame")
	}
	m.cfg.Metrics.Inc(obs.CounterFramesOut)
	return nil
}

func (m *Manager) readLoop(fr *codec.FrameReader, errCh chan<- error) {
	for {
		payload, err := fr.Read()
		if err != nil {
			errCh <- err
			return
		}
		m.cfg.Metrics.Inc(obs.CounterFramesIn)
		m.sess.touchHeartbeat(time.Now())

		if codec.PayloadType(payload) == schema.MsgPong {
			if _, ok := codec.DecodePong(payload); ok {
				if sent := m.lastPingNanos.Load(); sent > 0 {
					m.cfg.Metrics.ObserveHeartbeatRtt(time.Duration(time.Now().UnixNano() - sent))
				}
			}
			continue
		}
		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(payload)
		}
	}
}

// flushOffline moves parked payloads onto the live queue. It only runs on
// the serve goroutine so parked order stays intact.
func (m *Manager) flushOffline() {
	if m.offline == nil {
		return
	}
	for {
		select {
		case buf := <-m.offline:
			if !m.writer.enqueue(buf) {
				m.writer.recycle(buf)
				logs.Errorf("offline flush dropped a frame, reason: write queue full")
				return
			}
		default:
			return
		}
	}
}

func (m *Manager) setState(state State) {
	if m.sess.State() == state {
		return
	}
	m.sess.setState(state)
	if m.cfg.OnState != nil {
		m.cfg.OnState(state)
	}
}

func (m *Manager) sleepBackoff(ctx context.Context, attempt int) {
	wait := m.cfg.Backoff.Next(attempt)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
