package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"tradegw/internal/obs"
	"tradegw/internal/schema"
)

var (
	ErrQueueFull        = errors.New("journal queue full")
	ErrWriterClosed     = errors.New("journal writer closed")
	ErrWriterNotStarted = errors.New("journal writer not started")
	ErrPayloadTooLarge  = errors.New("journal payload too large")
)

const maxPayloadLen = int(^uint32(0) >> 1)

type appendRequest struct {
	header  schema.EventHeader
	payload []byte
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// Writer appends order events to segmented journal files. Appends are
// queued and written by a single goroutine; the first write error latches
// and fails all later appends.
type Writer struct {
	cfg Config

	queue   chan appendRequest
	done    chan struct{}
	started atomic.Bool
	closed  atomic.Bool
	err     atomic.Value

	seg       *segment
	segID     int
	headerBuf [recordHeaderSize]byte
	sumBuf    [checksumSize]byte
}

// NewWriter validates cfg and creates the journal directory.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Writer{
		cfg:   cfg,
		queue: make(chan appendRequest, cfg.QueueSize),
		done:  make(chan struct{}),
	}, nil
}

// Start launches the write loop. It returns once the loop is running and
// stops when ctx is cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("journal: writer already started")
	}
	go w.run(ctx)
	return nil
}

// TryAppend queues one record without blocking. A full queue drops the
// record and returns ErrQueueFull.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	if !w.started.Load() {
		return ErrWriterNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if len(payload) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if w.cfg.CopyPayload && len(payload) > 0 {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		payload = cp
	}
	select {
	case w.queue <- appendRequest{header: header, payload: payload}:
		return nil
	default:
		w.cfg.Metrics.Inc(obs.CounterJournalDrops)
		return ErrQueueFull
	}
}

// Err reports the first write error, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Close stops accepting appends, drains the queue and syncs the last
// segment.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.queue)
	if w.started.Load() {
		<-w.done
	}
	return w.Err()
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)

	var flushC, syncC <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}

	for {
		select {
		case req, ok := <-w.queue:
			if !ok {
				w.finish()
				return
			}
			w.write(req)
		case <-flushC:
			w.flush(false)
		case <-syncC:
			w.flush(true)
		case <-ctx.Done():
			w.drainNonBlocking()
			w.finish()
			return
		}
	}
}

// drainNonBlocking consumes whatever is already queued so cancellation
// does not lose accepted records.
func (w *Writer) drainNonBlocking() {
	for {
		select {
		case req, ok := <-w.queue:
			if !ok {
				return
			}
			w.write(req)
		default:
			return
		}
	}
}

func (w *Writer) finish() {
	if w.seg == nil {
		return
	}
	if err := w.seg.buf.Flush(); err != nil {
		w.setErr(fmt.Errorf("flush journal segment: %w", err))
	}
	if err := w.seg.file.Sync(); err != nil {
		w.setErr(fmt.Errorf("sync journal segment: %w", err))
	}
	if err := w.seg.file.Close(); err != nil {
		w.setErr(fmt.Errorf("close journal segment: %w", err))
	}
	w.seg = nil
}

func (w *Writer) write(req appendRequest) {
	if w.Err() != nil {
		return
	}
	recordSize := int64(recordHeaderSize + len(req.payload) + checksumSize)
	if err := w.rotateIfNeeded(recordSize); err != nil {
		w.setErr(err)
		return
	}

	encodeHeader(w.headerBuf[:], req.header, len(req.payload))
	sum := checksum(w.headerBuf[:], req.payload)

	if _, err := w.seg.buf.Write(w.headerBuf[:]); err != nil {
		w.setErr(fmt.Errorf("write record header: %w", err))
		return
	}
	if len(req.payload) > 0 {
		if _, err := w.seg.buf.Write(req.payload); err != nil {
			w.setErr(fmt.Errorf("write record payload: %w", err))
			return
		}
	}
	putUint32LE(w.sumBuf[:], sum)
	if _, err := w.seg.buf.Write(w.sumBuf[:]); err != nil {
		w.setErr(fmt.Errorf("write record checksum: %w", err))
		return
	}
	w.seg.size += recordSize
	w.cfg.Metrics.Inc(obs.CounterJournalRecords)
}

func (w *Writer) rotateIfNeeded(recordSize int64) error {
	if w.seg == nil {
		return w.openSegment()
	}
	if w.seg.size+recordSize > w.cfg.SegmentMaxBytes ||
		time.Since(w.seg.openedAt) >= w.cfg.SegmentMaxDuration {
		if err := w.seg.buf.Flush(); err != nil {
			return fmt.Errorf("flush journal segment: %w", err)
		}
		if err := w.seg.file.Sync(); err != nil {
			return fmt.Errorf("sync journal segment: %w", err)
		}
		if err := w.seg.file.Close(); err != nil {
			return fmt.Errorf("close journal segment: %w", err)
		}
		w.seg = nil
		return w.openSegment()
	}
	return nil
}

func (w *Writer) openSegment() error {
	for i := 0; i < 1000; i++ {
		w.segID++
		name := fmt.Sprintf("%s-%s-%06d.wal",
			w.cfg.FilePrefix, time.Now().UTC().Format("20060102T150405"), w.segID)
		path := filepath.Join(w.cfg.Dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("open journal segment: %w", err)
		}
		w.seg = &segment{
			file:     f,
			buf:      bufio.NewWriterSize(f, w.cfg.BufferSize),
			openedAt: time.Now(),
		}
		return nil
	}
	return fmt.Errorf("open journal segment: name collisions exhausted")
}

func (w *Writer) flush(sync bool) {
	if w.seg == nil || w.Err() != nil {
		return
	}
	if err := w.seg.buf.Flush(); err != nil {
		w.setErr(fmt.Errorf("flush journal segment: %w", err))
		return
	}
	if sync {
		if err := w.seg.file.Sync(); err != nil {
			w.setErr(fmt.Errorf("sync journal segment: %w", err))
		}
	}
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	if w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

func putUint32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
