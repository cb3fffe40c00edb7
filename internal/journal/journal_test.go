package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegw/internal/obs"
	"tradegw/internal/schema"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.FlushInterval = 0
	cfg.SyncInterval = 0
	return cfg
}

func appendRecords(t *testing.T, w *Writer, n int) {
	t.Helper()
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC).UnixNano()
	for i := 0; i < n; i++ {
		header := schema.NewHeader(schema.MsgExecution, schema.SourceGateway,
			uint64(i+1), base+int64(i), base+int64(i)+5)
		payload := []byte{byte(i), 0xAB, 0xCD, byte(i * 3)}
		require.NoError(t, w.TryAppend(header, payload))
	}
}

func collect(t *testing.T, dir, prefix string) ([]schema.EventHeader, [][]byte) {
	t.Helper()
	var headers []schema.EventHeader
	var payloads [][]byte
	err := Walk(dir, prefix, func(h schema.EventHeader, p []byte) error {
		headers = append(headers, h)
		cp := make([]byte, len(p))
		copy(cp, p)
		payloads = append(payloads, cp)
		return nil
	})
	require.NoError(t, err)
	return headers, payloads
}

func TestWriteWalkRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))

	appendRecords(t, w, 3)
	require.NoError(t, w.Close())

	headers, payloads := collect(t, cfg.Dir, cfg.FilePrefix)
	require.Len(t, headers, 3)
	for i, h := range headers {
		assert.Equal(t, schema.MsgExecution, h.Type)
		assert.Equal(t, schema.SourceGateway, h.Source)
		assert.Equal(t, uint64(i+1), h.Seq)
		assert.Equal(t, []byte{byte(i), 0xAB, 0xCD, byte(i * 3)}, payloads[i])
	}
}

func TestSegmentRotation(t *testing.T) {
	cfg := testConfig(t)
	cfg.SegmentMaxBytes = 150

	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))

	appendRecords(t, w, 5)
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(cfg.Dir)
	require.NoError(t, err)
	require.Greater(t, len(entries), 1, "small segment cap should force rotation")

	headers, _ := collect(t, cfg.Dir, cfg.FilePrefix)
	require.Len(t, headers, 5)
	for i, h := range headers {
		assert.Equal(t, uint64(i+1), h.Seq, "walk order follows write order across segments")
	}
}

func TestTruncatedTailStopsSegmentCleanly(t *testing.T) {
	cfg := testConfig(t)
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))

	appendRecords(t, w, 3)
	require.NoError(t, w.Close())

	path := singleSegment(t, cfg.Dir)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-5))

	headers, _ := collect(t, cfg.Dir, cfg.FilePrefix)
	require.Len(t, headers, 2, "torn final record must not block recovery")
}

func TestCorruptPayloadFailsChecksum(t *testing.T) {
	cfg := testConfig(t)
	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.Context()))

	appendRecords(t, w, 2)
	require.NoError(t, w.Close())

	path := singleSegment(t, cfg.Dir)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip one payload byte inside the second record.
	recordSize := recordHeaderSize + 4 + checksumSize
	raw[recordSize+recordHeaderSize+1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := NewReader(f)
	_, _, err = r.Next()
	require.NoError(t, err)
	_, _, err = r.Next()
	require.ErrorIs(t, err, ErrChecksumMismatch)

	headers, _ := collect(t, cfg.Dir, cfg.FilePrefix)
	require.Len(t, headers, 1, "walk abandons a segment at the first bad record")
}

func TestTryAppendStates(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueueSize = 1
	cfg.Metrics = obs.NewMetrics()

	w, err := NewWriter(cfg)
	require.NoError(t, err)

	header := schema.NewHeader(schema.MsgPlaceOrder, schema.SourceLocal, 1, 1, 1)
	require.ErrorIs(t, w.TryAppend(header, nil), ErrWriterNotStarted)

	// Cancel the run loop so the queue backs up.
	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, w.Start(ctx))
	cancel()
	<-w.done

	require.NoError(t, w.TryAppend(header, nil))
	require.ErrorIs(t, w.TryAppend(header, nil), ErrQueueFull)
	assert.Equal(t, uint64(1), cfg.Metrics.CounterValue(obs.CounterJournalDrops))

	require.NoError(t, w.Close())
	require.ErrorIs(t, w.TryAppend(header, nil), ErrWriterClosed)
}

func singleSegment(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return filepath.Join(dir, entries[0].Name())
}
