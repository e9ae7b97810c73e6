package tape

import (
	"bytes"
	"testing"

	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTapeBytes(t *testing.T, recs []event.Record) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, WriteHeader(buf, DefaultHeader()))
	for _, r := range recs {
		require.NoError(t, EncodeRecord(buf, r))
	}
	return buf
}

func TestReaderServesChunksInOrder(t *testing.T) {
	recs := []event.Record{
		{Kind: event.KindDepth | event.Buy | event.LocalVisible | event.ExchVisible, ExchTs: 1, LocalTs: 1, Price: 100, Qty: 1},
		{Kind: event.KindDepth | event.Sell | event.LocalVisible | event.ExchVisible, ExchTs: 2, LocalTs: 2, Price: 101, Qty: 1},
	}
	buf := buildTapeBytes(t, recs)

	r, err := NewReader(Source{ID: "a", Data: buf})
	require.NoError(t, err)

	chunk, err := r.NextChunk(nil)
	require.NoError(t, err)
	assert.Len(t, chunk.Records, 2)
	assert.Equal(t, int64(1), chunk.Records[0].ExchTs)
	assert.Equal(t, int64(2), chunk.Records[1].ExchTs)

	_, err = r.NextChunk(nil)
	assert.ErrorIs(t, err, ErrEndOfData)
}

func TestPreprocessorRejectsRecordCountChange(t *testing.T) {
	recs := []event.Record{{Kind: event.KindDepth | event.Buy | event.LocalVisible, ExchTs: 1, LocalTs: 1}}
	buf := buildTapeBytes(t, recs)

	dropping := func(rs []event.Record) ([]event.Record, error) { return nil, nil }
	_, err := NewReader(Source{ID: "a", Data: buf, Preprocessors: []Preprocessor{dropping}})
	assert.Error(t, err)
}

func TestCacheRefCountingFreesOnLastRelease(t *testing.T) {
	recs := []event.Record{{Kind: event.KindDepth | event.Buy | event.LocalVisible, ExchTs: 1, LocalTs: 1}}
	buf := buildTapeBytes(t, recs)

	c, err := NewCache(false)
	require.NoError(t, err)
	require.NoError(t, c.AddSource(Source{ID: "s1", Data: buf}))

	c.Acquire("s1")
	c.Acquire("s1")

	chunk, err := c.NextChunk("s1")
	require.NoError(t, err)
	require.Len(t, chunk.Records, 1)

	chunk.Release()
	// second Acquire still outstanding
	_, ok := c.sources["s1"]
	assert.True(t, ok)

	c.Release("s1")
	_, ok = c.sources["s1"]
	assert.False(t, ok, "expected source evicted once every holder released")

	// Idempotent: releasing the same chunk handle again must not panic
	// or double-free.
	chunk.Release()
}

func TestLocalLatencyOffsetShiftsOnlyLocalTs(t *testing.T) {
	recs := []event.Record{{ExchTs: 10, LocalTs: 10}}
	pp := LocalLatencyOffset(5)
	out, err := pp(recs)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out[0].ExchTs)
	assert.Equal(t, int64(15), out[0].LocalTs)
}
