package tape

import (
	"sync"
	"sync/atomic"

	"github.com/hftbacktest-go/hftbacktest/pkg/event"
)

// Chunk is a reference-counted immutable slice of event records (spec
// §4.1). Handles made by addRef share one backing Records slice, which
// is freed only once every handle has released it; Cache hands out a
// fresh Chunk per NextChunk call.
type Chunk struct {
	SourceID string
	Records  []event.Record

	refs     *int32
	once     *sync.Once
	free     func()
	released int32 // per-handle: 0 = live, 1 = this handle already released
}

func newChunk(sourceID string, records []event.Record, free func()) *Chunk {
	var refs int32 = 1
	return &Chunk{
		SourceID: sourceID,
		Records:  records,
		refs:     &refs,
		once:     &sync.Once{},
		free:     free,
	}
}

// addRef returns a new handle to the same backing buffer, bumping the
// refcount. Cache does not call it.
func (c *Chunk) addRef() *Chunk {
	atomic.AddInt32(c.refs, 1)
	return &Chunk{SourceID: c.SourceID, Records: c.Records, refs: c.refs, once: c.once, free: c.free}
}

// Release decrements the refcount and frees the backing buffer once
// every handle has released it. Idempotent per handle: calling Release
// twice on the same *Chunk value is a no-op the second time (spec §4.1
// "release is idempotent on a chunk already dropped"), even while other
// handles to the same backing buffer remain outstanding.
func (c *Chunk) Release() {
	if !atomic.CompareAndSwapInt32(&c.released, 0, 1) {
		return
	}
	if atomic.AddInt32(c.refs, -1) == 0 && c.free != nil {
		c.once.Do(c.free)
	}
}
