package tape

import (
	"errors"
	"io"

	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/hfterrors"
)

// ErrEndOfData is returned by Reader.NextChunk once every record has
// been delivered.
var ErrEndOfData = errors.New("tape: end of data")

// Preprocessor is a pure function applied once on load, e.g. to shift
// feed latency or re-tag visibility. It must not change record count
// (spec §4.1); Reader validates this after each call.
type Preprocessor func([]event.Record) ([]event.Record, error)

// Source describes one named data source backing a Reader: its raw
// bytes (already decompressed/unzipped by the caller — see OpenZip/
// OpenZstd) plus any preprocessors to run once at load time.
type Source struct {
	ID            string
	Data          io.Reader
	Preprocessors []Preprocessor
}

// Reader produces a lazy, finite, forward-only sequence of Chunks for one
// Source (spec §4.1). It loads and preprocesses the entire source once
// on construction — tapes are bounded historical files, not streams —
// and then serves it out in smaller per-call chunks for the caller's
// pacing (e.g. the scheduler pulling the next batch as it's consumed).
type Reader struct {
	sourceID string
	header   Header
	all      []event.Record
	pos      int
	chunkLen int
}

// DefaultChunkRecords bounds how many records NextChunk hands out at
// once when the caller does not need a specific chunking granularity.
const DefaultChunkRecords = 4096

// NewReader reads the header and all records from src, running its
// preprocessors, and returns a Reader ready to serve chunks.
func NewReader(src Source) (*Reader, error) {
	h, err := ReadHeader(src.Data)
	if err != nil {
		return nil, hfterrors.New(hfterrors.DataError, "tape: reading header").WithCause(err)
	}
	if !CompatibleVersion(h) {
		return nil, hfterrors.New(hfterrors.InvalidConfiguration, "tape: incompatible format version "+h.FormatVersion)
	}
	recs, err := DecodeAll(src.Data)
	if err != nil {
		return nil, hfterrors.New(hfterrors.DataError, "tape: decoding records").WithCause(err)
	}
	for _, pp := range src.Preprocessors {
		before := len(recs)
		recs, err = pp(recs)
		if err != nil {
			return nil, hfterrors.New(hfterrors.DataError, "tape: preprocessor failed").WithCause(err)
		}
		if len(recs) != before {
			return nil, hfterrors.New(hfterrors.InvalidConfiguration, "tape: preprocessor changed record count")
		}
	}
	return &Reader{sourceID: src.ID, header: h, all: recs, chunkLen: DefaultChunkRecords}, nil
}

// Header returns the tape's declared header.
func (r *Reader) Header() Header { return r.header }

// NextChunk returns the next chunk of records in exchange-timestamp
// order, or ErrEndOfData once exhausted. free is invoked when every
// holder of the returned Chunk has released it.
func (r *Reader) NextChunk(free func()) (*Chunk, error) {
	if r.pos >= len(r.all) {
		return nil, ErrEndOfData
	}
	end := r.pos + r.chunkLen
	if end > len(r.all) {
		end = len(r.all)
	}
	slice := r.all[r.pos:end]
	r.pos = end
	return newChunk(r.sourceID, slice, free), nil
}

// Reset rewinds the reader to the beginning. Cache does not call it.
func (r *Reader) Reset() { r.pos = 0 }
