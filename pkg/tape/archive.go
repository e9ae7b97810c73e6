package tape

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// InnerFileName is the well-known name OpenZip looks for first inside a
// zip-archived tape (spec §4.1/§6: "a zip archive containing a single
// such file"); an archive holding exactly one file is accepted whatever
// that file's name.
const InnerFileName = "tape.bin"

// OpenZip opens a zip-archived tape variant, returning a Source whose
// Data reads the decompressed inner file.
func OpenZip(id string, zr *zip.Reader, preprocessors ...Preprocessor) (Source, error) {
	var f *zip.File
	for _, zf := range zr.File {
		if zf.Name == InnerFileName {
			f = zf
			break
		}
	}
	if f == nil {
		if len(zr.File) != 1 {
			return Source{}, fmt.Errorf("tape: zip archive must contain exactly one file named %q, or exactly one file total", InnerFileName)
		}
		f = zr.File[0]
	}
	rc, err := f.Open()
	if err != nil {
		return Source{}, fmt.Errorf("tape: opening inner file: %w", err)
	}
	defer rc.Close()
	buf, err := io.ReadAll(rc)
	if err != nil {
		return Source{}, fmt.Errorf("tape: reading inner file: %w", err)
	}
	return Source{ID: id, Data: bytes.NewReader(buf), Preprocessors: preprocessors}, nil
}

// OpenZstd wraps a zstd-compressed tape (produced by a recorder that
// compresses each tape file, per the klauspost/compress dependency
// adapted from the teacher's internal/performance/message_compressor.go)
// into a Source with transparent decompression.
func OpenZstd(id string, r io.Reader, preprocessors ...Preprocessor) (Source, func(), error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Source{}, nil, fmt.Errorf("tape: opening zstd stream: %w", err)
	}
	buf, err := io.ReadAll(dec)
	if err != nil {
		dec.Close()
		return Source{}, nil, fmt.Errorf("tape: decompressing zstd stream: %w", err)
	}
	return Source{ID: id, Data: bytes.NewReader(buf), Preprocessors: preprocessors}, dec.Close, nil
}
