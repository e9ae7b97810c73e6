// Package tape implements the on-disk event tape format (spec §4.1, §6):
// a short header declaring field descriptors followed by packed
// fixed-size little-endian records, plus a reference-counted data cache
// that lets a local view and an exchange view share one backing buffer.
package tape

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Masterminds/semver/v3"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
)

// RecordSize is the fixed on-disk size of one event.Record: 8 fields of
// 8 bytes each (kind, exch-ts, local-ts, price, qty, order-id, aux1,
// aux2), per spec §6.
const RecordSize = 64

var magic = [4]byte{'H', 'F', 'T', 'B'}

// Header declares the tape's record schema. FormatVersion is parsed with
// Masterminds/semver so readers can refuse tapes from an incompatible
// future format without hand-rolling version comparison (a real teacher
// dependency, otherwise unwired outside version checks — see SPEC_FULL.md
// domain stack table).
type Header struct {
	FormatVersion string
	FieldNames    []string
}

// DefaultHeader is the header written by WriteHeader when the caller
// does not need a custom field list.
func DefaultHeader() Header {
	return Header{
		FormatVersion: "1.0.0",
		FieldNames:    []string{"kind", "exch_ts", "local_ts", "price", "qty", "order_id", "aux1", "aux2"},
	}
}

// WriteHeader writes the short header: magic, version string, and field
// descriptor names, each length-prefixed.
func WriteHeader(w io.Writer, h Header) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := writeString(w, h.FormatVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(h.FieldNames))); err != nil {
		return err
	}
	for _, f := range h.FieldNames {
		if err := writeString(w, f); err != nil {
			return err
		}
	}
	return nil
}

// ReadHeader reads and validates a tape header, checking the magic bytes
// and that FormatVersion parses as semver. It does not check
// compatibility with CompatibleVersion; NewReader does that separately.
func ReadHeader(r io.Reader) (Header, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return Header{}, fmt.Errorf("tape: reading magic: %w", err)
	}
	if m != magic {
		return Header{}, fmt.Errorf("tape: bad magic bytes %v", m)
	}
	ver, err := readString(r)
	if err != nil {
		return Header{}, fmt.Errorf("tape: reading version: %w", err)
	}
	if _, err := semver.NewVersion(ver); err != nil {
		return Header{}, fmt.Errorf("tape: invalid format version %q: %w", ver, err)
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return Header{}, fmt.Errorf("tape: reading field count: %w", err)
	}
	fields := make([]string, n)
	for i := range fields {
		s, err := readString(r)
		if err != nil {
			return Header{}, fmt.Errorf("tape: reading field %d: %w", i, err)
		}
		fields[i] = s
	}
	return Header{FormatVersion: ver, FieldNames: fields}, nil
}

// CompatibleVersion reports whether a tape's declared format version is
// readable by this implementation (same major version as DefaultHeader).
func CompatibleVersion(h Header) bool {
	want, err1 := semver.NewVersion(DefaultHeader().FormatVersion)
	got, err2 := semver.NewVersion(h.FormatVersion)
	if err1 != nil || err2 != nil {
		return false
	}
	return want.Major() == got.Major()
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// EncodeRecord writes one fixed-size record in the on-disk layout.
func EncodeRecord(w io.Writer, r event.Record) error {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Kind))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.ExchTs))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.LocalTs))
	binary.LittleEndian.PutUint64(buf[24:32], math.Float64bits(r.Price))
	binary.LittleEndian.PutUint64(buf[32:40], math.Float64bits(r.Qty))
	binary.LittleEndian.PutUint64(buf[40:48], r.OrderID)
	binary.LittleEndian.PutUint64(buf[48:56], math.Float64bits(r.Aux1))
	binary.LittleEndian.PutUint64(buf[56:64], math.Float64bits(r.Aux2))
	_, err := w.Write(buf[:])
	return err
}

// DecodeRecord reads one fixed-size record from its on-disk layout.
func DecodeRecord(r io.Reader) (event.Record, error) {
	var buf [RecordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return event.Record{}, err
	}
	return event.Record{
		Kind:    event.Kind(binary.LittleEndian.Uint64(buf[0:8])),
		ExchTs:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		LocalTs: int64(binary.LittleEndian.Uint64(buf[16:24])),
		Price:   math.Float64frombits(binary.LittleEndian.Uint64(buf[24:32])),
		Qty:     math.Float64frombits(binary.LittleEndian.Uint64(buf[32:40])),
		OrderID: binary.LittleEndian.Uint64(buf[40:48]),
		Aux1:    math.Float64frombits(binary.LittleEndian.Uint64(buf[48:56])),
		Aux2:    math.Float64frombits(binary.LittleEndian.Uint64(buf[56:64])),
	}, nil
}

// DecodeAll reads every record following a header from r until EOF.
func DecodeAll(r io.Reader) ([]event.Record, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	var out []event.Record
	for {
		rec, err := DecodeRecord(br)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
