// Package dumpwriter implements the Writer: the per-file framing,
// compression and accounting object a Worker drives one task at a time,
// grounded on the teacher's metadata.BackupMetadata.Save and general.go
// streaming-upload patterns, generalized from "one backup archive" to
// "one chunk file with an optional index sidecar".
package dumpwriter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/sqlshell/dbdump/pkg/sink"
)

// ColumnMeta describes one output column for the preamble and for the
// per-table manifest's decode-columns mapping.
type ColumnMeta struct {
	Name            string
	Type            string
	EncodingUnsafe  bool
}

// Encoding is the inverse transform the loader must apply to an
// encoding-unsafe column's textual representation.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingHex
	EncodingBase64
)

func (e Encoding) String() string {
	switch e {
	case EncodingHex:
		return "HEX"
	case EncodingBase64:
		return "BASE64"
	default:
		return "NONE"
	}
}

// Result reports byte/row accounting after an operation, matching the
// Writer's internal counters: bytesWritten is post-compression,
// dataBytes is pre-compression.
type Result struct {
	BytesWritten uint64
	DataBytes    uint64
	Rows         uint64
}

// Config configures a single Writer instance. Every task that needs a
// file constructs its own Writer from the job-wide defaults plus the
// task's own key.
type Config struct {
	Dialect     Dialect
	Codec       Codec
	Level       int
	WithIndex   bool
}

// Writer owns one output file and optional .idx sidecar. It is
// single-threaded: at most one task drives it at a time, enforced by the
// caller (the Worker holds exclusive access for the duration of a
// DumpRange task).
type Writer struct {
	mu sync.Mutex

	sink sink.Sink
	key  string
	cfg  Config

	out        interface {
		Write([]byte) (int, error)
		Close() error
	}
	compressed interface {
		Write([]byte) (int, error)
		Close() error
	}
	counting *countingWriter
	index    *indexWriter

	bytesWritten uint64
	dataBytes    uint64
	rows         uint64
	opened       bool
	closed       bool
}

// countingWriter tallies post-compression bytes flowing into the sink.
type countingWriter struct {
	w interface{ Write([]byte) (int, error) }
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// New constructs a Writer for key against s, without opening any streams
// yet. key is the logical output filename; the sink appends its own
// ".dumping" suffix until Close succeeds and the caller finalizes it.
func New(s sink.Sink, key string, cfg Config) *Writer {
	return &Writer{sink: s, key: key, cfg: cfg}
}

// Open creates the underlying file stream (and index sidecar, if
// configured) under the sink's ".dumping" convention.
func (w *Writer) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opened {
		return fmt.Errorf("dumpwriter: Writer for %q already open", w.key)
	}
	raw, err := w.sink.Create(ctx, w.key+w.cfg.Codec.Extension())
	if err != nil {
		return err
	}
	w.out = raw
	w.counting = &countingWriter{w: raw}
	comp, err := newCompressor(w.cfg.Codec, w.counting, w.cfg.Level)
	if err != nil {
		_ = raw.Close()
		return err
	}
	w.compressed = comp
	if w.cfg.WithIndex {
		idxRaw, err := w.sink.Create(ctx, w.key+".idx")
		if err != nil {
			_ = comp.Close()
			_ = raw.Close()
			return err
		}
		w.index = newIndexWriter(idxRaw)
	}
	w.opened = true
	return nil
}

// WritePreamble validates the Writer is open and ready for rows. The
// column list and chosen encodings are not written into the data file
// itself (mysqlshell-style chunk files carry no header line); they are
// surfaced to the caller's manifest descriptor instead, via columns and
// encodings passed straight through unchanged.
func (w *Writer) WritePreamble(columns []ColumnMeta, encodings map[string]Encoding) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.opened {
		return Result{}, fmt.Errorf("dumpwriter: Writer for %q not open", w.key)
	}
	return w.resultLocked(), nil
}

// WriteRow writes one already-encoded row (fields rendered by the caller
// via the Worker's column projection) through the dialect framer. A
// field with Valid false is a true SQL NULL, not an empty string.
func (w *Writer) WriteRow(fields []sql.NullString) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	line := w.cfg.Dialect.encodeRow(fields)
	res, err := w.writeLocked([]byte(line))
	if err == nil {
		w.rows++
		res.Rows = w.rows
	}
	return res, err
}

// WritePostamble writes any dialect-specific closing text (JSON's closing
// bracket has none needed per-row, so this is a no-op for the current
// dialect set but kept to satisfy the Writer contract for future formats).
func (w *Writer) WritePostamble() (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resultLocked(), nil
}

func (w *Writer) writeLocked(b []byte) (Result, error) {
	if !w.opened {
		return Result{}, fmt.Errorf("dumpwriter: Writer for %q not open", w.key)
	}
	if len(b) == 0 {
		return w.resultLocked(), nil
	}
	n, err := w.compressed.Write(b)
	w.dataBytes += uint64(n)
	if err != nil {
		return w.resultLocked(), err
	}
	if w.index != nil {
		if err := w.index.observe(w.dataBytes); err != nil {
			return w.resultLocked(), err
		}
	}
	return w.resultLocked(), nil
}

func (w *Writer) resultLocked() Result {
	return Result{BytesWritten: w.counting.n, DataBytes: w.dataBytes, Rows: w.rows}
}

// Close flushes and closes the compression stream, the underlying sink
// stream, and the index sidecar. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.opened {
		w.closed = true
		return nil
	}
	w.closed = true
	var firstErr error
	if err := w.compressed.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.out.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if w.index != nil {
		if err := w.index.finish(w.dataBytes); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Output returns the logical key this Writer was opened against, which
// the caller uses to drive the sink's Finalize/Abandon rename.
func (w *Writer) Output() string { return w.key + w.cfg.Codec.Extension() }

// IndexKey returns the sidecar's logical key, or "" if indexing is off.
func (w *Writer) IndexKey() string {
	if !w.cfg.WithIndex {
		return ""
	}
	return w.key + ".idx"
}
