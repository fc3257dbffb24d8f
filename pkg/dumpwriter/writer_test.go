package dumpwriter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"io"
	"testing"

	"github.com/sqlshell/dbdump/pkg/sink"
)

// validRow builds a []sql.NullString of real (non-NULL) values, the
// common case in these tests.
func validRow(values ...string) []sql.NullString {
	row := make([]sql.NullString, len(values))
	for i, v := range values {
		row[i] = sql.NullString{String: v, Valid: true}
	}
	return row
}

// memSink is a minimal in-memory sink.Sink for exercising the Writer
// without touching any real backend.
type memSink struct {
	files map[string]*bytes.Buffer
}

func newMemSink() *memSink { return &memSink{files: map[string]*bytes.Buffer{}} }

func (m *memSink) Kind() string { return "mem" }

func (m *memSink) Create(_ context.Context, key string) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	m.files[key] = buf
	return nopWriteCloser{buf}, nil
}
func (m *memSink) Finalize(context.Context, string) error { return nil }
func (m *memSink) Abandon(context.Context, string) error  { return nil }
func (m *memSink) Close(context.Context) error            { return nil }

var _ sink.Sink = (*memSink)(nil)

func TestWriterWritesPlainRows(t *testing.T) {
	s := newMemSink()
	w := New(s, "shop.items", Config{Dialect: DefaultTSVDialect(), Codec: CodecNone})
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := w.WritePreamble(nil, nil); err != nil {
		t.Fatalf("WritePreamble: %v", err)
	}
	if _, err := w.WriteRow(validRow("1", "widget")); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	res, err := w.WriteRow(validRow("2", "gadget"))
	if err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if res.Rows != 2 {
		t.Fatalf("rows = %d, want 2", res.Rows)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := s.files["shop.items"].String()
	want := "1\twidget\n2\tgadget\n"
	if got != want {
		t.Fatalf("data = %q, want %q", got, want)
	}
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	s := newMemSink()
	w := New(s, "shop.items", Config{Dialect: DefaultCSVDialect(), Codec: CodecNone})
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestWriterIndexLawFinalOffsetIsTotalDataBytes(t *testing.T) {
	s := newMemSink()
	w := New(s, "shop.orders", Config{Dialect: DefaultTSVDialect(), Codec: CodecNone, WithIndex: true})
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 60000; i++ {
		if _, err := w.WriteRow(validRow("1", "widget", "1234567890")); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idxBytes := s.files["shop.orders.idx"].Bytes()
	if len(idxBytes)%8 != 0 {
		t.Fatalf("index length %d not a multiple of 8", len(idxBytes))
	}
	n := len(idxBytes) / 8
	if n < 2 {
		t.Fatalf("expected at least one interval entry plus the final entry, got %d entries", n)
	}
	var prev uint64
	for i := 0; i < n; i++ {
		off := binary.BigEndian.Uint64(idxBytes[i*8 : i*8+8])
		if off < prev {
			t.Fatalf("entry %d offset %d is less than previous %d", i, off, prev)
		}
		prev = off
	}
	finalOffset := binary.BigEndian.Uint64(idxBytes[len(idxBytes)-8:])
	dataLen := uint64(s.files["shop.orders"].Len())
	if finalOffset != dataLen {
		t.Fatalf("final index entry = %d, want total data length %d", finalOffset, dataLen)
	}
}

func TestWriterDistinguishesNullFromEmptyString(t *testing.T) {
	s := newMemSink()
	w := New(s, "shop.items", Config{Dialect: DefaultTSVDialect(), Codec: CodecNone})
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := w.WriteRow([]sql.NullString{{String: "1", Valid: true}, {}}); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if _, err := w.WriteRow([]sql.NullString{{String: "2", Valid: true}, {String: "", Valid: true}}); err != nil {
		t.Fatalf("WriteRow: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := s.files["shop.items"].String()
	want := "1\t\\N\n2\t\n"
	if got != want {
		t.Fatalf("data = %q, want %q", got, want)
	}
}

func TestIndexWriterDedupesOffsetsAcrossMultipleMarks(t *testing.T) {
	buf := &bytes.Buffer{}
	ix := newIndexWriter(nopWriteCloser{buf})
	if err := ix.observe(3 * defaultIndexInterval); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := ix.finish(3 * defaultIndexInterval); err != nil {
		t.Fatalf("finish: %v", err)
	}
	got := buf.Bytes()
	if len(got) != 8 {
		t.Fatalf("expected exactly one entry, got %d bytes", len(got))
	}
	if off := binary.BigEndian.Uint64(got); off != 3*defaultIndexInterval {
		t.Fatalf("entry = %d, want %d", off, 3*defaultIndexInterval)
	}
}

func TestWriterGzipCodecCompresses(t *testing.T) {
	s := newMemSink()
	w := New(s, "shop.items", Config{Dialect: DefaultTSVDialect(), Codec: CodecGzip})
	if err := w.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 1000; i++ {
		if _, err := w.WriteRow(validRow("1", "widget")); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
	res, err := w.WritePostamble()
	if err != nil {
		t.Fatalf("WritePostamble: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.DataBytes == 0 {
		t.Fatal("DataBytes should be nonzero before compression")
	}
	if w.Output() != "shop.items.gz" {
		t.Fatalf("Output() = %q, want shop.items.gz", w.Output())
	}
}

func TestParseCodecRejectsUnknown(t *testing.T) {
	if _, err := ParseCodec("zstd-ish"); err == nil {
		t.Fatal("expected error for unsupported codec")
	}
}

func TestParseFormatRejectsUnknown(t *testing.T) {
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
