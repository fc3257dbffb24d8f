package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sqlshell/dbdump/pkg/sink"
)

type memSink struct {
	files    map[string]*bytes.Buffer
	finalized map[string]bool
}

func newMemSink() *memSink {
	return &memSink{files: map[string]*bytes.Buffer{}, finalized: map[string]bool{}}
}

func (m *memSink) Kind() string { return "mem" }
func (m *memSink) Create(_ context.Context, key string) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	m.files[key] = buf
	return nopCloser{buf}, nil
}
func (m *memSink) Finalize(_ context.Context, key string) error { m.finalized[key] = true; return nil }
func (m *memSink) Abandon(_ context.Context, key string) error  { delete(m.files, key); return nil }
func (m *memSink) Close(context.Context) error                  { return nil }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

var _ sink.Sink = (*memSink)(nil)

func TestSaveStartRoundTrips(t *testing.T) {
	s := newMemSink()
	d := StartDescriptor{
		DumperVersion: "1.0.0",
		Schemas:       []string{"shop"},
		StartedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		BytesPerChunk: 65536,
	}
	if err := SaveStart(context.Background(), s, d); err != nil {
		t.Fatalf("SaveStart: %v", err)
	}
	if !s.finalized["@.json"] {
		t.Fatal("@.json should have been finalized")
	}
	var got StartDescriptor
	if err := json.Unmarshal(s.files["@.json"].Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.DumperVersion != "1.0.0" || got.BytesPerChunk != 65536 {
		t.Fatalf("round-tripped descriptor mismatch: %+v", got)
	}
}

func TestSaveTableWritesExpectedBasename(t *testing.T) {
	s := newMemSink()
	d := TableDescriptor{Schema: "shop", Table: "items", CompressionCodec: "gzip", Chunking: true}
	if err := SaveTable(context.Background(), s, "shop@items", d); err != nil {
		t.Fatalf("SaveTable: %v", err)
	}
	if _, ok := s.files["shop@items@.json"]; !ok {
		t.Fatal("expected file at shop@items@.json")
	}
}

func TestSaveUsersWritesRawSQL(t *testing.T) {
	s := newMemSink()
	if err := SaveUsers(context.Background(), s, "GRANT ALL ON *.* TO 'root'@'%';\n"); err != nil {
		t.Fatalf("SaveUsers: %v", err)
	}
	if s.files["@.users.sql"].String() != "GRANT ALL ON *.* TO 'root'@'%';\n" {
		t.Fatalf("unexpected users SQL content: %q", s.files["@.users.sql"].String())
	}
}
