// Package manifest emits the dump's structured JSON descriptors,
// grounded on pkg/metadata/backup_metadata.go's MarshalIndent-then-save
// shape, generalized to write through a sink.Sink instead of os.WriteFile
// so descriptors land correctly on remote output destinations too.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqlshell/dbdump/pkg/sink"
)

// StartDescriptor is written as `@.json` once the Coordinator reaches
// DUMPING, certifying the job's identity and configuration but not yet
// its completeness.
type StartDescriptor struct {
	RunID                string            `json:"run_id"`
	DumperVersion        string            `json:"dumper_version"`
	Schemas              []string          `json:"schemas"`
	SchemaBasenames      map[string]string `json:"schema_basenames"`
	Users                []string          `json:"users,omitempty"`
	DefaultCharacterSet  string            `json:"default_character_set"`
	TimeZoneUTC          bool              `json:"tz_utc"`
	BytesPerChunk        int64             `json:"bytes_per_chunk"`
	ServerUser           string            `json:"server_user"`
	ServerHost           string            `json:"server_host"`
	ServerVersion        string            `json:"server_version"`
	GTIDExecuted         string            `json:"gtid_executed,omitempty"`
	GTIDInconsistent     bool              `json:"gtid_executed_inconsistent"`
	Consistent           bool              `json:"consistent"`
	CompatibilityOptions []string          `json:"compatibility_options,omitempty"`
	StartedAt            time.Time         `json:"begin_time"`
}

// FileByteCount is one produced data file's post-compression size, keyed
// by its logical output key.
type FileByteCount struct {
	File         string `json:"file"`
	BytesWritten uint64 `json:"bytes_written"`
}

// TableByteCount is one table's aggregate pre-compression data size.
type TableByteCount struct {
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	DataBytes uint64 `json:"data_bytes"`
}

// DoneDescriptor is written as `@.done.json` only after every Writer has
// closed and every other descriptor has landed; its presence is the
// dump's completeness certificate.
type DoneDescriptor struct {
	EndedAt    time.Time        `json:"end_time"`
	DataBytes  uint64           `json:"data_bytes"`
	Tables     []TableByteCount `json:"tables"`
	Files      []FileByteCount  `json:"files"`
}

// SchemaDescriptor is written as `<schemaBasename>.json`.
type SchemaDescriptor struct {
	IncludesDDL  bool              `json:"includes_ddl"`
	IncludesData bool              `json:"includes_data"`
	Tables       []string          `json:"tables"`
	Views        []string          `json:"views,omitempty"`
	Events       []string          `json:"events,omitempty"`
	Functions    []string          `json:"functions,omitempty"`
	Procedures   []string          `json:"procedures,omitempty"`
	Basenames    map[string]string `json:"basenames"`
}

// TableDescriptor is written as `<tableBasename>@.json`, the file the
// loader reads to reconstruct one table's worth of chunk files.
type TableDescriptor struct {
	Schema          string            `json:"schema"`
	Table           string            `json:"table"`
	Columns         []string          `json:"columns"`
	DecodeColumns   map[string]string `json:"decode_columns,omitempty"`
	PrimaryIndex    string            `json:"primary_index,omitempty"`
	CompressionCodec string           `json:"compression"`
	CharacterSet    string            `json:"character_set"`
	Dialect         string            `json:"dialect"`
	Triggers        []string          `json:"triggers,omitempty"`
	Histograms      []string          `json:"histograms,omitempty"`
	IncludesData    bool              `json:"includes_data"`
	IncludesDDL     bool              `json:"includes_ddl"`
	Extension       string            `json:"extension"`
	Chunking        bool              `json:"chunking"`
}

// save marshals v with a tab-indented encoder, matching the teacher's
// MarshalIndent(b, "", "\t") call, and writes it through s under key,
// finalizing immediately since descriptors are written whole in one
// shot with no streaming phase.
func save(ctx context.Context, s sink.Sink, key string, v interface{}) error {
	body, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return fmt.Errorf("manifest: can't marshal %s: %w", key, err)
	}
	w, err := s.Create(ctx, key)
	if err != nil {
		return fmt.Errorf("manifest: can't open %s: %w", key, err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		_ = s.Abandon(ctx, key)
		return fmt.Errorf("manifest: can't write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		_ = s.Abandon(ctx, key)
		return fmt.Errorf("manifest: can't close %s: %w", key, err)
	}
	return s.Finalize(ctx, key)
}

func SaveStart(ctx context.Context, s sink.Sink, d StartDescriptor) error {
	return save(ctx, s, "@.json", d)
}

func SaveDone(ctx context.Context, s sink.Sink, d DoneDescriptor) error {
	return save(ctx, s, "@.done.json", d)
}

func SaveUsers(ctx context.Context, s sink.Sink, sql string) error {
	w, err := s.Create(ctx, "@.users.sql")
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(sql)); err != nil {
		_ = w.Close()
		_ = s.Abandon(ctx, "@.users.sql")
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return s.Finalize(ctx, "@.users.sql")
}

func SaveSchema(ctx context.Context, s sink.Sink, basename string, d SchemaDescriptor) error {
	return save(ctx, s, basename+".json", d)
}

func SaveTable(ctx context.Context, s sink.Sink, basename string, d TableDescriptor) error {
	return save(ctx, s, basename+"@.json", d)
}
