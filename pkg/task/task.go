// Package task defines the unit of work the Coordinator and Chunker hand
// to the Task Queue and Workers consume. It sits below chunker, queue,
// worker and dumper in the import graph, and itself depends only on
// dumpwriter, keeping the pool free of cycles.
package task

import (
	"fmt"

	"github.com/sqlshell/dbdump/pkg/dumpwriter"
)

// Kind tags which variant of Task this is. Only the fields relevant to
// the tagged kind are populated; callers switch on Kind before reading
// the rest.
type Kind int

const (
	DumpSchemaDDL Kind = iota
	DumpTableDDL
	DumpViewDDL
	ChunkTable
	DumpRange
)

func (k Kind) String() string {
	switch k {
	case DumpSchemaDDL:
		return "DumpSchemaDDL"
	case DumpTableDDL:
		return "DumpTableDDL"
	case DumpViewDDL:
		return "DumpViewDDL"
	case ChunkTable:
		return "ChunkTable"
	case DumpRange:
		return "DumpRange"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Priority selects which Task Queue FIFO a Task is pushed onto. DDL tasks
// run HIGH so the schema surface lands early; chunk-discovery tasks run
// MEDIUM so they keep ahead of the Workers draining ranges; range tasks
// themselves run LOW, the bulk of the work.
type Priority int

const (
	HIGH Priority = iota
	MEDIUM
	LOW
)

func (p Priority) String() string {
	switch p {
	case HIGH:
		return "HIGH"
	case MEDIUM:
		return "MEDIUM"
	case LOW:
		return "LOW"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Range identifies a contiguous slice of a table's chunking index. Begin
// and End literals are rendered type-preserving: bare for integers,
// quoted for strings/decimals, by the Chunker that produced them.
type Range struct {
	ColumnType   string
	BeginLiteral string
	EndLiteral   string
}

// Task is the tagged-variant unit pushed onto the Task Queue. Only the
// fields relevant to Kind are meaningful; the zero value of the others is
// ignored by the Worker.
type Task struct {
	Kind Kind

	Schema string
	Table  string
	View   string

	// ChunkID identifies a DumpRange task's position among its table's
	// chunks, used for the trailing SQL comment and manifest ordering.
	ChunkID int
	// IsLast marks this as the table's final chunk, mirroring the
	// @@<ordinal> tail marker already baked into the Writer's output key.
	IsLast bool

	Range        *Range
	IncludeNulls bool

	// Writer is the exclusive-access output object for a DumpRange task.
	// DumpSchemaDDL/DumpTableDDL/DumpViewDDL/ChunkTable tasks leave it nil
	// and let the Worker open its own Writer from job config.
	Writer *dumpwriter.Writer

	IndexFile string

	Priority Priority
}

// NewDumpRange constructs a DumpRange task, the only variant that owns a
// Writer for its exclusive lifetime.
func NewDumpRange(schema, table string, chunkID int, isLast bool, rng *Range, includeNulls bool, w *dumpwriter.Writer, indexFile string) Task {
	return Task{
		Kind:         DumpRange,
		Schema:       schema,
		Table:        table,
		ChunkID:      chunkID,
		IsLast:       isLast,
		Range:        rng,
		IncludeNulls: includeNulls,
		Writer:       w,
		IndexFile:    indexFile,
		Priority:     LOW,
	}
}

func NewChunkTable(schema, table string) Task {
	return Task{Kind: ChunkTable, Schema: schema, Table: table, Priority: MEDIUM}
}

func NewDumpSchemaDDL(schema string) Task {
	return Task{Kind: DumpSchemaDDL, Schema: schema, Priority: HIGH}
}

func NewDumpTableDDL(schema, table string) Task {
	return Task{Kind: DumpTableDDL, Schema: schema, Table: table, Priority: HIGH}
}

func NewDumpViewDDL(schema, view string) Task {
	return Task{Kind: DumpViewDDL, Schema: schema, View: view, Priority: HIGH}
}

// Comment renders the trailing SQL comment a DumpRange task's SELECT
// carries, correlating process-list entries with chunks during debugging.
func (t Task) Comment(job string) string {
	return fmt.Sprintf("/* dump=%s table=%s.%s chunk=%d */", job, t.Schema, t.Table, t.ChunkID)
}
