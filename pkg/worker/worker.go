// Package worker implements the Worker: each owns its own read session
// and consistent-snapshot transaction, pulls tasks off the Task Queue,
// and streams DumpRange rows to a Writer, runs the Chunker for
// ChunkTable tasks, or invokes the Schema Dumper for DDL tasks. The
// bounded-pool launch pattern (one goroutine per Worker, errgroup +
// atomic exception slots) is grounded on pkg/backup/upload.go's
// semaphore.NewWeighted + errgroup.WithContext + atomic.AddInt64 shape.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/sqlshell/dbdump/pkg/cache"
	"github.com/sqlshell/dbdump/pkg/dbsession"
	"github.com/sqlshell/dbdump/pkg/dumpwriter"
	"github.com/sqlshell/dbdump/pkg/queue"
	"github.com/sqlshell/dbdump/pkg/ratelimit"
	"github.com/sqlshell/dbdump/pkg/schemadump"
	"github.com/sqlshell/dbdump/pkg/sink"
	"github.com/sqlshell/dbdump/pkg/task"
)

// RowStreamer runs a DumpRange SELECT and streams its rows to fn, one
// []sql.NullString per row already converted to text (encoding-unsafe
// columns pre-wrapped in HEX()/TO_BASE64() by the SELECT itself), with
// Valid false marking a true SQL NULL rather than an empty string. It
// is the one seam Worker needs onto *dbsession.Session, kept narrow for
// tests.
type RowStreamer interface {
	StreamQuery(ctx context.Context, query string, args []interface{}, fn func(row []sql.NullString) error) error
}

// ProgressFunc is called every 2000 rows and once per task completion so
// the progress reporter can update its bars without a tight coupling to
// any specific display library.
type ProgressFunc func(schema, table string, rows uint64, dataBytes uint64)

// Options configures one Worker. Every Worker gets its own Session and
// Limiter, but shares the Cache, SchemaDump, Queue, Sink, Progress
// callback and interrupt flag with its siblings.
type Options struct {
	ID                       int
	Job                      string
	Session                  *dbsession.Session
	Streamer                 RowStreamer
	Queue                    *queue.Queue
	Limiter                  *ratelimit.Limiter
	Cache                    *cache.Cache
	SchemaDumper             *schemadump.Dumper
	Sink                     sink.Sink
	WriterConfig             dumpwriter.Config
	BytesPerChunk            int64
	Progress                 ProgressFunc
	Interrupt                *atomic.Bool
	Exception                *atomic.Value // stores error; written at most once per worker
	OutstandingChunkingTasks *atomic.Int64
	DumpEvents               bool
	DumpRoutines             bool
	DumpTriggers             bool
	EncodingMode             dumpwriter.EncodingMode
}

// Worker drains the Task Queue until it observes a null task or the
// interrupt flag is set.
type Worker struct {
	opts Options
}

func New(opts Options) *Worker { return &Worker{opts: opts} }

// Run is the Worker's main loop: pop, execute, check interrupt, repeat.
// It returns nil on a clean shutdown (null task or interrupt) and the
// first task-body error otherwise, after recording it in the shared
// exception slot.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if w.opts.Interrupt.Load() {
			return nil
		}
		t, ok, err := w.opts.Queue.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := w.execute(ctx, t); err != nil {
			w.opts.Exception.Store(fmt.Errorf("worker %d: task %s %s.%s: %w", w.opts.ID, t.Kind, t.Schema, t.Table, err))
			w.opts.Interrupt.Store(true)
			return err
		}
		if w.opts.Interrupt.Load() {
			return nil
		}
	}
}

func (w *Worker) execute(ctx context.Context, t task.Task) error {
	switch t.Kind {
	case task.DumpRange:
		return w.executeDumpRange(ctx, t)
	case task.ChunkTable:
		return w.executeChunkTable(ctx, t)
	case task.DumpSchemaDDL:
		return w.executeSchemaDDL(ctx, t)
	case task.DumpTableDDL:
		return w.executeTableDDL(ctx, t)
	case task.DumpViewDDL:
		return w.executeViewDDL(ctx, t)
	default:
		return fmt.Errorf("worker: unknown task kind %v", t.Kind)
	}
}
