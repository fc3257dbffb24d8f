// Package dumper implements the Coordinator: it drives the dump job
// through its lifecycle, owns the primary session, the Instance Cache,
// the shared Sink and Task Queue, and launches the Worker pool. The
// bounded-pool launch (one goroutine per Worker inside an errgroup
// guarded by a semaphore) is grounded on pkg/backup/upload.go's
// semaphore.NewWeighted + errgroup.WithContext shape; the overall
// phase-by-phase shape of Run follows pkg/backup/create.go's
// CreateBackup.
package dumper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apexLog "github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sqlshell/dbdump/pkg/cache"
	"github.com/sqlshell/dbdump/pkg/dbsession"
	"github.com/sqlshell/dbdump/pkg/dumpconfig"
	"github.com/sqlshell/dbdump/pkg/dumpwriter"
	"github.com/sqlshell/dbdump/pkg/metrics"
	"github.com/sqlshell/dbdump/pkg/progressreport"
	"github.com/sqlshell/dbdump/pkg/queue"
	"github.com/sqlshell/dbdump/pkg/ratelimit"
	"github.com/sqlshell/dbdump/pkg/schemadump"
	"github.com/sqlshell/dbdump/pkg/sink"
	"github.com/sqlshell/dbdump/pkg/worker"
)

// State is the Coordinator's position in the dump lifecycle. Every
// transition is forward-only except the short-circuit to Aborted,
// which any phase can take on error or external interrupt.
type State int

const (
	Init State = iota
	Locked
	Snapshotted
	Cached
	Validated
	Dumping
	Finalizing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Locked:
		return "LOCKED"
	case Snapshotted:
		return "SNAPSHOTTED"
	case Cached:
		return "CACHED"
	case Validated:
		return "VALIDATED"
	case Dumping:
		return "DUMPING"
	case Finalizing:
		return "FINALIZING"
	case Done:
		return "DONE"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DumperVersion is reported in the @.json start descriptor.
const DumperVersion = "1.0.0"

// Coordinator drives one dump job end to end.
type Coordinator struct {
	cfg   *dumpconfig.Config
	log   *apexLog.Entry
	runID string

	primary *dbsession.Session
	sink    sink.Sink
	cache   *cache.Cache
	filter  *dumpconfig.SchemaFilter
	schema  *schemadump.Dumper
	queue   *queue.Queue
	limiter *ratelimit.Limiter

	state State

	interrupt                *atomic.Bool
	outstandingChunkingTasks *atomic.Int64
	exceptions               []*atomic.Value

	consistent       bool
	compatibilityOps []string

	// workerSessions are opened, and their consistent-snapshot
	// transactions started, while the primary still holds the global
	// (or per-table) lock. launchWorkers hands each one to its Worker
	// rather than opening its own, so every Worker's snapshot is taken
	// at the same instant as the primary's, before anything is unlocked.
	workerSessions []*dbsession.Session

	// backupLocked records whether LOCK INSTANCE FOR BACKUP was held
	// successfully, so finalize/abortCleanup know whether to release it.
	backupLocked bool

	// gtidInconsistent is true when lock() fell back to per-table locks
	// instead of the strong global lock, meaning GTIDExecuted may not
	// exactly match the snapshot every Worker observes.
	gtidInconsistent bool

	// encodingMode is parsed once from cfg.Output.EncodingUnsafeFormat in
	// connect and handed to every Worker and to finalize's decode-columns
	// computation, so both agree on the same job-wide policy.
	encodingMode dumpwriter.EncodingMode

	// progressMu guards lastChunkBytes/accumulatedBytes, touched
	// concurrently by every Worker's Progress callback. A later call
	// reporting fewer bytes than the last one for the same table
	// signals a new chunk has started, so the previous chunk's final
	// value is folded into accumulatedBytes. By the time finalize runs
	// every Worker has stopped, so accumulated+lastChunk is each
	// table's true total.
	progressMu       sync.Mutex
	lastChunkBytes   map[string]uint64
	accumulatedBytes map[string]uint64

	reporter *progressreport.Reporter
	metrics  *metrics.DumpMetrics
}

// New constructs a Coordinator for cfg. Run performs all connection and
// state setup; New itself never touches the network.
func New(cfg *dumpconfig.Config) *Coordinator {
	runID := uuid.NewString()
	return &Coordinator{
		cfg:                      cfg,
		runID:                    runID,
		log:                      apexLog.WithFields(apexLog.Fields{"job": cfg.Dump.Job, "operation": "dump", "run_id": runID}),
		filter:                   dumpconfig.NewSchemaFilter(cfg.Filter),
		state:                    Init,
		interrupt:                &atomic.Bool{},
		outstandingChunkingTasks: &atomic.Int64{},
		lastChunkBytes:           map[string]uint64{},
		accumulatedBytes:         map[string]uint64{},
	}
}

// WithProgressBar attaches a progress bar driven off every Worker's
// Progress callback, shown only when show is true.
func (c *Coordinator) WithProgressBar(show bool, estimatedTotalBytes int64) *Coordinator {
	c.reporter = progressreport.NewReporter(show, estimatedTotalBytes)
	return c
}

// WithMetrics attaches a Prometheus metrics sink; the caller is
// responsible for calling RegisterMetrics and serving /metrics.
func (c *Coordinator) WithMetrics(m *metrics.DumpMetrics) *Coordinator {
	c.metrics = m
	return c
}

// Run executes the job from INIT through DONE, or ABORTED on the first
// unrecoverable error. It is the Coordinator's sole entry point.
func (c *Coordinator) Run(ctx context.Context) error {
	startedAt := time.Now()
	if c.metrics != nil {
		c.metrics.Start(startedAt)
	}
	defer func() {
		c.log.WithField("state", c.state.String()).WithField("elapsed", time.Since(startedAt).String()).Info("dump finished")
		if c.reporter != nil {
			c.log.Info(c.reporter.Finish())
		}
		if c.metrics != nil {
			c.metrics.Finish(startedAt)
		}
	}()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"connect", c.connect},
		{"lock", c.lock},
		{"snapshot", c.snapshot},
		{"cache", c.buildCache},
		{"validate", c.validate},
		{"dump", c.dump},
		{"finalize", c.finalize},
	}

	for _, step := range steps {
		if c.interrupt.Load() {
			c.state = Aborted
			if c.metrics != nil {
				c.metrics.Failure()
			}
			return fmt.Errorf("dumper: interrupted before %s", step.name)
		}
		c.log.Debugf("entering phase %s", step.name)
		if err := step.fn(ctx); err != nil {
			c.state = Aborted
			c.abortCleanup(ctx)
			if c.metrics != nil {
				c.metrics.Failure()
			}
			return fmt.Errorf("dumper: %s: %w", step.name, err)
		}
	}

	c.state = Done
	if c.metrics != nil {
		c.metrics.Success()
	}
	return nil
}

func (c *Coordinator) abortCleanup(ctx context.Context) {
	if c.backupLocked && c.primary != nil {
		_ = c.primary.BackupUnlock(ctx)
	}
	if c.primary != nil && c.primary.InSnapshot() {
		_ = c.primary.Unlock(ctx)
	}
	if c.primary != nil {
		_ = c.primary.Close()
	}
	for _, session := range c.workerSessions {
		if session != nil {
			_ = session.Close()
		}
	}
}

// openWorkerSessions opens cfg.Output.Threads sessions and, if
// consistent is set, starts each one's own snapshot transaction,
// concurrently. It returns only once every session is open and every
// snapshot is established (or the first failure), acting as the
// readiness barrier the Coordinator waits on before releasing the
// primary's lock: every Worker's view of the data is pinned to the
// same instant as the primary's, matching spec step 3's "open while
// locked, signal ready, then unlock."
func (c *Coordinator) openWorkerSessions(ctx context.Context) error {
	n := c.cfg.Output.Threads
	c.workerSessions = make([]*dbsession.Session, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		id := i
		g.Go(func() error {
			session, err := dbsession.Connect(gctx, dbsession.Config{
				Host: c.cfg.Source.Host, Port: c.cfg.Source.Port,
				Username: c.cfg.Source.Username, Password: c.cfg.Source.Password,
				Secure: c.cfg.Source.Secure, Timeout: 30 * time.Second,
			}, c.cfg.Source.UTCTimeZone)
			if err != nil {
				return fmt.Errorf("worker %d: %w", id, err)
			}
			if c.consistent {
				if err := session.BeginConsistentSnapshot(gctx); err != nil {
					_ = session.Close()
					return fmt.Errorf("worker %d: consistent snapshot: %w", id, err)
				}
			}
			c.workerSessions[id] = session
			return nil
		})
	}
	return g.Wait()
}

// launchWorkers starts a Worker per already-opened session (see
// openWorkerSessions), bounded by a semaphore sized to the same
// concurrency and joined through an errgroup, matching the teacher's
// Upload pattern.
func (c *Coordinator) launchWorkers(ctx context.Context) error {
	n := c.cfg.Output.Threads
	sem := semaphore.NewWeighted(int64(n))
	g, gctx := errgroup.WithContext(ctx)

	c.exceptions = make([]*atomic.Value, n)
	for i := 0; i < n; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		id := i
		exception := &atomic.Value{}
		c.exceptions[id] = exception
		session := c.workerSessions[id]

		w := worker.New(worker.Options{
			ID: id, Job: c.cfg.Dump.Job,
			Session: session, Streamer: session,
			Queue: c.queue, Limiter: ratelimit.New(c.cfg.Dump.RateLimitBytesPerSecond, int(c.cfg.Dump.RateLimitBytesPerSecond)),
			Cache: c.cache, SchemaDumper: c.schema, Sink: c.sink,
			WriterConfig:             c.writerConfig(),
			BytesPerChunk:            c.cfg.Output.BytesPerChunk,
			Progress:                 c.onProgress,
			Interrupt:                c.interrupt,
			Exception:                exception,
			OutstandingChunkingTasks: c.outstandingChunkingTasks,
			DumpEvents:               c.cfg.Dump.DumpEvents,
			DumpRoutines:             c.cfg.Dump.DumpRoutines,
			DumpTriggers:             c.cfg.Dump.DumpTriggers,
			EncodingMode:             c.encodingMode,
		})

		g.Go(func() error {
			defer sem.Release(1)
			defer session.Close()
			return w.Run(gctx)
		})
	}

	return g.Wait()
}

func (c *Coordinator) writerConfig() dumpwriter.Config {
	format, _ := dumpwriter.ParseFormat(c.cfg.Output.Format)
	codec, _ := dumpwriter.ParseCodec(c.cfg.Output.CompressionCodec)
	dialect := dumpwriter.DefaultCSVDialect()
	dialect.Format = format
	if c.cfg.Output.FieldTerminator != "" {
		dialect.FieldTerminator = c.cfg.Output.FieldTerminator
	}
	if c.cfg.Output.LineTerminator != "" {
		dialect.LineTerminator = c.cfg.Output.LineTerminator
	}
	if c.cfg.Output.EnclosedBy != "" {
		dialect.EnclosedBy = c.cfg.Output.EnclosedBy
	}
	if c.cfg.Output.EscapedBy != "" {
		dialect.EscapedBy = c.cfg.Output.EscapedBy
	}
	return dumpwriter.Config{
		Dialect:   dialect,
		Codec:     codec,
		Level:     c.cfg.Output.CompressionLevel,
		WithIndex: c.cfg.Output.WithRowIndex,
	}
}

func (c *Coordinator) onProgress(schema, table string, rows, dataBytes uint64) {
	c.log.WithFields(apexLog.Fields{"schema": schema, "table": table, "rows": rows, "dataBytes": dataBytes}).Debug("progress")

	if c.reporter != nil {
		c.reporter.Report(schema, table, rows, dataBytes)
	}

	key := schema + "." + table
	c.progressMu.Lock()
	if dataBytes < c.lastChunkBytes[key] {
		c.accumulatedBytes[key] += c.lastChunkBytes[key]
	}
	c.lastChunkBytes[key] = dataBytes
	c.progressMu.Unlock()
}

// tableDataBytes reports a table's total data bytes written across all
// of its chunks. Only meaningful once every Worker has stopped.
func (c *Coordinator) tableDataBytes(schema, table string) uint64 {
	key := schema + "." + table
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	return c.accumulatedBytes[key] + c.lastChunkBytes[key]
}

// firstWorkerException returns the first recorded Worker error, if any,
// consulted by finalize so the job fails even if the errgroup itself
// returned nil (a worker observing Interrupt and returning cleanly
// after a sibling already recorded the real cause).
func (c *Coordinator) firstWorkerException() error {
	for _, ex := range c.exceptions {
		if ex == nil {
			continue
		}
		if v := ex.Load(); v != nil {
			if err, ok := v.(error); ok {
				return err
			}
		}
	}
	return nil
}
