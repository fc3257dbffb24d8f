package worker

import (
	"context"
	"database/sql"
	"fmt"

	apexLog "github.com/apex/log"
	"github.com/sqlshell/dbdump/pkg/chunker"
	"github.com/sqlshell/dbdump/pkg/dumpwriter"
	"github.com/sqlshell/dbdump/pkg/task"
)

// executeChunkTable runs the Chunker for one table and pushes a
// DumpRange task for every produced range, each carrying its own Writer
// (opened later by the DumpRange task). The outstanding-chunking-task counter is decremented on
// completion so the Coordinator knows when to publish shutdown tasks.
func (w *Worker) executeChunkTable(ctx context.Context, t task.Task) error {
	defer w.opts.OutstandingChunkingTasks.Add(-1)

	ti := w.tableInfo(t.Schema, t.Table)
	if ti == nil {
		return fmt.Errorf("worker: no cached metadata for %s.%s", t.Schema, t.Table)
	}
	if !ti.HasStatistics {
		apexLog.WithFields(apexLog.Fields{"schema": t.Schema, "table": t.Table}).
			Info("no table statistics, using a default row length of 256 bytes; run ANALYZE TABLE to refresh them")
	}

	var indexColumns []string
	var keyType string
	if ti.ChosenIndex != nil {
		indexColumns = ti.ChosenIndex.Columns
		for _, c := range ti.Columns {
			if c.Name == indexColumns[0] {
				keyType = c.Type
				break
			}
		}
	}

	params := chunker.Params{
		Job: w.opts.Job, Schema: t.Schema, Table: t.Table,
		IndexColumns: indexColumns, KeyColumnType: keyType,
		RowEstimate: ti.RowEstimate, AvgRowLength: ti.AvgRowLength,
		BytesPerChunk: w.opts.BytesPerChunk,
	}

	prober := &sessionProber{streamer: w.opts.Streamer}
	results, err := chunker.Chunk(ctx, params, prober)
	if err != nil {
		return err
	}

	for _, r := range results {
		marker := "@"
		if r.IsLast {
			marker = "@@"
		}
		key := fmt.Sprintf("%s@%s%s%d", t.Schema, t.Table, marker, r.ChunkID)
		wr := dumpwriter.New(w.opts.Sink, key, w.opts.WriterConfig)
		dumpTask := task.NewDumpRange(t.Schema, t.Table, r.ChunkID, r.IsLast, r.Range, r.IncludeNulls, wr, wr.IndexKey())
		if err := w.opts.Queue.Push(ctx, dumpTask); err != nil {
			return err
		}
	}
	return nil
}

// sessionProber implements chunker.Prober against the Worker's own
// session via the same StreamQuery seam DumpRange uses, instead of a
// second narrow interface.
type sessionProber struct {
	streamer RowStreamer
}

func (p *sessionProber) MinMax(ctx context.Context, schema, table, column string) (string, string, bool, error) {
	var min, max string
	found := false
	query := fmt.Sprintf("SELECT MIN(`%s`), MAX(`%s`) FROM `%s`.`%s`", column, column, schema, table)
	err := p.streamer.StreamQuery(ctx, query, nil, func(row []sql.NullString) error {
		if len(row) >= 2 && row[0].Valid {
			min, max, found = row[0].String, row[1].String, true
		}
		return nil
	})
	return min, max, found, err
}

func (p *sessionProber) ExplainRowCount(ctx context.Context, schema, table, column, lowLiteral, highLiteral string) (int64, error) {
	var count int64
	query := fmt.Sprintf("EXPLAIN SELECT COUNT(*) FROM `%s`.`%s` WHERE `%s` BETWEEN ? AND ?", schema, table, column)
	err := p.streamer.StreamQuery(ctx, query, []interface{}{lowLiteral, highLiteral}, func(row []sql.NullString) error {
		// rows is the tenth column of the traditional EXPLAIN output (id,
		// select_type, table, partitions, type, possible_keys, key,
		// key_len, ref, rows, filtered, Extra).
		if len(row) >= 10 {
			fmt.Sscanf(row[9].String, "%d", &count)
		}
		return nil
	})
	return count, err
}

func (p *sessionProber) NextUpperBound(ctx context.Context, schema, table string, indexColumns []string, afterLiteral string, rowsPerChunk int64) (string, bool, error) {
	var upper string
	found := false
	orderBy := ""
	for i, c := range indexColumns {
		if i > 0 {
			orderBy += ", "
		}
		orderBy += "`" + c + "`"
	}
	where := ""
	args := []interface{}{}
	if afterLiteral != "" {
		where = fmt.Sprintf("WHERE `%s` > ?", indexColumns[0])
		args = append(args, afterLiteral)
	}
	query := fmt.Sprintf("SELECT `%s` FROM `%s`.`%s` %s ORDER BY %s LIMIT ?, 1", indexColumns[0], schema, table, where, orderBy)
	args = append(args, rowsPerChunk-1)
	err := p.streamer.StreamQuery(ctx, query, args, func(row []sql.NullString) error {
		if len(row) > 0 {
			upper, found = row[0].String, true
		}
		return nil
	})
	return upper, found, err
}

// NextLowerBound is the same LIMIT-walking probe as NextUpperBound with
// rowsPerChunk fixed at 1, returning the literal of the row immediately
// after afterLiteral rather than one rowsPerChunk ahead.
func (p *sessionProber) NextLowerBound(ctx context.Context, schema, table string, indexColumns []string, afterLiteral string) (string, bool, error) {
	return p.NextUpperBound(ctx, schema, table, indexColumns, afterLiteral, 1)
}
