package worker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sqlshell/dbdump/pkg/cache"
	"github.com/sqlshell/dbdump/pkg/dumpwriter"
	"github.com/sqlshell/dbdump/pkg/task"
)

const progressRowInterval = 2000

// executeDumpRange constructs the chunk's SELECT, streams rows through
// the Writer, and finalizes the output file on completion.
func (w *Worker) executeDumpRange(ctx context.Context, t task.Task) error {
	ti := w.tableInfo(t.Schema, t.Table)
	if ti == nil {
		return fmt.Errorf("worker: no cached metadata for %s.%s", t.Schema, t.Table)
	}

	writer := t.Writer
	if writer == nil {
		return fmt.Errorf("worker: DumpRange task for %s.%s has no Writer", t.Schema, t.Table)
	}
	if err := writer.Open(ctx); err != nil {
		return err
	}

	columns, encodings := dumpwriter.ProjectColumns(ti.Columns, w.opts.EncodingMode)
	if _, err := writer.WritePreamble(columns, encodings); err != nil {
		_ = writer.Close()
		return err
	}

	query, args := buildSelect(t, ti, w.opts.EncodingMode)
	var rows uint64
	var dataBytes uint64
	err := w.opts.Streamer.StreamQuery(ctx, query, args, func(row []sql.NullString) error {
		if w.opts.Interrupt.Load() {
			return errInterrupted
		}
		res, err := writer.WriteRow(row)
		if err != nil {
			return err
		}
		rows = res.Rows
		batch := res.DataBytes - dataBytes
		dataBytes = res.DataBytes
		if err := w.opts.Limiter.Report(ctx, int(batch)); err != nil {
			return err
		}
		if rows%progressRowInterval == 0 && w.opts.Progress != nil {
			w.opts.Progress(t.Schema, t.Table, rows, dataBytes)
		}
		return nil
	})
	if err != nil && err != errInterrupted {
		_ = writer.Close()
		_ = w.opts.Sink.Abandon(ctx, writer.Output())
		return err
	}

	interrupted := err == errInterrupted
	if _, perr := writer.WritePostamble(); perr != nil {
		_ = writer.Close()
		return perr
	}
	if cerr := writer.Close(); cerr != nil {
		return cerr
	}
	if interrupted {
		return w.opts.Sink.Abandon(ctx, writer.Output())
	}
	if w.opts.Progress != nil {
		w.opts.Progress(t.Schema, t.Table, rows, dataBytes)
	}
	if ferr := w.opts.Sink.Finalize(ctx, writer.Output()); ferr != nil {
		return ferr
	}
	if writer.IndexKey() != "" {
		if err := w.opts.Sink.Finalize(ctx, writer.IndexKey()); err != nil {
			return err
		}
	}
	return nil
}

var errInterrupted = fmt.Errorf("worker: interrupted")

func (w *Worker) tableInfo(schema, table string) *cache.TableInfo {
	si, ok := w.opts.Cache.Schemas[schema]
	if !ok {
		return nil
	}
	return si.Tables[table]
}

// buildSelect renders the chunk's SELECT statement: encoding-unsafe
// columns wrapped in a conversion function, a type-preserving range
// predicate, the chosen index for ORDER BY, and a trailing SQL comment
// correlating process-list entries with the chunk during debugging.
func buildSelect(t task.Task, ti *cache.TableInfo, mode dumpwriter.EncodingMode) (string, []interface{}) {
	_, encodings := dumpwriter.ProjectColumns(ti.Columns, mode)
	cols := make([]string, len(ti.Columns))
	for i, c := range ti.Columns {
		switch encodings[c.Name] {
		case dumpwriter.EncodingHex:
			cols[i] = fmt.Sprintf("HEX(`%s`) AS `%s`", c.Name, c.Name)
		case dumpwriter.EncodingBase64:
			cols[i] = fmt.Sprintf("TO_BASE64(`%s`) AS `%s`", c.Name, c.Name)
		default:
			cols[i] = fmt.Sprintf("`%s`", c.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM `%s`.`%s`", strings.Join(cols, ", "), t.Schema, t.Table)

	if t.Range != nil && ti.ChosenIndex != nil {
		key := "`" + ti.ChosenIndex.Columns[0] + "`"
		if t.Range.BeginLiteral == "" {
			fmt.Fprintf(&b, " WHERE %s <= %s", key, literal(t.Range.ColumnType, t.Range.EndLiteral))
		} else {
			fmt.Fprintf(&b, " WHERE %s BETWEEN %s AND %s", key, literal(t.Range.ColumnType, t.Range.BeginLiteral), literal(t.Range.ColumnType, t.Range.EndLiteral))
		}
		if t.IncludeNulls {
			fmt.Fprintf(&b, " OR %s IS NULL", key)
		}
	}
	if ti.ChosenIndex != nil {
		quoted := make([]string, len(ti.ChosenIndex.Columns))
		for i, c := range ti.ChosenIndex.Columns {
			quoted[i] = "`" + c + "`"
		}
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(quoted, ", "))
	}
	fmt.Fprintf(&b, " %s", t.Comment("dump"))
	return b.String(), nil
}

// literal renders a range boundary type-preserving: bare for integer key
// types, quoted for strings/decimals/other orderable types.
func literal(columnType, value string) string {
	switch strings.ToLower(columnType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return value
	default:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'"
	}
}
