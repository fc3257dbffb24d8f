// Package chunker implements the Chunker: given a table and its chosen
// chunking index, produces a sequence of disjoint key ranges covering
// every row, using arithmetic striding with adaptive refinement for
// integer keys and LIMIT-walking for everything else. Constants are
// grounded on original_source/modules/util/dump/dumper.cc's
// rows_per_chunk/accuracy bisection loop.
package chunker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sqlshell/dbdump/pkg/task"
)

// KeyKind classifies a chunking column's type for algorithm selection.
type KeyKind int

const (
	KeyInteger KeyKind = iota
	KeyOther
)

// ClassifyKeyType maps an information_schema DATA_TYPE to a KeyKind.
func ClassifyKeyType(dataType string) KeyKind {
	switch strings.ToLower(dataType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return KeyInteger
	default:
		return KeyOther
	}
}

// Prober is the set of database round-trips the Chunker needs, kept
// narrow so the bisection/LIMIT-walking logic can be unit-tested against
// a fake instead of a live server.
type Prober interface {
	// MinMax returns the chunking column's minimum and maximum literal
	// value. hasRows is false when the table is empty (MIN is NULL).
	MinMax(ctx context.Context, schema, table, column string) (min, max string, hasRows bool, err error)
	// ExplainRowCount returns EXPLAIN's estimated row count for
	// `key BETWEEN lowLiteral AND highLiteral`.
	ExplainRowCount(ctx context.Context, schema, table, column, lowLiteral, highLiteral string) (int64, error)
	// NextUpperBound runs the LIMIT-walking probe: ordering by the index,
	// starting strictly after afterLiteral (empty string means "from the
	// start"), it returns the literal rowsPerChunk-1 rows ahead.
	NextUpperBound(ctx context.Context, schema, table string, indexColumns []string, afterLiteral string, rowsPerChunk int64) (string, bool, error)
	// NextLowerBound returns the literal of the first row strictly after
	// afterLiteral, ordered by the index, the true lower bound of the
	// chunk that starts right after afterLiteral. ok is false if no such
	// row exists (afterLiteral was the overall max).
	NextLowerBound(ctx context.Context, schema, table string, indexColumns []string, afterLiteral string) (string, bool, error)
}

// ChunkResult is one produced range. Range is nil for the single
// whole-table fallback (no valid index, or MinMax finds no rows).
type ChunkResult struct {
	ChunkID      int
	Range        *task.Range
	IncludeNulls bool
	// IsLast marks the table's final chunk, so the caller can name its
	// output file with the @@<ordinal> tail marker instead of @<ordinal>.
	IsLast bool
}

// Params bundles a ChunkTable task's inputs, pulled from the Instance
// Cache by the caller.
type Params struct {
	Job           string
	Schema        string
	Table         string
	IndexColumns  []string // nil/empty means "no valid index"
	KeyColumnType string
	RowEstimate   int64
	AvgRowLength  int64
	BytesPerChunk int64
}

const (
	maxBisectIterations = 10
	maxBisectRetries    = 10
)

// Chunk runs the Chunker for one table and returns its ranges.
func Chunk(ctx context.Context, p Params, prober Prober) ([]ChunkResult, error) {
	if p.RowEstimate == 0 {
		return nil, nil
	}
	if len(p.IndexColumns) == 0 {
		return []ChunkResult{{ChunkID: 0, Range: nil, IncludeNulls: true, IsLast: true}}, nil
	}

	keyColumn := p.IndexColumns[0]
	minLiteral, maxLiteral, hasRows, err := prober.MinMax(ctx, p.Schema, p.Table, keyColumn)
	if err != nil {
		return nil, err
	}
	if !hasRows {
		return []ChunkResult{{ChunkID: 0, Range: nil, IncludeNulls: true, IsLast: true}}, nil
	}

	avgRowLength := p.AvgRowLength
	if avgRowLength <= 0 {
		avgRowLength = 256
	}
	rowsPerChunk := p.BytesPerChunk / avgRowLength
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	switch ClassifyKeyType(p.KeyColumnType) {
	case KeyInteger:
		return chunkByStriding(ctx, p, keyColumn, minLiteral, maxLiteral, rowsPerChunk, prober)
	default:
		return chunkByLimitWalk(ctx, p, keyColumn, maxLiteral, rowsPerChunk, prober)
	}
}

// chunkByStriding implements arithmetic striding with adaptive
// refinement for integer keys.
func chunkByStriding(ctx context.Context, p Params, keyColumn, minLiteral, maxLiteral string, rowsPerChunk int64, prober Prober) ([]ChunkResult, error) {
	min, err := strconv.ParseInt(minLiteral, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chunker: non-integer MIN literal %q for integer key: %w", minLiteral, err)
	}
	max, err := strconv.ParseInt(maxLiteral, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chunker: non-integer MAX literal %q for integer key: %w", maxLiteral, err)
	}
	if max < min {
		return nil, fmt.Errorf("chunker: MAX %d is less than MIN %d for %s.%s", max, min, p.Schema, p.Table)
	}

	rowCount := p.RowEstimate
	chunkCount := rowCount / rowsPerChunk
	if chunkCount < 1 {
		chunkCount = 1
	}
	step := (max - min) / chunkCount
	if step < 1 {
		step = 1
	}
	accuracy := rowsPerChunk / 10
	if accuracy < 10 {
		accuracy = 10
	}

	var results []ChunkResult
	prevEnd := min - 1
	current := min
	chunkID := 0
	for current <= max {
		boundary, err := findBoundary(ctx, p, keyColumn, current, step, max, rowsPerChunk, accuracy, prober)
		if err != nil {
			return nil, err
		}
		results = append(results, ChunkResult{
			ChunkID:      chunkID,
			Range:        &task.Range{ColumnType: p.KeyColumnType, BeginLiteral: strconv.FormatInt(prevEnd+1, 10), EndLiteral: strconv.FormatInt(boundary, 10)},
			IncludeNulls: chunkID == 0,
		})
		if boundary >= max {
			break
		}
		prevEnd = boundary
		current = boundary + 1
		chunkID++
	}
	if len(results) > 0 {
		results[len(results)-1].IsLast = true
	}
	return results, nil
}

// findBoundary bisects within [current, current+2*step] (clamped to max)
// for a boundary whose estimated row count from current is within
// accuracy of rowsPerChunk, accepting early if the candidate equals max.
func findBoundary(ctx context.Context, p Params, keyColumn string, current, step, max, rowsPerChunk, accuracy int64, prober Prober) (int64, error) {
	lo := current
	hi := current + 2*step
	if hi > max {
		hi = max
	}
	if hi <= lo {
		return max, nil
	}

	var best int64 = hi
	for retry := 0; retry < maxBisectRetries; retry++ {
		low, high := lo, hi
		for iter := 0; iter < maxBisectIterations; iter++ {
			mid := low + (high-low)/2
			if mid <= current {
				mid = current + 1
			}
			count, err := prober.ExplainRowCount(ctx, p.Schema, p.Table, keyColumn,
				strconv.FormatInt(current, 10), strconv.FormatInt(mid, 10))
			if err != nil {
				return 0, err
			}
			diff := count - rowsPerChunk
			if diff < 0 {
				diff = -diff
			}
			if diff <= accuracy || mid == max {
				return mid, nil
			}
			best = mid
			if count < rowsPerChunk {
				low = mid
			} else {
				high = mid
			}
			if high <= low {
				break
			}
		}
		hi = hi + step
		if hi > max {
			hi = max
			return hi, nil
		}
	}
	return best, nil
}

// chunkByLimitWalk implements LIMIT-walking for string/decimal/other
// orderable key types.
func chunkByLimitWalk(ctx context.Context, p Params, keyColumn, maxLiteral string, rowsPerChunk int64, prober Prober) ([]ChunkResult, error) {
	var results []ChunkResult
	begin := ""
	after := ""
	chunkID := 0
	for {
		upper, ok, err := prober.NextUpperBound(ctx, p.Schema, p.Table, p.IndexColumns, after, rowsPerChunk)
		if err != nil {
			return nil, err
		}
		if !ok {
			upper = maxLiteral
		}
		results = append(results, ChunkResult{
			ChunkID:      chunkID,
			Range:        &task.Range{ColumnType: p.KeyColumnType, BeginLiteral: begin, EndLiteral: upper},
			IncludeNulls: chunkID == 0,
		})
		if upper == maxLiteral {
			break
		}
		lower, ok, err := prober.NextLowerBound(ctx, p.Schema, p.Table, p.IndexColumns, upper)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		begin = lower
		after = upper
		chunkID++
	}
	if len(results) > 0 {
		results[len(results)-1].IsLast = true
	}
	return results, nil
}
