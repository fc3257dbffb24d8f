package chunker

import (
	"context"
	"strconv"
	"testing"
)

// uniformProber simulates a table of rowCount rows with integer keys
// min..max uniformly distributed, so ExplainRowCount can be computed
// exactly instead of queried.
type uniformProber struct {
	min, max  int64
	rowCount  int64
}

func (u *uniformProber) MinMax(context.Context, string, string, string) (string, string, bool, error) {
	return strconv.FormatInt(u.min, 10), strconv.FormatInt(u.max, 10), true, nil
}

func (u *uniformProber) ExplainRowCount(_ context.Context, _, _, _, lowLiteral, highLiteral string) (int64, error) {
	lo, _ := strconv.ParseInt(lowLiteral, 10, 64)
	hi, _ := strconv.ParseInt(highLiteral, 10, 64)
	span := u.max - u.min + 1
	density := float64(u.rowCount) / float64(span)
	return int64(density * float64(hi-lo+1)), nil
}

func (u *uniformProber) NextUpperBound(context.Context, string, string, []string, string, int64) (string, bool, error) {
	return "", false, nil
}

func (u *uniformProber) NextLowerBound(context.Context, string, string, []string, string) (string, bool, error) {
	return "", false, nil
}

func TestChunkByStridingCoversWholeRangeDisjointly(t *testing.T) {
	p := Params{
		Job: "nightly", Schema: "shop", Table: "orders",
		IndexColumns: []string{"id"}, KeyColumnType: "bigint",
		RowEstimate: 10000, AvgRowLength: 64, BytesPerChunk: 65536,
	}
	prober := &uniformProber{min: 1, max: 10000, rowCount: 10000}
	results, err := Chunk(context.Background(), p, prober)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected multiple chunks for 10000 rows at ~1024 rows/chunk, got %d", len(results))
	}
	var prevEnd int64 = 0
	for i, r := range results {
		begin, _ := strconv.ParseInt(r.Range.BeginLiteral, 10, 64)
		end, _ := strconv.ParseInt(r.Range.EndLiteral, 10, 64)
		if begin != prevEnd+1 {
			t.Fatalf("chunk %d begin %d is not contiguous with previous end %d", i, begin, prevEnd)
		}
		if end < begin {
			t.Fatalf("chunk %d end %d is before begin %d", i, end, begin)
		}
		if i == 0 && !r.IncludeNulls {
			t.Fatal("first chunk must set IncludeNulls")
		}
		if i != 0 && r.IncludeNulls {
			t.Fatalf("chunk %d should not set IncludeNulls", i)
		}
		prevEnd = end
	}
	if prevEnd != 10000 {
		t.Fatalf("last chunk ends at %d, want 10000 (overall MAX)", prevEnd)
	}
	for i, r := range results {
		want := i == len(results)-1
		if r.IsLast != want {
			t.Fatalf("chunk %d IsLast = %v, want %v", i, r.IsLast, want)
		}
	}
}

func TestChunkSingleRowTableProducesOneRange(t *testing.T) {
	p := Params{
		Schema: "shop", Table: "counters", IndexColumns: []string{"id"},
		KeyColumnType: "int", RowEstimate: 1, AvgRowLength: 64, BytesPerChunk: 65536,
	}
	prober := &uniformProber{min: 5, max: 5, rowCount: 1}
	results, err := Chunk(context.Background(), p, prober)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(results))
	}
}

func TestChunkNoValidIndexFallsBackToWholeTable(t *testing.T) {
	p := Params{Schema: "shop", Table: "log", RowEstimate: 500, AvgRowLength: 64, BytesPerChunk: 65536}
	results, err := Chunk(context.Background(), p, &uniformProber{})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(results) != 1 || results[0].Range != nil {
		t.Fatalf("expected a single whole-table range with nil Range, got %+v", results)
	}
	if !results[0].IsLast {
		t.Fatal("the lone whole-table chunk must set IsLast")
	}
}

func TestChunkZeroRowsProducesNoTasks(t *testing.T) {
	p := Params{Schema: "shop", Table: "empty", IndexColumns: []string{"id"}, RowEstimate: 0}
	results, err := Chunk(context.Background(), p, &uniformProber{})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no tasks for an empty table, got %d", len(results))
	}
}

// limitWalkProber simulates an ordered string column by walking through a
// fixed slice.
type limitWalkProber struct {
	sorted []string
}

func (l *limitWalkProber) MinMax(context.Context, string, string, string) (string, string, bool, error) {
	if len(l.sorted) == 0 {
		return "", "", false, nil
	}
	return l.sorted[0], l.sorted[len(l.sorted)-1], true, nil
}

func (l *limitWalkProber) ExplainRowCount(context.Context, string, string, string, string, string) (int64, error) {
	return 0, nil
}

func (l *limitWalkProber) NextUpperBound(_ context.Context, _, _ string, _ []string, after string, rowsPerChunk int64) (string, bool, error) {
	start := 0
	if after != "" {
		for i, v := range l.sorted {
			if v == after {
				start = i + 1
				break
			}
		}
	}
	idx := start + int(rowsPerChunk) - 1
	if idx >= len(l.sorted) {
		return "", false, nil
	}
	return l.sorted[idx], true, nil
}

func (l *limitWalkProber) NextLowerBound(_ context.Context, _, _ string, _ []string, after string) (string, bool, error) {
	return l.NextUpperBound(context.Background(), "", "", nil, after, 1)
}

func TestChunkByLimitWalkStopsAtOverallMax(t *testing.T) {
	sorted := []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace"}
	p := Params{
		Schema: "shop", Table: "customers", IndexColumns: []string{"name"},
		KeyColumnType: "varchar", RowEstimate: int64(len(sorted)), AvgRowLength: 64, BytesPerChunk: 128,
	}
	prober := &limitWalkProber{sorted: sorted}
	results, err := Chunk(context.Background(), p, prober)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	last := results[len(results)-1]
	if last.Range.EndLiteral != "grace" {
		t.Fatalf("last chunk should end at the overall max %q, got %q", "grace", last.Range.EndLiteral)
	}
	if !results[0].IncludeNulls {
		t.Fatal("first chunk must set IncludeNulls")
	}
	if !last.IsLast {
		t.Fatal("last chunk must set IsLast")
	}
	for _, r := range results[:len(results)-1] {
		if r.IsLast {
			t.Fatalf("chunk %d should not set IsLast", r.ChunkID)
		}
	}
}

// TestChunkByLimitWalkRangesAreDisjoint guards against a chunk's begin
// literal reusing the previous chunk's end literal, which would dump the
// boundary row twice.
func TestChunkByLimitWalkRangesAreDisjoint(t *testing.T) {
	sorted := []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace"}
	p := Params{
		Schema: "shop", Table: "customers", IndexColumns: []string{"name"},
		KeyColumnType: "varchar", RowEstimate: int64(len(sorted)), AvgRowLength: 64, BytesPerChunk: 128,
	}
	prober := &limitWalkProber{sorted: sorted}
	results, err := Chunk(context.Background(), p, prober)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	seen := map[string]int{}
	for _, v := range sorted {
		for _, r := range results {
			begin, end := r.Range.BeginLiteral, r.Range.EndLiteral
			if (begin == "" || v >= begin) && v <= end {
				seen[v]++
			}
		}
	}
	for _, v := range sorted {
		if seen[v] != 1 {
			t.Fatalf("row %q covered by %d chunks, want exactly 1", v, seen[v])
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Range.BeginLiteral == results[i-1].Range.EndLiteral {
			t.Fatalf("chunk %d begin %q duplicates previous chunk's end", i, results[i].Range.BeginLiteral)
		}
	}
}
