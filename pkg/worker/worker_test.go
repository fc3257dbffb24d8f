package worker

import (
	"strings"
	"testing"

	"github.com/sqlshell/dbdump/pkg/cache"
	"github.com/sqlshell/dbdump/pkg/dumpwriter"
	"github.com/sqlshell/dbdump/pkg/task"
)

func TestProjectColumnsChoosesHexForBinaryBase64Otherwise(t *testing.T) {
	cols := []cache.Column{
		{Name: "id", Type: "int"},
		{Name: "payload", Type: "blob", EncodingUnsafe: true},
		{Name: "doc", Type: "json", EncodingUnsafe: true},
	}
	_, encodings := dumpwriter.ProjectColumns(cols, dumpwriter.EncodingAuto)
	if encodings["payload"] != dumpwriter.EncodingHex {
		t.Fatalf("payload encoding = %v, want Hex", encodings["payload"])
	}
	if encodings["doc"] != dumpwriter.EncodingBase64 {
		t.Fatalf("doc encoding = %v, want Base64", encodings["doc"])
	}
	if _, ok := encodings["id"]; ok {
		t.Fatal("plain int column should not have an encoding entry")
	}
}

func TestBuildSelectWrapsUnsafeColumnsAndRange(t *testing.T) {
	ti := &cache.TableInfo{
		Columns: []cache.Column{
			{Name: "id", Type: "int"},
			{Name: "payload", Type: "blob", EncodingUnsafe: true},
		},
		ChosenIndex: &cache.Index{Primary: true, Columns: []string{"id"}},
	}
	tk := task.NewDumpRange("shop", "items", 2, false, &task.Range{ColumnType: "int", BeginLiteral: "1", EndLiteral: "100"}, true, nil, "")
	query, _ := buildSelect(tk, ti, dumpwriter.EncodingAuto)
	if !strings.Contains(query, "HEX(`payload`)") {
		t.Fatalf("query should wrap payload in HEX(): %s", query)
	}
	if !strings.Contains(query, "WHERE `id` BETWEEN 1 AND 100") {
		t.Fatalf("query missing range predicate: %s", query)
	}
	if !strings.Contains(query, "OR `id` IS NULL") {
		t.Fatalf("query missing includeNulls clause: %s", query)
	}
	if !strings.Contains(query, "ORDER BY `id`") {
		t.Fatalf("query missing ORDER BY: %s", query)
	}
	if !strings.Contains(query, "chunk=2") {
		t.Fatalf("query missing trailing chunk comment: %s", query)
	}
}

func TestBuildSelectOpenLowerBoundWhenBeginEmpty(t *testing.T) {
	ti := &cache.TableInfo{
		Columns:     []cache.Column{{Name: "name", Type: "varchar"}},
		ChosenIndex: &cache.Index{Columns: []string{"name"}},
	}
	tk := task.NewDumpRange("shop", "customers", 0, false, &task.Range{ColumnType: "varchar", BeginLiteral: "", EndLiteral: "mallory"}, true, nil, "")
	query, _ := buildSelect(tk, ti, dumpwriter.EncodingAuto)
	if !strings.Contains(query, "WHERE `name` <= 'mallory'") {
		t.Fatalf("expected open lower bound predicate: %s", query)
	}
}

func TestLiteralQuotesNonIntegerTypes(t *testing.T) {
	if got := literal("int", "42"); got != "42" {
		t.Fatalf("literal(int) = %q", got)
	}
	if got := literal("varchar", "o'brien"); got != "'o''brien'" {
		t.Fatalf("literal(varchar) = %q", got)
	}
}
