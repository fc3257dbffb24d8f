package task

import "testing"

func TestNewDumpRangeSetsLowPriority(t *testing.T) {
	rng := &Range{ColumnType: "int", BeginLiteral: "1", EndLiteral: "100"}
	tk := NewDumpRange("shop", "orders", 3, false, rng, true, nil, "orders.3.idx")
	if tk.Kind != DumpRange {
		t.Fatalf("Kind = %v, want DumpRange", tk.Kind)
	}
	if tk.Priority != LOW {
		t.Fatalf("Priority = %v, want LOW", tk.Priority)
	}
	if !tk.IncludeNulls {
		t.Fatal("IncludeNulls should be true")
	}
}

func TestDDLTasksRunHighPriority(t *testing.T) {
	for _, tk := range []Task{
		NewDumpSchemaDDL("shop"),
		NewDumpTableDDL("shop", "orders"),
		NewDumpViewDDL("shop", "recent_orders"),
	} {
		if tk.Priority != HIGH {
			t.Fatalf("%v: Priority = %v, want HIGH", tk.Kind, tk.Priority)
		}
	}
}

func TestChunkTableRunsMediumPriority(t *testing.T) {
	tk := NewChunkTable("shop", "orders")
	if tk.Priority != MEDIUM {
		t.Fatalf("Priority = %v, want MEDIUM", tk.Priority)
	}
}

func TestCommentIdentifiesChunk(t *testing.T) {
	tk := NewDumpRange("shop", "orders", 7, false, nil, false, nil, "")
	got := tk.Comment("nightly")
	want := "/* dump=nightly table=shop.orders chunk=7 */"
	if got != want {
		t.Fatalf("Comment() = %q, want %q", got, want)
	}
}
