package cache

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

// fakeQuerier canned-answers Select calls by matching a substring of the
// query text, following the teacher's small-interface-plus-fake style
// from pkg/backup/backup_shard_test.go.
type fakeQuerier struct {
	answers map[string]interface{}
}

func (f *fakeQuerier) Select(_ context.Context, dest interface{}, query string, _ ...interface{}) error {
	for substr, rows := range f.answers {
		if strings.Contains(query, substr) {
			reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(rows))
			return nil
		}
	}
	return nil
}

type allowAllFilter struct{}

func (allowAllFilter) IncludesSchema(string) bool      { return true }
func (allowAllFilter) IncludesTable(string, string) bool { return true }
func (allowAllFilter) IncludesUser(string) bool        { return true }

func TestBuildMinimalSkipsSystemSchemas(t *testing.T) {
	q := &fakeQuerier{answers: map[string]interface{}{
		"SCHEMATA": []struct {
			SchemaName string `db:"SCHEMA_NAME"`
		}{
			{SchemaName: "mysql"},
			{SchemaName: "shop"},
		},
		"information_schema.TABLES": []struct {
			TableName string `db:"TABLE_NAME"`
			TableType string `db:"TABLE_TYPE"`
		}{
			{TableName: "items", TableType: "BASE TABLE"},
			{TableName: "recent_orders", TableType: "VIEW"},
		},
	}}
	c, err := BuildMinimal(context.Background(), q, allowAllFilter{})
	if err != nil {
		t.Fatalf("BuildMinimal: %v", err)
	}
	if _, ok := c.Schemas["mysql"]; ok {
		t.Fatal("system schema mysql should have been skipped")
	}
	shop, ok := c.Schemas["shop"]
	if !ok {
		t.Fatal("expected schema shop")
	}
	if _, ok := shop.Tables["items"]; !ok {
		t.Fatal("expected table items")
	}
	if _, ok := shop.Views["recent_orders"]; !ok {
		t.Fatal("expected view recent_orders")
	}
}

func TestIsEncodingUnsafe(t *testing.T) {
	cases := map[string]bool{
		"varchar": false,
		"int":     false,
		"blob":    true,
		"json":    true,
		"geometry": true,
	}
	for dataType, want := range cases {
		if got := isEncodingUnsafe(dataType); got != want {
			t.Errorf("isEncodingUnsafe(%q) = %v, want %v", dataType, got, want)
		}
	}
}

func TestSelectIndexPrefersPrimaryOverUnique(t *testing.T) {
	candidates := []Index{
		{Primary: false, Unique: true, Columns: []string{"email"}},
		{Primary: true, Unique: true, Columns: []string{"id"}},
	}
	types := map[string]string{"email": "varchar", "id": "int"}
	got := selectIndex(candidates, types)
	if got == nil || !got.Primary {
		t.Fatalf("selectIndex = %+v, want primary key chosen", got)
	}
}

func TestSelectIndexTieBreaksOnNumericColumnFirst(t *testing.T) {
	candidates := []Index{
		{Unique: true, Columns: []string{"name"}},
		{Unique: true, Columns: []string{"id"}},
	}
	types := map[string]string{"name": "varchar", "id": "int"}
	got := selectIndex(candidates, types)
	if got == nil || got.Columns[0] != "id" {
		t.Fatalf("selectIndex = %+v, want numeric column id chosen first", got)
	}
}

func TestSelectIndexTieBreaksOnFewerColumnsThenLexicographic(t *testing.T) {
	candidates := []Index{
		{Unique: true, Columns: []string{"a", "b"}},
		{Unique: true, Columns: []string{"b"}},
		{Unique: true, Columns: []string{"a"}},
	}
	types := map[string]string{"a": "varchar", "b": "varchar"}
	got := selectIndex(candidates, types)
	if got == nil || len(got.Columns) != 1 || got.Columns[0] != "a" {
		t.Fatalf("selectIndex = %+v, want single-column index 'a'", got)
	}
}

func TestSelectIndexReturnsNilWhenNoCandidates(t *testing.T) {
	if got := selectIndex(nil, nil); got != nil {
		t.Fatalf("selectIndex(nil) = %+v, want nil", got)
	}
}

func TestLoadStatisticsFallsBackToDefaultRowLength(t *testing.T) {
	q := &fakeQuerier{answers: map[string]interface{}{
		"information_schema.TABLES": []statsRow{{TableRows: 100, AvgRowLen: 0}},
	}}
	ti := &TableInfo{}
	if err := loadStatistics(context.Background(), q, "shop", "items", ti); err != nil {
		t.Fatalf("loadStatistics: %v", err)
	}
	if ti.AvgRowLength != defaultAvgRowLength {
		t.Fatalf("AvgRowLength = %d, want default %d", ti.AvgRowLength, defaultAvgRowLength)
	}
	if ti.HasStatistics {
		t.Fatal("HasStatistics should be false when AVG_ROW_LENGTH is 0")
	}
}
