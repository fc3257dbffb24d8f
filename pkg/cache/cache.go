// Package cache implements the Instance Cache: a read-only metadata
// snapshot of the schemas, tables, views, columns, indexes and row-count
// statistics the Chunker and Schema Dumper read from, built in two
// passes against the primary dbsession.
package cache

import (
	"context"
	"sort"
)

// Column describes one table column as the Writer needs to know it:
// whether its value must be hex/base64-encoded on the wire.
type Column struct {
	Name           string
	Type           string
	EncodingUnsafe bool
}

// Index describes a candidate chunking index: whether it is the primary
// key, and its ordered column list (first column is the chunking "key").
type Index struct {
	Primary bool
	Unique  bool
	Columns []string
}

// TableInfo is the per-table metadata the minimal and full cache passes
// populate.
type TableInfo struct {
	Columns       []Column
	ChosenIndex   *Index
	RowEstimate   int64
	AvgRowLength  int64
	HasStatistics bool
}

// ViewInfo is the per-view entry the minimal cache pass lists. The full
// pass does not touch views, and Definer is not filled in by either pass.
type ViewInfo struct {
	Definer string
}

// SchemaInfo holds one schema's tables and views.
type SchemaInfo struct {
	Tables map[string]*TableInfo
	Views  map[string]*ViewInfo

	Procedures []string
	Functions  []string
	Events     []string

	// TableTriggers maps a table name to the triggers defined on it, so
	// the per-table triggers file can be emitted alongside its DDL.
	TableTriggers map[string][]string
}

// Cache is the mapping schema-name → SchemaInfo, built once under lock
// (minimal) and then enriched once more before data dumping (full).
// Read-only thereafter; safe for concurrent read access from every
// Worker.
type Cache struct {
	Schemas map[string]*SchemaInfo
	Users   []string
}

// Querier is the subset of *dbsession.Session the cache builder needs,
// kept narrow so tests can supply a fake, following the teacher's
// small-interface style in pkg/backup/backup_shard.go.
type Querier interface {
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// SchemaFilter decides whether a schema/table/user is in scope, derived
// from the job's inclusion/exclusion sets.
type SchemaFilter interface {
	IncludesSchema(schema string) bool
	IncludesTable(schema, table string) bool
	IncludesUser(user string) bool
}

// BuildMinimal lists only schemas and tables, for use while locks are
// being acquired (the Coordinator needs the table list to build its
// LOCK TABLES statement before it can run anything heavier).
func BuildMinimal(ctx context.Context, q Querier, filter SchemaFilter) (*Cache, error) {
	var schemaRows []struct {
		SchemaName string `db:"SCHEMA_NAME"`
	}
	if err := q.Select(ctx, &schemaRows, schemataQuery); err != nil {
		return nil, err
	}
	c := &Cache{Schemas: map[string]*SchemaInfo{}}
	for _, row := range schemaRows {
		if isSystemSchema(row.SchemaName) || !filter.IncludesSchema(row.SchemaName) {
			continue
		}
		si := &SchemaInfo{Tables: map[string]*TableInfo{}, Views: map[string]*ViewInfo{}}
		var tableRows []struct {
			TableName string `db:"TABLE_NAME"`
			TableType string `db:"TABLE_TYPE"`
		}
		if err := q.Select(ctx, &tableRows, tablesQuery, row.SchemaName); err != nil {
			return nil, err
		}
		for _, t := range tableRows {
			if !filter.IncludesTable(row.SchemaName, t.TableName) {
				continue
			}
			if t.TableType == "VIEW" {
				si.Views[t.TableName] = &ViewInfo{}
			} else {
				si.Tables[t.TableName] = &TableInfo{}
			}
		}
		c.Schemas[row.SchemaName] = si
	}
	return c, nil
}

func isSystemSchema(name string) bool {
	switch name {
	case "information_schema", "performance_schema", "mysql", "sys":
		return true
	}
	return false
}

// TableNames returns every in-scope `schema`.`table` pair, used to build
// the LOCK TABLES fallback statement before the full cache exists.
func (c *Cache) TableNames() []string {
	var out []string
	for schema, info := range c.Schemas {
		for table := range info.Tables {
			out = append(out, "`"+schema+"`.`"+table+"`")
		}
	}
	sort.Strings(out)
	return out
}

const schemataQuery = `SELECT SCHEMA_NAME FROM information_schema.SCHEMATA`

const tablesQuery = `SELECT TABLE_NAME, TABLE_TYPE FROM information_schema.TABLES WHERE TABLE_SCHEMA = ?`
