package cache

import (
	"context"
	"sort"
	"strings"
)

// BuildFull enriches an already-minimal Cache with columns, indexes, row
// counts, average row lengths, routines, events, triggers and users,
// filtered by the same SchemaFilter used for the minimal pass.
func BuildFull(ctx context.Context, q Querier, filter SchemaFilter, c *Cache) error {
	for schema, si := range c.Schemas {
		for table, ti := range si.Tables {
			if err := loadColumns(ctx, q, schema, table, ti); err != nil {
				return err
			}
			if err := loadIndexes(ctx, q, schema, table, ti); err != nil {
				return err
			}
			if err := loadStatistics(ctx, q, schema, table, ti); err != nil {
				return err
			}
		}
		var err error
		si.Procedures, err = loadRoutines(ctx, q, schema, "PROCEDURE")
		if err != nil {
			return err
		}
		si.Functions, err = loadRoutines(ctx, q, schema, "FUNCTION")
		if err != nil {
			return err
		}
		si.Events, err = loadEvents(ctx, q, schema)
		if err != nil {
			return err
		}
		si.TableTriggers, err = loadTriggers(ctx, q, schema)
		if err != nil {
			return err
		}
	}
	users, err := loadUsers(ctx, q)
	if err != nil {
		return err
	}
	for _, u := range users {
		if filter.IncludesUser(u) {
			c.Users = append(c.Users, u)
		}
	}
	return nil
}

type columnRow struct {
	Name     string `db:"COLUMN_NAME"`
	DataType string `db:"DATA_TYPE"`
}

func loadColumns(ctx context.Context, q Querier, schema, table string, ti *TableInfo) error {
	var rows []columnRow
	if err := q.Select(ctx, &rows, columnsQuery, schema, table); err != nil {
		return err
	}
	ti.Columns = make([]Column, len(rows))
	for i, r := range rows {
		ti.Columns[i] = Column{Name: r.Name, Type: r.DataType, EncodingUnsafe: isEncodingUnsafe(r.DataType)}
	}
	return nil
}

// isEncodingUnsafe reports whether a column's textual representation may
// contain bytes unsafe for the dialect's line framing: binary strings,
// spatial types, and JSON.
func isEncodingUnsafe(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "binary", "varbinary", "tinyblob", "blob", "mediumblob", "longblob",
		"geometry", "point", "linestring", "polygon",
		"multipoint", "multilinestring", "multipolygon", "geometrycollection",
		"json":
		return true
	}
	return false
}

type statisticsRow struct {
	IndexName  string `db:"INDEX_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
	NonUnique  int    `db:"NON_UNIQUE"`
	SeqInIndex int    `db:"SEQ_IN_INDEX"`
	Nullable   string `db:"NULLABLE"`
}

// loadIndexes picks the Chunker's index per §4.3: primary key preferred,
// then a unique non-nullable index, then any non-unique index. Ties
// within a tier are broken by: covers a numeric column first, then fewer
// columns, then lexicographic column list.
func loadIndexes(ctx context.Context, q Querier, schema, table string, ti *TableInfo) error {
	var rows []statisticsRow
	if err := q.Select(ctx, &rows, statisticsQuery, schema, table); err != nil {
		return err
	}
	byName := map[string][]statisticsRow{}
	order := []string{}
	for _, r := range rows {
		if _, ok := byName[r.IndexName]; !ok {
			order = append(order, r.IndexName)
		}
		byName[r.IndexName] = append(byName[r.IndexName], r)
	}
	columnTypes := map[string]string{}
	for _, c := range ti.Columns {
		columnTypes[c.Name] = c.Type
	}
	candidates := make([]Index, 0, len(order))
	for _, name := range order {
		cols := byName[name]
		sort.Slice(cols, func(i, j int) bool { return cols[i].SeqInIndex < cols[j].SeqInIndex })
		nullable := false
		colNames := make([]string, len(cols))
		for i, c := range cols {
			colNames[i] = c.ColumnName
			if c.Nullable == "YES" {
				nullable = true
			}
		}
		candidates = append(candidates, Index{
			Primary: name == "PRIMARY",
			Unique:  cols[0].NonUnique == 0 && !nullable,
			Columns: colNames,
		})
	}
	ti.ChosenIndex = selectIndex(candidates, columnTypes)
	return nil
}

func selectIndex(candidates []Index, columnTypes map[string]string) *Index {
	if len(candidates) == 0 {
		return nil
	}
	tier := func(ix Index) int {
		switch {
		case ix.Primary:
			return 0
		case ix.Unique:
			return 1
		default:
			return 2
		}
	}
	best := -1
	for i, ix := range candidates {
		if best == -1 || betterIndex(ix, candidates[best], columnTypes, tier) {
			best = i
		}
	}
	chosen := candidates[best]
	return &chosen
}

func betterIndex(a, b Index, columnTypes map[string]string, tier func(Index) int) bool {
	ta, tb := tier(a), tier(b)
	if ta != tb {
		return ta < tb
	}
	aNum, bNum := coversNumericFirst(a, columnTypes), coversNumericFirst(b, columnTypes)
	if aNum != bNum {
		return aNum
	}
	if len(a.Columns) != len(b.Columns) {
		return len(a.Columns) < len(b.Columns)
	}
	return strings.Join(a.Columns, ",") < strings.Join(b.Columns, ",")
}

func coversNumericFirst(ix Index, columnTypes map[string]string) bool {
	if len(ix.Columns) == 0 {
		return false
	}
	return isNumericType(columnTypes[ix.Columns[0]])
}

func isNumericType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"decimal", "numeric", "float", "double":
		return true
	}
	return false
}

type statsRow struct {
	TableRows  int64 `db:"TABLE_ROWS"`
	AvgRowLen  int64 `db:"AVG_ROW_LENGTH"`
}

// defaultAvgRowLength is used when a table reports no statistics (a
// freshly created table with ANALYZE never run); the ChunkTable task logs
// this and recommends an ANALYZE TABLE to the operator.
const defaultAvgRowLength = 256

func loadStatistics(ctx context.Context, q Querier, schema, table string, ti *TableInfo) error {
	var rows []statsRow
	if err := q.Select(ctx, &rows, tableStatsQuery, schema, table); err != nil {
		return err
	}
	if len(rows) == 0 || rows[0].AvgRowLength() == 0 {
		ti.AvgRowLength = defaultAvgRowLength
		ti.HasStatistics = false
		if len(rows) > 0 {
			ti.RowEstimate = rows[0].TableRows
		}
		return nil
	}
	ti.RowEstimate = rows[0].TableRows
	ti.AvgRowLength = rows[0].AvgRowLength()
	ti.HasStatistics = true
	return nil
}

func (s statsRow) AvgRowLength() int64 { return s.AvgRowLen }

func loadRoutines(ctx context.Context, q Querier, schema, routineType string) ([]string, error) {
	var names []string
	err := q.Select(ctx, &names, routinesQuery, schema, routineType)
	return names, err
}

func loadEvents(ctx context.Context, q Querier, schema string) ([]string, error) {
	var names []string
	err := q.Select(ctx, &names, eventsQuery, schema)
	return names, err
}

func loadTriggers(ctx context.Context, q Querier, schema string) (map[string][]string, error) {
	var rows []struct {
		Table   string `db:"EVENT_OBJECT_TABLE"`
		Trigger string `db:"TRIGGER_NAME"`
	}
	if err := q.Select(ctx, &rows, triggersQuery, schema); err != nil {
		return nil, err
	}
	byTable := map[string][]string{}
	for _, r := range rows {
		byTable[r.Table] = append(byTable[r.Table], r.Trigger)
	}
	return byTable, nil
}

func loadUsers(ctx context.Context, q Querier) ([]string, error) {
	var names []string
	err := q.Select(ctx, &names, usersQuery)
	return names, err
}

const columnsQuery = `SELECT COLUMN_NAME, DATA_TYPE FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`

const statisticsQuery = `SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, SEQ_IN_INDEX, NULLABLE FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY INDEX_NAME, SEQ_IN_INDEX`

const tableStatsQuery = `SELECT TABLE_ROWS, AVG_ROW_LENGTH FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

const routinesQuery = `SELECT ROUTINE_NAME FROM information_schema.ROUTINES WHERE ROUTINE_SCHEMA = ? AND ROUTINE_TYPE = ?`

const eventsQuery = `SELECT EVENT_NAME FROM information_schema.EVENTS WHERE EVENT_SCHEMA = ?`

const triggersQuery = `SELECT EVENT_OBJECT_TABLE, TRIGGER_NAME FROM information_schema.TRIGGERS WHERE TRIGGER_SCHEMA = ?`

const usersQuery = `SELECT CONCAT(User, '@', Host) FROM mysql.user`
