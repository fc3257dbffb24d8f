// Package schemadump generates DDL text for schemas, tables, views,
// routines, events, triggers and users/grants, grounded on the teacher's
// DROP-IF-EXISTS-then-CREATE shape in pkg/clickhouse/clickhouse.go's
// dropTable/restoreTable pair, generalized to SHOW CREATE-driven text
// generation instead of executing the DDL directly.
package schemadump

import (
	"context"
	"fmt"
	"strings"
)

// IssueStatus classifies a compatibility-pass rewrite.
type IssueStatus int

const (
	Fixed IssueStatus = iota
	FixManually
	NeedsCompatibilityOption
)

func (s IssueStatus) String() string {
	switch s {
	case Fixed:
		return "FIXED"
	case FixManually:
		return "FIX_MANUALLY"
	case NeedsCompatibilityOption:
		return "NEEDS_COMPATIBILITY_OPTION"
	default:
		return "UNKNOWN"
	}
}

// Issue records one compatibility-pass transformation, or a blocker that
// requires an explicit compatibility option before data dumping begins.
type Issue struct {
	Description string
	Status      IssueStatus
}

// Querier is the narrow subset of *dbsession.Session the Dumper needs to
// fetch SHOW CREATE text: Get for single-row results (SHOW CREATE TABLE),
// Select for the multi-row ones (SHOW GRANTS can return several lines).
type Querier interface {
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// CompatibilityOptions selects which compatibility-pass rewrites the
// operator opted into. Issues found outside this set are surfaced as
// FIX_MANUALLY or NEEDS_COMPATIBILITY_OPTION rather than silently applied.
type CompatibilityOptions struct {
	StripDefiners       bool
	StripStorageClauses bool
	UpgradeTableOptions bool
}

// Dumper produces DDL text into an in-memory buffer per object, applying
// the optional compatibility pass and recording every rewrite as an
// Issue.
type Dumper struct {
	q       Querier
	compat  CompatibilityOptions
	enabled bool
}

func New(q Querier, compat CompatibilityOptions, compatibilityPassEnabled bool) *Dumper {
	return &Dumper{q: q, compat: compat, enabled: compatibilityPassEnabled}
}

// SchemaDDL emits `DROP DATABASE IF EXISTS` guard plus `CREATE DATABASE`.
func (d *Dumper) SchemaDDL(ctx context.Context, schema string) (string, []Issue, error) {
	var row struct {
		Schema string `db:"Database"`
		Create string `db:"Create Database"`
	}
	if err := d.q.Get(ctx, &row, fmt.Sprintf("SHOW CREATE DATABASE `%s`", schema)); err != nil {
		return "", nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DROP DATABASE IF EXISTS `%s`;\n", schema)
	b.WriteString(row.Create)
	b.WriteString(";\n")
	return b.String(), nil, nil
}

// TableDDL emits the drop-if-exists guard plus the server's own
// `CREATE TABLE` text, with the compatibility pass applied if enabled.
func (d *Dumper) TableDDL(ctx context.Context, schema, table string) (string, []Issue, error) {
	var row struct {
		Table  string `db:"Table"`
		Create string `db:"Create Table"`
	}
	if err := d.q.Get(ctx, &row, fmt.Sprintf("SHOW CREATE TABLE `%s`.`%s`", schema, table)); err != nil {
		return "", nil, err
	}
	create, issues := d.applyCompatibility(row.Create)
	var b strings.Builder
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS `%s`.`%s`;\n", schema, table)
	b.WriteString(create)
	b.WriteString(";\n")
	return b.String(), issues, nil
}

// ViewDDL emits the drop-if-exists guard plus the server's own
// `CREATE VIEW` text.
func (d *Dumper) ViewDDL(ctx context.Context, schema, view string) (string, []Issue, error) {
	var row struct {
		View        string `db:"View"`
		Create      string `db:"Create View"`
		CharSet     string `db:"character_set_client"`
		Collation   string `db:"collation_connection"`
	}
	if err := d.q.Get(ctx, &row, fmt.Sprintf("SHOW CREATE VIEW `%s`.`%s`", schema, view)); err != nil {
		return "", nil, err
	}
	create, issues := d.applyCompatibility(row.Create)
	var b strings.Builder
	fmt.Fprintf(&b, "DROP VIEW IF EXISTS `%s`.`%s`;\n", schema, view)
	b.WriteString(create)
	b.WriteString(";\n")
	return b.String(), issues, nil
}

// RoutineDDL emits the drop-if-exists guard plus the server's own
// `CREATE PROCEDURE`/`CREATE FUNCTION` text. kind is "PROCEDURE" or
// "FUNCTION", matching information_schema.ROUTINES.ROUTINE_TYPE.
func (d *Dumper) RoutineDDL(ctx context.Context, schema, routine, kind string) (string, error) {
	query := fmt.Sprintf("SHOW CREATE %s `%s`.`%s`", kind, schema, routine)
	var create string
	if kind == "FUNCTION" {
		var row struct {
			Name   string `db:"Function"`
			Create string `db:"Create Function"`
		}
		if err := d.q.Get(ctx, &row, query); err != nil {
			return "", err
		}
		create = row.Create
	} else {
		var row struct {
			Name   string `db:"Procedure"`
			Create string `db:"Create Procedure"`
		}
		if err := d.q.Get(ctx, &row, query); err != nil {
			return "", err
		}
		create = row.Create
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DROP %s IF EXISTS `%s`.`%s`;\n", kind, schema, routine)
	b.WriteString(create)
	b.WriteString(";\n")
	return b.String(), nil
}

// EventDDL emits the drop-if-exists guard plus the server's own
// `CREATE EVENT` text.
func (d *Dumper) EventDDL(ctx context.Context, schema, event string) (string, error) {
	var row struct {
		Name   string `db:"Event"`
		Create string `db:"Create Event"`
	}
	if err := d.q.Get(ctx, &row, fmt.Sprintf("SHOW CREATE EVENT `%s`.`%s`", schema, event)); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DROP EVENT IF EXISTS `%s`.`%s`;\n", schema, event)
	b.WriteString(row.Create)
	b.WriteString(";\n")
	return b.String(), nil
}

// TriggerDDL emits the drop-if-exists guard plus the server's own
// `CREATE TRIGGER` text for one trigger defined on schema.table.
func (d *Dumper) TriggerDDL(ctx context.Context, schema, trigger string) (string, error) {
	var row struct {
		Name   string `db:"Trigger"`
		Create string `db:"SQL Original Statement"`
	}
	if err := d.q.Get(ctx, &row, fmt.Sprintf("SHOW CREATE TRIGGER `%s`.`%s`", schema, trigger)); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DROP TRIGGER IF EXISTS `%s`.`%s`;\n", schema, trigger)
	b.WriteString(row.Create)
	b.WriteString(";\n")
	return b.String(), nil
}

// UsersSQL emits CREATE USER and GRANT statements for the given users,
// consumed to build @.users.sql when the job opted into dumping users.
func (d *Dumper) UsersSQL(ctx context.Context, users []string) (string, error) {
	var b strings.Builder
	for _, user := range users {
		var createStmts []string
		if err := d.q.Select(ctx, &createStmts, fmt.Sprintf("SHOW CREATE USER %s", quoteUser(user))); err != nil {
			return "", err
		}
		for _, stmt := range createStmts {
			fmt.Fprintf(&b, "%s;\n", stmt)
		}
		var grants []string
		if err := d.q.Select(ctx, &grants, fmt.Sprintf("SHOW GRANTS FOR %s", quoteUser(user))); err != nil {
			return "", err
		}
		for _, g := range grants {
			fmt.Fprintf(&b, "%s;\n", g)
		}
	}
	return b.String(), nil
}

func quoteUser(user string) string {
	parts := strings.SplitN(user, "@", 2)
	if len(parts) != 2 {
		return "'" + user + "'"
	}
	return fmt.Sprintf("'%s'@'%s'", parts[0], parts[1])
}
