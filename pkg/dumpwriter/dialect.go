package dumpwriter

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// Dialect configures field/line framing for a Writer's data rows, mirroring
// the handful of output formats the loader side understands.
type Dialect struct {
	FieldTerminator string
	LineTerminator  string
	EnclosedBy      string
	EscapedBy       string
	Format          Format
}

type Format int

const (
	FormatCSV Format = iota
	FormatTSV
	FormatJSON
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, &UnsupportedFormatError{Format: s}
}

type UnsupportedFormatError struct{ Format string }

func (e *UnsupportedFormatError) Error() string { return "dumpwriter: unsupported dialect format " + e.Format }

// DefaultCSVDialect matches the conventional mysqldump/LOAD DATA defaults.
func DefaultCSVDialect() Dialect {
	return Dialect{FieldTerminator: ",", LineTerminator: "\n", EnclosedBy: `"`, EscapedBy: `\`, Format: FormatCSV}
}

func DefaultTSVDialect() Dialect {
	return Dialect{FieldTerminator: "\t", LineTerminator: "\n", Format: FormatTSV}
}

// encodeRow renders one row's fields according to the dialect. A field
// with Valid false is a true SQL NULL: JSON renders it as the JSON null
// literal, every other dialect renders it as the unquoted \N marker so
// it round-trips distinctly from an empty string. JSON ignores the
// terminator/enclosure settings and emits one JSON array per line.
func (d Dialect) encodeRow(fields []sql.NullString) string {
	if d.Format == FormatJSON {
		values := make([]json.RawMessage, len(fields))
		for i, f := range fields {
			if !f.Valid {
				values[i] = json.RawMessage("null")
				continue
			}
			b, _ := json.Marshal(f.String)
			values[i] = b
		}
		out, _ := json.Marshal(values)
		return string(out) + d.LineTerminator
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString(d.FieldTerminator)
		}
		if !f.Valid {
			b.WriteString(formatNull())
			continue
		}
		b.WriteString(d.quote(f.String))
	}
	b.WriteString(d.LineTerminator)
	return b.String()
}

func (d Dialect) quote(field string) string {
	if d.EnclosedBy == "" {
		if d.EscapedBy == "" {
			return field
		}
		return d.escape(field)
	}
	needsQuote := strings.Contains(field, d.FieldTerminator) ||
		strings.Contains(field, d.LineTerminator) ||
		strings.Contains(field, d.EnclosedBy)
	if !needsQuote {
		return field
	}
	escaped := strings.ReplaceAll(field, d.EnclosedBy, d.EscapedBy+d.EnclosedBy)
	return d.EnclosedBy + escaped + d.EnclosedBy
}

func (d Dialect) escape(field string) string {
	if !strings.Contains(field, d.FieldTerminator) && !strings.Contains(field, d.LineTerminator) {
		return field
	}
	replacer := strings.NewReplacer(
		d.FieldTerminator, d.EscapedBy+d.FieldTerminator,
		d.LineTerminator, d.EscapedBy+d.LineTerminator,
	)
	return replacer.Replace(field)
}

// nullLiteral is LOAD DATA's convention for an unquoted SQL NULL field.
const nullLiteral = "\\N"

func formatNull() string { return nullLiteral }
