package dumpwriter

import (
	"fmt"
	"strings"

	"github.com/sqlshell/dbdump/pkg/cache"
)

// EncodingMode selects how encoding-unsafe columns are represented across
// an entire job, a job-configuration toggle rather than a per-column
// type inference.
type EncodingMode int

const (
	// EncodingAuto picks hex for binary-like types (blob, binary,
	// varbinary) and base64 for everything else flagged unsafe.
	EncodingAuto EncodingMode = iota
	// EncodingHexOnly forces hex for every encoding-unsafe column.
	EncodingHexOnly
	// EncodingBase64Only forces base64 for every encoding-unsafe column.
	EncodingBase64Only
)

// ParseEncodingMode maps a job-configuration string to an EncodingMode.
func ParseEncodingMode(s string) (EncodingMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return EncodingAuto, nil
	case "hex":
		return EncodingHexOnly, nil
	case "base64":
		return EncodingBase64Only, nil
	}
	return 0, fmt.Errorf("dumpwriter: unsupported encoding_unsafe_format %q", s)
}

// DecodeFunction returns the MySQL function name that inverts this
// encoding, for the table descriptor's decode-columns map. Returns "" for
// EncodingNone.
func (e Encoding) DecodeFunction() string {
	switch e {
	case EncodingHex:
		return "UNHEX"
	case EncodingBase64:
		return "FROM_BASE64"
	default:
		return ""
	}
}

// ProjectColumns decides, per encoding-unsafe column, which encoding to
// apply under mode. EncodingAuto infers hex for binary-like types and
// base64 otherwise; EncodingHexOnly/EncodingBase64Only force a single
// encoding across every unsafe column, mirroring a job-wide flag rather
// than per-column type inference.
func ProjectColumns(cols []cache.Column, mode EncodingMode) ([]ColumnMeta, map[string]Encoding) {
	meta := make([]ColumnMeta, len(cols))
	encodings := map[string]Encoding{}
	for i, c := range cols {
		meta[i] = ColumnMeta{Name: c.Name, Type: c.Type, EncodingUnsafe: c.EncodingUnsafe}
		if !c.EncodingUnsafe {
			continue
		}
		switch mode {
		case EncodingHexOnly:
			encodings[c.Name] = EncodingHex
		case EncodingBase64Only:
			encodings[c.Name] = EncodingBase64
		default:
			if strings.Contains(strings.ToLower(c.Type), "blob") || strings.Contains(strings.ToLower(c.Type), "binary") {
				encodings[c.Name] = EncodingHex
			} else {
				encodings[c.Name] = EncodingBase64
			}
		}
	}
	return meta, encodings
}
