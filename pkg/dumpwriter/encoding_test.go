package dumpwriter

import (
	"testing"

	"github.com/sqlshell/dbdump/pkg/cache"
)

func TestParseEncodingMode(t *testing.T) {
	cases := map[string]EncodingMode{
		"":       EncodingAuto,
		"auto":   EncodingAuto,
		"AUTO":   EncodingAuto,
		"hex":    EncodingHexOnly,
		"base64": EncodingBase64Only,
	}
	for in, want := range cases {
		got, err := ParseEncodingMode(in)
		if err != nil {
			t.Fatalf("ParseEncodingMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseEncodingMode(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseEncodingMode("bogus"); err == nil {
		t.Fatal("expected an error for an unsupported encoding_unsafe_format")
	}
}

func TestProjectColumnsAutoChoosesByType(t *testing.T) {
	cols := []cache.Column{
		{Name: "id", Type: "int"},
		{Name: "payload", Type: "blob", EncodingUnsafe: true},
		{Name: "doc", Type: "json", EncodingUnsafe: true},
	}
	_, encodings := ProjectColumns(cols, EncodingAuto)
	if encodings["payload"] != EncodingHex {
		t.Fatalf("payload encoding = %v, want Hex", encodings["payload"])
	}
	if encodings["doc"] != EncodingBase64 {
		t.Fatalf("doc encoding = %v, want Base64", encodings["doc"])
	}
	if _, ok := encodings["id"]; ok {
		t.Fatal("plain int column should not have an encoding entry")
	}
}

func TestProjectColumnsForcedModesOverrideType(t *testing.T) {
	cols := []cache.Column{
		{Name: "payload", Type: "blob", EncodingUnsafe: true},
		{Name: "doc", Type: "json", EncodingUnsafe: true},
	}
	_, hexOnly := ProjectColumns(cols, EncodingHexOnly)
	for name, enc := range hexOnly {
		if enc != EncodingHex {
			t.Fatalf("column %s encoding = %v under EncodingHexOnly, want Hex", name, enc)
		}
	}
	_, base64Only := ProjectColumns(cols, EncodingBase64Only)
	for name, enc := range base64Only {
		if enc != EncodingBase64 {
			t.Fatalf("column %s encoding = %v under EncodingBase64Only, want Base64", name, enc)
		}
	}
}

func TestEncodingDecodeFunction(t *testing.T) {
	if got := EncodingHex.DecodeFunction(); got != "UNHEX" {
		t.Fatalf("EncodingHex.DecodeFunction() = %q, want UNHEX", got)
	}
	if got := EncodingBase64.DecodeFunction(); got != "FROM_BASE64" {
		t.Fatalf("EncodingBase64.DecodeFunction() = %q, want FROM_BASE64", got)
	}
	if got := EncodingNone.DecodeFunction(); got != "" {
		t.Fatalf("EncodingNone.DecodeFunction() = %q, want empty", got)
	}
}
