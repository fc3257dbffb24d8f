package schemadump

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

type fakeQuerier struct {
	get    map[string]interface{}
	selekt map[string]interface{}
}

func (f *fakeQuerier) Get(_ context.Context, dest interface{}, query string, _ ...interface{}) error {
	for substr, v := range f.get {
		if strings.Contains(query, substr) {
			reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(v))
			return nil
		}
	}
	return nil
}

func (f *fakeQuerier) Select(_ context.Context, dest interface{}, query string, _ ...interface{}) error {
	for substr, v := range f.selekt {
		if strings.Contains(query, substr) {
			reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(v))
			return nil
		}
	}
	return nil
}

func TestTableDDLWrapsDropGuard(t *testing.T) {
	q := &fakeQuerier{get: map[string]interface{}{
		"SHOW CREATE TABLE": struct {
			Table  string `db:"Table"`
			Create string `db:"Create Table"`
		}{Table: "items", Create: "CREATE TABLE `items` (`id` int)"},
	}}
	d := New(q, CompatibilityOptions{}, false)
	ddl, issues, err := d.TableDDL(context.Background(), "shop", "items")
	if err != nil {
		t.Fatalf("TableDDL: %v", err)
	}
	if !strings.HasPrefix(ddl, "DROP TABLE IF EXISTS `shop`.`items`;\n") {
		t.Fatalf("missing drop guard: %q", ddl)
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues for plain DDL, got %v", issues)
	}
}

func TestApplyCompatibilitySurfacesDefinerWhenDisabled(t *testing.T) {
	d := New(nil, CompatibilityOptions{}, false)
	ddl, issues := d.applyCompatibility("CREATE VIEW `v` DEFINER=`root`@`localhost` SQL SECURITY DEFINER AS SELECT 1")
	if len(issues) != 1 || issues[0].Status != NeedsCompatibilityOption {
		t.Fatalf("issues = %v, want one NEEDS_COMPATIBILITY_OPTION", issues)
	}
	if !strings.Contains(ddl, "DEFINER=") {
		t.Fatal("DDL should be left unmodified when the compatibility pass is disabled")
	}
}

func TestApplyCompatibilityStripsDefinerWhenEnabled(t *testing.T) {
	d := New(nil, CompatibilityOptions{StripDefiners: true}, true)
	ddl, issues := d.applyCompatibility("CREATE VIEW `v` DEFINER=`root`@`localhost` AS SELECT 1")
	if len(issues) != 1 || issues[0].Status != Fixed {
		t.Fatalf("issues = %v, want one FIXED", issues)
	}
	if strings.Contains(ddl, "DEFINER=") {
		t.Fatalf("DEFINER clause should have been stripped: %q", ddl)
	}
}

func TestApplyCompatibilityAutoIncrementNeedsManualFix(t *testing.T) {
	d := New(nil, CompatibilityOptions{}, false)
	_, issues := d.applyCompatibility("CREATE TABLE `t` (`id` int) AUTO_INCREMENT=500")
	if len(issues) != 1 || issues[0].Status != FixManually {
		t.Fatalf("issues = %v, want one FIX_MANUALLY", issues)
	}
}

func TestQuoteUserSplitsHostPart(t *testing.T) {
	if got := quoteUser("root@localhost"); got != "'root'@'localhost'" {
		t.Fatalf("quoteUser = %q", got)
	}
}
