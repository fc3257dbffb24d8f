package dumpconfig

import "path/filepath"

// SchemaFilter implements cache.SchemaFilter over the job's
// inclusion/exclusion glob sets. Exclusion wins over inclusion;
// an empty inclusion set means "everything not excluded."
type SchemaFilter struct {
	f Filter
}

func NewSchemaFilter(f Filter) *SchemaFilter { return &SchemaFilter{f: f} }

func (s *SchemaFilter) IncludesSchema(schema string) bool {
	return matches(schema, s.f.IncludeSchemas, s.f.ExcludeSchemas)
}

// IncludesTable matches against both the bare table name and the
// schema-qualified name, so a pattern list can use either form.
func (s *SchemaFilter) IncludesTable(schema, table string) bool {
	qualified := schema + "." + table
	if matchesAny(qualified, s.f.ExcludeTables) || matchesAny(table, s.f.ExcludeTables) {
		return false
	}
	if len(s.f.IncludeTables) == 0 {
		return true
	}
	return matchesAny(qualified, s.f.IncludeTables) || matchesAny(table, s.f.IncludeTables)
}

func (s *SchemaFilter) IncludesUser(user string) bool {
	return matches(user, s.f.IncludeUsers, s.f.ExcludeUsers)
}

func matches(name string, include, exclude []string) bool {
	if matchesAny(name, exclude) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return matchesAny(name, include)
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
