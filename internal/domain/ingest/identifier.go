package ingest

import (
	"regexp"
	"strings"
)

// identifierPattern matches valid SQL identifiers for dynamically created
// tables and columns.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// underscoreRun collapses the doubled underscores left behind when adjacent
// runes are dropped ("Price ($ USD)" -> price_usd, not price__usd).
var underscoreRun = regexp.MustCompile(`_+`)

// ProtectedTables is the set of operational tables that must never be
// created, written through the pipeline, or exposed to the LLM.
var ProtectedTables = map[string]struct{}{
	"import_history":    {},
	"mapping_errors":    {},
	"table_metadata":    {},
	"uploaded_files":    {},
	"users":             {},
	"file_imports":      {},
	"import_jobs":       {},
	"import_duplicates": {},
	"query_messages":    {},
	"query_threads":     {},
	"llm_instructions":  {},
	"spatial_ref_sys":   {},
	"upload_sessions":   {},
	"schema_migrations": {},
}

// IsProtectedTable reports whether name refers to a protected system table.
func IsProtectedTable(name string) bool {
	_, ok := ProtectedTables[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// IsValidIdentifier reports whether s is a legal table or column identifier.
func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// SanitizeIdentifier rewrites an arbitrary header or table name into a legal
// SQL identifier: lowercased, invalid runes replaced with underscores, and a
// leading underscore added when the name would start with a digit.
func SanitizeIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '/':
			b.WriteByte('_')
		default:
			// Drop anything else (punctuation, non-ASCII)
		}
	}
	out := underscoreRun.ReplaceAllString(b.String(), "_")
	out = strings.Trim(out, "_")
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// SafeTableName sanitizes a requested table name and suffixes it when it
// collides with a protected system table (e.g. users -> users_user_data).
func SafeTableName(name string) string {
	sanitized := SanitizeIdentifier(name)
	if IsProtectedTable(sanitized) {
		return sanitized + "_user_data"
	}
	return sanitized
}
