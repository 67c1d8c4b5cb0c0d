// Package queryapp implements the natural-language query pathway: the
// pre-execution SQL validator, the LLM SQL-generation loop with
// self-correction, and query export.
package queryapp

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mapflow/backend/internal/domain/ingest"
)

// ValidationError is the structured rejection fed back to the model for
// self-correction. The message always follows "VALIDATION ERROR: ... Fix: ...".
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(problem, fix string, args ...any) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf("VALIDATION ERROR: %s Fix: %s", fmt.Sprintf(problem, args...), fix),
	}
}

// Validator checks LLM-generated SQL before execution against the live
// schema. It is constructed per request with a snapshot of the user-data
// tables.
type Validator struct {
	// schema maps table name to its column names.
	schema map[string][]string
}

// NewValidator builds a validator over a schema snapshot.
func NewValidator(schema map[string][]string) *Validator {
	return &Validator{schema: schema}
}

var (
	identRe    = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
	quotedRe   = regexp.MustCompile(`"([^"]+)"`)
	fromJoinRe = regexp.MustCompile(`(?i)\b(?:from|join)\s+(?:"?public"?\.)?("?)([a-zA-Z_][a-zA-Z0-9_]*)"?`)
	distinctRe = regexp.MustCompile(`(?i)\bselect\s+distinct\b`)
	orderByRe  = regexp.MustCompile(`(?i)\border\s+by\b`)
	aliasRe    = regexp.MustCompile(`(?i)\bas\s*$`)
)

// sqlKeywords are excluded when harvesting identifiers from clauses.
var sqlKeywords = map[string]struct{}{
	"select": {}, "distinct": {}, "from": {}, "where": {}, "and": {}, "or": {},
	"not": {}, "null": {}, "is": {}, "in": {}, "like": {}, "ilike": {}, "between": {},
	"case": {}, "when": {}, "then": {}, "else": {}, "end": {}, "as": {}, "on": {},
	"join": {}, "inner": {}, "left": {}, "right": {}, "full": {}, "outer": {}, "cross": {},
	"group": {}, "by": {}, "having": {}, "order": {}, "asc": {}, "desc": {},
	"limit": {}, "offset": {}, "union": {}, "all": {}, "exists": {}, "cast": {},
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "coalesce": {}, "nullif": {},
	"true": {}, "false": {}, "public": {}, "nulls": {}, "first": {}, "last": {},
}

// Validate runs every pre-execution check. A nil return means the query may
// run. Internal panics fail open: a validator bug must not block
// legitimate queries.
func (v *Validator) Validate(sql string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nil
		}
	}()

	if verr := v.checkSelectOnly(sql); verr != nil {
		return verr
	}
	if verr := v.checkProtectedTables(sql); verr != nil {
		return verr
	}
	if verr := v.checkDistinctOrderBy(sql); verr != nil {
		return verr
	}
	if verr := v.checkExistence(sql); verr != nil {
		return verr
	}
	return nil
}

// checkSelectOnly rejects anything but a single SELECT (or WITH...SELECT).
func (v *Validator) checkSelectOnly(sql string) *ValidationError {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(trimmed, ";") {
		return validationErrorf("Multiple SQL statements are not allowed.",
			"submit a single SELECT statement.")
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return validationErrorf("Only SELECT queries are allowed.",
			"rewrite the query as a SELECT statement.")
	}
	for _, kw := range []string{"insert", "update", "delete", "drop", "alter", "create", "truncate", "grant", "revoke"} {
		re := regexp.MustCompile(`(?i)^\s*` + kw + `\b`)
		if re.MatchString(trimmed) {
			return validationErrorf("Only SELECT queries are allowed.",
				"rewrite the query as a SELECT statement.")
		}
	}
	return nil
}

// checkProtectedTables rejects FROM/JOIN references to system tables, with
// or without the public. prefix and quoting.
func (v *Validator) checkProtectedTables(sql string) *ValidationError {
	for _, match := range fromJoinRe.FindAllStringSubmatch(sql, -1) {
		table := strings.ToLower(match[2])
		if ingest.IsProtectedTable(table) {
			return validationErrorf("Table '%s' is a protected system table and cannot be queried.",
				"query only the user-data tables listed in the schema.", table)
		}
	}
	return nil
}

// checkDistinctOrderBy enforces the SELECT DISTINCT / ORDER BY coherence
// rule: every column the ORDER BY references, including inside CASE
// expressions, must appear in the select list.
func (v *Validator) checkDistinctOrderBy(sql string) *ValidationError {
	if !distinctRe.MatchString(sql) {
		return nil
	}
	loc := orderByRe.FindStringIndex(sql)
	if loc == nil {
		return nil
	}

	selectList := selectListOf(sql)
	selectCols := identifiersIn(selectList)

	orderClause := sql[loc[1]:]
	for col := range identifiersIn(orderClause) {
		if _, ok := selectCols[col]; !ok && v.isKnownColumn(col) {
			return validationErrorf(
				"Column '%s' used in ORDER BY is not in SELECT.",
				fmt.Sprintf("add '%s' to SELECT or remove DISTINCT.", col), col)
		}
	}
	return nil
}

// selectListOf returns the text between SELECT [DISTINCT] and the
// top-level FROM.
func selectListOf(sql string) string {
	lower := strings.ToLower(sql)
	start := strings.Index(lower, "select")
	if start < 0 {
		return ""
	}
	start += len("select")
	rest := lower[start:]
	if idx := strings.Index(strings.TrimSpace(rest), "distinct"); idx == 0 {
		start += strings.Index(rest, "distinct") + len("distinct")
	}
	depth := 0
	for i := start; i < len(lower)-4; i++ {
		switch lower[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(lower[i:], "from") && isWordBoundary(lower, i, i+4) {
			return sql[start:i]
		}
	}
	return sql[start:]
}

func isWordBoundary(s string, start, end int) bool {
	if start > 0 && isIdentChar(s[start-1]) {
		return false
	}
	if end < len(s) && isIdentChar(s[end]) {
		return false
	}
	return true
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// identifiersIn harvests column-like identifiers from a clause: quoted
// names verbatim, bare names minus SQL keywords and string literals.
func identifiersIn(clause string) map[string]struct{} {
	out := make(map[string]struct{})
	// Strip single-quoted literals so 'C-Suite' never reads as a column.
	noLiterals := stripLiterals(clause)
	for _, m := range quotedRe.FindAllStringSubmatch(noLiterals, -1) {
		out[strings.ToLower(m[1])] = struct{}{}
	}
	unquoted := quotedRe.ReplaceAllString(noLiterals, " ")
	for _, ident := range identRe.FindAllString(unquoted, -1) {
		lower := strings.ToLower(ident)
		if _, kw := sqlKeywords[lower]; kw {
			continue
		}
		out[lower] = struct{}{}
	}
	return out
}

func stripLiterals(s string) string {
	var b strings.Builder
	inLiteral := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			inLiteral = !inLiteral
			b.WriteByte(' ')
			continue
		}
		if inLiteral {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// checkExistence verifies every referenced table exists, and every quoted
// or table-qualified column exists on a referenced table. The closest
// existing name is suggested on failure.
func (v *Validator) checkExistence(sql string) *ValidationError {
	referenced := make(map[string]struct{})
	for _, match := range fromJoinRe.FindAllStringSubmatch(sql, -1) {
		table := strings.ToLower(match[2])
		if _, ok := v.schema[table]; !ok {
			suggestion := closestName(table, v.tableNames())
			fix := "check the table name against the schema."
			if suggestion != "" {
				fix = fmt.Sprintf("did you mean '%s'?", suggestion)
			}
			return validationErrorf("Table '%s' does not exist.", fix, table)
		}
		referenced[table] = struct{}{}
	}
	if len(referenced) == 0 {
		return nil
	}

	available := make(map[string]struct{})
	var availableList []string
	for table := range referenced {
		for _, col := range v.schema[table] {
			lower := strings.ToLower(col)
			if _, ok := available[lower]; !ok {
				available[lower] = struct{}{}
				availableList = append(availableList, lower)
			}
		}
	}

	stripped := stripLiterals(sql)
	for _, idx := range quotedRe.FindAllStringSubmatchIndex(stripped, -1) {
		name := strings.ToLower(stripped[idx[2]:idx[3]])
		// Quoted output aliases are not column references.
		if aliasRe.MatchString(stripped[:idx[0]]) || !identRe.MatchString(name) ||
			identRe.FindString(name) != name {
			continue
		}
		if _, isTable := v.schema[name]; isTable {
			continue
		}
		if _, ok := available[name]; ok {
			continue
		}
		suggestion := closestName(name, availableList)
		fix := "check the column name against the table schema."
		if suggestion != "" {
			fix = fmt.Sprintf("did you mean '%s'?", suggestion)
		}
		return validationErrorf("Column '%s' does not exist on the referenced tables.", fix, name)
	}
	return nil
}

func (v *Validator) isKnownColumn(name string) bool {
	for _, cols := range v.schema {
		for _, col := range cols {
			if strings.EqualFold(col, name) {
				return true
			}
		}
	}
	return false
}

func (v *Validator) tableNames() []string {
	names := make([]string, 0, len(v.schema))
	for name := range v.schema {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// closestName returns the candidate with the smallest edit distance, or ""
// when nothing is close enough to be a plausible typo.
func closestName(name string, candidates []string) string {
	best := ""
	bestDist := len(name)/2 + 1 // farther than this is not a typo
	for _, c := range candidates {
		if d := editDistance(name, c); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// editDistance is the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
