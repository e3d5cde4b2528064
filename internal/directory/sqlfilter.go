package directory

import (
	"fmt"
	"strings"
)

// compileFilterSQL translates a filter string into a SQL boolean expression
// over the object_classes/attrs columns, so Postgres/CockroachDB can narrow
// the subtree scan before rows ever reach evalFilter, exercising the GIN
// index on attrs via the @> containment and ? key-existence operators.
//
// It covers exactly the filter shapes internal/filter's composition
// functions produce. Placeholder numbers continue from nextArg so the
// fragment can be spliced into a query that already bound earlier
// placeholders. ok is false when the filter isn't one compileFilterSQL
// recognizes (an AND drops any operand it cannot translate, down to TRUE if
// none is left, and still reports ok) — callers must then fall back to
// evalFilter alone for that part of the expression, never treat ok=false as
// "matches everything".
//
// compileFilterSQL is a narrowing optimization, not a correctness
// boundary: every row it lets through is still re-checked by evalFilter
// before counting toward a caller's sizeLimit, so an overly permissive
// translation (or skipping translation entirely) can only cost selectivity,
// never return a false match.
func compileFilterSQL(filter string, nextArg int) (sqlExpr string, args []any, newNextArg int, ok bool) {
	filter = strings.TrimSpace(filter)

	switch {
	case filter == "(objectClass=*)":
		return "TRUE", nil, nextArg, true

	case strings.HasPrefix(filter, "(objectClass="):
		val := strings.TrimSuffix(strings.TrimPrefix(filter, "(objectClass="), ")")
		expr := fmt.Sprintf("$%d = ANY(object_classes)", nextArg)
		return expr, []any{unescapeFilterValue(val)}, nextArg + 1, true

	case strings.HasPrefix(filter, "(cn="):
		val := strings.TrimSuffix(strings.TrimPrefix(filter, "(cn="), ")")
		if strings.HasSuffix(val, ".*") {
			prefix := unescapeFilterValue(strings.TrimSuffix(val, "*"))
			expr := fmt.Sprintf(
				"EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(attrs->'cn', '[]'::jsonb)) v WHERE v LIKE $%d ESCAPE '\\')",
				nextArg,
			)
			return expr, []any{likePrefixPattern(prefix)}, nextArg + 1, true
		}
		return attrEqualsSQL("cn", unescapeFilterValue(val), nextArg)

	case strings.HasPrefix(filter, "(member="):
		val := strings.TrimSuffix(strings.TrimPrefix(filter, "(member="), ")")
		return attrEqualsSQL("member", val, nextArg)

	case strings.HasPrefix(filter, "(|"):
		return compileCombinator(filter, "(|", " OR ", nextArg, true)

	case strings.HasPrefix(filter, "(&"):
		return compileCombinator(filter, "(&", " AND ", nextArg, false)

	case strings.HasPrefix(filter, "(!"):
		inner := strings.TrimSuffix(strings.TrimPrefix(filter, "(!"), ")")
		sub, subArgs, next, subOK := compileFilterSQL(inner, nextArg)
		if !subOK {
			return "", nil, nextArg, false
		}
		return "NOT (" + sub + ")", subArgs, next, true

	case strings.HasPrefix(filter, "(") && strings.Contains(filter, "="):
		body := strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
		parts := strings.SplitN(body, "=", 2)
		if len(parts) != 2 {
			return "", nil, nextArg, false
		}
		attr, val := parts[0], parts[1]
		if val == "*" {
			expr := fmt.Sprintf("attrs ? $%d", nextArg)
			return expr, []any{attr}, nextArg + 1, true
		}
		return attrEqualsSQL(attr, unescapeFilterValue(val), nextArg)

	default:
		return "", nil, nextArg, false
	}
}

// attrEqualsSQL builds a JSONB containment check that attr's value list
// holds val: attrs @> '{"attr":["val"]}', the idiom that lets the GIN index
// on attrs serve the query.
func attrEqualsSQL(attr, val string, nextArg int) (string, []any, int, bool) {
	expr := fmt.Sprintf("attrs @> jsonb_build_object($%d::text, jsonb_build_array($%d::text))", nextArg, nextArg+1)
	return expr, []any{attr, val}, nextArg + 2, true
}

// compileCombinator compiles an (&...)/(|...) node. allMustCompile is true
// for OR, where dropping an untranslatable operand could exclude a real
// match; AND can always drop operands it can't translate since dropping one
// conjunct only widens (never narrows past a true match) the SQL-side set.
func compileCombinator(filter, prefix, joiner string, nextArg int, allMustCompile bool) (string, []any, int, bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(filter, prefix), ")")

	var parts []string
	var args []any
	for _, sub := range splitFilters(inner) {
		expr, subArgs, next, ok := compileFilterSQL(sub, nextArg)
		if !ok {
			if allMustCompile {
				return "", nil, nextArg, false
			}
			continue
		}
		parts = append(parts, expr)
		args = append(args, subArgs...)
		nextArg = next
	}

	if len(parts) == 0 {
		if allMustCompile {
			return "", nil, nextArg, false
		}
		return "TRUE", nil, nextArg, true
	}

	return "(" + strings.Join(parts, joiner) + ")", args, nextArg, true
}

// likePrefixPattern turns a literal prefix into a SQL LIKE pattern matching
// "prefix" followed by anything, escaping the characters LIKE treats
// specially so a literal % or _ in the prefix isn't mistaken for a wildcard.
func likePrefixPattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
