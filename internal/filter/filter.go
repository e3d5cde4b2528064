// Package filter builds LDAP-style search filter strings: the composition
// primitives the rest of groupad uses to describe "all groups this subject
// can read", "all direct children of this stem", and so on, without any
// package depending on how those filters are eventually evaluated.
package filter

import "strings"

// True matches every entry.
func True() string { return "(objectClass=*)" }

// Stem matches group-shaped entries, mirroring the historical
// groupOfNames object class check.
func Stem() string { return "(objectClass=groupOfNames)" }

// Eq composes an equality filter, escaping val per RFC 4515.
func Eq(attr, val string) string {
	return "(" + attr + "=" + Escape(val) + ")"
}

// Present composes a presence filter.
func Present(attr string) string {
	return "(" + attr + "=*)"
}

// Not negates a filter.
func Not(f string) string {
	return "(!" + f + ")"
}

// And composes a conjunction; a single-element input is returned unwrapped.
func And(filters []string) string {
	return joinOp("&", filters)
}

// Or composes a disjunction; a single-element input is returned unwrapped.
func Or(filters []string) string {
	return joinOp("|", filters)
}

func joinOp(op string, filters []string) string {
	if len(filters) == 1 {
		return filters[0]
	}
	return "(" + op + strings.Join(filters, "") + ")"
}

// Member matches entries whose member attribute holds dn.
func Member(dn string) string {
	return "(member=" + dn + ")"
}

// SgroupChildren matches the direct and indirect children of the stem id
// (every cn starting with id.). id may be given with or without its
// trailing separator (a stem's canonical id carries one, e.g. "a.b."); it
// is stripped before building the prefix so either form matches the same
// children. The root stem (id == "") has no meaningful prefix of its own —
// callers asking for "root's children" should use True() instead.
func SgroupChildren(id string) string {
	id = strings.TrimSuffix(id, ".")
	return "(cn=" + Escape(id) + ".*)"
}

// RDN composes an equality filter for a bare cn, used to match the direct
// children of a stem by relative name.
func RDN(cn string) string {
	return Eq("cn", cn)
}

// SgroupSelfAndChildren matches the stem/group id itself plus everything
// beneath it, the filter shape used to compose "I hold a right on this
// stem, which covers it and all its descendants" for inherited-rights
// search. The root stem has no cn of its own and is an ancestor of every
// entry, so id="" reduces to True().
func SgroupSelfAndChildren(id string) string {
	if id == "" {
		return True()
	}
	return Or([]string{RDN(id), SgroupChildren(id)})
}

// Escape applies the RFC 4515 escaping rules for filter assertion values:
// backslash, the two wildcard/grouping characters that would otherwise be
// interpreted by the filter grammar, and the NUL byte.
func Escape(val string) string {
	var b strings.Builder
	for _, r := range val {
		switch r {
		case '\\':
			b.WriteString(`\5c`)
		case '*':
			b.WriteString(`\2a`)
		case '(':
			b.WriteString(`\28`)
		case ')':
			b.WriteString(`\29`)
		case 0:
			b.WriteString(`\00`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
