// Package naming implements the dotted stem/group identifier grammar and its
// translation to and from directory distinguished names. None of it performs
// I/O; internal/directory composes it with a live Gateway.
package naming

import (
	"fmt"
	"strings"
	"unicode"
)

// Config carries the pieces of the naming scheme that are configurable per
// deployment: the component separator and the id of the root stem.
type Config struct {
	Separator string
	RootID    string
	GroupsDN  string
	BaseDN    string
}

// DefaultConfig returns the separator/root-id defaults used when a
// deployment does not override them.
func DefaultConfig(groupsDN, baseDN string) Config {
	return Config{Separator: ".", RootID: "", GroupsDN: groupsDN, BaseDN: baseDN}
}

// rbefore returns s up to and including the last occurrence of sep, or
// ("", false) if sep does not occur in s.
func rbefore(s, sep string) (string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return "", false
	}
	return s[:i+len(sep)], true
}

// ParentStem returns the id of the stem directly containing id, and false if
// id is the root stem (which has no parent).
//
//	"a.b.c"  => "a.b.", true
//	"a.b.c." => "a.b.", true
//	"a"      => "",     true
//	"a."     => "",     true
//	""       => "",     false
func (c Config) ParentStem(id string) (string, bool) {
	if id == c.RootID {
		return "", false
	}
	id = strings.TrimSuffix(id, c.Separator)
	if parent, ok := rbefore(id, c.Separator); ok {
		return parent, true
	}
	return c.RootID, true
}

// ParentStems returns every ancestor stem of id, nearest first, down to and
// including the root stem.
//
//	"a.b.c" => ["a.b.", "a.", ""]
func (c Config) ParentStems(id string) []string {
	var stems []string
	cur := id
	for {
		parent, ok := c.ParentStem(cur)
		if !ok {
			break
		}
		stems = append(stems, parent)
		cur = parent
	}
	return stems
}

// Validate reports whether id obeys the identifier grammar: a
// separator-joined sequence of non-empty alphanumeric/underscore/hyphen
// components, optionally with a trailing separator, or the root id.
func (c Config) Validate(id string) error {
	if id == c.RootID {
		return nil
	}
	trimmed := strings.TrimSuffix(id, c.Separator)
	for _, one := range strings.Split(trimmed, c.Separator) {
		if one == "" || strings.ContainsFunc(one, func(r rune) bool {
			return !isAlnum(r) && r != '_' && r != '-'
		}) {
			return fmt.Errorf("invalid sgroup id %q", id)
		}
	}
	return nil
}

// isAlnum mirrors Rust's char::is_alphanumeric, which is Unicode-aware.
func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// IsStem reports whether id names a stem (as opposed to a leaf group): the
// root id, or any id ending in the separator.
func (c Config) IsStem(id string) bool {
	return id == c.RootID || strings.HasSuffix(id, c.Separator)
}

// IsGrandchild reports whether gchild is strictly more than one level below
// the stem parent (i.e. a child of a child of parent, or deeper).
func (c Config) IsGrandchild(parent, gchild string) bool {
	sub, ok := strings.CutPrefix(gchild, parent)
	if !ok {
		return false
	}
	sub = strings.TrimSuffix(sub, c.Separator)
	return strings.Contains(sub, c.Separator)
}

// SgroupIDToDN maps an identifier onto its directory distinguished name.
func (c Config) SgroupIDToDN(id string) string {
	if id == c.RootID {
		return c.GroupsDN
	}
	return fmt.Sprintf("cn=%s,%s", id, c.GroupsDN)
}

// PeopleIDToDN maps a bare subject id onto the directory DN of a person
// entry, under the configured people subtree.
func (c Config) PeopleIDToDN(id string) string {
	return fmt.Sprintf("uid=%s,ou=people,%s", id, c.BaseDN)
}

// DNToSgroupID is the inverse of SgroupIDToDN; ok is false if dn is not a
// group DN under the configured groups subtree.
func (c Config) DNToSgroupID(dn string) (string, bool) {
	if dn == c.GroupsDN {
		return c.RootID, true
	}
	rest, ok := strings.CutSuffix(dn, ","+c.GroupsDN)
	if !ok {
		return "", false
	}
	cn, ok := strings.CutPrefix(rest, "cn=")
	if !ok {
		return "", false
	}
	return cn, true
}

// DNIsSgroup reports whether dn falls under the configured groups subtree.
func (c Config) DNIsSgroup(dn string) bool {
	return strings.HasSuffix(dn, c.GroupsDN)
}

// SgroupFilter returns the LDAP-style filter string that matches exactly the
// single entry for id: the organizational-unit root stem, or a cn equality
// match otherwise.
func (c Config) SgroupFilter(id string) string {
	if id == c.RootID {
		return "(objectClass=organizationalUnit)"
	}
	return eqFilter("cn", id)
}

// StemFilter matches any stem entry regardless of id (every stem, including
// the root, is an organizationalUnit; leaf groups are groupOfNames).
func (c Config) StemFilter() string {
	return "(objectClass=organizationalUnit)"
}

// eqFilter composes a minimal equality filter without pulling in the full
// internal/filter builder, to keep naming free of that dependency; callers
// that need escaping/composition use internal/filter directly.
func eqFilter(attr, val string) string {
	return fmt.Sprintf("(%s=%s)", attr, val)
}

// DNToURL wraps a directory DN as the ldap:/// membership URL form stored in
// member/memberURL attributes.
func DNToURL(dn string) string {
	return "ldap:///" + dn
}

// URLToDN is the inverse of DNToURL; ok is false for anything other than a
// bare "ldap:///<dn>" URL (in particular, URLs carrying a "?" search
// suffix, such as the end-dated form ParseRelationURL accepts, are rejected
// here).
func URLToDN(url string) (string, bool) {
	dn, ok := strings.CutPrefix(url, "ldap:///")
	if !ok || strings.Contains(dn, "?") {
		return "", false
	}
	return dn, true
}

// ParseRelationURL parses a direct relation URL into its DN and the verbatim
// form it is stored under once flattened: "ldap:///<dn>" yields (dn, dn,
// true); the end-dated form "ldap:///<dn>???(serverTime<<TS>)" yields
// (dn, "<dn>???(serverTime<<TS>)", true) — the end-date option is kept
// attached to the value rather than stripped, so a flattened set can still
// carry it verbatim. Anything else (in particular the opaque sql: sync
// marker) yields ok=false.
func ParseRelationURL(url string) (dn, verbatim string, ok bool) {
	rest, ok := strings.CutPrefix(url, "ldap:///")
	if !ok {
		return "", "", false
	}
	dn, opts, hasOpts := strings.Cut(rest, "???")
	if !hasOpts {
		return dn, dn, true
	}
	const prefix, suffix = "(serverTime<<", ">)"
	if !strings.HasPrefix(opts, prefix) || !strings.HasSuffix(opts, suffix) {
		return "", "", false
	}
	return dn, rest, true
}

// IsSyncMarker reports whether url is an opaque "sql:" synchronized-group
// query rather than an ldap:/// relation URL — see internal/remotesync for
// the grammar after this prefix.
func IsSyncMarker(url string) bool {
	return strings.HasPrefix(url, "sql:")
}

// DNToRDNAndParentDN splits dn into its leading RDN and the remaining parent
// DN, on the first unescaped comma.
func DNToRDNAndParentDN(dn string) (rdn, parentDN string, ok bool) {
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++
		case ',':
			return dn[:i], dn[i+1:], true
		}
	}
	return "", "", false
}
