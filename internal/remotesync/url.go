// Package remotesync implements the remote-SQL synchronization loop: parsing
// a synchronized group's sync-URL, executing it against a configured
// external SQL source, translating the result to subject DNs, and driving
// internal/flatten's recompute with the resulting direct Member set.
package remotesync

import (
	"fmt"
	"strings"
	"unicode"
)

// SubjectRef names the directory branch and identifying attribute a sync
// query's opaque result rows are resolved against (the "subject=" clause).
type SubjectRef struct {
	BaseDN string
	IDAttr string
}

// Query is a parsed sync URL: which configured remote to query, an optional
// subject-resolution rule, and the literal SELECT statement to run.
type Query struct {
	RemoteName  string
	Subject     *SubjectRef
	SelectQuery string
}

// String renders q back to its wire grammar. Round-trips byte-for-byte with
// ParseSyncURL for any URL ParseSyncURL itself produced (not guaranteed for
// arbitrary whitespace variants of hand-written input).
func (q Query) String() string {
	var opt string
	if q.Subject != nil {
		opt = fmt.Sprintf(" : subject=%s?%s", q.Subject.BaseDN, q.Subject.IDAttr)
	}
	return fmt.Sprintf("sql: remote=%s%s : %s", q.RemoteName, opt, q.SelectQuery)
}

// ParseSyncURL parses a relation value as a sync query. A value that isn't
// "sql:"-prefixed at all is not a sync query: ParseSyncURL returns (nil,
// nil), mirroring the distinction the original makes between "not a sync
// URL" (Ok(None)) and "a malformed one" (Err).
//
// Grammar (whitespace tolerated around every "=" and ":"):
//
//	"sql:" "remote=" <name> ":" [ "subject=" <base-dn> "?" <id-attr> ":" ] <select-statement>
func ParseSyncURL(rawURL string) (*Query, error) {
	rest, ok := strings.CutPrefix(rawURL, "sql:")
	if !ok {
		return nil, nil
	}
	rest = trimLeftSpace(rest)

	remoteName, rest, ok := getParam("remote", rest)
	if !ok {
		return nil, fmt.Errorf("remote= is missing in %s", rawURL)
	}

	var subject *SubjectRef
	if raw, rest2, ok := getParam("subject", rest); ok {
		baseDN, idAttr, ok := beforeAndAfterByte(raw, '?')
		if !ok {
			return nil, fmt.Errorf("expected ou=xxx,dc=xxx?uid, got %s", raw)
		}
		subject = &SubjectRef{BaseDN: baseDN, IDAttr: idAttr}
		rest = rest2
	}

	return &Query{RemoteName: remoteName, Subject: subject, SelectQuery: rest}, nil
}

// getParam looks for "<name>=<value>:" at the front of s and, if found,
// returns the trimmed value and whatever follows the separating ':'.
func getParam(name, s string) (value, rest string, ok bool) {
	s, ok = strings.CutPrefix(s, name)
	if !ok {
		return "", "", false
	}
	s, ok = strings.CutPrefix(trimLeftSpace(s), "=")
	if !ok {
		return "", "", false
	}
	before, after, ok := beforeAndAfterByte(s, ':')
	if !ok {
		return "", "", false
	}
	return trimRightSpace(trimLeftSpace(before)), trimLeftSpace(after), true
}

func beforeAndAfterByte(s string, c byte) (before, after string, ok bool) {
	i := strings.IndexByte(s, c)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func trimLeftSpace(s string) string  { return strings.TrimLeftFunc(s, unicode.IsSpace) }
func trimRightSpace(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }
