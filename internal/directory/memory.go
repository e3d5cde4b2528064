package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Gateway with no I/O, used by unit tests of
// naming/authz/flatten logic that need a directory to read from and write
// to but shouldn't have to stand up Postgres to do it.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemory returns an empty in-memory Gateway.
func NewMemory() *Memory {
	return &Memory{entries: map[string]*Entry{}}
}

var _ Gateway = (*Memory)(nil)

func cloneEntry(e *Entry) *Entry {
	out := &Entry{DN: e.DN, ObjectClasses: append([]string(nil), e.ObjectClasses...), Attrs: map[string][]string{}}
	for k, v := range e.Attrs {
		out.Attrs[k] = append([]string(nil), v...)
	}
	return out
}

func (m *Memory) Read(_ context.Context, dn string, attrs []string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[dn]
	if !ok {
		return nil, nil
	}

	out := cloneEntry(e)
	if attrs == nil {
		return out, nil
	}

	filtered := map[string][]string{}
	for _, a := range attrs {
		if v, ok := out.Attrs[a]; ok {
			filtered[a] = v
		}
	}
	out.Attrs = filtered

	return out, nil
}

func (m *Memory) ReadOneMultiAttr(_ context.Context, dn, attr string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[dn]
	if !ok {
		return nil, false, nil
	}

	return append([]string(nil), e.Attrs[attr]...), true, nil
}

func (m *Memory) ReadFlattenedMembers(ctx context.Context, dn string) ([]string, error) {
	vals, ok, err := m.ReadOneMultiAttr(ctx, dn, "member")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound(dn)
	}
	if len(vals) == 1 && vals[0] == "" {
		return []string{}, nil
	}
	return vals, nil
}

// evalFilter evaluates a filter string against e. It recognizes exactly the
// closed set of filter shapes internal/filter's composition functions
// produce — attribute equality/presence, cn prefix wildcards, member
// equality, and (&)/(|)/(!) combinators — rather than a general LDAP filter
// grammar, since that closed set is all any caller ever builds.
func evalFilter(e *Entry, filter string) bool {
	filter = strings.TrimSpace(filter)
	switch {
	case filter == "(objectClass=*)":
		return true
	case strings.HasPrefix(filter, "(objectClass="):
		val := strings.TrimSuffix(strings.TrimPrefix(filter, "(objectClass="), ")")
		return containsString(e.ObjectClasses, unescapeFilterValue(val))
	case strings.HasPrefix(filter, "(cn="):
		val := strings.TrimSuffix(strings.TrimPrefix(filter, "(cn="), ")")
		if strings.HasSuffix(val, ".*") {
			prefix := strings.TrimSuffix(val, "*")
			for _, cn := range e.Attrs["cn"] {
				if strings.HasPrefix(cn, prefix) {
					return true
				}
			}
			return false
		}
		return containsString(e.Attrs["cn"], unescapeFilterValue(val))
	case strings.HasPrefix(filter, "(member="):
		val := strings.TrimSuffix(strings.TrimPrefix(filter, "(member="), ")")
		return containsString(e.Attrs["member"], val)
	case strings.HasPrefix(filter, "(|"):
		inner := strings.TrimSuffix(strings.TrimPrefix(filter, "(|"), ")")
		for _, sub := range splitFilters(inner) {
			if evalFilter(e, sub) {
				return true
			}
		}
		return false
	case strings.HasPrefix(filter, "(&"):
		inner := strings.TrimSuffix(strings.TrimPrefix(filter, "(&"), ")")
		for _, sub := range splitFilters(inner) {
			if !evalFilter(e, sub) {
				return false
			}
		}
		return true
	case strings.HasPrefix(filter, "(!"):
		inner := strings.TrimSuffix(strings.TrimPrefix(filter, "(!"), ")")
		return !evalFilter(e, inner)
	case strings.HasPrefix(filter, "(") && strings.Contains(filter, "="):
		body := strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
		parts := strings.SplitN(body, "=", 2)
		if len(parts) != 2 {
			return false
		}
		attr, val := parts[0], parts[1]
		if val == "*" {
			return len(e.Attrs[attr]) > 0
		}
		return containsString(e.Attrs[attr], unescapeFilterValue(val))
	default:
		return false
	}
}

func (m *Memory) Search(_ context.Context, base, filter string, attrs []string, sizeLimit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var dns []string
	for dn := range m.entries {
		if dn == base || strings.HasSuffix(dn, ","+base) {
			dns = append(dns, dn)
		}
	}
	sort.Strings(dns)

	var out []Entry
	for _, dn := range dns {
		e := m.entries[dn]
		if !evalFilter(e, filter) {
			continue
		}

		clone := cloneEntry(e)
		if attrs != nil {
			filtered := map[string][]string{}
			for _, a := range attrs {
				if v, ok := clone.Attrs[a]; ok {
					filtered[a] = v
				}
			}
			clone.Attrs = filtered
		}

		out = append(out, *clone)
		if sizeLimit > 0 && len(out) >= sizeLimit {
			break
		}
	}

	return out, nil
}

func (m *Memory) IsDNMatchingFilter(_ context.Context, dn, filter string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[dn]
	if !ok {
		return false, nil
	}

	return evalFilter(e, filter), nil
}

func (m *Memory) OneMatchesFilter(ctx context.Context, base, filter string) (bool, error) {
	entries, err := m.Search(ctx, base, filter, []string{""}, 1)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

func (m *Memory) Add(_ context.Context, dn string, objectClasses []string, attrs map[string][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[dn]; ok {
		return ErrAlreadyExists(dn)
	}

	entry := &Entry{DN: dn, ObjectClasses: append([]string(nil), objectClasses...), Attrs: map[string][]string{}}
	for k, v := range attrs {
		entry.Attrs[k] = append([]string(nil), v...)
	}
	m.entries[dn] = entry

	return nil
}

func (m *Memory) Modify(_ context.Context, dn string, mods []Mod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[dn]
	if !ok {
		return ErrNotFound(dn)
	}

	for _, mod := range mods {
		switch mod.Verb {
		case ModVerbReplace:
			e.Attrs[mod.Attr] = append([]string(nil), mod.Values...)
		case ModVerbAdd:
			e.Attrs[mod.Attr] = append(e.Attrs[mod.Attr], mod.Values...)
		case ModVerbDelete:
			e.Attrs[mod.Attr] = removeValues(e.Attrs[mod.Attr], mod.Values)
		}
	}

	return nil
}

func removeValues(existing, toRemove []string) []string {
	remove := map[string]bool{}
	for _, v := range toRemove {
		remove[v] = true
	}

	var out []string
	for _, v := range existing {
		if !remove[v] {
			out = append(out, v)
		}
	}

	return out
}

func (m *Memory) Delete(_ context.Context, dn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[dn]; !ok {
		return ErrNotFound(dn)
	}

	delete(m.entries, dn)

	return nil
}
