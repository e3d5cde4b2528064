// Package directory implements the Gateway contract: read one entry, search
// entries by filter, add/modify/delete an entry, and read a flattened
// multi-valued attribute. The protocol this historically spoke (LDAP) is out
// of scope; what's left is the shape of the contract, backed here by a
// Postgres-compatible store (see postgres.go) or an in-memory stand-in for
// tests (see memory.go).
package directory

import "context"

// Entry is one directory entry: a distinguished name, its object classes,
// and its multi-valued attributes.
type Entry struct {
	DN            string
	ObjectClasses []string
	Attrs         map[string][]string
}

// Attr returns the values of attr on e, or nil if absent.
func (e Entry) Attr(attr string) []string {
	return e.Attrs[attr]
}

// Mod is a single add/delete/replace of one attribute's values, the
// directory-level analogue of groupad.Mod applied to a concrete attribute
// name rather than an Mright.
type Mod struct {
	Verb   ModVerb
	Attr   string
	Values []string
}

// ModVerb is the directory modification verb.
type ModVerb int

const (
	ModVerbAdd ModVerb = iota
	ModVerbDelete
	ModVerbReplace
)

// Gateway is the contract every backend (Postgres-backed or in-memory) must
// satisfy. All methods take a context so a backend may cancel/trace the
// call. The only retrying is internal to the Postgres backend in its
// CockroachDB mode, whose write transactions are retried on serialization
// failures; otherwise callers that need retry semantics wrap the call
// themselves.
type Gateway interface {
	// Read returns the single entry at dn with the requested attributes, or
	// (nil, nil) if it does not exist. Pass a nil attrs slice to read every
	// attribute.
	Read(ctx context.Context, dn string, attrs []string) (*Entry, error)

	// ReadOneMultiAttr returns the values of attr at dn, or (nil, false) if dn
	// does not exist. An existing entry with no values for attr reads back as
	// ok=true with no values (the returned slice may be nil).
	ReadOneMultiAttr(ctx context.Context, dn, attr string) ([]string, bool, error)

	// ReadFlattenedMembers returns the flattened "member" relation at dn,
	// normalizing a single empty-string placeholder value (the directory
	// convention for "no members yet") down to an empty slice.
	ReadFlattenedMembers(ctx context.Context, dn string) ([]string, error)

	// Search returns every entry under base matching filter, attributes
	// limited to attrs (nil for all), capped at sizeLimit entries (0 for
	// unlimited).
	Search(ctx context.Context, base, filter string, attrs []string, sizeLimit int) ([]Entry, error)

	// IsDNMatchingFilter reports whether the single entry at dn matches
	// filter.
	IsDNMatchingFilter(ctx context.Context, dn, filter string) (bool, error)

	// OneMatchesFilter reports whether at least one entry under base matches
	// filter, stopping at the first match.
	OneMatchesFilter(ctx context.Context, base, filter string) (bool, error)

	// Add creates a new entry at dn with the given object classes and
	// attributes.
	Add(ctx context.Context, dn string, objectClasses []string, attrs map[string][]string) error

	// Modify applies mods to the entry at dn.
	Modify(ctx context.Context, dn string, mods []Mod) error

	// Delete removes the entry at dn.
	Delete(ctx context.Context, dn string) error
}
