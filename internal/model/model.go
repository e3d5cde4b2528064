// Package model holds the wire-level domain types shared by every layer of
// groupad: rights, modification verbs, and the stem/group/subject shapes the
// read and write APIs return. It imports nothing else in this module, so
// every other package can depend on it without risking an import cycle.
package model

import "fmt"

// Mright is one of the four relations a subject can hold against a group:
// plain membership, or one of the three graduated rights.
type Mright int

const (
	MrightMember Mright = iota
	MrightReader
	MrightUpdater
	MrightAdmin
)

func (m Mright) String() string {
	switch m {
	case MrightMember:
		return "member"
	case MrightReader:
		return "reader"
	case MrightUpdater:
		return "updater"
	case MrightAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseMright parses the lowercase wire form of Mright.
func ParseMright(s string) (Mright, error) {
	switch s {
	case "member":
		return MrightMember, nil
	case "reader":
		return MrightReader, nil
	case "updater":
		return MrightUpdater, nil
	case "admin":
		return MrightAdmin, nil
	default:
		return 0, fmt.Errorf("invalid mright %q", s)
	}
}

// Attr names the attribute that holds the *direct* relation URLs for this
// Mright. Every Mright, including plain membership, is stored directly as a
// "memberURL;x-<role>" URL-valued attribute; the unqualified "member"
// attribute is reserved for the flattened closure (see
// internal/flatten.DefaultFlattenedAttr), so a direct assignment is never
// mistaken for an already-flattened one.
func (m Mright) Attr() string {
	return "memberURL;x-" + m.String()
}

// AllMrights lists every Mright, in ascending strength order.
func AllMrights() []Mright {
	return []Mright{MrightMember, MrightReader, MrightUpdater, MrightAdmin}
}

// Right is one of the three graduated rights (Mright without plain
// membership).
type Right int

const (
	RightReader Right = iota
	RightUpdater
	RightAdmin
)

func (r Right) String() string {
	switch r {
	case RightReader:
		return "reader"
	case RightUpdater:
		return "updater"
	case RightAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Mright converts r to its corresponding Mright.
func (r Right) Mright() Mright {
	switch r {
	case RightReader:
		return MrightReader
	case RightUpdater:
		return MrightUpdater
	case RightAdmin:
		return MrightAdmin
	default:
		return MrightReader
	}
}

// Attr is shorthand for r.Mright().Attr().
func (r Right) Attr() string { return r.Mright().Attr() }

// AllowedRights returns every right that satisfies a requirement of r, best
// (most privileged) first: Admin satisfies everything, Reader only itself.
func (r Right) AllowedRights() []Right {
	switch r {
	case RightReader:
		return []Right{RightAdmin, RightUpdater, RightReader}
	case RightUpdater:
		return []Right{RightAdmin, RightUpdater}
	case RightAdmin:
		return []Right{RightAdmin}
	default:
		return nil
	}
}

// AllowedAttrs is AllowedRights mapped through Attr, for building
// "does this subject hold a right that satisfies r" filters.
func (r Right) AllowedAttrs() []string {
	rights := r.AllowedRights()
	attrs := make([]string, len(rights))
	for i, right := range rights {
		attrs[i] = right.Attr()
	}
	return attrs
}

// Satisfies reports whether having held has satisfies a requirement of
// need: held must be at least as strong as need in the Reader < Updater <
// Admin lattice.
func (held Right) Satisfies(need Right) bool {
	return held >= need
}

// Mod is one of the three directory modification verbs.
type Mod int

const (
	ModAdd Mod = iota
	ModDelete
	ModReplace
)

func (m Mod) String() string {
	switch m {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Mods is the set of requested modifications to a group's direct
// member/right relations: for each Mright, for each Mod verb, the set of
// subject/group URLs it applies to.
type Mods map[Mright]map[Mod][]string

// EntryKind distinguishes a stem entry from a leaf group entry.
type EntryKind int

const (
	EntryKindGroup EntryKind = iota
	EntryKindStem
)

func (k EntryKind) String() string {
	if k == EntryKindStem {
		return "stem"
	}
	return "group"
}

// MarshalJSON renders EntryKind in its lowercase wire form.
func (k EntryKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// Attr is one of the configured, free-text sgroup attributes (e.g. "ou",
// "description").
type Attr string

// SgroupAttrs is the configured free-text metadata attached to a stem or
// group: display name, description, and any deployment-specific additions.
type SgroupAttrs map[Attr]string

// Out is the attributes plus kind of a single stem/group entry, as returned
// by a listing or search.
type Out struct {
	Attrs SgroupAttrs `json:"attrs"`
	Kind  EntryKind   `json:"kind"`
}

// SubjectAttrs is the free-text display attributes of a single subject
// entry, as read from its source directory/table.
type SubjectAttrs struct {
	Attrs     map[string]string `json:"attrs"`
	SgroupID  string            `json:"sgroupId,omitempty"`
	IsSgroup  bool              `json:"-"`
}

// ParentOut is one ancestor stem's id, its configured attributes, and the
// caller's effective right on it, as returned alongside a group/stem detail
// view.
type ParentOut struct {
	ID    string      `json:"id"`
	Attrs SgroupAttrs `json:"attrs"`
	Right Right       `json:"right"`
}

// AndMore is the full detail view of a single stem or group: its attributes,
// either its children (stem) or its direct members (group), the caller's
// best right on it, and its ancestor stems with the caller's right on each.
type AndMore struct {
	Attrs         SgroupAttrs             `json:"attrs"`
	Kind          EntryKind               `json:"kind"`
	Right         Right                   `json:"right"`
	Parents       []ParentOut             `json:"parents,omitempty"`
	Children      map[string]SgroupAttrs  `json:"children,omitempty"`
	DirectMembers map[string]SubjectAttrs `json:"directMembers,omitempty"`
}
