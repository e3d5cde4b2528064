// Package flatten implements the flattening propagation engine: keeping
// each group's flattened member/reader/updater/admin attribute in sync with
// the transitive closure of its direct relations, and cascading that
// recomputation to every group that depends on the one just changed.
package flatten

import (
	"context"
	"fmt"

	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/filter"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

// DefaultFlattenedAttr is the historical attribute name each Mright's
// flattened closure is stored under — distinct from the direct-right
// attribute (Right.Attr()), which holds only the relations set directly on
// that one entry.
func DefaultFlattenedAttr() map[model.Mright]string {
	return map[model.Mright]string{
		model.MrightMember:  "member",
		model.MrightReader:  "supannGroupeLecteurDN",
		model.MrightUpdater: "supannGroupeAdminDN",
		model.MrightAdmin:   "owner",
	}
}

// Engine recomputes flattened attributes against a directory Gateway.
type Engine struct {
	GW            directory.Gateway
	Cfg           naming.Config
	FlattenedAttr map[model.Mright]string

	// OnModified, if set, is called after Recompute actually changes a
	// group's flattened attribute — the seam the eventbus wiring hangs the
	// FLATTENED notification (subject "groupad.events.sgroups") on, keeping this
	// package itself free of any event-bus dependency.
	OnModified func(WorkItem)
}

func New(gw directory.Gateway, cfg naming.Config, flattenedAttr map[model.Mright]string) *Engine {
	if flattenedAttr == nil {
		flattenedAttr = DefaultFlattenedAttr()
	}
	return &Engine{GW: gw, Cfg: cfg, FlattenedAttr: flattenedAttr}
}

func (e *Engine) attr(mright model.Mright) string {
	return e.FlattenedAttr[mright]
}

// Attr exposes the flattened attribute name for mright, for callers outside
// this package that need to read a flattened relation directly (the read
// API's get_group_flattened_mright, for roles other than Member).
func (e *Engine) Attr(mright model.Mright) string {
	return e.attr(mright)
}

// WorkItem is one (group id, relation) pair awaiting flattening
// recomputation.
type WorkItem struct {
	ID     string
	Mright model.Mright
}

// UpResult reports whether a recomputation actually changed the stored
// flattened attribute.
type UpResult int

const (
	Unchanged UpResult = iota
	Modified
)

func toSet(vals []string) map[string]struct{} {
	s := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

func setDiff(a, b map[string]struct{}) []string {
	var out []string
	for v := range a {
		if _, ok := b[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}

// getFlattenedDNs expands directDNs (keyed by bare DN, valued by the
// verbatim form to store — the DN itself, or the DN with its end-date
// option still attached) one level: any DN that is itself a group
// contributes its own flattened member closure verbatim; everything else (a
// bare subject DN) passes through unchanged. End-dated direct values are
// never themselves expanded (only a bare group DN can have members to pull
// in), but they do still pass through into the result, per the "flattening
// stores end-dated URLs verbatim" rule.
func (e *Engine) getFlattenedDNs(ctx context.Context, directDNs map[string]string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(directDNs))
	for dn, verbatim := range directDNs {
		out[verbatim] = struct{}{}
		if e.Cfg.DNIsSgroup(dn) {
			members, err := e.GW.ReadFlattenedMembers(ctx, dn)
			if err != nil {
				return nil, fmt.Errorf("reading flattened members of %s: %w", dn, err)
			}
			for _, m := range members {
				out[m] = struct{}{}
			}
		}
	}
	return out, nil
}

// MayUpdateFlattenedMrights recomputes the flattened attribute for
// (id, mright): reads id's direct relation URLs, expands every group among
// them one level, diffs the result against the currently stored flattened
// attribute, and writes only the delta. A relation whose sole direct value
// is the single empty-string placeholder (no members set yet) is treated as
// no direct relations at all. When mright is Member and the flattened
// closure ends up empty, the placeholder is written back so the attribute
// is never left with zero values (the directory convention for "no
// members").
func (e *Engine) MayUpdateFlattenedMrights(ctx context.Context, id string, mright model.Mright) (UpResult, error) {
	groupDN := e.Cfg.SgroupIDToDN(id)

	directURLs, ok, err := e.GW.ReadOneMultiAttr(ctx, groupDN, mright.Attr())
	if err != nil {
		return Unchanged, fmt.Errorf("reading direct %s on %s: %w", mright, id, err)
	}
	if !ok {
		return Unchanged, fmt.Errorf("group %s does not exist", id)
	}

	directDNs := make(map[string]string, len(directURLs))
	for _, url := range directURLs {
		if url == "" {
			// The no-members placeholder contributes nothing.
			continue
		}
		if naming.IsSyncMarker(url) {
			// A remote sync marker can't be flattened as a member set; the
			// synchronizer, not this engine, is responsible for that
			// group's members. Leave the flattened attribute untouched.
			return Unchanged, nil
		}
		dn, verbatim, ok := naming.ParseRelationURL(url)
		if !ok {
			return Unchanged, nil
		}
		directDNs[dn] = verbatim
	}

	flattenedDNs, err := e.getFlattenedDNs(ctx, directDNs)
	if err != nil {
		return Unchanged, err
	}
	if len(flattenedDNs) == 0 && mright == model.MrightMember {
		flattenedDNs[""] = struct{}{}
	}

	currentVals, _, err := e.GW.ReadOneMultiAttr(ctx, groupDN, e.attr(mright))
	if err != nil {
		return Unchanged, fmt.Errorf("reading flattened %s on %s: %w", mright, id, err)
	}
	currentSet := toSet(currentVals)

	toAdd := setDiff(flattenedDNs, currentSet)
	toRemove := setDiff(currentSet, flattenedDNs)

	if len(toAdd) == 0 && len(toRemove) == 0 {
		return Unchanged, nil
	}

	var mods []directory.Mod
	if len(toAdd) > 0 {
		mods = append(mods, directory.Mod{Verb: directory.ModVerbAdd, Attr: e.attr(mright), Values: toAdd})
	}
	if len(toRemove) > 0 {
		mods = append(mods, directory.Mod{Verb: directory.ModVerbDelete, Attr: e.attr(mright), Values: toRemove})
	}

	if err := e.GW.Modify(ctx, groupDN, mods); err != nil {
		return Unchanged, fmt.Errorf("updating flattened %s on %s: %w", mright, id, err)
	}

	return Modified, nil
}

// SearchGroupsMrightsDependingOnThisGroup finds every (group id, mright)
// pair whose stored flattened attribute for mright contains id's DN: groups
// that reference id directly (once their own flattened attribute has been
// computed) or through a nested group. Those are the groups whose flattened
// attribute may need recomputing after id's own flattened membership
// changes.
func (e *Engine) SearchGroupsMrightsDependingOnThisGroup(ctx context.Context, id string) ([]WorkItem, error) {
	groupDN := e.Cfg.SgroupIDToDN(id)

	var out []WorkItem
	for _, mright := range model.AllMrights() {
		entries, err := e.GW.Search(ctx, e.Cfg.GroupsDN, filter.Eq(e.attr(mright), groupDN), []string{""}, 0)
		if err != nil {
			return nil, fmt.Errorf("searching groups depending on %s: %w", id, err)
		}
		for _, entry := range entries {
			depID, ok := e.Cfg.DNToSgroupID(entry.DN)
			if !ok {
				continue
			}
			out = append(out, WorkItem{ID: depID, Mright: mright})
		}
	}

	return out, nil
}

// Recompute drains the work queue: for each (id, mright) pair, recomputes
// the flattened attribute, and whenever a Member recomputation actually
// changes the stored closure, pushes every group depending on id onto the
// queue for its own recomputation. Short-circuiting on Unchanged is what
// guarantees convergence without explicit cycle detection: a group that
// stabilizes stops contributing new work.
func (e *Engine) Recompute(ctx context.Context, todo []WorkItem) error {
	for len(todo) > 0 {
		n := len(todo) - 1
		item := todo[n]
		todo = todo[:n]

		result, err := e.MayUpdateFlattenedMrights(ctx, item.ID, item.Mright)
		if err != nil {
			return err
		}

		if result == Modified {
			if e.OnModified != nil {
				e.OnModified(item)
			}

			if item.Mright == model.MrightMember {
				deps, err := e.SearchGroupsMrightsDependingOnThisGroup(ctx, item.ID)
				if err != nil {
					return err
				}
				todo = append(todo, deps...)
			}
		}
	}

	return nil
}
