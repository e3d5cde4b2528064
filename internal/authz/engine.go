package authz

import (
	"context"
	"fmt"

	"github.com/groupad/groupad/internal/apierr"
	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/filter"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

// Engine evaluates the rights lattice against a directory Gateway.
type Engine struct {
	GW  directory.Gateway
	Cfg naming.Config
}

func New(gw directory.Gateway, cfg naming.Config) *Engine {
	return &Engine{GW: gw, Cfg: cfg}
}

func isDisjoint(vals []string, set map[string]bool) bool {
	for _, v := range vals {
		if set[v] {
			return false
		}
	}
	return true
}

func toSet(urls []string) map[string]bool {
	s := make(map[string]bool, len(urls))
	for _, u := range urls {
		s[u] = true
	}
	return s
}

// HighestRight inspects the caller's direct-right attributes on a single
// entry (attrs, keyed by Right.Attr()) and returns the best right the
// caller holds, if any. Evaluation order is best-first (Admin, then
// Updater, then Reader), matching the historical "first match wins" scan.
func HighestRight(attrs map[string][]string, userURLs []string) (model.Right, bool) {
	urlSet := toSet(userURLs)
	for _, right := range model.RightReader.AllowedRights() {
		if urls, ok := attrs[right.Attr()]; ok {
			if !isDisjoint(urls, urlSet) {
				return right, true
			}
		}
	}
	return 0, false
}

// UserHasRightOnSgroupFilter composes the filter matching any group where
// one of userURLs holds at least `right` directly. Exported so the read API
// can reuse it to find stems the caller holds a right on (the basis for
// inherited-rights search).
func UserHasRightOnSgroupFilter(userURLs []string, right model.Right) string {
	var clauses []string
	for _, attr := range right.AllowedAttrs() {
		for _, url := range userURLs {
			clauses = append(clauses, filter.Eq(attr, url))
		}
	}
	if len(clauses) == 0 {
		return filter.Not(filter.True())
	}
	return filter.Or(clauses)
}

func userHasRightOnSgroupFilter(userURLs []string, right model.Right) string {
	return UserHasRightOnSgroupFilter(userURLs, right)
}

// HasRightOnAnyOf reports whether the caller holds at least `right`
// directly on any of the groups named by ids.
func (e *Engine) HasRightOnAnyOf(ctx context.Context, ids []string, identity Identity, right model.Right) (bool, error) {
	if identity.TrustedAdmin {
		return true, nil
	}
	if len(ids) == 0 {
		return false, nil
	}

	userURLs, err := URLs(ctx, e.GW, e.Cfg, identity)
	if err != nil {
		return false, err
	}

	idFilters := make([]string, len(ids))
	for i, id := range ids {
		idFilters[i] = e.Cfg.SgroupFilter(id)
	}

	combined := filter.And([]string{
		filter.Or(idFilters),
		userHasRightOnSgroupFilter(userURLs, right),
	})

	ok, err := e.GW.OneMatchesFilter(ctx, e.Cfg.GroupsDN, combined)
	if err != nil {
		return false, fmt.Errorf("checking right on %v: %w", ids, err)
	}

	return ok, nil
}

// CheckRightOnAnyParents enforces that the caller holds `right` on at least
// one ancestor stem of id (used for Create, which has no self to check
// against yet). A TrustedAdmin only needs the immediate parent stem to
// exist.
func (e *Engine) CheckRightOnAnyParents(ctx context.Context, id string, identity Identity, right model.Right) error {
	if identity.TrustedAdmin {
		if parent, ok := e.Cfg.ParentStem(id); ok {
			exists, err := e.GW.IsDNMatchingFilter(ctx, e.Cfg.SgroupIDToDN(parent), filter.True())
			if err != nil {
				return fmt.Errorf("checking parent stem %s: %w", parent, err)
			}
			if !exists {
				return apierr.NewError(apierr.KindNotFound, "stem %s does not exist", parent)
			}
		}
		return nil
	}

	parents := e.Cfg.ParentStems(id)

	ok, err := e.HasRightOnAnyOf(ctx, parents, identity, right)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.NewError(apierr.KindForbidden, "no right on %s parents", id)
	}

	return nil
}

// CheckRightOnSelfOrAnyParents enforces that the caller holds `right` on id
// itself or on any ancestor stem of id.
func (e *Engine) CheckRightOnSelfOrAnyParents(ctx context.Context, id string, identity Identity, right model.Right) error {
	if identity.TrustedAdmin {
		return nil
	}

	selfAndParents := append([]string{id}, e.Cfg.ParentStems(id)...)

	ok, err := e.HasRightOnAnyOf(ctx, selfAndParents, identity, right)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.NewError(apierr.KindForbidden, "no right on %s", id)
	}

	return nil
}

// ParentRight is one ancestor stem's id and the best right the caller holds on it (inherited monotonically from its own
// ancestors, per BestRightOnSelfOrAnyParents).
type ParentRight struct {
	ID     string
	Right  model.Right
	HasAny bool
}

// BestRightOnSelfOrAnyParents computes the caller's best right on id itself
// (from selfAttrs, the Right.AllowedAttrs() values already read off id's
// entry) plus the best right on each ancestor stem, with rights propagating
// downward: a stem's effective right is never less than its own parent's.
// It returns an error if the caller holds no right at all on id or any
// ancestor.
func (e *Engine) BestRightOnSelfOrAnyParents(
	ctx context.Context, id string, identity Identity, selfAttrs map[string][]string,
) (model.Right, []ParentRight, error) {
	if identity.TrustedAdmin {
		return model.RightAdmin, nil, nil
	}

	userURLs, err := URLs(ctx, e.GW, e.Cfg, identity)
	if err != nil {
		return 0, nil, err
	}

	selfRight, hasSelf := HighestRight(selfAttrs, userURLs)

	parentsID := e.Cfg.ParentStems(id) // nearest ancestor first, root last
	parents, err := e.rawParentRights(ctx, parentsID, userURLs)
	if err != nil {
		return 0, nil, err
	}

	best, bestSet := selfRight, hasSelf
	// Propagate inheritance root-to-nearest: walk `parents` back to front
	// (root first), tracking the best right seen so far and raising any
	// ancestor that holds none of its own up to that floor. This realizes
	// the invariant that a stem's effective right never drops below its own
	// parent's.
	for i := len(parents) - 1; i >= 0; i-- {
		switch {
		case parents[i].HasAny && (!bestSet || parents[i].Right > best):
			best, bestSet = parents[i].Right, true
		case bestSet:
			parents[i].Right, parents[i].HasAny = best, true
		}
	}

	if !bestSet {
		return 0, nil, apierr.NewError(apierr.KindForbidden, "no right to read sgroup %s", id)
	}
	if best > selfRight || !hasSelf {
		selfRight = best
	}

	return selfRight, parents, nil
}

// rawParentRights reads each parent stem's direct-right attributes and
// computes the caller's right on each, without yet propagating inheritance
// (that's done by the caller, BestRightOnSelfOrAnyParents).
func (e *Engine) rawParentRights(ctx context.Context, parentsID []string, userURLs []string) ([]ParentRight, error) {
	if len(parentsID) == 0 {
		return nil, nil
	}

	idFilters := make([]string, len(parentsID))
	for i, id := range parentsID {
		idFilters[i] = e.Cfg.SgroupFilter(id)
	}

	entries, err := e.GW.Search(ctx, e.Cfg.GroupsDN, filter.Or(idFilters), model.RightReader.AllowedAttrs(), 0)
	if err != nil {
		return nil, fmt.Errorf("reading parent stems: %w", err)
	}

	byID := make(map[string]directory.Entry, len(entries))
	for _, entry := range entries {
		id, ok := e.Cfg.DNToSgroupID(entry.DN)
		if !ok {
			continue
		}
		byID[id] = entry
	}

	out := make([]ParentRight, 0, len(parentsID))
	for _, id := range parentsID {
		entry, ok := byID[id]
		if !ok {
			continue
		}
		right, hasAny := HighestRight(entry.Attrs, userURLs)
		out = append(out, ParentRight{ID: id, Right: right, HasAny: hasAny})
	}

	return out, nil
}
