package groupad

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/groupad/groupad/internal/apierr"
	"github.com/groupad/groupad/internal/authz"
	"github.com/groupad/groupad/internal/filter"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

const subjectChunkSize = 10

// GetSgroup reads the full detail view of id: its attributes, the caller's
// right on it and on each of its ancestor stems, and either its children
// (stem) or its direct members (group).
func (s *Service) GetSgroup(ctx context.Context, identity authz.Identity, id string) (model.AndMore, error) {
	var zero model.AndMore

	if err := s.Cfg.Naming.Validate(id); err != nil {
		return zero, apierr.NewError(apierr.KindInvalidID, "%s", err)
	}

	dn := s.Cfg.Naming.SgroupIDToDN(id)
	entry, err := s.GW.Read(ctx, dn, nil)
	if err != nil {
		return zero, fmt.Errorf("reading %s: %w", id, err)
	}
	if entry == nil {
		return zero, apierr.NewError(apierr.KindNotFound, "sgroup %s does not exist", id)
	}

	right, parents, err := s.Authz.BestRightOnSelfOrAnyParents(ctx, id, identity, entry.Attrs)
	if err != nil {
		return zero, err
	}

	isStem := s.Cfg.Naming.IsStem(id)
	kind := model.EntryKindGroup
	if isStem {
		kind = model.EntryKindStem
	}

	out := model.AndMore{
		Attrs: s.toSgroupAttrs(id, entry.Attrs),
		Kind:  kind,
		Right: right,
	}

	for _, p := range parents {
		pAttrs, err := s.readSgroupAttrs(ctx, p.ID)
		if err != nil {
			return zero, err
		}
		out.Parents = append(out.Parents, model.ParentOut{ID: p.ID, Attrs: pAttrs, Right: p.Right})
	}

	if isStem {
		children, err := s.GetChildren(ctx, id)
		if err != nil {
			return zero, err
		}
		out.Children = children
	} else {
		members, _, err := s.GW.ReadOneMultiAttr(ctx, dn, model.MrightMember.Attr())
		if err != nil {
			return zero, fmt.Errorf("reading direct members of %s: %w", id, err)
		}
		subjects, err := s.getSubjectsFromURLs(ctx, members)
		if err != nil {
			return zero, err
		}
		out.DirectMembers = subjects
	}

	return out, nil
}

func (s *Service) readSgroupAttrs(ctx context.Context, id string) (model.SgroupAttrs, error) {
	dn := s.Cfg.Naming.SgroupIDToDN(id)
	entry, err := s.GW.Read(ctx, dn, s.displayAttrNames())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	if entry == nil {
		return nil, nil
	}
	return s.toSgroupAttrs(id, entry.Attrs), nil
}

// GetChildren lists the direct children of stem id (not grandchildren). The
// root stem has no prefix of its own, so its descendants are found by
// scanning everything under the groups base and filtering by depth instead
// of by a cn prefix.
func (s *Service) GetChildren(ctx context.Context, id string) (map[string]model.SgroupAttrs, error) {
	descendants := filter.SgroupChildren(id)
	if id == s.Cfg.Naming.RootID {
		descendants = filter.True()
	}

	entries, err := s.GW.Search(ctx, s.Cfg.Naming.GroupsDN, descendants, s.displayAttrNames(), 0)
	if err != nil {
		return nil, fmt.Errorf("reading children of %s: %w", id, err)
	}
	out := make(map[string]model.SgroupAttrs, len(entries))
	for _, e := range entries {
		childID, ok := s.Cfg.Naming.DNToSgroupID(e.DN)
		if !ok || childID == id || s.Cfg.Naming.IsGrandchild(id, childID) {
			continue
		}
		out[childID] = s.toSgroupAttrs(childID, e.Attrs)
	}
	return out, nil
}

// GetSgroupDirectRights reads every directly-assigned relation on id,
// grouped by Mright, resolved down to subject display attributes. Requires
// Admin, the same right ModifyMembersOrRights demands for a non-Member mod.
func (s *Service) GetSgroupDirectRights(ctx context.Context, identity authz.Identity, id string) (map[model.Mright]map[string]model.SubjectAttrs, error) {
	if err := s.Cfg.Naming.Validate(id); err != nil {
		return nil, apierr.NewError(apierr.KindInvalidID, "%s", err)
	}

	dn := s.Cfg.Naming.SgroupIDToDN(id)
	entry, err := s.GW.Read(ctx, dn, nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	if entry == nil {
		return nil, apierr.NewError(apierr.KindNotFound, "sgroup %s does not exist", id)
	}

	if err := s.Authz.CheckRightOnSelfOrAnyParents(ctx, id, identity, model.RightAdmin); err != nil {
		return nil, err
	}

	out := make(map[model.Mright]map[string]model.SubjectAttrs, len(model.AllMrights()))
	for _, mright := range model.AllMrights() {
		urls := entry.Attrs[mright.Attr()]
		subjects, err := s.getSubjectsFromURLs(ctx, urls)
		if err != nil {
			return nil, err
		}
		if len(subjects) > 0 {
			out[mright] = subjects
		}
	}
	return out, nil
}

// GetGroupFlattenedMright reads the flattened closure of a single relation
// on a leaf group, resolved to subject display attributes. Requires at
// least Reader.
func (s *Service) GetGroupFlattenedMright(ctx context.Context, identity authz.Identity, id string, mright model.Mright) (map[string]model.SubjectAttrs, error) {
	if err := s.Cfg.Naming.Validate(id); err != nil {
		return nil, apierr.NewError(apierr.KindInvalidID, "%s", err)
	}
	if s.Cfg.Naming.IsStem(id) {
		return nil, apierr.NewError(apierr.KindInvalidID, "stem %s has no flattened relations", id)
	}
	if err := s.Authz.CheckRightOnSelfOrAnyParents(ctx, id, identity, model.RightReader); err != nil {
		return nil, err
	}

	dn := s.Cfg.Naming.SgroupIDToDN(id)
	vals, ok, err := s.GW.ReadOneMultiAttr(ctx, dn, s.Flatten.Attr(mright))
	if err != nil {
		return nil, fmt.Errorf("reading flattened %s on %s: %w", mright, id, err)
	}
	if !ok {
		return nil, apierr.NewError(apierr.KindNotFound, "sgroup %s does not exist", id)
	}

	dns := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			dns = append(dns, v)
		}
	}
	return s.getSubjectsFromDNs(ctx, dns)
}

// GetSgroupLogs returns the tail of id's audit trail, requiring Admin on id
// itself or one of its ancestor stems. Needs a LogReader wired onto the
// Service (internal/audit's writer implements it); returns a KindExternal
// error if none is configured.
func (s *Service) GetSgroupLogs(ctx context.Context, identity authz.Identity, id string, maxBytes int64) (json.RawMessage, error) {
	if err := s.Cfg.Naming.Validate(id); err != nil {
		return nil, apierr.NewError(apierr.KindInvalidID, "%s", err)
	}
	if err := s.Authz.CheckRightOnSelfOrAnyParents(ctx, id, identity, model.RightAdmin); err != nil {
		return nil, err
	}
	if s.Logs == nil {
		return nil, apierr.NewError(apierr.KindExternal, "no audit log reader configured")
	}
	return s.Logs.TailLog(ctx, id, maxBytes)
}

// userHasRightOnGroupFilter composes the filter matching any group/stem
// where the subject identified by userDN holds at least `right` through its
// *flattened* attribute — i.e. including rights held by virtue of being a
// member of a group that is itself granted the right, not just a bare
// direct assignment. This is what "my groups" and rights-aware search mean
// by "right on a group": stem-hierarchy inheritance is handled separately.
func (s *Service) userHasRightOnGroupFilter(userDN string, right model.Right) string {
	var clauses []string
	for _, r := range right.AllowedRights() {
		clauses = append(clauses, filter.Eq(s.Flatten.Attr(r.Mright()), userDN))
	}
	return filter.Or(clauses)
}

func (s *Service) stemsIDWithUserRight(ctx context.Context, userURLs []string, right model.Right) ([]string, error) {
	f := filter.And([]string{s.Cfg.Naming.StemFilter(), authz.UserHasRightOnSgroupFilter(userURLs, right)})
	entries, err := s.GW.Search(ctx, s.Cfg.Naming.GroupsDN, f, []string{""}, 0)
	if err != nil {
		return nil, fmt.Errorf("searching stems with right: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if id, ok := s.Cfg.Naming.DNToSgroupID(e.DN); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Service) sgroupSearchFilter(token string) string {
	return strings.ReplaceAll(s.Cfg.SgroupSearchFilter, "%TERM%", filter.Escape(token))
}

// SearchGroups finds every stem/group matching token whose name the caller
// holds at least `right` on (directly, via flattened membership, or
// inherited from an ancestor stem) — or every match at all, for a
// TrustedAdmin identity.
func (s *Service) SearchGroups(ctx context.Context, identity authz.Identity, right model.Right, token string, sizeLimit int) (map[string]model.Out, error) {
	termFilter := s.sgroupSearchFilter(token)

	groupFilter := termFilter
	if !identity.TrustedAdmin {
		userURLs, err := authz.URLs(ctx, s.GW, s.Cfg.Naming, identity)
		if err != nil {
			return nil, err
		}
		userDN := s.Cfg.Naming.PeopleIDToDN(identity.Subject)

		directFilter := s.userHasRightOnGroupFilter(userDN, right)

		stemsWithRight, err := s.stemsIDWithUserRight(ctx, userURLs, right)
		if err != nil {
			return nil, err
		}
		var inheritedClauses []string
		for _, stemID := range stemsWithRight {
			inheritedClauses = append(inheritedClauses, filter.SgroupSelfAndChildren(stemID))
		}

		rightFilter := filter.Or([]string{directFilter, filter.Or(inheritedClauses)})
		groupFilter = filter.And([]string{rightFilter, termFilter})
	}

	entries, err := s.GW.Search(ctx, s.Cfg.Naming.GroupsDN, groupFilter, s.displayAttrNames(), sizeLimit)
	if err != nil {
		return nil, fmt.Errorf("searching groups: %w", err)
	}

	out := make(map[string]model.Out, len(entries))
	for _, e := range entries {
		id, ok := s.Cfg.Naming.DNToSgroupID(e.DN)
		if !ok {
			continue
		}
		kind := model.EntryKindGroup
		if s.Cfg.Naming.IsStem(id) {
			kind = model.EntryKindStem
		}
		out[id] = model.Out{Attrs: s.toSgroupAttrs(id, e.Attrs), Kind: kind}
	}
	return out, nil
}

// MyGroups lists every group/stem the calling subject holds at least
// Updater on, directly or via flattened membership. A TrustedAdmin identity
// has no subject to resolve this against.
func (s *Service) MyGroups(ctx context.Context, identity authz.Identity) (map[string]model.Out, error) {
	if identity.TrustedAdmin {
		return nil, apierr.NewError(apierr.KindInvalidID, "my groups requires a real subject identity")
	}
	userDN := s.Cfg.Naming.PeopleIDToDN(identity.Subject)
	f := s.userHasRightOnGroupFilter(userDN, model.RightUpdater)

	entries, err := s.GW.Search(ctx, s.Cfg.Naming.GroupsDN, f, s.displayAttrNames(), 0)
	if err != nil {
		return nil, fmt.Errorf("searching my groups: %w", err)
	}

	out := make(map[string]model.Out, len(entries))
	for _, e := range entries {
		id, ok := s.Cfg.Naming.DNToSgroupID(e.DN)
		if !ok {
			continue
		}
		kind := model.EntryKindGroup
		if s.Cfg.Naming.IsStem(id) {
			kind = model.EntryKindStem
		}
		out[id] = model.Out{Attrs: s.toSgroupAttrs(id, e.Attrs), Kind: kind}
	}
	return out, nil
}

// SearchSubjects searches every configured subject source for token (or
// just the one whose DN equals sourceDN, when non-empty).
func (s *Service) SearchSubjects(ctx context.Context, token string, sizeLimit int, sourceDN string) (map[string]map[string]model.SubjectAttrs, error) {
	out := make(map[string]map[string]model.SubjectAttrs)
	for _, sc := range s.Cfg.SubjectSources {
		if sourceDN != "" && sourceDN != sc.DN {
			continue
		}
		f := sc.SearchFilterFor(filter.Escape(token))
		entries, err := s.GW.Search(ctx, sc.DN, f, sc.DisplayAttrs, sizeLimit)
		if err != nil {
			return nil, fmt.Errorf("searching subjects under %s: %w", sc.DN, err)
		}
		subjects := make(map[string]model.SubjectAttrs, len(entries))
		for _, e := range entries {
			sgID, isSgroup := s.Cfg.Naming.DNToSgroupID(e.DN)
			subjects[e.DN] = model.SubjectAttrs{Attrs: monoAttrs(e.Attrs), SgroupID: sgID, IsSgroup: isSgroup}
		}
		out[sc.DN] = subjects
	}
	return out, nil
}

// getSubjectsFromURLs resolves a set of direct relation URLs (as stored on
// a group's memberURL;x-<role> attribute) down to subject display
// attributes, dropping anything that isn't a plain or end-dated ldap:///
// DN reference (in particular, a sql: sync marker contributes nothing
// here — its members are read separately from the flattened attribute).
func (s *Service) getSubjectsFromURLs(ctx context.Context, urls []string) (map[string]model.SubjectAttrs, error) {
	dns := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || naming.IsSyncMarker(u) {
			continue
		}
		dn, _, ok := naming.ParseRelationURL(u)
		if !ok {
			continue
		}
		dns = append(dns, dn)
	}
	return s.getSubjectsFromDNs(ctx, dns)
}

// getSubjectsFromDNs resolves a set of bare subject DNs down to display
// attributes: a DN that is itself an sgroup is reported as such without a
// directory read, and every other DN is grouped by its parent DN, matched
// against a configured subject source, and searched in chunks of
// subjectChunkSize to keep the per-request filter from growing unbounded.
func (s *Service) getSubjectsFromDNs(ctx context.Context, dns []string) (map[string]model.SubjectAttrs, error) {
	out := make(map[string]model.SubjectAttrs, len(dns))

	byParent := make(map[string][]string)
	for _, dn := range dns {
		if _, ok := out[dn]; ok {
			continue
		}
		if sgID, isSgroup := s.Cfg.Naming.DNToSgroupID(dn); isSgroup {
			out[dn] = model.SubjectAttrs{SgroupID: sgID, IsSgroup: true}
			continue
		}
		rdn, parentDN, ok := naming.DNToRDNAndParentDN(dn)
		if !ok {
			continue
		}
		byParent[parentDN] = append(byParent[parentDN], rdn)
	}

	for parentDN, rdns := range byParent {
		sc, ok := s.subjectSourceFor(parentDN)
		if !ok {
			continue
		}
		for _, batch := range chunkStrings(rdns, subjectChunkSize) {
			clauses := make([]string, len(batch))
			for i, rdn := range batch {
				clauses[i] = "(" + rdn + ")"
			}
			entries, err := s.GW.Search(ctx, parentDN, filter.Or(clauses), sc.DisplayAttrs, 0)
			if err != nil {
				return nil, fmt.Errorf("reading subjects under %s: %w", parentDN, err)
			}
			for _, e := range entries {
				out[e.DN] = model.SubjectAttrs{Attrs: monoAttrs(e.Attrs)}
			}
		}
	}

	return out, nil
}

func chunkStrings(items []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// toSgroupAttrs projects raw directory attributes down to the configured
// sgroup_attrs vocabulary, and applies the two display-only conventions the
// read API owns: the root stem's synthetic "ou" of "Racine" (it has no
// entry of its own to carry one), and truncation of a hierarchical "ou"
// value (one containing ":") down to the text after its last colon.
func (s *Service) toSgroupAttrs(id string, raw map[string][]string) model.SgroupAttrs {
	out := make(model.SgroupAttrs, len(s.Cfg.SgroupAttrs))
	for _, attr := range s.Cfg.SgroupAttrs {
		if vals, ok := raw[string(attr)]; ok && len(vals) > 0 {
			out[attr] = vals[0]
		}
	}
	if id == s.Cfg.Naming.RootID {
		out["ou"] = "Racine"
	} else if ou, ok := out["ou"]; ok {
		out["ou"] = afterLast(ou, ":")
	}
	return out
}

func afterLast(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}
