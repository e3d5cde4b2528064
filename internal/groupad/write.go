package groupad

import (
	"context"
	"fmt"

	"github.com/groupad/groupad/internal/apierr"
	"github.com/groupad/groupad/internal/authz"
	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/filter"
	"github.com/groupad/groupad/internal/flatten"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

// replaceRewriteThreshold is the size above which a Replace of a relation's
// whole value set is rewritten as Add(new\current)+Delete(current\new)
// instead of being sent to the directory as a single replace: past this
// many values, reading the current set and sending only the delta produces
// less directory traffic than replacing the lot.
const replaceRewriteThreshold = 4

func (s *Service) validateAttrs(attrs model.SgroupAttrs) error {
	allowed := make(map[model.Attr]bool, len(s.Cfg.SgroupAttrs))
	for _, a := range s.Cfg.SgroupAttrs {
		allowed[a] = true
	}
	for k := range attrs {
		if !allowed[k] {
			return apierr.NewError(apierr.KindInvalidAttrs, "attribute %q is not in the configured vocabulary", k)
		}
	}
	return nil
}

func (s *Service) audit(ctx context.Context, identity authz.Identity, action, id string, detail any) {
	if s.Audit == nil {
		return
	}
	// Recording happens after the directory commit already succeeded; the
	// directory is authoritative, so a logging failure here is reported but
	// never unwinds the write.
	_ = s.Audit.Record(ctx, identity, action, id, detail)
}

// Create adds a new stem or leaf group at id. The caller must hold at least
// Admin on one of id's ancestor stems (there is no self to check a right
// against yet). A newly created leaf group starts with the flattened-member
// placeholder already in place, and no direct members.
func (s *Service) Create(ctx context.Context, identity authz.Identity, id string, attrs model.SgroupAttrs) error {
	if err := s.Cfg.Naming.Validate(id); err != nil {
		return apierr.NewError(apierr.KindInvalidID, "%s", err)
	}
	if err := s.validateAttrs(attrs); err != nil {
		return err
	}
	if err := s.Authz.CheckRightOnAnyParents(ctx, id, identity, model.RightAdmin); err != nil {
		return err
	}

	isStem := s.Cfg.Naming.IsStem(id)
	objectClasses := []string{"groupOfNames"}
	if isStem {
		objectClasses = []string{"organizationalUnit"}
	}

	directoryAttrs := make(map[string][]string, len(attrs)+1)
	for k, v := range attrs {
		directoryAttrs[string(k)] = []string{v}
	}
	directoryAttrs["cn"] = []string{id}
	if !isStem {
		directoryAttrs["member"] = []string{""}
	}

	dn := s.Cfg.Naming.SgroupIDToDN(id)
	if err := s.GW.Add(ctx, dn, objectClasses, directoryAttrs); err != nil {
		return fmt.Errorf("creating %s: %w", id, err)
	}

	s.audit(ctx, identity, "create", id, attrs)
	return nil
}

// ModifySgroupAttrs replaces id's configured free-text attributes with
// attrs, issuing one directory Mod per attribute that actually changed (a
// Delete for one cleared to empty, a Replace otherwise). Requires Admin on
// id itself or one of its ancestor stems.
func (s *Service) ModifySgroupAttrs(ctx context.Context, identity authz.Identity, id string, attrs model.SgroupAttrs) error {
	if err := s.Cfg.Naming.Validate(id); err != nil {
		return apierr.NewError(apierr.KindInvalidID, "%s", err)
	}
	if err := s.validateAttrs(attrs); err != nil {
		return err
	}
	if err := s.Authz.CheckRightOnSelfOrAnyParents(ctx, id, identity, model.RightAdmin); err != nil {
		return err
	}

	dn := s.Cfg.Naming.SgroupIDToDN(id)
	current, err := s.GW.Read(ctx, dn, s.displayAttrNames())
	if err != nil {
		return fmt.Errorf("reading %s: %w", id, err)
	}
	if current == nil {
		return apierr.NewError(apierr.KindNotFound, "sgroup %s does not exist", id)
	}

	var mods []directory.Mod
	for attrName, newVal := range attrs {
		curVals := current.Attrs[string(attrName)]
		curVal := ""
		if len(curVals) > 0 {
			curVal = curVals[0]
		}
		if curVal == newVal {
			continue
		}
		if newVal == "" {
			mods = append(mods, directory.Mod{Verb: directory.ModVerbDelete, Attr: string(attrName), Values: curVals})
		} else {
			mods = append(mods, directory.Mod{Verb: directory.ModVerbReplace, Attr: string(attrName), Values: []string{newVal}})
		}
	}
	if len(mods) == 0 {
		return nil
	}

	if err := s.GW.Modify(ctx, dn, mods); err != nil {
		return fmt.Errorf("modifying %s: %w", id, err)
	}

	s.audit(ctx, identity, "modify_attrs", id, attrs)
	return nil
}

// Delete removes id, refusing if it is a stem with any remaining children
// (callers must delete the subtree bottom-up). Requires Admin on id itself
// or one of its ancestor stems, unlike Create, which checks ancestor stems
// only since it has no self to check a right against yet.
func (s *Service) Delete(ctx context.Context, identity authz.Identity, id string) error {
	if err := s.Cfg.Naming.Validate(id); err != nil {
		return apierr.NewError(apierr.KindInvalidID, "%s", err)
	}
	if err := s.Authz.CheckRightOnSelfOrAnyParents(ctx, id, identity, model.RightAdmin); err != nil {
		return err
	}

	children := filter.And([]string{filter.SgroupChildren(id), filter.Not(filter.Eq("cn", id))})
	hasChildren, err := s.GW.OneMatchesFilter(ctx, s.Cfg.Naming.GroupsDN, children)
	if err != nil {
		return fmt.Errorf("checking children of %s: %w", id, err)
	}
	if hasChildren {
		return apierr.NewError(apierr.KindConflict, "%s still has children", id)
	}

	dn := s.Cfg.Naming.SgroupIDToDN(id)
	if err := s.GW.Delete(ctx, dn); err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}

	s.audit(ctx, identity, "delete", id, nil)
	return nil
}

// modsToRight determines the right a set of modifications requires: a mod
// touching only Member needs Updater; touching any other relation (Reader,
// Updater or Admin itself) needs Admin, since those mods change who can
// administer the group, not just who belongs to it.
func modsToRight(mods model.Mods) model.Right {
	for mright := range mods {
		if mright != model.MrightMember {
			return model.RightAdmin
		}
	}
	return model.RightUpdater
}

// checkMods validates a requested modification set against the write
// invariants: a stem can never carry members, and every value must be a
// parseable ldap:/// relation URL (plain or end-dated) — except the single
// narrow case of a lone Replace of Member with exactly one value, the only
// path through which an opaque sql: synchronized-group marker is allowed.
func checkMods(isStem bool, mods model.Mods) error {
	for mright, submods := range mods {
		if mright == model.MrightMember && isStem {
			return apierr.NewError(apierr.KindInvalidMods, "members are not allowed on a stem")
		}
		for verb, list := range submods {
			if mright == model.MrightMember && verb == model.ModReplace && len(list) == 1 && naming.IsSyncMarker(list[0]) {
				continue
			}
			for _, url := range list {
				if _, _, ok := naming.ParseRelationURL(url); !ok {
					return apierr.NewError(apierr.KindInvalidMods, "%q is not a DN URL", url)
				}
			}
		}
	}
	return nil
}

func toDirectoryVerb(v model.Mod) directory.ModVerb {
	switch v {
	case model.ModAdd:
		return directory.ModVerbAdd
	case model.ModDelete:
		return directory.ModVerbDelete
	default:
		return directory.ModVerbReplace
	}
}

// rewriteReplace reads the current value of attr on groupDN and splits a
// Replace(newList) into the Add/Delete delta against it.
func (s *Service) rewriteReplace(ctx context.Context, groupDN, attr string, newList []string) (add, remove []string, err error) {
	current, _, err := s.GW.ReadOneMultiAttr(ctx, groupDN, attr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading current %s: %w", attr, err)
	}
	currentSet := make(map[string]bool, len(current))
	for _, v := range current {
		currentSet[v] = true
	}
	newSet := make(map[string]bool, len(newList))
	for _, v := range newList {
		newSet[v] = true
	}
	for v := range newSet {
		if !currentSet[v] {
			add = append(add, v)
		}
	}
	for v := range currentSet {
		if !newSet[v] {
			remove = append(remove, v)
		}
	}
	return add, remove, nil
}

// modifyDirectMembersOrRights applies mods to id's direct relation
// attributes, rewriting any oversized Replace into an Add/Delete delta
// first.
func (s *Service) modifyDirectMembersOrRights(ctx context.Context, id string, mods model.Mods) error {
	groupDN := s.Cfg.Naming.SgroupIDToDN(id)

	var dirMods []directory.Mod
	for mright, submods := range mods {
		attr := mright.Attr()
		for verb, list := range submods {
			if len(list) == 0 {
				continue
			}
			if verb == model.ModReplace && len(list) > replaceRewriteThreshold {
				add, remove, err := s.rewriteReplace(ctx, groupDN, attr, list)
				if err != nil {
					return err
				}
				if len(add) > 0 {
					dirMods = append(dirMods, directory.Mod{Verb: directory.ModVerbAdd, Attr: attr, Values: add})
				}
				if len(remove) > 0 {
					dirMods = append(dirMods, directory.Mod{Verb: directory.ModVerbDelete, Attr: attr, Values: remove})
				}
				continue
			}
			dirMods = append(dirMods, directory.Mod{Verb: toDirectoryVerb(verb), Attr: attr, Values: list})
		}
	}
	if len(dirMods) == 0 {
		return nil
	}

	if err := s.GW.Modify(ctx, groupDN, dirMods); err != nil {
		return fmt.Errorf("modifying %s: %w", id, err)
	}
	return nil
}

// ModifyMembersOrRights is the single entry point for changing a group's
// direct members and rights. It authorizes against the right the
// modification actually requires (Updater for a pure-Member change, Admin
// otherwise), validates the requested mods, commits them to the directory,
// records the audit entry, and finally enqueues flattening recomputation
// for every relation touched — in that order, so the directory write is
// never left pending on a flattening pass that might fail.
func (s *Service) ModifyMembersOrRights(ctx context.Context, identity authz.Identity, id string, mods model.Mods) error {
	if err := s.Cfg.Naming.Validate(id); err != nil {
		return apierr.NewError(apierr.KindInvalidID, "%s", err)
	}

	right := modsToRight(mods)
	if err := s.Authz.CheckRightOnSelfOrAnyParents(ctx, id, identity, right); err != nil {
		return err
	}

	isStem := s.Cfg.Naming.IsStem(id)
	if err := checkMods(isStem, mods); err != nil {
		return err
	}

	if err := s.modifyDirectMembersOrRights(ctx, id, mods); err != nil {
		return err
	}

	s.audit(ctx, identity, "modify_members_or_rights", id, mods)

	if isStem {
		// Stems carry no flattened relations (invariant: Member is forbidden
		// on a stem, and Reader/Updater/Admin on a stem are never flattened —
		// they're resolved by inheritance at read time instead).
		return nil
	}

	todo := make([]flatten.WorkItem, 0, len(mods))
	for mright := range mods {
		todo = append(todo, flatten.WorkItem{ID: id, Mright: mright})
	}
	return s.Flatten.Recompute(ctx, todo)
}
