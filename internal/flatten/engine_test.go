package flatten

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

func testCfg() naming.Config {
	return naming.Config{Separator: ".", RootID: "", GroupsDN: "ou=groups,dc=nodomain", BaseDN: "dc=nodomain"}
}

func newTestEngine(gw *directory.Memory) *Engine {
	return New(gw, testCfg(), nil)
}

func addEntry(t *testing.T, gw *directory.Memory, dn string, attrs map[string][]string) {
	t.Helper()
	require.NoError(t, gw.Add(context.Background(), dn, []string{"groupOfNames"}, attrs))
}

func TestMayUpdateFlattenedMrightsDirectOnly(t *testing.T) {
	gw := directory.NewMemory()
	cfg := testCfg()

	aliceDN := cfg.PeopleIDToDN("alice")
	groupDN := cfg.SgroupIDToDN("a")
	addEntry(t, gw, groupDN, map[string][]string{model.MrightMember.Attr(): {naming.DNToURL(aliceDN)}})

	e := newTestEngine(gw)

	result, err := e.MayUpdateFlattenedMrights(context.Background(), "a", model.MrightMember)
	require.NoError(t, err)
	assert.Equal(t, Modified, result)

	vals, ok, err := gw.ReadOneMultiAttr(context.Background(), groupDN, "member")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{aliceDN}, vals)

	// running again with nothing changed converges to Unchanged.
	result, err = e.MayUpdateFlattenedMrights(context.Background(), "a", model.MrightMember)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, result)
}

func TestMayUpdateFlattenedMrightsEmptyKeepsPlaceholder(t *testing.T) {
	gw := directory.NewMemory()
	cfg := testCfg()
	groupDN := cfg.SgroupIDToDN("empty")
	// No direct members set (the memberURL;x-member attr is entirely
	// absent); the flattened "member" attr already holds the no-members
	// placeholder, which is the converged state.
	addEntry(t, gw, groupDN, map[string][]string{"member": {""}})

	e := newTestEngine(gw)

	result, err := e.MayUpdateFlattenedMrights(context.Background(), "empty", model.MrightMember)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, result)

	vals, ok, err := gw.ReadOneMultiAttr(context.Background(), groupDN, "member")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{""}, vals)
}

func TestRecomputeCascadesThroughNestedGroup(t *testing.T) {
	gw := directory.NewMemory()
	cfg := testCfg()

	aliceDN := cfg.PeopleIDToDN("alice")
	innerDN := cfg.SgroupIDToDN("inner")
	outerDN := cfg.SgroupIDToDN("outer")

	// inner has alice as a direct+flattened member already.
	addEntry(t, gw, innerDN, map[string][]string{
		model.MrightMember.Attr(): {naming.DNToURL(aliceDN)},
		"member":                  {aliceDN},
	})
	// outer has inner as a direct member, flattened member not yet computed.
	addEntry(t, gw, outerDN, map[string][]string{model.MrightMember.Attr(): {naming.DNToURL(innerDN)}})

	e := newTestEngine(gw)

	err := e.Recompute(context.Background(), []WorkItem{{ID: "outer", Mright: model.MrightMember}})
	require.NoError(t, err)

	vals, ok, err := gw.ReadOneMultiAttr(context.Background(), outerDN, "member")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{innerDN, aliceDN}, vals)
}

func TestRecomputeCascadesToDependentGroups(t *testing.T) {
	gw := directory.NewMemory()
	cfg := testCfg()

	aliceDN := cfg.PeopleIDToDN("alice")
	innerDN := cfg.SgroupIDToDN("inner")
	outerDN := cfg.SgroupIDToDN("outer")

	addEntry(t, gw, innerDN, map[string][]string{"member": {""}})
	addEntry(t, gw, outerDN, map[string][]string{model.MrightMember.Attr(): {naming.DNToURL(innerDN)}})

	e := newTestEngine(gw)
	require.NoError(t, e.Recompute(context.Background(), []WorkItem{{ID: "outer", Mright: model.MrightMember}}))

	// now add alice directly to inner (a direct membership write, exactly
	// as the write-side API would issue it) and recompute just inner;
	// outer should pick it up via the dependency cascade.
	require.NoError(t, gw.Modify(context.Background(), innerDN, []directory.Mod{
		{Verb: directory.ModVerbAdd, Attr: model.MrightMember.Attr(), Values: []string{naming.DNToURL(aliceDN)}},
	}))

	err := e.Recompute(context.Background(), []WorkItem{{ID: "inner", Mright: model.MrightMember}})
	require.NoError(t, err)

	vals, ok, err := gw.ReadOneMultiAttr(context.Background(), outerDN, "member")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{innerDN, aliceDN}, vals)
}
