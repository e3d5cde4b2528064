package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAddReadRoundTrips(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "cn=a,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"a"}}))

	e, err := m.Read(ctx, "cn=a,ou=groups,dc=nodomain", nil)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, []string{"a"}, e.Attrs["cn"])
}

func TestMemoryAddRejectsDuplicateDN(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, "cn=a,dc=nodomain", nil, nil))
	err := m.Add(ctx, "cn=a,dc=nodomain", nil, nil)
	require.Error(t, err)
}

func TestMemoryReadMissingReturnsNilNotError(t *testing.T) {
	m := NewMemory()
	e, err := m.Read(context.Background(), "cn=nope,dc=nodomain", nil)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestMemoryModifyAddDeleteReplace(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "cn=a,dc=nodomain", nil, map[string][]string{"member": {"x"}}))

	require.NoError(t, m.Modify(ctx, "cn=a,dc=nodomain", []Mod{{Verb: ModVerbAdd, Attr: "member", Values: []string{"y"}}}))
	vals, ok, err := m.ReadOneMultiAttr(ctx, "cn=a,dc=nodomain", "member")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"x", "y"}, vals)

	require.NoError(t, m.Modify(ctx, "cn=a,dc=nodomain", []Mod{{Verb: ModVerbDelete, Attr: "member", Values: []string{"x"}}}))
	vals, _, err = m.ReadOneMultiAttr(ctx, "cn=a,dc=nodomain", "member")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, vals)

	require.NoError(t, m.Modify(ctx, "cn=a,dc=nodomain", []Mod{{Verb: ModVerbReplace, Attr: "member", Values: []string{"z"}}}))
	vals, _, err = m.ReadOneMultiAttr(ctx, "cn=a,dc=nodomain", "member")
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, vals)
}

func TestMemoryModifyMissingDNIsNotFound(t *testing.T) {
	m := NewMemory()
	err := m.Modify(context.Background(), "cn=missing,dc=nodomain", []Mod{{Verb: ModVerbAdd, Attr: "cn", Values: []string{"x"}}})
	require.Error(t, err)
}

func TestMemoryDeleteRemovesEntry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "cn=a,dc=nodomain", nil, nil))
	require.NoError(t, m.Delete(ctx, "cn=a,dc=nodomain"))

	e, err := m.Read(ctx, "cn=a,dc=nodomain", nil)
	require.NoError(t, err)
	assert.Nil(t, e)

	err = m.Delete(ctx, "cn=a,dc=nodomain")
	require.Error(t, err)
}

func TestMemorySearchScopesToBaseAndFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "cn=a,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"a"}}))
	require.NoError(t, m.Add(ctx, "cn=b,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"b"}}))
	require.NoError(t, m.Add(ctx, "uid=alice,ou=people,dc=nodomain", []string{"inetOrgPerson"}, map[string][]string{"cn": {"Alice"}}))

	out, err := m.Search(ctx, "ou=groups,dc=nodomain", "(cn=a)", nil, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cn=a,ou=groups,dc=nodomain", out[0].DN)
}

func TestMemorySearchSizeLimitCaps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "cn=a,ou=groups,dc=nodomain", nil, nil))
	require.NoError(t, m.Add(ctx, "cn=b,ou=groups,dc=nodomain", nil, nil))

	out, err := m.Search(ctx, "ou=groups,dc=nodomain", "(objectClass=*)", nil, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestMemoryOneMatchesFilterStopsAtFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "uid=alice,ou=people,dc=nodomain", nil, map[string][]string{"cn": {"Alice"}}))

	ok, err := m.OneMatchesFilter(ctx, "ou=people,dc=nodomain", "(cn=Alice)")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.OneMatchesFilter(ctx, "ou=people,dc=nodomain", "(cn=Bob)")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryReadFlattenedMembersNormalizesEmptyPlaceholder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Add(ctx, "cn=a,dc=nodomain", nil, map[string][]string{"member": {""}}))

	members, err := m.ReadFlattenedMembers(ctx, "cn=a,dc=nodomain")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemoryReadFlattenedMembersMissingDNIsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.ReadFlattenedMembers(context.Background(), "cn=missing,dc=nodomain")
	require.Error(t, err)
}
