package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMrightRoundTripsEveryValue(t *testing.T) {
	for _, m := range AllMrights() {
		got, err := ParseMright(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestParseMrightRejectsUnknown(t *testing.T) {
	_, err := ParseMright("bogus")
	require.Error(t, err)
}

func TestMrightAttrUsesMemberURLConvention(t *testing.T) {
	assert.Equal(t, "memberURL;x-admin", MrightAdmin.Attr())
	assert.Equal(t, "memberURL;x-member", MrightMember.Attr())
}

func TestRightAllowedRightsIsBestFirstAndMonotone(t *testing.T) {
	assert.Equal(t, []Right{RightAdmin, RightUpdater, RightReader}, RightReader.AllowedRights())
	assert.Equal(t, []Right{RightAdmin, RightUpdater}, RightUpdater.AllowedRights())
	assert.Equal(t, []Right{RightAdmin}, RightAdmin.AllowedRights())
}

func TestRightSatisfiesLattice(t *testing.T) {
	assert.True(t, RightAdmin.Satisfies(RightReader))
	assert.True(t, RightUpdater.Satisfies(RightUpdater))
	assert.False(t, RightReader.Satisfies(RightUpdater))
}

func TestRightMrightConversion(t *testing.T) {
	assert.Equal(t, MrightReader, RightReader.Mright())
	assert.Equal(t, MrightUpdater, RightUpdater.Mright())
	assert.Equal(t, MrightAdmin, RightAdmin.Mright())
}

func TestRightAllowedAttrsMatchesAllowedRights(t *testing.T) {
	attrs := RightUpdater.AllowedAttrs()
	assert.Equal(t, []string{"memberURL;x-admin", "memberURL;x-updater"}, attrs)
}

func TestEntryKindMarshalJSON(t *testing.T) {
	b, err := EntryKindStem.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"stem"`, string(b))

	b, err = EntryKindGroup.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"group"`, string(b))
}

func TestModStringCoversEveryVerb(t *testing.T) {
	assert.Equal(t, "add", ModAdd.String())
	assert.Equal(t, "delete", ModDelete.String())
	assert.Equal(t, "replace", ModReplace.String())
}
