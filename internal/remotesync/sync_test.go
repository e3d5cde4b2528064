package remotesync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/flatten"
	"github.com/groupad/groupad/internal/model"
)

func newTestSyncer(gw *directory.Memory) *Syncer {
	cfg := testCfg()
	fl := flatten.New(gw, cfg, nil)
	return NewSyncer(gw, cfg, fl, NewCache(0), map[string]RemoteConfig{
		"foo": {Name: "foo", Driver: DriverPostgres, Host: "db", Port: 5432, Database: "app", User: "groupad"},
	})
}

func TestResolveSubjectsWithoutSubjectClauseReturnsRowsVerbatim(t *testing.T) {
	gw := directory.NewMemory()
	sy := newTestSyncer(gw)

	q := &Query{RemoteName: "foo", SelectQuery: "select dn from t"}
	rows := []string{"uid=alice,ou=people,dc=nodomain", "uid=bob,ou=people,dc=nodomain"}

	out, err := sy.resolveSubjects(context.Background(), q, rows)
	require.NoError(t, err)
	assert.Equal(t, rows, out)
}

func TestResolveSubjectsWithSubjectClauseLooksUpByAttr(t *testing.T) {
	gw := directory.NewMemory()
	sy := newTestSyncer(gw)
	ctx := context.Background()

	require.NoError(t, gw.Add(ctx, "uid=alice,ou=people,dc=nodomain", []string{"inetOrgPerson"}, map[string][]string{"uid": {"alice"}}))
	require.NoError(t, gw.Add(ctx, "uid=bob,ou=people,dc=nodomain", []string{"inetOrgPerson"}, map[string][]string{"uid": {"bob"}}))

	q := &Query{
		RemoteName:  "foo",
		Subject:     &SubjectRef{BaseDN: "ou=people,dc=nodomain", IDAttr: "uid"},
		SelectQuery: "select uid from users",
	}

	out, err := sy.resolveSubjects(ctx, q, []string{"alice", "bob", "nobody"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"uid=alice,ou=people,dc=nodomain", "uid=bob,ou=people,dc=nodomain"}, out)
}

func TestSyncOneRejectsGroupWithoutSyncMarker(t *testing.T) {
	gw := directory.NewMemory()
	sy := newTestSyncer(gw)
	cfg := testCfg()
	ctx := context.Background()

	require.NoError(t, gw.Add(ctx, cfg.SgroupIDToDN("a"), []string{"groupOfNames"}, map[string][]string{
		"cn": {"a"},
		model.MrightMember.Attr(): {"ldap:///uid=alice,ou=people,dc=nodomain"},
	}))

	err := sy.SyncOne(ctx, "a")
	require.Error(t, err)
}

func TestSyncOneRejectsGroupWithMultipleMemberValues(t *testing.T) {
	gw := directory.NewMemory()
	sy := newTestSyncer(gw)
	cfg := testCfg()
	ctx := context.Background()

	require.NoError(t, gw.Add(ctx, cfg.SgroupIDToDN("a"), []string{"groupOfNames"}, map[string][]string{
		"cn": {"a"},
		model.MrightMember.Attr(): {
			"ldap:///uid=alice,ou=people,dc=nodomain",
			"ldap:///uid=bob,ou=people,dc=nodomain",
		},
	}))

	err := sy.SyncOne(ctx, "a")
	require.Error(t, err)
}

func TestSyncOneRejectsUnknownGroup(t *testing.T) {
	gw := directory.NewMemory()
	sy := newTestSyncer(gw)

	err := sy.SyncOne(context.Background(), "nosuchgroup")
	require.Error(t, err)
}
