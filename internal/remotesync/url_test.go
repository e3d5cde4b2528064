package remotesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSyncURLWithSubjectRoundTrips(t *testing.T) {
	url := "sql: remote=foo : subject=ou=people,dc=nodomain?uid : select username from users"

	q, err := ParseSyncURL(url)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "foo", q.RemoteName)
	require.NotNil(t, q.Subject)
	assert.Equal(t, "ou=people,dc=nodomain", q.Subject.BaseDN)
	assert.Equal(t, "uid", q.Subject.IDAttr)
	assert.Equal(t, "select username from users", q.SelectQuery)
	assert.Equal(t, url, q.String())
}

func TestParseSyncURLWithoutSubjectRoundTrips(t *testing.T) {
	url := "sql: remote=foo : select concat('uid=', username, ',ou=people,dc=nodomain') from users"

	q, err := ParseSyncURL(url)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "foo", q.RemoteName)
	assert.Nil(t, q.Subject)
	assert.Equal(t, url, q.String())
}

func TestParseSyncURLMissingRemoteIsError(t *testing.T) {
	_, err := ParseSyncURL("sql: select username from users")
	require.Error(t, err)
}

func TestParseSyncURLNotSqlPrefixedIsNotAQuery(t *testing.T) {
	q, err := ParseSyncURL("ldap:///uid=alice,ou=people,dc=nodomain")
	require.NoError(t, err)
	assert.Nil(t, q)
}
