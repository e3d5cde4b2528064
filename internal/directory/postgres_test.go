package directory

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	psqlmigrations "github.com/groupad/groupad/db/psql"
)

// testPostgres opens a connection to the database named by DATABASE_URL,
// migrates it, and truncates directory_entries before handing the Gateway
// to the caller. Skipped in short mode and whenever DATABASE_URL isn't set,
// matching how the pack's own Postgres-backed integration tests opt in.
func testPostgres(t *testing.T) *Postgres {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Postgres-backed test in short mode")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres-backed test")
	}

	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	goose.SetBaseFS(psqlmigrations.Migrations)
	require.NoError(t, goose.Up(sqlDB, "migrations"))

	_, err = sqlDB.Exec("TRUNCATE directory_entries")
	require.NoError(t, err)

	return NewPostgres(sqlx.NewDb(sqlDB, "pgx"), false)
}

func TestPostgresSearchAppliesSizeLimitAfterFilter(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()

	// Three entries share the base; only two match the filter. A
	// pre-filter LIMIT of 2 would risk returning zero or one matching row
	// depending on row order; post-filter it must always return both.
	require.NoError(t, p.Add(ctx, "cn=a,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"a"}}))
	require.NoError(t, p.Add(ctx, "cn=b,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"b"}}))
	require.NoError(t, p.Add(ctx, "cn=nomatch,ou=groups,dc=nodomain", []string{"organizationalUnit"}, map[string][]string{"cn": {"nomatch"}}))

	out, err := p.Search(ctx, "ou=groups,dc=nodomain", "(objectClass=groupOfNames)", nil, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	dns := []string{out[0].DN, out[1].DN}
	assert.ElementsMatch(t, []string{"cn=a,ou=groups,dc=nodomain", "cn=b,ou=groups,dc=nodomain"}, dns)
}

func TestPostgresOneMatchesFilterSeesRealMatch(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "cn=decoy,ou=groups,dc=nodomain", []string{"organizationalUnit"}, map[string][]string{"cn": {"decoy"}}))
	require.NoError(t, p.Add(ctx, "cn=target,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"target"}}))

	// Before the LIMIT-ordering fix, OneMatchesFilter's sizeLimit=1 search
	// could fetch the decoy row first and never see the real match.
	ok, err := p.OneMatchesFilter(ctx, "ou=groups,dc=nodomain", "(objectClass=groupOfNames)")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresSearchPushesAttrEqualityIntoSQL(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "cn=a,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"a"}, "member": {"uid=alice,dc=nodomain"}}))
	require.NoError(t, p.Add(ctx, "cn=b,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"b"}, "member": {"uid=bob,dc=nodomain"}}))

	out, err := p.Search(ctx, "ou=groups,dc=nodomain", "(member=uid=alice,dc=nodomain)", nil, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cn=a,ou=groups,dc=nodomain", out[0].DN)
}

func TestPostgresSearchCNWildcardMatchesChildren(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "cn=a.b,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"a.b"}}))
	require.NoError(t, p.Add(ctx, "cn=a.c,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"a.c"}}))
	require.NoError(t, p.Add(ctx, "cn=z,ou=groups,dc=nodomain", []string{"groupOfNames"}, map[string][]string{"cn": {"z"}}))

	out, err := p.Search(ctx, "ou=groups,dc=nodomain", "(cn=a.*)", nil, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
