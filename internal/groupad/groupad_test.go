package groupad

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/groupad/groupad/internal/authz"
	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/flatten"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

func testNamingCfg() naming.Config {
	return naming.Config{Separator: ".", RootID: "", GroupsDN: "ou=groups,dc=nodomain", BaseDN: "dc=nodomain"}
}

func testConfig() Config {
	return Config{
		Naming:      testNamingCfg(),
		SgroupAttrs: []model.Attr{"ou", "description"},
		SubjectSources: []SubjectSourceConfig{
			{
				DN:           "ou=people,dc=nodomain",
				DisplayAttrs: []string{"uid", "cn"},
				SearchFilter: "(|(uid=%TERM%)(cn=%TERM%))",
			},
		},
		SgroupSearchFilter: "(cn=%TERM%)",
	}
}

func newTestService(gw *directory.Memory) *Service {
	cfg := testConfig()
	az := authz.New(gw, cfg.Naming)
	fl := flatten.New(gw, cfg.Naming, nil)
	return New(gw, cfg, az, fl)
}

func addEntry(t *testing.T, gw *directory.Memory, dn string, objectClasses []string, attrs map[string][]string) {
	t.Helper()
	require.NoError(t, gw.Add(context.Background(), dn, objectClasses, attrs))
}

func addGroup(t *testing.T, gw *directory.Memory, cfg naming.Config, id string, attrs map[string][]string) string {
	t.Helper()
	dn := cfg.SgroupIDToDN(id)
	merged := map[string][]string{"cn": {id}}
	for k, v := range attrs {
		merged[k] = v
	}
	addEntry(t, gw, dn, []string{"groupOfNames"}, merged)
	return dn
}

func addStem(t *testing.T, gw *directory.Memory, cfg naming.Config, id string, attrs map[string][]string) string {
	t.Helper()
	dn := cfg.SgroupIDToDN(id)
	merged := map[string][]string{"cn": {id}}
	for k, v := range attrs {
		merged[k] = v
	}
	addEntry(t, gw, dn, []string{"organizationalUnit"}, merged)
	return dn
}

func addPerson(t *testing.T, gw *directory.Memory, cfg naming.Config, uid string, attrs map[string][]string) string {
	t.Helper()
	dn := cfg.PeopleIDToDN(uid)
	merged := map[string][]string{"uid": {uid}}
	for k, v := range attrs {
		merged[k] = v
	}
	addEntry(t, gw, dn, []string{"inetOrgPerson"}, merged)
	return dn
}
