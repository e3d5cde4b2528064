package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()

	v := viper.New()
	v.SetConfigType("yaml")

	require.NoError(t, v.ReadConfig(strReader(`
auth:
  bearer-secret: s3cret
  cookie-secret: c00kie
  cookie-ttl-minutes: 30
db:
  driver: crdb
nats:
  url: nats://127.0.0.1:4222
  creds-file: /etc/groupad/nats.creds
  subject-prefix: groupad.events
audit:
  log-dir: /var/log/groupad-audit
naming:
  separator: "."
  root-id: ""
  groups-dn: ou=groups,dc=example,dc=org
  base-dn: dc=example,dc=org
subject-sources:
  - dn: ou=people,dc=example,dc=org
    display-attrs: ["cn", "mail"]
    search-filter: "(|(cn=*%TERM%*)(mail=*%TERM%*))"
sgroup-attrs: ["description", "displayName"]
sgroup-search-filter: "(cn=*%TERM%*)"
remotes:
  - name: hr
    driver: postgres
    host: hr-db.internal
    port: 5432
    database: hr
    user: groupad
    password: hunter2
    periodicity: "*-*-* 04:00:00"
`)))

	return v
}

func TestLoadPopulatesEveryNestedSection(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.BearerSecret)
	assert.Equal(t, "c00kie", cfg.Auth.CookieSecret)
	assert.Equal(t, 30*time.Minute, cfg.Auth.CookieTTL)

	assert.Equal(t, "crdb", cfg.DB.Driver)

	assert.Equal(t, "/var/log/groupad-audit", cfg.AuditLogDir)

	assert.Equal(t, "dc=example,dc=org", cfg.Naming.BaseDN)
	assert.Equal(t, "ou=groups,dc=example,dc=org", cfg.Naming.GroupsDN)

	require.Len(t, cfg.SubjectSources, 1)
	assert.Equal(t, "ou=people,dc=example,dc=org", cfg.SubjectSources[0].DN)
	assert.Equal(t, []string{"cn", "mail"}, cfg.SubjectSources[0].DisplayAttrs)

	assert.Equal(t, []string{"description", "displayName"}, cfg.SgroupAttrs)
	assert.Equal(t, "(cn=*%TERM%*)", cfg.SgroupSearchFilter)

	require.Len(t, cfg.Remotes, 1)
	assert.Equal(t, "hr", cfg.Remotes[0].Name)
	assert.Equal(t, "postgres", cfg.Remotes[0].Driver)
}

func TestLoadDefaultsSgroupSearchFilterWhenUnset(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strReader(`naming: {}`)))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "(cn=*%TERM%*)", cfg.SgroupSearchFilter)
}

func TestRemoteConfigsRejectsUnknownDriver(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strReader(`
remotes:
  - name: broken
    driver: oracle
`)))

	cfg, err := Load(v)
	require.NoError(t, err)

	_, err = cfg.remoteConfigs()
	require.Error(t, err)
}

func TestRemoteConfigsAcceptsCockroachDBAlias(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strReader(`
remotes:
  - name: crdb-remote
    driver: cockroachdb
    host: localhost
    port: 26257
    database: groupad
`)))

	cfg, err := Load(v)
	require.NoError(t, err)

	remotes, err := cfg.remoteConfigs()
	require.NoError(t, err)
	require.Contains(t, remotes, "crdb-remote")
	assert.Equal(t, "cockroachdb", string(remotes["crdb-remote"].Driver))
}

func TestGroupadConfigTranslatesAttrsAndSources(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	gc := cfg.groupadConfig()
	require.Len(t, gc.SgroupAttrs, 2)
	assert.Equal(t, "description", string(gc.SgroupAttrs[0]))
	require.Len(t, gc.SubjectSources, 1)
	assert.Equal(t, "ou=people,dc=example,dc=org", gc.SubjectSources[0].DN)
}
