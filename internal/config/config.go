// Package config assembles the deployment-time configuration (cobra/viper
// flags plus the nested config file structures viper can't express as
// flags — subject sources, remote sync targets) into the wired object graph
// internal/groupad, internal/authz, internal/flatten, internal/remotesync
// and internal/audit need to run.
package config

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/groupad/groupad/internal/audit"
	"github.com/groupad/groupad/internal/authz"
	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/flatten"
	"github.com/groupad/groupad/internal/groupad"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
	"github.com/groupad/groupad/internal/remotesync"
	v1alpha "github.com/groupad/groupad/pkg/api/v1alpha1"
)

// NATSAuthMode is kept as a named type for forward compatibility with a
// richer auth mode set, but only creds-file-only is implemented: groupad has
// no workload-identity-federation or IAM-runtime deployment target in scope.
type NATSAuthMode string

// AuthModeCredsFileOnly is the only supported NATS auth mode.
const AuthModeCredsFileOnly NATSAuthMode = "creds-file-only"

// NATSConfig holds the subset of NATS connection configuration groupad
// needs: a creds file and a subject prefix. See eventbus.WithNATSConn /
// eventbus.NewClient for how these get used.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	CredsFile     string `mapstructure:"creds-file"`
	SubjectPrefix string `mapstructure:"subject-prefix"`
}

// DirectoryConfig selects the SQL directory backend dialect. The connection
// itself is opened by cmd's initTracingAndDB from the db.uri flag, not by
// this package — Build takes the already-open *sqlx.DB.
type DirectoryConfig struct {
	// Driver is "postgres" or "crdb"; selects both the migration set
	// (db/psql vs db/crdb) and the Postgres-dialect quirks NewPostgres
	// needs to know about (see internal/directory.NewPostgres's isCRDB
	// parameter).
	Driver string `mapstructure:"driver"`
}

// StemConfig mirrors naming.Config, given its own mapstructure tags so it
// can be read straight out of a config file's "naming" section.
type StemConfig struct {
	Separator string `mapstructure:"separator"`
	RootID    string `mapstructure:"root-id"`
	GroupsDN  string `mapstructure:"groups-dn"`
	BaseDN    string `mapstructure:"base-dn"`
}

func (sc StemConfig) toNaming() naming.Config {
	return naming.Config{Separator: sc.Separator, RootID: sc.RootID, GroupsDN: sc.GroupsDN, BaseDN: sc.BaseDN}
}

// SubjectSourceConfig is the config-file shape of
// groupad.SubjectSourceConfig.
type SubjectSourceConfig struct {
	DN           string   `mapstructure:"dn"`
	DisplayAttrs []string `mapstructure:"display-attrs"`
	SearchFilter string   `mapstructure:"search-filter"`
}

// RemoteSyncConfig is the config-file shape of remotesync.RemoteConfig, plus
// the map key a deployment references it by from a group's synchronization
// source attribute.
type RemoteSyncConfig struct {
	Name        string `mapstructure:"name"`
	Driver      string `mapstructure:"driver"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Database    string `mapstructure:"database"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Periodicity string `mapstructure:"periodicity"`
}

// Config is the complete top-level configuration groupad's serve command
// builds its object graph from. Auth, DB and NATS are flag-driven; Naming,
// SubjectSources, SgroupAttrs and Remotes are read from the config file's
// nested sections, since none of them are practically expressible as flat
// command-line flags.
type Config struct {
	Auth   v1alpha.AuthConf
	DB     DirectoryConfig
	NATS   NATSConfig
	Naming StemConfig

	SubjectSources     []SubjectSourceConfig `mapstructure:"subject-sources"`
	SgroupAttrs        []string              `mapstructure:"sgroup-attrs"`
	SgroupSearchFilter string                `mapstructure:"sgroup-search-filter"`
	Remotes            []RemoteSyncConfig    `mapstructure:"remotes"`

	AuditLogDir      string
	RemoteCacheTTL   time.Duration
	CookieTTLMinutes int
}

// AddFlags registers every groupad-specific persistent flag, binding each
// to its viper key the way cmd/root.go's existing flags do.
func AddFlags(flags *pflag.FlagSet, bind func(name string, flag *pflag.Flag)) {
	flags.String("auth-bearer-secret", "", "shared bearer secret trusted-admin and service callers authenticate with")
	bind("auth.bearer-secret", flags.Lookup("auth-bearer-secret"))

	flags.String("auth-cookie-secret", "", "HMAC signing secret for the session cookie")
	bind("auth.cookie-secret", flags.Lookup("auth-cookie-secret"))

	flags.Int("auth-cookie-ttl-minutes", 60*12, "session cookie validity, in minutes (0 disables expiry)")
	bind("auth.cookie-ttl-minutes", flags.Lookup("auth-cookie-ttl-minutes"))

	flags.String("db-driver", "postgres", `directory storage driver: "postgres" or "crdb"`)
	bind("db.driver", flags.Lookup("db-driver"))

	flags.String("audit-log-dir", "/app-audit", "directory groupad writes per-group audit trails under")
	bind("audit.log-dir", flags.Lookup("audit-log-dir"))

	flags.Duration("remote-cache-ttl", 5*time.Minute, "how long the remote-to-group sync index is cached before a rebuild")
	bind("remotesync.cache-ttl", flags.Lookup("remote-cache-ttl"))
}

// Load reads the fully populated Config out of viper, including the nested
// config-file-only sections AddFlags doesn't cover.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Auth: v1alpha.AuthConf{
			BearerSecret: v.GetString("auth.bearer-secret"),
			CookieSecret: v.GetString("auth.cookie-secret"),
			CookieTTL:    time.Duration(v.GetInt("auth.cookie-ttl-minutes")) * time.Minute,
		},
		DB: DirectoryConfig{
			Driver: v.GetString("db.driver"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			CredsFile:     v.GetString("nats.creds-file"),
			SubjectPrefix: v.GetString("nats.subject-prefix"),
		},
		AuditLogDir:    v.GetString("audit.log-dir"),
		RemoteCacheTTL: v.GetDuration("remotesync.cache-ttl"),
	}

	if err := v.UnmarshalKey("naming", &cfg.Naming); err != nil {
		return nil, fmt.Errorf("reading naming config: %w", err)
	}

	if err := v.UnmarshalKey("subject-sources", &cfg.SubjectSources); err != nil {
		return nil, fmt.Errorf("reading subject-sources config: %w", err)
	}

	if err := v.UnmarshalKey("sgroup-attrs", &cfg.SgroupAttrs); err != nil {
		return nil, fmt.Errorf("reading sgroup-attrs config: %w", err)
	}

	cfg.SgroupSearchFilter = v.GetString("sgroup-search-filter")
	if cfg.SgroupSearchFilter == "" {
		cfg.SgroupSearchFilter = "(cn=*%TERM%*)"
	}

	if err := v.UnmarshalKey("remotes", &cfg.Remotes); err != nil {
		return nil, fmt.Errorf("reading remotes config: %w", err)
	}

	return cfg, nil
}

func (c *Config) groupadConfig() groupad.Config {
	attrs := make([]model.Attr, len(c.SgroupAttrs))
	for i, a := range c.SgroupAttrs {
		attrs[i] = model.Attr(a)
	}

	sources := make([]groupad.SubjectSourceConfig, len(c.SubjectSources))
	for i, s := range c.SubjectSources {
		sources[i] = groupad.SubjectSourceConfig{DN: s.DN, DisplayAttrs: s.DisplayAttrs, SearchFilter: s.SearchFilter}
	}

	return groupad.Config{
		Naming:             c.Naming.toNaming(),
		SgroupAttrs:        attrs,
		SubjectSources:     sources,
		SgroupSearchFilter: c.SgroupSearchFilter,
	}
}

func (c *Config) remoteConfigs() (map[string]remotesync.RemoteConfig, error) {
	out := make(map[string]remotesync.RemoteConfig, len(c.Remotes))

	for _, r := range c.Remotes {
		var driver remotesync.Driver

		switch r.Driver {
		case "postgres":
			driver = remotesync.DriverPostgres
		case "crdb", "cockroachdb":
			driver = remotesync.DriverCockroachDB
		default:
			return nil, fmt.Errorf("remote %q: unknown driver %q", r.Name, r.Driver)
		}

		out[r.Name] = remotesync.RemoteConfig{
			Name:        r.Name,
			Driver:      driver,
			Host:        r.Host,
			Port:        r.Port,
			Database:    r.Database,
			User:        r.User,
			Password:    r.Password,
			Periodicity: r.Periodicity,
		}
	}

	return out, nil
}

// Graph is the fully wired object graph a running groupad server needs.
type Graph struct {
	GW        directory.Gateway
	Service   *groupad.Service
	Authz     *authz.Engine
	Flatten   *flatten.Engine
	Syncer    *remotesync.Syncer
	Scheduler *remotesync.Scheduler
	Audit     *audit.Sink
}

// Build wires db into a directory.Gateway and constructs every layer above
// it: the authz and flatten engines, the orchestration Service, the
// audit sink, and (if any remotes are configured) the remote sync Syncer
// plus the Scheduler that fires each remote on its own configured
// periodicity. log may be nil (the Scheduler falls back to a no-op logger).
func (c *Config) Build(db *sqlx.DB, log *zap.Logger) (*Graph, error) {
	isCRDB := c.DB.Driver == "crdb" || c.DB.Driver == "cockroachdb"
	gw := directory.NewPostgres(db, isCRDB)

	namingCfg := c.Naming.toNaming()
	az := authz.New(gw, namingCfg)
	fl := flatten.New(gw, namingCfg, nil)

	svc := groupad.New(gw, c.groupadConfig(), az, fl)

	sink := audit.New(c.AuditLogDir)
	svc.Logs = sink
	svc.Audit = sink

	remotes, err := c.remoteConfigs()
	if err != nil {
		return nil, err
	}

	var syncer *remotesync.Syncer
	var scheduler *remotesync.Scheduler
	if len(remotes) > 0 {
		cache := remotesync.NewCache(c.RemoteCacheTTL)
		syncer = remotesync.NewSyncer(gw, namingCfg, fl, cache, remotes)
		scheduler = remotesync.NewScheduler(syncer, log)
	}

	return &Graph{GW: gw, Service: svc, Authz: az, Flatten: fl, Syncer: syncer, Scheduler: scheduler, Audit: sink}, nil
}
