package remotesync

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" sql.DB driver

	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/filter"
	"github.com/groupad/groupad/internal/flatten"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

// Driver names the external database engine a remote query runs against.
// The original's RemoteDriver enum was {Mysql, Oracle} (Oracle was never
// implemented, a todo!() even there); since the rest of groupad already
// standardizes on the Postgres-wire-protocol stack (pgx, lib/pq,
// cockroach-go) for its own storage, the remote-sync driver set is
// redesigned to match: {Postgres, CockroachDB}, both spoken over the same
// pgx stdlib driver, so a remote can be either a plain Postgres instance or
// a CockroachDB cluster without groupad caring which at the query-execution
// level.
type Driver string

const (
	DriverPostgres    Driver = "postgres"
	DriverCockroachDB Driver = "cockroachdb"
)

// RemoteConfig describes one external SQL source a synchronized group can
// pull its membership from. The retained original config struct has no
// db_name field even though its own query path reads remote_cfg.db_name —
// Database fills that gap; a connection obviously needs a database name.
type RemoteConfig struct {
	Name        string
	Driver      Driver
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	Periodicity string // systemd calendar expression, e.g. "*-*-* 04:00:00"
}

func (c RemoteConfig) dsn() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=prefer",
		c.Host, c.Port, c.Database, c.User, c.Password)
}

// Syncer runs synchronization cycles for every configured remote: executing
// its groups' sync queries, resolving results to subject DNs, and
// committing the new direct Member set through the same directory Gateway
// and flattening Engine the request-driven write path uses. It talks to
// the Gateway directly rather than through groupad.Service, since a sync
// cycle is a trusted background job, not a rights-checked user action —
// mirroring the original daemon, which runs outside of (and with broader
// privilege than) the LDAP ACL a logged-in user is bound by.
type Syncer struct {
	GW      directory.Gateway
	Cfg     naming.Config
	Flatten *flatten.Engine
	Cache   *Cache
	Remotes map[string]RemoteConfig

	// OnCommitted, if set, is called after SyncOne commits a new direct
	// Member set for (remote, id) — the seam the eventbus wiring hangs the
	// SYNCED notification (subject "groupad.events.sgroups") on, keeping this
	// package itself free of any event-bus dependency.
	OnCommitted func(remote, id string)

	mu    sync.Mutex
	pools map[string]*sql.DB
}

func NewSyncer(gw directory.Gateway, cfg naming.Config, fl *flatten.Engine, cache *Cache, remotes map[string]RemoteConfig) *Syncer {
	return &Syncer{GW: gw, Cfg: cfg, Flatten: fl, Cache: cache, Remotes: remotes, pools: map[string]*sql.DB{}}
}

func (sy *Syncer) pool(name string) (*sql.DB, error) {
	sy.mu.Lock()
	defer sy.mu.Unlock()

	if db, ok := sy.pools[name]; ok {
		return db, nil
	}

	rc, ok := sy.Remotes[name]
	if !ok {
		return nil, fmt.Errorf("unknown remote %s", name)
	}

	db, err := sql.Open("pgx", rc.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening remote %s: %w", name, err)
	}

	sy.pools[name] = db
	return db, nil
}

// rawQuery runs query's SELECT against its remote and returns the single
// string column every row of a sync query yields.
func (sy *Syncer) rawQuery(ctx context.Context, q *Query) ([]string, error) {
	db, err := sy.pool(q.RemoteName)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, q.SelectQuery)
	if err != nil {
		return nil, fmt.Errorf("querying remote %s: %w", q.RemoteName, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row from remote %s: %w", q.RemoteName, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// resolveSubjects turns the raw rows a sync query returned into subject DNs:
// either the rows already are DNs (no subject= clause), or each row is an
// identifying attribute value to look up under the configured subject
// branch.
func (sy *Syncer) resolveSubjects(ctx context.Context, q *Query, rawRows []string) ([]string, error) {
	if q.Subject == nil {
		return rawRows, nil
	}

	seen := map[string]struct{}{}
	var dns []string
	for _, v := range rawRows {
		f := filter.Eq(q.Subject.IDAttr, v)
		entries, err := sy.GW.Search(ctx, q.Subject.BaseDN, f, []string{""}, 1)
		if err != nil {
			return nil, fmt.Errorf("resolving subject %s=%s: %w", q.Subject.IDAttr, v, err)
		}
		if len(entries) == 0 {
			continue
		}
		dn := entries[0].DN
		if _, dup := seen[dn]; dup {
			continue
		}
		seen[dn] = struct{}{}
		dns = append(dns, dn)
	}
	return dns, nil
}

// SyncOne runs one synchronization cycle for the single group id, which
// must hold a "sql:" sync marker as its sole Member value. It replaces the
// group's direct Member set with the query's resolved result and cascades
// flattening recomputation, exactly as a user-driven ModifyMembersOrRights
// would.
func (sy *Syncer) SyncOne(ctx context.Context, id string) error {
	dn := sy.Cfg.SgroupIDToDN(id)
	attr := model.MrightMember.Attr()

	vals, ok, err := sy.GW.ReadOneMultiAttr(ctx, dn, attr)
	if err != nil {
		return fmt.Errorf("reading %s: %w", id, err)
	}
	if !ok {
		return directory.ErrNotFound(dn)
	}
	if len(vals) != 1 {
		return fmt.Errorf("%s is not a synchronized group (expected a single sync marker)", id)
	}

	q, err := ParseSyncURL(vals[0])
	if err != nil {
		return fmt.Errorf("parsing sync marker on %s: %w", id, err)
	}
	if q == nil {
		return fmt.Errorf("%s is not a synchronized group", id)
	}

	rawRows, err := sy.rawQuery(ctx, q)
	if err != nil {
		return err
	}

	subjects, err := sy.resolveSubjects(ctx, q, rawRows)
	if err != nil {
		return err
	}
	if len(subjects) == 0 {
		subjects = []string{""}
	}

	if err := sy.GW.Modify(ctx, dn, []directory.Mod{{
		Verb:   directory.ModVerbReplace,
		Attr:   attr,
		Values: subjects,
	}}); err != nil {
		return fmt.Errorf("committing synchronized membership for %s: %w", id, err)
	}

	if sy.OnCommitted != nil {
		sy.OnCommitted(q.RemoteName, id)
	}

	return sy.Flatten.Recompute(ctx, []flatten.WorkItem{{ID: id, Mright: model.MrightMember}})
}

// SyncRemote runs SyncOne for every group configured to synchronize from
// remoteName, per the cache's remote-to-group index. A failure on one
// group doesn't stop the others; all errors are joined and returned
// together so a scheduler run logs every failure from one cycle at once.
func (sy *Syncer) SyncRemote(ctx context.Context, remoteName string) error {
	index, err := sy.Cache.Get(ctx, sy.GW, sy.Cfg)
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range index[remoteName] {
		if err := sy.SyncOne(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("syncing %s: %w", id, err))
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msg := fmt.Sprintf("%d sync errors: %s", len(errs), errs[0])
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
