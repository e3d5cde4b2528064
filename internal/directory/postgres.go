package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres is a Gateway backed by a single directory_entries table (see
// db/psql/migrations and db/crdb/migrations): dn primary key,
// object_classes text[], attrs jsonb mapping attribute name to its list of
// values. It stands in for the directory server the rest of groupad talks
// to through the Gateway contract.
type Postgres struct {
	db     *sqlx.DB
	isCRDB bool
}

// NewPostgres wraps an already-open connection pool. isCRDB selects whether
// writes run through crdb.ExecuteTx (CockroachDB's client-side retry
// helper for serialization failures) or a plain sqlx transaction.
func NewPostgres(db *sqlx.DB, isCRDB bool) *Postgres {
	return &Postgres{db: db, isCRDB: isCRDB}
}

var _ Gateway = (*Postgres)(nil)

type entryRow struct {
	DN            string         `db:"dn"`
	ObjectClasses pq.StringArray `db:"object_classes"`
	Attrs         []byte         `db:"attrs"`
}

func (r entryRow) toEntry() (*Entry, error) {
	attrs := map[string][]string{}
	if len(r.Attrs) > 0 {
		if err := json.Unmarshal(r.Attrs, &attrs); err != nil {
			return nil, fmt.Errorf("decoding attrs for %s: %w", r.DN, err)
		}
	}

	return &Entry{DN: r.DN, ObjectClasses: []string(r.ObjectClasses), Attrs: attrs}, nil
}

func (p *Postgres) Read(ctx context.Context, dn string, attrs []string) (*Entry, error) {
	var row entryRow

	err := p.db.GetContext(ctx, &row,
		`SELECT dn, object_classes, attrs FROM directory_entries WHERE dn = $1`, dn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dn, err)
	}

	entry, err := row.toEntry()
	if err != nil {
		return nil, err
	}

	if attrs != nil {
		filtered := map[string][]string{}
		for _, a := range attrs {
			if v, ok := entry.Attrs[a]; ok {
				filtered[a] = v
			}
		}
		entry.Attrs = filtered
	}

	return entry, nil
}

func (p *Postgres) ReadOneMultiAttr(ctx context.Context, dn, attr string) ([]string, bool, error) {
	entry, err := p.Read(ctx, dn, []string{attr})
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}

	return entry.Attrs[attr], true, nil
}

func (p *Postgres) ReadFlattenedMembers(ctx context.Context, dn string) ([]string, error) {
	vals, ok, err := p.ReadOneMultiAttr(ctx, dn, "member")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound(dn)
	}
	if len(vals) == 1 && vals[0] == "" {
		return []string{}, nil
	}

	return vals, nil
}

// Search scans the subtree rooted at base and returns the entries matching
// filter, up to sizeLimit (0 means unlimited). filter is compiled into a SQL
// condition wherever compileFilterSQL recognizes its shape, so the GIN index
// on attrs narrows the scan; every candidate row is still re-checked with
// evalFilter, and sizeLimit is applied to that post-filter result, not to
// the raw row count, since an un-pushable (or partially pushed) filter must
// never let sizeLimit cut off matches before they've actually been matched.
func (p *Postgres) Search(ctx context.Context, base, filter string, attrs []string, sizeLimit int) ([]Entry, error) {
	query := `SELECT dn, object_classes, attrs FROM directory_entries WHERE (dn = $1 OR dn LIKE $2)`
	args := []any{base, "%," + base}

	if sqlCond, sqlArgs, _, ok := compileFilterSQL(filter, len(args)+1); ok {
		query += " AND (" + sqlCond + ")"
		args = append(args, sqlArgs...)
	}

	var rows []entryRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("searching under %s: %w", base, err)
	}

	var out []Entry
	for _, row := range rows {
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		if !evalFilter(entry, filter) {
			continue
		}
		if attrs != nil {
			filtered := map[string][]string{}
			for _, a := range attrs {
				if v, ok := entry.Attrs[a]; ok {
					filtered[a] = v
				}
			}
			entry.Attrs = filtered
		}
		out = append(out, *entry)
		if sizeLimit > 0 && len(out) >= sizeLimit {
			break
		}
	}

	return out, nil
}

func (p *Postgres) IsDNMatchingFilter(ctx context.Context, dn, filter string) (bool, error) {
	entry, err := p.Read(ctx, dn, nil)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	return evalFilter(entry, filter), nil
}

func (p *Postgres) OneMatchesFilter(ctx context.Context, base, filter string) (bool, error) {
	entries, err := p.Search(ctx, base, filter, []string{""}, 1)
	if err != nil {
		return false, err
	}

	return len(entries) > 0, nil
}

func (p *Postgres) Add(ctx context.Context, dn string, objectClasses []string, attrs map[string][]string) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding attrs for %s: %w", dn, err)
	}

	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO directory_entries (dn, object_classes, attrs) VALUES ($1, $2, $3)`,
			dn, pq.StringArray(objectClasses), payload)
		return err
	})
}

func (p *Postgres) Modify(ctx context.Context, dn string, mods []Mod) error {
	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		var row entryRow
		err := tx.GetContext(ctx, &row,
			`SELECT dn, object_classes, attrs FROM directory_entries WHERE dn = $1 FOR UPDATE`, dn)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound(dn)
		}
		if err != nil {
			return err
		}

		entry, err := row.toEntry()
		if err != nil {
			return err
		}

		for _, mod := range mods {
			switch mod.Verb {
			case ModVerbReplace:
				entry.Attrs[mod.Attr] = append([]string(nil), mod.Values...)
			case ModVerbAdd:
				entry.Attrs[mod.Attr] = append(entry.Attrs[mod.Attr], mod.Values...)
			case ModVerbDelete:
				entry.Attrs[mod.Attr] = removeValues(entry.Attrs[mod.Attr], mod.Values)
			}
		}

		payload, err := json.Marshal(entry.Attrs)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE directory_entries SET attrs = $2 WHERE dn = $1`, dn, payload)
		return err
	})
}

func (p *Postgres) Delete(ctx context.Context, dn string) error {
	return p.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM directory_entries WHERE dn = $1`, dn)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound(dn)
		}

		return nil
	})
}

// withTx runs fn in a transaction. On CockroachDB, crdb.ExecuteTx wraps it
// with the client-side retry loop CockroachDB's docs recommend for
// serialization failures (40001); on plain Postgres it's a single attempt.
func (p *Postgres) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if !p.isCRDB {
		tx, err := p.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	return crdb.ExecuteTx(ctx, p.db.DB, nil, func(sqlTx *sql.Tx) error {
		return fn(sqlx.NewTx(sqlTx, p.db.DriverName()))
	})
}
