package remotesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/filter"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

// RemoteToGroupIDs maps a configured remote's name to the ids of every
// synchronized group pulling from it.
type RemoteToGroupIDs map[string][]string

// Cache memoizes RemoteToGroupIDs behind a single mutex: the whole index is
// rebuilt in one directory search, so there's nothing to gain from
// finer-grained per-remote locking. A zero-value TTL never expires the
// cache on its own — only Clear invalidates it, matching "cache is
// invalidated on explicit clear; otherwise the cache entry carries a
// creation timestamp for TTL policy".
type Cache struct {
	mu      sync.Mutex
	builtAt time.Time
	data    RemoteToGroupIDs
	ttl     time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Clear invalidates the cache unconditionally — an admin action.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// Get returns the memoized remote-to-groups index, rebuilding it from the
// directory if absent or past its TTL.
func (c *Cache) Get(ctx context.Context, gw directory.Gateway, cfg naming.Config) (RemoteToGroupIDs, error) {
	c.mu.Lock()
	if c.data != nil && (c.ttl <= 0 || time.Since(c.builtAt) < c.ttl) {
		data := c.data
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := buildRemoteToGroupIDs(ctx, gw, cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.data, c.builtAt = data, time.Now()
	c.mu.Unlock()

	return data, nil
}

// buildRemoteToGroupIDs rebuilds the index by scanning every group's direct
// Member attribute and classifying each value as a sync query or not. The
// original LDAP deployment distinguishes a synchronized Member value by a
// separate option-tagged attribute name (its own "to_attr_synchronized()");
// the Postgres-backed Gateway has no concept of option-tagged attribute
// variants, so a synchronized group's Member value lives in the ordinary
// memberURL;x-member attribute as a single "sql:" string (the same attribute
// internal/groupad.checkMods already allows a lone sync marker through on) —
// classification here is by parsing the value, not by a distinct attribute.
func buildRemoteToGroupIDs(ctx context.Context, gw directory.Gateway, cfg naming.Config) (RemoteToGroupIDs, error) {
	attr := model.MrightMember.Attr()

	entries, err := gw.Search(ctx, cfg.GroupsDN, filter.Present(attr), []string{attr}, 0)
	if err != nil {
		return nil, fmt.Errorf("rebuilding remote-to-group index: %w", err)
	}

	out := make(RemoteToGroupIDs)
	for _, e := range entries {
		id, ok := cfg.DNToSgroupID(e.DN)
		if !ok {
			continue
		}
		for _, v := range e.Attrs[attr] {
			q, err := ParseSyncURL(v)
			if err != nil || q == nil {
				continue
			}
			out[q.RemoteName] = append(out[q.RemoteName], id)
		}
	}
	return out, nil
}
