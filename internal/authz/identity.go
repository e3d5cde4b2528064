// Package authz implements the authorization engine: resolving a caller's
// identity into the set of URLs the rights lattice is evaluated against,
// and checking whether that caller holds a right on a group, its parent
// stems, or both.
package authz

import (
	"context"
	"fmt"

	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/filter"
	"github.com/groupad/groupad/internal/naming"
)

// Identity is the resolved caller of an operation: either the trusted-admin
// bypass identity (configured bearer secret, no impersonation), or a real
// subject.
type Identity struct {
	TrustedAdmin bool
	Subject      string // bare subject id, empty when TrustedAdmin
}

// Trusted admins can never be individually revoked at finer granularity;
// that's intentional — see §4.4 of the design notes: the bearer secret is a
// deploy-level escape hatch, not a per-subject right.

// URLs resolves identity into its membership URL set: the subject's own DN,
// plus the DN of every group it is a *flattened* member of. A TrustedAdmin
// identity has no URLs — callers must special-case it, since it bypasses
// rights checks entirely rather than being granted via membership.
func URLs(ctx context.Context, gw directory.Gateway, cfg naming.Config, identity Identity) ([]string, error) {
	if identity.TrustedAdmin {
		return nil, nil
	}

	subjectDN := cfg.PeopleIDToDN(identity.Subject)

	groupDNs, err := gw.Search(ctx, cfg.GroupsDN, filter.Member(subjectDN), []string{""}, 0)
	if err != nil {
		return nil, fmt.Errorf("resolving groups for %s: %w", identity.Subject, err)
	}

	urls := make([]string, 0, len(groupDNs)+1)
	urls = append(urls, naming.DNToURL(subjectDN))
	for _, e := range groupDNs {
		urls = append(urls, naming.DNToURL(e.DN))
	}

	return urls, nil
}
