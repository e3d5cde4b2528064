// Package groupad orchestrates the read and write APIs on top of
// internal/directory, internal/authz and internal/flatten: the layer that
// knows how a request turns into directory reads/writes, rights checks and
// flattening work, without itself speaking HTTP or LDAP.
package groupad

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/groupad/groupad/internal/authz"
	"github.com/groupad/groupad/internal/directory"
	"github.com/groupad/groupad/internal/flatten"
	"github.com/groupad/groupad/internal/model"
	"github.com/groupad/groupad/internal/naming"
)

// SubjectSourceConfig declares one branch of the directory that can be
// searched/displayed as a source of subjects (people, application service
// accounts, or anything else a group can hold a relation to besides another
// group). DN is matched by suffix against a subject's parent DN to decide
// which source owns it; sources earlier in the configured list win ties.
type SubjectSourceConfig struct {
	DN           string
	DisplayAttrs []string
	// SearchFilter is a template containing the literal "%TERM%" placeholder,
	// substituted with the (already filter-escaped) search token.
	SearchFilter string
}

// SearchFilterFor substitutes term into the configured template.
func (sc SubjectSourceConfig) SearchFilterFor(term string) string {
	return strings.ReplaceAll(sc.SearchFilter, "%TERM%", term)
}

// Config bundles the naming scheme, the configured sgroup attribute
// vocabulary, the subject sources, and the group-search template into the
// shape Service needs.
type Config struct {
	Naming             naming.Config
	SgroupAttrs        []model.Attr
	SubjectSources     []SubjectSourceConfig
	SgroupSearchFilter string // template, "%TERM%" placeholder, e.g. "(cn=*%TERM%*)"
}

// LogReader reads back a group's audit trail; implemented by
// internal/audit, kept as an interface here so groupad never imports it
// directly.
type LogReader interface {
	TailLog(ctx context.Context, id string, maxBytes int64) (json.RawMessage, error)
}

// AuditSink records a completed write operation; implemented by
// internal/audit. A nil Audit on Service is valid and simply skips
// recording (used by tests that don't care about the audit trail).
type AuditSink interface {
	Record(ctx context.Context, identity authz.Identity, action, id string, detail any) error
}

// Service is the orchestration layer: every read/write API operation hangs
// off it.
type Service struct {
	GW      directory.Gateway
	Cfg     Config
	Authz   *authz.Engine
	Flatten *flatten.Engine
	Logs    LogReader
	Audit   AuditSink
}

func New(gw directory.Gateway, cfg Config, az *authz.Engine, fl *flatten.Engine) *Service {
	return &Service{GW: gw, Cfg: cfg, Authz: az, Flatten: fl}
}

func (s *Service) displayAttrNames() []string {
	names := make([]string, len(s.Cfg.SgroupAttrs))
	for i, a := range s.Cfg.SgroupAttrs {
		names[i] = string(a)
	}
	return names
}

func (s *Service) subjectSourceFor(dn string) (SubjectSourceConfig, bool) {
	for _, sc := range s.Cfg.SubjectSources {
		if dn == sc.DN || strings.HasSuffix(dn, ","+sc.DN) {
			return sc, true
		}
	}
	return SubjectSourceConfig{}, false
}

func monoAttrs(attrs map[string][]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
