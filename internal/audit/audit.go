// Package audit implements the per-sgroup audit trail: one append-only JSONL
// file per id, holding every write the sgroup has ever been subject to. It
// implements internal/groupad's LogReader and AuditSink interfaces so the
// orchestration layer can depend on the narrower interfaces without importing
// this package, avoiding a cycle.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groupad/groupad/internal/authz"
)

// entry is the per-line shape written to a group's audit file: action, time,
// caller, and the action-specific payload (new attrs, requested mods, etc.).
// Deliberately hand-rolled rather than built on auditevent.AuditEvent: that
// type models one structured event per HTTP request fed into a single
// append-only stream (what ginaudit's middleware already does at the router
// layer, see pkg/api/v1alpha1/router.go); this is a different concern, a
// domain-action trail keyed and tailed per sgroup id, not per request.
type entry struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	When   string          `json:"when"` // ISO-8601, millisecond precision, UTC
	Who    string          `json:"who"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// isoMillis formats t per the audit record's timestamp convention:
// millisecond-precision ISO-8601 in UTC, mirroring
// chrono::SecondsFormat::Millis.
func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Sink writes and reads per-id audit trails under Dir, one <id>.jsonl file
// per sgroup (a bare "/" in an id is never expected per naming's grammar, but
// is sanitized defensively since it would otherwise escape Dir).
type Sink struct {
	Dir string

	mu sync.Mutex
}

func New(dir string) *Sink {
	return &Sink{Dir: dir}
}

func sanitizeID(id string) string {
	if id == "" {
		return "_root_"
	}
	return strings.ReplaceAll(id, "/", "_")
}

func (s *Sink) path(id string) string {
	return filepath.Join(s.Dir, sanitizeID(id)+".jsonl")
}

func who(identity authz.Identity) string {
	if identity.TrustedAdmin {
		return "trusted-admin"
	}
	return identity.Subject
}

// Record appends one audit line for id. Writes are serialized by a single
// mutex rather than one per id: the directory write this audits has already
// committed by the time Record is called, so a little serialization here
// costs nothing an LDAP-backed deployment would have noticed anyway.
func (s *Sink) Record(ctx context.Context, identity authz.Identity, action, id string, detail any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshaling audit detail for %s: %w", id, err)
	}

	line, err := json.Marshal(entry{
		ID:     uuid.NewString(),
		Action: action,
		When:   isoMillis(time.Now()),
		Who:    who(identity),
		Detail: raw,
	})
	if err != nil {
		return fmt.Errorf("marshaling audit entry for %s: %w", id, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit log for %s: %w", id, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("writing audit log for %s: %w", id, err)
	}
	return nil
}

// TailLog returns the last maxBytes of id's audit file, re-encoded as a JSON
// array of whole entries: a byte-offset tail can start mid-line, so the
// first line is dropped unless it is valid JSON on its own. A maxBytes <= 0 reads the
// whole file. A missing file (no audit recorded yet) returns an empty array,
// not an error.
func (s *Sink) TailLog(ctx context.Context, id string, maxBytes int64) (json.RawMessage, error) {
	f, err := os.Open(s.path(id))
	if os.IsNotExist(err) {
		return json.RawMessage("[]"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening audit log for %s: %w", id, err)
	}
	defer f.Close()

	buf, err := tail(f, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("reading audit log for %s: %w", id, err)
	}

	var entries []json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if first {
			first = false
			if !json.Valid(line) {
				// Likely a partial first line from an offset tail; drop it.
				continue
			}
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		entries = append(entries, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning audit log for %s: %w", id, err)
	}

	out, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding audit log for %s: %w", id, err)
	}
	return out, nil
}

func tail(f *os.File, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(f)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	offset := int64(0)
	if size > maxBytes {
		offset = size - maxBytes
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}
