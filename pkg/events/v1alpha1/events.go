// Package v1alpha1 defines the wire shape of groupad's asynchronous event
// notifications: best-effort signals published after a flattening
// recomputation or a remote-sync cycle actually changes a group's state, for
// external consumers (caches, search indexes) to invalidate against.
package v1alpha1

const (
	// Version is the event envelope's API version constant.
	Version = "v1alpha1"

	// ActionFlattened is the action published when a flattening recompute
	// reports a change to a group's flattened attributes.
	ActionFlattened = "FLATTENED"
	// ActionSynced is the action published when a remote-sync cycle commits
	// a new direct Member set for a synchronized group.
	ActionSynced = "SYNCED"

	// SgroupsEventSubject is the subject name for sgroup events (minus the
	// subject prefix): "groupad.events.sgroups" under the default prefix. The
	// action travels in the event payload, not in the subject.
	SgroupsEventSubject = "sgroups"
)

// Event is an asynchronous notification published on the event bus.
type Event struct {
	Version string `json:"version"`
	Action  string `json:"action"`
	// SgroupID is the id of the group whose state changed.
	SgroupID string `json:"sgroup_id"`
	// Mright is set on a flattened-change event: which relation's flattened
	// attribute changed.
	Mright string `json:"mright,omitempty"`
	// Remote is set on a synced event: which configured remote drove the
	// change.
	Remote string `json:"remote,omitempty"`

	// TraceContext is a map of values used for OpenTelemetry context
	// propagation.
	TraceContext map[string]string `json:"traceContext"`
}
