package candidate

import "fmt"

// Status is the staging state of a candidate. "pending" is the initial
// state; the other four are terminal. A later re-extraction creates a new
// candidate rather than reopening a terminal one.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAccepted     Status = "accepted"
	StatusRejected     Status = "rejected"
	StatusMerged       Status = "merged"
	StatusNeedsContext Status = "needs_context"
)

// AllStatuses lists every valid status, pending first.
var AllStatuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusRejected,
	StatusMerged,
	StatusNeedsContext,
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// DecisionKind is the judgment recorded by a reviewer.
type DecisionKind string

const (
	DecisionAccept            DecisionKind = "accept"
	DecisionReject            DecisionKind = "reject"
	DecisionMerge             DecisionKind = "merge"
	DecisionDefer             DecisionKind = "defer"
	DecisionNeedsMoreEvidence DecisionKind = "needs_more_evidence"
)

// AllDecisionKinds lists every valid decision kind.
var AllDecisionKinds = []DecisionKind{
	DecisionAccept,
	DecisionReject,
	DecisionMerge,
	DecisionDefer,
	DecisionNeedsMoreEvidence,
}

// Valid reports whether k is a known decision kind.
func (k DecisionKind) Valid() bool {
	for _, known := range AllDecisionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// StatusAfter returns the candidate status a decision of kind k causes.
// "defer" leaves the candidate pending (recorded in the audit log, but
// not a transition).
func StatusAfter(k DecisionKind) (Status, error) {
	switch k {
	case DecisionAccept:
		return StatusAccepted, nil
	case DecisionReject:
		return StatusRejected, nil
	case DecisionMerge:
		return StatusMerged, nil
	case DecisionNeedsMoreEvidence:
		return StatusNeedsContext, nil
	case DecisionDefer:
		return StatusPending, nil
	default:
		return "", fmt.Errorf("unknown decision kind: %s", k)
	}
}
