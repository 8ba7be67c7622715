// Package workflow holds the hierarchical validation model and the pure
// decision logic applied to it. Nothing in this package performs I/O.
package workflow

import "time"

// ── Statuses ──────────────────────────────────────────────────────────────────

// Status is the derived validation status of a document.
type Status string

const (
	StatusNone     Status = ""
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// String renders StatusNone as "none" for logs and APIs.
func (s Status) String() string {
	if s == StatusNone {
		return "none"
	}
	return string(s)
}

// StepStatus is the state of one approver slot.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

// ActionKind is the kind of an audit action.
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionReject  ActionKind = "reject"
)

// ── Records ───────────────────────────────────────────────────────────────────

// Document is the engine's view of a document owned by the Document Service.
type Document struct {
	ID               string
	CompanyID        string
	EntityID         string
	ValidationStatus Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Flow is the 1:1 validation container of a document.
type Flow struct {
	ID         string
	DocumentID string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Step is one approver's rank within a flow.
type Step struct {
	ID         string
	FlowID     string
	Order      int
	ApproverID string
	Status     StepStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Action is one immutable audit record. It is never updated or deleted.
type Action struct {
	ID         string
	DocumentID string
	StepID     string
	StepOrder  int
	ActorID    string
	Action     ActionKind
	Reason     string
	CreatedAt  time.Time
}

// StepSpec is one requested approver slot at flow creation.
type StepSpec struct {
	Order      int
	ApproverID string
}

// Aggregate is the unit of mutual exclusion: a document, its flow and the
// flow's steps ordered by Order.
type Aggregate struct {
	Document *Document
	Flow     *Flow
	Steps    []*Step
}

// PendingApproval is a document waiting on a given approver.
type PendingApproval struct {
	DocumentID    string
	CompanyID     string
	EntityID      string
	FlowID        string
	StepOrder     int
	FlowCreatedAt time.Time
}

// ApprovalStats summarises one actor's activity.
type ApprovalStats struct {
	Approved     int
	Rejected     int
	Pending      int
	TotalActions int
}

// CanActFunc reports whether actorID may act on a step assigned to
// approverID. Identity resolution (delegation, aliases) lives behind it.
type CanActFunc func(actorID, approverID string) bool

// SameApprover is the default CanActFunc: only the assigned approver acts.
func SameApprover(actorID, approverID string) bool {
	return actorID != "" && actorID == approverID
}
