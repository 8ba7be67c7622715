package workflow

import (
	"fmt"
	"sort"
)

// Decision is the outcome of DecideApprove or DecideReject: which steps move
// to which status, and the document status that results. Stores apply a
// Decision inside one transaction; nothing here touches persistence.
type Decision struct {
	Kind        ActionKind
	DocumentID  string
	ActorID     string
	Reason      string
	Transitions []*Step // copies of the affected steps carrying their new status
	Status      Status  // projection after the transitions
	Deactivate  bool    // flow becomes inactive (terminal status)
}

// Orders returns the orders of the transitioned steps, ascending.
func (d *Decision) Orders() []int {
	orders := make([]int, 0, len(d.Transitions))
	for _, s := range d.Transitions {
		orders = append(orders, s.Order)
	}
	sort.Ints(orders)
	return orders
}

// Actions builds one audit record per transition, all attributed to the
// actor with the same reason. IDs and timestamps are assigned by the store.
func (d *Decision) Actions() []*Action {
	actions := make([]*Action, 0, len(d.Transitions))
	for _, s := range d.Transitions {
		actions = append(actions, &Action{
			DocumentID: d.DocumentID,
			StepID:     s.ID,
			StepOrder:  s.Order,
			ActorID:    d.ActorID,
			Action:     d.Kind,
			Reason:     d.Reason,
		})
	}
	return actions
}

// Apply returns a copy of agg with the decision applied.
func (d *Decision) Apply(agg *Aggregate) *Aggregate {
	out := agg.Clone()
	next := make(map[int]StepStatus, len(d.Transitions))
	for _, s := range d.Transitions {
		next[s.Order] = s.Status
	}
	for _, s := range out.Steps {
		if status, ok := next[s.Order]; ok {
			s.Status = status
		}
	}
	out.Document.ValidationStatus = d.Status
	if d.Deactivate {
		out.Flow.IsActive = false
	}
	return out
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// DecideApprove computes a hierarchical approval. With N the highest order
// among the pending steps actorID may act on, every pending step with
// order <= N is approved in the same decision.
func DecideApprove(agg *Aggregate, actorID, reason string, canAct CanActFunc) (*Decision, error) {
	if err := requireActive(agg); err != nil {
		return nil, err
	}
	if canAct == nil {
		canAct = SameApprover
	}

	rank := 0
	for _, s := range agg.Steps {
		if s.Status == StepPending && canAct(actorID, s.ApproverID) && s.Order > rank {
			rank = s.Order
		}
	}
	if rank == 0 {
		return nil, fmt.Errorf("%w: %q has no pending step on document %s",
			ErrNotAnApprover, actorID, agg.Document.ID)
	}

	d := newDecision(agg, ActionApprove, actorID, reason)
	for _, s := range ordered(agg.Steps) {
		if s.Status == StepPending && s.Order <= rank {
			d.Transitions = append(d.Transitions, withStatus(s, StepApproved))
		}
	}
	d.project(agg)
	return d, nil
}

// DecideReject computes a terminal rejection. The rejected step is the
// actor's lowest pending step, or their lowest step of any status when none
// is pending; rejection does not depend on ordering.
func DecideReject(agg *Aggregate, actorID, reason string, canAct CanActFunc) (*Decision, error) {
	if err := requireActive(agg); err != nil {
		return nil, err
	}
	if canAct == nil {
		canAct = SameApprover
	}

	var target, fallback *Step
	for _, s := range ordered(agg.Steps) {
		if !canAct(actorID, s.ApproverID) {
			continue
		}
		if s.Status == StepPending {
			target = s
			break
		}
		if fallback == nil {
			fallback = s
		}
	}
	if target == nil {
		target = fallback
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %q holds no step on document %s",
			ErrNotAnApprover, actorID, agg.Document.ID)
	}

	d := newDecision(agg, ActionReject, actorID, reason)
	d.Transitions = []*Step{withStatus(target, StepRejected)}
	d.project(agg)
	return d, nil
}

// RejectedOrder returns the order of the rejected step of a reject decision.
func (d *Decision) RejectedOrder() int {
	for _, s := range d.Transitions {
		if s.Status == StepRejected {
			return s.Order
		}
	}
	return 0
}

func requireActive(agg *Aggregate) error {
	if agg == nil || agg.Document == nil {
		return ErrDocumentNotFound
	}
	if agg.Flow == nil {
		return fmt.Errorf("%w: document %s", ErrFlowNotFound, agg.Document.ID)
	}
	if !agg.Flow.IsActive || agg.Document.ValidationStatus.IsTerminal() {
		return fmt.Errorf("%w: document %s is %s",
			ErrFlowNotActive, agg.Document.ID, agg.Document.ValidationStatus)
	}
	return nil
}

func newDecision(agg *Aggregate, kind ActionKind, actorID, reason string) *Decision {
	return &Decision{
		Kind:       kind,
		DocumentID: agg.Document.ID,
		ActorID:    actorID,
		Reason:     reason,
	}
}

// project recomputes the resulting status from the post-decision steps.
func (d *Decision) project(agg *Aggregate) {
	after := d.Apply(agg)
	d.Status = Project(after.Steps)
	d.Deactivate = d.Status.IsTerminal()
}

func ordered(steps []*Step) []*Step {
	out := make([]*Step, len(steps))
	copy(out, steps)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func withStatus(s *Step, status StepStatus) *Step {
	c := *s
	c.Status = status
	return &c
}

// Outcome is a committed Decision: the aggregate after the write and the
// audit records as persisted, with IDs and timestamps.
type Outcome struct {
	Decision  *Decision
	Aggregate *Aggregate
	Actions   []*Action
}
