package workflow

import "fmt"

// Project derives the document status from step statuses: any rejected step
// wins, then all-approved, otherwise pending. No steps means no validation.
func Project(steps []*Step) Status {
	if len(steps) == 0 {
		return StatusNone
	}
	approved := 0
	for _, s := range steps {
		switch s.Status {
		case StepRejected:
			return StatusRejected
		case StepApproved:
			approved++
		}
	}
	if approved == len(steps) {
		return StatusApproved
	}
	return StatusPending
}

// Verify checks that the persisted document status and flow activity agree
// with the projection over the aggregate's steps.
func Verify(agg *Aggregate) error {
	if agg == nil || agg.Document == nil {
		return fmt.Errorf("%w: aggregate has no document", ErrInvariantViolation)
	}

	if agg.Flow == nil {
		if agg.Document.ValidationStatus != StatusNone {
			return fmt.Errorf("%w: document %s is %s without a flow",
				ErrInvariantViolation, agg.Document.ID, agg.Document.ValidationStatus)
		}
		return nil
	}

	want := Project(agg.Steps)
	if agg.Document.ValidationStatus != want {
		return fmt.Errorf("%w: document %s persisted %s, steps project %s",
			ErrInvariantViolation, agg.Document.ID, agg.Document.ValidationStatus, want)
	}
	if agg.Flow.IsActive == want.IsTerminal() {
		return fmt.Errorf("%w: flow %s is_active=%t with status %s",
			ErrInvariantViolation, agg.Flow.ID, agg.Flow.IsActive, want)
	}
	return nil
}

// IsCompleted reports whether every step of the aggregate is approved.
func (a *Aggregate) IsCompleted() bool {
	return a.Flow != nil && Project(a.Steps) == StatusApproved
}

// IsRejected reports whether any step of the aggregate is rejected.
func (a *Aggregate) IsRejected() bool {
	return a.Flow != nil && Project(a.Steps) == StatusRejected
}

// PendingApprovers returns the approvers of still-pending steps in order,
// without duplicates.
func (a *Aggregate) PendingApprovers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range a.Steps {
		if s.Status != StepPending {
			continue
		}
		if _, ok := seen[s.ApproverID]; ok {
			continue
		}
		seen[s.ApproverID] = struct{}{}
		out = append(out, s.ApproverID)
	}
	return out
}

// Clone returns a deep copy so stores can hand out aggregates without
// sharing mutable state.
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	out := &Aggregate{}
	if a.Document != nil {
		doc := *a.Document
		out.Document = &doc
	}
	if a.Flow != nil {
		flow := *a.Flow
		out.Flow = &flow
	}
	out.Steps = make([]*Step, len(a.Steps))
	for i, s := range a.Steps {
		step := *s
		out.Steps[i] = &step
	}
	return out
}
