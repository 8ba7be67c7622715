package workflow

import "fmt"

// ValidateSpec checks a requested approver list: non-empty, every order
// positive and strictly increasing, every slot assigned.
func ValidateSpec(specs []StepSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: at least one validation step is required", ErrInvalidFlowSpec)
	}

	seen := make(map[int]struct{}, len(specs))
	prev := 0
	for i, spec := range specs {
		if spec.Order <= 0 {
			return fmt.Errorf("%w: step %d has non-positive order %d", ErrInvalidFlowSpec, i+1, spec.Order)
		}
		if spec.ApproverID == "" {
			return fmt.Errorf("%w: step with order %d has no approver", ErrInvalidFlowSpec, spec.Order)
		}
		if _, dup := seen[spec.Order]; dup {
			return fmt.Errorf("%w: order %d is used more than once", ErrInvalidFlowSpec, spec.Order)
		}
		if spec.Order < prev {
			return fmt.Errorf("%w: orders must be strictly increasing (%d after %d)", ErrInvalidFlowSpec, spec.Order, prev)
		}
		seen[spec.Order] = struct{}{}
		prev = spec.Order
	}
	return nil
}

// NewFlow validates specs and builds an active flow with one pending step
// per spec. IDs and timestamps are left to the store.
func NewFlow(documentID string, specs []StepSpec) (*Flow, []*Step, error) {
	if err := ValidateSpec(specs); err != nil {
		return nil, nil, err
	}

	flow := &Flow{DocumentID: documentID, IsActive: true}
	steps := make([]*Step, 0, len(specs))
	for _, spec := range specs {
		steps = append(steps, &Step{
			Order:      spec.Order,
			ApproverID: spec.ApproverID,
			Status:     StepPending,
		})
	}
	return flow, steps, nil
}
