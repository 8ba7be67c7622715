package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	tests := []struct {
		name  string
		steps []string
		want  Status
	}{
		{name: "no steps", want: StatusNone},
		{name: "all pending", steps: []string{"1:A:p", "2:B:p"}, want: StatusPending},
		{name: "partially approved", steps: []string{"1:A:a", "2:B:p"}, want: StatusPending},
		{name: "all approved", steps: []string{"1:A:a", "2:B:a"}, want: StatusApproved},
		{name: "rejection wins over approvals", steps: []string{"1:A:a", "2:B:r"}, want: StatusRejected},
		{name: "rejection wins over pending", steps: []string{"1:A:r", "2:B:p"}, want: StatusRejected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var steps []*Step
			if len(tc.steps) > 0 {
				steps = newAggregate(t, tc.steps...).Steps
			}
			assert.Equal(t, tc.want, Project(steps))
		})
	}
}

func TestVerify(t *testing.T) {
	t.Run("consistent aggregate", func(t *testing.T) {
		assert.NoError(t, Verify(newAggregate(t, "1:A:a", "2:B:p")))
	})

	t.Run("document without flow", func(t *testing.T) {
		agg := &Aggregate{Document: &Document{ID: "doc-1"}}
		assert.NoError(t, Verify(agg))

		agg.Document.ValidationStatus = StatusPending
		assert.ErrorIs(t, Verify(agg), ErrInvariantViolation)
	})

	t.Run("status drift", func(t *testing.T) {
		agg := newAggregate(t, "1:A:a", "2:B:a")
		agg.Document.ValidationStatus = StatusPending
		agg.Flow.IsActive = true
		err := Verify(agg)
		assert.ErrorIs(t, err, ErrInvariantViolation)
		assert.Contains(t, err.Error(), "steps project approved")
	})

	t.Run("terminal flow still active", func(t *testing.T) {
		agg := newAggregate(t, "1:A:r")
		agg.Flow.IsActive = true
		assert.ErrorIs(t, Verify(agg), ErrInvariantViolation)
	})

	t.Run("nil aggregate", func(t *testing.T) {
		assert.ErrorIs(t, Verify(nil), ErrInvariantViolation)
	})
}

func TestAggregateHelpers(t *testing.T) {
	agg := newAggregate(t, "1:A:a", "2:B:p", "3:A:p", "4:C:p")
	assert.Equal(t, []string{"B", "A", "C"}, agg.PendingApprovers())
	assert.False(t, agg.IsCompleted())
	assert.False(t, agg.IsRejected())

	clone := agg.Clone()
	clone.Steps[1].Status = StepApproved
	clone.Document.ValidationStatus = StatusApproved
	assert.Equal(t, StepPending, agg.Steps[1].Status)
	assert.Equal(t, StatusPending, agg.Document.ValidationStatus)

	done := newAggregate(t, "1:A:a")
	assert.True(t, done.IsCompleted())

	rejected := newAggregate(t, "1:A:r")
	require.True(t, rejected.IsRejected())
	assert.Empty(t, rejected.PendingApprovers())
}
