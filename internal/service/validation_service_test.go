package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-validations/internal/lock"
	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/platform/logger"
	"github.com/pesio-ai/be-doc-validations/internal/repository/memory"
	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeDirectory struct {
	companies map[string]string
	err       error
}

func (d *fakeDirectory) UserCompany(_ context.Context, userID string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	company, ok := d.companies[userID]
	if !ok {
		return "", errors.NotFound("user", userID)
	}
	return company, nil
}

type publishedEvent struct {
	eventType  string
	documentID string
	actorID    string
	recipients []string
	payload    map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *fakeNotifier) PublishValidationEvent(_ context.Context, eventType, documentID, _, actorID string, recipients []string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{eventType, documentID, actorID, recipients, payload})
}

func (n *fakeNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.eventType
	}
	return out
}

func (n *fakeNotifier) last() publishedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

type fixture struct {
	svc      *ValidationService
	store    *memory.Store
	locker   *lock.LocalLocker
	notifier *fakeNotifier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		locker:   lock.NewLocalLocker(200 * time.Millisecond),
		notifier: &fakeNotifier{},
	}
	opts = append([]Option{WithNotifier(f.notifier)}, opts...)
	f.svc = NewValidationService(f.store, f.locker, logger.Nop(), opts...)
	return f
}

func (f *fixture) createFlow(t *testing.T, docID string, approvers ...string) {
	t.Helper()
	specs := make([]workflow.StepSpec, len(approvers))
	for i, a := range approvers {
		specs[i] = workflow.StepSpec{Order: i + 1, ApproverID: a}
	}
	_, err := f.svc.CreateFlow(context.Background(), &CreateFlowRequest{DocumentID: docID, CompanyID: "co-1", Steps: specs})
	require.NoError(t, err)
}

func (f *fixture) stepStatuses(t *testing.T, docID string) []workflow.StepStatus {
	t.Helper()
	view, err := f.svc.GetStatus(context.Background(), docID)
	require.NoError(t, err)
	out := make([]workflow.StepStatus, len(view.Steps))
	for i, s := range view.Steps {
		out[i] = s.Status
	}
	return out
}

func approve(svc *ValidationService, docID, actor string) (*ApproveResult, error) {
	return svc.Approve(context.Background(), &DecisionRequest{DocumentID: docID, ActorID: actor})
}

// ── scenarios ─────────────────────────────────────────────────────────────────

func TestSequentialApprovalChain(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A", "B", "C")
	P, A := workflow.StepPending, workflow.StepApproved

	res, err := approve(f.svc, "doc-1", "A")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.ApprovedOrders)
	assert.False(t, res.FullyApproved)
	assert.Equal(t, workflow.StatusPending, res.Status)
	assert.Equal(t, []workflow.StepStatus{A, P, P}, f.stepStatuses(t, "doc-1"))

	res, err = approve(f.svc, "doc-1", "B")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, res.ApprovedOrders)
	assert.Len(t, res.Actions, 1)

	res, err = approve(f.svc, "doc-1", "C")
	require.NoError(t, err)
	assert.True(t, res.FullyApproved)

	view, err := f.svc.GetStatus(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, view.Status)
	assert.False(t, view.IsActive)
	assert.True(t, view.IsCompleted)

	history, err := f.svc.GetHistory(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestSeniorRejectsWithJuniorPending(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A", "B")

	res, err := f.svc.Reject(context.Background(), &DecisionRequest{DocumentID: "doc-1", ActorID: "B", Reason: "wrong totals"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RejectedOrder)
	assert.Equal(t, workflow.StatusRejected, res.Status)
	assert.Equal(t, "wrong totals", res.Action.Reason)

	assert.Equal(t, []workflow.StepStatus{workflow.StepPending, workflow.StepRejected}, f.stepStatuses(t, "doc-1"))

	_, err = approve(f.svc, "doc-1", "A")
	assert.ErrorIs(t, err, workflow.ErrFlowNotActive)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = f.svc.Reject(context.Background(), &DecisionRequest{DocumentID: "doc-1", ActorID: "A"})
	assert.ErrorIs(t, err, workflow.ErrFlowNotActive)
}

func TestDuplicateOrdersPersistNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateFlow(context.Background(), &CreateFlowRequest{
		DocumentID: "doc-1",
		Steps: []workflow.StepSpec{
			{Order: 1, ApproverID: "A"},
			{Order: 1, ApproverID: "B"},
			{Order: 2, ApproverID: "C"},
		},
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidFlowSpec)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = f.svc.GetStatus(context.Background(), "doc-1")
	assert.ErrorIs(t, err, workflow.ErrDocumentNotFound)
	assert.Empty(t, f.notifier.types())
}

func TestStrangerCannotApprove(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A", "B")

	_, err := approve(f.svc, "doc-1", "Z")
	assert.ErrorIs(t, err, workflow.ErrNotAnApprover)
	assert.Equal(t, errors.ErrCodeForbidden, errors.CodeOf(err))

	view, err := f.svc.GetStatus(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, view.Status)

	history, err := f.svc.GetHistory(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSeniorApprovalRatifiesJuniors(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A", "B", "C")

	res, err := approve(f.svc, "doc-1", "C")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.ApprovedOrders)
	assert.True(t, res.FullyApproved)
	require.Len(t, res.Actions, 3)
	for _, a := range res.Actions {
		assert.Equal(t, "C", a.ActorID)
	}
}

func TestCreateFlowTwice(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A")

	_, err := f.svc.CreateFlow(context.Background(), &CreateFlowRequest{
		DocumentID: "doc-1",
		Steps:      []workflow.StepSpec{{Order: 1, ApproverID: "B"}},
	})
	assert.ErrorIs(t, err, workflow.ErrFlowAlreadyExists)
}

func TestCreateFlowAfterTerminalFlow(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A", "B")

	_, err := f.svc.Reject(context.Background(), &DecisionRequest{DocumentID: "doc-1", ActorID: "B"})
	require.NoError(t, err)

	_, err = f.svc.CreateFlow(context.Background(), &CreateFlowRequest{
		DocumentID: "doc-1",
		Steps:      []workflow.StepSpec{{Order: 1, ApproverID: "A"}},
	})
	assert.ErrorIs(t, err, workflow.ErrFlowAlreadyExists)

	view, err := f.svc.GetStatus(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRejected, view.Status)
	assert.Len(t, view.Steps, 2)
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateFlow(ctx, &CreateFlowRequest{Steps: []workflow.StepSpec{{Order: 1, ApproverID: "A"}}})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = f.svc.Approve(ctx, &DecisionRequest{DocumentID: "doc-1"})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = approve(f.svc, "missing", "A")
	assert.ErrorIs(t, err, workflow.ErrDocumentNotFound)

	_, err = f.svc.GetPendingApprovals(ctx, " ")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

// ── atomicity & concurrency ───────────────────────────────────────────────────

func TestFailedWriteLeavesNoTrace(t *testing.T) {
	boom := stderrors.New("write failed")
	store := memory.New(memory.WithBeforeSave(func(o *workflow.Outcome) error {
		if o.Decision.Kind == workflow.ActionApprove {
			return boom
		}
		return nil
	}))
	notifier := &fakeNotifier{}
	svc := NewValidationService(store, lock.NewLocalLocker(time.Second), logger.Nop(), WithNotifier(notifier))

	_, err := svc.CreateFlow(context.Background(), &CreateFlowRequest{
		DocumentID: "doc-1",
		Steps:      []workflow.StepSpec{{Order: 1, ApproverID: "A"}, {Order: 2, ApproverID: "B"}},
	})
	require.NoError(t, err)
	before := len(notifier.types())

	_, err = approve(svc, "doc-1", "B")
	assert.ErrorIs(t, err, boom)

	view, err := svc.GetStatus(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, view.Status)
	for _, s := range view.Steps {
		assert.Equal(t, workflow.StepPending, s.Status)
	}
	assert.Len(t, notifier.types(), before)
}

func TestBusyLockHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A", "B")

	release, err := f.locker.Obtain(context.Background(), lock.DocumentKey("doc-1"))
	require.NoError(t, err)

	_, err = approve(f.svc, "doc-1", "A")
	assert.ErrorIs(t, err, workflow.ErrBusy)
	assert.Equal(t, errors.ErrCodeUnavailable, errors.CodeOf(err))
	release()

	history, err := f.svc.GetHistory(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = approve(f.svc, "doc-1", "A")
	assert.NoError(t, err)
}

func TestConcurrentApprovalsSerialize(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t, func(s *ValidationService) {
			s.locker = lock.NewLocalLocker(5 * time.Second)
		})
		docID := fmt.Sprintf("doc-%d", round)
		f.createFlow(t, docID, "A", "B", "C", "D")

		var wg sync.WaitGroup
		for _, actor := range []string{"A", "B", "C", "D", "A", "C"} {
			wg.Add(1)
			go func(actor string) {
				defer wg.Done()
				_, _ = approve(f.svc, docID, actor)
			}(actor)
		}
		wg.Wait()

		view, err := f.svc.GetStatus(context.Background(), docID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusApproved, view.Status)

		history, err := f.svc.GetHistory(context.Background(), docID)
		require.NoError(t, err)
		assert.Len(t, history, 4, "every step transitions exactly once")
		seen := map[int]bool{}
		for _, a := range history {
			assert.False(t, seen[a.StepOrder], "step %d approved twice", a.StepOrder)
			seen[a.StepOrder] = true
		}
	}
}

// ── directory & events ────────────────────────────────────────────────────────

func TestDirectoryMembership(t *testing.T) {
	dir := &fakeDirectory{companies: map[string]string{"A": "co-1", "B": "co-1", "X": "co-2"}}
	f := newFixture(t, WithDirectory(dir))
	ctx := context.Background()

	_, err := f.svc.CreateFlow(ctx, &CreateFlowRequest{
		DocumentID: "doc-1",
		CompanyID:  "co-1",
		Steps:      []workflow.StepSpec{{Order: 1, ApproverID: "A"}, {Order: 2, ApproverID: "X"}},
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidFlowSpec)

	_, err = f.svc.CreateFlow(ctx, &CreateFlowRequest{
		DocumentID: "doc-1",
		CompanyID:  "co-1",
		Steps:      []workflow.StepSpec{{Order: 1, ApproverID: "A"}, {Order: 2, ApproverID: "ghost"}},
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidFlowSpec)

	f.createFlow(t, "doc-1", "A", "B")

	dir.companies["B"] = "co-2"
	_, err = approve(f.svc, "doc-1", "B")
	assert.ErrorIs(t, err, workflow.ErrNotAnApprover)

	dir.err = stderrors.New("directory down")
	_, err = approve(f.svc, "doc-1", "A")
	assert.Equal(t, errors.ErrCodeUnavailable, errors.CodeOf(err))
}

func TestEventsFollowCommits(t *testing.T) {
	f := newFixture(t)
	f.createFlow(t, "doc-1", "A", "B")
	assert.Equal(t, []string{EventFlowCreated, EventApprovalRequired}, f.notifier.types())

	_, err := approve(f.svc, "doc-1", "A")
	require.NoError(t, err)
	last := f.notifier.last()
	assert.Equal(t, EventApprovalRequired, last.eventType)
	assert.Equal(t, []string{"B"}, last.recipients)
	assert.Equal(t, "A", last.actorID)

	_, err = approve(f.svc, "doc-1", "B")
	require.NoError(t, err)
	last = f.notifier.last()
	assert.Equal(t, EventDocumentApproved, last.eventType)
	assert.Equal(t, []string{"A", "B"}, last.recipients)
	assert.Equal(t, "approved", last.payload["status"])

	f.createFlow(t, "doc-2", "A", "B")
	_, err = f.svc.Reject(context.Background(), &DecisionRequest{DocumentID: "doc-2", ActorID: "A", Reason: "no"})
	require.NoError(t, err)
	last = f.notifier.last()
	assert.Equal(t, EventDocumentRejected, last.eventType)
	assert.Equal(t, "no", last.payload["reason"])
}

func TestPendingApprovalsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createFlow(t, "doc-1", "A", "B")
	f.createFlow(t, "doc-2", "B", "C")

	pending, err := f.svc.GetPendingApprovals(ctx, "B")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	_, err = approve(f.svc, "doc-2", "C")
	require.NoError(t, err)

	pending, err = f.svc.GetPendingApprovals(ctx, "B")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "doc-1", pending[0].DocumentID)
	assert.Equal(t, 2, pending[0].StepOrder)

	stats, err := f.svc.GetApprovalStats(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Approved)
	assert.Equal(t, 2, stats.TotalActions)
}

func TestGetStatusWithoutFlow(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetStatus(context.Background(), "unknown")
	assert.ErrorIs(t, err, workflow.ErrDocumentNotFound)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}
