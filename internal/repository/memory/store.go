// Package memory is an in-process validation store. Aggregates are replaced
// wholesale on commit, so readers never observe a partially applied decision.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// Store keeps aggregates keyed by document ID plus the append-only action log.
type Store struct {
	mu         sync.RWMutex
	aggregates map[string]*workflow.Aggregate
	actions    map[string][]*workflow.Action // by document ID, insertion order

	now        func() time.Time
	beforeSave func(*workflow.Outcome) error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBeforeSave installs a hook that runs after a decision is applied and
// before it is stored. An error aborts the write and leaves the store as it was.
func WithBeforeSave(fn func(*workflow.Outcome) error) Option {
	return func(s *Store) { s.beforeSave = fn }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		aggregates: make(map[string]*workflow.Aggregate),
		actions:    make(map[string][]*workflow.Action),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateFlow registers the document if needed and stores the flow with its
// steps. A document owns at most one flow.
func (s *Store) CreateFlow(_ context.Context, doc *workflow.Document, flow *workflow.Flow, steps []*workflow.Step) (*workflow.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.aggregates[doc.ID]
	if ok && existing.Flow != nil {
		return nil, fmt.Errorf("%w: document %s", workflow.ErrFlowAlreadyExists, doc.ID)
	}

	agg := &workflow.Aggregate{}
	if ok {
		agg = existing.Clone()
	} else {
		d := *doc
		d.CreatedAt = now
		agg.Document = &d
	}

	f := *flow
	f.ID = uuid.NewString()
	f.DocumentID = doc.ID
	f.IsActive = true
	f.CreatedAt, f.UpdatedAt = now, now
	agg.Flow = &f

	agg.Steps = make([]*workflow.Step, 0, len(steps))
	for _, step := range steps {
		st := *step
		st.ID = uuid.NewString()
		st.FlowID = f.ID
		st.Status = workflow.StepPending
		st.CreatedAt, st.UpdatedAt = now, now
		agg.Steps = append(agg.Steps, &st)
	}
	sort.Slice(agg.Steps, func(i, j int) bool { return agg.Steps[i].Order < agg.Steps[j].Order })

	agg.Document.ValidationStatus = workflow.Project(agg.Steps)
	agg.Document.UpdatedAt = now

	s.aggregates[doc.ID] = agg
	return agg.Clone(), nil
}

// Load returns a copy of the document's aggregate. Flow is nil when the
// document has none.
func (s *Store) Load(_ context.Context, documentID string) (*workflow.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.aggregates[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrDocumentNotFound, documentID)
	}
	return agg.Clone(), nil
}

// Mutate runs decide against the current aggregate and stores the result
// atomically. Nothing is written when decide or the save hook fails.
func (s *Store) Mutate(_ context.Context, documentID string, decide func(*workflow.Aggregate) (*workflow.Decision, error)) (*workflow.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.aggregates[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrDocumentNotFound, documentID)
	}

	decision, err := decide(current.Clone())
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := decision.Apply(current)
	changed := make(map[int]struct{}, len(decision.Transitions))
	for _, t := range decision.Transitions {
		changed[t.Order] = struct{}{}
	}
	for _, st := range next.Steps {
		if _, ok := changed[st.Order]; ok {
			st.UpdatedAt = now
		}
	}
	next.Document.UpdatedAt = now
	if decision.Deactivate {
		next.Flow.UpdatedAt = now
	}

	actions := decision.Actions()
	for _, a := range actions {
		a.ID = uuid.NewString()
		a.CreatedAt = now
	}

	outcome := &workflow.Outcome{Decision: decision, Aggregate: next, Actions: actions}
	if s.beforeSave != nil {
		if err := s.beforeSave(outcome); err != nil {
			return nil, err
		}
	}

	s.aggregates[documentID] = next
	s.actions[documentID] = append(s.actions[documentID], actions...)

	outcome.Aggregate = next.Clone()
	return outcome, nil
}

// ListActions returns the document's audit trail, oldest first.
func (s *Store) ListActions(_ context.Context, documentID string) ([]*workflow.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.aggregates[documentID]; !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrDocumentNotFound, documentID)
	}
	src := s.actions[documentID]
	out := make([]*workflow.Action, len(src))
	for i, a := range src {
		c := *a
		out[i] = &c
	}
	return out, nil
}

// ListPendingForApprover returns one entry per active flow holding a pending
// step assigned to approverID, with that approver's lowest pending order.
func (s *Store) ListPendingForApprover(_ context.Context, approverID string) ([]*workflow.PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*workflow.PendingApproval
	for _, agg := range s.aggregates {
		if agg.Flow == nil || !agg.Flow.IsActive {
			continue
		}
		for _, st := range agg.Steps {
			if st.Status != workflow.StepPending || st.ApproverID != approverID {
				continue
			}
			out = append(out, &workflow.PendingApproval{
				DocumentID:    agg.Document.ID,
				CompanyID:     agg.Document.CompanyID,
				EntityID:      agg.Document.EntityID,
				FlowID:        agg.Flow.ID,
				StepOrder:     st.Order,
				FlowCreatedAt: agg.Flow.CreatedAt,
			})
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FlowCreatedAt.Equal(out[j].FlowCreatedAt) {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].FlowCreatedAt.Before(out[j].FlowCreatedAt)
	})
	return out, nil
}

// ActorStats counts the actor's recorded actions and current pending documents.
func (s *Store) ActorStats(ctx context.Context, actorID string) (*workflow.ApprovalStats, error) {
	pending, err := s.ListPendingForApprover(ctx, actorID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &workflow.ApprovalStats{Pending: len(pending)}
	for _, actions := range s.actions {
		for _, a := range actions {
			if a.ActorID != actorID {
				continue
			}
			switch a.Action {
			case workflow.ActionApprove:
				stats.Approved++
			case workflow.ActionReject:
				stats.Rejected++
			}
		}
	}
	stats.TotalActions = stats.Approved + stats.Rejected
	return stats, nil
}
