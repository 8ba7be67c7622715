package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-validations/internal/platform/database"
	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// ValidationStore persists validation aggregates in Postgres. Every write
// runs in one transaction holding the flow row lock, so a decision is
// applied completely or not at all.
type ValidationStore struct {
	db          *database.DB
	lockTimeout time.Duration

	documents *DocumentsRepository
	flows     *ValidationFlowsRepository
	steps     *ValidationStepsRepository
	actions   *ValidationActionsRepository
}

// NewValidationStore creates a ValidationStore. lockTimeout bounds how long a
// transaction waits for a row lock before failing with workflow.ErrBusy.
func NewValidationStore(db *database.DB, lockTimeout time.Duration) *ValidationStore {
	return &ValidationStore{
		db:          db,
		lockTimeout: lockTimeout,
		documents:   &DocumentsRepository{},
		flows:       &ValidationFlowsRepository{},
		steps:       &ValidationStepsRepository{},
		actions:     &ValidationActionsRepository{},
	}
}

// CreateFlow registers the document, then inserts the flow and its steps and
// marks the document pending, all in one transaction.
func (s *ValidationStore) CreateFlow(ctx context.Context, doc *workflow.Document, flow *workflow.Flow, steps []*workflow.Step) (*workflow.Aggregate, error) {
	var agg *workflow.Aggregate
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.setLockTimeout(ctx, tx); err != nil {
			return err
		}
		if err := s.documents.Register(ctx, tx, doc); err != nil {
			return err
		}
		stored, err := s.documents.Get(ctx, tx, doc.ID, true)
		if err != nil {
			return err
		}
		if doc.CompanyID != "" && stored.CompanyID != "" && stored.CompanyID != doc.CompanyID {
			return errors.InvalidInput("company_id", fmt.Sprintf("document %s belongs to another company", doc.ID))
		}

		existing, err := s.flows.GetByDocument(ctx, tx, doc.ID, false)
		if err != nil {
			return err
		}
		if existing != nil || stored.ValidationStatus != workflow.StatusNone {
			return fmt.Errorf("%w: document %s", workflow.ErrFlowAlreadyExists, doc.ID)
		}

		f := *flow
		f.DocumentID = doc.ID
		if err := s.flows.Insert(ctx, tx, &f); err != nil {
			return err
		}

		created := make([]*workflow.Step, len(steps))
		for i, st := range steps {
			c := *st
			created[i] = &c
		}
		if err := s.steps.InsertAll(ctx, tx, f.ID, created); err != nil {
			return err
		}

		status := workflow.Project(created)
		if err := s.documents.SetStatus(ctx, tx, doc.ID, status); err != nil {
			return err
		}
		stored.ValidationStatus = status

		agg = &workflow.Aggregate{Document: stored, Flow: &f, Steps: created}
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to create validation flow")
	}
	return agg, nil
}

// Load reads the document's aggregate from one snapshot without locking.
// Flow is nil when the document has none.
func (s *ValidationStore) Load(ctx context.Context, documentID string) (*workflow.Aggregate, error) {
	var agg *workflow.Aggregate
	err := s.db.InSnapshot(ctx, func(tx pgx.Tx) error {
		var err error
		agg, err = s.load(ctx, tx, documentID, false)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to load validation flow")
	}
	return agg, nil
}

// Mutate locks the aggregate, hands a snapshot to decide and writes the
// resulting transitions, audit actions, document status and flow activity.
// An error from decide or from any write rolls everything back.
func (s *ValidationStore) Mutate(ctx context.Context, documentID string, decide func(*workflow.Aggregate) (*workflow.Decision, error)) (*workflow.Outcome, error) {
	var outcome *workflow.Outcome
	err := s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.setLockTimeout(ctx, tx); err != nil {
			return err
		}
		agg, err := s.load(ctx, tx, documentID, true)
		if err != nil {
			return err
		}

		decision, err := decide(agg.Clone())
		if err != nil {
			return err
		}

		next := decision.Apply(agg)
		prior := make(map[int]workflow.StepStatus, len(agg.Steps))
		for _, st := range agg.Steps {
			prior[st.Order] = st.Status
		}
		byOrder := make(map[int]*workflow.Step, len(next.Steps))
		for _, st := range next.Steps {
			byOrder[st.Order] = st
		}
		for _, t := range decision.Transitions {
			step := byOrder[t.Order]
			if err := s.steps.Transition(ctx, tx, step, prior[t.Order]); err != nil {
				return err
			}
		}

		actions := decision.Actions()
		for _, a := range actions {
			if err := s.actions.Append(ctx, tx, a); err != nil {
				return err
			}
		}

		if err := s.documents.SetStatus(ctx, tx, documentID, decision.Status); err != nil {
			return err
		}
		if decision.Deactivate {
			if err := s.flows.Deactivate(ctx, tx, next.Flow.ID); err != nil {
				return err
			}
		}

		outcome = &workflow.Outcome{Decision: decision, Aggregate: next, Actions: actions}
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to apply validation decision")
	}
	return outcome, nil
}

// ListActions returns the document's audit trail.
func (s *ValidationStore) ListActions(ctx context.Context, documentID string) ([]*workflow.Action, error) {
	var actions []*workflow.Action
	err := s.db.InSnapshot(ctx, func(tx pgx.Tx) error {
		if _, err := s.documents.Get(ctx, tx, documentID, false); err != nil {
			return err
		}
		var err error
		actions, err = s.actions.ListByDocument(ctx, tx, documentID)
		return err
	})
	if err != nil {
		return nil, classify(err, "failed to list validation actions")
	}
	return actions, nil
}

// ListPendingForApprover returns the active flows waiting on approverID.
func (s *ValidationStore) ListPendingForApprover(ctx context.Context, approverID string) ([]*workflow.PendingApproval, error) {
	return s.steps.ListPendingForApprover(ctx, s.db, approverID)
}

// ActorStats summarises actorID's recorded actions and pending documents.
func (s *ValidationStore) ActorStats(ctx context.Context, actorID string) (*workflow.ApprovalStats, error) {
	approved, rejected, err := s.actions.CountByActor(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	pending, err := s.steps.ListPendingForApprover(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	return &workflow.ApprovalStats{
		Approved:     approved,
		Rejected:     rejected,
		Pending:      len(pending),
		TotalActions: approved + rejected,
	}, nil
}

func (s *ValidationStore) load(ctx context.Context, q querier, documentID string, forUpdate bool) (*workflow.Aggregate, error) {
	// The flow row is locked before the document row is read, so readers of
	// the aggregate see the status written by the previous lock holder.
	flow, err := s.flows.GetByDocument(ctx, q, documentID, forUpdate)
	if err != nil {
		return nil, err
	}
	doc, err := s.documents.Get(ctx, q, documentID, false)
	if err != nil {
		return nil, err
	}

	agg := &workflow.Aggregate{Document: doc, Flow: flow}
	if flow == nil {
		return agg, nil
	}
	agg.Steps, err = s.steps.ListByFlow(ctx, q, flow.ID)
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func (s *ValidationStore) setLockTimeout(ctx context.Context, tx pgx.Tx) error {
	if s.lockTimeout <= 0 {
		return nil
	}
	ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", ms); err != nil {
		return classify(err, "failed to set lock timeout")
	}
	return nil
}
