package usecase

import (
	"context"
	"fmt"
	"time"

	"payment-reconciliation/internal/domain"
)

// StateMachine is the sole writer of reconciliation status and its audit trail.
type StateMachine struct {
	store DocumentStore
	now   func() time.Time
}

// NewStateMachine creates a state machine writing through store.
func NewStateMachine(store DocumentStore, now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{store: store, now: now}
}

// Transition moves doc to state to, applying extra in the same update so the
// status and the evidence that caused it land together. When doc is already
// in state to only extra is written and no history entry is added.
func (sm *StateMachine) Transition(ctx context.Context, collection string, doc domain.Document, to domain.ReconciliationState, cause domain.TransitionCause, extra domain.Update) (domain.Update, error) {
	from := domain.StateOf(doc)
	if from == to {
		if extra.IsEmpty() {
			return extra, nil
		}
		if err := sm.write(ctx, collection, doc, extra); err != nil {
			return domain.Update{}, err
		}
		return extra, nil
	}
	if !domain.CanTransition(from, to) {
		return domain.Update{}, fmt.Errorf("%s -> %s on %s/%s: %w", from, to, collection, doc.ID(), domain.ErrInvalidTransition)
	}

	at := sm.now().UTC()
	entry := domain.Transition{
		From:      from,
		To:        to,
		At:        at,
		Actor:     cause.Actor,
		Operation: cause.Operation,
		Reason:    cause.Reason,
	}
	history := historyOf(doc)
	history = append(history, entry.AsDocument())

	update := extra.Merge(domain.Update{Set: map[string]any{
		domain.FieldStatus:          string(to),
		domain.FieldStatusUpdatedAt: at,
		domain.FieldStatusHistory:   history,
	}})
	if err := sm.write(ctx, collection, doc, update); err != nil {
		return domain.Update{}, err
	}
	return update, nil
}

func (sm *StateMachine) write(ctx context.Context, collection string, doc domain.Document, update domain.Update) error {
	n, err := sm.store.UpdateOne(ctx, collection, domain.ByID(doc.ID()), update)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, doc.ID(), err)
	}
	if n == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, doc.ID(), domain.ErrNotFound)
	}
	update.Apply(doc)
	return nil
}

func historyOf(doc domain.Document) []any {
	raw, ok := doc.Lookup(domain.FieldStatusHistory)
	if !ok {
		return nil
	}
	switch h := raw.(type) {
	case []any:
		return append([]any(nil), h...)
	case []map[string]any:
		out := make([]any, len(h))
		for i, e := range h {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}
