package domain

import "time"

// ReconciliationState is the status carried on payment and staging records.
type ReconciliationState string

const (
	StatePending   ReconciliationState = "pending"
	StateMatched   ReconciliationState = "matched"
	StateUnmatched ReconciliationState = "unmatched"
	StateImported  ReconciliationState = "imported"
	StateDuplicate ReconciliationState = "duplicate"
	StateResolved  ReconciliationState = "resolved"
)

// Fields written by the state machine.
const (
	FieldStatus          = "reconciliationStatus"
	FieldStatusUpdatedAt = "statusUpdatedAt"
	FieldStatusHistory   = "statusHistory"
)

var transitions = map[ReconciliationState][]ReconciliationState{
	StatePending:   {StateMatched, StateUnmatched, StateDuplicate},
	StateMatched:   {StateImported, StateDuplicate, StateUnmatched},
	StateUnmatched: {StateMatched, StateDuplicate},
	StateDuplicate: {StateResolved},
}

// StateOf reads the status of a document; documents that never went
// through the state machine are pending.
func StateOf(doc Document) ReconciliationState {
	s := doc.String(FieldStatus)
	if s == "" {
		return StatePending
	}
	return ReconciliationState(s)
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to ReconciliationState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s ReconciliationState) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// TransitionCause names who or what requested a transition.
type TransitionCause struct {
	Actor     string
	Operation string
	Reason    string
}

// Transition is one entry of a record's audit trail.
type Transition struct {
	From      ReconciliationState `json:"from"`
	To        ReconciliationState `json:"to"`
	At        time.Time           `json:"at"`
	Actor     string              `json:"actor"`
	Operation string              `json:"operation"`
	Reason    string              `json:"reason,omitempty"`
}

// AsDocument renders the transition in the shape stored on records.
func (t Transition) AsDocument() map[string]any {
	m := map[string]any{
		"from":      string(t.From),
		"to":        string(t.To),
		"at":        t.At,
		"actor":     t.Actor,
		"operation": t.Operation,
	}
	if t.Reason != "" {
		m["reason"] = t.Reason
	}
	return m
}
