package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payment-reconciliation/internal/domain"
)

const strictMatchWeight = domain.MaxConfidence

// StrictResolver links payments to registrations by literal identifier
// equality only. It never falls back to name, email or amount.
type StrictResolver struct {
	store    DocumentStore
	sm       *StateMachine
	settings domain.Settings
	logger   *slog.Logger
	now      func() time.Time
	locks    *keyedMutex
}

// NewStrictResolver creates a resolver over the payments and registrations collections.
func NewStrictResolver(store DocumentStore, sm *StateMachine, settings domain.Settings, logger *slog.Logger, now func() time.Time) *StrictResolver {
	if now == nil {
		now = time.Now
	}
	return &StrictResolver{
		store:    store,
		sm:       sm,
		settings: settings,
		logger:   loggerOrDiscard(logger),
		now:      now,
		locks:    newKeyedMutex(),
	}
}

// Match searches for the registration holding one of the payment's
// identifiers, trying them in priority order. It has no side effects.
func (r *StrictResolver) Match(ctx context.Context, payment domain.Document) (domain.MatchResult, error) {
	result := domain.MatchResult{PaymentID: payment.ID(), Origin: domain.DetectOrigin(payment), Method: domain.MethodNone}
	for _, id := range PaymentIdentifiers(payment) {
		registration, path, err := r.findHolding(ctx, id.Value)
		if err != nil {
			return result, err
		}
		if registration == nil {
			continue
		}
		matched := id
		result.RegistrationID = registration.ID()
		result.Registration = registration
		result.Method = methodFor(id)
		result.MatchedField = path
		result.Identifier = &matched
		result.Confidence = strictMatchWeight
		result.Details = []domain.MatchDetail{{
			Signal:            domain.SignalPaymentID,
			PaymentField:      id.Field,
			RegistrationPaths: []string{path},
			Value:             id.Value,
			Weight:            strictMatchWeight,
			Priority:          priorityPaymentID,
		}}
		return result, nil
	}
	return result, nil
}

// findHolding returns the first registration that really holds value in a
// known payment-id path. Store hits that fail local verification are
// logged and skipped.
func (r *StrictResolver) findHolding(ctx context.Context, value string) (domain.Document, string, error) {
	candidates, err := r.store.Find(ctx, r.settings.Collections.Registrations, domain.AnyOf(registrationPaymentIDPaths, value))
	if err != nil {
		return nil, "", fmt.Errorf("search registrations for %q: %w", value, err)
	}
	for _, c := range candidates {
		if path, ok := locatePaymentID(c, value); ok {
			return c, path, nil
		}
		r.logger.Warn("store returned registration without the identifier",
			slog.String("registration", c.ID()), slog.String("identifier", value))
	}
	return nil, "", nil
}

// FindRegistrations returns every registration holding any of the values,
// each once, in the order the values were given.
func (r *StrictResolver) FindRegistrations(ctx context.Context, values []string) ([]domain.Document, error) {
	seen := make(map[string]bool)
	var out []domain.Document
	for _, v := range values {
		candidates, err := r.store.Find(ctx, r.settings.Collections.Registrations, domain.AnyOf(registrationPaymentIDPaths, v))
		if err != nil {
			return nil, fmt.Errorf("search registrations for %q: %w", v, err)
		}
		for _, c := range candidates {
			if _, ok := locatePaymentID(c, v); !ok || seen[c.ID()] {
				continue
			}
			seen[c.ID()] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// Verify reports whether the payment's stored match still holds: the
// registration exists and contains one of the payment identifiers.
func (r *StrictResolver) Verify(ctx context.Context, payment domain.Document) (bool, error) {
	regID := payment.String(domain.FieldMatchedRegistrationID)
	if regID == "" {
		return false, nil
	}
	registration, err := r.store.FindOne(ctx, r.settings.Collections.Registrations, domain.ByID(regID))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load registration %s: %w", regID, err)
	}
	for _, id := range PaymentIdentifiers(payment) {
		if _, ok := locatePaymentID(registration, id.Value); ok {
			return true, nil
		}
	}
	return false, nil
}

// Confirm projects a match onto the payment and moves it to matched.
// Confirming the registration the payment already points at is a no-op.
func (r *StrictResolver) Confirm(ctx context.Context, payment domain.Document, result domain.MatchResult, actor string) error {
	if !result.Matched() {
		return fmt.Errorf("confirm payment %s: no registration in match result", payment.ID())
	}
	current := payment.String(domain.FieldMatchedRegistrationID)
	if current == result.RegistrationID && domain.StateOf(payment) == domain.StateMatched {
		return nil
	}
	if current != "" && current != result.RegistrationID {
		reason := fmt.Sprintf("superseded by registration %s", result.RegistrationID)
		if _, err := r.Clear(ctx, payment, reason, actor); err != nil {
			return err
		}
	}

	details := make([]any, len(result.Details))
	for i, d := range result.Details {
		details[i] = d.AsDocument()
	}
	update := domain.Update{Set: map[string]any{
		domain.FieldMatchedRegistrationID: result.RegistrationID,
		domain.FieldMatchMethod:           string(result.Method),
		domain.FieldMatchedAt:             r.now().UTC(),
		domain.FieldMatchedBy:             actor,
		domain.FieldMatchConfidence:       result.Confidence,
		domain.FieldMatchDetails:          details,
		domain.FieldMatchedField:          result.MatchedField,
	}}
	cause := domain.TransitionCause{
		Actor:     actor,
		Operation: "confirm-match",
		Reason:    fmt.Sprintf("registration %s holds %s", result.RegistrationID, result.MatchedField),
	}
	if _, err := r.sm.Transition(ctx, r.settings.Collections.Payments, payment, domain.StateMatched, cause, update); err != nil {
		return fmt.Errorf("confirm payment %s: %w", payment.ID(), err)
	}
	return nil
}

// ConfirmExclusive confirms result unless another payment already holds
// the registration, in which case domain.ErrRegistrationClaimed is returned.
func (r *StrictResolver) ConfirmExclusive(ctx context.Context, payment domain.Document, result domain.MatchResult, actor string) error {
	if !result.Matched() {
		return fmt.Errorf("confirm payment %s: no registration in match result", payment.ID())
	}
	unlock := r.locks.Lock(result.RegistrationID)
	defer unlock()

	taken, err := r.claimedByOther(ctx, result.RegistrationID, payment.ID(), nil, nil)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("confirm payment %s to %s: %w", payment.ID(), result.RegistrationID, domain.ErrRegistrationClaimed)
	}
	return r.Confirm(ctx, payment, result, actor)
}

// Clear removes any stored match and moves the payment to unmatched. It
// reports whether match fields were actually removed; clearing an already
// unmatched payment changes nothing.
func (r *StrictResolver) Clear(ctx context.Context, payment domain.Document, reason, actor string) (bool, error) {
	hasMatch := false
	for _, f := range domain.MatchFields {
		if _, ok := payment.Lookup(f); ok {
			hasMatch = true
			break
		}
	}
	state := domain.StateOf(payment)
	if !hasMatch && state == domain.StateUnmatched {
		return false, nil
	}

	var update domain.Update
	if hasMatch {
		update = domain.Update{
			Unset: append([]string(nil), domain.MatchFields...),
			Set: map[string]any{
				domain.FieldPreviousMatchCleared: true,
				domain.FieldMatchClearedAt:       r.now().UTC(),
				domain.FieldMatchClearedReason:   reason,
			},
		}
	}
	cause := domain.TransitionCause{Actor: actor, Operation: "clear-match", Reason: reason}
	if _, err := r.sm.Transition(ctx, r.settings.Collections.Payments, payment, domain.StateUnmatched, cause, update); err != nil {
		return false, fmt.Errorf("clear payment %s: %w", payment.ID(), err)
	}
	return hasMatch, nil
}

func methodFor(id domain.Identifier) domain.MatchMethod {
	if id.Field == "transactionId" {
		return domain.MethodByTransactionID
	}
	return domain.MethodByPaymentID
}
