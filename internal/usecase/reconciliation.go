package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payment-reconciliation/internal/domain"
)

const operatorActor = "operator"

// ReconciliationUseCase orchestrates the reconciliation process.
type ReconciliationUseCase struct {
	store      DocumentStore
	settings   domain.Settings
	logger     *slog.Logger
	now        func() time.Time
	sm         *StateMachine
	resolver   *StrictResolver
	analyzer   *ConfidenceAnalyzer
	duplicates *DuplicateWorkflow
}

// Option customises a ReconciliationUseCase.
type Option func(*ReconciliationUseCase)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(uc *ReconciliationUseCase) { uc.logger = logger }
}

// WithClock sets the time source used for every timestamp written.
func WithClock(now func() time.Time) Option {
	return func(uc *ReconciliationUseCase) { uc.now = now }
}

// NewReconciliationUseCase creates a new instance of the usecase.
func NewReconciliationUseCase(store DocumentStore, settings domain.Settings, opts ...Option) *ReconciliationUseCase {
	uc := &ReconciliationUseCase{store: store, settings: settings, now: time.Now}
	for _, opt := range opts {
		opt(uc)
	}
	uc.logger = loggerOrDiscard(uc.logger)
	uc.sm = NewStateMachine(store, uc.now)
	uc.resolver = NewStrictResolver(store, uc.sm, settings, uc.logger, uc.now)
	uc.analyzer = NewConfidenceAnalyzer(settings)
	uc.duplicates = NewDuplicateWorkflow(store, uc.resolver, uc.sm, settings, uc.logger, uc.now)
	return uc
}

// MatchPayment looks for the registration holding one of the payment's
// identifiers. Nothing is written.
func (uc *ReconciliationUseCase) MatchPayment(ctx context.Context, paymentID string) (domain.MatchResult, error) {
	payment, err := uc.loadPayment(ctx, paymentID)
	if err != nil {
		return domain.MatchResult{PaymentID: paymentID, Method: domain.MethodNone}, err
	}
	return uc.resolver.Match(ctx, payment)
}

// ConfirmMatch runs the strict resolver and persists the outcome: a match
// moves the payment to matched, no match moves it to unmatched.
func (uc *ReconciliationUseCase) ConfirmMatch(ctx context.Context, paymentID, actor string) (domain.MatchResult, error) {
	actor = actorOr(actor)
	payment, err := uc.loadPayment(ctx, paymentID)
	if err != nil {
		return domain.MatchResult{PaymentID: paymentID, Method: domain.MethodNone}, err
	}
	result, err := uc.resolver.Match(ctx, payment)
	if err != nil {
		return result, err
	}
	if !result.Matched() {
		if _, err := uc.resolver.Clear(ctx, payment, "no registration holds a payment identifier", actor); err != nil {
			return result, err
		}
		uc.logger.Info("payment unmatched", slog.String("payment", paymentID))
		return result, nil
	}
	if err := uc.resolver.ConfirmExclusive(ctx, payment, result, actor); err != nil {
		return result, err
	}
	uc.logger.Info("payment matched",
		slog.String("payment", paymentID),
		slog.String("registration", result.RegistrationID),
		slog.String("method", string(result.Method)))
	return result, nil
}

// UnmatchPayment clears a stored match. It reports whether match fields
// were removed.
func (uc *ReconciliationUseCase) UnmatchPayment(ctx context.Context, paymentID, reason, actor string) (bool, error) {
	payment, err := uc.loadPayment(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if reason == "" {
		reason = "cleared by operator"
	}
	return uc.resolver.Clear(ctx, payment, reason, actorOr(actor))
}

// AnalyzeMatch scores one payment against one registration.
func (uc *ReconciliationUseCase) AnalyzeMatch(ctx context.Context, paymentID, registrationID string) (domain.Analysis, error) {
	payment, err := uc.loadPayment(ctx, paymentID)
	if err != nil {
		return domain.Analysis{}, err
	}
	registration, err := uc.store.FindOne(ctx, uc.settings.Collections.Registrations, domain.ByID(registrationID))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("load registration %s: %w", registrationID, err)
	}
	return uc.analyzer.Analyze(payment, registration), nil
}

// BestMatch scores every registration sharing a payment identifier and
// returns the highest scoring one. ok is false when none reaches the
// configured minimum confidence.
func (uc *ReconciliationUseCase) BestMatch(ctx context.Context, paymentID string) (domain.Analysis, bool, error) {
	payment, err := uc.loadPayment(ctx, paymentID)
	if err != nil {
		return domain.Analysis{}, false, err
	}
	best, ok, _, err := uc.bestMatch(ctx, payment)
	return best, ok, err
}

// AcceptBestMatch confirms the best scored candidate when it passes the
// minimum confidence. The stored confidence and details are the analyzer's.
func (uc *ReconciliationUseCase) AcceptBestMatch(ctx context.Context, paymentID, actor string) (domain.MatchResult, error) {
	result := domain.MatchResult{PaymentID: paymentID, Method: domain.MethodNone}
	payment, err := uc.loadPayment(ctx, paymentID)
	if err != nil {
		return result, err
	}
	result.Origin = domain.DetectOrigin(payment)
	best, ok, registration, err := uc.bestMatch(ctx, payment)
	if err != nil || !ok {
		return result, err
	}

	lead := best.Matches[0]
	id := domain.Identifier{Value: lead.Value, Field: lead.PaymentField, Class: domain.ClassPayment}
	result.RegistrationID = best.RegistrationID
	result.Registration = registration
	result.Method = methodFor(id)
	result.MatchedField = lead.RegistrationPaths[0]
	result.Identifier = &id
	result.Confidence = best.Confidence
	result.Details = best.Matches
	if err := uc.resolver.ConfirmExclusive(ctx, payment, result, actorOr(actor)); err != nil {
		return result, err
	}
	return result, nil
}

func (uc *ReconciliationUseCase) bestMatch(ctx context.Context, payment domain.Document) (domain.Analysis, bool, domain.Document, error) {
	var values []string
	for _, id := range PaymentIdentifiers(payment) {
		values = append(values, id.Value)
	}
	candidates, err := uc.resolver.FindRegistrations(ctx, values)
	if err != nil {
		return domain.Analysis{}, false, nil, err
	}

	var (
		best    domain.Analysis
		bestDoc domain.Document
	)
	for _, c := range candidates {
		a := uc.analyzer.Analyze(payment, c)
		if !a.IsValid {
			continue
		}
		if bestDoc == nil || a.Confidence > best.Confidence {
			best, bestDoc = a, c
		}
	}
	if bestDoc == nil || best.Confidence < uc.settings.MinConfidence {
		return best, false, nil, nil
	}
	return best, true, bestDoc, nil
}

// MarkImported records the downstream decision that a matched payment has
// been fully processed.
func (uc *ReconciliationUseCase) MarkImported(ctx context.Context, paymentID, actor string) error {
	payment, err := uc.loadPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	cause := domain.TransitionCause{Actor: actorOr(actor), Operation: "mark-imported", Reason: "downstream processing complete"}
	_, err = uc.sm.Transition(ctx, uc.settings.Collections.Payments, payment, domain.StateImported, cause, domain.Update{})
	return err
}

// RematchAll rematches every payment in batch.
func (uc *ReconciliationUseCase) RematchAll(ctx context.Context, opts RematchOptions) (domain.RematchSummary, error) {
	return uc.resolver.RematchAll(ctx, opts)
}

// ResolveDuplicates runs the duplicate resolution workflow.
func (uc *ReconciliationUseCase) ResolveDuplicates(ctx context.Context, opts DuplicateOptions) (domain.DuplicateReport, error) {
	return uc.duplicates.Run(ctx, opts)
}

// ImportPayments inserts parsed payments, skipping ids already stored. It
// returns how many were inserted and how many were already present.
func (uc *ReconciliationUseCase) ImportPayments(ctx context.Context, payments []domain.Document) (int, int, error) {
	var inserted, skipped int
	for _, p := range payments {
		err := uc.store.InsertOne(ctx, uc.settings.Collections.Payments, p)
		switch {
		case errors.Is(err, domain.ErrDuplicateKey):
			skipped++
		case err != nil:
			return inserted, skipped, fmt.Errorf("import payment %s: %w", p.ID(), err)
		default:
			inserted++
		}
	}
	uc.logger.Info("payments imported", slog.Int("inserted", inserted), slog.Int("skipped", skipped))
	return inserted, skipped, nil
}

func (uc *ReconciliationUseCase) loadPayment(ctx context.Context, paymentID string) (domain.Document, error) {
	payment, err := uc.store.FindOne(ctx, uc.settings.Collections.Payments, domain.ByID(paymentID))
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	return payment, nil
}

func actorOr(actor string) string {
	if actor == "" {
		return operatorActor
	}
	return actor
}
