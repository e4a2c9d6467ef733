package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"payment-reconciliation/internal/domain"
)

const rematchJob = "rematch-all"

// RematchOptions controls a batch rematch.
type RematchOptions struct {
	// ClearExisting re-verifies stored matches and clears those that no
	// longer hold before matching again.
	ClearExisting bool
	Workers       int
	// Resume skips payments at or below the last checkpoint.
	Resume bool
	Actor  string
}

type rematchOutcome int

const (
	outcomeUnmatched rematchOutcome = iota
	outcomeMatched
	outcomeConflict
	outcomeSkipped
	outcomeFailed
)

// RematchAll runs the strict resolver over every payment. With
// ClearExisting, stale matches are cleared across the whole collection
// before matching starts. It is safe to re-run: confirmed matches are not
// rewritten and cleared payments stay cleared. A failing payment is
// counted and skipped.
func (r *StrictResolver) RematchAll(ctx context.Context, opts RematchOptions) (domain.RematchSummary, error) {
	summary := domain.RematchSummary{RunID: uuid.NewString(), ByMethod: map[string]int{}}
	if opts.Actor == "" {
		opts.Actor = rematchJob
	}

	payments, err := r.store.Find(ctx, r.settings.Collections.Payments, domain.Filter{})
	if err != nil {
		return summary, fmt.Errorf("list payments: %w", err)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID() < payments[j].ID() })

	var verifyErrs map[string]error
	if opts.ClearExisting {
		cleared, errs, err := r.clearStale(ctx, payments, opts)
		if err != nil {
			return summary, err
		}
		summary.Cleared = cleared
		verifyErrs = errs
	}

	cps := &checkpointStore{store: r.store, collection: r.settings.Collections.Checkpoints, now: r.now}
	if opts.Resume {
		cp, ok, err := cps.Load(ctx, rematchJob)
		if err != nil {
			return summary, err
		}
		if ok && cp.LastProcessedID != "" {
			start := sort.Search(len(payments), func(i int) bool { return payments[i].ID() > cp.LastProcessedID })
			payments = payments[start:]
			summary.Resumed = true
			r.logger.Info("resuming rematch", slog.String("after", cp.LastProcessedID), slog.Int("remaining", len(payments)))
		}
	}

	ids := make([]string, len(payments))
	for i, p := range payments {
		ids[i] = p.ID()
	}
	mark := newWatermark(ids)
	every := r.settings.CheckpointEvery

	var (
		mu        sync.Mutex
		completed int
		claims    = make(map[string]string)
	)
	poolErr := runPool(ctx, opts.Workers, len(payments), func(idx int) {
		payment := payments[idx]
		outcome, method, err := outcomeFailed, "", verifyErrs[payment.ID()]
		if err == nil {
			outcome, method, err = r.rematchOne(ctx, payment, opts, claims, &mu)
		}
		if err != nil {
			r.logger.Error("rematch payment failed", slog.String("payment", payment.ID()), slog.Any("error", err))
		}

		mu.Lock()
		summary.Processed++
		switch outcome {
		case outcomeMatched:
			summary.Matched++
			summary.ByMethod[method]++
		case outcomeConflict:
			summary.Conflicts++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed++
		}
		completed++
		saveNow := every > 0 && completed%every == 0
		mu.Unlock()

		last := mark.Done(idx)
		if saveNow && last != "" {
			if err := cps.Save(ctx, domain.Checkpoint{Job: rematchJob, RunID: summary.RunID, LastProcessedID: last}); err != nil {
				r.logger.Warn("checkpoint not saved", slog.Any("error", err))
			}
		}
	})
	if poolErr != nil {
		if last := mark.Current(); last != "" {
			_ = cps.Save(context.WithoutCancel(ctx), domain.Checkpoint{Job: rematchJob, RunID: summary.RunID, LastProcessedID: last})
		}
		return summary, poolErr
	}
	if err := cps.Clear(ctx, rematchJob); err != nil {
		r.logger.Warn("checkpoint not cleared", slog.Any("error", err))
	}

	r.logger.Info("rematch finished",
		slog.String("run", summary.RunID),
		slog.Int("processed", summary.Processed),
		slog.Int("matched", summary.Matched),
		slog.Int("cleared", summary.Cleared),
		slog.Int("conflicts", summary.Conflicts),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// clearStale re-verifies every stored match and clears the ones that no
// longer hold. It finishes before any payment is matched again so a stale
// claim cannot shadow the payment that really holds the registration.
// Payments whose verification failed are returned with their error.
func (r *StrictResolver) clearStale(ctx context.Context, payments []domain.Document, opts RematchOptions) (int, map[string]error, error) {
	var (
		mu      sync.Mutex
		cleared int
		errs    = make(map[string]error)
	)
	err := runPool(ctx, opts.Workers, len(payments), func(idx int) {
		payment := payments[idx]
		state := domain.StateOf(payment)
		if state.IsTerminal() || state == domain.StateDuplicate || payment.String(domain.FieldMatchedRegistrationID) == "" {
			return
		}
		valid, err := r.Verify(ctx, payment)
		wasCleared := false
		if err == nil && !valid {
			wasCleared, err = r.Clear(ctx, payment, "Payment ID not found in registration", opts.Actor)
		}

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs[payment.ID()] = err
		}
		if wasCleared {
			cleared++
		}
	})
	return cleared, errs, err
}

func (r *StrictResolver) rematchOne(ctx context.Context, payment domain.Document, opts RematchOptions, claims map[string]string, mu *sync.Mutex) (rematchOutcome, string, error) {
	state := domain.StateOf(payment)
	if state.IsTerminal() || state == domain.StateDuplicate {
		return outcomeSkipped, "", nil
	}
	// Stored matches that survive here are trusted or were verified by
	// clearStale.
	if payment.String(domain.FieldMatchedRegistrationID) != "" {
		return outcomeMatched, payment.String(domain.FieldMatchMethod), nil
	}

	result, err := r.Match(ctx, payment)
	if err != nil {
		return outcomeFailed, "", err
	}
	if !result.Matched() {
		if _, err := r.Clear(ctx, payment, "no registration holds a payment identifier", opts.Actor); err != nil {
			return outcomeFailed, "", err
		}
		return outcomeUnmatched, "", nil
	}

	unlock := r.locks.Lock(result.RegistrationID)
	defer unlock()

	taken, err := r.claimedByOther(ctx, result.RegistrationID, payment.ID(), claims, mu)
	if err != nil {
		return outcomeFailed, "", err
	}
	if taken {
		r.logger.Warn("registration already matched to another payment",
			slog.String("payment", payment.ID()), slog.String("registration", result.RegistrationID))
		if _, err := r.Clear(ctx, payment, "registration "+result.RegistrationID+" already matched to another payment", opts.Actor); err != nil {
			return outcomeFailed, "", err
		}
		return outcomeConflict, "", nil
	}
	if err := r.Confirm(ctx, payment, result, opts.Actor); err != nil {
		return outcomeFailed, "", err
	}
	mu.Lock()
	claims[result.RegistrationID] = payment.ID()
	mu.Unlock()
	return outcomeMatched, string(result.Method), nil
}

// claimedByOther enforces that a registration is the confirmed match of at
// most one payment. Callers hold the registration's lock. claims caches the
// owners confirmed during the current run and may be nil.
func (r *StrictResolver) claimedByOther(ctx context.Context, registrationID, paymentID string, claims map[string]string, mu *sync.Mutex) (bool, error) {
	if claims != nil {
		mu.Lock()
		owner, ok := claims[registrationID]
		mu.Unlock()
		if ok {
			return owner != paymentID, nil
		}
	}
	holders, err := r.store.Find(ctx, r.settings.Collections.Payments, domain.Eq(domain.FieldMatchedRegistrationID, registrationID))
	if err != nil {
		return false, fmt.Errorf("check claims on registration %s: %w", registrationID, err)
	}
	for _, h := range holders {
		if h.ID() != paymentID {
			return true, nil
		}
	}
	return false, nil
}
