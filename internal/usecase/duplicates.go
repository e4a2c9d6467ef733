package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"payment-reconciliation/internal/domain"
)

const (
	duplicateJob          = "resolve-duplicates"
	backupDeletionReason  = "Duplicate with import_payments"
	fieldIsDuplicate      = "isDuplicate"
	fieldDuplicateReason  = "duplicateReason"
	fieldDuplicateOf      = "duplicateOfErrorPayments"
	fieldDuplicateAt      = "duplicateIdentifiedAt"
	fieldMatchingRegs     = "matchingRegistrationIds"
	fieldBackupDeletedAt  = "deletedAt"
	fieldBackupReason     = "deletionReason"
	fieldBackupOriginalID = "originalId"
)

// DuplicateOptions controls a duplicate resolution run.
type DuplicateOptions struct {
	DryRun bool
	Actor  string
}

// DuplicateWorkflow reconciles the quarantine store against the staging
// store and the final registrations store.
type DuplicateWorkflow struct {
	store     DocumentStore
	resolver  *StrictResolver
	sm        *StateMachine
	settings  domain.Settings
	logger    *slog.Logger
	now       func() time.Time
	tolerance domain.Tolerance
}

// NewDuplicateWorkflow creates the workflow.
func NewDuplicateWorkflow(store DocumentStore, resolver *StrictResolver, sm *StateMachine, settings domain.Settings, logger *slog.Logger, now func() time.Time) *DuplicateWorkflow {
	if now == nil {
		now = time.Now
	}
	return &DuplicateWorkflow{
		store:     store,
		resolver:  resolver,
		sm:        sm,
		settings:  settings,
		logger:    loggerOrDiscard(logger),
		now:       now,
		tolerance: settings.AmountTolerance,
	}
}

type quarantineKeys struct {
	reference string
	values    map[string][]string // duplicate key name -> values
	amount    located
	hasAmount bool
}

// Run processes every quarantine record once, in id order. Individual
// failures are counted and logged; the run always returns a report.
func (w *DuplicateWorkflow) Run(ctx context.Context, opts DuplicateOptions) (domain.DuplicateReport, error) {
	report := domain.DuplicateReport{RunID: uuid.NewString(), DryRun: opts.DryRun, Log: []domain.ResolutionEntry{}}
	if opts.Actor == "" {
		opts.Actor = duplicateJob
	}
	cols := w.settings.Collections

	quarantine, err := w.store.Find(ctx, cols.Quarantine, domain.Filter{})
	if err != nil {
		return report, fmt.Errorf("list %s: %w", cols.Quarantine, err)
	}
	sort.Slice(quarantine, func(i, j int) bool { return quarantine[i].ID() < quarantine[j].ID() })
	report.Summary.ErrorPaymentsFound = len(quarantine)

	updated := make(map[string]bool)
	for _, q := range quarantine {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := w.process(ctx, q, opts, &report.Summary, updated)
		report.Log = append(report.Log, entry)
		w.logger.Debug("quarantine record processed",
			slog.String("quarantine", entry.QuarantineID),
			slog.String("action", string(entry.Action)),
			slog.String("details", entry.Details))
	}
	report.Summary.ImportPaymentsUpdated = len(updated)

	s := report.Summary
	w.logger.Info("duplicate resolution finished",
		slog.String("run", report.RunID),
		slog.Bool("dryRun", opts.DryRun),
		slog.Int("errorPaymentsFound", s.ErrorPaymentsFound),
		slog.Int("duplicatesIdentified", s.DuplicatesIdentified),
		slog.Int("duplicatesResolved", s.DuplicatesResolved),
		slog.Int("manualReview", s.ManualReview),
		slog.Int("noMatch", s.NoMatch),
		slog.Int("errors", s.Errors))
	return report, nil
}

func (w *DuplicateWorkflow) process(ctx context.Context, q domain.Document, opts DuplicateOptions, summary *domain.DuplicateSummary, updated map[string]bool) domain.ResolutionEntry {
	keys := extractQuarantineKeys(q)
	entry := domain.ResolutionEntry{QuarantineID: q.ID(), PaymentReference: keys.reference}
	if keys.hasAmount {
		entry.Amount = keys.amount.value.StringFixed(2)
	}
	fail := func(err error) domain.ResolutionEntry {
		summary.Errors++
		entry.Action = domain.ActionError
		entry.Details = err.Error()
		w.logger.Error("quarantine record failed", slog.String("quarantine", q.ID()), slog.Any("error", err))
		return entry
	}

	filter := stagingFilter(keys)
	if filter.IsEmpty() {
		entry.Action = domain.ActionSkipped
		entry.Details = "no usable identifiers on quarantine record"
		return entry
	}
	candidates, err := w.store.Find(ctx, w.settings.Collections.Staging, filter)
	if err != nil {
		return fail(fmt.Errorf("search staging: %w", err))
	}
	if len(candidates) == 0 {
		summary.NoMatch++
		entry.Action = domain.ActionNoMatch
		entry.Details = "no staging record shares an identifier; presumed legitimate payment"
		return entry
	}

	exact, mismatched := w.partition(keys, candidates)
	entry.ReviewIDs = idsOf(mismatched)
	if len(exact) == 0 {
		summary.ManualReview++
		entry.Action = domain.ActionManualReview
		entry.Details = fmt.Sprintf("%d staging record(s) share an identifier but amounts differ", len(mismatched))
		return entry
	}

	summary.DuplicatesIdentified++
	registrations, err := w.resolver.FindRegistrations(ctx, paymentValues(keys))
	if err != nil {
		return fail(err)
	}
	regIDs := idsOf(registrations)
	entry.RegistrationIDs = regIDs
	entry.StagingIDs = idsOf(exact)

	if opts.DryRun {
		entry.Action = domain.ActionDryRun
		entry.Details = fmt.Sprintf("would mark %d staging record(s) duplicate and retire quarantine record", len(exact))
		return entry
	}

	var marked []domain.Document
	for _, s := range exact {
		if hasRegistrationRef(s) || domain.StateOf(s) == domain.StateImported {
			continue
		}
		changed, err := w.markDuplicate(ctx, s, q, keys, regIDs, opts.Actor)
		if err != nil {
			return fail(err)
		}
		if changed {
			updated[s.ID()] = true
		}
		marked = append(marked, s)
	}

	// Staging records are resolved while q still exists, so a failure here
	// leaves q in place for the next run to finish.
	for _, s := range marked {
		if domain.StateOf(s) != domain.StateDuplicate {
			continue
		}
		cause := domain.TransitionCause{Actor: opts.Actor, Operation: duplicateJob, Reason: "duplicate of quarantine record " + q.ID()}
		if _, err := w.sm.Transition(ctx, w.settings.Collections.Staging, s, domain.StateResolved, cause, domain.Update{}); err != nil {
			return fail(err)
		}
		updated[s.ID()] = true
	}

	if err := w.retire(ctx, q); err != nil {
		return fail(err)
	}
	summary.ErrorPaymentsDeleted++

	summary.DuplicatesResolved++
	entry.Action = domain.ActionResolved
	entry.Details = fmt.Sprintf("marked %d staging record(s) duplicate; quarantine record backed up and removed", len(marked))
	if len(mismatched) > 0 {
		entry.Details += fmt.Sprintf("; %d amount mismatch(es) left for review", len(mismatched))
	}
	return entry
}

func (w *DuplicateWorkflow) partition(keys quarantineKeys, candidates []domain.Document) (exact, mismatched []domain.Document) {
	for _, c := range candidates {
		amount, ok := firstAmount(c, stagingAmountPaths)
		if keys.hasAmount && ok && w.tolerance.Within(keys.amount.value, amount.value) {
			exact = append(exact, c)
		} else {
			mismatched = append(mismatched, c)
		}
	}
	return exact, mismatched
}

// markDuplicate records the backlink to q on a staging record. It reports
// whether anything was written; a record already linked to q is untouched.
func (w *DuplicateWorkflow) markDuplicate(ctx context.Context, staging, q domain.Document, keys quarantineKeys, regIDs []string, actor string) (bool, error) {
	backlinks := stringList(staging, fieldDuplicateOf)
	ref := quarantinePaymentID(q, keys)
	for _, b := range backlinks {
		if b == ref {
			return false, nil
		}
	}
	backlinks = append(backlinks, ref)

	regs := make([]any, len(regIDs))
	for i, id := range regIDs {
		regs[i] = id
	}
	links := make([]any, len(backlinks))
	for i, b := range backlinks {
		links[i] = b
	}
	reason := fmt.Sprintf("Duplicate of quarantine payment %s", strings.Join(backlinks, ", "))
	update := domain.Update{Set: map[string]any{
		fieldIsDuplicate:     true,
		fieldDuplicateReason: reason,
		fieldDuplicateOf:     links,
		fieldDuplicateAt:     w.now().UTC(),
		fieldMatchingRegs:    regs,
	}}

	cause := domain.TransitionCause{Actor: actor, Operation: duplicateJob, Reason: reason}
	target := domain.StateDuplicate
	if domain.StateOf(staging) == domain.StateResolved {
		// Already resolved by an earlier quarantine record; only the
		// backlink grows.
		target = domain.StateResolved
	}
	if _, err := w.sm.Transition(ctx, w.settings.Collections.Staging, staging, target, cause, update); err != nil {
		return false, fmt.Errorf("mark staging %s duplicate: %w", staging.ID(), err)
	}
	return true, nil
}

// retire copies q into the backup store and deletes it only once the
// backup is confirmed readable. Both steps are safe to repeat after a crash.
func (w *DuplicateWorkflow) retire(ctx context.Context, q domain.Document) error {
	cols := w.settings.Collections
	_, err := w.store.FindOne(ctx, cols.Backup, domain.ByID(q.ID()))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		backup := q.Clone()
		backup[fieldBackupOriginalID] = q.ID()
		backup[fieldBackupDeletedAt] = w.now().UTC()
		backup[fieldBackupReason] = backupDeletionReason
		if err := w.store.InsertOne(ctx, cols.Backup, backup); err != nil {
			return fmt.Errorf("backup quarantine %s: %w", q.ID(), err)
		}
	case err != nil:
		return fmt.Errorf("check backup of %s: %w", q.ID(), err)
	}

	if _, err := w.store.FindOne(ctx, cols.Backup, domain.ByID(q.ID())); err != nil {
		return fmt.Errorf("quarantine %s: %w: %v", q.ID(), domain.ErrBackupNotConfirmed, err)
	}
	if _, err := w.store.DeleteOne(ctx, cols.Quarantine, domain.ByID(q.ID())); err != nil {
		return fmt.Errorf("delete quarantine %s: %w", q.ID(), err)
	}
	return nil
}

func extractQuarantineKeys(q domain.Document) quarantineKeys {
	keys := quarantineKeys{values: make(map[string][]string)}
	for _, k := range duplicateKeys {
		seen := make(map[string]bool)
		for _, p := range k.quarantinePaths {
			v := q.String(p)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			keys.values[k.name] = append(keys.values[k.name], v)
		}
	}
	// The most specific gateway id makes the best human-readable reference.
	for _, name := range []string{"stripeChargeId", "squarePaymentId", "paymentId", "referenceId"} {
		if vs := keys.values[name]; len(vs) > 0 {
			keys.reference = vs[0]
			break
		}
	}
	if keys.reference == "" {
		keys.reference = q.ID()
	}
	keys.amount, keys.hasAmount = firstAmount(q, quarantineAmountPaths)
	return keys
}

func stagingFilter(keys quarantineKeys) domain.Filter {
	var f domain.Filter
	for _, k := range duplicateKeys {
		for _, v := range keys.values[k.name] {
			f.Or = append(f.Or, domain.AnyOf(k.stagingPaths, v).Or...)
		}
	}
	return f
}

// paymentValues are the quarantine identifiers worth looking up in the
// registrations store.
func paymentValues(keys quarantineKeys) []string {
	var out []string
	for _, name := range []string{"paymentId", "squarePaymentId", "stripeChargeId"} {
		out = append(out, keys.values[name]...)
	}
	return out
}

func quarantinePaymentID(q domain.Document, keys quarantineKeys) string {
	if vs := keys.values["paymentId"]; len(vs) > 0 {
		return vs[0]
	}
	return q.ID()
}

func hasRegistrationRef(doc domain.Document) bool {
	for _, p := range stagingRegistrationRefPaths {
		if doc.Has(p) {
			return true
		}
	}
	return false
}

func stringList(doc domain.Document, path string) []string {
	raw, ok := doc.Lookup(path)
	if !ok {
		return nil
	}
	var out []string
	switch list := raw.(type) {
	case []any:
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, list...)
	}
	return out
}

func idsOf(docs []domain.Document) []string {
	if len(docs) == 0 {
		return nil
	}
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID()
	}
	return out
}
