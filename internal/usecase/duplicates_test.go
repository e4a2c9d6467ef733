package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation/internal/domain"
	mock_usecase "payment-reconciliation/internal/usecase/mocks"
)

const (
	quarantineColl = "error_payments"
	stagingColl    = "import_payments"
	backupColl     = "deleted_error_payments_backup"
)

func newTestWorkflow(store DocumentStore) *DuplicateWorkflow {
	sm := NewStateMachine(store, testClock)
	settings := domain.DefaultSettings()
	resolver := NewStrictResolver(store, sm, settings, nil, testClock)
	return NewDuplicateWorkflow(store, resolver, sm, settings, nil, testClock)
}

// sharedReferenceFixture holds two quarantine records and one staging
// record with the same reference and amounts a few cents apart.
func sharedReferenceFixture() map[string][]domain.Document {
	return map[string][]domain.Document{
		quarantineColl: {
			{"_id": "q1", "paymentId": "pay_q1", "originalData": map[string]any{"referenceId": "REF-1"}, "amount": 100.00},
			{"_id": "q2", "payment_id": "pay_q2", "referenceId": "REF-1", "total_amount": "100.05"},
		},
		stagingColl: {
			{"_id": "s1", "metadata": map[string]any{"referenceId": "REF-1"}, "grossAmount": 100.02},
		},
		"registrations": {
			{"_id": "r1", "squarePaymentId": "pay_q1"},
		},
	}
}

func count(t *testing.T, store DocumentStore, collection string) int64 {
	t.Helper()
	n, err := store.CountDocuments(context.Background(), collection, domain.Filter{})
	require.NoError(t, err)
	return n
}

func TestDuplicateWorkflow_SharedReference(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, sharedReferenceFixture())
	workflow := newTestWorkflow(store)

	report, err := workflow.Run(ctx, DuplicateOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.DuplicateSummary{
		ErrorPaymentsFound:    2,
		DuplicatesIdentified:  2,
		DuplicatesResolved:    2,
		ImportPaymentsUpdated: 1,
		ErrorPaymentsDeleted:  2,
	}, report.Summary)

	require.Len(t, report.Log, 2)
	assert.Equal(t, domain.ActionResolved, report.Log[0].Action)
	assert.Equal(t, "pay_q1", report.Log[0].PaymentReference)
	assert.Equal(t, "100.00", report.Log[0].Amount)
	assert.Equal(t, []string{"s1"}, report.Log[0].StagingIDs)
	assert.Equal(t, []string{"r1"}, report.Log[0].RegistrationIDs)
	assert.Equal(t, "100.05", report.Log[1].Amount)

	staging := mustFind(t, store, stagingColl, "s1")
	assert.Equal(t, true, staging[fieldIsDuplicate])
	assert.Equal(t, []any{"pay_q1", "pay_q2"}, staging[fieldDuplicateOf])
	assert.Equal(t, domain.StateResolved, domain.StateOf(staging))
	assert.Equal(t, 2, historyLen(staging))

	assert.Zero(t, count(t, store, quarantineColl))
	assert.Equal(t, int64(2), count(t, store, backupColl))
	backup := mustFind(t, store, backupColl, "q2")
	assert.Equal(t, "q2", backup.String(fieldBackupOriginalID))
	assert.Equal(t, "Duplicate with import_payments", backup.String(fieldBackupReason))
	assert.Equal(t, "REF-1", backup.String("referenceId"))

	t.Run("rerun changes nothing", func(t *testing.T) {
		again, err := workflow.Run(ctx, DuplicateOptions{})
		require.NoError(t, err)
		assert.Equal(t, domain.DuplicateSummary{}, again.Summary)
		assert.Empty(t, again.Log)
		assert.Equal(t, staging, mustFind(t, store, stagingColl, "s1"))
	})
}

func TestDuplicateWorkflow_DryRun(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t, sharedReferenceFixture())
	workflow := newTestWorkflow(store)
	before := mustFind(t, store, stagingColl, "s1")

	report, err := workflow.Run(ctx, DuplicateOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Summary.DuplicatesIdentified)
	assert.Zero(t, report.Summary.DuplicatesResolved)
	assert.Zero(t, report.Summary.ErrorPaymentsDeleted)
	for _, e := range report.Log {
		assert.Equal(t, domain.ActionDryRun, e.Action)
	}

	assert.Equal(t, before, mustFind(t, store, stagingColl, "s1"))
	assert.Equal(t, int64(2), count(t, store, quarantineColl))
	assert.Zero(t, count(t, store, backupColl))
}

func TestDuplicateWorkflow_Classification(t *testing.T) {
	store := seedStore(t, map[string][]domain.Document{
		quarantineColl: {
			{"_id": "q1", "referenceId": "REF-1", "amount": 10},
			{"_id": "q2", "referenceId": "REF-2", "amount": 10},
			{"_id": "q3", "amount": 10},
			{"_id": "q4", "stripeChargeId": "ch_4", "amount": 40},
		},
		stagingColl: {
			{"_id": "s1", "referenceId": "REF-1", "amount": 20},
			{"_id": "s4", "stripe_charge_id": "ch_4", "amount": 40, "registrationId": "r4"},
		},
	})
	workflow := newTestWorkflow(store)

	report, err := workflow.Run(context.Background(), DuplicateOptions{})
	require.NoError(t, err)

	byID := make(map[string]domain.ResolutionEntry)
	for _, e := range report.Log {
		byID[e.QuarantineID] = e
	}

	t.Run("amount mismatch goes to manual review", func(t *testing.T) {
		e := byID["q1"]
		assert.Equal(t, domain.ActionManualReview, e.Action)
		assert.Equal(t, []string{"s1"}, e.ReviewIDs)
		assert.Equal(t, domain.StatePending, domain.StateOf(mustFind(t, store, stagingColl, "s1")))
		mustFind(t, store, quarantineColl, "q1")
	})

	t.Run("nothing shared is presumed legitimate", func(t *testing.T) {
		assert.Equal(t, domain.ActionNoMatch, byID["q2"].Action)
		mustFind(t, store, quarantineColl, "q2")
	})

	t.Run("no identifiers", func(t *testing.T) {
		assert.Equal(t, domain.ActionSkipped, byID["q3"].Action)
		assert.Equal(t, "q3", byID["q3"].PaymentReference)
	})

	t.Run("linked staging record is left alone", func(t *testing.T) {
		e := byID["q4"]
		assert.Equal(t, domain.ActionResolved, e.Action)
		assert.Equal(t, "ch_4", e.PaymentReference)
		s4 := mustFind(t, store, stagingColl, "s4")
		assert.False(t, s4.Has(fieldIsDuplicate))
		mustFind(t, store, backupColl, "q4")
	})

	assert.Equal(t, 1, report.Summary.ManualReview)
	assert.Equal(t, 1, report.Summary.NoMatch)
	assert.Equal(t, 1, report.Summary.DuplicatesResolved)
	assert.Zero(t, report.Summary.ImportPaymentsUpdated)
}

func TestDuplicateWorkflow_BackupNotConfirmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	store := mock_usecase.NewMockDocumentStore(ctrl)

	q := domain.Document{"_id": "q1", "referenceId": "REF-1", "amount": 10}
	s := domain.Document{"_id": "s1", "referenceId": "REF-1", "amount": 10}

	store.EXPECT().Find(gomock.Any(), quarantineColl, domain.Filter{}).Return([]domain.Document{q}, nil)
	store.EXPECT().Find(gomock.Any(), stagingColl, gomock.Any()).Return([]domain.Document{s}, nil)
	// Marked duplicate, then resolved.
	store.EXPECT().UpdateOne(gomock.Any(), stagingColl, domain.ByID("s1"), gomock.Any()).Return(int64(1), nil).Times(2)
	store.EXPECT().FindOne(gomock.Any(), backupColl, domain.ByID("q1")).Return(nil, domain.ErrNotFound)
	store.EXPECT().InsertOne(gomock.Any(), backupColl, gomock.Any()).Return(nil)
	store.EXPECT().FindOne(gomock.Any(), backupColl, domain.ByID("q1")).Return(nil, domain.ErrNotFound)
	// No DeleteOne: the quarantine record must survive an unreadable backup.

	report, err := newTestWorkflow(store).Run(context.Background(), DuplicateOptions{})
	require.NoError(t, err)

	require.Len(t, report.Log, 1)
	assert.Equal(t, domain.ActionError, report.Log[0].Action)
	assert.Contains(t, report.Log[0].Details, domain.ErrBackupNotConfirmed.Error())
	assert.Equal(t, 1, report.Summary.Errors)
	assert.Zero(t, report.Summary.ErrorPaymentsDeleted)
	assert.Zero(t, report.Summary.DuplicatesResolved)
}

func TestDuplicateWorkflow_ResumesAfterPartialRetire(t *testing.T) {
	ctx := context.Background()
	fixture := sharedReferenceFixture()
	// A previous run backed q1 up but stopped before deleting it.
	fixture[backupColl] = []domain.Document{{"_id": "q1", "originalId": "q1"}}
	store := seedStore(t, fixture)

	report, err := newTestWorkflow(store).Run(ctx, DuplicateOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.ErrorPaymentsDeleted)
	assert.Zero(t, count(t, store, quarantineColl))
	assert.Equal(t, int64(2), count(t, store, backupColl))
}

// resolveFailingStore fails every write that moves a record to resolved
// while fail is set.
type resolveFailingStore struct {
	DocumentStore
	fail bool
}

func (s *resolveFailingStore) UpdateOne(ctx context.Context, collection string, filter domain.Filter, update domain.Update) (int64, error) {
	if s.fail && update.Set[domain.FieldStatus] == string(domain.StateResolved) {
		return 0, errors.New("write timeout")
	}
	return s.DocumentStore.UpdateOne(ctx, collection, filter, update)
}

func TestDuplicateWorkflow_ResolveFailureKeepsQuarantine(t *testing.T) {
	ctx := context.Background()
	store := &resolveFailingStore{
		DocumentStore: seedStore(t, map[string][]domain.Document{
			quarantineColl: {{"_id": "q1", "referenceId": "REF-1", "amount": 10}},
			stagingColl:    {{"_id": "s1", "referenceId": "REF-1", "amount": 10}},
		}),
		fail: true,
	}
	workflow := newTestWorkflow(store)

	report, err := workflow.Run(ctx, DuplicateOptions{})
	require.NoError(t, err)
	require.Len(t, report.Log, 1)
	assert.Equal(t, domain.ActionError, report.Log[0].Action)
	assert.Equal(t, 1, report.Summary.Errors)
	assert.Zero(t, report.Summary.ErrorPaymentsDeleted)
	assert.Equal(t, int64(1), count(t, store, quarantineColl))
	assert.Equal(t, domain.StateDuplicate, domain.StateOf(mustFind(t, store, stagingColl, "s1")))

	store.fail = false
	report, err = workflow.Run(ctx, DuplicateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.ErrorPaymentsDeleted)
	assert.Equal(t, 1, report.Summary.DuplicatesResolved)
	assert.Zero(t, report.Summary.Errors)
	assert.Zero(t, count(t, store, quarantineColl))

	staging := mustFind(t, store, stagingColl, "s1")
	assert.Equal(t, domain.StateResolved, domain.StateOf(staging))
	assert.Equal(t, []any{"q1"}, staging[fieldDuplicateOf])
	assert.Equal(t, 2, historyLen(staging))
}
