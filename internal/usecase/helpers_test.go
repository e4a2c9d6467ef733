package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"payment-reconciliation/internal/domain"
	"payment-reconciliation/internal/gateway"
)

var testNow = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// seedStore builds an in-memory store holding the given collections.
func seedStore(t *testing.T, collections map[string][]domain.Document) *gateway.MemoryStore {
	t.Helper()
	store := gateway.NewMemoryStore()
	for name, docs := range collections {
		require.NoError(t, store.InsertMany(context.Background(), name, docs))
	}
	return store
}

func newTestUseCase(store DocumentStore) *ReconciliationUseCase {
	return NewReconciliationUseCase(store, domain.DefaultSettings(), WithClock(testClock))
}

func mustFind(t *testing.T, store DocumentStore, collection, id string) domain.Document {
	t.Helper()
	doc, err := store.FindOne(context.Background(), collection, domain.ByID(id))
	require.NoError(t, err)
	return doc
}

func historyLen(doc domain.Document) int {
	return len(historyOf(doc))
}
