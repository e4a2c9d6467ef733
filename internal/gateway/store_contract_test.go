package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciliation/internal/domain"
	"payment-reconciliation/internal/usecase"
)

var (
	_ usecase.DocumentStore = (*MemoryStore)(nil)
	_ usecase.DocumentStore = (*SQLiteStore)(nil)
)

// testStoreContract exercises the behaviour every DocumentStore shares.
func testStoreContract(t *testing.T, newStore func(t *testing.T) usecase.DocumentStore) {
	ctx := context.Background()
	seed := []domain.Document{
		{"_id": "p2", "paymentId": "pi_2", "originalData": map[string]any{"Payment ID": "sq_2"}},
		{"_id": "p1", "paymentId": "pi_1", "status": "paid"},
		{"_id": "p3", "transactionId": "pi_1", "amount": 10.5},
	}

	t.Run("find by nested path in id order", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertMany(ctx, "payments", seed))

		got, err := store.Find(ctx, "payments", domain.AnyOf([]string{"paymentId", "transactionId"}, "pi_1"))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "p1", got[0].ID())
		assert.Equal(t, "p3", got[1].ID())

		one, err := store.FindOne(ctx, "payments", domain.Eq("originalData.Payment ID", "sq_2"))
		require.NoError(t, err)
		assert.Equal(t, "p2", one.ID())

		all, err := store.Find(ctx, "payments", domain.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("find one miss", func(t *testing.T) {
		store := newStore(t)
		_, err := store.FindOne(ctx, "payments", domain.ByID("nope"))
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("non-string equality", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertMany(ctx, "payments", seed))
		n, err := store.CountDocuments(ctx, "payments", domain.Eq("amount", 10.5))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("update sets, unsets and stamps", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertMany(ctx, "payments", seed))

		n, err := store.UpdateOne(ctx, "payments", domain.ByID("p1"), domain.Update{
			Set:   map[string]any{"reconciliationStatus": "matched", "nested.field": "x"},
			Unset: []string{"status"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		doc, err := store.FindOne(ctx, "payments", domain.ByID("p1"))
		require.NoError(t, err)
		assert.Equal(t, "matched", doc.String("reconciliationStatus"))
		assert.Equal(t, "x", doc.String("nested.field"))
		assert.False(t, doc.Has("status"))
		assert.True(t, doc.Has(FieldUpdatedAt))
		assert.True(t, doc.Has(FieldCreatedAt))

		n, err = store.UpdateOne(ctx, "payments", domain.ByID("missing"), domain.Update{Set: map[string]any{"a": 1}})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("returned documents are copies", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertMany(ctx, "payments", seed))

		doc, err := store.FindOne(ctx, "payments", domain.ByID("p2"))
		require.NoError(t, err)
		doc.Set("originalData.Payment ID", "changed")

		again, err := store.FindOne(ctx, "payments", domain.ByID("p2"))
		require.NoError(t, err)
		assert.Equal(t, "sq_2", again.String("originalData.Payment ID"))
	})

	t.Run("update values are copied", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertMany(ctx, "payments", seed))

		history := []any{map[string]any{"to": "matched"}}
		_, err := store.UpdateOne(ctx, "payments", domain.ByID("p1"), domain.Update{Set: map[string]any{"statusHistory": history}})
		require.NoError(t, err)
		history[0].(map[string]any)["to"] = "changed"

		doc, err := store.FindOne(ctx, "payments", domain.ByID("p1"))
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{"to": "matched"}}, doc["statusHistory"])
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertOne(ctx, "payments", domain.Document{"_id": "p1"}))

		err := store.InsertOne(ctx, "payments", domain.Document{"_id": "p1"})
		assert.True(t, errors.Is(err, domain.ErrDuplicateKey))

		err = store.InsertMany(ctx, "payments", []domain.Document{{"_id": "p9"}, {"_id": "p1"}})
		assert.True(t, errors.Is(err, domain.ErrDuplicateKey))
		_, err = store.FindOne(ctx, "payments", domain.ByID("p9"))
		assert.True(t, errors.Is(err, domain.ErrNotFound), "a failed batch inserts nothing")

		// Same id in another collection is fine.
		assert.NoError(t, store.InsertOne(ctx, "registrations", domain.Document{"_id": "p1"}))
	})

	t.Run("missing id is generated", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertOne(ctx, "payments", domain.Document{"paymentId": "pi_x"}))
		doc, err := store.FindOne(ctx, "payments", domain.Eq("paymentId", "pi_x"))
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ID())
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.InsertMany(ctx, "payments", seed))

		n, err := store.DeleteOne(ctx, "payments", domain.AnyOf([]string{"paymentId", "transactionId"}, "pi_1"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		_, err = store.FindOne(ctx, "payments", domain.ByID("p1"))
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		n, err = store.DeleteMany(ctx, "payments", domain.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		count, err := store.CountDocuments(ctx, "payments", domain.Filter{})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
