package usecase

import (
	"context"

	"payment-reconciliation/internal/domain"
)

// DocumentStore defines the generic document database the engine runs on.
// The usecase layer depends on this interface, not on a concrete implementation.
// FindOne returns domain.ErrNotFound when nothing matches. UpdateOne and the
// delete operations return the number of documents they touched.
//
//go:generate mockgen -destination=mocks/mock_store.go -source=interface.go DocumentStore
type DocumentStore interface {
	FindOne(ctx context.Context, collection string, filter domain.Filter) (domain.Document, error)
	Find(ctx context.Context, collection string, filter domain.Filter) ([]domain.Document, error)
	UpdateOne(ctx context.Context, collection string, filter domain.Filter, update domain.Update) (int64, error)
	InsertOne(ctx context.Context, collection string, doc domain.Document) error
	InsertMany(ctx context.Context, collection string, docs []domain.Document) error
	DeleteOne(ctx context.Context, collection string, filter domain.Filter) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter domain.Filter) (int64, error)
	CountDocuments(ctx context.Context, collection string, filter domain.Filter) (int64, error)
}
