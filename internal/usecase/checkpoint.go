package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cast"

	"payment-reconciliation/internal/domain"
)

// checkpointStore persists batch progress so long runs can resume.
type checkpointStore struct {
	store      DocumentStore
	collection string
	now        func() time.Time
}

func (c *checkpointStore) Load(ctx context.Context, job string) (domain.Checkpoint, bool, error) {
	doc, err := c.store.FindOne(ctx, c.collection, domain.ByID(job))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", job, err)
	}
	return domain.Checkpoint{
		Job:             job,
		RunID:           doc.String("runId"),
		LastProcessedID: doc.String("lastProcessedId"),
		UpdatedAt:       cast.ToTime(doc["checkpointAt"]),
	}, true, nil
}

func (c *checkpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	set := map[string]any{
		"runId":           cp.RunID,
		"lastProcessedId": cp.LastProcessedID,
		"checkpointAt":    c.now().UTC(),
	}
	n, err := c.store.UpdateOne(ctx, c.collection, domain.ByID(cp.Job), domain.Update{Set: set})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Job, err)
	}
	if n > 0 {
		return nil
	}
	doc := domain.Document{domain.IDField: cp.Job}
	for k, v := range set {
		doc[k] = v
	}
	if err := c.store.InsertOne(ctx, c.collection, doc); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Job, err)
	}
	return nil
}

func (c *checkpointStore) Clear(ctx context.Context, job string) error {
	if _, err := c.store.DeleteOne(ctx, c.collection, domain.ByID(job)); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", job, err)
	}
	return nil
}

// watermark tracks the last id below which every item has completed, so
// a checkpoint never skips work still in flight on another worker.
type watermark struct {
	mu   sync.Mutex
	ids  []string
	done []bool
	next int
}

func newWatermark(ids []string) *watermark {
	return &watermark{ids: ids, done: make([]bool, len(ids))}
}

// Done marks idx complete and returns the current contiguous watermark id,
// or "" when nothing contiguous has completed yet.
func (w *watermark) Done(idx int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done[idx] = true
	for w.next < len(w.done) && w.done[w.next] {
		w.next++
	}
	return w.current()
}

// Current returns the watermark id without marking anything.
func (w *watermark) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current()
}

func (w *watermark) current() string {
	if w.next == 0 {
		return ""
	}
	return w.ids[w.next-1]
}
