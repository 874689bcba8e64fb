package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

func TestCleanupWorker_DeletesUntilShortBatch(t *testing.T) {
	t.Parallel()

	repo := &fakeCleanupRepo{batches: []int{2, 2, 1}}
	worker := NewCleanupWorker(repo, WithBatchSize(2))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("deleted = %d, want 5", deleted)
	}
	if repo.calls() != 3 {
		t.Fatalf("delete calls = %d, want 3", repo.calls())
	}
}

func TestCleanupWorker_StopsOnRepoError(t *testing.T) {
	t.Parallel()

	repo := &fakeCleanupRepo{batches: []int{10, 10}, errs: []error{nil, errors.New("deadlock")}}
	worker := NewCleanupWorker(repo, WithBatchSize(10))

	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected repo error")
	}
	if deleted != 10 {
		t.Fatalf("deleted before the error = %d, want 10", deleted)
	}
}

func TestCleanupWorker_ZeroBeforeDefaultsToNow(t *testing.T) {
	t.Parallel()

	repo := &fakeCleanupRepo{batches: []int{0}}
	worker := NewCleanupWorker(repo)

	if _, err := worker.DeleteExpired(context.Background(), time.Time{}); err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if repo.lastBefore().IsZero() {
		t.Fatal("before must default to the current time")
	}
}

func TestCleanupWorker_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &fakeCleanupRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
	if repo.calls() == 0 {
		t.Fatal("expected at least one cleanup call")
	}
}

// fakeCleanupRepo выдаёт подготовленные размеры порций, затем нули.
type fakeCleanupRepo struct {
	mu      sync.Mutex
	batches []int
	errs    []error
	count   int
	before  time.Time
}

var _ domain.IdempotencyRepository = (*fakeCleanupRepo)(nil)

func (f *fakeCleanupRepo) DeleteExpired(before time.Time, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count++
	f.before = before

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeCleanupRepo) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *fakeCleanupRepo) lastBefore() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.before
}

func (f *fakeCleanupRepo) CreateProcessing(string, string, time.Time) (domain.IdempotencyRecord, error) {
	panic("not used in cleanup tests")
}

func (f *fakeCleanupRepo) Get(string) (domain.IdempotencyRecord, error) {
	panic("not used in cleanup tests")
}

func (f *fakeCleanupRepo) MarkDone(string, []byte) error {
	panic("not used in cleanup tests")
}

func (f *fakeCleanupRepo) MarkFailed(string, []byte) error {
	panic("not used in cleanup tests")
}
