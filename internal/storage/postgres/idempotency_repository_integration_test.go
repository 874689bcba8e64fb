package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

func TestIdempotencyRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour).Round(time.Microsecond)

	created, err := repo.CreateProcessing("key-1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("unexpected status: %s", created.Status)
	}

	// Повтор с тем же хешем возвращает уже существующую запись.
	existing, err := repo.CreateProcessing("key-1", "hash-1", ttl)
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if existing.Key != "key-1" {
		t.Fatalf("expected existing record, got %+v", existing)
	}

	// Переиспользование ключа с другим телом запроса запрещено.
	if _, err := repo.CreateProcessing("key-1", "hash-2", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}

	if err := repo.MarkDone("key-1", []byte(`{"order_id":1}`)); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	got, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.Status != domain.IdempotencyStatusDone {
		t.Fatalf("unexpected status after done: %s", got.Status)
	}
	if string(got.ResponseBody) != `{"order_id":1}` {
		t.Fatalf("unexpected response body: %s", got.ResponseBody)
	}

	if err := repo.MarkFailed("missing", nil); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound on get, got %v", err)
	}
	if _, err := repo.Get("   "); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	now := time.Now().UTC()

	for _, tc := range []struct {
		key string
		ttl time.Time
	}{
		{"expired-1", now.Add(-2 * time.Hour)},
		{"expired-2", now.Add(-time.Hour)},
		{"alive", now.Add(time.Hour)},
	} {
		if _, err := repo.CreateProcessing(tc.key, "hash", tc.ttl); err != nil {
			t.Fatalf("create %s: %v", tc.key, err)
		}
	}

	deleted, err := repo.DeleteExpired(now, 1)
	if err != nil {
		t.Fatalf("delete expired with limit: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	deleted, err = repo.DeleteExpired(now, 0)
	if err != nil {
		t.Fatalf("delete expired without limit: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 more deleted, got %d", deleted)
	}

	if _, err := repo.Get("alive"); err != nil {
		t.Fatalf("alive record must survive cleanup: %v", err)
	}
}
