package memory

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

func TestOutboxRepository_MemoryEnqueuePullMark(t *testing.T) {
	outbox := NewOutboxRepository()

	first, err := outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "cover/1",
		EventType:     "order.created",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}

	second, err := outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "cover/1",
		EventType:     "order.replaced",
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	pending, err := outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("pending must follow enqueue order: %+v", pending)
	}

	stats, err := outbox.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := outbox.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := outbox.MarkFailed(second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err = outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull after marks: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}

	if err := outbox.MarkSent("missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
}

func TestOutboxRepository_MemoryPullLimit(t *testing.T) {
	outbox := NewOutboxRepository()

	for i := 0; i < 5; i++ {
		if _, err := outbox.Enqueue(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "blade/1",
			EventType:     "order.created",
			Payload:       []byte(`{}`),
		}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	pending, err := outbox.PullPending(3)
	if err != nil {
		t.Fatalf("pull with limit: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(pending))
	}
}
