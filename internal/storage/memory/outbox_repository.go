package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

type outboxState string

const (
	outboxPending outboxState = "pending"
	outboxSent    outboxState = "sent"
	outboxFailed  outboxState = "failed"
)

// outboxEntry — сообщение вместе со служебным состоянием доставки.
// seq сохраняет порядок постановки, потому что map его не гарантирует.
type outboxEntry struct {
	msg       domain.OutboxMessage
	state     outboxState
	attempts  int
	seq       int64
	createdAt time.Time
	updatedAt time.Time
}

// outboxRepositoryInMemory — in-memory transactional outbox для тестов
// и локального запуска.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	entries map[string]*outboxEntry
	lastSeq int64
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() domain.OutboxRepository {
	return &outboxRepositoryInMemory{entries: make(map[string]*outboxEntry)}
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)

func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	r.lastSeq++
	r.entries[msg.ID] = &outboxEntry{
		msg:       msg,
		state:     outboxPending,
		seq:       r.lastSeq,
		createdAt: now,
		updatedAt: now,
	}

	return msg, nil
}

func (r *outboxRepositoryInMemory) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	batch := r.pendingLocked()
	if len(batch) > limit {
		batch = batch[:limit]
	}

	msgs := make([]domain.OutboxMessage, 0, len(batch))
	for _, entry := range batch {
		msgs = append(msgs, entry.msg)
	}
	return msgs, nil
}

// pendingLocked возвращает pending-записи в порядке постановки.
// Вызывается под взятым mu.
func (r *outboxRepositoryInMemory) pendingLocked() []*outboxEntry {
	var batch []*outboxEntry
	for _, entry := range r.entries {
		if entry.state == outboxPending {
			batch = append(batch, entry)
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })
	return batch
}

func (r *outboxRepositoryInMemory) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, entry := range r.entries {
		if entry.state != outboxPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || entry.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = entry.createdAt
		}
	}

	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(id string) error {
	return r.transition(id, outboxSent)
}

func (r *outboxRepositoryInMemory) MarkFailed(id string) error {
	return r.transition(id, outboxFailed)
}

func (r *outboxRepositoryInMemory) transition(id string, state outboxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrOutboxPublish
	}

	entry.state = state
	entry.attempts++
	entry.updatedAt = time.Now().UTC()
	return nil
}
