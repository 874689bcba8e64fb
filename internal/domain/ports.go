package domain

import "time"

// OutboxMessage — запись transactional outbox: событие, которое ещё
// предстоит опубликовать наружу.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats — срез состояния backlog: сколько записей ждут публикации
// и с какого момента ждёт самая старая.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxRepository хранит события до момента их публикации.
type OutboxRepository interface {
	// Enqueue сохраняет событие в статусе pending. Пустой ID заполняется
	// при сохранении.
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает порцию неопубликованных событий в порядке
	// их создания.
	PullPending(limit int) ([]OutboxMessage, error)
	// Stats возвращает размер и возраст backlog.
	Stats() (OutboxStats, error)
	// MarkSent фиксирует успешную публикацию.
	MarkSent(id string) error
	// MarkFailed помечает событие как окончательно недоставленное.
	MarkFailed(id string) error
}

// OutboxPublisher доставляет событие во внешний транспорт.
// Реализация обязана переживать повторную доставку одного и того же
// события без побочных эффектов.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// TimelineRepository ведёт журнал жизненного цикла заказа в рамках
// продуктовой линии.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(line ProductLine, orderID int64) ([]TimelineEvent, error)
}

// IdempotencyRepository отслеживает обработку запросов по idempotency-key:
// от захвата ключа до сохранённого ответа.
type IdempotencyRepository interface {
	// CreateProcessing захватывает ключ под обработку. Для уже занятого
	// ключа возвращает существующую запись вместе с
	// ErrIdempotencyKeyAlreadyExists либо ErrIdempotencyHashMismatch.
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte) error
	MarkFailed(key string, responseBody []byte) error
	// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов.
	DeleteExpired(before time.Time, limit int) (int, error)
}
