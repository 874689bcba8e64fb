package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

type timelineKey struct {
	line    domain.ProductLine
	orderID int64
}

// timelineRepositoryInMemory держит журнал заказов в памяти процесса.
// Используется в разработке и в тестах вместо PostgreSQL.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[timelineKey][]domain.TimelineEvent
}

// NewTimelineRepository возвращает журнал жизненного цикла заказов в памяти.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[timelineKey][]domain.TimelineEvent)}
}

func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if !event.Line.Valid() {
		return domain.ErrUnknownProductLine
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := timelineKey{event.Line, event.OrderID}
	r.events[key] = append(r.events[key], event)

	sort.SliceStable(r.events[key], func(i, j int) bool {
		return r.events[key][i].Occurred.Before(r.events[key][j].Occurred)
	})

	return nil
}

// List отдаёт копию журнала заказа, отсортированную по времени.
func (r *timelineRepositoryInMemory) List(line domain.ProductLine, orderID int64) ([]domain.TimelineEvent, error) {
	if !line.Valid() {
		return nil, domain.ErrUnknownProductLine
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[timelineKey{line, orderID}]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
