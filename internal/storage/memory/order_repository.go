package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

type lineKey struct {
	line domain.ProductLine
	id   int64
}

// orderRepositoryInMemory — in-memory реализация OrderRepository для
// локальной разработки и тестов. Заказы разных линий живут в общих мапах,
// но с раздельными счётчиками идентификаторов и ваучеров.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	orders   map[lineKey]domain.Order
	nextID   map[domain.ProductLine]int64
	vouchers map[domain.ProductLine]int64
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders:   make(map[lineKey]domain.Order),
		nextID:   make(map[domain.ProductLine]int64),
		vouchers: make(map[domain.ProductLine]int64),
	}
}

// Create назначает ID (и номер ваучера для blade) и сохраняет копию заказа.
func (r *orderRepositoryInMemory) Create(order domain.Order) (domain.Order, error) {
	if !order.Line.Valid() {
		return domain.Order{}, domain.ErrUnknownProductLine
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID[order.Line]++
	order.ID = r.nextID[order.Line]

	if order.Line.UsesVoucher() {
		r.vouchers[order.Line]++
		order.VoucherNo = r.vouchers[order.Line]
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Items = cloneItems(order.Items)

	r.orders[lineKey{order.Line, order.ID}] = order
	return cloneOrder(order), nil
}

// Replace обновляет изменяемые поля мастера и целиком подменяет позиции.
func (r *orderRepositoryInMemory) Replace(order domain.Order) error {
	if !order.Line.Valid() {
		return domain.ErrUnknownProductLine
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := lineKey{order.Line, order.ID}
	current, ok := r.orders[key]
	if !ok {
		return domain.ErrOrderNotFound
	}

	current.PartyID = order.PartyID
	current.ReceivedDate = order.ReceivedDate
	current.DeliveryDate = order.DeliveryDate
	if current.Line.UsesVoucher() {
		current.TotalQty = order.TotalQty
		current.TotalUnits = order.TotalUnits
	}
	current.Items = cloneItems(order.Items)
	current.UpdatedAt = time.Now().UTC()

	r.orders[key] = current
	return nil
}

// Delete удаляет заказ вместе с позициями.
func (r *orderRepositoryInMemory) Delete(line domain.ProductLine, id int64) error {
	if !line.Valid() {
		return domain.ErrUnknownProductLine
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := lineKey{line, id}
	if _, ok := r.orders[key]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.orders, key)
	return nil
}

// Get возвращает копию заказа или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(line domain.ProductLine, id int64) (domain.Order, error) {
	if !line.Valid() {
		return domain.Order{}, domain.ErrUnknownProductLine
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[lineKey{line, id}]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByVoucher ищет заказ линии по номеру ваучера.
func (r *orderRepositoryInMemory) GetByVoucher(line domain.ProductLine, voucherNo int64) (domain.Order, error) {
	if !line.Valid() {
		return domain.Order{}, domain.ErrUnknownProductLine
	}
	if !line.UsesVoucher() {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for key, order := range r.orders {
		if key.line == line && order.VoucherNo == voucherNo {
			return cloneOrder(order), nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = cloneItems(order.Items)
	return order
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	if items == nil {
		return nil
	}
	return append([]domain.OrderItem(nil), items...)
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
