package kafka

import "time"

// Темы, через которые сервис общается с внешним миром.
const (
	TopicOrderEvents     = "mos.order.events"
	TopicDeadLetterQueue = "mos.dlq"
)

// EventType обозначает событие жизненного цикла заказа.
type EventType string

const (
	EventTypeOrderCreated  EventType = "order.created"
	EventTypeOrderReplaced EventType = "order.replaced"
	EventTypeOrderDeleted  EventType = "order.deleted"
)

// OrderEvent — полезная нагрузка события заказа.
// Items содержит число принятых позиций, а не сами позиции:
// потребителю для реакции достаточно идентификаторов.
type OrderEvent struct {
	EventType EventType `json:"event_type"`
	Line      string    `json:"line"`
	OrderID   int64     `json:"order_id"`
	VoucherNo int64     `json:"voucher_no,omitempty"`
	PartyID   int64     `json:"party_id"`
	Items     int       `json:"items"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent собирает событие заказа с текущей меткой времени.
func NewOrderEvent(eventType EventType, line string, orderID, voucherNo, partyID int64, items int) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		Line:      line,
		OrderID:   orderID,
		VoucherNo: voucherNo,
		PartyID:   partyID,
		Items:     items,
		Timestamp: time.Now(),
	}
}
