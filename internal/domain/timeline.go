package domain

import "time"

// TimelineEvent — запись журнала жизненного цикла заказа: что произошло,
// с каким заказом какой продуктовой линии и когда. Reason заполняется,
// когда у события есть нештатная причина.
type TimelineEvent struct {
	Line     ProductLine
	OrderID  int64
	Type     string
	Reason   string
	Occurred time.Time
}
