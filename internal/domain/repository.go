package domain

// OrderRepository описывает требования к хранилищу заказов.
//
// Каждая многошаговая операция (Create, Replace, Delete) выполняется в одной
// транзакции хранилища: читатель никогда не видит мастер-запись с частичным
// или смешанным набором позиций.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе со всеми позициями и возвращает его
	// с назначенными хранилищем ID и (для линий с нумерацией) VoucherNo.
	// Позиции должны быть заранее подготовлены PrepareItems.
	Create(order Order) (Order, error)
	// Replace обновляет изменяемые поля мастер-записи order.ID и заменяет весь
	// набор позиций на order.Items. ID и VoucherNo неизменяемы.
	// Возвращает ErrOrderNotFound, если заказа нет.
	Replace(order Order) error
	// Delete удаляет заказ: сначала позиции, затем мастер-запись.
	Delete(line ProductLine, id int64) error
	// Get возвращает заказ с позициями в порядке вставки или ErrOrderNotFound.
	Get(line ProductLine, id int64) (Order, error)
	// GetByVoucher ищет заказ по номеру ваучера (только для линий с нумерацией).
	GetByVoucher(line ProductLine, voucherNo int64) (Order, error)
}
