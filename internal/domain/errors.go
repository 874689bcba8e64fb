package domain

import "errors"

var (
	// Ошибка неизвестной производственной линии.
	ErrUnknownProductLine = errors.New("unknown product line")
	// Ошибка отсутствующей ссылки на контрагента.
	ErrPartyRequired = errors.New("party_id is required")
	// Ошибка отсутствующей даты приёмки.
	ErrReceivedDateRequired = errors.New("received_date is required")
	// Ошибка отсутствующей даты поставки.
	ErrDeliveryDateRequired = errors.New("delivery_date is required")
	// Ошибка пустого списка позиций там, где линия его не допускает.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка позиции без ссылки на модель.
	ErrItemModelRequired = errors.New("item model_id is required")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVoucherConflict сигнализирует о коллизии номеров ваучеров.
	// При корректной сериализации выдачи номеров не возникает никогда.
	ErrVoucherConflict = errors.New("voucher number conflict")
	// ErrReferenceNotFound возвращается при отсутствии записи справочника.
	ErrReferenceNotFound = errors.New("reference entry not found")
	// ErrReferenceNameRequired — запись справочника не может быть безымянной.
	ErrReferenceNameRequired = errors.New("reference name is required")
	// ErrReferenceNameTaken — имя в справочнике должно быть уникальным.
	ErrReferenceNameTaken = errors.New("reference name already exists")
	// ErrReferenceInUse — запись справочника нельзя удалить, пока на неё ссылаются заказы.
	ErrReferenceInUse = errors.New("reference entry is in use")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrIdempotencyKeyRequired — пустой idempotency-key недопустим.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — хеш запроса обязателен при создании записи.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound возвращается, если запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — запрос с этим ключом уже обрабатывается.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")
)

// IsNotFound проверяет, является ли ошибка отсутствием заказа или записи справочника.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrReferenceNotFound)
}

// IsValidation проверяет, относится ли ошибка к нарушению инвариантов входных данных.
// Такие ошибки обнаруживаются до первой записи и не имеют побочных эффектов.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrUnknownProductLine,
		ErrPartyRequired,
		ErrReceivedDateRequired,
		ErrDeliveryDateRequired,
		ErrItemsRequired,
		ErrItemModelRequired,
		ErrItemQtyInvalid,
		ErrReferenceNameRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
