package domain

import "time"

// ProductLine определяет производственную линию заказа.
type ProductLine string

const (
	// LineCover — линия крышек: без нумерации ваучеров, строгая валидация позиций.
	LineCover ProductLine = "cover"
	// LineBlade — линия лопастей: ваучерная нумерация, невалидные позиции отфильтровываются.
	LineBlade ProductLine = "blade"
)

// Valid проверяет, что линия относится к поддерживаемым значениям.
func (l ProductLine) Valid() bool {
	switch l {
	case LineCover, LineBlade:
		return true
	default:
		return false
	}
}

// UsesVoucher сообщает, присваивается ли заказам линии номер ваучера.
func (l ProductLine) UsesVoucher() bool {
	return l == LineBlade
}

// FiltersItems сообщает, отбрасывает ли линия невалидные позиции молча
// (вместо ошибки валидации).
func (l ProductLine) FiltersItems() bool {
	return l == LineBlade
}

// OrderItem представляет одну позицию заказа.
// Позиции не имеют собственной идентичности: они живут и умирают вместе
// с мастер-записью, порядок вставки сохраняется для отчётов.
type OrderItem struct {
	// ModelID — ссылка на справочник моделей линии.
	ModelID int64
	// PlDx — первый классификационный код (PL/DX).
	PlDx string
	// LqPc — второй классификационный код (LQ — жидкая покраска, PC — порошковая).
	LqPc string
	// Colours — описание цвета/варианта.
	Colours string
	// Qty — количество единиц.
	Qty int64
	// Units — единица измерения строки.
	Units string

	// Упаковочные атрибуты: заполняются только для линии blade.
	Box   string
	Stc   string
	Trims string

	// ModelName заполняется читателем заказов для отображения; при записи игнорируется.
	ModelName string
}

// Order агрегирует мастер-запись заказа и его позиции.
type Order struct {
	// ID назначается хранилищем; монотонный, никогда не переиспользуется.
	ID   int64
	Line ProductLine
	// VoucherNo — человекочитаемый номер ваучера (только blade); уникален и
	// строго возрастает в пределах линии, неизменяем после создания.
	VoucherNo    int64
	PartyID      int64
	ReceivedDate time.Time
	DeliveryDate time.Time
	// Агрегаты линии blade.
	TotalQty   int64
	TotalUnits int64
	Items      []OrderItem
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// PartyName заполняется читателем заказов для отображения; при записи игнорируется.
	PartyName string
}

// ValidateMaster проверяет инварианты мастер-записи и возвращает список замечаний.
func (o *Order) ValidateMaster() []error {
	var errs []error

	if !o.Line.Valid() {
		errs = append(errs, ErrUnknownProductLine)
	}
	if o.PartyID <= 0 {
		errs = append(errs, ErrPartyRequired)
	}
	if o.ReceivedDate.IsZero() {
		errs = append(errs, ErrReceivedDateRequired)
	}
	if o.DeliveryDate.IsZero() {
		errs = append(errs, ErrDeliveryDateRequired)
	}

	return errs
}

// PrepareItems применяет правила линии к списку позиций перед записью.
//
// Для cover: пустой список и любая позиция без модели или с неположительным
// количеством — ошибка валидации. Для blade: такие позиции молча
// отфильтровываются, пустой результат допустим (ваучер без строк).
// Возвращаемый срез — копия: вызывающий может безопасно менять исходный.
func PrepareItems(line ProductLine, items []OrderItem) ([]OrderItem, error) {
	if !line.Valid() {
		return nil, ErrUnknownProductLine
	}

	if line.FiltersItems() {
		accepted := make([]OrderItem, 0, len(items))
		for _, item := range items {
			if item.ModelID <= 0 || item.Qty <= 0 {
				continue
			}
			accepted = append(accepted, item)
		}
		return accepted, nil
	}

	if len(items) == 0 {
		return nil, ErrItemsRequired
	}
	accepted := make([]OrderItem, 0, len(items))
	for _, item := range items {
		if item.ModelID <= 0 {
			return nil, ErrItemModelRequired
		}
		if item.Qty <= 0 {
			return nil, ErrItemQtyInvalid
		}
		accepted = append(accepted, item)
	}
	return accepted, nil
}
