package domain

// ReferenceKind определяет справочник простых именованных записей.
// Заказы ссылаются на записи справочников по идентификатору; ядро персистентности
// сами справочники не трактует, только читает их имена для отображения.
type ReferenceKind string

const (
	ReferenceParty ReferenceKind = "party"
	ReferenceModel ReferenceKind = "model"
	// Упаковочные справочники существуют только у линии blade.
	ReferenceBox   ReferenceKind = "box"
	ReferenceStc   ReferenceKind = "stc"
	ReferenceTrims ReferenceKind = "trims"
)

// ValidFor проверяет, что справочник определён для данной линии.
func (k ReferenceKind) ValidFor(line ProductLine) bool {
	switch k {
	case ReferenceParty, ReferenceModel:
		return line.Valid()
	case ReferenceBox, ReferenceStc, ReferenceTrims:
		return line == LineBlade
	default:
		return false
	}
}

// ReferenceEntry — одна запись справочника с уникальным отображаемым именем.
type ReferenceEntry struct {
	ID   int64
	Name string
}

// ReferenceRepository описывает хранилище справочников.
type ReferenceRepository interface {
	List(line ProductLine, kind ReferenceKind) ([]ReferenceEntry, error)
	Add(line ProductLine, kind ReferenceKind, name string) (ReferenceEntry, error)
	Rename(line ProductLine, kind ReferenceKind, id int64, name string) error
	Remove(line ProductLine, kind ReferenceKind, id int64) error
}
