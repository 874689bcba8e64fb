package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

func date(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return parsed
}

func coverOrder(t *testing.T) domain.Order {
	t.Helper()

	return domain.Order{
		Line:         domain.LineCover,
		PartyID:      3,
		ReceivedDate: date(t, "2024-01-10"),
		DeliveryDate: date(t, "2024-01-15"),
		Items: []domain.OrderItem{
			{ModelID: 1, Colours: "Red", Qty: 50, Units: "pcs"},
		},
	}
}

func bladeOrder(t *testing.T) domain.Order {
	t.Helper()

	return domain.Order{
		Line:         domain.LineBlade,
		PartyID:      1,
		ReceivedDate: date(t, "2024-02-01"),
		DeliveryDate: date(t, "2024-02-10"),
		TotalQty:     10,
		TotalUnits:   2,
		Items: []domain.OrderItem{
			{ModelID: 1, Qty: 10, Units: "pcs", Box: "B1"},
		},
	}
}

func TestOrderRepository_MemoryCreateAssignsIDs(t *testing.T) {
	repo := NewOrderRepository()

	first, err := repo.Create(coverOrder(t))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := repo.Create(coverOrder(t))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected sequential ids, got %d and %d", first.ID, second.ID)
	}
	if first.VoucherNo != 0 {
		t.Fatalf("cover orders must not get vouchers, got %d", first.VoucherNo)
	}
	if first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatal("timestamps must be assigned on create")
	}
}

func TestOrderRepository_MemoryBladeVouchers(t *testing.T) {
	repo := NewOrderRepository()

	first, err := repo.Create(bladeOrder(t))
	if err != nil {
		t.Fatalf("create first blade: %v", err)
	}
	second, err := repo.Create(bladeOrder(t))
	if err != nil {
		t.Fatalf("create second blade: %v", err)
	}
	if first.VoucherNo != 1 || second.VoucherNo != 2 {
		t.Fatalf("expected vouchers 1 and 2, got %d and %d", first.VoucherNo, second.VoucherNo)
	}

	// Счётчики линий независимы: cover не двигает нумерацию blade.
	if _, err := repo.Create(coverOrder(t)); err != nil {
		t.Fatalf("create cover: %v", err)
	}
	third, err := repo.Create(bladeOrder(t))
	if err != nil {
		t.Fatalf("create third blade: %v", err)
	}
	if third.VoucherNo != 3 {
		t.Fatalf("expected voucher 3, got %d", third.VoucherNo)
	}

	got, err := repo.GetByVoucher(domain.LineBlade, 2)
	if err != nil {
		t.Fatalf("get by voucher: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("voucher lookup returned wrong order: %d", got.ID)
	}

	if _, err := repo.GetByVoucher(domain.LineCover, 1); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for cover voucher lookup, got %v", err)
	}
	if _, err := repo.GetByVoucher(domain.LineBlade, 99); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for missing voucher, got %v", err)
	}
}

func TestOrderRepository_MemoryConcurrentBladeVouchers(t *testing.T) {
	repo := NewOrderRepository()
	base := bladeOrder(t)

	const writers = 50
	vouchers := make(chan int64, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := repo.Create(base)
			if err != nil {
				t.Errorf("concurrent create: %v", err)
				return
			}
			vouchers <- created.VoucherNo
		}()
	}
	wg.Wait()
	close(vouchers)

	// Номера попарно различны и без дыр: ровно множество 1..writers.
	seen := make(map[int64]bool, writers)
	for v := range vouchers {
		if seen[v] {
			t.Fatalf("voucher %d was issued twice", v)
		}
		seen[v] = true
	}
	if len(seen) != writers {
		t.Fatalf("expected %d vouchers, got %d", writers, len(seen))
	}
	for v := int64(1); v <= writers; v++ {
		if !seen[v] {
			t.Fatalf("voucher sequence has a gap at %d", v)
		}
	}
}

func TestOrderRepository_MemoryLinesAreIsolated(t *testing.T) {
	repo := NewOrderRepository()

	cover, err := repo.Create(coverOrder(t))
	if err != nil {
		t.Fatalf("create cover: %v", err)
	}
	blade, err := repo.Create(bladeOrder(t))
	if err != nil {
		t.Fatalf("create blade: %v", err)
	}

	// Оба получили ID=1 в своих линиях и не видят друг друга.
	if cover.ID != 1 || blade.ID != 1 {
		t.Fatalf("expected per-line ids starting at 1, got %d and %d", cover.ID, blade.ID)
	}

	got, err := repo.Get(domain.LineCover, 1)
	if err != nil {
		t.Fatalf("get cover: %v", err)
	}
	if got.Line != domain.LineCover {
		t.Fatalf("expected cover order, got %s", got.Line)
	}

	if err := repo.Delete(domain.LineCover, 1); err != nil {
		t.Fatalf("delete cover: %v", err)
	}
	if _, err := repo.Get(domain.LineBlade, 1); err != nil {
		t.Fatalf("blade order must survive cover delete: %v", err)
	}
}

func TestOrderRepository_MemoryReplace(t *testing.T) {
	repo := NewOrderRepository()

	created, err := repo.Create(bladeOrder(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	replacement := created
	replacement.PartyID = 9
	replacement.TotalQty = 77
	replacement.VoucherNo = 555 // попытка подменить номер должна игнорироваться
	replacement.Items = []domain.OrderItem{
		{ModelID: 2, Qty: 5, Units: "sets"},
		{ModelID: 3, Qty: 7, Units: "pcs"},
	}

	if err := repo.Replace(replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := repo.Get(domain.LineBlade, created.ID)
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if got.PartyID != 9 || got.TotalQty != 77 {
		t.Fatalf("master fields were not updated: %+v", got)
	}
	if got.VoucherNo != created.VoucherNo {
		t.Fatalf("voucher number must be immutable: got %d want %d", got.VoucherNo, created.VoucherNo)
	}
	if len(got.Items) != 2 || got.Items[0].ModelID != 2 || got.Items[1].ModelID != 3 {
		t.Fatalf("items were not replaced: %+v", got.Items)
	}

	missing := replacement
	missing.ID = 999
	if err := repo.Replace(missing); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_MemoryDeleteAndErrors(t *testing.T) {
	repo := NewOrderRepository()

	created, err := repo.Create(coverOrder(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Delete(domain.LineCover, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(domain.LineCover, created.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on double delete, got %v", err)
	}
	if _, err := repo.Get(domain.LineCover, created.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound after delete, got %v", err)
	}

	if _, err := repo.Create(domain.Order{Line: "saw"}); !errors.Is(err, domain.ErrUnknownProductLine) {
		t.Fatalf("expected ErrUnknownProductLine, got %v", err)
	}
}

func TestOrderRepository_MemoryReturnsCopies(t *testing.T) {
	repo := NewOrderRepository()

	source := coverOrder(t)
	created, err := repo.Create(source)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Мутация исходного среза и результата не должна протекать в хранилище.
	source.Items[0].Qty = 999
	created.Items[0].Colours = "Blue"

	got, err := repo.Get(domain.LineCover, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Items[0].Qty != 50 || got.Items[0].Colours != "Red" {
		t.Fatalf("stored order was mutated from outside: %+v", got.Items[0])
	}
}
