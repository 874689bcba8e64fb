package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

func validMaster(line domain.ProductLine) domain.Order {
	return domain.Order{
		Line:         line,
		PartyID:      3,
		ReceivedDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		DeliveryDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateMaster_Valid(t *testing.T) {
	order := validMaster(domain.LineCover)
	if errs := order.ValidateMaster(); len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestValidateMaster_CollectsAllViolations(t *testing.T) {
	order := domain.Order{Line: domain.ProductLine("bolt")}
	errs := order.ValidateMaster()
	if len(errs) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(errs), errs)
	}

	want := []error{
		domain.ErrUnknownProductLine,
		domain.ErrPartyRequired,
		domain.ErrReceivedDateRequired,
		domain.ErrDeliveryDateRequired,
	}
	for _, target := range want {
		found := false
		for _, err := range errs {
			if errors.Is(err, target) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected violation %v in %v", target, errs)
		}
	}
}

func TestPrepareItems_CoverRejectsEmptyList(t *testing.T) {
	if _, err := domain.PrepareItems(domain.LineCover, nil); !errors.Is(err, domain.ErrItemsRequired) {
		t.Fatalf("expected ErrItemsRequired, got %v", err)
	}
}

func TestPrepareItems_CoverRejectsInvalidItem(t *testing.T) {
	_, err := domain.PrepareItems(domain.LineCover, []domain.OrderItem{
		{ModelID: 1, Qty: 10},
		{ModelID: 0, Qty: 5},
	})
	if !errors.Is(err, domain.ErrItemModelRequired) {
		t.Fatalf("expected ErrItemModelRequired, got %v", err)
	}

	_, err = domain.PrepareItems(domain.LineCover, []domain.OrderItem{
		{ModelID: 1, Qty: 0},
	})
	if !errors.Is(err, domain.ErrItemQtyInvalid) {
		t.Fatalf("expected ErrItemQtyInvalid, got %v", err)
	}
}

func TestPrepareItems_CoverKeepsOrder(t *testing.T) {
	items := []domain.OrderItem{
		{ModelID: 1, Qty: 50, Colours: "Red"},
		{ModelID: 2, Qty: 25, Colours: "Blue"},
	}

	accepted, err := domain.PrepareItems(domain.LineCover, items)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 items, got %d", len(accepted))
	}
	if accepted[0].Colours != "Red" || accepted[1].Colours != "Blue" {
		t.Fatalf("item order not preserved: %+v", accepted)
	}
}

func TestPrepareItems_BladeFiltersInvalidItems(t *testing.T) {
	items := []domain.OrderItem{
		{ModelID: 1, Qty: 10},
		{ModelID: 0, Qty: 5},
		{ModelID: 2, Qty: 0},
		{ModelID: 3, Qty: 7},
	}

	accepted, err := domain.PrepareItems(domain.LineBlade, items)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted items, got %d", len(accepted))
	}
	if accepted[0].ModelID != 1 || accepted[1].ModelID != 3 {
		t.Fatalf("unexpected accepted items: %+v", accepted)
	}
}

func TestPrepareItems_BladeAcceptsEmptyResult(t *testing.T) {
	accepted, err := domain.PrepareItems(domain.LineBlade, []domain.OrderItem{
		{ModelID: 0, Qty: 0},
	})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if len(accepted) != 0 {
		t.Fatalf("expected empty accepted list, got %+v", accepted)
	}
}

func TestPrepareItems_UnknownLine(t *testing.T) {
	if _, err := domain.PrepareItems("bolt", nil); !errors.Is(err, domain.ErrUnknownProductLine) {
		t.Fatalf("expected ErrUnknownProductLine, got %v", err)
	}
}

func TestProductLine_Flags(t *testing.T) {
	if domain.LineCover.UsesVoucher() {
		t.Fatal("cover line must not use vouchers")
	}
	if !domain.LineBlade.UsesVoucher() {
		t.Fatal("blade line must use vouchers")
	}
	if domain.LineCover.FiltersItems() {
		t.Fatal("cover line must not filter items")
	}
	if !domain.LineBlade.FiltersItems() {
		t.Fatal("blade line must filter items")
	}
	if domain.ProductLine("bolt").Valid() {
		t.Fatal("unexpected valid unknown line")
	}
}
