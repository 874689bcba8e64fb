package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/mos/internal/service/orders"
	"github.com/vladislavdragonenkov/mos/internal/storage/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	timeline := memory.NewTimelineRepository()
	svc := orders.NewService(memory.NewOrderRepository(), orders.Options{
		Timeline: timeline,
		Outbox:   memory.NewOutboxRepository(),
		IdemRepo: memory.NewIdempotencyRepository(),
	})

	h := NewHandler(svc, Options{
		Refs:     memory.NewReferenceRepository(),
		Timeline: timeline,
	})
	return h.Router()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orderResponse {
	t.Helper()

	var resp orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode order response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func coverRequestBody() orderRequest {
	return orderRequest{
		PartyID:      1,
		ReceivedDate: "2024-04-01",
		DeliveryDate: "2024-04-10",
		Items: []orderItemDTO{
			{ModelID: 1, Colours: "Red", Qty: 30, Units: "pcs"},
		},
	}
}

func bladeRequestBody() orderRequest {
	return orderRequest{
		PartyID:      2,
		ReceivedDate: "2024-04-02",
		DeliveryDate: "2024-04-12",
		Items: []orderItemDTO{
			{ModelID: 1, Qty: 20, Units: "pcs", Box: "B1"},
			{ModelID: 0, Qty: 5},
		},
	}
}

func TestHandler_CreateAndGetOrder(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/orders/cover", coverRequestBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	created := decodeOrder(t, rec)
	if created.ID != 1 || created.Line != "cover" {
		t.Fatalf("unexpected created order: %+v", created)
	}
	if created.ReceivedDate != "2024-04-01" {
		t.Fatalf("unexpected received_date: %s", created.ReceivedDate)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/orders/cover/1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeOrder(t, rec)
	if len(got.Items) != 1 || got.Items[0].Qty != 30 {
		t.Fatalf("unexpected items: %+v", got.Items)
	}
}

func TestHandler_CreateOrderValidation(t *testing.T) {
	router := newTestRouter(t)

	body := coverRequestBody()
	body.PartyID = 0
	rec := doJSON(t, router, http.MethodPost, "/v1/orders/cover", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	body = coverRequestBody()
	body.DeliveryDate = "10.04.2024"
	rec = doJSON(t, router, http.MethodPost, "/v1/orders/cover", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/orders/knives", coverRequestBody(), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown line, got %d", rec.Code)
	}
}

func TestHandler_BladeVoucherFlow(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/orders/blade", bladeRequestBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeOrder(t, rec)
	if created.VoucherNo != 1 {
		t.Fatalf("expected voucher 1, got %d", created.VoucherNo)
	}
	if len(created.Items) != 1 {
		t.Fatalf("invalid blade items must be filtered, got %d", len(created.Items))
	}
	if created.TotalQty != 20 || created.TotalUnits != 1 {
		t.Fatalf("unexpected totals: %+v", created)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/orders/blade/by-voucher/1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeOrder(t, rec); got.ID != created.ID {
		t.Fatalf("voucher lookup mismatch: got %d want %d", got.ID, created.ID)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/orders/cover/by-voucher/1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cover has no vouchers, expected 404, got %d", rec.Code)
	}
}

func TestHandler_ReplaceAndDeleteOrder(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/orders/cover", coverRequestBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	created := decodeOrder(t, rec)

	replacement := coverRequestBody()
	replacement.PartyID = 7
	replacement.Items = []orderItemDTO{{ModelID: 9, Qty: 5, Units: "pcs"}}
	rec = doJSON(t, router, http.MethodPut, fmt.Sprintf("/v1/orders/cover/%d", created.ID), replacement, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	replaced := decodeOrder(t, rec)
	if replaced.PartyID != 7 || len(replaced.Items) != 1 || replaced.Items[0].ModelID != 9 {
		t.Fatalf("replace did not apply: %+v", replaced)
	}

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/v1/orders/cover/%d", created.ID), nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/v1/orders/cover/%d", created.ID), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/v1/orders/cover/999", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing order, got %d", rec.Code)
	}
}

func TestHandler_IdempotentCreate(t *testing.T) {
	router := newTestRouter(t)
	headers := map[string]string{idempotencyKeyHeader: "req-1"}

	rec := doJSON(t, router, http.MethodPost, "/v1/orders/blade", bladeRequestBody(), headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	first := decodeOrder(t, rec)

	rec = doJSON(t, router, http.MethodPost, "/v1/orders/blade", bladeRequestBody(), headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d: %s", rec.Code, rec.Body.String())
	}
	second := decodeOrder(t, rec)
	if second.ID != first.ID || second.VoucherNo != first.VoucherNo {
		t.Fatalf("replay must return the same order: %+v vs %+v", first, second)
	}

	changed := bladeRequestBody()
	changed.PartyID = 99
	rec = doJSON(t, router, http.MethodPost, "/v1/orders/blade", changed, headers)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on hash mismatch, got %d", rec.Code)
	}
}

func TestHandler_Timeline(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/orders/cover", coverRequestBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/timeline/cover/1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var events []timelineEventDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(events) != 1 || events[0].Type != "order.created" {
		t.Fatalf("unexpected timeline: %+v", events)
	}
}

func TestHandler_References(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/refs/cover/party", referenceRequest{Name: "Acme"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var entry referenceEntryDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.ID == 0 || entry.Name != "Acme" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/refs/cover/party", referenceRequest{Name: "Acme"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate name must be 409, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/refs/cover/party", referenceRequest{Name: "  "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name must be 400, got %d", rec.Code)
	}

	// Упаковочные справочники есть только у линии blade.
	rec = doJSON(t, router, http.MethodPost, "/v1/refs/cover/box", referenceRequest{Name: "B1"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cover box must be 404, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, fmt.Sprintf("/v1/refs/cover/party/%d", entry.ID), referenceRequest{Name: "Acme Ltd"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/refs/cover/party", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []referenceEntryDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Acme Ltd" {
		t.Fatalf("unexpected list: %+v", entries)
	}

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/v1/refs/cover/party/%d", entry.ID), nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/v1/refs/cover/party/%d", entry.ID), nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for removed entry, got %d", rec.Code)
	}
}

func TestHandler_InvalidPathValues(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/orders/cover/zero", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/orders/cover/-5", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative id, got %d", rec.Code)
	}
}
