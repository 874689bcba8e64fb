package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mos/internal/domain"
	"github.com/vladislavdragonenkov/mos/internal/service/orders"
)

const (
	dateLayout           = "2006-01-02"
	idempotencyKeyHeader = "Idempotency-Key"
	maxRequestBodyBytes  = 1 << 20
)

// Handler отдаёт операции ядра заказов и справочников по HTTP/JSON.
type Handler struct {
	orders   *orders.Service
	refs     domain.ReferenceRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// Options задаёт необязательные зависимости обработчика.
type Options struct {
	Refs     domain.ReferenceRepository
	Timeline domain.TimelineRepository
	Logger   *log.Entry
}

// NewHandler конструирует HTTP-обработчик поверх сервиса заказов.
func NewHandler(svc *orders.Service, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		orders:   svc,
		refs:     opts.Refs,
		timeline: opts.Timeline,
		logger:   logger,
	}
}

// Router собирает маршруты API.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/orders/{line}", h.createOrder)
	mux.HandleFunc("GET /v1/orders/{line}/{id}", h.getOrder)
	mux.HandleFunc("PUT /v1/orders/{line}/{id}", h.replaceOrder)
	mux.HandleFunc("DELETE /v1/orders/{line}/{id}", h.deleteOrder)
	mux.HandleFunc("GET /v1/orders/{line}/by-voucher/{voucher}", h.getOrderByVoucher)
	mux.HandleFunc("GET /v1/timeline/{line}/{id}", h.listTimeline)

	mux.HandleFunc("GET /v1/refs/{line}/{kind}", h.listReference)
	mux.HandleFunc("POST /v1/refs/{line}/{kind}", h.addReference)
	mux.HandleFunc("PUT /v1/refs/{line}/{kind}/{id}", h.renameReference)
	mux.HandleFunc("DELETE /v1/refs/{line}/{kind}/{id}", h.removeReference)

	return mux
}

type orderItemDTO struct {
	ModelID   int64  `json:"model_id"`
	PlDx      string `json:"pl_dx,omitempty"`
	LqPc      string `json:"lq_pc,omitempty"`
	Colours   string `json:"colours,omitempty"`
	Qty       int64  `json:"qty"`
	Units     string `json:"units,omitempty"`
	Box       string `json:"box,omitempty"`
	Stc       string `json:"stc,omitempty"`
	Trims     string `json:"trims,omitempty"`
	ModelName string `json:"model_name,omitempty"`
}

type orderRequest struct {
	PartyID      int64          `json:"party_id"`
	ReceivedDate string         `json:"received_date"`
	DeliveryDate string         `json:"delivery_date"`
	Items        []orderItemDTO `json:"items"`
}

type orderResponse struct {
	ID           int64          `json:"id"`
	Line         string         `json:"line"`
	VoucherNo    int64          `json:"voucher_no,omitempty"`
	PartyID      int64          `json:"party_id"`
	PartyName    string         `json:"party_name,omitempty"`
	ReceivedDate string         `json:"received_date"`
	DeliveryDate string         `json:"delivery_date"`
	TotalQty     int64          `json:"total_qty,omitempty"`
	TotalUnits   int64          `json:"total_units,omitempty"`
	Items        []orderItemDTO `json:"items"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type referenceEntryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type referenceRequest struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	line, ok := h.pathLine(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	order, err := req.toDomain(line)
	if err != nil {
		h.writeError(w, err)
		return
	}

	created, err := h.orders.CreateOrderIdempotent(r.Header.Get(idempotencyKeyHeader), order)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	line, ok := h.pathLine(w, r)
	if !ok {
		return
	}
	id, ok := h.pathInt64(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(line, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) replaceOrder(w http.ResponseWriter, r *http.Request) {
	line, ok := h.pathLine(w, r)
	if !ok {
		return
	}
	id, ok := h.pathInt64(w, r, "id")
	if !ok {
		return
	}

	var req orderRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	order, err := req.toDomain(line)
	if err != nil {
		h.writeError(w, err)
		return
	}
	order.ID = id

	if err := h.orders.ReplaceOrder(order); err != nil {
		h.writeError(w, err)
		return
	}

	stored, err := h.orders.GetOrder(line, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(stored))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	line, ok := h.pathLine(w, r)
	if !ok {
		return
	}
	id, ok := h.pathInt64(w, r, "id")
	if !ok {
		return
	}

	if err := h.orders.DeleteOrder(line, id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getOrderByVoucher(w http.ResponseWriter, r *http.Request) {
	line, ok := h.pathLine(w, r)
	if !ok {
		return
	}
	voucherNo, ok := h.pathInt64(w, r, "voucher")
	if !ok {
		return
	}

	order, err := h.orders.GetOrderByVoucher(line, voucherNo)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) listTimeline(w http.ResponseWriter, r *http.Request) {
	if h.timeline == nil {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "timeline is not enabled"})
		return
	}

	line, ok := h.pathLine(w, r)
	if !ok {
		return
	}
	id, ok := h.pathInt64(w, r, "id")
	if !ok {
		return
	}

	events, err := h.timeline.List(line, id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]timelineEventDTO, 0, len(events))
	for _, event := range events {
		dtos = append(dtos, timelineEventDTO{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}

	h.writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) listReference(w http.ResponseWriter, r *http.Request) {
	line, kind, ok := h.pathReference(w, r)
	if !ok {
		return
	}

	entries, err := h.refs.List(line, kind)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]referenceEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, referenceEntryDTO{ID: entry.ID, Name: entry.Name})
	}

	h.writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) addReference(w http.ResponseWriter, r *http.Request) {
	line, kind, ok := h.pathReference(w, r)
	if !ok {
		return
	}

	var req referenceRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	entry, err := h.refs.Add(line, kind, req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, referenceEntryDTO{ID: entry.ID, Name: entry.Name})
}

func (h *Handler) renameReference(w http.ResponseWriter, r *http.Request) {
	line, kind, ok := h.pathReference(w, r)
	if !ok {
		return
	}
	id, ok := h.pathInt64(w, r, "id")
	if !ok {
		return
	}

	var req referenceRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	if err := h.refs.Rename(line, kind, id, req.Name); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, referenceEntryDTO{ID: id, Name: req.Name})
}

func (h *Handler) removeReference(w http.ResponseWriter, r *http.Request) {
	line, kind, ok := h.pathReference(w, r)
	if !ok {
		return
	}
	id, ok := h.pathInt64(w, r, "id")
	if !ok {
		return
	}

	if err := h.refs.Remove(line, kind, id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (req orderRequest) toDomain(line domain.ProductLine) (domain.Order, error) {
	received, err := parseDate(req.ReceivedDate)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrReceivedDateRequired, err)
	}
	delivery, err := parseDate(req.DeliveryDate)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrDeliveryDateRequired, err)
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			ModelID: item.ModelID,
			PlDx:    item.PlDx,
			LqPc:    item.LqPc,
			Colours: item.Colours,
			Qty:     item.Qty,
			Units:   item.Units,
			Box:     item.Box,
			Stc:     item.Stc,
			Trims:   item.Trims,
		})
	}

	return domain.Order{
		Line:         line,
		PartyID:      req.PartyID,
		ReceivedDate: received,
		DeliveryDate: delivery,
		Items:        items,
	}, nil
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDTO{
			ModelID:   item.ModelID,
			PlDx:      item.PlDx,
			LqPc:      item.LqPc,
			Colours:   item.Colours,
			Qty:       item.Qty,
			Units:     item.Units,
			Box:       item.Box,
			Stc:       item.Stc,
			Trims:     item.Trims,
			ModelName: item.ModelName,
		})
	}

	return orderResponse{
		ID:           order.ID,
		Line:         string(order.Line),
		VoucherNo:    order.VoucherNo,
		PartyID:      order.PartyID,
		PartyName:    order.PartyName,
		ReceivedDate: order.ReceivedDate.Format(dateLayout),
		DeliveryDate: order.DeliveryDate.Format(dateLayout),
		TotalQty:     order.TotalQty,
		TotalUnits:   order.TotalUnits,
		Items:        items,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("date is required")
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected %s format", dateLayout)
	}
	return parsed, nil
}

func (h *Handler) pathLine(w http.ResponseWriter, r *http.Request) (domain.ProductLine, bool) {
	line := domain.ProductLine(r.PathValue("line"))
	if !line.Valid() {
		h.writeError(w, domain.ErrUnknownProductLine)
		return "", false
	}
	return line, true
}

func (h *Handler) pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	value, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || value <= 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return value, true
}

func (h *Handler) pathReference(w http.ResponseWriter, r *http.Request) (domain.ProductLine, domain.ReferenceKind, bool) {
	if h.refs == nil {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "references are not enabled"})
		return "", "", false
	}

	line, ok := h.pathLine(w, r)
	if !ok {
		return "", "", false
	}

	kind := domain.ReferenceKind(r.PathValue("kind"))
	if !kind.ValidFor(line) {
		h.writeError(w, domain.ErrReferenceNotFound)
		return "", "", false
	}

	return line, kind, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrVoucherConflict),
		errors.Is(err, domain.ErrReferenceNameTaken),
		errors.Is(err, domain.ErrReferenceInUse),
		errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.WithError(err).Error("request failed")
		message = "internal error"
	}

	h.writeJSON(w, status, errorResponse{Error: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}
