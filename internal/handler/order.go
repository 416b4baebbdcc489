package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/digital-menu/ordering-service/internal/order"
)

type CreateOrderItemRequest struct {
	ProductID           uuid.UUID `json:"product_id" validate:"required"`
	Quantity            int       `json:"quantity" validate:"required,gt=0"`
	SpecialInstructions string    `json:"special_instructions"`
}

type CreateOrderRequest struct {
	UserID          *uuid.UUID               `json:"user_id"`
	CustomerName    string                   `json:"customer_name" validate:"max=100"`
	CustomerEmail   string                   `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone   string                   `json:"customer_phone" validate:"max=20"`
	TableNumber     *int                     `json:"table_number" validate:"omitempty,gt=0"`
	SpecialRequests string                   `json:"special_requests"`
	Items           []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type OrderItemResponse struct {
	ID                     uuid.UUID       `json:"id"`
	ProductID              uuid.UUID       `json:"product_id"`
	ProductName            string          `json:"product_name,omitempty"`
	Quantity               int             `json:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	Subtotal               decimal.Decimal `json:"subtotal"`
	SpecialInstructions    string          `json:"special_instructions"`
	IsPrepared             bool            `json:"is_prepared"`
	PreparationCompletedAt *time.Time      `json:"preparation_completed_at"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          *uuid.UUID          `json:"user_id"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	CustomerPhone   string              `json:"customer_phone"`
	Status          string              `json:"status"`
	Items           []OrderItemResponse `json:"items"`
	TotalPrice      decimal.Decimal     `json:"total_price"`
	TableNumber     *int                `json:"table_number"`
	SpecialRequests string              `json:"special_requests"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ConfirmedAt     *time.Time          `json:"confirmed_at"`
	PreparingAt     *time.Time          `json:"preparing_at"`
	ReadyAt         *time.Time          `json:"ready_at"`
	DeliveredAt     *time.Time          `json:"delivered_at"`
	CancelledAt     *time.Time          `json:"cancelled_at"`
	PaymentID       string              `json:"payment_id,omitempty"`
	PaymentStatus   string              `json:"payment_status,omitempty"`
	PreparationTime *int                `json:"preparation_time"`
	DeliveryTime    *int                `json:"delivery_time"`
	TotalTime       *int                `json:"total_time"`
}

type KitchenItemResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Quantity     int       `json:"quantity"`
	Instructions string    `json:"instructions"`
	IsPrepared   bool      `json:"is_prepared"`
}

type KitchenOrderResponse struct {
	ID              uuid.UUID             `json:"id"`
	Status          string                `json:"status"`
	TableNumber     *int                  `json:"table_number"`
	CustomerName    string                `json:"customer_name"`
	Items           []KitchenItemResponse `json:"items"`
	SpecialRequests string                `json:"special_requests"`
	CreatedAt       time.Time             `json:"created_at"`
	ConfirmedAt     *time.Time            `json:"confirmed_at"`
	TimeElapsed     int                   `json:"time_elapsed"`
}

// OrderHandler handles HTTP requests for orders and order items.
type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders/active", h.handleActiveOrders)
	router.Get("/orders/kitchen", h.handleKitchenOrders)
	router.Get("/orders/stats", h.handleOrderStats)
	router.Get("/orders/history", h.handleOrderHistory)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Delete("/orders/{id}", h.handleDeleteOrder)
	router.Patch("/orders/{id}/status", h.handleUpdateStatus)
	router.Post("/orders/{id}/items", h.handleAddItem)
	router.Patch("/order-items/{id}", h.handleUpdateItem)
	router.Delete("/order-items/{id}", h.handleRemoveItem)
	router.Post("/order-items/{id}/prepare", h.handleMarkItemPrepared)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	input := order.CreateOrderInput{
		UserID:          req.UserID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		TableNumber:     req.TableNumber,
		SpecialRequests: req.SpecialRequests,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, order.CreateItemInput{
			ProductID:           item.ProductID,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
		})
	}

	o, err := h.svc.CreateOrder(r.Context(), input)
	if err != nil {
		log.Warn().Err(err).Msg("handler: failed to create order")
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	o, err := h.svc.GetOrderByID(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	o, changed, err := h.svc.UpdateStatus(r.Context(), id, order.Status(strings.ToUpper(req.Status)))
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	resp := toOrderResponse(o)
	if !changed {
		respondWithJSON(w, http.StatusOK, map[string]any{"detail": "status unchanged", "order": resp})
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req CreateOrderItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	item, err := h.svc.AddItem(r.Context(), id, order.CreateItemInput{
		ProductID:           req.ProductID,
		Quantity:            req.Quantity,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *OrderHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationErrors(w, err)
		return
	}

	item, err := h.svc.UpdateItemQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *OrderHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveItem(r.Context(), id); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to remove order item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) handleMarkItemPrepared(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	item, changed, err := h.svc.MarkItemPrepared(r.Context(), id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	resp := toItemResponse(item)
	if !changed {
		respondWithJSON(w, http.StatusOK, map[string]any{"detail": "item already prepared", "item": resp})
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ActiveOrders(r.Context())
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to list active orders")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleKitchenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.KitchenOrders(r.Context())
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to list kitchen orders")
		return
	}

	now := time.Now().UTC()
	result := make([]KitchenOrderResponse, 0, len(orders))
	for i := range orders {
		result = append(result, toKitchenResponse(&orders[i], now))
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *OrderHandler) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.OrderStats(r.Context())
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to collect order stats")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

func (h *OrderHandler) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.FromString(r.URL.Query().Get("user_id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	orders, err := h.svc.OrderHistory(r.Context(), userID, page, pageSize)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to list order history")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"page":      page,
		"page_size": pageSize,
		"results":   toOrderResponses(orders),
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for i := range o.Items {
		items = append(items, toItemResponse(&o.Items[i]))
	}

	return OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		Status:          o.Status.String(),
		Items:           items,
		TotalPrice:      o.TotalPrice,
		TableNumber:     o.TableNumber,
		SpecialRequests: o.SpecialRequests,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		ConfirmedAt:     o.ConfirmedAt,
		PreparingAt:     o.PreparingAt,
		ReadyAt:         o.ReadyAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		PaymentID:       o.PaymentID,
		PaymentStatus:   o.PaymentStatus,
		PreparationTime: minutesOrNil(o.PreparationMinutes),
		DeliveryTime:    minutesOrNil(o.DeliveryMinutes),
		TotalTime:       minutesOrNil(o.TotalMinutes),
	}
}

func toOrderResponses(orders []order.Order) []OrderResponse {
	result := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		result = append(result, toOrderResponse(&orders[i]))
	}
	return result
}

func toItemResponse(item *order.OrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:                     item.ID,
		ProductID:              item.ProductID,
		ProductName:            item.ProductName,
		Quantity:               item.Quantity,
		UnitPrice:              item.UnitPrice,
		Subtotal:               item.Subtotal(),
		SpecialInstructions:    item.SpecialInstructions,
		IsPrepared:             item.IsPrepared,
		PreparationCompletedAt: item.PreparationCompletedAt,
	}
}

func toKitchenResponse(o *order.Order, now time.Time) KitchenOrderResponse {
	items := make([]KitchenItemResponse, 0, len(o.Items))
	for i := range o.Items {
		item := &o.Items[i]
		items = append(items, KitchenItemResponse{
			ID:           item.ID,
			Name:         item.ProductName,
			Quantity:     item.Quantity,
			Instructions: item.SpecialInstructions,
			IsPrepared:   item.IsPrepared,
		})
	}

	elapsed := 0
	if o.ConfirmedAt != nil {
		elapsed = int(now.Sub(*o.ConfirmedAt).Minutes())
	}

	return KitchenOrderResponse{
		ID:              o.ID,
		Status:          o.Status.String(),
		TableNumber:     o.TableNumber,
		CustomerName:    o.CustomerName,
		Items:           items,
		SpecialRequests: o.SpecialRequests,
		CreatedAt:       o.CreatedAt,
		ConfirmedAt:     o.ConfirmedAt,
		TimeElapsed:     elapsed,
	}
}

func minutesOrNil(f func() (int, bool)) *int {
	if minutes, ok := f(); ok {
		return &minutes
	}
	return nil
}
