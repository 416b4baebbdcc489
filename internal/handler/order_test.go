package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-menu/ordering-service/internal/handler"
	"github.com/digital-menu/ordering-service/internal/order"
)

type mockOrderService struct {
	createOrderFunc        func(ctx context.Context, input order.CreateOrderInput) (*order.Order, error)
	getOrderByIDFunc       func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	updateStatusFunc       func(ctx context.Context, orderID uuid.UUID, newStatus order.Status) (*order.Order, bool, error)
	deleteOrderFunc        func(ctx context.Context, orderID uuid.UUID) error
	addItemFunc            func(ctx context.Context, orderID uuid.UUID, input order.CreateItemInput) (*order.OrderItem, error)
	updateItemQuantityFunc func(ctx context.Context, itemID uuid.UUID, quantity int) (*order.OrderItem, error)
	removeItemFunc         func(ctx context.Context, itemID uuid.UUID) error
	markItemPreparedFunc   func(ctx context.Context, itemID uuid.UUID) (*order.OrderItem, bool, error)
	activeOrdersFunc       func(ctx context.Context) ([]order.Order, error)
	kitchenOrdersFunc      func(ctx context.Context) ([]order.Order, error)
	orderHistoryFunc       func(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]order.Order, error)
	orderStatsFunc         func(ctx context.Context) (*order.Stats, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, input order.CreateOrderInput) (*order.Order, error) {
	return m.createOrderFunc(ctx, input)
}

func (m *mockOrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getOrderByIDFunc(ctx, id)
}

func (m *mockOrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus order.Status) (*order.Order, bool, error) {
	return m.updateStatusFunc(ctx, orderID, newStatus)
}

func (m *mockOrderService) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	return m.deleteOrderFunc(ctx, orderID)
}

func (m *mockOrderService) AddItem(ctx context.Context, orderID uuid.UUID, input order.CreateItemInput) (*order.OrderItem, error) {
	return m.addItemFunc(ctx, orderID, input)
}

func (m *mockOrderService) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (*order.OrderItem, error) {
	return m.updateItemQuantityFunc(ctx, itemID, quantity)
}

func (m *mockOrderService) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	return m.removeItemFunc(ctx, itemID)
}

func (m *mockOrderService) MarkItemPrepared(ctx context.Context, itemID uuid.UUID) (*order.OrderItem, bool, error) {
	return m.markItemPreparedFunc(ctx, itemID)
}

func (m *mockOrderService) ActiveOrders(ctx context.Context) ([]order.Order, error) {
	return m.activeOrdersFunc(ctx)
}

func (m *mockOrderService) KitchenOrders(ctx context.Context) ([]order.Order, error) {
	return m.kitchenOrdersFunc(ctx)
}

func (m *mockOrderService) OrderHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]order.Order, error) {
	return m.orderHistoryFunc(ctx, userID, page, pageSize)
}

func (m *mockOrderService) OrderStats(ctx context.Context) (*order.Stats, error) {
	return m.orderStatsFunc(ctx)
}

func newTestRouter(svc order.Service) http.Handler {
	router := chi.NewRouter()
	handler.NewOrderHandler(svc).RegisterRoutes(router)
	return router
}

func sampleOrder(id uuid.UUID, status order.Status) *order.Order {
	now := time.Now().UTC()
	return &order.Order{
		ID:           id,
		CustomerName: "Alex",
		Status:       status,
		TotalPrice:   decimal.RequireFromString("25.97"),
		Items: []order.OrderItem{
			{
				ID:        uuid.Must(uuid.NewV4()),
				OrderID:   id,
				ProductID: uuid.Must(uuid.NewV4()),
				Quantity:  2,
				UnitPrice: decimal.RequireFromString("9.99"),
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	svc := &mockOrderService{
		createOrderFunc: func(ctx context.Context, input order.CreateOrderInput) (*order.Order, error) {
			require.Len(t, input.Items, 1)
			assert.Equal(t, productID, input.Items[0].ProductID)
			assert.Equal(t, 2, input.Items[0].Quantity)
			return sampleOrder(orderID, order.StatusPending), nil
		},
	}
	router := newTestRouter(svc)

	body := fmt.Sprintf(`{"customer_name":"Alex","items":[{"product_id":%q,"quantity":2}]}`, productID)
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp handler.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orderID, resp.ID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "25.97", resp.TotalPrice.StringFixed(2))
}

func TestOrderHandler_CreateOrderRejectsEmptyItems(t *testing.T) {
	called := false
	svc := &mockOrderService{
		createOrderFunc: func(ctx context.Context, input order.CreateOrderInput) (*order.Order, error) {
			called = true
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"customer_name":"Alex","items":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called, "service must not be invoked for an invalid payload")
}

func TestOrderHandler_CreateOrderRejectsUnknownFields(t *testing.T) {
	svc := &mockOrderService{
		createOrderFunc: func(ctx context.Context, input order.CreateOrderInput) (*order.Order, error) {
			t.Fatal("service must not be invoked")
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{"bogus":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandler_CreateOrderMapsServiceErrors(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())
	body := fmt.Sprintf(`{"items":[{"product_id":%q,"quantity":1}]}`, productID)

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "unavailable products", err: fmt.Errorf("%w: [ext-p2]", order.ErrUnavailableProducts), wantCode: http.StatusBadRequest},
		{name: "catalog unavailable", err: order.ErrCatalogUnavailable, wantCode: http.StatusServiceUnavailable},
		{name: "unknown failure", err: fmt.Errorf("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{
				createOrderFunc: func(ctx context.Context, input order.CreateOrderInput) (*order.Order, error) {
					return nil, tt.err
				},
			}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestOrderHandler_GetOrderByID(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	svc := &mockOrderService{
		getOrderByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			assert.Equal(t, orderID, id)
			return sampleOrder(orderID, order.StatusConfirmed), nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+orderID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp handler.OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CONFIRMED", resp.Status)
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, "19.98", resp.Items[0].Subtotal.StringFixed(2))
}

func TestOrderHandler_GetOrderByIDNotFound(t *testing.T) {
	svc := &mockOrderService{
		getOrderByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return nil, order.ErrOrderNotFound
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+uuid.Must(uuid.NewV4()).String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderHandler_GetOrderByIDInvalidID(t *testing.T) {
	svc := &mockOrderService{
		getOrderByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			t.Fatal("service must not be invoked")
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandler_UpdateStatus(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())

	t.Run("changed status returns the updated order", func(t *testing.T) {
		svc := &mockOrderService{
			updateStatusFunc: func(ctx context.Context, id uuid.UUID, newStatus order.Status) (*order.Order, bool, error) {
				assert.Equal(t, order.StatusConfirmed, newStatus)
				return sampleOrder(orderID, order.StatusConfirmed), true, nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPatch, "/orders/"+orderID.String()+"/status", bytes.NewBufferString(`{"status":"confirmed"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp handler.OrderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "CONFIRMED", resp.Status)
	})

	t.Run("same status reports unchanged", func(t *testing.T) {
		svc := &mockOrderService{
			updateStatusFunc: func(ctx context.Context, id uuid.UUID, newStatus order.Status) (*order.Order, bool, error) {
				return sampleOrder(orderID, order.StatusConfirmed), false, nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPatch, "/orders/"+orderID.String()+"/status", bytes.NewBufferString(`{"status":"confirmed"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "status unchanged", resp["detail"])
	})

	t.Run("unknown status maps to bad request", func(t *testing.T) {
		svc := &mockOrderService{
			updateStatusFunc: func(ctx context.Context, id uuid.UUID, newStatus order.Status) (*order.Order, bool, error) {
				return nil, false, fmt.Errorf("%w: unknown status %q", order.ErrValidation, newStatus)
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPatch, "/orders/"+orderID.String()+"/status", bytes.NewBufferString(`{"status":"vaporized"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrderHandler_DeleteOrder(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	svc := &mockOrderService{
		deleteOrderFunc: func(ctx context.Context, id uuid.UUID) error {
			assert.Equal(t, orderID, id)
			return nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/orders/"+orderID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOrderHandler_AddItem(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	svc := &mockOrderService{
		addItemFunc: func(ctx context.Context, id uuid.UUID, input order.CreateItemInput) (*order.OrderItem, error) {
			assert.Equal(t, orderID, id)
			return &order.OrderItem{
				ID:        uuid.Must(uuid.NewV4()),
				OrderID:   orderID,
				ProductID: input.ProductID,
				Quantity:  input.Quantity,
				UnitPrice: decimal.RequireFromString("5.99"),
			}, nil
		},
	}
	router := newTestRouter(svc)

	body := fmt.Sprintf(`{"product_id":%q,"quantity":3}`, productID)
	req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/items", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp handler.OrderItemResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "17.97", resp.Subtotal.StringFixed(2))
}

func TestOrderHandler_MarkItemPrepared(t *testing.T) {
	itemID := uuid.Must(uuid.NewV4())

	t.Run("first call returns the item", func(t *testing.T) {
		svc := &mockOrderService{
			markItemPreparedFunc: func(ctx context.Context, id uuid.UUID) (*order.OrderItem, bool, error) {
				now := time.Now().UTC()
				return &order.OrderItem{ID: id, IsPrepared: true, PreparationCompletedAt: &now, UnitPrice: decimal.Zero}, true, nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/order-items/"+itemID.String()+"/prepare", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp handler.OrderItemResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.IsPrepared)
	})

	t.Run("repeated call reports already prepared", func(t *testing.T) {
		svc := &mockOrderService{
			markItemPreparedFunc: func(ctx context.Context, id uuid.UUID) (*order.OrderItem, bool, error) {
				now := time.Now().UTC()
				return &order.OrderItem{ID: id, IsPrepared: true, PreparationCompletedAt: &now, UnitPrice: decimal.Zero}, false, nil
			},
		}
		router := newTestRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/order-items/"+itemID.String()+"/prepare", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "item already prepared", resp["detail"])
	})
}

func TestOrderHandler_OrderHistoryRequiresUserID(t *testing.T) {
	svc := &mockOrderService{
		orderHistoryFunc: func(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]order.Order, error) {
			t.Fatal("service must not be invoked")
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandler_OrderHistoryDefaultsPagination(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	svc := &mockOrderService{
		orderHistoryFunc: func(ctx context.Context, id uuid.UUID, page, pageSize int) ([]order.Order, error) {
			assert.Equal(t, userID, id)
			assert.Equal(t, 1, page)
			assert.Equal(t, 20, pageSize)
			return nil, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/history?user_id="+userID.String()+"&page=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderHandler_KitchenOrders(t *testing.T) {
	confirmed := time.Now().UTC().Add(-12 * time.Minute)
	orderID := uuid.Must(uuid.NewV4())

	svc := &mockOrderService{
		kitchenOrdersFunc: func(ctx context.Context) ([]order.Order, error) {
			o := sampleOrder(orderID, order.StatusPreparing)
			o.ConfirmedAt = &confirmed
			return []order.Order{*o}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/kitchen", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []handler.KitchenOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, orderID, resp[0].ID)
	assert.GreaterOrEqual(t, resp[0].TimeElapsed, 12)
}
