package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/digital-menu/ordering-service/internal/catalog"
	"github.com/digital-menu/ordering-service/internal/event"
	"github.com/digital-menu/ordering-service/internal/product"
)

var (
	// ErrValidation marks malformed user input; the message carries every
	// offending field so the whole problem surfaces in one round trip.
	ErrValidation = errors.New("order validation failed")
	// ErrUnavailableProducts is the definite-unavailability rejection: the
	// catalog confirmed specific products cannot be ordered.
	ErrUnavailableProducts = errors.New("products unavailable")
	// ErrCatalogUnavailable is returned only under PolicyEnforce when no
	// definite availability answer could be obtained.
	ErrCatalogUnavailable = errors.New("catalog service unavailable")
)

// AvailabilityPolicy decides what happens when the product validator cannot
// give a definite answer.
type AvailabilityPolicy string

const (
	// PolicyDegradeOpen logs the degraded condition and lets creation
	// proceed, falling back to locally synced availability flags.
	PolicyDegradeOpen AvailabilityPolicy = "degrade-open"
	// PolicyEnforce rejects creation while the catalog is unreachable.
	PolicyEnforce AvailabilityPolicy = "enforce"
)

// ProductValidator is the circuit-breaker-guarded catalog check invoked on
// order creation.
type ProductValidator interface {
	Validate(ctx context.Context, ids []string) catalog.ValidationResult
}

type CreateItemInput struct {
	ProductID           uuid.UUID
	Quantity            int
	SpecialInstructions string
}

type CreateOrderInput struct {
	UserID          *uuid.UUID
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	TableNumber     *int
	SpecialRequests string
	Items           []CreateItemInput
}

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, bool, error)
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error

	AddItem(ctx context.Context, orderID uuid.UUID, input CreateItemInput) (*OrderItem, error)
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (*OrderItem, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	MarkItemPrepared(ctx context.Context, itemID uuid.UUID) (*OrderItem, bool, error)

	ActiveOrders(ctx context.Context) ([]Order, error)
	KitchenOrders(ctx context.Context) ([]Order, error)
	OrderHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Order, error)
	OrderStats(ctx context.Context) (*Stats, error)
}

type service struct {
	orders    Repository
	products  product.Repository
	validator ProductValidator
	publisher event.Publisher
	policy    AvailabilityPolicy
}

func NewService(orders Repository, products product.Repository, validator ProductValidator, publisher event.Publisher, policy AvailabilityPolicy) Service {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	if policy == "" {
		policy = PolicyDegradeOpen
	}
	return &service{
		orders:    orders,
		products:  products,
		validator: validator,
		publisher: publisher,
		policy:    policy,
	}
}

// CreateOrder validates the request, checks product availability through
// the catalog validator, and persists the order with all items atomically.
// Unit prices are always snapshotted from the local product mirror at
// creation time; client-supplied prices are ignored.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if err := validateCreateInput(input); err != nil {
		log.Warn().Err(err).Msg("service: rejected malformed order")
		return nil, err
	}

	merged := mergeItems(input.Items)

	productIDs := make([]uuid.UUID, 0, len(merged))
	for _, item := range merged {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("service: failed to resolve products: %w", err)
	}

	byID := make(map[uuid.UUID]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var missing []string
	for _, id := range productIDs {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: unknown products: %s", ErrValidation, strings.Join(missing, ", "))
	}

	externalIDs := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		externalIDs = append(externalIDs, byID[id].ExternalID)
	}

	result := s.validator.Validate(ctx, externalIDs)
	switch {
	case result.Degraded && s.policy == PolicyEnforce:
		return nil, ErrCatalogUnavailable
	case result.Degraded:
		// No definite answer from the catalog; the locally synced
		// availability flags are the only check left. A definite answer
		// always wins over the local mirror, which may be stale.
		log.Warn().Msg("service: proceeding without remote product validation")
		var unavailable []string
		for _, id := range productIDs {
			if p := byID[id]; !p.IsAvailable {
				unavailable = append(unavailable, p.ExternalID)
			}
		}
		if len(unavailable) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnavailableProducts, strings.Join(unavailable, ", "))
		}
	case !result.AllAvailable:
		return nil, fmt.Errorf("%w: %s", ErrUnavailableProducts, strings.Join(result.Unavailable, ", "))
	}

	items := make([]OrderItem, 0, len(merged))
	for _, in := range merged {
		p := byID[in.ProductID]
		items = append(items, OrderItem{
			ProductID:           in.ProductID,
			ProductName:         p.Name,
			Quantity:            in.Quantity,
			UnitPrice:           p.Price,
			SpecialInstructions: in.SpecialInstructions,
		})
	}

	o := &Order{
		UserID:          input.UserID,
		CustomerName:    input.CustomerName,
		CustomerEmail:   input.CustomerEmail,
		CustomerPhone:   input.CustomerPhone,
		Status:          StatusPending,
		Items:           items,
		TotalPrice:      TotalOf(items),
		TableNumber:     input.TableNumber,
		SpecialRequests: input.SpecialRequests,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	s.publisher.Publish(ctx, event.TypeOrderCreated, orderEventData(o))
	for i := range o.Items {
		s.publisher.Publish(ctx, event.TypeOrderItemCreated, itemEventData(&o.Items[i]))
	}

	log.Info().Stringer("order_id", o.ID).Str("total", o.TotalPrice.StringFixed(2)).Msg("service: order created")
	return o, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

// UpdateStatus applies a status change to an order. Returns the order and
// whether anything changed; setting the current status again is a no-op.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) (*Order, bool, error) {
	if !newStatus.Valid() {
		return nil, false, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, false, ErrOrderNotFound
		}
		return nil, false, fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	oldStatus := o.Status
	if !o.ApplyStatus(newStatus, time.Now().UTC()) {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status unchanged")
		return o, false, nil
	}

	if err := s.orders.UpdateStatus(ctx, o); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, false, ErrOrderNotFound
		}
		return nil, false, fmt.Errorf("service: failed to update order status: %w", err)
	}

	data := orderEventData(o)
	data.OldStatus = oldStatus.String()
	s.publisher.Publish(ctx, event.TypeOrderUpdated, data)

	log.Info().Stringer("order_id", orderID).Stringer("old_status", oldStatus).Stringer("new_status", newStatus).Msg("service: order status updated")
	return o, true, nil
}

func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to get order for deletion: %w", err)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("service: failed to delete order: %w", err)
	}

	s.publisher.Publish(ctx, event.TypeOrderDeleted, orderEventData(o))
	log.Info().Stringer("order_id", orderID).Msg("service: order deleted")
	return nil
}

// AddItem adds a line to an existing order, snapshotting the product's
// current price. Adding a product already on the order merges into the
// existing line: quantity is added and special instructions are appended.
func (s *service) AddItem(ctx context.Context, orderID uuid.UUID, input CreateItemInput) (*OrderItem, error) {
	if input.ProductID == uuid.Nil {
		return nil, fmt.Errorf("%w: item is missing a product reference", ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: item quantity must be positive, got %d", ErrValidation, input.Quantity)
	}

	p, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			return nil, fmt.Errorf("%w: unknown products: %s", ErrValidation, input.ProductID)
		}
		return nil, fmt.Errorf("service: failed to resolve product: %w", err)
	}

	item := &OrderItem{
		OrderID:             orderID,
		ProductID:           input.ProductID,
		ProductName:         p.Name,
		Quantity:            input.Quantity,
		UnitPrice:           p.Price,
		SpecialInstructions: input.SpecialInstructions,
	}

	inserted, err := s.orders.UpsertItem(ctx, item)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to add order item: %w", err)
	}

	// A merge into an existing line is an update to the order, not a new
	// item, so order_item.created is only published for fresh rows.
	if inserted {
		s.publisher.Publish(ctx, event.TypeOrderItemCreated, itemEventData(item))
	}
	s.publishOrderUpdated(ctx, orderID)

	return item, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (*OrderItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: item quantity must be positive, got %d", ErrValidation, quantity)
	}

	item, err := s.orders.UpdateItemQuantity(ctx, itemID, quantity)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("service: failed to update item quantity: %w", err)
	}

	s.publishOrderUpdated(ctx, item.OrderID)
	return item, nil
}

func (s *service) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	orderID, err := s.orders.DeleteItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return ErrItemNotFound
		}
		return fmt.Errorf("service: failed to remove order item: %w", err)
	}

	s.publishOrderUpdated(ctx, orderID)
	return nil
}

// MarkItemPrepared is idempotent: marking an already-prepared item reports
// no change and leaves its completion timestamp untouched.
func (s *service) MarkItemPrepared(ctx context.Context, itemID uuid.UUID) (*OrderItem, bool, error) {
	item, err := s.orders.GetItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, false, ErrItemNotFound
		}
		return nil, false, fmt.Errorf("service: failed to fetch order item: %w", err)
	}

	if !item.MarkPrepared(time.Now().UTC()) {
		return item, false, nil
	}

	if err := s.orders.MarkItemPrepared(ctx, item); err != nil {
		return nil, false, fmt.Errorf("service: failed to mark item prepared: %w", err)
	}

	log.Info().Stringer("item_id", itemID).Msg("service: order item prepared")
	return item, true, nil
}

func (s *service) ActiveOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list active orders: %w", err)
	}
	return orders, nil
}

func (s *service) KitchenOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListKitchen(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list kitchen orders: %w", err)
	}
	return orders, nil
}

func (s *service) OrderHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Order, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	orders, err := s.orders.ListHistoryByUserID(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list order history: %w", err)
	}
	return orders, nil
}

func (s *service) OrderStats(ctx context.Context) (*Stats, error) {
	stats, err := s.orders.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to collect order stats: %w", err)
	}
	return stats, nil
}

// publishOrderUpdated notifies consumers after an item mutation changed the
// order's total. A failed lookup only costs the notification.
func (s *service) publishOrderUpdated(ctx context.Context, orderID uuid.UUID) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("service: failed to load order for update event")
		return
	}
	s.publisher.Publish(ctx, event.TypeOrderUpdated, orderEventData(o))
}

func validateCreateInput(input CreateOrderInput) error {
	var problems []string

	if len(input.Items) == 0 {
		problems = append(problems, "order must contain at least one item")
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			problems = append(problems, fmt.Sprintf("item %d is missing a product reference", i))
		}
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("item %d quantity must be positive, got %d", i, item.Quantity))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// mergeItems collapses duplicate product lines in a creation request so the
// (order, product) uniqueness invariant holds from the start. Quantities are
// summed and special instructions appended, the same contract as AddItem.
func mergeItems(items []CreateItemInput) []CreateItemInput {
	merged := make([]CreateItemInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))

	for _, item := range items {
		if at, ok := index[item.ProductID]; ok {
			merged[at].Quantity += item.Quantity
			merged[at].SpecialInstructions = joinInstructions(merged[at].SpecialInstructions, item.SpecialInstructions)
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	return merged
}

func joinInstructions(existing, added string) string {
	switch {
	case added == "":
		return existing
	case existing == "":
		return added
	default:
		return existing + "; " + added
	}
}

// OrderEventData is the order field snapshot carried by published events.
type OrderEventData struct {
	OrderID    string          `json:"order_id"`
	Status     string          `json:"status"`
	OldStatus  string          `json:"old_status,omitempty"`
	TotalPrice decimal.Decimal `json:"total_price"`
	UserID     *uuid.UUID      `json:"user_id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ItemEventData struct {
	OrderID   string `json:"order_id"`
	ItemID    string `json:"item_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func orderEventData(o *Order) OrderEventData {
	return OrderEventData{
		OrderID:    o.ID.String(),
		Status:     o.Status.String(),
		TotalPrice: o.TotalPrice,
		UserID:     o.UserID,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func itemEventData(item *OrderItem) ItemEventData {
	return ItemEventData{
		OrderID:   item.OrderID.String(),
		ItemID:    item.ID.String(),
		ProductID: item.ProductID.String(),
		Quantity:  item.Quantity,
	}
}
