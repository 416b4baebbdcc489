package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrItemNotFound  = errors.New("order item not found")
)

// Stats is the daily dashboard aggregate.
type Stats struct {
	TodayOrders        int             `json:"today_orders"`
	TodayRevenue       decimal.Decimal `json:"today_revenue"`
	PendingOrders      int             `json:"pending_orders"`
	PreparingOrders    int             `json:"preparing_orders"`
	ReadyOrders        int             `json:"ready_orders"`
	AvgPreparationMins float64         `json:"avg_preparation_time"`
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Item mutations recalculate the owning order's total inside the same
	// transaction, behind a row lock on the order.
	// UpsertItem reports whether a new row was inserted; false means the
	// line was merged into an existing (order, product) row.
	UpsertItem(ctx context.Context, item *OrderItem) (bool, error)
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (*OrderItem, error)
	DeleteItem(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error)
	MarkItemPrepared(ctx context.Context, item *OrderItem) error
	GetItemByID(ctx context.Context, itemID uuid.UUID) (*OrderItem, error)

	ListActive(ctx context.Context) ([]Order, error)
	ListKitchen(ctx context.Context) ([]Order, error)
	ListHistoryByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error)
	GetStats(ctx context.Context) (*Stats, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// Create inserts the order and all its items in one transaction. Either
// every row is committed or none is.
func (r *postgresRepository) Create(ctx context.Context, orderInput *Order) (err error) {
	if orderInput.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		orderInput.ID = genID
	}

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderInput.ID).Msg("repository: failed to rollback after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderInput.ID).Msg("repository: failed to rollback transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
			}
		}
	}()

	now := time.Now().UTC()
	orderInput.CreatedAt = now
	orderInput.UpdatedAt = now

	queryOrder := `
		INSERT INTO orders (id, user_id, customer_name, customer_email, customer_phone, status, total_price,
			table_number, special_requests, created_at, updated_at, payment_id, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = tx.Exec(ctx, queryOrder,
		orderInput.ID,
		orderInput.UserID,
		orderInput.CustomerName,
		orderInput.CustomerEmail,
		orderInput.CustomerPhone,
		string(orderInput.Status),
		orderInput.TotalPrice,
		orderInput.TableNumber,
		orderInput.SpecialRequests,
		orderInput.CreatedAt,
		orderInput.UpdatedAt,
		orderInput.PaymentID,
		orderInput.PaymentStatus,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, special_instructions, is_prepared)
		VALUES ($1, $2, $3, $4, $5, $6, false)
	`
	for i := range orderInput.Items {
		item := &orderInput.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = orderInput.ID

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Quantity,
			item.UnitPrice,
			item.SpecialInstructions,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", orderInput.ID, err)
		}
	}

	return nil
}

const orderColumns = `id, user_id, customer_name, customer_email, customer_phone, status, total_price,
		table_number, special_requests, created_at, updated_at,
		confirmed_at, preparing_at, ready_at, delivered_at, cancelled_at, payment_id, payment_status`

const itemColumns = `i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.unit_price,
		i.special_instructions, i.is_prepared, i.preparation_started_at, i.preparation_completed_at`

func (r *postgresRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o Order
	err := r.db.QueryRow(ctx, query, orderID).Scan(orderFields(&o)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	items, err := r.itemsForOrders(ctx, []uuid.UUID{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]
	if o.Items == nil {
		o.Items = make([]OrderItem, 0)
	}

	return &o, nil
}

// UpdateStatus persists the status and milestone timestamps already applied
// to o. Milestones are written with COALESCE so a stamp, once set, never
// changes.
func (r *postgresRepository) UpdateStatus(ctx context.Context, o *Order) error {
	query := `
		UPDATE orders
		SET status = $1,
			updated_at = $2,
			confirmed_at = COALESCE(confirmed_at, $3),
			preparing_at = COALESCE(preparing_at, $4),
			ready_at = COALESCE(ready_at, $5),
			delivered_at = COALESCE(delivered_at, $6),
			cancelled_at = COALESCE(cancelled_at, $7)
		WHERE id = $8
	`

	o.UpdatedAt = time.Now().UTC()

	cmdTag, err := r.db.Exec(ctx, query,
		string(o.Status),
		o.UpdatedAt,
		o.ConfirmedAt,
		o.PreparingAt,
		o.ReadyAt,
		o.DeliveredAt,
		o.CancelledAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, orderID uuid.UUID) error {
	// order_items cascade with the order.
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// UpsertItem adds a line to an order. If the product already has a line on
// the order, its quantity is increased instead of inserting a duplicate row
// ((order_id, product_id) is unique) and the new special instructions are
// appended to the existing ones. The order total is recalculated in the same
// transaction. Returns whether a new row was inserted.
func (r *postgresRepository) UpsertItem(ctx context.Context, item *OrderItem) (inserted bool, err error) {
	if item.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return false, fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		item.ID = genID
	}

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return false, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() { err = r.finishTx(ctx, tx, err) }()

	if err = lockOrder(ctx, tx, item.OrderID); err != nil {
		return false, err
	}

	// xmax = 0 distinguishes a fresh insert from a conflict update.
	query := `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, special_instructions, is_prepared)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (order_id, product_id) DO UPDATE SET
			quantity = order_items.quantity + EXCLUDED.quantity,
			special_instructions = CASE
				WHEN EXCLUDED.special_instructions = '' THEN order_items.special_instructions
				WHEN order_items.special_instructions = '' THEN EXCLUDED.special_instructions
				ELSE order_items.special_instructions || '; ' || EXCLUDED.special_instructions
			END
		RETURNING id, quantity, unit_price, special_instructions, is_prepared, (xmax = 0)
	`
	err = tx.QueryRow(ctx, query,
		item.ID,
		item.OrderID,
		item.ProductID,
		item.Quantity,
		item.UnitPrice,
		item.SpecialInstructions,
	).Scan(&item.ID, &item.Quantity, &item.UnitPrice, &item.SpecialInstructions, &item.IsPrepared, &inserted)
	if err != nil {
		return false, fmt.Errorf("repository: failed to upsert order item for order %s: %w", item.OrderID, err)
	}

	err = recalculateTotal(ctx, tx, item.OrderID)
	return inserted, err
}

func (r *postgresRepository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (item *OrderItem, err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() { err = r.finishTx(ctx, tx, err) }()

	var orderID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order item %s: %w", itemID, err)
	}

	if err = lockOrder(ctx, tx, orderID); err != nil {
		return nil, err
	}

	var updated OrderItem
	query := `
		UPDATE order_items SET quantity = $1 WHERE id = $2
		RETURNING id, order_id, product_id, quantity, unit_price, special_instructions, is_prepared, preparation_started_at, preparation_completed_at
	`
	err = tx.QueryRow(ctx, query, quantity, itemID).Scan(
		&updated.ID,
		&updated.OrderID,
		&updated.ProductID,
		&updated.Quantity,
		&updated.UnitPrice,
		&updated.SpecialInstructions,
		&updated.IsPrepared,
		&updated.PreparationStartedAt,
		&updated.PreparationCompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to update quantity for item %s: %w", itemID, err)
	}

	if err = recalculateTotal(ctx, tx, orderID); err != nil {
		return nil, err
	}

	return &updated, nil
}

func (r *postgresRepository) DeleteItem(ctx context.Context, itemID uuid.UUID) (orderID uuid.UUID, err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() { err = r.finishTx(ctx, tx, err) }()

	err = tx.QueryRow(ctx, `SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrItemNotFound
		}
		return uuid.Nil, fmt.Errorf("repository: failed to select order item %s: %w", itemID, err)
	}

	if err = lockOrder(ctx, tx, orderID); err != nil {
		return uuid.Nil, err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, itemID); err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to delete order item %s: %w", itemID, err)
	}

	err = recalculateTotal(ctx, tx, orderID)
	return orderID, err
}

func (r *postgresRepository) MarkItemPrepared(ctx context.Context, item *OrderItem) error {
	query := `
		UPDATE order_items
		SET is_prepared = $1, preparation_completed_at = COALESCE(preparation_completed_at, $2)
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, item.IsPrepared, item.PreparationCompletedAt, item.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to mark item %s prepared: %w", item.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *postgresRepository) GetItemByID(ctx context.Context, itemID uuid.UUID) (*OrderItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.id = $1
	`

	var item OrderItem
	err := r.db.QueryRow(ctx, query, itemID).Scan(
		&item.ID,
		&item.OrderID,
		&item.ProductID,
		&item.ProductName,
		&item.Quantity,
		&item.UnitPrice,
		&item.SpecialInstructions,
		&item.IsPrepared,
		&item.PreparationStartedAt,
		&item.PreparationCompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order item %s: %w", itemID, err)
	}

	return &item, nil
}

func (r *postgresRepository) ListActive(ctx context.Context) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status NOT IN ('DELIVERED', 'CANCELLED')
		ORDER BY created_at DESC
	`
	return r.listOrders(ctx, query)
}

// ListKitchen returns orders the kitchen needs to work on, oldest first.
func (r *postgresRepository) ListKitchen(ctx context.Context) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE status IN ('CONFIRMED', 'PREPARING')
		ORDER BY created_at ASC
	`
	return r.listOrders(ctx, query)
}

func (r *postgresRepository) ListHistoryByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 AND status IN ('DELIVERED', 'CANCELLED')
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.listOrders(ctx, query, userID, limit, offset)
}

func (r *postgresRepository) GetStats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE created_at::date = CURRENT_DATE),
			COALESCE(SUM(total_price) FILTER (WHERE created_at::date = CURRENT_DATE AND status = 'DELIVERED'), 0),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'PREPARING'),
			COUNT(*) FILTER (WHERE status = 'READY'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (ready_at - confirmed_at)) / 60)
				FILTER (WHERE confirmed_at IS NOT NULL AND ready_at IS NOT NULL), 0)
		FROM orders
	`

	var stats Stats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TodayOrders,
		&stats.TodayRevenue,
		&stats.PendingOrders,
		&stats.PreparingOrders,
		&stats.ReadyOrders,
		&stats.AvgPreparationMins,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select order stats: %w", err)
	}

	return &stats, nil
}

func (r *postgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		if err := rows.Scan(orderFields(&o)...); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = make([]OrderItem, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemsByOrder, err := r.itemsForOrders(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for orderID, items := range itemsByOrder {
		if o, ok := ordersMap[orderID]; ok {
			o.Items = items
		}
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}

	return result, nil
}

func (r *postgresRepository) itemsForOrders(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]OrderItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	itemsByOrder := make(map[uuid.UUID][]OrderItem)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.SpecialInstructions,
			&item.IsPrepared,
			&item.PreparationStartedAt,
			&item.PreparationCompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return itemsByOrder, nil
}

func (r *postgresRepository) finishTx(ctx context.Context, tx pgx.Tx, err error) error {
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Error().Err(rbErr).Msg("repository: failed to rollback transaction")
		}
		return err
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
	}
	return nil
}

// lockOrder serializes concurrent item mutations on the same order so total
// recalculation always sees a consistent item snapshot.
func lockOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("repository: failed to lock order %s: %w", orderID, err)
	}
	return nil
}

// recalculateTotal sets total_price to the sum of current line subtotals.
// Idempotent; runs inside the caller's transaction.
func recalculateTotal(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET total_price = COALESCE((SELECT SUM(quantity * unit_price) FROM order_items WHERE order_id = $1), 0),
			updated_at = $2
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("repository: failed to recalculate total for order %s: %w", orderID, err)
	}
	return nil
}

func orderFields(o *Order) []any {
	return []any{
		&o.ID,
		&o.UserID,
		&o.CustomerName,
		&o.CustomerEmail,
		&o.CustomerPhone,
		&o.Status,
		&o.TotalPrice,
		&o.TableNumber,
		&o.SpecialRequests,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.ConfirmedAt,
		&o.PreparingAt,
		&o.ReadyAt,
		&o.DeliveredAt,
		&o.CancelledAt,
		&o.PaymentID,
		&o.PaymentStatus,
	}
}
