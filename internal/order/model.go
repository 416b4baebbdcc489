package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the enumerated statuses. Any enumerated
// status is accepted from any other; forward-only enforcement is left to
// callers that want it.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type OrderItem struct {
	ID                     uuid.UUID       `json:"id" db:"id"`
	OrderID                uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID              uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName            string          `json:"product_name,omitempty" db:"-"`
	Quantity               int             `json:"quantity" db:"quantity"`
	UnitPrice              decimal.Decimal `json:"unit_price" db:"unit_price"`
	SpecialInstructions    string          `json:"special_instructions" db:"special_instructions"`
	IsPrepared             bool            `json:"is_prepared" db:"is_prepared"`
	PreparationStartedAt   *time.Time      `json:"preparation_started_at" db:"preparation_started_at"`
	PreparationCompletedAt *time.Time      `json:"preparation_completed_at" db:"preparation_completed_at"`
}

// Subtotal is quantity x unit price for this line. UnitPrice is a snapshot
// taken at insertion time and never tracks later product price changes.
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// MarkPrepared sets the prepared flag and completion timestamp. Idempotent:
// a second call reports no change and leaves the timestamp untouched.
func (i *OrderItem) MarkPrepared(now time.Time) bool {
	if i.IsPrepared {
		return false
	}
	i.IsPrepared = true
	i.PreparationCompletedAt = &now
	return true
}

type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          *uuid.UUID      `json:"user_id" db:"user_id"`
	CustomerName    string          `json:"customer_name" db:"customer_name"`
	CustomerEmail   string          `json:"customer_email" db:"customer_email"`
	CustomerPhone   string          `json:"customer_phone" db:"customer_phone"`
	Status          Status          `json:"status" db:"status"`
	Items           []OrderItem     `json:"items" db:"-"`
	TotalPrice      decimal.Decimal `json:"total_price" db:"total_price"`
	TableNumber     *int            `json:"table_number" db:"table_number"`
	SpecialRequests string          `json:"special_requests" db:"special_requests"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	ConfirmedAt     *time.Time      `json:"confirmed_at" db:"confirmed_at"`
	PreparingAt     *time.Time      `json:"preparing_at" db:"preparing_at"`
	ReadyAt         *time.Time      `json:"ready_at" db:"ready_at"`
	DeliveredAt     *time.Time      `json:"delivered_at" db:"delivered_at"`
	CancelledAt     *time.Time      `json:"cancelled_at" db:"cancelled_at"`
	PaymentID       string          `json:"payment_id" db:"payment_id"`
	PaymentStatus   string          `json:"payment_status" db:"payment_status"`
}

// ApplyStatus moves the order to newStatus, stamping the status's milestone
// timestamp on first arrival only. Setting the current status again is a
// no-op; the return value reports whether anything changed.
func (o *Order) ApplyStatus(newStatus Status, now time.Time) bool {
	if newStatus == o.Status {
		return false
	}

	o.Status = newStatus

	if ts := o.milestone(newStatus); ts != nil && *ts == nil {
		stamped := now
		*ts = &stamped
	}

	return true
}

func (o *Order) milestone(s Status) **time.Time {
	switch s {
	case StatusConfirmed:
		return &o.ConfirmedAt
	case StatusPreparing:
		return &o.PreparingAt
	case StatusReady:
		return &o.ReadyAt
	case StatusDelivered:
		return &o.DeliveredAt
	case StatusCancelled:
		return &o.CancelledAt
	}
	return nil
}

// MilestoneAt returns the milestone timestamp recorded for s, if any.
func (o *Order) MilestoneAt(s Status) *time.Time {
	if ts := o.milestone(s); ts != nil {
		return *ts
	}
	return nil
}

// TotalOf computes an order total as the sum of line subtotals.
func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Subtotal())
	}
	return total
}

// PreparationMinutes is ready minus confirmed in whole minutes. The second
// return value is false when either endpoint is missing.
func (o *Order) PreparationMinutes() (int, bool) {
	return minutesBetween(o.ConfirmedAt, o.ReadyAt)
}

// DeliveryMinutes is delivered minus ready in whole minutes.
func (o *Order) DeliveryMinutes() (int, bool) {
	return minutesBetween(o.ReadyAt, o.DeliveredAt)
}

// TotalMinutes is delivered minus confirmed in whole minutes.
func (o *Order) TotalMinutes() (int, bool) {
	return minutesBetween(o.ConfirmedAt, o.DeliveredAt)
}

func minutesBetween(from, to *time.Time) (int, bool) {
	if from == nil || to == nil {
		return 0, false
	}
	return int(to.Sub(*from).Minutes()), true
}
