package product

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
}

// Product mirrors a record owned by the catalog service. ExternalID is the
// catalog's stable key and the idempotency key for upserts; rows are written
// only by the sync importer.
type Product struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ExternalID   string          `json:"external_id" db:"external_id"`
	Name         string          `json:"name" db:"name"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Description  string          `json:"description" db:"description"`
	CategoryID   *uuid.UUID      `json:"category" db:"category_id"`
	CategoryName string          `json:"category_name,omitempty" db:"-"`
	ImageURL     string          `json:"image_url" db:"image_url"`
	IsFeatured   bool            `json:"is_featured" db:"is_featured"`
	IsAvailable  bool            `json:"is_available" db:"is_available"`
	LastSyncedAt time.Time       `json:"last_synced" db:"last_synced_at"`
}
