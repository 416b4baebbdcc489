package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrProductInUse is returned when deletion is blocked because order
	// items still reference the product.
	ErrProductInUse = errors.New("product is referenced by order items")
)

type ListFilter struct {
	AvailableOnly bool
	FeaturedOnly  bool
	CategoryName  string
}

type Repository interface {
	Upsert(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetOrCreateCategory(ctx context.Context, name string) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// Upsert inserts or updates a product keyed by external_id. The local row
// id is generated on first insert and kept stable afterwards.
func (r *postgresRepository) Upsert(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		genID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate product ID: %w", err)
		}
		p.ID = genID
	}
	p.LastSyncedAt = time.Now().UTC()

	query := `
		INSERT INTO products (id, external_id, name, price, description, category_id, image_url, is_featured, is_available, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			description = EXCLUDED.description,
			category_id = EXCLUDED.category_id,
			image_url = EXCLUDED.image_url,
			is_featured = EXCLUDED.is_featured,
			is_available = EXCLUDED.is_available,
			last_synced_at = EXCLUDED.last_synced_at
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.ExternalID,
		p.Name,
		p.Price,
		p.Description,
		p.CategoryID,
		p.ImageURL,
		p.IsFeatured,
		p.IsAvailable,
		p.LastSyncedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert product %s: %w", p.ExternalID, err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT p.id, p.external_id, p.name, p.price, p.description, p.category_id, COALESCE(c.name, ''), p.image_url, p.is_featured, p.is_available, p.last_synced_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`

	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.ExternalID,
		&p.Name,
		&p.Price,
		&p.Description,
		&p.CategoryID,
		&p.CategoryName,
		&p.ImageURL,
		&p.IsFeatured,
		&p.IsAvailable,
		&p.LastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}

	return &p, nil
}

func (r *postgresRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}

	query := `
		SELECT p.id, p.external_id, p.name, p.price, p.description, p.category_id, COALESCE(c.name, ''), p.image_url, p.is_featured, p.is_available, p.last_synced_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products by ids: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	query := `
		SELECT p.id, p.external_id, p.name, p.price, p.description, p.category_id, COALESCE(c.name, ''), p.image_url, p.is_featured, p.is_available, p.last_synced_at
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE ($1 = false OR p.is_available)
		  AND ($2 = false OR p.is_featured)
		  AND ($3 = '' OR LOWER(c.name) = LOWER($3))
		ORDER BY p.name
	`

	rows, err := r.db.Query(ctx, query, filter.AvailableOnly, filter.FeaturedOnly, filter.CategoryName)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrProductInUse
		}
		return fmt.Errorf("repository: failed to delete product %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *postgresRepository) GetOrCreateCategory(ctx context.Context, name string) (*Category, error) {
	if name == "" {
		name = "Uncategorized"
	}

	genID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate category ID: %w", err)
	}

	query := `
		INSERT INTO categories (id, name, description)
		VALUES ($1, $2, '')
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, description
	`

	var c Category
	err = r.db.QueryRow(ctx, query, genID, name).Scan(&c.ID, &c.Name, &c.Description)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to get or create category %q: %w", name, err)
	}

	return &c, nil
}

func (r *postgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("repository: failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating categories: %w", err)
	}

	return categories, nil
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		err := rows.Scan(
			&p.ID,
			&p.ExternalID,
			&p.Name,
			&p.Price,
			&p.Description,
			&p.CategoryID,
			&p.CategoryName,
			&p.ImageURL,
			&p.IsFeatured,
			&p.IsAvailable,
			&p.LastSyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating products: %w", err)
	}

	return products, nil
}
