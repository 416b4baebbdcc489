package product_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-menu/ordering-service/internal/catalog"
	"github.com/digital-menu/ordering-service/internal/product"
)

type mockProductRepository struct {
	upsertFunc              func(ctx context.Context, p *product.Product) error
	getByIDFunc             func(ctx context.Context, id uuid.UUID) (*product.Product, error)
	getByIDsFunc            func(ctx context.Context, ids []uuid.UUID) ([]product.Product, error)
	listFunc                func(ctx context.Context, filter product.ListFilter) ([]product.Product, error)
	deleteFunc              func(ctx context.Context, id uuid.UUID) error
	getOrCreateCategoryFunc func(ctx context.Context, name string) (*product.Category, error)
	listCategoriesFunc      func(ctx context.Context) ([]product.Category, error)
}

func (m *mockProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	return m.upsertFunc(ctx, p)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]product.Product, error) {
	return m.getByIDsFunc(ctx, ids)
}

func (m *mockProductRepository) List(ctx context.Context, filter product.ListFilter) ([]product.Product, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

func (m *mockProductRepository) GetOrCreateCategory(ctx context.Context, name string) (*product.Category, error) {
	return m.getOrCreateCategoryFunc(ctx, name)
}

func (m *mockProductRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	return m.listCategoriesFunc(ctx)
}

func TestSyncer_Sync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"id": "ext-1", "name": "Margherita", "price": "9.99", "category": "Pizza", "is_available": true},
			{"id": "", "name": "no external id", "price": "1.00"},
			{"id": "ext-2", "name": "Tiramisu", "price": "not-a-price", "category": "Dessert"},
			{"id": "ext-3", "name": "Espresso", "price": "2.50", "category": "Drinks", "is_available": false}
		]}`))
	}))
	t.Cleanup(srv.Close)

	categoryID, err := uuid.NewV4()
	require.NoError(t, err)

	var upserted []product.Product
	repo := &mockProductRepository{
		upsertFunc: func(ctx context.Context, p *product.Product) error {
			upserted = append(upserted, *p)
			return nil
		},
		getOrCreateCategoryFunc: func(ctx context.Context, name string) (*product.Category, error) {
			return &product.Category{ID: categoryID, Name: name}, nil
		},
	}

	syncer := product.NewSyncer(catalog.NewClient(srv.URL, 10*time.Second), repo, nil, 0)

	synced, err := syncer.Sync(context.Background())

	// The record without an external id and the one with a malformed price
	// are skipped; the rest are upserted.
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	require.Len(t, upserted, 2)

	assert.Equal(t, "ext-1", upserted[0].ExternalID)
	assert.Equal(t, "Margherita", upserted[0].Name)
	assert.Equal(t, "9.99", upserted[0].Price.StringFixed(2))
	assert.True(t, upserted[0].IsAvailable)

	assert.Equal(t, "ext-3", upserted[1].ExternalID)
	assert.False(t, upserted[1].IsAvailable)
}

func TestSyncer_SyncFailsWhenCatalogUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	repo := &mockProductRepository{}
	syncer := product.NewSyncer(catalog.NewClient(srv.URL, 10*time.Second), repo, nil, 100)

	_, err := syncer.Sync(context.Background())

	assert.Error(t, err)
}
