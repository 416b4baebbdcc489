package product

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/digital-menu/ordering-service/internal/catalog"
)

// Syncer imports the catalog service's product collection into the local
// mirror. It is an explicit administrative action, not a scheduled job.
type Syncer struct {
	client *catalog.Client
	repo   Repository
	cache  *Cache
	limit  int
}

func NewSyncer(client *catalog.Client, repo Repository, cache *Cache, limit int) *Syncer {
	if limit <= 0 {
		limit = 1000
	}
	return &Syncer{client: client, repo: repo, cache: cache, limit: limit}
}

// Sync fetches the bulk product collection and upserts each record keyed by
// its external id. Returns the number of records synced.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	records, err := s.client.FetchProducts(ctx, s.limit)
	if err != nil {
		return 0, fmt.Errorf("sync: failed to fetch products from catalog: %w", err)
	}

	synced := 0
	for _, record := range records {
		if record.ID == "" {
			log.Error().Str("name", record.Name).Msg("sync: skipping product without external id")
			continue
		}

		p, err := s.toProduct(ctx, record)
		if err != nil {
			log.Error().Err(err).Str("external_id", record.ID).Msg("sync: failed to map product record")
			continue
		}

		if err := s.repo.Upsert(ctx, p); err != nil {
			log.Error().Err(err).Str("external_id", record.ID).Msg("sync: failed to upsert product")
			continue
		}
		synced++
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	log.Info().Int("synced", synced).Int("fetched", len(records)).Msg("sync: product import finished")
	return synced, nil
}

func (s *Syncer) toProduct(ctx context.Context, record catalog.ProductRecord) (*Product, error) {
	price, err := decimal.NewFromString(record.Price)
	if err != nil {
		return nil, fmt.Errorf("sync: invalid price %q: %w", record.Price, err)
	}

	category, err := s.repo.GetOrCreateCategory(ctx, record.Category)
	if err != nil {
		return nil, err
	}

	name := record.Name
	if name == "" {
		name = "Unknown Product"
	}

	return &Product{
		ExternalID:  record.ID,
		Name:        name,
		Price:       price,
		Description: record.Description,
		CategoryID:  &category.ID,
		ImageURL:    record.ImageURL,
		IsFeatured:  record.IsFeatured,
		IsAvailable: record.IsAvailable,
	}, nil
}
