package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/digital-menu/ordering-service/internal/product"
)

// ProductHandler serves the locally synced product snapshot.
type ProductHandler struct {
	repo   product.Repository
	cache  *product.Cache
	syncer *product.Syncer
}

func NewProductHandler(repo product.Repository, cache *product.Cache, syncer *product.Syncer) *ProductHandler {
	return &ProductHandler{
		repo:   repo,
		cache:  cache,
		syncer: syncer,
	}
}

func (h *ProductHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
	router.Get("/categories", h.handleListCategories)
	router.Post("/products/sync", h.handleSync)
	router.Delete("/products/{id}", h.handleDeleteProduct)
}

func (h *ProductHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := product.ListFilter{
		AvailableOnly: query.Get("available") == "true",
		FeaturedOnly:  query.Get("featured") == "true",
		CategoryName:  query.Get("category"),
	}

	if products, ok := h.cache.GetList(r.Context(), filter); ok {
		respondWithJSON(w, http.StatusOK, products)
		return
	}

	products, err := h.repo.List(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list products")
		respondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	h.cache.SetList(r.Context(), filter, products)
	respondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.ListCategories(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	respondWithJSON(w, http.StatusOK, categories)
}

func (h *ProductHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	synced, err := h.syncer.Sync(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handler: product sync failed")
		respondWithError(w, http.StatusBadGateway, "product sync failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"synced": synced})
}

func (h *ProductHandler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}

	h.cache.Invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
