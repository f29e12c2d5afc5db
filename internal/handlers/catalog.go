package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/visa2any/checkout-api/internal/catalog"
	"github.com/visa2any/checkout-api/internal/domain"
	"github.com/visa2any/checkout-api/internal/platform/httpx"
	"github.com/visa2any/checkout-api/internal/pricing"
)

// CatalogHandlers serves the public product listing with computed price
// previews.
type CatalogHandlers struct {
	catalog *catalog.Catalog
	pricing *pricing.Registry
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(cat *catalog.Catalog, registry *pricing.Registry) *CatalogHandlers {
	return &CatalogHandlers{catalog: cat, pricing: registry}
}

// Routes registers catalog endpoints under the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productId}", h.getProduct)
}

type productResponse struct {
	domain.ProductConfig
	Pricing *domain.PricingResult `json:"pricing,omitempty"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, _ *http.Request) {
	products := h.catalog.List()
	payload := make([]productResponse, 0, len(products))
	for _, product := range products {
		payload = append(payload, h.withPricing(product))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": payload})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	product, err := h.catalog.Get(productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load product", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, h.withPricing(product))
}

// withPricing attaches the single-adult price preview shown on product cards.
func (h *CatalogHandlers) withPricing(product domain.ProductConfig) productResponse {
	resp := productResponse{ProductConfig: product}
	if h.pricing != nil {
		if policy, err := h.pricing.ForProduct(&product); err == nil {
			if quote, err := policy.Price(&product, 1, 0, ""); err == nil {
				resp.Pricing = &quote
			}
		}
	}
	return resp
}
