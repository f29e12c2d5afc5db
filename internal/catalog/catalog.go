// Package catalog loads the typed product catalog at startup and validates it
// before any checkout can reference it. Authoring errors (negative prices,
// duplicate ids, unknown pricing policies) fail the load instead of surfacing
// mid-checkout.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/visa2any/checkout-api/internal/domain"
)

//go:embed products.json
var embeddedProducts []byte

// ErrInvalidCatalog wraps every schema violation detected during load.
var ErrInvalidCatalog = errors.New("catalog: invalid catalog")

// ErrProductNotFound is returned when a lookup misses.
var ErrProductNotFound = errors.New("catalog: product not found")

// Catalog is an immutable, validated set of products keyed by id.
type Catalog struct {
	byID  map[string]domain.ProductConfig
	order []string
}

// Load parses and validates the embedded product table.
func Load(policyNames []string) (*Catalog, error) {
	return parse(embeddedProducts, policyNames)
}

// LoadFile parses and validates a catalog from an external JSON file,
// overriding the embedded table.
func LoadFile(path string, policyNames []string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return parse(data, policyNames)
}

func parse(data []byte, policyNames []string) (*Catalog, error) {
	var products []domain.ProductConfig
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: no products defined", ErrInvalidCatalog)
	}

	knownPolicies := make(map[string]struct{}, len(policyNames))
	for _, name := range policyNames {
		knownPolicies[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	c := &Catalog{byID: make(map[string]domain.ProductConfig, len(products))}
	for idx, product := range products {
		id := strings.TrimSpace(product.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: product at index %d has no id", ErrInvalidCatalog, idx)
		}
		if _, exists := c.byID[id]; exists {
			return nil, fmt.Errorf("%w: duplicate product id %q", ErrInvalidCatalog, id)
		}
		if strings.TrimSpace(product.Name) == "" {
			return nil, fmt.Errorf("%w: product %q has no name", ErrInvalidCatalog, id)
		}
		if product.Price < 0 {
			return nil, fmt.Errorf("%w: product %q has negative price", ErrInvalidCatalog, id)
		}
		if product.OriginalPrice > 0 && product.OriginalPrice < product.Price {
			return nil, fmt.Errorf("%w: product %q original price below current price", ErrInvalidCatalog, id)
		}
		if product.ChildPrice < 0 {
			return nil, fmt.Errorf("%w: product %q has negative child price", ErrInvalidCatalog, id)
		}
		if policy := strings.ToLower(strings.TrimSpace(product.PricingPolicy)); policy != "" && len(knownPolicies) > 0 {
			if _, ok := knownPolicies[policy]; !ok {
				return nil, fmt.Errorf("%w: product %q references unknown pricing policy %q", ErrInvalidCatalog, id, product.PricingPolicy)
			}
		}

		product.ID = id
		product.Variant = product.NormalisedVariant()
		c.byID[id] = product
		c.order = append(c.order, id)
	}

	return c, nil
}

// Get returns the product with the given id.
func (c *Catalog) Get(id string) (domain.ProductConfig, error) {
	product, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.ProductConfig{}, fmt.Errorf("%w: %q", ErrProductNotFound, id)
	}
	return product, nil
}

// List returns the enabled products in catalog order.
func (c *Catalog) List() []domain.ProductConfig {
	products := make([]domain.ProductConfig, 0, len(c.order))
	for _, id := range c.order {
		product := c.byID[id]
		if product.Disabled {
			continue
		}
		products = append(products, product)
	}
	return products
}

// ByCategory groups the enabled products by category, categories sorted.
func (c *Catalog) ByCategory() map[string][]domain.ProductConfig {
	grouped := make(map[string][]domain.ProductConfig)
	for _, product := range c.List() {
		grouped[product.Category] = append(grouped[product.Category], product)
	}
	for _, products := range grouped {
		sort.SliceStable(products, func(i, j int) bool { return products[i].Price < products[j].Price })
	}
	return grouped
}

// Len reports the number of products, including disabled ones.
func (c *Catalog) Len() int { return len(c.byID) }
