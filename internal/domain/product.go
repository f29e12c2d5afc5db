package domain

import "strings"

// ProductVariant selects display styling for a product card. It never affects
// pricing math.
type ProductVariant string

const (
	VariantFree         ProductVariant = "free"
	VariantBasic        ProductVariant = "basic"
	VariantPremium      ProductVariant = "premium"
	VariantVIP          ProductVariant = "vip"
	VariantConsultation ProductVariant = "consultation"
	VariantDefault      ProductVariant = "default"
)

// KnownVariants lists the closed set of accepted product variants.
var KnownVariants = map[ProductVariant]struct{}{
	VariantFree:         {},
	VariantBasic:        {},
	VariantPremium:      {},
	VariantVIP:          {},
	VariantConsultation: {},
	VariantDefault:      {},
}

// ProductConfig describes a purchasable service package. Instances come from
// the catalog loaded at startup and are immutable for the duration of a
// checkout session. Prices are in BRL.
type ProductConfig struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Price         float64        `json:"price"`
	OriginalPrice float64        `json:"originalPrice,omitempty"`
	ChildPrice    float64        `json:"childPrice,omitempty"`
	ChildDiscount bool           `json:"childDiscount,omitempty"`
	Features      []string       `json:"features,omitempty"`
	Variant       ProductVariant `json:"variant,omitempty"`
	Category      string         `json:"category,omitempty"`
	PricingPolicy string         `json:"pricingPolicy,omitempty"`
	Popular       bool           `json:"popular,omitempty"`
	Disabled      bool           `json:"disabled,omitempty"`
}

// ListPrice returns the pre-discount reference price, defaulting to the
// current price when no original price is configured.
func (p ProductConfig) ListPrice() float64 {
	if p.OriginalPrice > 0 {
		return p.OriginalPrice
	}
	return p.Price
}

// ChildUnitPrice returns the explicit child price when configured, otherwise
// half the adult price.
func (p ProductConfig) ChildUnitPrice() float64 {
	if p.ChildPrice > 0 {
		return p.ChildPrice
	}
	return p.Price * 0.5
}

// NormalisedVariant maps unknown or empty variants to the default variant.
func (p ProductConfig) NormalisedVariant() ProductVariant {
	variant := ProductVariant(strings.ToLower(strings.TrimSpace(string(p.Variant))))
	if _, ok := KnownVariants[variant]; !ok {
		return VariantDefault
	}
	return variant
}
