package pricing

import (
	"github.com/visa2any/checkout-api/internal/domain"
)

// Policy names accepted in catalog entries.
const (
	PolicyFlatGroup   = "flat-group"
	PolicyTieredGroup = "tiered-group"
	PolicyPixPromo    = "pix-promo"
)

const (
	flatGroupRate     = 0.10
	tieredRateThreeUp = 0.10
	tieredRateFiveUp  = 0.15
	pixPromoChildRate = 0.70
	pixPaymentRate    = 0.05
)

// FlatGroupPolicy applies a flat 10% group discount on the blended subtotal
// whenever more than one adult travels.
type FlatGroupPolicy struct{}

func (FlatGroupPolicy) Name() string { return PolicyFlatGroup }

func (FlatGroupPolicy) Price(product *domain.ProductConfig, adults, children int, _ domain.PaymentMethod) (domain.PricingResult, error) {
	if err := validateInputs(product, adults, children); err != nil {
		return domain.PricingResult{}, err
	}
	if product == nil {
		return emptyResult(), nil
	}

	basePrice := product.Price
	childPrice := product.ChildUnitPrice()

	adultTotal := basePrice * float64(adults)
	childTotal := childPrice * float64(children)
	subtotal := adultTotal + childTotal

	result := domain.PricingResult{
		Subtotal: subtotal,
		Discount: (product.ListPrice() - basePrice) * float64(adults),
	}
	if adults > 1 {
		result.GroupDiscount = subtotal * flatGroupRate
	}
	if product.ChildDiscount {
		result.ChildDiscount = (basePrice - childPrice) * float64(children)
	}
	result.Total = subtotal - result.GroupDiscount
	return finalise(result), nil
}

// TieredGroupPolicy discounts only the adult portion of the subtotal: 10%
// from the third adult, 15% from the fifth.
type TieredGroupPolicy struct{}

func (TieredGroupPolicy) Name() string { return PolicyTieredGroup }

func (TieredGroupPolicy) Price(product *domain.ProductConfig, adults, children int, _ domain.PaymentMethod) (domain.PricingResult, error) {
	if err := validateInputs(product, adults, children); err != nil {
		return domain.PricingResult{}, err
	}
	if product == nil {
		return emptyResult(), nil
	}

	basePrice := product.Price
	childPrice := product.ChildUnitPrice()

	adultTotal := basePrice * float64(adults)
	childTotal := childPrice * float64(children)
	subtotal := adultTotal + childTotal

	var rate float64
	switch {
	case adults >= 5:
		rate = tieredRateFiveUp
	case adults >= 3:
		rate = tieredRateThreeUp
	}

	result := domain.PricingResult{
		Subtotal:      subtotal,
		Discount:      (product.ListPrice() - basePrice) * float64(adults),
		GroupDiscount: adultTotal * rate,
	}
	if product.ChildDiscount {
		result.ChildDiscount = (basePrice - childPrice) * float64(children)
	}
	result.Total = subtotal - result.GroupDiscount
	return finalise(result), nil
}

// PixPromoPolicy prices children at 30% off the adult price and grants an
// additional 5% payment discount when paying via PIX. No group discount.
type PixPromoPolicy struct{}

func (PixPromoPolicy) Name() string { return PolicyPixPromo }

func (PixPromoPolicy) Price(product *domain.ProductConfig, adults, children int, method domain.PaymentMethod) (domain.PricingResult, error) {
	if err := validateInputs(product, adults, children); err != nil {
		return domain.PricingResult{}, err
	}
	if product == nil {
		return emptyResult(), nil
	}

	basePrice := product.Price
	childPrice := product.ChildPrice
	if childPrice <= 0 {
		childPrice = basePrice * pixPromoChildRate
	}

	adultTotal := basePrice * float64(adults)
	childTotal := childPrice * float64(children)
	subtotal := adultTotal + childTotal

	result := domain.PricingResult{
		Subtotal:      subtotal,
		Discount:      (product.ListPrice() - basePrice) * float64(adults),
		ChildDiscount: (basePrice - childPrice) * float64(children),
	}
	if method == domain.PaymentMethodPIX {
		result.PaymentDiscount = subtotal * pixPaymentRate
	}
	result.Total = subtotal - result.PaymentDiscount
	return finalise(result), nil
}
