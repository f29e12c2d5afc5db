package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/visa2any/checkout-api/internal/domain"
)

// InstallmentCount is the fixed number of installments quoted on every total.
const InstallmentCount = 12

var (
	// ErrInvalidInput signals negative quantities or a malformed product.
	ErrInvalidInput = errors.New("pricing: invalid input")
	// ErrUnknownPolicy is returned when a product references a policy that
	// was never registered.
	ErrUnknownPolicy = errors.New("pricing: unknown policy")
)

// Policy computes an itemised price breakdown for a product and party
// composition. Implementations must be pure: identical inputs always produce
// identical results and no side effects.
type Policy interface {
	Name() string
	Price(product *domain.ProductConfig, adults, children int, method domain.PaymentMethod) (domain.PricingResult, error)
}

// Registry holds the named pricing policies known to the system. The catalog
// declares per product which policy applies; nothing is ever guessed from the
// price data itself.
type Registry struct {
	mu          sync.RWMutex
	policies    map[string]Policy
	defaultName string
}

// NewRegistry constructs a registry pre-populated with the built-in policies,
// defaulting to the flat group-discount policy.
func NewRegistry() *Registry {
	r := &Registry{policies: make(map[string]Policy)}
	r.Register(FlatGroupPolicy{})
	r.Register(TieredGroupPolicy{})
	r.Register(PixPromoPolicy{})
	r.defaultName = PolicyFlatGroup
	return r
}

// Register adds or replaces a policy under its own name.
func (r *Registry) Register(p Policy) {
	if p == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return
	}
	r.mu.Lock()
	r.policies[name] = p
	r.mu.Unlock()
}

// Resolve returns the policy registered under name, falling back to the
// default policy when name is empty.
func (r *Registry) Resolve(name string) (Policy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.defaultName
	}
	r.mu.RLock()
	policy, ok := r.policies[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return policy, nil
}

// ForProduct resolves the policy the product declares.
func (r *Registry) ForProduct(product *domain.ProductConfig) (Policy, error) {
	if product == nil {
		return r.Resolve("")
	}
	return r.Resolve(product.PricingPolicy)
}

// Names lists the registered policy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Compute prices a product with the default flat group-discount policy. It is
// the freestanding entry point callable from any rendering layer.
func Compute(product *domain.ProductConfig, adults, children int) (domain.PricingResult, error) {
	return FlatGroupPolicy{}.Price(product, adults, children, "")
}

func validateInputs(product *domain.ProductConfig, adults, children int) error {
	if adults < 0 {
		return fmt.Errorf("%w: adults must be non-negative", ErrInvalidInput)
	}
	if children < 0 {
		return fmt.Errorf("%w: children must be non-negative", ErrInvalidInput)
	}
	if product != nil {
		if product.Price < 0 {
			return fmt.Errorf("%w: product %s has negative price", ErrInvalidInput, product.ID)
		}
		if product.OriginalPrice > 0 && product.OriginalPrice < product.Price {
			return fmt.Errorf("%w: product %s original price below current price", ErrInvalidInput, product.ID)
		}
	}
	return nil
}

func emptyResult() domain.PricingResult {
	return domain.PricingResult{InstallmentCount: InstallmentCount}
}

func finalise(result domain.PricingResult) domain.PricingResult {
	result.InstallmentCount = InstallmentCount
	result.InstallmentValue = result.Total / InstallmentCount
	result.Savings = result.Discount + result.GroupDiscount + result.ChildDiscount + result.PaymentDiscount
	return result
}
