package domain

// PaymentMethod enumerates the payment instruments offered at the final step.
type PaymentMethod string

const (
	PaymentMethodPIX    PaymentMethod = "pix"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodBoleto PaymentMethod = "boleto"
)

// Known reports whether the method is one of the offered instruments.
func (m PaymentMethod) Known() bool {
	switch m {
	case PaymentMethodPIX, PaymentMethodCard, PaymentMethodBoleto:
		return true
	}
	return false
}

// Step identifies a position in the linear checkout wizard.
type Step int

const (
	// StepProduct confirms the selected product and party size.
	StepProduct Step = 1
	// StepCustomer collects personal data.
	StepCustomer Step = 2
	// StepContract reviews and accepts the generated service contract.
	StepContract Step = 3
	// StepPayment selects a payment method and submits.
	StepPayment Step = 4
)

// CustomerData is the form the shopper fills in. Validity is a derived
// property computed by the validation package; the struct may transiently
// hold invalid values while the user is typing.
type CustomerData struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PhoneCountry     string `json:"phoneCountry"`
	CPF              string `json:"cpf"`
	TargetCountry    string `json:"targetCountry"`
	Terms            bool   `json:"terms"`
	Newsletter       bool   `json:"newsletter"`
	ContractAccepted bool   `json:"contractAccepted"`
	Signature        string `json:"signature,omitempty"`
}

// CheckoutState is the full session snapshot. It transitions exclusively
// through the reducer in the checkout package.
type CheckoutState struct {
	Step            Step           `json:"step"`
	Adults          int            `json:"adults"`
	Children        int            `json:"children"`
	SelectedProduct *ProductConfig `json:"selectedProduct,omitempty"`
	CustomerData    CustomerData   `json:"customerData"`
	IsProcessing    bool           `json:"isProcessing"`
	IsComplete      bool           `json:"isComplete"`
	Error           string         `json:"error,omitempty"`
	PaymentMethod   PaymentMethod  `json:"paymentMethod,omitempty"`
}

// InitialCheckoutState returns the constant default state every session and
// reset starts from.
func InitialCheckoutState() CheckoutState {
	return CheckoutState{
		Step:     StepProduct,
		Adults:   1,
		Children: 0,
	}
}

// PricingResult is the itemised price breakdown derived from the selected
// product and party composition. It is recomputed on demand and never stored.
type PricingResult struct {
	Subtotal         float64 `json:"subtotal"`
	Discount         float64 `json:"discount"`
	GroupDiscount    float64 `json:"groupDiscount"`
	ChildDiscount    float64 `json:"childDiscount"`
	PaymentDiscount  float64 `json:"paymentDiscount,omitempty"`
	Total            float64 `json:"total"`
	Savings          float64 `json:"savings"`
	InstallmentValue float64 `json:"installmentValue"`
	InstallmentCount int     `json:"installmentCount"`
}
