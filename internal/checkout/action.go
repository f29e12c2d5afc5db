package checkout

import "github.com/visa2any/checkout-api/internal/domain"

// Action is the closed set of state transitions the reducer understands.
// Every mutation of checkout state goes through one of these; nothing else
// may touch the state record.
type Action interface {
	isAction()
}

// SetStep moves the wizard to the given step unconditionally. Gating belongs
// to the flow, not the reducer.
type SetStep struct {
	Step domain.Step
}

// SetAdults sets the adult count, clamped to a minimum of one.
type SetAdults struct {
	Count int
}

// SetChildren sets the child count, clamped to a minimum of zero.
type SetChildren struct {
	Count int
}

// SelectProduct replaces the selected product.
type SelectProduct struct {
	Product *domain.ProductConfig
}

// UpdateCustomer shallow-merges the patch into the customer data.
type UpdateCustomer struct {
	Patch CustomerPatch
}

// SetProcessing toggles the payment-in-flight flag.
type SetProcessing struct {
	Processing bool
}

// SetComplete toggles the completed flag.
type SetComplete struct {
	Complete bool
}

// SetError replaces the user-visible error message; empty clears it.
type SetError struct {
	Message string
}

// SetPaymentMethod replaces the chosen payment method; empty clears it.
type SetPaymentMethod struct {
	Method domain.PaymentMethod
}

// Reset restores the constant initial state in full.
type Reset struct{}

func (SetStep) isAction()          {}
func (SetAdults) isAction()        {}
func (SetChildren) isAction()      {}
func (SelectProduct) isAction()    {}
func (UpdateCustomer) isAction()   {}
func (SetProcessing) isAction()    {}
func (SetComplete) isAction()      {}
func (SetError) isAction()         {}
func (SetPaymentMethod) isAction() {}
func (Reset) isAction()            {}

// CustomerPatch carries the fields of a partial customer-data update. Nil
// pointers leave the corresponding field untouched.
type CustomerPatch struct {
	Name             *string `json:"name,omitempty"`
	Email            *string `json:"email,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	PhoneCountry     *string `json:"phoneCountry,omitempty"`
	CPF              *string `json:"cpf,omitempty"`
	TargetCountry    *string `json:"targetCountry,omitempty"`
	Terms            *bool   `json:"terms,omitempty"`
	Newsletter       *bool   `json:"newsletter,omitempty"`
	ContractAccepted *bool   `json:"contractAccepted,omitempty"`
	Signature        *string `json:"signature,omitempty"`
}

// Apply merges the patch into a copy of the customer data.
func (p CustomerPatch) Apply(data domain.CustomerData) domain.CustomerData {
	if p.Name != nil {
		data.Name = *p.Name
	}
	if p.Email != nil {
		data.Email = *p.Email
	}
	if p.Phone != nil {
		data.Phone = *p.Phone
	}
	if p.PhoneCountry != nil {
		data.PhoneCountry = *p.PhoneCountry
	}
	if p.CPF != nil {
		data.CPF = *p.CPF
	}
	if p.TargetCountry != nil {
		data.TargetCountry = *p.TargetCountry
	}
	if p.Terms != nil {
		data.Terms = *p.Terms
	}
	if p.Newsletter != nil {
		data.Newsletter = *p.Newsletter
	}
	if p.ContractAccepted != nil {
		data.ContractAccepted = *p.ContractAccepted
	}
	if p.Signature != nil {
		data.Signature = *p.Signature
	}
	return data
}
