package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/visa2any/checkout-api/internal/domain"
	"github.com/visa2any/checkout-api/internal/validation"
)

// ErrStepLocked is returned when a transition guard refuses to advance.
var ErrStepLocked = errors.New("checkout: step requirements not met")

// CanAdvance checks whether the current step's requirements are satisfied so
// the wizard may move to the next step. Gating lives here, in the
// orchestration layer: the reducer itself accepts any SetStep.
func CanAdvance(state domain.CheckoutState) error {
	switch state.Step {
	case domain.StepProduct:
		// Product confirmation always passes; quantity clamps are enforced
		// by the reducer.
		return nil
	case domain.StepCustomer:
		if state.Adults < 1 {
			return fmt.Errorf("%w: at least one adult is required", ErrStepLocked)
		}
		return nil
	case domain.StepContract:
		result := validation.Validate(state.CustomerData)
		if !result.IsValid {
			return fmt.Errorf("%w: customer data is incomplete", ErrStepLocked)
		}
		return nil
	default:
		return fmt.Errorf("%w: no step after payment", ErrStepLocked)
	}
}

// CanSubmit checks the final-submission gate: contract accepted, a signature
// matching the declared name, and a chosen payment method.
func CanSubmit(state domain.CheckoutState) error {
	if state.Step != domain.StepPayment {
		return fmt.Errorf("%w: submission only allowed at the payment step", ErrStepLocked)
	}
	if state.SelectedProduct == nil {
		return fmt.Errorf("%w: no product selected", ErrStepLocked)
	}
	if result := validation.Validate(state.CustomerData); !result.IsValid {
		return fmt.Errorf("%w: customer data is incomplete", ErrStepLocked)
	}
	if !state.CustomerData.ContractAccepted {
		return fmt.Errorf("%w: contract not accepted", ErrStepLocked)
	}
	if !signatureMatches(state.CustomerData.Signature, state.CustomerData.Name) {
		return fmt.Errorf("%w: signature does not match the declared name", ErrStepLocked)
	}
	if state.PaymentMethod == "" {
		return fmt.Errorf("%w: payment method not selected", ErrStepLocked)
	}
	return nil
}

func signatureMatches(signature, name string) bool {
	sig := strings.ToLower(strings.Join(strings.Fields(signature), " "))
	declared := strings.ToLower(strings.Join(strings.Fields(name), " "))
	return sig != "" && sig == declared
}
