package checkout

import "github.com/visa2any/checkout-api/internal/domain"

// Reduce applies an action to a state snapshot and returns the next state.
// It is total (defined for every state/action pair), synchronous, and free of
// side effects; unknown actions return the state unchanged. Quantity clamps
// live here so no reachable state ever violates adults >= 1 or children >= 0.
func Reduce(state domain.CheckoutState, action Action) domain.CheckoutState {
	switch a := action.(type) {
	case SetStep:
		state.Step = a.Step
	case SetAdults:
		state.Adults = a.Count
		if state.Adults < 1 {
			state.Adults = 1
		}
	case SetChildren:
		state.Children = a.Count
		if state.Children < 0 {
			state.Children = 0
		}
	case SelectProduct:
		state.SelectedProduct = a.Product
	case UpdateCustomer:
		state.CustomerData = a.Patch.Apply(state.CustomerData)
	case SetProcessing:
		state.IsProcessing = a.Processing
	case SetComplete:
		state.IsComplete = a.Complete
	case SetError:
		state.Error = a.Message
	case SetPaymentMethod:
		state.PaymentMethod = a.Method
	case Reset:
		return domain.InitialCheckoutState()
	}
	return state
}
