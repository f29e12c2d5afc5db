// Package contract renders the service contract the customer must accept
// before paying. Rendering is a pure function of customer, product, and
// pricing; the checkout flow gates step advancement on acceptance of exactly
// this text.
package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/visa2any/checkout-api/internal/domain"
)

// Render produces the display text of the service contract.
func Render(customer domain.CustomerData, product domain.ProductConfig, pricing domain.PricingResult, adults, children int, issuedAt time.Time) string {
	var b strings.Builder

	b.WriteString("CONTRATO DE PRESTAÇÃO DE SERVIÇOS\n\n")
	fmt.Fprintf(&b, "Contratante: %s\n", strings.TrimSpace(customer.Name))
	fmt.Fprintf(&b, "CPF: %s\n", strings.TrimSpace(customer.CPF))
	fmt.Fprintf(&b, "E-mail: %s\n\n", strings.TrimSpace(customer.Email))

	fmt.Fprintf(&b, "Serviço contratado: %s\n", product.Name)
	if desc := strings.TrimSpace(product.Description); desc != "" {
		fmt.Fprintf(&b, "Descrição: %s\n", desc)
	}
	fmt.Fprintf(&b, "Participantes: %d adulto(s)", adults)
	if children > 0 {
		fmt.Fprintf(&b, " e %d criança(s)", children)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Valor total: R$ %.2f\n", pricing.Total)
	if pricing.Savings > 0 {
		fmt.Fprintf(&b, "Economia aplicada: R$ %.2f\n", pricing.Savings)
	}
	fmt.Fprintf(&b, "Parcelamento: até %dx de R$ %.2f\n\n", pricing.InstallmentCount, pricing.InstallmentValue)

	fmt.Fprintf(&b, "Emitido em %s.\n", issuedAt.UTC().Format("02/01/2006"))
	b.WriteString("A aceitação deste contrato é condição para o pagamento.\n")

	return b.String()
}
