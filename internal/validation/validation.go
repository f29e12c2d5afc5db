// Package validation implements the field-level validators for checkout
// customer data: CPF checksum, email shape, phone digit counts, and the
// aggregate error map gating step advancement. Validators never block typing;
// they only report.
package validation

import (
	"strings"

	"github.com/visa2any/checkout-api/internal/domain"
)

const (
	minNameLength = 3

	// Brazilian numbers carry 10 digits (landline) or 11 (mobile) including
	// the area code. International numbers fall back to a looser 8-15 rule.
	minPhoneDigitsBR   = 10
	maxPhoneDigitsBR   = 11
	minPhoneDigitsIntl = 8
	maxPhoneDigitsIntl = 15

	brazilDialingCode = "+55"
)

// FieldErrors maps a customer-data field name to a human-readable message for
// every field currently failing validation.
type FieldErrors map[string]string

// Result aggregates the error map and the derived validity flag.
type Result struct {
	Errors  FieldErrors
	IsValid bool
}

// Validate recomputes the full error map for the supplied customer data.
// Contract acceptance is a separate, later gate owned by the checkout flow
// and is deliberately not part of this map.
func Validate(data domain.CustomerData) Result {
	errs := make(FieldErrors)

	if len(strings.TrimSpace(data.Name)) < minNameLength {
		errs["name"] = "informe o nome completo"
	}
	if !IsValidEmail(data.Email) {
		errs["email"] = "e-mail inválido"
	}
	if !IsValidPhoneForCountry(data.Phone, data.PhoneCountry) {
		errs["phone"] = "telefone inválido"
	}
	if !IsValidCPF(data.CPF) {
		errs["cpf"] = "CPF inválido"
	}
	if strings.TrimSpace(data.TargetCountry) == "" {
		errs["targetCountry"] = "selecione o país de destino"
	}
	if !data.Terms {
		errs["terms"] = "é necessário aceitar os termos"
	}

	return Result{Errors: errs, IsValid: len(errs) == 0}
}

// IsValidEmail accepts the conventional local@domain.tld shape: non-empty
// segments around exactly one @ and at least one dot inside the domain.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}
	host := email[at+1:]
	dot := strings.Index(host, ".")
	if dot <= 0 || dot == len(host)-1 {
		return false
	}
	return true
}

// IsValidPhone applies the canonical Brazilian rule: 10 or 11 digits after
// stripping formatting.
func IsValidPhone(phone string) bool {
	digits := len(digitsOf(phone))
	return digits >= minPhoneDigitsBR && digits <= maxPhoneDigitsBR
}

// IsValidPhoneForCountry picks the digit-count rule by dialing code: the
// strict Brazilian rule for +55 (or when no country is declared), the looser
// international rule otherwise.
func IsValidPhoneForCountry(phone, phoneCountry string) bool {
	country := strings.TrimSpace(phoneCountry)
	if country == "" || country == brazilDialingCode {
		return IsValidPhone(phone)
	}
	digits := len(digitsOf(phone))
	return digits >= minPhoneDigitsIntl && digits <= maxPhoneDigitsIntl
}

// IsValidCPF implements the official Brazilian CPF checksum: eleven digits,
// not all identical, with both weighted check digits matching.
func IsValidCPF(cpf string) bool {
	digits := digitsOf(cpf)
	if len(digits) != 11 {
		return false
	}

	allSame := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}

	if cpfCheckDigit(digits[:9], 10) != digits[9] {
		return false
	}
	return cpfCheckDigit(digits[:10], 11) == digits[10]
}

// cpfCheckDigit computes a CPF verification digit over the given prefix with
// descending weights starting at startWeight. Remainders of 10 or 11 map to 0.
func cpfCheckDigit(digits []int, startWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (startWeight - i)
	}
	remainder := (sum * 10) % 11
	if remainder >= 10 {
		remainder = 0
	}
	return remainder
}

func digitsOf(s string) []int {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	return digits
}
