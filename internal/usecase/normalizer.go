package usecase

import (
	"github.com/shopspring/decimal"

	"payment-reconciliation/internal/domain"
)

// ExtractIdentifiers returns every business identifier on a payment, in
// priority order, each value at most once.
func ExtractIdentifiers(payment domain.Document) []domain.Identifier {
	seen := make(map[string]bool)
	var ids []domain.Identifier
	for _, p := range paymentIdentifierPaths {
		v := payment.String(p.path)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		ids = append(ids, domain.Identifier{Value: v, Field: p.path, Class: p.class})
	}
	return ids
}

// PaymentIdentifiers keeps only the payment-id class.
func PaymentIdentifiers(payment domain.Document) []domain.Identifier {
	return filterClass(ExtractIdentifiers(payment), domain.ClassPayment)
}

// RegistrationIdentifiers keeps only the registration-id class.
func RegistrationIdentifiers(payment domain.Document) []domain.Identifier {
	return filterClass(ExtractIdentifiers(payment), domain.ClassRegistration)
}

func filterClass(ids []domain.Identifier, class domain.IdentifierClass) []domain.Identifier {
	var out []domain.Identifier
	for _, id := range ids {
		if id.Class == class {
			out = append(out, id)
		}
	}
	return out
}

// locatePaymentID returns the first registration path holding value.
func locatePaymentID(registration domain.Document, value string) (string, bool) {
	for _, path := range registrationPaymentIDPaths {
		if registration.String(path) == value {
			return path, true
		}
	}
	return "", false
}

// paymentIDPathsHolding returns every registration path holding value.
func paymentIDPathsHolding(registration domain.Document, value string) []string {
	var out []string
	for _, path := range registrationPaymentIDPaths {
		if registration.String(path) == value {
			out = append(out, path)
		}
	}
	return out
}

type located struct {
	value decimal.Decimal
	path  string
}

// firstAmount returns the first present, non-zero amount.
func firstAmount(doc domain.Document, paths []amountPath) (located, bool) {
	all := amountsAt(doc, paths)
	if len(all) == 0 {
		return located{}, false
	}
	return all[0], true
}

// amountsAt returns every present, non-zero amount in path order,
// converted to major units.
func amountsAt(doc domain.Document, paths []amountPath) []located {
	var out []located
	for _, p := range paths {
		raw, ok := doc.Lookup(p.path)
		if !ok || !domain.IsPresent(raw) {
			continue
		}
		d, ok := domain.ToDecimal(raw)
		if !ok || d.IsZero() {
			continue
		}
		if p.minorUnits {
			d = domain.FromMinorUnits(d)
		}
		out = append(out, located{value: d, path: p.path})
	}
	return out
}

func firstString(doc domain.Document, paths []string) (string, string) {
	for _, p := range paths {
		if v := doc.String(p); v != "" {
			return v, p
		}
	}
	return "", ""
}
