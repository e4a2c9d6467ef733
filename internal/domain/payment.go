package domain

import "strings"

// PaymentOrigin tags which gateway shape a payment record follows.
type PaymentOrigin string

const (
	OriginStripe  PaymentOrigin = "stripe"
	OriginSquare  PaymentOrigin = "square"
	OriginGeneric PaymentOrigin = "generic"
)

// OriginalDataField holds the gateway's native field names.
const OriginalDataField = "originalData"

// DetectOrigin classifies a payment by its explicit source, falling back
// to gateway-native keys and identifier prefixes.
func DetectOrigin(payment Document) PaymentOrigin {
	switch strings.ToLower(payment.String("source")) {
	case "stripe":
		return OriginStripe
	case "square":
		return OriginSquare
	}
	switch {
	case payment.Has(OriginalDataField + ".PaymentIntent ID"),
		payment.Has(OriginalDataField + ".payment_intent"),
		strings.HasPrefix(payment.String("paymentId"), "pi_"),
		strings.HasPrefix(payment.String("paymentId"), "ch_"):
		return OriginStripe
	case payment.Has(OriginalDataField + ".Payment ID"),
		payment.Has(OriginalDataField + ".amountMoney"):
		return OriginSquare
	default:
		return OriginGeneric
	}
}
