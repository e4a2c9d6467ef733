package usecase

import "payment-reconciliation/internal/domain"

// Known field paths per concept, consulted in priority order. Every shape
// the engine recognises is listed here and nowhere else.

type identifierPath struct {
	path  string
	class domain.IdentifierClass
}

// paymentIdentifierPaths drives the normalizer. Position 0 is the
// canonical identifier; position 1 is only used when distinct from it,
// which the value-level dedup already guarantees.
var paymentIdentifierPaths = []identifierPath{
	{"paymentId", domain.ClassPayment},
	{"transactionId", domain.ClassPayment},
	{"originalData.PaymentIntent ID", domain.ClassPayment},
	{"originalData.payment_intent", domain.ClassPayment},
	{"originalData.Payment ID", domain.ClassPayment},
	{"originalData.metadata.paymentId", domain.ClassPayment},
	{"originalData.Order ID", domain.ClassOrder},
	{"originalData.orderId", domain.ClassOrder},
	{"originalData.metadata.registrationId", domain.ClassRegistration},
	{"originalData.metadata.registration_id", domain.ClassRegistration},
	{"originalData.registrationId (metadata)", domain.ClassRegistration},
	{"metadata.registrationId", domain.ClassRegistration},
}

// registrationPaymentIDPaths are the legacy locations where a registration
// records the payment that funded it.
var registrationPaymentIDPaths = []string{
	"stripePaymentIntentId",
	"squarePaymentId",
	"stripe_payment_intent_id",
	"square_payment_id",
	"registrationData.stripePaymentIntentId",
	"registrationData.squarePaymentId",
	"registrationData.stripe_payment_intent_id",
	"registrationData.square_payment_id",
	"paymentInfo.stripe_payment_intent_id",
	"paymentInfo.square_payment_id",
	"paymentData.transactionId",
	"paymentData.paymentId",
}

var registrationIDPaths = []string{
	"registrationId",
	"registrationData.registrationId",
	domain.IDField,
}

type amountPath struct {
	path       string
	minorUnits bool
}

var (
	paymentAmountPaths = []amountPath{
		{path: "amount"},
		{path: "grossAmount"},
	}
	registrationAmountPaths = []amountPath{
		{path: "totalAmountPaid"},
		{path: "totalAmount"},
	}
	paymentFeePaths = []amountPath{
		{path: "feeAmount"},
		{path: "originalData.Fee"},
		{path: "originalData.metadata.processing_fees"},
	}
	registrationFeePaths = []amountPath{
		{path: "stripeFee"},
		{path: "squareFee"},
	}
)

var (
	paymentEmailPaths = []string{
		"customerEmail",
		"originalData.Customer Email",
	}
	registrationEmailPaths = []string{
		"customerEmail",
		"bookingContact.email",
		"bookingContact.emailAddress",
		"registrationData.bookingContact.email",
		"registrationData.bookingContact.emailAddress",
	}
	paymentNamePaths = []string{
		"customerName",
		"originalData.Card Name",
	}
	registrationFullNamePaths = []string{
		"customerName",
		"primaryAttendee",
	}
	// registrationContactPaths hold firstName/lastName pairs.
	registrationContactPaths = []string{
		"bookingContact",
		"registrationData.bookingContact",
	}
)

// Quarantine and staging shapes used by the duplicate workflow.
type duplicateKey struct {
	name            string
	quarantinePaths []string
	stagingPaths    []string
}

var duplicateKeys = []duplicateKey{
	{
		name:            "paymentId",
		quarantinePaths: []string{"payment_id", "paymentId", "id"},
		stagingPaths:    []string{"payment_id", "paymentId", "id", "metadata.originalPaymentId"},
	},
	{
		name:            "stripeChargeId",
		quarantinePaths: []string{"stripe_charge_id", "stripeChargeId"},
		stagingPaths:    []string{"stripe_charge_id", "stripeChargeId", "metadata.stripeChargeId"},
	},
	{
		name:            "squarePaymentId",
		quarantinePaths: []string{"square_payment_id", "squarePaymentId"},
		stagingPaths:    []string{"square_payment_id", "squarePaymentId", "metadata.squarePaymentId"},
	},
	{
		name:            "referenceId",
		quarantinePaths: []string{"originalData.referenceId", "referenceId"},
		stagingPaths:    []string{"originalData.referenceId", "referenceId", "metadata.referenceId"},
	},
}

var quarantineAmountPaths = []amountPath{
	{path: "amount"},
	{path: "total_amount"},
	{path: "originalData.amountMoney.amount", minorUnits: true},
}

var stagingAmountPaths = []amountPath{
	{path: "amount"},
	{path: "grossAmount"},
	{path: "originalData.amountMoney.amount", minorUnits: true},
}

// stagingRegistrationRefPaths mark a staging record as already linked.
var stagingRegistrationRefPaths = []string{
	domain.FieldMatchedRegistrationID,
	"registrationId",
	"registration_id",
	"linkedRegistrationId",
}
