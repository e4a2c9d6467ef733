package domain

import "time"

// IdentifierClass separates identifiers that are interchangeable from
// those that are not.
type IdentifierClass string

const (
	ClassPayment      IdentifierClass = "payment"
	ClassOrder        IdentifierClass = "order"
	ClassRegistration IdentifierClass = "registration"
)

// Identifier is one business identifier found on a payment.
type Identifier struct {
	Value string          `json:"value" yaml:"value"`
	Field string          `json:"field" yaml:"field"`
	Class IdentifierClass `json:"class" yaml:"class"`
}

// MatchMethod records which identifier produced a strict match.
type MatchMethod string

const (
	MethodByPaymentID     MatchMethod = "by-payment-id"
	MethodByTransactionID MatchMethod = "by-transaction-id"
	MethodNone            MatchMethod = "none"
)

// SignalType is one independent agreement signal.
type SignalType string

const (
	SignalPaymentID      SignalType = "paymentId"
	SignalRegistrationID SignalType = "registrationId"
	SignalAmount         SignalType = "amount"
	SignalFee            SignalType = "processingFees"
	SignalEmail          SignalType = "email"
	SignalName           SignalType = "name"
)

// MatchDetail is one agreeing signal between a payment and a registration.
type MatchDetail struct {
	Signal            SignalType `json:"valueType" yaml:"valueType"`
	PaymentField      string     `json:"paymentField" yaml:"paymentField"`
	RegistrationPaths []string   `json:"registrationPaths" yaml:"registrationPaths"`
	Value             string     `json:"value" yaml:"value"`
	Weight            int        `json:"weight" yaml:"weight"`
	Priority          int        `json:"priority" yaml:"priority"`
}

// AsDocument renders the detail in the shape stored on payments.
func (m MatchDetail) AsDocument() map[string]any {
	paths := make([]any, len(m.RegistrationPaths))
	for i, p := range m.RegistrationPaths {
		paths[i] = p
	}
	return map[string]any{
		"valueType":         string(m.Signal),
		"paymentField":      m.PaymentField,
		"registrationPaths": paths,
		"value":             m.Value,
		"weight":            m.Weight,
		"priority":          m.Priority,
	}
}

// MatchResult is the transient outcome of one reconciliation attempt.
type MatchResult struct {
	PaymentID      string        `json:"paymentId" yaml:"paymentId"`
	Origin         PaymentOrigin `json:"origin" yaml:"origin"`
	RegistrationID string        `json:"registrationId,omitempty" yaml:"registrationId,omitempty"`
	Method         MatchMethod   `json:"matchMethod" yaml:"matchMethod"`
	MatchedField   string        `json:"matchedField,omitempty" yaml:"matchedField,omitempty"`
	Identifier     *Identifier   `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Confidence     int           `json:"matchConfidence" yaml:"matchConfidence"`
	Details        []MatchDetail `json:"matchDetails,omitempty" yaml:"matchDetails,omitempty"`
	Registration   Document      `json:"-" yaml:"-"`
}

// Matched reports whether a registration was found.
func (r MatchResult) Matched() bool {
	return r.RegistrationID != ""
}

// Analysis is the Confidence Analyzer output for one candidate.
type Analysis struct {
	RegistrationID string        `json:"registrationId" yaml:"registrationId"`
	Matches        []MatchDetail `json:"matches" yaml:"matches"`
	IsValid        bool          `json:"isValid" yaml:"isValid"`
	Confidence     int           `json:"confidence" yaml:"confidence"`
}

// Match fields written onto payments.
const (
	FieldMatchedRegistrationID = "matchedRegistrationId"
	FieldMatchMethod           = "matchMethod"
	FieldMatchedAt             = "matchedAt"
	FieldMatchedBy             = "matchedBy"
	FieldMatchConfidence       = "matchConfidence"
	FieldMatchDetails          = "matchDetails"
	FieldMatchedField          = "matchedField"
	FieldPreviousMatchCleared  = "previousMatchCleared"
	FieldMatchClearedAt        = "matchClearedAt"
	FieldMatchClearedReason    = "matchClearedReason"
)

// MatchFields lists every field Confirm writes and Clear removes.
var MatchFields = []string{
	FieldMatchedRegistrationID,
	FieldMatchMethod,
	FieldMatchedAt,
	FieldMatchedBy,
	FieldMatchConfidence,
	FieldMatchDetails,
	FieldMatchedField,
}

// Checkpoint is the resumable progress marker of a batch job.
type Checkpoint struct {
	Job             string    `json:"job" yaml:"job"`
	RunID           string    `json:"runId" yaml:"runId"`
	LastProcessedID string    `json:"lastProcessedId" yaml:"lastProcessedId"`
	UpdatedAt       time.Time `json:"updatedAt" yaml:"updatedAt"`
}
