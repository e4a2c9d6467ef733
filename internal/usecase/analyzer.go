package usecase

import (
	"strings"

	"payment-reconciliation/internal/domain"
)

// Signal priorities, strongest first.
const (
	priorityPaymentID = iota + 1
	priorityRegistrationID
	priorityAmount
	priorityFee
	priorityEmail
	priorityName
)

// ConfidenceAnalyzer scores how well a registration agrees with a payment.
type ConfidenceAnalyzer struct {
	weights         domain.WeightTable
	amountTolerance domain.Tolerance
	feeTolerance    domain.Tolerance
}

// NewConfidenceAnalyzer creates an analyzer from the tunable settings.
func NewConfidenceAnalyzer(settings domain.Settings) *ConfidenceAnalyzer {
	return &ConfidenceAnalyzer{
		weights:         settings.Weights,
		amountTolerance: settings.AmountTolerance,
		feeTolerance:    settings.FeeTolerance,
	}
}

// Analyze compares a payment with one candidate registration. Nothing is
// scored unless a payment identifier appears verbatim in the registration.
func (a *ConfidenceAnalyzer) Analyze(payment, registration domain.Document) domain.Analysis {
	result := domain.Analysis{RegistrationID: registration.ID(), Matches: []domain.MatchDetail{}}
	if registration == nil {
		return result
	}

	idMatches := a.paymentIDSignals(payment, registration)
	if len(idMatches) == 0 {
		return result
	}

	matches := idMatches
	matches = append(matches, a.registrationIDSignals(payment, registration)...)
	if m, ok := a.moneySignal(payment, registration, paymentAmountPaths, registrationAmountPaths,
		a.amountTolerance, domain.SignalAmount, a.weights.Amount, priorityAmount); ok {
		matches = append(matches, m)
	}
	if m, ok := a.moneySignal(payment, registration, paymentFeePaths, registrationFeePaths,
		a.feeTolerance, domain.SignalFee, a.weights.Fee, priorityFee); ok {
		matches = append(matches, m)
	}
	if m, ok := a.emailSignal(payment, registration); ok {
		matches = append(matches, m)
	}
	if m, ok := a.nameSignal(payment, registration); ok {
		matches = append(matches, m)
	}

	result.Matches = matches
	result.IsValid = true
	result.Confidence = Confidence(matches)
	return result
}

// Confidence sums the weights of distinct (signal, value) pairs, capped.
func Confidence(matches []domain.MatchDetail) int {
	seen := make(map[string]bool)
	total := 0
	for _, m := range matches {
		key := string(m.Signal) + ":" + m.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		total += m.Weight
	}
	if total > domain.MaxConfidence {
		return domain.MaxConfidence
	}
	return total
}

func (a *ConfidenceAnalyzer) paymentIDSignals(payment, registration domain.Document) []domain.MatchDetail {
	var out []domain.MatchDetail
	for _, id := range PaymentIdentifiers(payment) {
		paths := paymentIDPathsHolding(registration, id.Value)
		if len(paths) == 0 {
			continue
		}
		out = append(out, domain.MatchDetail{
			Signal:            domain.SignalPaymentID,
			PaymentField:      id.Field,
			RegistrationPaths: paths,
			Value:             id.Value,
			Weight:            a.weights.PaymentID,
			Priority:          priorityPaymentID,
		})
	}
	return out
}

func (a *ConfidenceAnalyzer) registrationIDSignals(payment, registration domain.Document) []domain.MatchDetail {
	var out []domain.MatchDetail
	for _, id := range RegistrationIdentifiers(payment) {
		var paths []string
		for _, p := range registrationIDPaths {
			if registration.String(p) == id.Value {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			continue
		}
		out = append(out, domain.MatchDetail{
			Signal:            domain.SignalRegistrationID,
			PaymentField:      id.Field,
			RegistrationPaths: paths,
			Value:             id.Value,
			Weight:            a.weights.RegistrationID,
			Priority:          priorityRegistrationID,
		})
	}
	return out
}

func (a *ConfidenceAnalyzer) moneySignal(payment, registration domain.Document, paymentPaths, registrationPaths []amountPath,
	tol domain.Tolerance, signal domain.SignalType, weight, priority int) (domain.MatchDetail, bool) {
	p, ok := firstAmount(payment, paymentPaths)
	if !ok {
		return domain.MatchDetail{}, false
	}
	var agreed []string
	for _, r := range amountsAt(registration, registrationPaths) {
		if tol.Within(p.value, r.value) {
			agreed = append(agreed, r.path)
		}
	}
	if len(agreed) == 0 {
		return domain.MatchDetail{}, false
	}
	return domain.MatchDetail{
		Signal:            signal,
		PaymentField:      p.path,
		RegistrationPaths: agreed,
		Value:             "$" + p.value.StringFixed(2),
		Weight:            weight,
		Priority:          priority,
	}, true
}

func (a *ConfidenceAnalyzer) emailSignal(payment, registration domain.Document) (domain.MatchDetail, bool) {
	email, field := firstString(payment, paymentEmailPaths)
	if email == "" {
		return domain.MatchDetail{}, false
	}
	want := normalizeEmail(email)
	var agreed []string
	for _, p := range registrationEmailPaths {
		if v := registration.String(p); v != "" && normalizeEmail(v) == want {
			agreed = append(agreed, p)
		}
	}
	if len(agreed) == 0 {
		return domain.MatchDetail{}, false
	}
	return domain.MatchDetail{
		Signal:            domain.SignalEmail,
		PaymentField:      field,
		RegistrationPaths: agreed,
		Value:             want,
		Weight:            a.weights.Email,
		Priority:          priorityEmail,
	}, true
}

func (a *ConfidenceAnalyzer) nameSignal(payment, registration domain.Document) (domain.MatchDetail, bool) {
	name, field := firstString(payment, paymentNamePaths)
	if name == "" {
		return domain.MatchDetail{}, false
	}
	paymentName := strings.ToLower(strings.TrimSpace(name))
	var agreed []string
	for _, p := range registrationFullNamePaths {
		if v := registration.String(p); v != "" && strings.ToLower(v) == paymentName {
			agreed = append(agreed, p)
		}
	}
	for _, contact := range registrationContactPaths {
		first := strings.ToLower(registration.String(contact + ".firstName"))
		last := strings.ToLower(registration.String(contact + ".lastName"))
		if first == "" || last == "" {
			continue
		}
		if strings.Contains(paymentName, first) && strings.Contains(paymentName, last) {
			agreed = append(agreed, contact+".firstName+lastName")
		}
	}
	if len(agreed) == 0 {
		return domain.MatchDetail{}, false
	}
	return domain.MatchDetail{
		Signal:            domain.SignalName,
		PaymentField:      field,
		RegistrationPaths: agreed,
		Value:             name,
		Weight:            a.weights.Name,
		Priority:          priorityName,
	}, true
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
