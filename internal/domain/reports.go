package domain

// RematchSummary provides the counts of a batch rematch run.
type RematchSummary struct {
	RunID     string         `json:"runId" yaml:"runId"`
	Processed int            `json:"processed" yaml:"processed"`
	Matched   int            `json:"matched" yaml:"matched"`
	Cleared   int            `json:"cleared" yaml:"cleared"`
	Conflicts int            `json:"conflicts" yaml:"conflicts"`
	Skipped   int            `json:"skipped" yaml:"skipped"`
	Failed    int            `json:"failed" yaml:"failed"`
	ByMethod  map[string]int `json:"byMethod" yaml:"byMethod"`
	Resumed   bool           `json:"resumed" yaml:"resumed"`
}

// ResolutionAction classifies what happened to one quarantine record.
type ResolutionAction string

const (
	ActionResolved     ResolutionAction = "RESOLVED"
	ActionDryRun       ResolutionAction = "DRY_RUN"
	ActionManualReview ResolutionAction = "MANUAL_REVIEW"
	ActionNoMatch      ResolutionAction = "NO_MATCH"
	ActionSkipped      ResolutionAction = "SKIPPED"
	ActionError        ResolutionAction = "ERROR"
)

// ResolutionEntry is one line of the duplicate workflow's resolution log.
type ResolutionEntry struct {
	QuarantineID     string           `json:"quarantineId" yaml:"quarantineId"`
	PaymentReference string           `json:"paymentReference" yaml:"paymentReference"`
	Amount           string           `json:"amount,omitempty" yaml:"amount,omitempty"`
	Action           ResolutionAction `json:"action" yaml:"action"`
	Details          string           `json:"details" yaml:"details"`
	StagingIDs       []string         `json:"stagingIds,omitempty" yaml:"stagingIds,omitempty"`
	ReviewIDs        []string         `json:"reviewIds,omitempty" yaml:"reviewIds,omitempty"`
	RegistrationIDs  []string         `json:"registrationIds,omitempty" yaml:"registrationIds,omitempty"`
}

// DuplicateSummary provides high-level statistics of a duplicate workflow run.
type DuplicateSummary struct {
	ErrorPaymentsFound    int `json:"errorPaymentsFound" yaml:"errorPaymentsFound"`
	DuplicatesIdentified  int `json:"duplicatesIdentified" yaml:"duplicatesIdentified"`
	DuplicatesResolved    int `json:"duplicatesResolved" yaml:"duplicatesResolved"`
	ImportPaymentsUpdated int `json:"importPaymentsUpdated" yaml:"importPaymentsUpdated"`
	ErrorPaymentsDeleted  int `json:"errorPaymentsDeleted" yaml:"errorPaymentsDeleted"`
	ManualReview          int `json:"manualReview" yaml:"manualReview"`
	NoMatch               int `json:"noMatch" yaml:"noMatch"`
	Errors                int `json:"errors" yaml:"errors"`
}

// DuplicateReport is the top-level structure returned by the duplicate workflow.
type DuplicateReport struct {
	RunID   string            `json:"runId" yaml:"runId"`
	DryRun  bool              `json:"dryRun" yaml:"dryRun"`
	Summary DuplicateSummary  `json:"summary" yaml:"summary"`
	Log     []ResolutionEntry `json:"log" yaml:"log"`
}

// EntriesByAction groups the log by action, preserving order.
func (r DuplicateReport) EntriesByAction() map[ResolutionAction][]ResolutionEntry {
	out := make(map[ResolutionAction][]ResolutionEntry)
	for _, e := range r.Log {
		out[e.Action] = append(out[e.Action], e)
	}
	return out
}
