package domain

// WeightTable holds the per-signal weights of the confidence score.
type WeightTable struct {
	PaymentID      int `json:"paymentId" mapstructure:"payment_id"`
	RegistrationID int `json:"registrationId" mapstructure:"registration_id"`
	Amount         int `json:"amount" mapstructure:"amount"`
	Fee            int `json:"fee" mapstructure:"fee"`
	Email          int `json:"email" mapstructure:"email"`
	Name           int `json:"name" mapstructure:"name"`
}

// DefaultWeights is the hand-tuned table.
func DefaultWeights() WeightTable {
	return WeightTable{
		PaymentID:      50,
		RegistrationID: 30,
		Amount:         10,
		Fee:            5,
		Email:          3,
		Name:           2,
	}
}

// MaxConfidence caps every confidence score.
const MaxConfidence = 100

// Collections names the stores the engine works against.
type Collections struct {
	Payments      string
	Registrations string
	Quarantine    string
	Staging       string
	Backup        string
	Checkpoints   string
}

// DefaultCollections mirrors the collection names used in production.
func DefaultCollections() Collections {
	return Collections{
		Payments:      "payments",
		Registrations: "registrations",
		Quarantine:    "error_payments",
		Staging:       "import_payments",
		Backup:        "deleted_error_payments_backup",
		Checkpoints:   "reconciliation_checkpoints",
	}
}

// Settings is the tunable part of the engine.
type Settings struct {
	Collections     Collections
	Weights         WeightTable
	AmountTolerance Tolerance
	FeeTolerance    Tolerance
	MinConfidence   int
	CheckpointEvery int
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		Collections:     DefaultCollections(),
		Weights:         DefaultWeights(),
		AmountTolerance: DefaultTolerance(),
		FeeTolerance:    DefaultTolerance(),
		MinConfidence:   50,
		CheckpointEvery: 100,
	}
}
