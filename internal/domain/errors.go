package domain

import "errors"

var (
	// ErrNotFound is returned by stores when no document matches.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned when inserting an _id that already exists.
	ErrDuplicateKey = errors.New("duplicate document id")
	// ErrInvalidTransition is returned for edges outside the state table.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrRegistrationClaimed is returned when a registration is already the
	// confirmed match of another payment.
	ErrRegistrationClaimed = errors.New("registration already matched to another payment")
	// ErrBackupNotConfirmed aborts a quarantine delete whose backup could
	// not be read back.
	ErrBackupNotConfirmed = errors.New("backup write not confirmed")
)
