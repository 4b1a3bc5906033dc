package domain

import "errors"

// Sentinel errors for the batch scheduler. Callers match with errors.Is;
// call sites add context with fmt.Errorf("%w: ...").
var (
	// ErrInvalidPeriods is returned when a batch is created with zero periods.
	ErrInvalidPeriods = errors.New("invalid periods")

	// ErrInvalidAmount is returned when the total amount is zero or does not
	// yield at least one unit per period.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidRecipientConfig is returned for a malformed recipient list
	// (empty, zero handle, duplicate structure problems).
	ErrInvalidRecipientConfig = errors.New("invalid recipient config")

	// ErrInvalidWeights is returned when recipient weights do not sum to
	// exactly TotalWeightBps.
	ErrInvalidWeights = errors.New("invalid weights")

	// ErrBatchNotFound is returned when the referenced batch id does not exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrBatchCompleted is returned for operations on a finished batch.
	ErrBatchCompleted = errors.New("batch completed")

	// ErrBatchAlreadyStopped is returned for operations on a stopped batch.
	ErrBatchAlreadyStopped = errors.New("batch already stopped")

	// ErrBatchNotActive is returned when execution is attempted before any
	// recipient config has been populated.
	ErrBatchNotActive = errors.New("batch not active")

	// ErrTooEarlyToExecute is returned when a batch has already been executed
	// in the current epoch.
	ErrTooEarlyToExecute = errors.New("too early to execute")

	// ErrNothingToSweep is returned when a sweep is attempted on a batch with
	// no recoverable remainder.
	ErrNothingToSweep = errors.New("nothing to sweep")

	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is returned for malformed request input outside the
	// specific batch error kinds above.
	ErrValidation = errors.New("validation error")
)
