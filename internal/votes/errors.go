package votes

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrVotePending is returned while a vote for the same founder is in flight.
	ErrVotePending = errors.New("a vote for this founder is already in progress")
	// ErrAlreadyVoted is returned when this device has already voted for the founder.
	ErrAlreadyVoted = errors.New("this device has already voted for this founder")
	// ErrTransfer wraps every failure of the fee transfer step.
	ErrTransfer = errors.New("fee transfer failed")
	// ErrDataStore wraps failures to persist the vote.
	ErrDataStore = errors.New("vote could not be recorded")
)

// UnrecordedFeeError is returned when the fee transfer confirmed but the vote
// row could not be stored. The signature is what the voter needs to get the
// vote reconciled.
type UnrecordedFeeError struct {
	FounderID string
	Signature solana.Signature
	Err       error
}

func (e *UnrecordedFeeError) Error() string {
	return fmt.Sprintf("fee paid in transaction %s but the vote for founder %s was not recorded: %v",
		e.Signature, e.FounderID, e.Err)
}

func (e *UnrecordedFeeError) Unwrap() []error { return []error{ErrDataStore, e.Err} }

// IndeterminateError is returned when the transfer was submitted but its
// confirmation did not arrive in time. The transfer may still land.
type IndeterminateError struct {
	FounderID string
	Signature solana.Signature
	Err       error
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("transaction %s for founder %s is not confirmed yet: %v", e.Signature, e.FounderID, e.Err)
}

func (e *IndeterminateError) Unwrap() error { return e.Err }

// UnsettledFeeError is returned when an earlier fee for the founder timed out
// and has not been settled yet. Paying again could charge the voter twice, so
// the vote waits until the reconciler resolves Signature.
type UnsettledFeeError struct {
	FounderID string
	Signature solana.Signature
}

func (e *UnsettledFeeError) Error() string {
	return fmt.Sprintf("transaction %s for founder %s is still unsettled", e.Signature, e.FounderID)
}

func (e *UnsettledFeeError) Unwrap() error { return ErrVotePending }
