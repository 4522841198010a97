package wallet

import (
	"errors"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
)

var (
	// ErrFeatureDisabled is returned by every mutating call while wallet
	// support is switched off.
	ErrFeatureDisabled = errors.New("wallet support is disabled")
	// ErrNotConnected is returned when an operation needs a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrAdapterUnavailable means the adapter has no provider behind it.
	ErrAdapterUnavailable = errors.New("wallet adapter unavailable")
	// ErrUnsupportedOperation means the provider lacks the requested capability.
	ErrUnsupportedOperation = errors.New("operation not supported by wallet provider")
	// ErrMissingAddress means connect finished without yielding an address.
	ErrMissingAddress = errors.New("wallet provider returned no public key")
	// ErrMissingSignature means a submit call returned no signature.
	ErrMissingSignature = errors.New("wallet provider returned no signature")
	// ErrUserRejected means the user declined the request in the wallet.
	ErrUserRejected = errors.New("user rejected the request")
	// ErrPackageNotFound means no optional adapter package has that name.
	ErrPackageNotFound = errors.New("wallet adapter package not found")
	// ErrUnknownAdapter means no adapter with that name is in the registry.
	ErrUnknownAdapter = errors.New("unknown wallet adapter")
	// ErrBusy means a connect or disconnect is already in flight.
	ErrBusy = errors.New("wallet session busy")

	// ErrConfirmationTimeout means the on-chain outcome is indeterminate.
	ErrConfirmationTimeout = chain.ErrConfirmationTimeout
)
