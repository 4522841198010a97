package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrConfirmationTimeout means the outcome of a submitted transaction
	// is unknown: it may still land.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
	// ErrTransactionFailed means the transaction landed with an error.
	ErrTransactionFailed = errors.New("transaction failed on-chain")
)

// ConfirmationError carries the signature of a transaction whose
// confirmation did not succeed.
type ConfirmationError struct {
	Signature solana.Signature
	Err       error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("%v (signature %s)", e.Err, e.Signature)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }

// AwaitConfirmation polls the signature until it reaches commitment, fails,
// its blockhash expires or the confirmation timeout elapses.
func (c *Client) AwaitConfirmation(ctx context.Context, sig solana.Signature, cp Checkpoint, commitment rpc.CommitmentType) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.signatureStatus(ctx, sig, commitment, false)
		switch {
		case err != nil:
			c.log.WithError(err).WithField("signature", sig.String()).Debug("signature status poll failed")
		case status == StatusConfirmed:
			return nil
		case status == StatusFailed:
			return &ConfirmationError{Signature: sig, Err: ErrTransactionFailed}
		}

		if cp.LastValidBlockHeight > 0 {
			height, err := c.rpc.GetBlockHeight(ctx, commitment)
			if err == nil && height > cp.LastValidBlockHeight {
				c.log.WithField("signature", sig.String()).
					WithField("block_height", height).
					Warn("blockhash expired before confirmation")
				return &ConfirmationError{Signature: sig, Err: ErrConfirmationTimeout}
			}
		}

		select {
		case <-ctx.Done():
			return &ConfirmationError{Signature: sig, Err: ErrConfirmationTimeout}
		case <-ticker.C:
		}
	}
}
