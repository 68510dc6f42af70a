package liquidations

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/calls"
	"github.com/aknirmal90/liquidations-v2-sub000/explorer"
	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
	"github.com/aknirmal90/liquidations-v2-sub000/oracle"
)

// SystemError is a base type for errors originating from the LiquidationSystem.
type SystemError struct {
	BlockNumber uint64
	Err         error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("block %d: %v", e.BlockNumber, e.Err)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

// ResolutionError indicates a failure to derive a confirmed price for an
// asset from an observation.
type ResolutionError struct {
	SystemError
	Asset  common.Address
	Source common.Address
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("block %d: failed to resolve price for asset %s from source %s: %v", e.BlockNumber, e.Asset.Hex(), e.Source.Hex(), e.Err)
}

// ProjectionError indicates a failure while projecting account health
// under a pending transmission's predicted prices.
type ProjectionError struct {
	SystemError
	Source           common.Address
	TransmissionHash common.Hash
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("failed to project transmission %s from oracle %s: %v", e.TransmissionHash.Hex(), e.Source.Hex(), e.Err)
}

// AuditError is a critical error when resolved components could not be
// persisted to the audit log. Price serving continues, but the derivation
// trail has a gap.
type AuditError struct {
	SystemError
	Source common.Address
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("CRITICAL block %d: failed to persist audit rows for source %s: %v", e.BlockNumber, e.Source.Hex(), e.Err)
}

// VerificationError indicates a failure during the periodic balance
// verification process.
type VerificationError struct {
	Err  error
	User common.Address
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verifier: failed to process user %s: %v", e.User.Hex(), e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// PrunerError indicates a failure during the periodic pruning process.
type PrunerError struct {
	Err   error
	Asset common.Address
}

func (e *PrunerError) Error() string {
	return fmt.Sprintf("pruner: failed to process asset %s: %v", e.Asset.Hex(), e.Err)
}

func (e *PrunerError) Unwrap() error {
	return e.Err
}

// determineErrorType maps an error to a low-cardinality label for the
// errors-by-type metric.
func determineErrorType(err error) string {
	var (
		resolutionErr    *ResolutionError
		projectionErr    *ProjectionError
		auditErr         *AuditError
		verificationErr  *VerificationError
		prunerErr        *PrunerError
		unsupportedErr   *kinds.UnsupportedSourceError
		transientErr     *explorer.TransientError
		revertErr        *calls.RevertError
		malformedErr     *oracle.MalformedObservationError
		recursionErr     *oracle.RecursionLimitError
		missingComponent = oracle.ErrMissingComponent
	)

	switch {
	case errors.As(err, &unsupportedErr):
		return "unsupported_source"
	case errors.As(err, &transientErr):
		return "explorer_transient"
	case errors.As(err, &revertErr):
		return "contract_revert"
	case errors.As(err, &malformedErr):
		return "malformed_observation"
	case errors.As(err, &recursionErr):
		return "recursion_limit"
	case errors.Is(err, missingComponent), errors.Is(err, oracle.ErrNegativeComponent), errors.Is(err, oracle.ErrZeroDenominator):
		return "assembly"
	case errors.As(err, &resolutionErr):
		return "resolution"
	case errors.As(err, &projectionErr):
		return "projection"
	case errors.As(err, &auditErr):
		return "audit"
	case errors.As(err, &verificationErr):
		return "verification"
	case errors.As(err, &prunerErr):
		return "pruner"
	default:
		return "unknown"
	}
}
