package oracle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MalformedObservationError reports an input message the resolver cannot
// price. It is non-retryable for that message: the caller drops it, logs,
// and continues with the next one.
type MalformedObservationError struct {
	Source common.Address
	Reason string
}

func (e *MalformedObservationError) Error() string {
	return fmt.Sprintf("malformed observation for %s: %s", e.Source.Hex(), e.Reason)
}

// Observation is the input to the component resolvers: either a confirmed
// on-chain log or a pending transmit transaction, never both. The union is
// sealed so no third case can be introduced outside this package.
type Observation interface {
	// ObservedSource is the terminal aggregator the observation concerns.
	ObservedSource() common.Address
	// Value is the reported raw price value.
	Value() *big.Int
	// Timestamp is the observation time at microsecond resolution: the
	// block timestamp for events, wall clock for pending transactions.
	Timestamp() time.Time

	isObservation()
}

// EventObservation is a confirmed on-chain log. Its values become permanent
// state.
type EventObservation struct {
	Source         common.Address
	EventName      string
	Answer         *big.Int
	Args           map[string]*big.Int
	BlockNumber    uint64
	BlockTimestamp time.Time
}

func (o EventObservation) ObservedSource() common.Address { return o.Source }
func (o EventObservation) Value() *big.Int                { return o.Answer }
func (o EventObservation) Timestamp() time.Time           { return o.BlockTimestamp.Truncate(time.Microsecond) }
func (o EventObservation) isObservation()                 {}

// Validate rejects events that cannot be priced.
func (o EventObservation) Validate() error {
	if o.Answer == nil {
		return &MalformedObservationError{Source: o.Source, Reason: "nil answer"}
	}
	if o.Answer.Sign() < 0 {
		return &MalformedObservationError{Source: o.Source, Reason: "negative answer"}
	}
	return nil
}

// TransactionObservation is a decoded, still-pending transmit call. Its
// values feed prediction only and expire after one block's worth of time;
// they must never leak into confirmed state.
type TransactionObservation struct {
	Oracle        common.Address
	TxHash        common.Hash
	MedianPrice   *big.Int
	EpochAndRound *big.Int
	SeenAt        time.Time
}

func (o TransactionObservation) ObservedSource() common.Address { return o.Oracle }
func (o TransactionObservation) Value() *big.Int                { return o.MedianPrice }
func (o TransactionObservation) Timestamp() time.Time           { return o.SeenAt.Truncate(time.Microsecond) }
func (o TransactionObservation) isObservation()                 {}

// Validate rejects transmit payloads that cannot be priced. Extracting the
// median and checking observation ordering happen upstream; by the time a
// TransactionObservation exists those preconditions are assumed met.
func (o TransactionObservation) Validate() error {
	if o.MedianPrice == nil {
		return &MalformedObservationError{Source: o.Oracle, Reason: "nil median price"}
	}
	if o.MedianPrice.Sign() < 0 {
		return &MalformedObservationError{Source: o.Oracle, Reason: "negative median price"}
	}
	if o.EpochAndRound == nil {
		return &MalformedObservationError{Source: o.Oracle, Reason: "missing epoch and round"}
	}
	return nil
}
