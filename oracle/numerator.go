package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/calls"
	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

// ghoFixedPrice is GHO's hardcoded USD price at 8 decimals.
var ghoFixedPrice = big.NewInt(100_000_000)

// Numerator resolves the numerator component for one observation.
//
// Aggregator-family kinds report the raw observed value directly. The
// peg-chained kind combines the observed leg with the last known value of
// the other leg; the combination is serialized per source and keeps the
// confirmed and predicted paths in separate namespaces.
func (r *Resolver) Numerator(ctx context.Context, asset, source common.Address, k kinds.Kind, obs Observation) (*big.Int, error) {
	switch {
	case k == kinds.KindGhoOracle:
		return new(big.Int).Set(ghoFixedPrice), nil

	case k.PegChained():
		return r.pegChainNumerator(ctx, source, obs)

	case k == kinds.KindUnknown:
		return nil, fmt.Errorf("numerator: unclassified kind for source %s", source.Hex())

	default:
		v := obs.Value()
		if v == nil {
			return nil, &MalformedObservationError{Source: obs.ObservedSource(), Reason: "missing reported value"}
		}
		if v.Sign() < 0 {
			return nil, &MalformedObservationError{Source: obs.ObservedSource(), Reason: "negative reported value"}
		}
		return new(big.Int).Set(v), nil
	}
}

// pegChainNumerator handles the two-leg combination. The legs are updated
// by unrelated events arriving in arbitrary order, so whichever leg the
// observation concerns is combined with the cached value of the other.
//
// The read-combine-write sequence is guarded by the per-source lock so two
// concurrent leg updates can never interleave into a half-updated pair.
func (r *Resolver) pegChainNumerator(ctx context.Context, source common.Address, obs Observation) (*big.Int, error) {
	legs, err := r.UnderlyingSources(ctx, source)
	if err != nil {
		return nil, err
	}
	if len(legs) != 2 {
		return nil, fmt.Errorf("peg chain %s: expected 2 underlying legs, found %d", source.Hex(), len(legs))
	}

	v := obs.Value()
	if v == nil || v.Sign() < 0 {
		return nil, &MalformedObservationError{Source: obs.ObservedSource(), Reason: "invalid leg value"}
	}

	var observedField, otherField Field
	switch obs.ObservedSource() {
	case legs[0]:
		observedField, otherField = FieldLegAssetToPeg, FieldLegPegToBase
	case legs[1]:
		observedField, otherField = FieldLegPegToBase, FieldLegAssetToPeg
	default:
		return nil, &MalformedObservationError{
			Source: obs.ObservedSource(),
			Reason: fmt.Sprintf("not a leg of peg chain %s", source.Hex()),
		}
	}

	// The terminal aggregator of the peg-to-base leg fixes the rescale.
	dec, err := r.terminalDecimals(ctx, legs[1])
	if err != nil {
		return nil, err
	}

	lock := r.locks.lock(source)
	lock.Lock()
	defer lock.Unlock()

	var other *big.Int
	var ok bool
	switch obs.(type) {
	case EventObservation:
		r.cache.PutConfirmed(source, observedField, v)
		other, ok = r.cache.GetConfirmed(source, otherField)
	case TransactionObservation:
		r.cache.PutPredicted(source, observedField, v)
		other, ok = r.cache.GetPredicted(source, otherField)
		if !ok {
			// No prediction for the other leg yet: fall back to the last
			// confirmed value. The reverse direction never happens.
			other, ok = r.cache.GetConfirmed(source, otherField)
		}
	}
	if !ok {
		return nil, fmt.Errorf("peg chain %s: no cached value for %s yet", source.Hex(), otherField)
	}

	var assetToPeg, pegToBase *big.Int
	if observedField == FieldLegAssetToPeg {
		assetToPeg, pegToBase = v, other
	} else {
		assetToPeg, pegToBase = other, v
	}

	num := new(big.Int).Mul(assetToPeg, pegToBase)
	scale := new(big.Int).Exp(big.NewInt(10), dec, nil)
	return num.Quo(num, scale), nil
}

// terminalDecimals reads (and caches forever) the decimals of a terminal
// aggregator.
func (r *Resolver) terminalDecimals(ctx context.Context, aggregator common.Address) (*big.Int, error) {
	if v, ok := r.cache.GetConfirmed(aggregator, FieldDecimals); ok {
		return v, nil
	}
	client, err := r.client()
	if err != nil {
		return nil, err
	}
	v, err := calls.CallWord(ctx, client, aggregator, "decimals", aggDecimalsData)
	if err != nil {
		return nil, err
	}
	r.cache.PutConfirmed(aggregator, FieldDecimals, v)
	return v, nil
}
