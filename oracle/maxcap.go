package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/calls"
	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

// Event names carrying cap state. Matching is by decoded event name; the
// decoding itself happens upstream of the resolver.
const (
	eventPriceCapUpdated      = "PriceCapUpdated"
	eventCapParametersUpdated = "CapParametersUpdated"
)

// MaxCap resolves the cap component. The nil return is the uncapped
// sentinel, distinct from a cap of zero.
//
// Growth-capped kinds compute snapshotRatio + maxGrowthPerSecond * elapsed
// from three governance-set parameters cached on a multi-hour cycle; a
// failed refresh degrades to the stale cached value with a warning rather
// than aborting the price update, since the cap is auxiliary.
func (r *Resolver) MaxCap(ctx context.Context, source common.Address, k kinds.Kind, obs Observation) (*big.Int, error) {
	switch {
	case k.StableCapped():
		return r.stableCap(ctx, source, obs)
	case k.GrowthCapped():
		return r.growthCap(ctx, source, obs)
	default:
		return nil, nil
	}
}

func (r *Resolver) stableCap(ctx context.Context, source common.Address, obs Observation) (*big.Int, error) {
	if e, ok := obs.(EventObservation); ok && e.EventName == eventPriceCapUpdated {
		if cap, ok := e.Args["priceCap"]; ok && cap != nil {
			r.cache.PutConfirmed(source, FieldPriceCap, cap)
			return new(big.Int).Set(cap), nil
		}
	}

	if v, ok := r.cache.GetConfirmed(source, FieldPriceCap); ok {
		return v, nil
	}

	client, err := r.client()
	if err != nil {
		return nil, err
	}
	v, err := calls.CallWord(ctx, client, source, "getPriceCap", priceCapData)
	if err != nil {
		return nil, err
	}
	r.cache.PutConfirmed(source, FieldPriceCap, v)
	return v, nil
}

func (r *Resolver) growthCap(ctx context.Context, source common.Address, obs Observation) (*big.Int, error) {
	if e, ok := obs.(EventObservation); ok && e.EventName == eventCapParametersUpdated {
		r.applyCapParametersEvent(source, e)
	}

	snapshotRatio, err := r.capParam(ctx, source, FieldSnapshotRatio, "getSnapshotRatio", snapRatioData)
	if err != nil {
		return nil, err
	}
	snapshotTs, err := r.capParam(ctx, source, FieldSnapshotTimestamp, "getSnapshotTimestamp", snapTsData)
	if err != nil {
		return nil, err
	}
	growth, err := r.capParam(ctx, source, FieldMaxGrowthPerSecond, "getMaxRatioGrowthPerSecond", maxGrowthData)
	if err != nil {
		return nil, err
	}

	elapsed := new(big.Int).Sub(big.NewInt(obs.Timestamp().Unix()), snapshotTs)
	if elapsed.Sign() < 0 {
		elapsed.SetInt64(0)
	}

	cap := new(big.Int).Mul(growth, elapsed)
	cap.Add(cap, snapshotRatio)
	return cap, nil
}

func (r *Resolver) applyCapParametersEvent(source common.Address, e EventObservation) {
	fields := map[string]Field{
		"snapshotRatio":           FieldSnapshotRatio,
		"snapshotTimestamp":       FieldSnapshotTimestamp,
		"maxRatioGrowthPerSecond": FieldMaxGrowthPerSecond,
	}
	for arg, f := range fields {
		if v, ok := e.Args[arg]; ok && v != nil {
			r.cache.PutConfirmed(source, f, v)
		}
	}
}

// capParam fetches one cap parameter through the long-TTL cache. When the
// refreshing call fails but a stale value exists, the stale value is
// reused and the degradation logged; the previous governance setting is
// almost always still in force.
func (r *Resolver) capParam(ctx context.Context, source common.Address, f Field, method string, data []byte) (*big.Int, error) {
	if v, ok := r.cache.GetConfirmed(source, f); ok {
		return v, nil
	}

	client, err := r.client()
	if err == nil {
		var v *big.Int
		v, err = calls.CallWord(ctx, client, source, method, data)
		if err == nil {
			r.cache.PutConfirmed(source, f, v)
			return v, nil
		}
	}

	if stale, storedAt, ok := r.cache.GetConfirmedStale(source, f); ok {
		r.logger.Warn("reusing stale cap parameter after failed refresh",
			"source", source.Hex(),
			"field", f.String(),
			"stored_at", storedAt,
			"error", err,
		)
		if r.notifyDegraded != nil {
			r.notifyDegraded(source, f.String(), time.Since(storedAt))
		}
		return stale, nil
	}

	return nil, fmt.Errorf("cap parameter %s for %s: %w", f, source.Hex(), err)
}
