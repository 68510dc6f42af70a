package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/calls"
	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

const (
	// percentageFactor is the protocol's basis-point scale.
	percentageFactor = 10_000

	secondsPerYear = 365 * 24 * 60 * 60
)

// Multiplier resolves the multiplier component.
//
// Ratio-wrapped kinds read the ratio-provider contract through a short-TTL
// cache: the ratio can legitimately move between observations, so the
// reading is only reused within one block's time. Discount-based kinds
// compute the time-decayed discount against the observation timestamp.
// Plain aggregator kinds use the constant 1.
func (r *Resolver) Multiplier(ctx context.Context, source common.Address, k kinds.Kind, obs Observation) (*big.Int, error) {
	switch {
	case k.RatioWrapped():
		return r.ratioMultiplier(ctx, source)

	case k.Discounted():
		return r.discountMultiplier(ctx, source, obs)

	case k == kinds.KindEACAggregatorProxy, k == kinds.KindGhoOracle,
		k == kinds.KindPriceCapAdapterStable, k.PegChained():
		return big.NewInt(1), nil

	default:
		return nil, fmt.Errorf("multiplier: unsupported kind %s", k)
	}
}

// ratioMultiplier reads the adapter's exchange ratio. A failed read
// propagates: the ratio is price-critical and must never be replaced by a
// default.
func (r *Resolver) ratioMultiplier(ctx context.Context, source common.Address) (*big.Int, error) {
	if v, ok := r.cache.GetConfirmed(source, FieldMultiplier); ok {
		return v, nil
	}
	client, err := r.client()
	if err != nil {
		return nil, err
	}
	v, err := calls.CallWord(ctx, client, source, "getRatio", getRatioData)
	if err != nil {
		return nil, err
	}
	r.cache.PutConfirmed(source, FieldMultiplier, v)
	return v, nil
}

// discountMultiplier computes percentageFactor minus the time-decayed
// discount for fixed-maturity instruments. discountRatePerYear is an
// annualized rate in percentage-factor units; maturity and rate are
// immutable contract parameters and cached forever.
func (r *Resolver) discountMultiplier(ctx context.Context, source common.Address, obs Observation) (*big.Int, error) {
	maturity, err := r.staticParam(ctx, source, FieldMaturity, "MATURITY", maturityData)
	if err != nil {
		return nil, err
	}
	rate, err := r.staticParam(ctx, source, FieldDiscountRate, "discountRatePerYear", discountData)
	if err != nil {
		return nil, err
	}

	observed := big.NewInt(obs.Timestamp().Unix())
	remaining := new(big.Int).Sub(maturity, observed)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	discount := new(big.Int).Mul(rate, remaining)
	discount.Quo(discount, big.NewInt(secondsPerYear))

	m := new(big.Int).Sub(big.NewInt(percentageFactor), discount)
	if m.Sign() < 0 {
		m.SetInt64(0)
	}
	return m, nil
}

// staticParam reads and permanently caches an immutable contract value.
func (r *Resolver) staticParam(ctx context.Context, source common.Address, f Field, method string, data []byte) (*big.Int, error) {
	if v, ok := r.cache.GetConfirmed(source, f); ok {
		return v, nil
	}
	client, err := r.client()
	if err != nil {
		return nil, err
	}
	v, err := calls.CallWord(ctx, client, source, method, data)
	if err != nil {
		return nil, err
	}
	r.cache.PutConfirmed(source, f, v)
	return v, nil
}
