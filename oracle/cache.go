package oracle

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Field names one cached per-source value. The TTL policy is fixed per
// field at the type level rather than re-derived at call sites.
type Field uint8

const (
	FieldNumerator Field = iota + 1
	FieldDenominator
	FieldMultiplier
	FieldMaxCap

	// Peg-chain legs, stored independently and combined on read.
	FieldLegAssetToPeg
	FieldLegPegToBase

	// Static contract parameters.
	FieldDecimals
	FieldMaturity
	FieldDiscountRate

	// Governance-set cap parameters, refreshed on a long cycle.
	FieldSnapshotRatio
	FieldSnapshotTimestamp
	FieldMaxGrowthPerSecond

	FieldPriceCap
)

var fieldNames = map[Field]string{
	FieldNumerator:          "numerator",
	FieldDenominator:        "denominator",
	FieldMultiplier:         "multiplier",
	FieldMaxCap:             "max_cap",
	FieldLegAssetToPeg:      "leg_asset_to_peg",
	FieldLegPegToBase:       "leg_peg_to_base",
	FieldDecimals:           "decimals",
	FieldMaturity:           "maturity",
	FieldDiscountRate:       "discount_rate",
	FieldSnapshotRatio:      "snapshot_ratio",
	FieldSnapshotTimestamp:  "snapshot_timestamp",
	FieldMaxGrowthPerSecond: "max_growth_per_second",
	FieldPriceCap:           "price_cap",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

const (
	// RatioTTL bounds how long a ratio-provider reading is reused. The
	// ratio can legitimately change every block.
	RatioTTL = 12 * time.Second

	// CapParamsTTL bounds the snapshot cap parameters, which change only
	// by governance action.
	CapParamsTTL = 6 * time.Hour

	// PredictionTTL bounds every predicted-path entry: a prediction older
	// than one block is no longer a prediction.
	PredictionTTL = 12 * time.Second
)

// TTL returns the confirmed-path freshness window for a field. Zero means
// the entry never expires.
func (f Field) TTL() time.Duration {
	switch f {
	case FieldMultiplier:
		return RatioTTL
	case FieldSnapshotRatio, FieldSnapshotTimestamp, FieldMaxGrowthPerSecond:
		return CapParamsTTL
	default:
		return 0
	}
}

// ConfirmedKey and PredictedKey are distinct types so the two namespaces
// cannot be mixed up by a call site: a predicted write can never land in
// confirmed state, and vice versa.
type ConfirmedKey struct {
	Source common.Address
	Field  Field
}

type PredictedKey struct {
	Source common.Address
	Field  Field
}

type cacheEntry struct {
	value    *big.Int
	storedAt time.Time
}

// ComponentCache holds per-source component state for both paths. All
// values are deep-copied on the way in and out.
type ComponentCache struct {
	mu        sync.Mutex
	confirmed map[ConfirmedKey]cacheEntry
	predicted map[PredictedKey]cacheEntry
	now       func() time.Time
}

func NewComponentCache() *ComponentCache {
	return &ComponentCache{
		confirmed: make(map[ConfirmedKey]cacheEntry),
		predicted: make(map[PredictedKey]cacheEntry),
		now:       time.Now,
	}
}

// PutConfirmed stores a confirmed-path value for (source, field).
func (c *ComponentCache) PutConfirmed(source common.Address, f Field, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed[ConfirmedKey{Source: source, Field: f}] = cacheEntry{
		value:    new(big.Int).Set(v),
		storedAt: c.now(),
	}
}

// GetConfirmed returns the confirmed value if present and within the
// field's TTL.
func (c *ComponentCache) GetConfirmed(source common.Address, f Field) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.confirmed[ConfirmedKey{Source: source, Field: f}]
	if !ok {
		return nil, false
	}
	if ttl := f.TTL(); ttl > 0 && c.now().Sub(e.storedAt) > ttl {
		return nil, false
	}
	return new(big.Int).Set(e.value), true
}

// GetConfirmedStale returns the confirmed value regardless of TTL, along
// with when it was stored. Used only for degraded-mode fallback on
// auxiliary reads.
func (c *ComponentCache) GetConfirmedStale(source common.Address, f Field) (*big.Int, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.confirmed[ConfirmedKey{Source: source, Field: f}]
	if !ok {
		return nil, time.Time{}, false
	}
	return new(big.Int).Set(e.value), e.storedAt, true
}

// PutPredicted stores a predicted-path value for (source, field).
func (c *ComponentCache) PutPredicted(source common.Address, f Field, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predicted[PredictedKey{Source: source, Field: f}] = cacheEntry{
		value:    new(big.Int).Set(v),
		storedAt: c.now(),
	}
}

// GetPredicted returns the predicted value if one exists and is younger
// than PredictionTTL.
func (c *ComponentCache) GetPredicted(source common.Address, f Field) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.predicted[PredictedKey{Source: source, Field: f}]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > PredictionTTL {
		return nil, false
	}
	return new(big.Int).Set(e.value), true
}

// sourceLocks hands out one mutex per asset source so the read-combine-write
// sequence over a peg chain's legs is atomic per source.
type sourceLocks struct {
	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{locks: make(map[common.Address]*sync.Mutex)}
}

func (s *sourceLocks) lock(addr common.Address) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		s.locks[addr] = l
	}
	return l
}
