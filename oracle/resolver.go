// Package oracle implements the price-derivation engine: per-kind component
// resolution (numerator, denominator, multiplier, max cap), recursive
// underlying-source unwinding, and final price assembly.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"

	sharedabi "github.com/aknirmal90/liquidations-v2-sub000/abi"
	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

// Logger matches the structured, leveled logging interface used across the
// system, compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type GetClientFunc func() (ethclients.ETHClient, error)

// NotifyDegradedFunc receives the degraded-mode signal raised when a price
// is assembled from a stale cached parameter after a failed live refresh.
// age is how long ago the reused value was stored.
type NotifyDegradedFunc func(source common.Address, field string, age time.Duration)

// maxUnderlyingDepth bounds the proxy-chain unwind. A deeper chain is a
// data integrity error, not something to truncate silently.
const maxUnderlyingDepth = 4

// RecursionLimitError reports an underlying-source chain that exceeds
// maxUnderlyingDepth.
type RecursionLimitError struct {
	Source common.Address
	Depth  int
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("underlying source chain for %s exceeds depth %d", e.Source.Hex(), e.Depth)
}

// Method selectors for the adapter reads, loaded from the shared ABI.
var (
	assetToPegData  = sharedabi.AdapterABI.Methods["ASSET_TO_PEG"].ID
	pegToBaseData   = sharedabi.AdapterABI.Methods["PEG_TO_BASE"].ID
	assetToUSDData  = sharedabi.AdapterABI.Methods["ASSET_TO_USD_AGGREGATOR"].ID
	baseToUSDData   = sharedabi.AdapterABI.Methods["BASE_TO_USD_AGGREGATOR"].ID
	getRatioData    = sharedabi.AdapterABI.Methods["getRatio"].ID
	snapRatioData   = sharedabi.AdapterABI.Methods["getSnapshotRatio"].ID
	snapTsData      = sharedabi.AdapterABI.Methods["getSnapshotTimestamp"].ID
	maxGrowthData   = sharedabi.AdapterABI.Methods["getMaxRatioGrowthPerSecond"].ID
	priceCapData    = sharedabi.AdapterABI.Methods["getPriceCap"].ID
	maturityData    = sharedabi.AdapterABI.Methods["MATURITY"].ID
	discountData    = sharedabi.AdapterABI.Methods["discountRatePerYear"].ID
	aggDecimalsData = sharedabi.AggregatorABI.Methods["decimals"].ID
)

// Resolver computes price components for (asset, asset_source) pairs. It is
// safe for concurrent use; per-source state is serialized through
// per-source locks.
type Resolver struct {
	kinds          *kinds.Cache
	cache          *ComponentCache
	getClient      GetClientFunc
	logger         Logger
	locks          *sourceLocks
	notifyDegraded NotifyDegradedFunc

	mu         sync.Mutex
	underlying map[common.Address][]common.Address
}

// NewResolver wires a Resolver. All arguments are required.
func NewResolver(kindCache *kinds.Cache, componentCache *ComponentCache, getClient GetClientFunc, logger Logger) (*Resolver, error) {
	if kindCache == nil {
		return nil, errors.New("kind cache is required")
	}
	if componentCache == nil {
		return nil, errors.New("component cache is required")
	}
	if getClient == nil {
		return nil, errors.New("get client function is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Resolver{
		kinds:      kindCache,
		cache:      componentCache,
		getClient:  getClient,
		logger:     logger,
		locks:      newSourceLocks(),
		underlying: make(map[common.Address][]common.Address),
	}, nil
}

// Cache exposes the component cache, used by the orchestrator for
// observability and by tests to seed state.
func (r *Resolver) Cache() *ComponentCache {
	return r.cache
}

// SetNotifyDegraded installs the degraded-mode signal hook. The hook fires
// whenever a stale cached parameter is reused after a failed refresh, so
// monitoring sees degradations that would otherwise only reach the logs.
func (r *Resolver) SetNotifyDegraded(fn NotifyDegradedFunc) {
	r.notifyDegraded = fn
}

func (r *Resolver) client() (ethclients.ETHClient, error) {
	client, err := r.getClient()
	if err != nil {
		return nil, fmt.Errorf("getting eth client: %w", err)
	}
	return client, nil
}

// Resolve computes all four components for one observation. Price-critical
// failures abort the whole resolution; there is intentionally no partial
// result.
func (r *Resolver) Resolve(ctx context.Context, asset, source common.Address, obs Observation) (Components, error) {
	info, err := r.kinds.ContractInfo(ctx, source)
	if err != nil {
		return Components{}, err
	}

	num, err := r.Numerator(ctx, asset, source, info.Kind, obs)
	if err != nil {
		return Components{}, fmt.Errorf("numerator for %s (%s): %w", asset.Hex(), info.Kind, err)
	}
	den, err := Denominator(info.Kind)
	if err != nil {
		return Components{}, err
	}
	mult, err := r.Multiplier(ctx, source, info.Kind, obs)
	if err != nil {
		return Components{}, fmt.Errorf("multiplier for %s (%s): %w", source.Hex(), info.Kind, err)
	}
	cap, err := r.MaxCap(ctx, source, info.Kind, obs)
	if err != nil {
		return Components{}, fmt.Errorf("max cap for %s (%s): %w", source.Hex(), info.Kind, err)
	}

	origin := OriginEvent
	if _, ok := obs.(TransactionObservation); ok {
		origin = OriginTransaction
	}

	return Components{
		Asset:       asset,
		Source:      source,
		Kind:        info.Kind,
		Numerator:   num,
		Denominator: den,
		Multiplier:  mult,
		MaxCap:      cap,
		Timestamp:   obs.Timestamp(),
		Origin:      origin,
	}, nil
}
