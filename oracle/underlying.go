package oracle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/calls"
	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

// UnderlyingSources unwinds wrapper and proxy indirection down to the
// terminal raw aggregator addresses that must be monitored for events.
//
// For peg-chained adapters the result order is significant: the
// asset-to-peg leg comes first, then the peg-to-base leg, matching how the
// numerator logic distinguishes legs positionally. Results are memoized;
// a contract's wiring is immutable.
func (r *Resolver) UnderlyingSources(ctx context.Context, source common.Address) ([]common.Address, error) {
	r.mu.Lock()
	cached, ok := r.underlying[source]
	r.mu.Unlock()
	if ok {
		out := make([]common.Address, len(cached))
		copy(out, cached)
		return out, nil
	}

	resolved, err := r.underlyingSources(ctx, source, 0)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.underlying[source] = resolved
	r.mu.Unlock()

	out := make([]common.Address, len(resolved))
	copy(out, resolved)
	return out, nil
}

func (r *Resolver) underlyingSources(ctx context.Context, source common.Address, depth int) ([]common.Address, error) {
	if depth > maxUnderlyingDepth {
		return nil, &RecursionLimitError{Source: source, Depth: depth}
	}

	info, err := r.kinds.ContractInfo(ctx, source)
	if err != nil {
		return nil, err
	}

	switch {
	case info.Kind == kinds.KindEACAggregatorProxy:
		return []common.Address{source}, nil

	case info.Kind == kinds.KindGhoOracle:
		// Fixed-price oracle: nothing on chain to monitor.
		return []common.Address{kinds.GhoPriceSentinel}, nil

	case info.Kind.PegChained():
		client, err := r.client()
		if err != nil {
			return nil, err
		}
		assetToPeg, err := calls.CallAddr(ctx, client, source, "ASSET_TO_PEG", assetToPegData)
		if err != nil {
			return nil, err
		}
		pegToBase, err := calls.CallAddr(ctx, client, source, "PEG_TO_BASE", pegToBaseData)
		if err != nil {
			return nil, err
		}
		legA, err := r.underlyingSources(ctx, assetToPeg, depth+1)
		if err != nil {
			return nil, err
		}
		legB, err := r.underlyingSources(ctx, pegToBase, depth+1)
		if err != nil {
			return nil, err
		}
		return append(legA, legB...), nil

	default:
		client, err := r.client()
		if err != nil {
			return nil, err
		}
		method, data := "BASE_TO_USD_AGGREGATOR", baseToUSDData
		if info.Kind.StableCapped() {
			method, data = "ASSET_TO_USD_AGGREGATOR", assetToUSDData
		}
		next, err := calls.CallAddr(ctx, client, source, method, data)
		if err != nil {
			return nil, fmt.Errorf("resolving underlying of %s (%s): %w", source.Hex(), info.Kind, err)
		}
		return r.underlyingSources(ctx, next, depth+1)
	}
}
