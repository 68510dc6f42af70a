// Package kinds defines the closed enumeration of price-source adapter
// archetypes and the process-wide contract metadata cache that maps a
// source address to its kind and ABI.
package kinds

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind classifies a price-source contract's architecture. The set is closed:
// every component resolver switches exhaustively over it, and a verified
// contract name that matches none of the variants is rejected as unsupported
// rather than defaulted.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Terminal kinds. These end the underlying-source recursion.
	KindEACAggregatorProxy
	KindGhoOracle

	// Stable-capped: wraps a single aggregator, cap set by governance events.
	KindPriceCapAdapterStable

	// Peg-chained: price is the product of two independently updated legs.
	KindCLSynchronicityPriceAdapterPegToBase

	// Ratio-wrapped synchronicity adapters (feed multiplied by an on-chain
	// exchange ratio). The wstETH variant stacks two ratio conversions.
	KindCLwstETHSynchronicityPriceAdapter
	KindCLrETHSynchronicityPriceAdapter

	// Snapshot-growth-capped ratio adapters: exchange ratio from a liquid
	// staking provider, clamped by snapshotRatio + growth * elapsed.
	KindWstETHPriceCapAdapter
	KindCbETHPriceCapAdapter
	KindRETHPriceCapAdapter
	KindOsETHPriceCapAdapter
	KindEthXPriceCapAdapter
	KindWeETHPriceCapAdapter
	KindRsETHPriceCapAdapter
	KindEzETHPriceCapAdapter
	KindSUSDePriceCapAdapter
	KindSDAIPriceCapAdapter
	KindEBTCPriceCapAdapter
	KindSAvaxPriceCapAdapter
	KindCLRatePriceCapAdapter

	// Discount-based: fixed-maturity instruments priced at a time-decayed
	// discount to the underlying feed.
	KindPendlePriceCapAdapter
)

// GhoPriceSentinel is the constant address reported as the "underlying
// source" of the fixed-price GHO oracle, which has no aggregator to monitor.
var GhoPriceSentinel = common.HexToAddress("0x0000000000000000000000000000000000000001")

var kindNames = map[Kind]string{
	KindEACAggregatorProxy:                   "EACAggregatorProxy",
	KindGhoOracle:                            "GhoOracle",
	KindPriceCapAdapterStable:                "PriceCapAdapterStable",
	KindCLSynchronicityPriceAdapterPegToBase: "CLSynchronicityPriceAdapterPegToBase",
	KindCLwstETHSynchronicityPriceAdapter:    "CLwstETHSynchronicityPriceAdapter",
	KindCLrETHSynchronicityPriceAdapter:      "CLrETHSynchronicityPriceAdapter",
	KindWstETHPriceCapAdapter:                "WstETHPriceCapAdapter",
	KindCbETHPriceCapAdapter:                 "CbETHPriceCapAdapter",
	KindRETHPriceCapAdapter:                  "RETHPriceCapAdapter",
	KindOsETHPriceCapAdapter:                 "OsETHPriceCapAdapter",
	KindEthXPriceCapAdapter:                  "EthXPriceCapAdapter",
	KindWeETHPriceCapAdapter:                 "WeETHPriceCapAdapter",
	KindRsETHPriceCapAdapter:                 "RsETHPriceCapAdapter",
	KindEzETHPriceCapAdapter:                 "EzETHPriceCapAdapter",
	KindSUSDePriceCapAdapter:                 "SUSDePriceCapAdapter",
	KindSDAIPriceCapAdapter:                  "SDAIPriceCapAdapter",
	KindEBTCPriceCapAdapter:                  "EBTCPriceCapAdapter",
	KindSAvaxPriceCapAdapter:                 "SAvaxPriceCapAdapter",
	KindCLRatePriceCapAdapter:                "CLRatePriceCapAdapter",
	KindPendlePriceCapAdapter:                "PendlePriceCapAdapter",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind matches a verified-source contract name against the closed
// enumeration. The match is exact; near-misses are deliberately rejected so
// that a new adapter deployment surfaces as unsupported instead of being
// priced with the wrong rules.
func ParseKind(contractName string) (Kind, bool) {
	k, ok := kindsByName[contractName]
	return k, ok
}

// Terminal reports whether the underlying-source recursion stops at this kind.
func (k Kind) Terminal() bool {
	return k == KindEACAggregatorProxy || k == KindGhoOracle
}

// PegChained reports whether the numerator is the product of two
// independently updated legs.
func (k Kind) PegChained() bool {
	return k == KindCLSynchronicityPriceAdapterPegToBase
}

// RatioWrapped reports whether the multiplier comes from a ratio-provider
// contract read rather than being the constant 1.
func (k Kind) RatioWrapped() bool {
	switch k {
	case KindCLwstETHSynchronicityPriceAdapter, KindCLrETHSynchronicityPriceAdapter,
		KindWstETHPriceCapAdapter, KindCbETHPriceCapAdapter, KindRETHPriceCapAdapter,
		KindOsETHPriceCapAdapter, KindEthXPriceCapAdapter, KindWeETHPriceCapAdapter,
		KindRsETHPriceCapAdapter, KindEzETHPriceCapAdapter, KindSUSDePriceCapAdapter,
		KindSDAIPriceCapAdapter, KindEBTCPriceCapAdapter, KindSAvaxPriceCapAdapter,
		KindCLRatePriceCapAdapter:
		return true
	}
	return false
}

// GrowthCapped reports whether the multiplier is clamped by the snapshot
// growth formula (snapshotRatio + maxGrowthPerSecond * elapsed).
func (k Kind) GrowthCapped() bool {
	switch k {
	case KindWstETHPriceCapAdapter, KindCbETHPriceCapAdapter, KindRETHPriceCapAdapter,
		KindOsETHPriceCapAdapter, KindEthXPriceCapAdapter, KindWeETHPriceCapAdapter,
		KindRsETHPriceCapAdapter, KindEzETHPriceCapAdapter, KindSUSDePriceCapAdapter,
		KindSDAIPriceCapAdapter, KindEBTCPriceCapAdapter, KindSAvaxPriceCapAdapter,
		KindCLRatePriceCapAdapter:
		return true
	}
	return false
}

// StableCapped reports whether the cap is a governance-set absolute value
// delivered by PriceCapUpdated events.
func (k Kind) StableCapped() bool {
	return k == KindPriceCapAdapterStable
}

// Discounted reports whether the multiplier decays toward maturity
// (fixed-maturity instruments).
func (k Kind) Discounted() bool {
	return k == KindPendlePriceCapAdapter
}

// DualRatio reports whether two stacked ratio conversions apply, which
// compounds the ratio-decimals denominator.
func (k Kind) DualRatio() bool {
	return k == KindCLwstETHSynchronicityPriceAdapter
}

// Known returns every kind in the closed enumeration, in declaration order.
func Known() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindEACAggregatorProxy; k <= KindPendlePriceCapAdapter; k++ {
		out = append(out, k)
	}
	return out
}
