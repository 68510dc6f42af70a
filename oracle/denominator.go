package oracle

import (
	"fmt"
	"math/big"

	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

var (
	one = big.NewInt(1)

	// ratioDecimals is the 10^18 scale every ratio provider reports in.
	ratioDecimals = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// dualRatioDecimals compounds the ratio scale for the double-wrapped
	// wstETH adapter (10^18 * 10^18). The source system multiplies the
	// ratio decimals once per wrapping level for this kind; whether that
	// is intentional compounding awaits product-owner confirmation, so the
	// formula is kept as-is.
	dualRatioDecimals = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
)

// Denominator is a static lookup by kind, constant for the lifetime of the
// contract.
func Denominator(k kinds.Kind) (*big.Int, error) {
	switch {
	case k.DualRatio():
		return new(big.Int).Set(dualRatioDecimals), nil
	case k.RatioWrapped():
		return new(big.Int).Set(ratioDecimals), nil
	case k.Discounted():
		// The discount multiplier is expressed in percentage-factor units.
		return big.NewInt(percentageFactor), nil
	case k == kinds.KindEACAggregatorProxy, k == kinds.KindGhoOracle,
		k == kinds.KindPriceCapAdapterStable, k.PegChained():
		return new(big.Int).Set(one), nil
	default:
		return nil, fmt.Errorf("denominator: unsupported kind %s", k)
	}
}
