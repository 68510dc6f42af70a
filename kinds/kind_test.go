package kinds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Run("ExactMatch", func(t *testing.T) {
		k, ok := ParseKind("EACAggregatorProxy")
		require.True(t, ok)
		assert.Equal(t, KindEACAggregatorProxy, k)

		k, ok = ParseKind("PendlePriceCapAdapter")
		require.True(t, ok)
		assert.Equal(t, KindPendlePriceCapAdapter, k)
	})

	t.Run("NearMissesRejected", func(t *testing.T) {
		// A new adapter deployment must surface as unsupported, never be
		// priced under a near-matching archetype's rules.
		for _, name := range []string{
			"EACAggregatorProxy2",
			"eacaggregatorproxy",
			"PriceCapAdapter",
			"WstETHPriceCapAdapterV2",
			"",
		} {
			_, ok := ParseKind(name)
			assert.False(t, ok, "name %q should not parse", name)
		}
	})

	t.Run("RoundTripsThroughString", func(t *testing.T) {
		for _, k := range Known() {
			parsed, ok := ParseKind(k.String())
			require.True(t, ok, "kind %s should parse from its own name", k)
			assert.Equal(t, k, parsed)
		}
	})
}

func TestKindPredicates(t *testing.T) {
	t.Run("TerminalKindsEndRecursion", func(t *testing.T) {
		assert.True(t, KindEACAggregatorProxy.Terminal())
		assert.True(t, KindGhoOracle.Terminal())
		assert.False(t, KindPriceCapAdapterStable.Terminal())
		assert.False(t, KindWstETHPriceCapAdapter.Terminal())
	})

	t.Run("PredicatesArePairwiseConsistent", func(t *testing.T) {
		for _, k := range Known() {
			// Growth-capped adapters always read a ratio multiplier.
			if k.GrowthCapped() {
				assert.True(t, k.RatioWrapped(), "%s is growth-capped but not ratio-wrapped", k)
			}
			// Terminal kinds carry no multiplier or cap machinery.
			if k.Terminal() {
				assert.False(t, k.RatioWrapped(), "%s", k)
				assert.False(t, k.GrowthCapped(), "%s", k)
				assert.False(t, k.StableCapped(), "%s", k)
				assert.False(t, k.Discounted(), "%s", k)
			}
		}
	})

	t.Run("DualRatioOnlyWstETHSynchronicity", func(t *testing.T) {
		for _, k := range Known() {
			if k == KindCLwstETHSynchronicityPriceAdapter {
				assert.True(t, k.DualRatio())
				continue
			}
			assert.False(t, k.DualRatio(), "%s", k)
		}
	})

	t.Run("EveryKnownKindHasExactlyOneNumeratorShape", func(t *testing.T) {
		for _, k := range Known() {
			shapes := 0
			if k.Terminal() {
				shapes++
			}
			if k.PegChained() {
				shapes++
			}
			if k.RatioWrapped() || k.StableCapped() || k.Discounted() {
				shapes++
			}
			assert.Equal(t, 1, shapes, "kind %s must have exactly one numerator shape", k)
		}
	})

	t.Run("UnknownKindString", func(t *testing.T) {
		assert.Equal(t, "Kind(0)", KindUnknown.String())
		assert.Equal(t, "Kind(255)", Kind(255).String())
	})
}
