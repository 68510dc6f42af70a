package projector

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// projectorHarness pairs a store with a mutable confirmed-price table.
type projectorHarness struct {
	store     *Store
	projector *Projector
	prices    map[common.Address]*big.Int
}

func newProjectorHarness(t *testing.T) *projectorHarness {
	t.Helper()
	h := &projectorHarness{
		store:  NewStore(),
		prices: make(map[common.Address]*big.Int),
	}
	projector, err := NewProjector(h.store, func(asset common.Address) (*big.Int, bool) {
		p, ok := h.prices[asset]
		return p, ok
	})
	require.NoError(t, err)
	h.projector = projector
	return h
}

// Asset units are kept at 1 (zero decimals) so the effective-value
// arithmetic stays readable: collateral = balance * threshold * price / 10000.
func (h *projectorHarness) addAsset(asset common.Address, threshold uint64) {
	h.store.SetConfiguration(AssetConfiguration{
		Asset:                          asset,
		Decimals:                       0,
		CollateralLiquidationThreshold: threshold,
	})
}

func (h *projectorHarness) setPrice(asset common.Address, price int64) {
	h.prices[asset] = big.NewInt(price)
}

func updated(assets ...common.Address) map[common.Address]struct{} {
	m := make(map[common.Address]struct{}, len(assets))
	for _, a := range assets {
		m[a] = struct{}{}
	}
	return m
}

func predicted(asset common.Address, price int64) map[common.Address]*big.Int {
	return map[common.Address]*big.Int{asset: big.NewInt(price)}
}

func TestNewProjector(t *testing.T) {
	_, err := NewProjector(nil, func(common.Address) (*big.Int, bool) { return nil, false })
	assert.Error(t, err)
	_, err = NewProjector(NewStore(), nil)
	assert.Error(t, err)
}

func TestProject(t *testing.T) {
	// Baseline scenario: 100 units of collateral at price 1000 with an 80%
	// threshold (80000 effective) against 50 units of debt at price 1000
	// (50000 effective) give a health factor of 1.6.
	setupHealthyUser := func(t *testing.T) *projectorHarness {
		h := newProjectorHarness(t)
		h.addAsset(wethAddr, 8000)
		h.addAsset(usdcAddr, 8000)
		h.setPrice(wethAddr, 1000)
		h.setPrice(usdcAddr, 1000)
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: wethAddr,
			CollateralBalance: big.NewInt(100), CollateralEnabled: true,
		})
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: usdcAddr,
			DebtBalance: big.NewInt(50),
		})
		return h
	}

	t.Run("FlagsCrossingBelowOne", func(t *testing.T) {
		h := setupHealthyUser(t)

		// Collateral price falls to 600: 48000 effective against 50000 debt.
		atRisk, skipped := h.projector.Project(updated(wethAddr), predicted(wethAddr, 600))
		require.Len(t, atRisk, 1)
		assert.Zero(t, skipped)

		u := atRisk[0]
		assert.Equal(t, testUser, u.User)
		assert.True(t, u.CurrentHealthFactor.Equal(decimal.NewFromFloat(1.6)), "current %s", u.CurrentHealthFactor)
		assert.True(t, u.PredictedHealthFactor.Equal(decimal.NewFromFloat(0.96)), "predicted %s", u.PredictedHealthFactor)
		assert.Equal(t, int64(48000), u.EffectiveCollateral.Int64())
		assert.Equal(t, int64(50000), u.EffectiveDebt.Int64())
	})

	t.Run("NoFlagWhileStillAboveOne", func(t *testing.T) {
		h := setupHealthyUser(t)

		// A mild drop to 900 leaves 72000 against 50000: still healthy.
		atRisk, skipped := h.projector.Project(updated(wethAddr), predicted(wethAddr, 900))
		assert.Empty(t, atRisk)
		assert.Zero(t, skipped)
	})

	t.Run("AlreadyUnderwaterNotReflagged", func(t *testing.T) {
		h := setupHealthyUser(t)
		h.store.SetHealthFactor(testUser, decimal.NewFromFloat(0.9))

		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 600))
		assert.Empty(t, atRisk)
	})

	t.Run("RecoveryDirectionNeverFlags", func(t *testing.T) {
		h := setupHealthyUser(t)
		h.store.SetHealthFactor(testUser, decimal.NewFromFloat(0.9))

		// Price rises: the projection moves the user out of danger.
		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 2000))
		assert.Empty(t, atRisk)
	})

	t.Run("BaselineDerivedWhenNoStoredHealthFactor", func(t *testing.T) {
		h := setupHealthyUser(t)

		// Nothing was stored via SetHealthFactor; the current value must be
		// recomputed from confirmed prices.
		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 600))
		require.Len(t, atRisk, 1)
		assert.True(t, atRisk[0].CurrentHealthFactor.Equal(decimal.NewFromFloat(1.6)))
	})

	t.Run("NonUpdatedAssetsKeepConfirmedPrices", func(t *testing.T) {
		h := setupHealthyUser(t)

		// Only the debt asset is updated; collateral stays at confirmed
		// 1000. Debt price doubles: 80000 against 100000.
		atRisk, skipped := h.projector.Project(updated(usdcAddr), predicted(usdcAddr, 2000))
		require.Len(t, atRisk, 1)
		assert.Zero(t, skipped)
		assert.True(t, atRisk[0].PredictedHealthFactor.Equal(decimal.NewFromFloat(0.8)))
	})

	t.Run("DustPositionsExcluded", func(t *testing.T) {
		h := newProjectorHarness(t)
		h.addAsset(wethAddr, 8000)
		h.addAsset(usdcAddr, 8000)
		h.setPrice(wethAddr, 1000)
		h.setPrice(usdcAddr, 1000)
		// 16000 effective collateral but only 10 effective debt: below the
		// materiality floor on the debt side.
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: wethAddr,
			CollateralBalance: big.NewInt(20), CollateralEnabled: true,
		})
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: usdcAddr,
			DebtBalance: big.NewInt(10), CollateralEnabled: false,
		})

		atRisk, skipped := h.projector.Project(updated(wethAddr), predicted(wethAddr, 1))
		assert.Empty(t, atRisk)
		assert.Zero(t, skipped)
	})

	t.Run("ZeroDebtGetsSentinelHealthFactor", func(t *testing.T) {
		h := newProjectorHarness(t)
		h.addAsset(wethAddr, 8000)
		h.setPrice(wethAddr, 1000)
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: wethAddr,
			CollateralBalance: big.NewInt(100), CollateralEnabled: true,
		})

		// Debt-free users never flag, whatever happens to prices.
		atRisk, skipped := h.projector.Project(updated(wethAddr), predicted(wethAddr, 1))
		assert.Empty(t, atRisk)
		assert.Zero(t, skipped)

		refreshed, _ := h.projector.RefreshHealthFactors(updated(wethAddr))
		require.Equal(t, 1, refreshed)
		hf, ok := h.store.HealthFactor(testUser)
		require.True(t, ok)
		assert.True(t, hf.Equal(decimal.NewFromInt(1_000_000)))
	})

	t.Run("MissingPredictedPriceSkipsUser", func(t *testing.T) {
		h := setupHealthyUser(t)

		atRisk, skipped := h.projector.Project(updated(wethAddr), nil)
		assert.Empty(t, atRisk)
		assert.Equal(t, 1, skipped)
	})

	t.Run("MissingConfirmedPriceSkipsUser", func(t *testing.T) {
		h := setupHealthyUser(t)
		delete(h.prices, usdcAddr)

		_, skipped := h.projector.Project(updated(wethAddr), predicted(wethAddr, 600))
		assert.Equal(t, 1, skipped)
	})

	t.Run("MissingConfigurationSkipsUser", func(t *testing.T) {
		h := setupHealthyUser(t)
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: common.HexToAddress("0xBEEF"),
			DebtBalance: big.NewInt(1),
		})

		_, skipped := h.projector.Project(updated(wethAddr), predicted(wethAddr, 600))
		assert.Equal(t, 1, skipped)
	})

	t.Run("DisabledCollateralDoesNotCount", func(t *testing.T) {
		h := setupHealthyUser(t)
		h.store.SetCollateralEnabled(testUser, wethAddr, false)

		// With collateral ignored the user's debt stands alone: effective
		// collateral 0 fails materiality, so nothing is flagged.
		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 600))
		assert.Empty(t, atRisk)
	})

	t.Run("OutputSortedByUser", func(t *testing.T) {
		h := newProjectorHarness(t)
		h.addAsset(wethAddr, 8000)
		h.addAsset(usdcAddr, 8000)
		h.setPrice(wethAddr, 1000)
		h.setPrice(usdcAddr, 1000)
		for _, user := range []common.Address{otherUser, testUser} {
			h.store.SetPosition(UserPosition{
				User: user, Asset: wethAddr,
				CollateralBalance: big.NewInt(100), CollateralEnabled: true,
			})
			h.store.SetPosition(UserPosition{
				User: user, Asset: usdcAddr,
				DebtBalance: big.NewInt(50),
			})
		}

		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 600))
		require.Len(t, atRisk, 2)
		assert.True(t, atRisk[0].User.Hex() < atRisk[1].User.Hex())
	})
}

func TestProjectEMode(t *testing.T) {
	// 100 collateral units at price 1000: the base 80% threshold yields
	// 80000 effective, the 90% eMode threshold 90000. Against 85000 debt the
	// account is only healthy under eMode.
	setup := func(t *testing.T, userCategory, assetCategory uint8) *projectorHarness {
		h := newProjectorHarness(t)
		h.store.SetConfiguration(AssetConfiguration{
			Asset:                          wethAddr,
			Decimals:                       0,
			CollateralLiquidationThreshold: 8000,
			EModeCategory:                  assetCategory,
			EModeLiquidationThreshold:      9000,
		})
		h.addAsset(usdcAddr, 8000)
		h.setPrice(wethAddr, 1000)
		h.setPrice(usdcAddr, 1000)
		h.store.SetEMode(testUser, userCategory)
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: wethAddr,
			CollateralBalance: big.NewInt(100), CollateralEnabled: true,
		})
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: usdcAddr,
			DebtBalance: big.NewInt(85),
		})
		return h
	}

	t.Run("EModeThresholdSelectedPerAsset", func(t *testing.T) {
		h := setup(t, 1, 1)

		// Price slips to 900: eMode collateral 81000 against 85000 debt
		// crosses below 1 from an eMode baseline of 90000/85000.
		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 900))
		require.Len(t, atRisk, 1)
		assert.True(t, atRisk[0].CurrentHealthFactor.GreaterThan(decimal.NewFromInt(1)))
		assert.Equal(t, int64(81000), atRisk[0].EffectiveCollateral.Int64())
	})

	t.Run("BaseThresholdWithoutEMode", func(t *testing.T) {
		h := setup(t, 0, 1)

		// Base threshold makes the account already unhealthy at the
		// confirmed price, so the same drop is not a crossing.
		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 900))
		assert.Empty(t, atRisk)
	})

	t.Run("WrongCategoryGetsBaseThreshold", func(t *testing.T) {
		// The user's category is not the one the asset recognizes: the
		// asset's eMode threshold must not apply.
		h := setup(t, 2, 1)

		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 900))
		assert.Empty(t, atRisk)
	})

	t.Run("CategoryZeroAssetIgnoresUserCategory", func(t *testing.T) {
		// The asset has no eMode configuration: the user's category must not
		// pull in the unset eMode threshold.
		h := setup(t, 1, 0)

		atRisk, _ := h.projector.Project(updated(wethAddr), predicted(wethAddr, 900))
		assert.Empty(t, atRisk)
	})
}

func TestRefreshHealthFactors(t *testing.T) {
	setup := func(t *testing.T) *projectorHarness {
		h := newProjectorHarness(t)
		h.addAsset(wethAddr, 8000)
		h.addAsset(usdcAddr, 8000)
		h.setPrice(wethAddr, 1000)
		h.setPrice(usdcAddr, 1000)
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: wethAddr,
			CollateralBalance: big.NewInt(100), CollateralEnabled: true,
		})
		h.store.SetPosition(UserPosition{
			User: testUser, Asset: usdcAddr,
			DebtBalance: big.NewInt(50),
		})
		h.store.SetPosition(UserPosition{
			User: otherUser, Asset: usdcAddr,
			DebtBalance: big.NewInt(10),
		})
		return h
	}

	t.Run("RefreshesUsersHoldingUpdatedAssets", func(t *testing.T) {
		h := setup(t)

		refreshed, skipped := h.projector.RefreshHealthFactors(updated(wethAddr))
		assert.Equal(t, 1, refreshed)
		assert.Zero(t, skipped)

		hf, ok := h.store.HealthFactor(testUser)
		require.True(t, ok)
		assert.True(t, hf.Equal(decimal.NewFromFloat(1.6)))

		_, ok = h.store.HealthFactor(otherUser)
		assert.False(t, ok, "untouched user must not be recomputed")
	})

	t.Run("UpdatedPricesFlowIntoRefresh", func(t *testing.T) {
		h := setup(t)
		h.projector.RefreshHealthFactors(updated(wethAddr))

		h.setPrice(wethAddr, 500)
		refreshed, _ := h.projector.RefreshHealthFactors(updated(wethAddr))
		require.Equal(t, 1, refreshed)

		hf, _ := h.store.HealthFactor(testUser)
		assert.True(t, hf.Equal(decimal.NewFromFloat(0.8)))
	})

	t.Run("MissingPriceCountsAsSkipped", func(t *testing.T) {
		h := setup(t)
		delete(h.prices, usdcAddr)

		refreshed, skipped := h.projector.RefreshHealthFactors(updated(wethAddr))
		assert.Zero(t, refreshed)
		assert.Equal(t, 1, skipped)
	})
}
