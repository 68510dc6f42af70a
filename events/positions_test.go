package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aknirmal90/liquidations-v2-sub000/projector"
)

var (
	wethReserve = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcReserve = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	poolUser    = common.HexToAddress("0x47ebaB13B806773ec2A2d16873e2dF770D130b50")
	poolCaller  = common.HexToAddress("0x8b5B7a6055E54a36fF574bbE40cf2eA68d5554b3")
)

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func supplyLog(reserve, caller, onBehalfOf common.Address, amount int64) types.Log {
	data := make([]byte, 0, 64)
	data = append(data, addrTopic(caller).Bytes()...)
	data = append(data, hashFromInt(amount).Bytes()...)
	return types.Log{
		Address: wethReserve,
		Topics:  []common.Hash{SupplyEvent, addrTopic(reserve), addrTopic(onBehalfOf), hashFromInt(0)},
		Data:    data,
	}
}

func withdrawLog(reserve, user, to common.Address, amount int64) types.Log {
	return types.Log{
		Address: wethReserve,
		Topics:  []common.Hash{WithdrawEvent, addrTopic(reserve), addrTopic(user), addrTopic(to)},
		Data:    hashFromInt(amount).Bytes(),
	}
}

func borrowLog(reserve, caller, onBehalfOf common.Address, amount int64) types.Log {
	data := make([]byte, 0, 128)
	data = append(data, addrTopic(caller).Bytes()...)
	data = append(data, hashFromInt(amount).Bytes()...)
	data = append(data, hashFromInt(2).Bytes()...) // variable rate mode
	data = append(data, hashFromInt(45000000).Bytes()...)
	return types.Log{
		Address: wethReserve,
		Topics:  []common.Hash{BorrowEvent, addrTopic(reserve), addrTopic(onBehalfOf), hashFromInt(0)},
		Data:    data,
	}
}

func repayLog(reserve, user, repayer common.Address, amount int64) types.Log {
	data := make([]byte, 0, 64)
	data = append(data, hashFromInt(amount).Bytes()...)
	data = append(data, hashFromInt(0).Bytes()...)
	return types.Log{
		Address: wethReserve,
		Topics:  []common.Hash{RepayEvent, addrTopic(reserve), addrTopic(user), addrTopic(repayer)},
		Data:    data,
	}
}

func collateralToggleLog(reserve, user common.Address, enabled bool) types.Log {
	topic := CollateralDisabledEvent
	if enabled {
		topic = CollateralEnabledEvent
	}
	return types.Log{
		Address: wethReserve,
		Topics:  []common.Hash{topic, addrTopic(reserve), addrTopic(user)},
	}
}

func userEModeLog(user common.Address, category int64) types.Log {
	return types.Log{
		Address: wethReserve,
		Topics:  []common.Hash{UserEModeSetEvent, addrTopic(user)},
		Data:    hashFromInt(category).Bytes(),
	}
}

func collateralConfigLog(asset common.Address, ltv, threshold, bonus int64) types.Log {
	data := make([]byte, 0, 96)
	data = append(data, hashFromInt(ltv).Bytes()...)
	data = append(data, hashFromInt(threshold).Bytes()...)
	data = append(data, hashFromInt(bonus).Bytes()...)
	return types.Log{
		Address: wethReserve,
		Topics:  []common.Hash{CollateralConfigChangedEvent, addrTopic(asset)},
		Data:    data,
	}
}

func positionFor(t *testing.T, store *projector.Store, user, asset common.Address) projector.UserPosition {
	t.Helper()
	for _, p := range store.Positions(user) {
		if p.Asset == asset {
			return p
		}
	}
	t.Fatalf("no position for %s in %s", user.Hex(), asset.Hex())
	return projector.UserPosition{}
}

func TestApplyPositionEvents(t *testing.T) {
	t.Run("SupplyAndWithdrawAdjustCollateral", func(t *testing.T) {
		store := projector.NewStore()
		applied, dropped := ApplyPositionEvents([]types.Log{
			supplyLog(wethReserve, poolCaller, poolUser, 1000),
			withdrawLog(wethReserve, poolUser, poolCaller, 400),
		}, store)
		assert.Equal(t, 2, applied)
		assert.Zero(t, dropped)

		// The onBehalfOf party owns the collateral, not the caller.
		p := positionFor(t, store, poolUser, wethReserve)
		assert.Equal(t, int64(600), p.CollateralBalance.Int64())
		assert.Empty(t, store.Positions(poolCaller))
	})

	t.Run("BorrowAndRepayAdjustDebt", func(t *testing.T) {
		store := projector.NewStore()
		applied, dropped := ApplyPositionEvents([]types.Log{
			borrowLog(usdcReserve, poolCaller, poolUser, 500),
			repayLog(usdcReserve, poolUser, poolCaller, 200),
		}, store)
		assert.Equal(t, 2, applied)
		assert.Zero(t, dropped)

		p := positionFor(t, store, poolUser, usdcReserve)
		assert.Equal(t, int64(300), p.DebtBalance.Int64())
		assert.Zero(t, p.CollateralBalance.Int64())
	})

	t.Run("CollateralToggleFlipsFlag", func(t *testing.T) {
		store := projector.NewStore()
		ApplyPositionEvents([]types.Log{
			supplyLog(wethReserve, poolUser, poolUser, 1000),
			collateralToggleLog(wethReserve, poolUser, true),
		}, store)
		assert.True(t, positionFor(t, store, poolUser, wethReserve).CollateralEnabled)

		ApplyPositionEvents([]types.Log{
			collateralToggleLog(wethReserve, poolUser, false),
		}, store)
		assert.False(t, positionFor(t, store, poolUser, wethReserve).CollateralEnabled)
	})

	t.Run("UserEModeSetSwitchesCategory", func(t *testing.T) {
		store := projector.NewStore()
		applied, dropped := ApplyPositionEvents([]types.Log{
			supplyLog(wethReserve, poolUser, poolUser, 1000),
			userEModeLog(poolUser, 1),
		}, store)
		assert.Equal(t, 2, applied)
		assert.Zero(t, dropped)
		assert.Equal(t, uint8(1), store.EModeCategory(poolUser))
		assert.Equal(t, uint8(1), positionFor(t, store, poolUser, wethReserve).EModeCategory)

		ApplyPositionEvents([]types.Log{userEModeLog(poolUser, 0)}, store)
		assert.Zero(t, store.EModeCategory(poolUser))
	})

	t.Run("CollateralConfigurationMergesIntoExisting", func(t *testing.T) {
		store := projector.NewStore()
		store.SetConfiguration(projector.AssetConfiguration{
			Asset:                          wethReserve,
			Decimals:                       18,
			CollateralLTV:                  8000,
			CollateralLiquidationThreshold: 8250,
			CollateralLiquidationBonus:     10500,
			EModeCategory:                  1,
			EModeLiquidationThreshold:      9300,
			AToken:                         poolCaller,
		})

		applied, dropped := ApplyPositionEvents([]types.Log{
			collateralConfigLog(wethReserve, 7900, 8100, 10600),
		}, store)
		assert.Equal(t, 1, applied)
		assert.Zero(t, dropped)

		cfg, ok := store.Configuration(wethReserve)
		require.True(t, ok)
		assert.Equal(t, uint64(7900), cfg.CollateralLTV)
		assert.Equal(t, uint64(8100), cfg.CollateralLiquidationThreshold)
		assert.Equal(t, uint64(10600), cfg.CollateralLiquidationBonus)

		// Parameters the event does not carry survive the merge.
		assert.Equal(t, uint8(18), cfg.Decimals)
		assert.Equal(t, uint8(1), cfg.EModeCategory)
		assert.Equal(t, uint64(9300), cfg.EModeLiquidationThreshold)
		assert.Equal(t, poolCaller, cfg.AToken)
	})

	t.Run("ConfigurationForUnknownAssetStillRecorded", func(t *testing.T) {
		store := projector.NewStore()
		applied, _ := ApplyPositionEvents([]types.Log{
			collateralConfigLog(usdcReserve, 7700, 7800, 10450),
		}, store)
		assert.Equal(t, 1, applied)

		cfg, ok := store.Configuration(usdcReserve)
		require.True(t, ok)
		assert.Equal(t, usdcReserve, cfg.Asset)
		assert.Equal(t, uint64(7800), cfg.CollateralLiquidationThreshold)
	})

	t.Run("MalformedLogsDroppedAndCounted", func(t *testing.T) {
		shortSupply := supplyLog(wethReserve, poolCaller, poolUser, 1000)
		shortSupply.Data = shortSupply.Data[:32]

		missingTopic := withdrawLog(wethReserve, poolUser, poolCaller, 400)
		missingTopic.Topics = missingTopic.Topics[:3]

		oversizedCategory := userEModeLog(poolUser, 1)
		oversizedCategory.Data = hashFromInt(300).Bytes()

		store := projector.NewStore()
		applied, dropped := ApplyPositionEvents([]types.Log{
			shortSupply,
			missingTopic,
			oversizedCategory,
			supplyLog(wethReserve, poolCaller, poolUser, 250),
		}, store)
		assert.Equal(t, 1, applied, "the valid log must survive the malformed ones")
		assert.Equal(t, 3, dropped)
		assert.Equal(t, int64(250), positionFor(t, store, poolUser, wethReserve).CollateralBalance.Int64())
	})

	t.Run("UnrelatedEventsIgnored", func(t *testing.T) {
		store := projector.NewStore()
		applied, dropped := ApplyPositionEvents([]types.Log{
			{Topics: []common.Hash{transferTopic, addrTopic(poolCaller), addrTopic(poolUser)}, Data: hashFromInt(1).Bytes()},
			{},
		}, store)
		assert.Zero(t, applied)
		assert.Zero(t, dropped)
	})

	t.Run("LargeAmountsKeepFullPrecision", func(t *testing.T) {
		amount, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
		require.True(t, ok)

		log := supplyLog(wethReserve, poolCaller, poolUser, 0)
		copy(log.Data[32:], common.BigToHash(amount).Bytes())

		store := projector.NewStore()
		applied, dropped := ApplyPositionEvents([]types.Log{log}, store)
		assert.Equal(t, 1, applied)
		assert.Zero(t, dropped)
		assert.Zero(t, amount.Cmp(positionFor(t, store, poolUser, wethReserve).CollateralBalance))
	})
}

func TestPositionEventInBloom(t *testing.T) {
	t.Run("SetWhenPoolEventPresent", func(t *testing.T) {
		var bloom types.Bloom
		bloom.Add(RepayEvent.Bytes())
		assert.True(t, PositionEventInBloom(bloom))
	})

	t.Run("EmptyBloomMisses", func(t *testing.T) {
		assert.False(t, PositionEventInBloom(types.Bloom{}))
	})
}
