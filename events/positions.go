package events

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aknirmal90/liquidations-v2-sub000/abi"
	"github.com/aknirmal90/liquidations-v2-sub000/projector"
)

var (
	SupplyEvent                  = abi.PoolABI.Events["Supply"].ID
	WithdrawEvent                = abi.PoolABI.Events["Withdraw"].ID
	BorrowEvent                  = abi.PoolABI.Events["Borrow"].ID
	RepayEvent                   = abi.PoolABI.Events["Repay"].ID
	CollateralEnabledEvent       = abi.PoolABI.Events["ReserveUsedAsCollateralEnabled"].ID
	CollateralDisabledEvent      = abi.PoolABI.Events["ReserveUsedAsCollateralDisabled"].ID
	UserEModeSetEvent            = abi.PoolABI.Events["UserEModeSet"].ID
	CollateralConfigChangedEvent = abi.PoolABI.Events["CollateralConfigurationChanged"].ID
)

// PoolTopics lists every pool event the position applier consumes, for log
// filters and bloom checks.
var PoolTopics = []common.Hash{
	SupplyEvent,
	WithdrawEvent,
	BorrowEvent,
	RepayEvent,
	CollateralEnabledEvent,
	CollateralDisabledEvent,
	UserEModeSetEvent,
	CollateralConfigChangedEvent,
}

// PositionEventInBloom reports whether a block's bloom filter may contain any
// pool event the position applier cares about.
func PositionEventInBloom(bloom types.Bloom) bool {
	for _, topic := range PoolTopics {
		if bloom.Test(topic.Bytes()) {
			return true
		}
	}
	return false
}

// PositionStore is the mutation surface the pool event applier writes to.
// *projector.Store satisfies it.
type PositionStore interface {
	AdjustPosition(user, asset common.Address, collateralDelta, debtDelta *big.Int)
	SetCollateralEnabled(user, asset common.Address, enabled bool)
	SetEMode(user common.Address, category uint8)
	Configuration(asset common.Address) (projector.AssetConfiguration, bool)
	SetConfiguration(cfg projector.AssetConfiguration)
}

// ApplyPositionEvents replays a block's pool logs into the position store:
// Supply/Withdraw adjust scaled collateral, Borrow/Repay adjust scaled debt,
// the collateral toggles flip the usage flag, UserEModeSet switches the
// account's eMode category, and CollateralConfigurationChanged merges the new
// risk parameters into the asset's configuration. Balance owners follow the
// pool's semantics: the onBehalfOf party owns supplied collateral and
// borrowed debt, not the transaction sender. A malformed log is dropped and
// never halts the batch.
func ApplyPositionEvents(logs []types.Log, store PositionStore) (applied, dropped int) {
	for _, log := range logs {
		if len(log.Topics) == 0 {
			continue
		}
		switch log.Topics[0] {
		case SupplyEvent:
			// Supply(reserve idx, user, onBehalfOf idx, amount, referralCode idx)
			if len(log.Topics) != 4 || len(log.Data) != 64 {
				dropped++
				continue
			}
			reserve := common.BytesToAddress(log.Topics[1].Bytes())
			owner := common.BytesToAddress(log.Topics[2].Bytes())
			amount := new(big.Int).SetBytes(log.Data[32:64])
			store.AdjustPosition(owner, reserve, amount, nil)
			applied++

		case WithdrawEvent:
			// Withdraw(reserve idx, user idx, to idx, amount)
			if len(log.Topics) != 4 || len(log.Data) != 32 {
				dropped++
				continue
			}
			reserve := common.BytesToAddress(log.Topics[1].Bytes())
			owner := common.BytesToAddress(log.Topics[2].Bytes())
			amount := new(big.Int).SetBytes(log.Data)
			store.AdjustPosition(owner, reserve, new(big.Int).Neg(amount), nil)
			applied++

		case BorrowEvent:
			// Borrow(reserve idx, user, onBehalfOf idx, amount,
			// interestRateMode, borrowRate, referralCode idx)
			if len(log.Topics) != 4 || len(log.Data) != 128 {
				dropped++
				continue
			}
			reserve := common.BytesToAddress(log.Topics[1].Bytes())
			owner := common.BytesToAddress(log.Topics[2].Bytes())
			amount := new(big.Int).SetBytes(log.Data[32:64])
			store.AdjustPosition(owner, reserve, nil, amount)
			applied++

		case RepayEvent:
			// Repay(reserve idx, user idx, repayer idx, amount, useATokens)
			if len(log.Topics) != 4 || len(log.Data) != 64 {
				dropped++
				continue
			}
			reserve := common.BytesToAddress(log.Topics[1].Bytes())
			owner := common.BytesToAddress(log.Topics[2].Bytes())
			amount := new(big.Int).SetBytes(log.Data[0:32])
			store.AdjustPosition(owner, reserve, nil, new(big.Int).Neg(amount))
			applied++

		case CollateralEnabledEvent, CollateralDisabledEvent:
			// ReserveUsedAsCollateral{Enabled,Disabled}(reserve idx, user idx)
			if len(log.Topics) != 3 || len(log.Data) != 0 {
				dropped++
				continue
			}
			reserve := common.BytesToAddress(log.Topics[1].Bytes())
			user := common.BytesToAddress(log.Topics[2].Bytes())
			store.SetCollateralEnabled(user, reserve, log.Topics[0] == CollateralEnabledEvent)
			applied++

		case UserEModeSetEvent:
			// UserEModeSet(user idx, categoryId)
			if len(log.Topics) != 2 || len(log.Data) != 32 {
				dropped++
				continue
			}
			category := new(big.Int).SetBytes(log.Data)
			if !category.IsUint64() || category.Uint64() > math.MaxUint8 {
				dropped++
				continue
			}
			user := common.BytesToAddress(log.Topics[1].Bytes())
			store.SetEMode(user, uint8(category.Uint64()))
			applied++

		case CollateralConfigChangedEvent:
			// CollateralConfigurationChanged(asset idx, ltv, liquidationThreshold,
			// liquidationBonus)
			if len(log.Topics) != 2 || len(log.Data) != 96 {
				dropped++
				continue
			}
			ltv := new(big.Int).SetBytes(log.Data[0:32])
			threshold := new(big.Int).SetBytes(log.Data[32:64])
			bonus := new(big.Int).SetBytes(log.Data[64:96])
			if !ltv.IsUint64() || !threshold.IsUint64() || !bonus.IsUint64() {
				dropped++
				continue
			}
			asset := common.BytesToAddress(log.Topics[1].Bytes())
			// Merge into whatever bootstrap configuration exists so the
			// eMode parameters and token pointers survive the update.
			cfg, _ := store.Configuration(asset)
			cfg.Asset = asset
			cfg.CollateralLTV = ltv.Uint64()
			cfg.CollateralLiquidationThreshold = threshold.Uint64()
			cfg.CollateralLiquidationBonus = bonus.Uint64()
			store.SetConfiguration(cfg)
			applied++
		}
	}
	return applied, dropped
}
