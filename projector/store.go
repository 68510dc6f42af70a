// Package projector recomputes account health under substituted prices and
// flags accounts whose health factor would cross below 1.
package projector

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetConfiguration is the latest known configuration for one reserve
// asset. Thresholds and bonuses are basis points.
type AssetConfiguration struct {
	Asset                          common.Address
	Decimals                       uint8
	CollateralLTV                  uint64
	CollateralLiquidationThreshold uint64
	CollateralLiquidationBonus     uint64
	EModeCategory                  uint8
	EModeLiquidationThreshold      uint64
	EModeLiquidationBonus          uint64
	AToken                         common.Address
	VariableDebtToken              common.Address
}

// UserPosition is the accrued balance state for one (user, asset) pair, in
// the asset's scaled units. EModeCategory is the user's active eMode
// category (0 = none); it is account-level state stamped onto every
// position the user holds.
type UserPosition struct {
	User              common.Address
	Asset             common.Address
	CollateralBalance *big.Int
	DebtBalance       *big.Int
	CollateralEnabled bool
	EModeCategory     uint8
}

// Store holds the configuration and position state the projector reads.
// Writers are the event appliers and the balance verifier; the projector
// itself never mutates it.
type Store struct {
	mu            sync.RWMutex
	configs       map[common.Address]AssetConfiguration
	positions     map[common.Address]map[common.Address]*UserPosition // user -> asset -> position
	emodeCategory map[common.Address]uint8                            // account-level eMode category
	healthFactors map[common.Address]decimal.Decimal                  // latest confirmed per user
}

func NewStore() *Store {
	return &Store{
		configs:       make(map[common.Address]AssetConfiguration),
		positions:     make(map[common.Address]map[common.Address]*UserPosition),
		emodeCategory: make(map[common.Address]uint8),
		healthFactors: make(map[common.Address]decimal.Decimal),
	}
}

// SetConfiguration replaces the configuration for an asset. Called when a
// configuration-change event arrives.
func (s *Store) SetConfiguration(cfg AssetConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Asset] = cfg
}

// Configuration returns the configuration for an asset.
func (s *Store) Configuration(asset common.Address) (AssetConfiguration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[asset]
	return cfg, ok
}

// SetPosition replaces a (user, asset) position. Balances are deep-copied.
// The eMode category is account-level state owned by SetEMode; whatever the
// caller passes is overwritten with the user's recorded category.
func (s *Store) SetPosition(p UserPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAsset, ok := s.positions[p.User]
	if !ok {
		byAsset = make(map[common.Address]*UserPosition)
		s.positions[p.User] = byAsset
	}
	stored := p
	stored.EModeCategory = s.emodeCategory[p.User]
	if p.CollateralBalance != nil {
		stored.CollateralBalance = new(big.Int).Set(p.CollateralBalance)
	} else {
		stored.CollateralBalance = new(big.Int)
	}
	if p.DebtBalance != nil {
		stored.DebtBalance = new(big.Int).Set(p.DebtBalance)
	} else {
		stored.DebtBalance = new(big.Int)
	}
	byAsset[p.Asset] = &stored
}

// AdjustPosition applies balance deltas from an accrual event. Negative
// results clamp to zero; scaled balances never go below empty.
func (s *Store) AdjustPosition(user, asset common.Address, collateralDelta, debtDelta *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAsset, ok := s.positions[user]
	if !ok {
		byAsset = make(map[common.Address]*UserPosition)
		s.positions[user] = byAsset
	}
	p, ok := byAsset[asset]
	if !ok {
		p = &UserPosition{
			User:              user,
			Asset:             asset,
			CollateralBalance: new(big.Int),
			DebtBalance:       new(big.Int),
			EModeCategory:     s.emodeCategory[user],
		}
		byAsset[asset] = p
	}
	if collateralDelta != nil {
		p.CollateralBalance.Add(p.CollateralBalance, collateralDelta)
		if p.CollateralBalance.Sign() < 0 {
			p.CollateralBalance.SetInt64(0)
		}
	}
	if debtDelta != nil {
		p.DebtBalance.Add(p.DebtBalance, debtDelta)
		if p.DebtBalance.Sign() < 0 {
			p.DebtBalance.SetInt64(0)
		}
	}
}

// SetCollateralEnabled flips the collateral-usage flag for a (user, asset)
// pair.
func (s *Store) SetCollateralEnabled(user, asset common.Address, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byAsset, ok := s.positions[user]; ok {
		if p, ok := byAsset[asset]; ok {
			p.CollateralEnabled = enabled
		}
	}
}

// SetEMode records the user's active eMode category (0 leaves eMode) and
// stamps it on every position they hold. eMode is account-level; threshold
// selection stays asset-specific by matching the category against each
// asset's configured one.
func (s *Store) SetEMode(user common.Address, category uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emodeCategory[user] = category
	for _, p := range s.positions[user] {
		p.EModeCategory = category
	}
}

// EModeCategory returns the user's active eMode category, 0 if none.
func (s *Store) EModeCategory(user common.Address) uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emodeCategory[user]
}

// SetHealthFactor records the latest confirmed health factor for a user.
func (s *Store) SetHealthFactor(user common.Address, hf decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthFactors[user] = hf
}

// HealthFactor returns the latest confirmed health factor for a user.
func (s *Store) HealthFactor(user common.Address) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hf, ok := s.healthFactors[user]
	return hf, ok
}

// PositionsSnapshot returns a deep copy of all positions, grouped by user.
// The projector works on the copy so one projection run sees a consistent
// state even while events keep arriving.
func (s *Store) PositionsSnapshot() map[common.Address][]UserPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address][]UserPosition, len(s.positions))
	for user, byAsset := range s.positions {
		list := make([]UserPosition, 0, len(byAsset))
		for _, p := range byAsset {
			cp := *p
			cp.CollateralBalance = new(big.Int).Set(p.CollateralBalance)
			cp.DebtBalance = new(big.Int).Set(p.DebtBalance)
			list = append(list, cp)
		}
		out[user] = list
	}
	return out
}

// Positions returns the deep-copied positions for a single user.
func (s *Store) Positions(user common.Address) []UserPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byAsset, ok := s.positions[user]
	if !ok {
		return nil
	}
	list := make([]UserPosition, 0, len(byAsset))
	for _, p := range byAsset {
		cp := *p
		cp.CollateralBalance = new(big.Int).Set(p.CollateralBalance)
		cp.DebtBalance = new(big.Int).Set(p.DebtBalance)
		list = append(list, cp)
	}
	return list
}
