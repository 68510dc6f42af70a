package projector

import (
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	// basisPointDivisor scales liquidation thresholds (basis points).
	basisPointDivisor = 10_000
)

var (
	// maxHealthFactor stands in for "infinite" health when a user has no
	// debt. It is a bounded constant so it stays comparable and storable.
	maxHealthFactor = decimal.NewFromInt(1_000_000)

	// materialityThreshold excludes dust positions from triggering
	// downstream work. The literal comparison is preserved from the
	// source system pending confirmation of its intended unit.
	materialityThreshold = big.NewInt(10_000)

	healthFactorOne = decimal.NewFromInt(1)
)

// PriceFunc looks up the latest confirmed price for an asset.
type PriceFunc func(asset common.Address) (*big.Int, bool)

// AtRiskUser is one account whose projected health factor crosses from
// above 1 to at-or-below 1 under the substituted prices.
type AtRiskUser struct {
	User                  common.Address
	CurrentHealthFactor   decimal.Decimal
	PredictedHealthFactor decimal.Decimal
	EffectiveCollateral   *big.Int
	EffectiveDebt         *big.Int
}

// Projector recomputes account health under hypothetical prices. It reads
// the store and the price snapshot; it never mutates either, so the
// prediction path cannot corrupt confirmed state.
type Projector struct {
	store           *Store
	historicalPrice PriceFunc
}

func NewProjector(store *Store, historicalPrice PriceFunc) (*Projector, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if historicalPrice == nil {
		return nil, errors.New("historical price function is required")
	}
	return &Projector{store: store, historicalPrice: historicalPrice}, nil
}

// Project evaluates every known position under prices where assets in
// updatedAssets take their predicted price and all others keep their
// latest confirmed price. It returns the newly at-risk users and the count
// of users skipped for missing prices.
//
// A user is flagged only on the crossing transition: confirmed health
// factor above 1 and projected at or below 1. Accounts already below 1 are
// presumed handled by the steady-state liquidation path and are not
// re-flagged.
func (p *Projector) Project(updatedAssets map[common.Address]struct{}, predictedPrices map[common.Address]*big.Int) (atRisk []AtRiskUser, skipped int) {
	snapshot := p.store.PositionsSnapshot()

	for user, positions := range snapshot {
		predicted, ok := p.evaluate(positions, updatedAssets, predictedPrices)
		if !ok {
			skipped++
			continue
		}

		// Dust positions are excluded before any transition check.
		if predicted.collateral.Cmp(materialityThreshold) <= 0 || predicted.debt.Cmp(materialityThreshold) <= 0 {
			continue
		}

		current, ok := p.store.HealthFactor(user)
		if !ok {
			// No confirmed health factor on record yet: derive it from the
			// same positions under fully historical prices.
			baseline, okBaseline := p.evaluate(positions, nil, nil)
			if !okBaseline {
				skipped++
				continue
			}
			current = baseline.healthFactor
		}

		if current.GreaterThan(healthFactorOne) && !predicted.healthFactor.GreaterThan(healthFactorOne) {
			atRisk = append(atRisk, AtRiskUser{
				User:                  user,
				CurrentHealthFactor:   current,
				PredictedHealthFactor: predicted.healthFactor,
				EffectiveCollateral:   predicted.collateral,
				EffectiveDebt:         predicted.debt,
			})
		}
	}

	// Map iteration order is random; a stable output order keeps detection
	// records and tests deterministic.
	sort.Slice(atRisk, func(i, j int) bool {
		return atRisk[i].User.Hex() < atRisk[j].User.Hex()
	})
	return atRisk, skipped
}

// RefreshHealthFactors recomputes and stores the confirmed health factor
// of every user holding any of the given assets, using confirmed prices
// throughout. It returns the number of users refreshed and skipped.
func (p *Projector) RefreshHealthFactors(assets map[common.Address]struct{}) (refreshed, skipped int) {
	snapshot := p.store.PositionsSnapshot()
	for user, positions := range snapshot {
		touched := false
		for _, pos := range positions {
			if _, ok := assets[pos.Asset]; ok {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		baseline, ok := p.evaluate(positions, nil, nil)
		if !ok {
			skipped++
			continue
		}
		p.store.SetHealthFactor(user, baseline.healthFactor)
		refreshed++
	}
	return refreshed, skipped
}

type evaluation struct {
	collateral   *big.Int
	debt         *big.Int
	healthFactor decimal.Decimal
}

// evaluate aggregates effective collateral and debt for one user's
// positions. Returns false when a required price or configuration is
// unavailable; a partial aggregate would misstate health.
func (p *Projector) evaluate(positions []UserPosition, updatedAssets map[common.Address]struct{}, predictedPrices map[common.Address]*big.Int) (evaluation, bool) {
	totalCollateral := new(big.Int)
	totalDebt := new(big.Int)

	for _, pos := range positions {
		if pos.CollateralBalance.Sign() == 0 && pos.DebtBalance.Sign() == 0 {
			continue
		}

		cfg, ok := p.store.Configuration(pos.Asset)
		if !ok {
			return evaluation{}, false
		}

		price, ok := p.selectPrice(pos.Asset, updatedAssets, predictedPrices)
		if !ok {
			return evaluation{}, false
		}

		assetUnit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.Decimals)), nil)

		if pos.CollateralEnabled && pos.CollateralBalance.Sign() > 0 {
			// The threshold choice is asset-specific: the eMode threshold
			// applies only when the user's active category matches the
			// asset's configured one (category 0 means no eMode).
			threshold := cfg.CollateralLiquidationThreshold
			if pos.EModeCategory != 0 && pos.EModeCategory == cfg.EModeCategory {
				threshold = cfg.EModeLiquidationThreshold
			}

			c := new(big.Int).Mul(pos.CollateralBalance, new(big.Int).SetUint64(threshold))
			c.Mul(c, price)
			c.Quo(c, big.NewInt(basisPointDivisor))
			c.Quo(c, assetUnit)
			totalCollateral.Add(totalCollateral, c)
		}

		if pos.DebtBalance.Sign() > 0 {
			d := new(big.Int).Mul(pos.DebtBalance, price)
			d.Quo(d, assetUnit)
			totalDebt.Add(totalDebt, d)
		}
	}

	hf := maxHealthFactor
	if totalDebt.Sign() > 0 {
		hf = decimal.NewFromBigInt(totalCollateral, 0).Div(decimal.NewFromBigInt(totalDebt, 0))
		if hf.GreaterThan(maxHealthFactor) {
			hf = maxHealthFactor
		}
	}

	return evaluation{collateral: totalCollateral, debt: totalDebt, healthFactor: hf}, true
}

func (p *Projector) selectPrice(asset common.Address, updatedAssets map[common.Address]struct{}, predictedPrices map[common.Address]*big.Int) (*big.Int, bool) {
	if _, updated := updatedAssets[asset]; updated {
		if price, ok := predictedPrices[asset]; ok && price != nil {
			return price, true
		}
		return nil, false
	}
	return p.historicalPrice(asset)
}
