// Package verifier reconciles tracked account balances against on-chain
// state. Event application can drift from chain truth after reorgs or
// missed logs; the verifier reads the authoritative aToken and variable
// debt token balances and corrects the store in place.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/abi"
	"github.com/aknirmal90/liquidations-v2-sub000/calls"
	"github.com/aknirmal90/liquidations-v2-sub000/projector"
)

// BatchCallFunc executes a set of contract reads and returns index-aligned
// results and errors.
type BatchCallFunc func(ctx context.Context, reqs []calls.Request, client ethclients.ETHClient) ([]*big.Int, []error)

// GetClientFunc returns a healthy client for RPC reads.
type GetClientFunc func() (ethclients.ETHClient, error)

// Drift records one position whose stored balances disagreed with chain
// state. Stored values are captured before correction.
type Drift struct {
	User             common.Address
	Asset            common.Address
	StoredCollateral *big.Int
	ChainCollateral  *big.Int
	StoredDebt       *big.Int
	ChainDebt        *big.Int
}

type Verifier struct {
	store     *projector.Store
	batchCall BatchCallFunc
	getClient GetClientFunc
}

func NewVerifier(store *projector.Store, batchCall BatchCallFunc, getClient GetClientFunc) (*Verifier, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if batchCall == nil {
		return nil, errors.New("batch call function is required")
	}
	if getClient == nil {
		return nil, errors.New("get client function is required")
	}
	return &Verifier{store: store, batchCall: batchCall, getClient: getClient}, nil
}

// VerifyUsers reads every tracked position of the given users from chain
// and overwrites stored balances where they disagree. It returns the
// corrected positions and the first read error encountered, if any; a
// partial batch still applies the corrections it could verify.
func (v *Verifier) VerifyUsers(ctx context.Context, users []common.Address) ([]Drift, error) {
	type slot struct {
		user     common.Address
		position projector.UserPosition
	}

	var slots []slot
	var reqs []calls.Request
	for _, user := range users {
		data, err := abi.ERC20ABI.Pack("balanceOf", user)
		if err != nil {
			return nil, fmt.Errorf("pack balanceOf for %s: %w", user.Hex(), err)
		}
		for _, pos := range v.store.Positions(user) {
			cfg, ok := v.store.Configuration(pos.Asset)
			if !ok {
				continue
			}
			slots = append(slots, slot{user: user, position: pos})
			// Two reads per position, collateral then debt, so request
			// index 2i and 2i+1 map back to slot i.
			reqs = append(reqs,
				calls.Request{Target: cfg.AToken, Method: "balanceOf", Data: data},
				calls.Request{Target: cfg.VariableDebtToken, Method: "balanceOf", Data: data},
			)
		}
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	client, err := v.getClient()
	if err != nil {
		return nil, fmt.Errorf("no healthy client for verification: %w", err)
	}

	results, errs := v.batchCall(ctx, reqs, client)

	var drifts []Drift
	var firstErr error
	for i, s := range slots {
		collateral, debt := results[2*i], results[2*i+1]
		if readErr := errors.Join(errs[2*i], errs[2*i+1]); readErr != nil {
			if firstErr == nil {
				firstErr = readErr
			}
			continue
		}

		if collateral.Cmp(s.position.CollateralBalance) == 0 && debt.Cmp(s.position.DebtBalance) == 0 {
			continue
		}

		drifts = append(drifts, Drift{
			User:             s.user,
			Asset:            s.position.Asset,
			StoredCollateral: new(big.Int).Set(s.position.CollateralBalance),
			ChainCollateral:  new(big.Int).Set(collateral),
			StoredDebt:       new(big.Int).Set(s.position.DebtBalance),
			ChainDebt:        new(big.Int).Set(debt),
		})

		corrected := s.position
		corrected.CollateralBalance = new(big.Int).Set(collateral)
		corrected.DebtBalance = new(big.Int).Set(debt)
		v.store.SetPosition(corrected)
	}

	return drifts, firstErr
}
