package oracle

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

// Origin discriminates where a component snapshot came from.
type Origin uint8

const (
	OriginEvent Origin = iota + 1
	OriginTransaction
)

func (o Origin) String() string {
	switch o {
	case OriginEvent:
		return "event"
	case OriginTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Components is one resolved snapshot of the four orthogonal price inputs.
// MaxCap nil means uncapped.
type Components struct {
	Asset       common.Address
	Source      common.Address
	Kind        kinds.Kind
	Numerator   *big.Int
	Denominator *big.Int
	Multiplier  *big.Int
	MaxCap      *big.Int
	Timestamp   time.Time
	Origin      Origin
}

var (
	ErrMissingComponent  = errors.New("price component missing")
	ErrNegativeComponent = errors.New("price component negative")
	ErrZeroDenominator   = errors.New("price denominator is zero")
)

// AssemblePrice combines the components into a final integer price:
//
//	price = floor(numerator * multiplier / denominator)
//
// The cap clamps the multiplier before the multiplication, not the final
// price: it models maximum allowed exchange-rate growth, not a maximum USD
// price. Division always truncates, matching EVM integer semantics.
func AssemblePrice(c Components) (*big.Int, error) {
	if c.Numerator == nil || c.Denominator == nil || c.Multiplier == nil {
		return nil, ErrMissingComponent
	}
	if c.Numerator.Sign() < 0 || c.Denominator.Sign() < 0 || c.Multiplier.Sign() < 0 {
		return nil, ErrNegativeComponent
	}
	if c.Denominator.Sign() == 0 {
		return nil, ErrZeroDenominator
	}

	m := c.Multiplier
	if c.MaxCap != nil && m.Cmp(c.MaxCap) > 0 {
		m = c.MaxCap
	}

	price := new(big.Int).Mul(c.Numerator, m)
	return price.Quo(price, c.Denominator), nil
}

// ComponentRecord is one audit row: a single resolved component value for
// an (asset, source) pair.
type ComponentRecord struct {
	Asset     common.Address
	Source    common.Address
	Kind      kinds.Kind
	Component Field
	Value     *big.Int
	Timestamp time.Time
	Origin    Origin
}

// Records expands a snapshot into one row per component type, for the
// append-style audit log. The uncapped sentinel produces no max-cap row.
func (c Components) Records() []ComponentRecord {
	rows := []ComponentRecord{
		{Asset: c.Asset, Source: c.Source, Kind: c.Kind, Component: FieldNumerator, Value: c.Numerator, Timestamp: c.Timestamp, Origin: c.Origin},
		{Asset: c.Asset, Source: c.Source, Kind: c.Kind, Component: FieldDenominator, Value: c.Denominator, Timestamp: c.Timestamp, Origin: c.Origin},
		{Asset: c.Asset, Source: c.Source, Kind: c.Kind, Component: FieldMultiplier, Value: c.Multiplier, Timestamp: c.Timestamp, Origin: c.Origin},
	}
	if c.MaxCap != nil {
		rows = append(rows, ComponentRecord{
			Asset: c.Asset, Source: c.Source, Kind: c.Kind,
			Component: FieldMaxCap, Value: c.MaxCap, Timestamp: c.Timestamp, Origin: c.Origin,
		})
	}
	return rows
}
