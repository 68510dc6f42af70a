package liquidations

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
)

var (
	// ErrAssetExists is returned when attempting to add an asset that is already in the registry.
	ErrAssetExists = errors.New("asset already exists in registry")
	// ErrAssetNotFound is returned when attempting to access an asset that is not in the registry.
	ErrAssetNotFound = errors.New("asset not found in registry")
)

// PriceView is a read-only snapshot of one asset's latest confirmed price.
type PriceView struct {
	Asset     common.Address `json:"asset"`
	Source    common.Address `json:"source"`
	Kind      kinds.Kind     `json:"kind"`
	Price     *big.Int       `json:"price"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Block     uint64         `json:"block"`
}

// priceRegistry tracks confirmed prices for a large number of assets using
// a data-oriented design: parallel slices indexed together, with mapping
// layers separating the asset address from its physical index.
type priceRegistry struct {
	asset     []common.Address
	source    []common.Address
	kind      []kinds.Kind
	price     []*big.Int
	updatedAt []time.Time
	block     []uint64

	assetToIndex map[common.Address]int
	// sourceToAssets routes an observed log address to every asset priced
	// through it. Multiple assets can share one underlying aggregator.
	sourceToAssets map[common.Address][]common.Address
}

func newPriceRegistry() *priceRegistry {
	return &priceRegistry{
		assetToIndex:   make(map[common.Address]int),
		sourceToAssets: make(map[common.Address][]common.Address),
	}
}

func addAsset(
	asset, source common.Address,
	kind kinds.Kind,
	underlying []common.Address,
	registry *priceRegistry,
) error {
	if _, ok := registry.assetToIndex[asset]; ok {
		return ErrAssetExists
	}

	registry.asset = append(registry.asset, asset)
	registry.source = append(registry.source, source)
	registry.kind = append(registry.kind, kind)
	registry.price = append(registry.price, big.NewInt(0))
	registry.updatedAt = append(registry.updatedAt, time.Time{})
	registry.block = append(registry.block, 0)

	newIndex := len(registry.asset) - 1
	registry.assetToIndex[asset] = newIndex

	// The asset is reachable from its top-level source and from every
	// underlying aggregator whose logs can move its price.
	for _, src := range append([]common.Address{source}, underlying...) {
		if containsAddress(registry.sourceToAssets[src], asset) {
			continue
		}
		registry.sourceToAssets[src] = append(registry.sourceToAssets[src], asset)
	}

	return nil
}

func updatePrice(
	price *big.Int,
	blockNumber uint64,
	updatedAt time.Time,
	asset common.Address,
	registry *priceRegistry,
) error {
	index, ok := registry.assetToIndex[asset]
	if !ok {
		return ErrAssetNotFound
	}

	registry.price[index].Set(price)
	registry.updatedAt[index] = updatedAt
	registry.block[index] = blockNumber

	return nil
}

func deleteAsset(
	asset common.Address,
	registry *priceRegistry,
) error {
	indexToDelete, ok := registry.assetToIndex[asset]
	if !ok {
		return ErrAssetNotFound
	}

	lastIndex := len(registry.asset) - 1
	lastAsset := registry.asset[lastIndex]

	if indexToDelete != lastIndex {
		registry.asset[indexToDelete] = lastAsset
		registry.source[indexToDelete] = registry.source[lastIndex]
		registry.kind[indexToDelete] = registry.kind[lastIndex]
		registry.price[indexToDelete] = registry.price[lastIndex]
		registry.updatedAt[indexToDelete] = registry.updatedAt[lastIndex]
		registry.block[indexToDelete] = registry.block[lastIndex]
		registry.assetToIndex[lastAsset] = indexToDelete
	}

	delete(registry.assetToIndex, asset)

	registry.asset = registry.asset[:lastIndex]
	registry.source = registry.source[:lastIndex]
	registry.kind = registry.kind[:lastIndex]
	registry.price = registry.price[:lastIndex]
	registry.updatedAt = registry.updatedAt[:lastIndex]
	registry.block = registry.block[:lastIndex]

	for src, assets := range registry.sourceToAssets {
		filtered := assets[:0]
		for _, a := range assets {
			if a != asset {
				filtered = append(filtered, a)
			}
		}
		if len(filtered) == 0 {
			delete(registry.sourceToAssets, src)
			continue
		}
		registry.sourceToAssets[src] = filtered
	}

	return nil
}

func viewRegistry(
	registry *priceRegistry,
) []PriceView {
	numAssets := len(registry.asset)
	if numAssets == 0 {
		return nil
	}

	views := make([]PriceView, numAssets)
	for i := 0; i < numAssets; i++ {
		views[i] = PriceView{
			Asset:     registry.asset[i],
			Source:    registry.source[i],
			Kind:      registry.kind[i],
			Price:     new(big.Int).Set(registry.price[i]),
			UpdatedAt: registry.updatedAt[i],
			Block:     registry.block[i],
		}
	}
	return views
}

// getAsset retrieves a single asset's view by its address.
func getAsset(
	asset common.Address,
	registry *priceRegistry,
) (PriceView, error) {
	index, ok := registry.assetToIndex[asset]
	if !ok {
		return PriceView{}, ErrAssetNotFound
	}

	view := PriceView{
		Asset:     registry.asset[index],
		Source:    registry.source[index],
		Kind:      registry.kind[index],
		Price:     new(big.Int).Set(registry.price[index]),
		UpdatedAt: registry.updatedAt[index],
		Block:     registry.block[index],
	}

	return view, nil
}

func hasAsset(
	asset common.Address,
	registry *priceRegistry,
) bool {
	_, ok := registry.assetToIndex[asset]
	return ok
}

// assetsForSource returns the assets whose price derivation involves the
// given source address.
func assetsForSource(
	source common.Address,
	registry *priceRegistry,
) []common.Address {
	assets := registry.sourceToAssets[source]
	if len(assets) == 0 {
		return nil
	}
	out := make([]common.Address, len(assets))
	copy(out, assets)
	return out
}

func containsAddress(addrs []common.Address, target common.Address) bool {
	for _, a := range addrs {
		if a == target {
			return true
		}
	}
	return false
}
