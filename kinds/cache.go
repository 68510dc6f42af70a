package kinds

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	sharedabi "github.com/aknirmal90/liquidations-v2-sub000/abi"
)

// UnsupportedSourceError reports a price-source contract whose verified name
// matches no known adapter archetype. It is non-retryable: the address must
// be classified manually and added to the enumeration.
type UnsupportedSourceError struct {
	Address      common.Address
	ContractName string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported asset source %s: verified name %q matches no known kind", e.Address.Hex(), e.ContractName)
}

// FetchSourceFunc retrieves the verified-source contract name and raw ABI
// JSON for an address, typically from a block-explorer API. A failure here
// is transient and must not be classified as unsupported.
type FetchSourceFunc func(ctx context.Context, addr common.Address) (contractName, abiJSON string, err error)

// NotifyUnsupportedFunc is invoked once per newly observed unsupported
// source so an external alerting collaborator can pick it up. It must not
// block for long; the cache calls it inline.
type NotifyUnsupportedFunc func(addr common.Address, contractName string)

// Info is the cached classification of a price-source contract.
type Info struct {
	Kind Kind
	ABI  *ethabi.ABI
}

// Cache resolves a contract address to its kind and ABI, caching successful
// lookups forever: a deployed contract's bytecode, and therefore its kind,
// never changes.
type Cache struct {
	mu                sync.RWMutex
	entries           map[common.Address]Info
	fetch             FetchSourceFunc
	notifyUnsupported NotifyUnsupportedFunc
}

// NewCache builds a metadata cache around the given verified-source fetcher.
// notifyUnsupported may be nil.
func NewCache(fetch FetchSourceFunc, notifyUnsupported NotifyUnsupportedFunc) *Cache {
	return &Cache{
		entries:           make(map[common.Address]Info),
		fetch:             fetch,
		notifyUnsupported: notifyUnsupported,
	}
}

// Seed inserts a classification without consulting the fetcher. Used for
// bootstrapping from persisted state and in tests.
func (c *Cache) Seed(addr common.Address, info Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info.ABI == nil {
		info.ABI = &sharedabi.AdapterABI
	}
	c.entries[addr] = info
}

// ContractInfo returns the kind and ABI for addr, fetching and classifying
// on first sight. An unknown verified name returns *UnsupportedSourceError
// and writes nothing to the cache; transient fetch failures propagate
// unwrapped so the caller's retry policy can distinguish them.
func (c *Cache) ContractInfo(ctx context.Context, addr common.Address) (Info, error) {
	c.mu.RLock()
	info, ok := c.entries[addr]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	name, abiJSON, err := c.fetch(ctx, addr)
	if err != nil {
		return Info{}, fmt.Errorf("fetching verified source for %s: %w", addr.Hex(), err)
	}

	kind, ok := ParseKind(name)
	if !ok {
		if c.notifyUnsupported != nil {
			c.notifyUnsupported(addr, name)
		}
		return Info{}, &UnsupportedSourceError{Address: addr, ContractName: name}
	}

	parsed := &sharedabi.AdapterABI
	if strings.TrimSpace(abiJSON) != "" {
		p, err := ethabi.JSON(strings.NewReader(abiJSON))
		if err != nil {
			// A malformed explorer ABI is not fatal; the shared adapter ABI
			// covers every method the resolvers call.
			parsed = &sharedabi.AdapterABI
		} else {
			parsed = &p
		}
	}
	if kind == KindEACAggregatorProxy {
		parsed = &sharedabi.AggregatorABI
	}

	info = Info{Kind: kind, ABI: parsed}

	c.mu.Lock()
	// Another goroutine may have raced the fetch; first write wins so the
	// ABI pointer handed out stays stable.
	if existing, ok := c.entries[addr]; ok {
		info = existing
	} else {
		c.entries[addr] = info
	}
	c.mu.Unlock()

	return info, nil
}

// Len reports the number of classified sources, for metrics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
