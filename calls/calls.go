// Package calls provides bounded, concurrency-limited contract read
// helpers. Results are consumed by target+method, never by call order, so
// the same helpers back both individual and batched read paths.
package calls

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// defaultRPCTimeout bounds each individual eth_call so a slow node
	// surfaces as a transient, retryable failure rather than a hang.
	defaultRPCTimeout = 10 * time.Second
)

// RevertError reports an eth_call that completed but produced no valid
// output. Price-critical callers must propagate it rather than substitute
// zero or a stale value.
type RevertError struct {
	Target common.Address
	Method string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("contract %s reverted on %s: empty returndata", e.Target.Hex(), e.Method)
}

// Call performs a single eth_call with a bounded timeout. An empty result
// is treated as a revert.
func Call(parentCtx context.Context, client ethclients.ETHClient, target common.Address, method string, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()

	out, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &target,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s on %s: %w", method, target.Hex(), err)
	}
	if len(out) == 0 {
		return nil, &RevertError{Target: target, Method: method}
	}
	return out, nil
}

// Word decodes a single 32-byte return slot as an unsigned integer.
func Word(target common.Address, method string, out []byte) (*big.Int, error) {
	if len(out) != 32 {
		return nil, fmt.Errorf("invalid response length for %s on %s: got %d bytes", method, target.Hex(), len(out))
	}
	return new(big.Int).SetBytes(out), nil
}

// Addr decodes a single 32-byte return slot as an address.
func Addr(target common.Address, method string, out []byte) (common.Address, error) {
	if len(out) != 32 {
		return common.Address{}, fmt.Errorf("invalid response length for %s on %s: got %d bytes", method, target.Hex(), len(out))
	}
	return common.BytesToAddress(out), nil
}

// CallWord is the common single-slot read: eth_call plus Word decoding.
func CallWord(ctx context.Context, client ethclients.ETHClient, target common.Address, method string, data []byte) (*big.Int, error) {
	out, err := Call(ctx, client, target, method, data)
	if err != nil {
		return nil, err
	}
	return Word(target, method, out)
}

// CallAddr is the single-slot address read: eth_call plus Addr decoding.
func CallAddr(ctx context.Context, client ethclients.ETHClient, target common.Address, method string, data []byte) (common.Address, error) {
	out, err := Call(ctx, client, target, method, data)
	if err != nil {
		return common.Address{}, err
	}
	return Addr(target, method, out)
}

// Request names one read in a batch.
type Request struct {
	Target common.Address
	Method string
	Data   []byte
}

// NewBatchCaller returns a batch-read function that limits the number of
// concurrent RPC calls to maxConcurrentCalls. Result and error slices are
// index-aligned with the request slice.
func NewBatchCaller(maxConcurrentCalls int) func(ctx context.Context, reqs []Request, client ethclients.ETHClient) (results []*big.Int, errs []error) {
	semaphore := make(chan struct{}, maxConcurrentCalls)

	return func(ctx context.Context, reqs []Request, client ethclients.ETHClient) ([]*big.Int, []error) {
		n := len(reqs)
		if n == 0 {
			return nil, nil
		}

		// Pre-allocate result slices to the exact size needed so concurrent
		// goroutines write to disjoint indices.
		results := make([]*big.Int, n)
		errs := make([]error, n)

		var wg sync.WaitGroup
		wg.Add(n)

		for i, req := range reqs {
			semaphore <- struct{}{}

			go func(index int, req Request) {
				defer func() {
					<-semaphore
					wg.Done()
				}()

				if ctx.Err() != nil {
					errs[index] = ctx.Err()
					return
				}

				v, err := CallWord(ctx, client, req.Target, req.Method, req.Data)
				if err != nil {
					errs[index] = err
					return
				}
				results[index] = v
			}(i, req)
		}

		wg.Wait()
		return results, errs
	}
}
