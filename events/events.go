// Package events parses raw chain logs into the observation payloads the
// price resolver consumes.
package events

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aknirmal90/liquidations-v2-sub000/abi"
	"github.com/aknirmal90/liquidations-v2-sub000/oracle"
)

var (
	AnswerUpdatedEvent        = abi.AggregatorABI.Events["AnswerUpdated"].ID
	PriceCapUpdatedEvent      = abi.AdapterABI.Events["PriceCapUpdated"].ID
	CapParametersUpdatedEvent = abi.AdapterABI.Events["CapParametersUpdated"].ID
)

var (
	maxInt256     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	int256Modulus = new(big.Int).Lsh(big.NewInt(1), 256)
)

// fromInt256 reinterprets a 32-byte topic word as a signed 256-bit value.
func fromInt256(h common.Hash) *big.Int {
	v := new(big.Int).SetBytes(h.Bytes())
	if v.Cmp(maxInt256) > 0 {
		return v.Sub(v, int256Modulus)
	}
	return v
}

// AnswerUpdatedInBloom reports whether a block's bloom filter may contain a
// price update, letting the orchestrator skip log fetching for irrelevant
// blocks.
func AnswerUpdatedInBloom(bloom types.Bloom) bool {
	return bloom.Test(AnswerUpdatedEvent.Bytes())
}

// UpdatedSourcesInBlock parses a block's logs and returns the final
// observation for each aggregator that reported within it, plus the count
// of malformed logs that were dropped. A bad log never halts the batch.
func UpdatedSourcesInBlock(logs []types.Log, blockTimestamp time.Time) (obs []oracle.EventObservation, dropped int) {
	// Later logs overwrite earlier ones per source, so only the final
	// answer of the block remains.
	latest := make(map[common.Address]oracle.EventObservation)

	for _, log := range logs {
		if len(log.Topics) == 0 {
			continue
		}
		switch log.Topics[0] {
		case AnswerUpdatedEvent:
			o, ok := parseAnswerUpdated(log, blockTimestamp)
			if !ok {
				dropped++
				continue
			}
			latest[log.Address] = o

		case PriceCapUpdatedEvent:
			o, ok := parsePriceCapUpdated(log, blockTimestamp)
			if !ok {
				dropped++
				continue
			}
			latest[log.Address] = o

		case CapParametersUpdatedEvent:
			o, ok := parseCapParametersUpdated(log, blockTimestamp)
			if !ok {
				dropped++
				continue
			}
			latest[log.Address] = o
		}
	}

	if len(latest) == 0 {
		return nil, dropped
	}

	obs = make([]oracle.EventObservation, 0, len(latest))
	for _, o := range latest {
		obs = append(obs, o)
	}
	return obs, dropped
}

// parseAnswerUpdated unpacks AnswerUpdated(int256 indexed current,
// uint256 indexed roundId, uint256 updatedAt).
func parseAnswerUpdated(log types.Log, blockTimestamp time.Time) (oracle.EventObservation, bool) {
	if len(log.Topics) != 3 || len(log.Data) != 32 {
		return oracle.EventObservation{}, false
	}
	// The indexed answer is an int256: a raw SetBytes would read a negative
	// answer as an astronomically large positive one. Downstream sign guards
	// reject the negative value.
	answer := fromInt256(log.Topics[1])
	roundID := new(big.Int).SetBytes(log.Topics[2].Bytes())
	updatedAt := new(big.Int).SetBytes(log.Data)

	return oracle.EventObservation{
		Source:         log.Address,
		EventName:      "AnswerUpdated",
		Answer:         answer,
		Args:           map[string]*big.Int{"roundId": roundID, "updatedAt": updatedAt},
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: blockTimestamp,
	}, true
}

// parsePriceCapUpdated unpacks PriceCapUpdated(uint256 priceCap).
func parsePriceCapUpdated(log types.Log, blockTimestamp time.Time) (oracle.EventObservation, bool) {
	if len(log.Data) != 32 {
		return oracle.EventObservation{}, false
	}
	cap := new(big.Int).SetBytes(log.Data)

	return oracle.EventObservation{
		Source:         log.Address,
		EventName:      "PriceCapUpdated",
		Args:           map[string]*big.Int{"priceCap": cap},
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: blockTimestamp,
	}, true
}

// parseCapParametersUpdated unpacks CapParametersUpdated(uint256
// snapshotRatio, uint256 snapshotTimestamp, uint256 maxRatioGrowthPerSecond),
// packed as three 32-byte slots.
func parseCapParametersUpdated(log types.Log, blockTimestamp time.Time) (oracle.EventObservation, bool) {
	if len(log.Data) != 96 {
		return oracle.EventObservation{}, false
	}
	return oracle.EventObservation{
		Source:    log.Address,
		EventName: "CapParametersUpdated",
		Args: map[string]*big.Int{
			"snapshotRatio":           new(big.Int).SetBytes(log.Data[0:32]),
			"snapshotTimestamp":       new(big.Int).SetBytes(log.Data[32:64]),
			"maxRatioGrowthPerSecond": new(big.Int).SetBytes(log.Data[64:96]),
		},
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: blockTimestamp,
	}, true
}
