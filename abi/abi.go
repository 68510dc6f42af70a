// Package abi holds the parsed contract ABIs shared by the rest of the
// system. Loading event topics and method selectors from parsed ABIs is
// safer and more maintainable than hardcoded hashes.
package abi

import (
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

// AggregatorABI covers the Chainlink EACAggregatorProxy surface the system
// listens to and reads from.
var AggregatorABI = mustParse(`[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"current","type":"int256"},{"indexed":true,"name":"roundId","type":"uint256"},{"indexed":false,"name":"updatedAt","type":"uint256"}],"name":"AnswerUpdated","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"roundId","type":"uint256"},{"indexed":true,"name":"startedBy","type":"address"},{"indexed":false,"name":"startedAt","type":"uint256"}],"name":"NewRound","type":"event"},
	{"inputs":[],"name":"latestAnswer","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"aggregator","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`)

// AdapterABI covers the shared surface of the price adapter archetypes:
// underlying source pointers, ratio getters, and cap parameters. Individual
// adapters expose a subset of these; callers pick methods by kind.
var AdapterABI = mustParse(`[
	{"anonymous":false,"inputs":[{"indexed":false,"name":"snapshotRatio","type":"uint256"},{"indexed":false,"name":"snapshotTimestamp","type":"uint256"},{"indexed":false,"name":"maxRatioGrowthPerSecond","type":"uint256"}],"name":"CapParametersUpdated","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"priceCap","type":"uint256"}],"name":"PriceCapUpdated","type":"event"},
	{"inputs":[],"name":"ASSET_TO_USD_AGGREGATOR","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"BASE_TO_USD_AGGREGATOR","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"ASSET_TO_PEG","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"PEG_TO_BASE","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"DECIMALS","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getRatio","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getSnapshotRatio","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getSnapshotTimestamp","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getMaxRatioGrowthPerSecond","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getPriceCap","outputs":[{"name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"MATURITY","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"discountRatePerYear","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// PoolABI covers the lending-pool events that mutate user positions, the
// account-level eMode switch, and the configurator's collateral parameter
// updates.
var PoolABI = mustParse(`[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"reserve","type":"address"},{"indexed":false,"name":"user","type":"address"},{"indexed":true,"name":"onBehalfOf","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":true,"name":"referralCode","type":"uint16"}],"name":"Supply","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"reserve","type":"address"},{"indexed":true,"name":"user","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"Withdraw","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"reserve","type":"address"},{"indexed":false,"name":"user","type":"address"},{"indexed":true,"name":"onBehalfOf","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"interestRateMode","type":"uint8"},{"indexed":false,"name":"borrowRate","type":"uint256"},{"indexed":true,"name":"referralCode","type":"uint16"}],"name":"Borrow","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"reserve","type":"address"},{"indexed":true,"name":"user","type":"address"},{"indexed":true,"name":"repayer","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"useATokens","type":"bool"}],"name":"Repay","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"reserve","type":"address"},{"indexed":true,"name":"user","type":"address"}],"name":"ReserveUsedAsCollateralEnabled","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"reserve","type":"address"},{"indexed":true,"name":"user","type":"address"}],"name":"ReserveUsedAsCollateralDisabled","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":false,"name":"categoryId","type":"uint8"}],"name":"UserEModeSet","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"asset","type":"address"},{"indexed":false,"name":"ltv","type":"uint256"},{"indexed":false,"name":"liquidationThreshold","type":"uint256"},{"indexed":false,"name":"liquidationBonus","type":"uint256"}],"name":"CollateralConfigurationChanged","type":"event"}
]`)

// ERC20ABI is the minimal token surface used by the position verifier.
var ERC20ABI = mustParse(`[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`)

func mustParse(s string) ethabi.ABI {
	parsed, err := ethabi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
