package events

import (
	"math/big"
	"sort"
	"time"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aknirmal90/liquidations-v2-sub000/oracle"
)

// transmit(bytes32[3] reportContext, bytes report, bytes32[] rs, bytes32[] ss, bytes32 rawVs)
var (
	transmitSelector = [4]byte{0xb1, 0xdc, 0x65, 0xa4}

	transmitArgs  ethabi.Arguments
	reportArgs    ethabi.Arguments
	maxInt192     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 191), big.NewInt(1))
	int192Modulus = new(big.Int).Lsh(big.NewInt(1), 192)
)

func init() {
	bytes32x3, _ := ethabi.NewType("bytes32[3]", "", nil)
	bytesT, _ := ethabi.NewType("bytes", "", nil)
	bytes32Arr, _ := ethabi.NewType("bytes32[]", "", nil)
	bytes32T, _ := ethabi.NewType("bytes32", "", nil)
	int192Arr, _ := ethabi.NewType("int192[]", "", nil)

	transmitArgs = ethabi.Arguments{
		{Name: "reportContext", Type: bytes32x3},
		{Name: "report", Type: bytesT},
		{Name: "rs", Type: bytes32Arr},
		{Name: "ss", Type: bytes32Arr},
		{Name: "rawVs", Type: bytes32T},
	}
	reportArgs = ethabi.Arguments{
		{Name: "rawReportContext", Type: bytes32T},
		{Name: "rawObservers", Type: bytes32T},
		{Name: "observations", Type: int192Arr},
	}
}

// PendingTransmission decodes a pending transmit call into a prediction
// observation. The report's median is the price the aggregator would
// publish if the transaction confirms. Returns false for transactions that
// are not well-formed transmits; the prediction path simply ignores them.
func PendingTransmission(tx *types.Transaction, seenAt time.Time) (oracle.TransactionObservation, bool) {
	if tx == nil || tx.To() == nil {
		return oracle.TransactionObservation{}, false
	}
	data := tx.Data()
	if len(data) < 4 || [4]byte(data[:4]) != transmitSelector {
		return oracle.TransactionObservation{}, false
	}

	call, err := transmitArgs.Unpack(data[4:])
	if err != nil || len(call) != 5 {
		return oracle.TransactionObservation{}, false
	}
	reportContext, ok := call[0].([3][32]byte)
	if !ok {
		return oracle.TransactionObservation{}, false
	}
	report, ok := call[1].([]byte)
	if !ok {
		return oracle.TransactionObservation{}, false
	}

	fields, err := reportArgs.Unpack(report)
	if err != nil || len(fields) != 3 {
		return oracle.TransactionObservation{}, false
	}
	observations, ok := fields[2].([]*big.Int)
	if !ok || len(observations) == 0 {
		return oracle.TransactionObservation{}, false
	}

	// Observers sign observations in ascending order, but a hostile
	// transmitter could violate that; sorting locally keeps the median
	// honest either way.
	sorted := make([]*big.Int, len(observations))
	for i, o := range observations {
		sorted[i] = fromInt192(o)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	median := sorted[len(sorted)/2]

	// The low 5 bytes of the second context word are epoch (4) and round (1).
	epochAndRound := new(big.Int).SetBytes(reportContext[1][27:])

	return oracle.TransactionObservation{
		Oracle:        *tx.To(),
		TxHash:        tx.Hash(),
		MedianPrice:   median,
		EpochAndRound: epochAndRound,
		SeenAt:        seenAt,
	}, true
}

// fromInt192 reinterprets an unpacked word as a signed 192-bit value.
func fromInt192(v *big.Int) *big.Int {
	if v.Cmp(maxInt192) > 0 {
		return new(big.Int).Sub(v, int192Modulus)
	}
	return new(big.Int).Set(v)
}
