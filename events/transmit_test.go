package events

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	transmitOracle = common.HexToAddress("0xE62B71cf983019BFf55bC83B48601ce8419650CC")
	seenAt         = time.Unix(1700000000, 0)
)

// packTransmit builds the calldata of a transmit call carrying the given
// observations. epoch and round land in the low five bytes of the second
// report-context word.
func packTransmit(t *testing.T, observations []*big.Int, epoch uint32, round uint8) []byte {
	t.Helper()

	var rawContext [32]byte
	copy(rawContext[:], []byte("test config digest"))

	report, err := reportArgs.Pack(rawContext, [32]byte{}, observations)
	require.NoError(t, err)

	var epochContext [32]byte
	epochContext[27] = byte(epoch >> 24)
	epochContext[28] = byte(epoch >> 16)
	epochContext[29] = byte(epoch >> 8)
	epochContext[30] = byte(epoch)
	epochContext[31] = round

	reportContext := [3][32]byte{rawContext, epochContext, {}}
	packed, err := transmitArgs.Pack(reportContext, report, [][32]byte{}, [][32]byte{}, [32]byte{})
	require.NoError(t, err)

	return append(transmitSelector[:], packed...)
}

func transmitTx(t *testing.T, data []byte) *types.Transaction {
	t.Helper()
	return types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &transmitOracle,
		Gas:      500000,
		GasPrice: big.NewInt(30000000000),
		Data:     data,
	})
}

func TestPendingTransmission(t *testing.T) {
	t.Run("DecodesMedianAndRound", func(t *testing.T) {
		observations := []*big.Int{
			big.NewInt(199000000000),
			big.NewInt(200000000000),
			big.NewInt(201000000000),
		}
		tx := transmitTx(t, packTransmit(t, observations, 7, 3))

		obs, ok := PendingTransmission(tx, seenAt)
		require.True(t, ok)
		assert.Equal(t, transmitOracle, obs.Oracle)
		assert.Equal(t, tx.Hash(), obs.TxHash)
		assert.Equal(t, int64(200000000000), obs.MedianPrice.Int64())
		assert.Equal(t, int64(7<<8|3), obs.EpochAndRound.Int64())
		assert.Equal(t, seenAt, obs.SeenAt)
		require.NoError(t, obs.Validate())
	})

	t.Run("MedianSurvivesHostileOrdering", func(t *testing.T) {
		// Observations arrive unsorted; the decoder must sort before taking
		// the middle element.
		observations := []*big.Int{
			big.NewInt(500),
			big.NewInt(100),
			big.NewInt(300),
			big.NewInt(200),
			big.NewInt(400),
		}
		obs, ok := PendingTransmission(transmitTx(t, packTransmit(t, observations, 1, 1)), seenAt)
		require.True(t, ok)
		assert.Equal(t, int64(300), obs.MedianPrice.Int64())
	})

	t.Run("EvenCountTakesUpperMiddle", func(t *testing.T) {
		observations := []*big.Int{
			big.NewInt(100),
			big.NewInt(200),
			big.NewInt(300),
			big.NewInt(400),
		}
		obs, ok := PendingTransmission(transmitTx(t, packTransmit(t, observations, 1, 1)), seenAt)
		require.True(t, ok)
		assert.Equal(t, int64(300), obs.MedianPrice.Int64())
	})

	t.Run("NegativeObservationsSortCorrectly", func(t *testing.T) {
		observations := []*big.Int{
			big.NewInt(-300),
			big.NewInt(100),
			big.NewInt(-200),
		}
		obs, ok := PendingTransmission(transmitTx(t, packTransmit(t, observations, 1, 1)), seenAt)
		require.True(t, ok)
		assert.Equal(t, int64(-200), obs.MedianPrice.Int64())
	})

	t.Run("SingleObservation", func(t *testing.T) {
		obs, ok := PendingTransmission(transmitTx(t, packTransmit(t, []*big.Int{big.NewInt(42)}, 1, 1)), seenAt)
		require.True(t, ok)
		assert.Equal(t, int64(42), obs.MedianPrice.Int64())
	})

	t.Run("RejectsNonTransmitCalls", func(t *testing.T) {
		transferData := append([]byte{0xa9, 0x05, 0x9c, 0xbb}, make([]byte, 64)...)
		_, ok := PendingTransmission(transmitTx(t, transferData), seenAt)
		assert.False(t, ok)
	})

	t.Run("RejectsShortCalldata", func(t *testing.T) {
		_, ok := PendingTransmission(transmitTx(t, []byte{0xb1, 0xdc}), seenAt)
		assert.False(t, ok)
	})

	t.Run("RejectsGarbageAfterSelector", func(t *testing.T) {
		data := append(transmitSelector[:], make([]byte, 17)...)
		_, ok := PendingTransmission(transmitTx(t, data), seenAt)
		assert.False(t, ok)
	})

	t.Run("RejectsEmptyObservations", func(t *testing.T) {
		_, ok := PendingTransmission(transmitTx(t, packTransmit(t, []*big.Int{}, 1, 1)), seenAt)
		assert.False(t, ok)
	})

	t.Run("RejectsContractCreation", func(t *testing.T) {
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    1,
			Gas:      500000,
			GasPrice: big.NewInt(30000000000),
			Data:     packTransmit(t, []*big.Int{big.NewInt(1)}, 1, 1),
		})
		_, ok := PendingTransmission(tx, seenAt)
		assert.False(t, ok)
	})

	t.Run("RejectsNilTransaction", func(t *testing.T) {
		_, ok := PendingTransmission(nil, seenAt)
		assert.False(t, ok)
	})
}
