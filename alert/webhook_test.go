package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testUser   = common.HexToAddress("0x47ebaB13B806773ec2A2d16873e2dF770D130b50")
	testSource = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	testTxHash = common.HexToHash("0x1bf5c1b1f9f9f80e8c0b22309b64fa1618a4728dc1c6c03ad7fdca358d6bc2a4")
)

// captureServer records every alert payload POSTed to it.
func captureServer(t *testing.T, status int) (*httptest.Server, *[]Alert) {
	t.Helper()
	var received []Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var a Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		received = append(received, a)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &received
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSend(t *testing.T) {
	t.Run("DeliversPayload", func(t *testing.T) {
		server, received := captureServer(t, http.StatusOK)
		alerter := NewWebhookAlerter(server.URL, discardLogger())

		err := alerter.Send(context.Background(), Alert{
			Level:     LevelInfo,
			Title:     "test",
			Message:   "hello",
			Timestamp: time.Unix(1700000000, 0),
		})
		require.NoError(t, err)
		require.Len(t, *received, 1)
		assert.Equal(t, LevelInfo, (*received)[0].Level)
		assert.Equal(t, "hello", (*received)[0].Message)
	})

	t.Run("NonSuccessStatusIsError", func(t *testing.T) {
		for _, status := range []int{http.StatusMultipleChoices, http.StatusBadRequest, http.StatusInternalServerError} {
			server, _ := captureServer(t, status)
			alerter := NewWebhookAlerter(server.URL, discardLogger())

			err := alerter.Send(context.Background(), Alert{Level: LevelInfo, Title: "t"})
			assert.Error(t, err, "status %d", status)
		}
	})

	t.Run("UnreachableEndpointIsError", func(t *testing.T) {
		alerter := NewWebhookAlerter("http://127.0.0.1:1", discardLogger())
		err := alerter.Send(context.Background(), Alert{Level: LevelInfo, Title: "t"})
		assert.Error(t, err)
	})

	t.Run("ContextCancellationStopsDelivery", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(time.Second)
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		alerter := NewWebhookAlerter(server.URL, discardLogger())
		err := alerter.Send(ctx, Alert{Level: LevelInfo, Title: "t"})
		assert.Error(t, err)
	})
}

func TestAlertOnLiquidationCandidate(t *testing.T) {
	server, received := captureServer(t, http.StatusOK)
	alerter := NewWebhookAlerter(server.URL, discardLogger())

	err := alerter.AlertOnLiquidationCandidate(context.Background(), testUser, "1.6", "0.96", testTxHash)
	require.NoError(t, err)
	require.Len(t, *received, 1)

	a := (*received)[0]
	assert.Equal(t, LevelCritical, a.Level)
	assert.Contains(t, a.Message, testUser.Hex())
	assert.Equal(t, "1.6", a.Metadata["current_health_factor"])
	assert.Equal(t, "0.96", a.Metadata["predicted_health_factor"])
	assert.Equal(t, testTxHash.Hex(), a.Metadata["transmission_hash"])
}

func TestAlertOnUnsupportedSource(t *testing.T) {
	server, received := captureServer(t, http.StatusOK)
	alerter := NewWebhookAlerter(server.URL, discardLogger())

	err := alerter.AlertOnUnsupportedSource(context.Background(), testSource, "SomeNewAdapterV2")
	require.NoError(t, err)
	require.Len(t, *received, 1)

	a := (*received)[0]
	assert.Equal(t, LevelWarning, a.Level)
	assert.Equal(t, testSource.Hex(), a.Metadata["source"])
	assert.Equal(t, "SomeNewAdapterV2", a.Metadata["contract_name"])
}

func TestAlertOnDegradedResolution(t *testing.T) {
	server, received := captureServer(t, http.StatusOK)
	alerter := NewWebhookAlerter(server.URL, discardLogger())

	err := alerter.AlertOnDegradedResolution(context.Background(), testSource, "snapshot_ratio", 7*time.Hour)
	require.NoError(t, err)
	require.Len(t, *received, 1)

	a := (*received)[0]
	assert.Equal(t, LevelWarning, a.Level)
	assert.Equal(t, "snapshot_ratio", a.Metadata["component"])
	assert.Equal(t, "7h0m0s", a.Metadata["stale_age"])
}
