// Package alert delivers operational notifications over a webhook:
// liquidation candidates, unsupported price sources, and degraded-mode
// resolution where the system continued on stale parameters.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Level represents the severity of an alert.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert is one notification payload.
type Alert struct {
	Level     Level             `json:"level"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// WebhookAlerter sends alerts as JSON POSTs to a configured endpoint.
type WebhookAlerter struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

func NewWebhookAlerter(webhookURL string, logger *slog.Logger) *WebhookAlerter {
	return &WebhookAlerter{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Send delivers a single alert. Non-2xx responses are errors so callers
// can count delivery failures.
func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook response error: %d", resp.StatusCode)
	}

	w.logger.Info("alert sent",
		"level", alert.Level,
		"title", alert.Title,
	)
	return nil
}

// AlertOnLiquidationCandidate notifies that a user is projected to cross
// below health factor 1 if a pending price transmission confirms.
func (w *WebhookAlerter) AlertOnLiquidationCandidate(ctx context.Context, user common.Address, currentHF, predictedHF string, txHash common.Hash) error {
	alert := Alert{
		Level:     LevelCritical,
		Title:     "Liquidation Candidate Detected",
		Message:   fmt.Sprintf("user %s health factor %s projected to %s under pending transmission %s", user.Hex(), currentHF, predictedHF, txHash.Hex()),
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"user":                    user.Hex(),
			"current_health_factor":   currentHF,
			"predicted_health_factor": predictedHF,
			"transmission_hash":       txHash.Hex(),
		},
	}
	return w.Send(ctx, alert)
}

// AlertOnUnsupportedSource notifies that a price source's verified
// contract name matched no recognized archetype. Prices for the affected
// asset cannot be derived until an adapter is added.
func (w *WebhookAlerter) AlertOnUnsupportedSource(ctx context.Context, source common.Address, contractName string) error {
	alert := Alert{
		Level:     LevelWarning,
		Title:     "Unsupported Price Source",
		Message:   fmt.Sprintf("source %s resolved to unrecognized contract %q", source.Hex(), contractName),
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"source":        source.Hex(),
			"contract_name": contractName,
		},
	}
	return w.Send(ctx, alert)
}

// AlertOnDegradedResolution notifies that a price was assembled from
// stale cached parameters after a live refresh failed.
func (w *WebhookAlerter) AlertOnDegradedResolution(ctx context.Context, source common.Address, component string, age time.Duration) error {
	alert := Alert{
		Level:     LevelWarning,
		Title:     "Degraded Price Resolution",
		Message:   fmt.Sprintf("source %s used stale %s parameters aged %v after refresh failure", source.Hex(), component, age),
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"source":    source.Hex(),
			"component": component,
			"stale_age": age.String(),
		},
	}
	return w.Send(ctx, alert)
}
