// Package explorer implements a block-explorer API client used to fetch
// verified contract source metadata (Etherscan-compatible getsourcecode
// endpoint). Network failures, rate limits and server errors surface as
// *TransientError so callers can retry instead of misclassifying a source
// as unsupported.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// defaultRequestTimeout bounds each explorer API round trip.
	defaultRequestTimeout = 10 * time.Second
)

// TransientError marks a failure that is eligible for retry with backoff:
// timeouts, rate limits, and 5xx responses.
type TransientError struct {
	Operation string
	Err       error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("explorer: transient failure during %s: %v", e.Operation, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Client talks to an Etherscan-compatible contract metadata API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client for the given API base URL (for example
// "https://api.etherscan.io/api"). The API key may be empty for
// self-hosted explorers.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// sourceCodeResponse mirrors the getsourcecode envelope. Status "1" means
// success; "0" covers both rate limiting and genuinely absent data, which
// are told apart by the result text.
type sourceCodeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		ContractName string `json:"ContractName"`
		ABI          string `json:"ABI"`
	} `json:"result"`
}

// ContractSource fetches the verified contract name and raw ABI JSON for an
// address. An unverified contract returns an empty name and nil error: the
// classification layer decides what that means.
func (c *Client) ContractSource(ctx context.Context, addr common.Address) (contractName, abiJSON string, err error) {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", strings.ToLower(addr.Hex()))
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", "", fmt.Errorf("building explorer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", &TransientError{Operation: "getsourcecode", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", "", &TransientError{Operation: "getsourcecode", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("explorer: unexpected status %d for %s", resp.StatusCode, addr.Hex())
	}

	var payload sourceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", &TransientError{Operation: "decode response", Err: err}
	}

	if payload.Status != "1" {
		// Etherscan signals rate limiting through the message text with an
		// HTTP 200, so it has to be sniffed here.
		if strings.Contains(strings.ToLower(payload.Message), "rate limit") {
			return "", "", &TransientError{Operation: "getsourcecode", Err: fmt.Errorf("rate limited: %s", payload.Message)}
		}
		return "", "", nil
	}
	if len(payload.Result) == 0 {
		return "", "", nil
	}

	result := payload.Result[0]
	abiJSON = result.ABI
	// Etherscan returns this literal string for unverified contracts.
	if strings.Contains(abiJSON, "Contract source code not verified") {
		abiJSON = ""
	}
	return result.ContractName, abiJSON, nil
}
