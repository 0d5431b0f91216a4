package tron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// GridClient handles HTTP API calls to TronGrid.
type GridClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGridClient(baseURL, apiKey string, logger *zap.Logger) *GridClient {
	return &GridClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// AccountInfo is the slice of the /v1/accounts response the engine reads.
type AccountInfo struct {
	Address    string `json:"address"`
	Balance    int64  `json:"balance"`
	CreateTime int64  `json:"create_time"`
}

// GetAccountInfo fetches account details. An account that has never been
// funded is absent from TronGrid; callers get exists=false, not an error.
func (c *GridClient) GetAccountInfo(ctx context.Context, address string) (*AccountInfo, bool, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s", c.baseURL, address)

	var result struct {
		Success bool          `json:"success"`
		Data    []AccountInfo `json:"data"`
	}
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, false, err
	}

	if !result.Success || len(result.Data) == 0 {
		return nil, false, nil
	}
	return &result.Data[0], true, nil
}

// ConstantCallResult is the /wallet/triggerconstantcontract response.
type ConstantCallResult struct {
	Result struct {
		Result  bool   `json:"result"`
		Message string `json:"message,omitempty"`
	} `json:"result"`
	ConstantResult []string `json:"constant_result"`
	EnergyUsed     int64    `json:"energy_used"`
}

// TriggerConstantContract performs a read-only contract call.
func (c *GridClient) TriggerConstantContract(ctx context.Context, ownerAddress, contractAddress, functionSelector, parameter string) (*ConstantCallResult, error) {
	url := fmt.Sprintf("%s/wallet/triggerconstantcontract", c.baseURL)

	payload := map[string]interface{}{
		"owner_address":     ownerAddress,
		"contract_address":  contractAddress,
		"function_selector": functionSelector,
		"parameter":         parameter,
		"visible":           true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: trongrid request failed: %v", domain.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: trongrid status %d: %s", domain.ErrAdapterUnavailable, resp.StatusCode, string(body))
	}

	var result ConstantCallResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode trongrid response: %w", err)
	}

	return &result, nil
}

func (c *GridClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: trongrid request failed: %v", domain.ErrAdapterUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: trongrid status %d: %s", domain.ErrAdapterUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode trongrid response: %w", err)
	}

	return nil
}

func (c *GridClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}
