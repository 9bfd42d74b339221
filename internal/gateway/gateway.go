// Package gateway talks to the bank-transaction monitoring service and
// normalizes its loosely-shaped payloads into a fixed BankTransaction.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	TransferIn  = "in"
	TransferOut = "out"
)

// BankTransaction is the fixed shape the reconciliation engine consumes.
// It is ephemeral: the gateway owns the record, we only read it.
type BankTransaction struct {
	TransferType       string `json:"transfer_type"`
	TransferAmount     int64  `json:"transfer_amount"`
	TransactionContent string `json:"transaction_content"`
	ReferenceNumber    string `json:"reference_number"`
}

var ErrGatewayUnavailable = errors.New("gateway unavailable")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type listResponse struct {
	Status       int              `json:"status"`
	Transactions []map[string]any `json:"transactions"`
}

// RecentTransactions pulls the latest transactions from the gateway. Used
// by the client-driven polling path; the webhook path receives pushes
// instead and never calls this.
func (c *Client) RecentTransactions(ctx context.Context) ([]BankTransaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/list?limit=50", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	var parsed listResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	transactions := make([]BankTransaction, 0, len(parsed.Transactions))
	for _, raw := range parsed.Transactions {
		transactions = append(transactions, Normalize(raw))
	}
	return transactions, nil
}
