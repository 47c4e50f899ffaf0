// Package client talks to the rental-deposit HTTP API on behalf of one
// account. The CLI subcommands are built on it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tentens-tech/rental-deposit/internal/application"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
)

const DefaultTimeout = 10 * time.Second

// APIError carries the server's reason string for a failed call.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%v (status %d)", e.Reason, e.StatusCode)
}

type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client
}

func New(baseURL, account string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		account:    account,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) CreateLease(ctx context.Context, request application.CreateLeaseRequest) (uint64, error) {
	var response application.LeaseIDResponse
	if err := c.do(ctx, http.MethodPost, "/leases", request, &response); err != nil {
		return 0, fmt.Errorf("failed to create lease: %w", err)
	}
	return response.ID, nil
}

func (c *Client) ApproveDepositReturn(ctx context.Context, leaseID uint64) (escrow.Lease, error) {
	return c.leaseAction(ctx, leaseID, "approve")
}

func (c *Client) WithdrawDeposit(ctx context.Context, leaseID uint64) (escrow.Lease, error) {
	return c.leaseAction(ctx, leaseID, "withdraw")
}

func (c *Client) ReturnDeposit(ctx context.Context, leaseID uint64) (escrow.Lease, error) {
	return c.leaseAction(ctx, leaseID, "return")
}

func (c *Client) LeaseCount(ctx context.Context) (uint64, error) {
	var response application.CountResponse
	if err := c.do(ctx, http.MethodGet, "/leases/count", nil, &response); err != nil {
		return 0, fmt.Errorf("failed to get lease count: %w", err)
	}
	return response.Count, nil
}

func (c *Client) LeaseDetails(ctx context.Context, leaseID uint64) (escrow.Lease, error) {
	var lease escrow.Lease
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leases/%d", leaseID), nil, &lease); err != nil {
		return escrow.Lease{}, fmt.Errorf("failed to get lease %d: %w", leaseID, err)
	}
	return lease, nil
}

func (c *Client) ListLeases(ctx context.Context) ([]escrow.Lease, error) {
	var response application.ListResponse
	if err := c.do(ctx, http.MethodGet, "/leases", nil, &response); err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	return response.Leases, nil
}

func (c *Client) Balance(ctx context.Context, account string) (uint64, error) {
	var response application.BalanceResponse
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(account)+"/balance", nil, &response); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return response.Balance, nil
}

func (c *Client) Fund(ctx context.Context, account string, amount uint64) (uint64, error) {
	var response application.BalanceResponse
	if err := c.do(ctx, http.MethodPost, "/accounts/"+url.PathEscape(account)+"/fund", application.FundRequest{Amount: amount}, &response); err != nil {
		return 0, fmt.Errorf("failed to fund account: %w", err)
	}
	return response.Balance, nil
}

func (c *Client) leaseAction(ctx context.Context, leaseID uint64, action string) (escrow.Lease, error) {
	var lease escrow.Lease
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/leases/%d/%s", leaseID, action), nil, &lease); err != nil {
		return escrow.Lease{}, fmt.Errorf("failed to %v lease %d: %w", action, leaseID, err)
	}
	return lease, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.account != "" {
		req.Header.Set(application.DefaultAccountHeader, c.account)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errResponse application.ErrorResponse
		if json.Unmarshal(data, &errResponse) != nil || errResponse.Error == "" {
			errResponse.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Reason: errResponse.Error}
	}

	if out == nil {
		return nil
	}
	if err = json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
