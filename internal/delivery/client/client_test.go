package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tentens-tech/rental-deposit/internal/application"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/config"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/custody"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage/mock"

	httpdelivery "github.com/tentens-tech/rental-deposit/internal/delivery/http"
)

const termStart = uint64(1_700_000_000)

func newTestServer(t *testing.T) (*httptest.Server, *clock.Mock) {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Custody.FaucetEnabled = true

	clk := clock.NewMock()
	clk.Set(time.Unix(int64(termStart), 0))

	vault := custody.New()
	app := application.New(context.Background(), cfg, escrow.NewLedger(mock.New(), vault, clk), vault, nil)

	server := httptest.NewServer(httpdelivery.New(app).Handler())
	t.Cleanup(server.Close)

	return server, clk
}

func TestClientRefundFlow(t *testing.T) {
	ctx := context.Background()
	server, clk := newTestServer(t)

	tenant := New(server.URL, "0xtenant")
	landlord := New(server.URL+"/", "0xlandlord")

	balance, err := tenant.Fund(ctx, "0xtenant", 2_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), balance)

	leaseID, err := tenant.CreateLease(ctx, application.CreateLeaseRequest{
		Landlord:      "0xlandlord",
		DepositAmount: 1_000_000,
		StartDate:     termStart,
		EndDate:       termStart + 3600,
		AttachedValue: 1_000_000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), leaseID)

	lease, err := landlord.ApproveDepositReturn(ctx, leaseID)
	require.NoError(t, err)
	assert.True(t, lease.LandlordApproved)

	clk.Set(time.Unix(int64(termStart)+3601, 0))

	lease, err = tenant.ReturnDeposit(ctx, leaseID)
	require.NoError(t, err)
	assert.False(t, lease.IsActive)

	balance, err = tenant.Balance(ctx, "0xtenant")
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), balance)

	_, err = tenant.ReturnDeposit(ctx, leaseID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "lease 0: lease is not active", apiErr.Reason)
}

func TestClientReads(t *testing.T) {
	ctx := context.Background()
	server, _ := newTestServer(t)
	c := New(server.URL, "0xtenant")

	_, err := c.Fund(ctx, "0xtenant", 10)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = c.CreateLease(ctx, application.CreateLeaseRequest{Landlord: "0xlandlord", DepositAmount: 5, AttachedValue: 5})
		require.NoError(t, err)
	}

	count, err := c.LeaseCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	leases, err := c.ListLeases(ctx)
	require.NoError(t, err)
	assert.Len(t, leases, 2)

	lease, err := c.LeaseDetails(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrow.Account("0xtenant"), lease.Tenant)

	_, err = c.LeaseDetails(ctx, 5)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClientWithdrawUnauthorized(t *testing.T) {
	ctx := context.Background()
	server, _ := newTestServer(t)
	c := New(server.URL, "0xtenant")

	_, err := c.Fund(ctx, "0xtenant", 10)
	require.NoError(t, err)
	_, err = c.CreateLease(ctx, application.CreateLeaseRequest{Landlord: "0xlandlord", DepositAmount: 10, AttachedValue: 10})
	require.NoError(t, err)

	_, err = c.WithdrawDeposit(ctx, 0)
	assert.ErrorContains(t, err, "only the landlord can perform this action")
}
