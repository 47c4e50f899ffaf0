package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/config"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/cache"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/custody"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage/mock"
)

const (
	landlord escrow.Account = "0xlandlord"
	tenant   escrow.Account = "0xtenant"
	deposit                 = uint64(1_000_000)
	termEnd                 = uint64(1_700_003_600)
)

func createTestConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Storage.Type = config.StorageTypeMock
	cfg.Cache.TTL = time.Minute
	return cfg
}

func createTestApplication(t *testing.T, cfg *config.Config, leaseCache *cache.Cache[uint64, escrow.Lease]) (*Application, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.Unix(int64(termEnd)-3600, 0))

	vault := custody.New()
	require.NoError(t, vault.Fund(string(tenant), 100*deposit))

	ledger := escrow.NewLedger(mock.New(), vault, clk)
	return New(context.Background(), cfg, ledger, vault, leaseCache), clk
}

func createLease(t *testing.T, app *Application) uint64 {
	t.Helper()

	leaseID, err := app.CreateLease(context.Background(), tenant, escrow.LeaseTerms{
		Landlord:      landlord,
		DepositAmount: deposit,
		StartDate:     termEnd - 3600,
		EndDate:       termEnd,
	}, deposit)
	require.NoError(t, err)

	return leaseID
}

func TestApplication_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	leaseCache := cache.New[uint64, escrow.Lease](100)
	defer leaseCache.Close()

	app, clk := createTestApplication(t, createTestConfig(), leaseCache)
	leaseID := createLease(t, app)

	lease, err := app.LeaseDetails(ctx, leaseID)
	require.NoError(t, err)
	assert.False(t, lease.LandlordApproved)

	_, cached := leaseCache.Get(leaseID)
	assert.True(t, cached)

	require.NoError(t, app.ApproveDepositReturn(ctx, landlord, leaseID))
	_, cached = leaseCache.Get(leaseID)
	assert.False(t, cached, "mutation must invalidate the cached snapshot")

	lease, err = app.LeaseDetails(ctx, leaseID)
	require.NoError(t, err)
	assert.True(t, lease.LandlordApproved)

	clk.Add(time.Hour + time.Second)
	require.NoError(t, app.ReturnDeposit(ctx, tenant, leaseID))

	lease, err = app.LeaseDetails(ctx, leaseID)
	require.NoError(t, err)
	assert.False(t, lease.IsActive)
	assert.Equal(t, 100*deposit, app.Balance(tenant))
}

func TestApplication_RejectedMutationKeepsCache(t *testing.T) {
	ctx := context.Background()
	leaseCache := cache.New[uint64, escrow.Lease](100)
	defer leaseCache.Close()

	app, _ := createTestApplication(t, createTestConfig(), leaseCache)
	leaseID := createLease(t, app)

	_, err := app.LeaseDetails(ctx, leaseID)
	require.NoError(t, err)

	err = app.WithdrawDeposit(ctx, landlord, leaseID)
	assert.ErrorIs(t, err, escrow.ErrTermNotEnded)

	_, cached := leaseCache.Get(leaseID)
	assert.True(t, cached)
}

func TestApplication_ListLeases(t *testing.T) {
	ctx := context.Background()
	app, _ := createTestApplication(t, createTestConfig(), nil)

	leases, err := app.ListLeases(ctx)
	require.NoError(t, err)
	assert.Empty(t, leases)

	for i := 0; i < 3; i++ {
		createLease(t, app)
	}

	leases, err = app.ListLeases(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 3)
	for i, lease := range leases {
		assert.Equal(t, uint64(i), lease.ID)
	}
}

func TestApplication_Fund(t *testing.T) {
	cfg := createTestConfig()
	app, _ := createTestApplication(t, cfg, nil)

	err := app.Fund("0xnew", 10)
	assert.ErrorIs(t, err, ErrFaucetDisabled)
	assert.Zero(t, app.Balance("0xnew"))

	cfg.Custody.FaucetEnabled = true
	require.NoError(t, app.Fund("0xnew", 10))
	assert.Equal(t, uint64(10), app.Balance("0xnew"))
}

func TestApplication_ConcurrentLeaseOperations(t *testing.T) {
	ctx := context.Background()
	leaseCache := cache.New[uint64, escrow.Lease](1000)
	defer leaseCache.Close()

	app, clk := createTestApplication(t, createTestConfig(), leaseCache)

	numOperations := 50
	var wg sync.WaitGroup
	wg.Add(numOperations)

	ids := make(chan uint64, numOperations)
	for i := 0; i < numOperations; i++ {
		go func() {
			defer wg.Done()
			leaseID, err := app.CreateLease(ctx, tenant, escrow.LeaseTerms{
				Landlord:      landlord,
				DepositAmount: deposit,
				StartDate:     termEnd - 3600,
				EndDate:       termEnd,
			}, deposit)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, app.ApproveDepositReturn(ctx, landlord, leaseID))
			ids <- leaseID
		}()
	}
	wg.Wait()
	close(ids)

	clk.Add(2 * time.Hour)

	wg.Add(numOperations)
	for leaseID := range ids {
		go func(leaseID uint64) {
			defer wg.Done()
			if leaseID%2 == 0 {
				assert.NoError(t, app.ReturnDeposit(ctx, tenant, leaseID))
			} else {
				assert.NoError(t, app.WithdrawDeposit(ctx, landlord, leaseID))
			}
		}(leaseID)
	}
	wg.Wait()

	leases, err := app.ListLeases(ctx)
	require.NoError(t, err)
	require.Len(t, leases, numOperations)
	for _, lease := range leases {
		assert.False(t, lease.IsActive, "lease %d", lease.ID)
	}
	assert.Zero(t, app.Vault.Held())
	assert.Equal(t, 100*deposit, app.Balance(tenant)+app.Balance(landlord))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(fmt.Errorf("lease 1: %w", escrow.ErrNotFound)))
	assert.True(t, IsRejection(fmt.Errorf("wrapped: %w", custody.ErrInsufficientFunds)))
	assert.False(t, IsRejection(errors.New("etcd unavailable")))
	assert.False(t, IsRejection(custody.ErrInsufficientCustody))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: escrow.ErrNotFound, want: http.StatusNotFound},
		{err: escrow.ErrUnauthorized, want: http.StatusForbidden},
		{err: escrow.ErrAlreadyFinalized, want: http.StatusConflict},
		{err: escrow.ErrTermNotEnded, want: http.StatusPreconditionFailed},
		{err: escrow.ErrApprovalMissing, want: http.StatusPreconditionFailed},
		{err: escrow.ErrValueMismatch, want: http.StatusBadRequest},
		{err: escrow.ErrInvalidTerm, want: http.StatusBadRequest},
		{err: custody.ErrInsufficientFunds, want: http.StatusPaymentRequired},
		{err: storage.ErrConflict, want: http.StatusConflict},
		{err: ErrFaucetDisabled, want: http.StatusNotFound},
		{err: errMissingAccount, want: http.StatusUnauthorized},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.err), func(t *testing.T) {
			err := tt.err
			if err != nil {
				err = fmt.Errorf("context: %w", err)
			}
			assert.Equal(t, tt.want, StatusCode(err))
		})
	}
}

// readLimitedStorage fails every Get once its budget of reads is spent.
type readLimitedStorage struct {
	*mock.Storage
	reads atomic.Int64
}

func (s *readLimitedStorage) Get(ctx context.Context, id uint64) ([]byte, uint64, error) {
	if s.reads.Add(-1) < 0 {
		return nil, 0, errors.New("etcd unavailable")
	}
	return s.Storage.Get(ctx, id)
}

func TestLeaseActionHandler_CommittedDespiteFailedReread(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(int64(termEnd)-3600, 0))

	vault := custody.New()
	require.NoError(t, vault.Fund(string(tenant), deposit))

	backend := mock.New()
	store := &readLimitedStorage{Storage: backend}
	app := New(context.Background(), createTestConfig(), escrow.NewLedger(store, vault, clk), vault, nil)
	leaseID := createLease(t, app)

	store.reads.Store(1)

	req := httptest.NewRequest(http.MethodPost, "/leases/0/approve", nil)
	req.Header.Set(DefaultAccountHeader, string(landlord))
	req.SetPathValue("id", "0")
	rec := httptest.NewRecorder()
	app.ApproveDepositReturnHandler()(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":0}`, rec.Body.String())

	store.reads.Store(1)
	lease, err := app.LeaseDetails(context.Background(), leaseID)
	require.NoError(t, err)
	assert.True(t, lease.LandlordApproved)
}
