package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/config"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage/mock"
)

func TestNewApplication(t *testing.T) {
	tests := []struct {
		name        string
		cacheOn     bool
		strictTerms bool
	}{
		{name: "Cache disabled"},
		{name: "Cache enabled", cacheOn: true},
		{name: "Strict terms", strictTerms: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.Storage.Type = config.StorageTypeMock
			cfg.Cache.Enabled = tt.cacheOn
			cfg.Escrow.StrictTerms = tt.strictTerms

			app, cleanup, err := NewApplication(context.Background(), cfg)
			require.NoError(t, err)
			defer cleanup()

			assert.Equal(t, tt.cacheOn, app.LeaseCache != nil)

			require.NoError(t, app.Vault.Fund("0xtenant", 10))
			_, err = app.CreateLease(context.Background(), "0xtenant", escrow.LeaseTerms{
				Landlord:      "0xlandlord",
				DepositAmount: 10,
				StartDate:     2,
				EndDate:       1,
			}, 10)
			if tt.strictTerms {
				assert.ErrorIs(t, err, escrow.ErrInvalidTerm)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewApplicationUnsupportedStorage(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Storage.Type = "redis"

	_, _, err := NewApplication(context.Background(), cfg)
	assert.EqualError(t, err, "failed to create storage connection: unsupported storage type: redis")
}

func TestNewApplicationRestoresCustody(t *testing.T) {
	ctx := context.Background()
	cfg := config.NewConfig()
	storageConnection := mock.New()
	terms := escrow.LeaseTerms{Landlord: "0xlandlord", DepositAmount: 10, StartDate: 0, EndDate: 1}

	before, _, err := newApplication(ctx, cfg, storageConnection)
	require.NoError(t, err)
	require.NoError(t, before.Vault.Fund("0xtenant", 30))
	for i := 0; i < 3; i++ {
		_, err = before.CreateLease(ctx, "0xtenant", terms, 10)
		require.NoError(t, err)
	}
	require.NoError(t, before.WithdrawDeposit(ctx, "0xlandlord", 2))

	after, _, err := newApplication(ctx, cfg, storageConnection)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), after.Vault.Held())

	require.NoError(t, after.Vault.Fund("0xother", 10))
	leaseID, err := after.CreateLease(ctx, "0xother", terms, 10)
	require.NoError(t, err)

	for _, id := range []uint64{0, 1, leaseID} {
		require.NoError(t, after.WithdrawDeposit(ctx, "0xlandlord", id))
	}
	assert.Zero(t, after.Vault.Held())
	assert.Equal(t, uint64(30), after.Vault.Balance("0xlandlord"))
}
