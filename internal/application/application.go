package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/config"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/cache"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/custody"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/metrics"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
)

var ErrFaucetDisabled = errors.New("faucet is disabled")

type Application struct {
	Ctx        context.Context
	Config     *config.Config
	Ledger     *escrow.Ledger
	Vault      *custody.Vault
	LeaseCache *cache.Cache[uint64, escrow.Lease]

	// cacheMu keeps a cache fill from racing a mutation of the same lease.
	cacheMu sync.RWMutex
}

// New wires the application. leaseCache may be nil, in which case every
// detail lookup goes to the ledger.
func New(ctx context.Context, cfg *config.Config, ledger *escrow.Ledger, vault *custody.Vault, leaseCache *cache.Cache[uint64, escrow.Lease]) *Application {
	return &Application{
		Ctx:        ctx,
		Config:     cfg,
		Ledger:     ledger,
		Vault:      vault,
		LeaseCache: leaseCache,
	}
}

func (app *Application) CreateLease(ctx context.Context, caller escrow.Account, terms escrow.LeaseTerms, attachedValue uint64) (uint64, error) {
	start := time.Now()

	leaseID, err := app.Ledger.CreateLease(ctx, caller, terms, attachedValue)
	observe(metrics.EscrowOperationCreate, start, err)

	return leaseID, err
}

func (app *Application) ApproveDepositReturn(ctx context.Context, caller escrow.Account, leaseID uint64) error {
	start := time.Now()

	app.cacheMu.Lock()
	err := app.Ledger.ApproveDepositReturn(ctx, caller, leaseID)
	app.invalidate(leaseID, err)
	app.cacheMu.Unlock()
	observe(metrics.EscrowOperationApprove, start, err)

	return err
}

func (app *Application) WithdrawDeposit(ctx context.Context, caller escrow.Account, leaseID uint64) error {
	start := time.Now()

	app.cacheMu.Lock()
	err := app.Ledger.WithdrawDeposit(ctx, caller, leaseID)
	app.invalidate(leaseID, err)
	app.cacheMu.Unlock()
	observe(metrics.EscrowOperationWithdraw, start, err)

	return err
}

func (app *Application) ReturnDeposit(ctx context.Context, caller escrow.Account, leaseID uint64) error {
	start := time.Now()

	app.cacheMu.Lock()
	err := app.Ledger.ReturnDeposit(ctx, caller, leaseID)
	app.invalidate(leaseID, err)
	app.cacheMu.Unlock()
	observe(metrics.EscrowOperationReturn, start, err)

	return err
}

func (app *Application) LeaseCount(ctx context.Context) (uint64, error) {
	start := time.Now()

	count, err := app.Ledger.LeaseCount(ctx)
	observe(metrics.EscrowOperationCount, start, err)

	return count, err
}

func (app *Application) LeaseDetails(ctx context.Context, leaseID uint64) (escrow.Lease, error) {
	start := time.Now()

	if app.LeaseCache != nil {
		if lease, ok := app.LeaseCache.Get(leaseID); ok {
			log.Debugf("Lease %v served from cache", leaseID)
			observe(metrics.EscrowOperationDetails, start, nil)
			return lease, nil
		}
	}

	app.cacheMu.RLock()
	defer app.cacheMu.RUnlock()

	lease, err := app.Ledger.LeaseDetails(ctx, leaseID)
	observe(metrics.EscrowOperationDetails, start, err)
	if err != nil {
		return escrow.Lease{}, err
	}

	if app.LeaseCache != nil {
		app.LeaseCache.Set(leaseID, lease, app.Config.Cache.TTL)
	}

	return lease, nil
}

// ListLeases returns every lease in id order.
func (app *Application) ListLeases(ctx context.Context) ([]escrow.Lease, error) {
	count, err := app.LeaseCount(ctx)
	if err != nil {
		return nil, err
	}

	leases := make([]escrow.Lease, 0, count)
	for leaseID := uint64(0); leaseID < count; leaseID++ {
		lease, err := app.LeaseDetails(ctx, leaseID)
		if err != nil {
			return nil, fmt.Errorf("failed to list lease %d: %w", leaseID, err)
		}
		leases = append(leases, lease)
	}

	return leases, nil
}

func (app *Application) Balance(account escrow.Account) uint64 {
	return app.Vault.Balance(string(account))
}

func (app *Application) Fund(account escrow.Account, amount uint64) error {
	if !app.Config.Custody.FaucetEnabled {
		return ErrFaucetDisabled
	}
	if err := app.Vault.Fund(string(account), amount); err != nil {
		return err
	}

	log.Infof("Faucet funded %v with %d", account, amount)
	return nil
}

// invalidate drops the cached snapshot once a mutation went through.
// Rejected calls leave the lease untouched, so the entry stays.
func (app *Application) invalidate(leaseID uint64, err error) {
	if app.LeaseCache == nil || err != nil {
		return
	}
	app.LeaseCache.Delete(leaseID)
}

func observe(operation string, start time.Time, err error) {
	metrics.EscrowOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	status := metrics.StatusSuccess
	switch {
	case err == nil:
	case IsRejection(err):
		status = metrics.StatusRejected
	default:
		status = metrics.StatusError
	}
	metrics.EscrowOperations.WithLabelValues(operation, status).Inc()
}

// IsRejection reports whether err is a precondition failure rather than an
// infrastructure fault.
func IsRejection(err error) bool {
	for _, target := range []error{
		escrow.ErrNotFound,
		escrow.ErrUnauthorized,
		escrow.ErrAlreadyFinalized,
		escrow.ErrTermNotEnded,
		escrow.ErrApprovalMissing,
		escrow.ErrValueMismatch,
		escrow.ErrInvalidTerm,
		custody.ErrInsufficientFunds,
		storage.ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
