package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
)

// Custodian moves value in and out of escrow custody. Each call either
// fully succeeds or fails with no value moved.
type Custodian interface {
	Deposit(ctx context.Context, from string, amount uint64) error
	Release(ctx context.Context, to string, amount uint64) error
}

type Option func(*Ledger)

// WithStrictTerms rejects leases whose end is not after their start, or
// whose start is already in the past.
func WithStrictTerms() Option {
	return func(l *Ledger) {
		l.strictTerms = true
	}
}

// Ledger is the escrow state machine. A single mutex serialises every
// operation, so a transfer and the flag flip that follows it are observed
// as one unit.
type Ledger struct {
	mu          sync.Mutex
	storage     storage.Storage
	custody     Custodian
	clock       clock.Clock
	strictTerms bool
	lastNow     time.Time
}

func NewLedger(storageConnection storage.Storage, custodian Custodian, clk clock.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		storage: storageConnection,
		custody: custodian,
		clock:   clk,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Ledger) CreateLease(ctx context.Context, caller Account, terms LeaseTerms, attachedValue uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if attachedValue != terms.DepositAmount {
		return 0, fmt.Errorf("%w: attached %d, deposit is %d", ErrValueMismatch, attachedValue, terms.DepositAmount)
	}
	if l.strictTerms {
		if err := checkTerms(terms, l.now()); err != nil {
			return 0, err
		}
	}

	lease := Lease{
		Landlord:      terms.Landlord,
		Tenant:        caller,
		DepositAmount: terms.DepositAmount,
		StartDate:     terms.StartDate,
		EndDate:       terms.EndDate,
		IsActive:      true,
	}
	data, err := lease.ToJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal lease: %w", err)
	}

	log.Debugf("Taking deposit of %d from %v into custody", attachedValue, caller)
	if err = l.custody.Deposit(ctx, string(caller), attachedValue); err != nil {
		return 0, fmt.Errorf("failed to take deposit into custody: %w", err)
	}

	id, err := l.storage.Append(ctx, data)
	if err != nil {
		if refundErr := l.custody.Release(context.WithoutCancel(ctx), string(caller), attachedValue); refundErr != nil {
			log.Errorf("Failed to hand back deposit of %d to %v after storage failure: %v", attachedValue, caller, refundErr)
		}
		return 0, fmt.Errorf("failed to store lease: %w", err)
	}

	log.Infof("Lease %v created, tenant: %v, landlord: %v, deposit: %d", id, caller, terms.Landlord, attachedValue)
	return id, nil
}

// ApproveDepositReturn has no activity or time guard: the landlord may
// approve before the term ends and even after the lease is finalized.
func (l *Ledger) ApproveDepositReturn(ctx context.Context, caller Account, leaseID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, version, err := l.load(ctx, leaseID)
	if err != nil {
		return err
	}
	if err = requireLandlord(lease, caller); err != nil {
		return err
	}
	if lease.LandlordApproved {
		log.Debugf("Lease %v is already approved", leaseID)
		return nil
	}

	lease.LandlordApproved = true
	if err = l.save(ctx, lease, version); err != nil {
		return err
	}

	log.Infof("Deposit return approved for lease %v", leaseID)
	return nil
}

// WithdrawDeposit is the landlord's forfeiture claim. It does not require
// approval once the term has lapsed.
func (l *Ledger) WithdrawDeposit(ctx context.Context, caller Account, leaseID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	lease, version, err := l.load(ctx, leaseID)
	if err != nil {
		return err
	}
	if err = requireLandlord(lease, caller); err != nil {
		return err
	}
	if err = requireClaimable(lease, now); err != nil {
		return err
	}

	return l.finalize(ctx, lease, version, lease.Landlord)
}

// ReturnDeposit is the tenant's refund claim, gated on landlord approval.
func (l *Ledger) ReturnDeposit(ctx context.Context, caller Account, leaseID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	lease, version, err := l.load(ctx, leaseID)
	if err != nil {
		return err
	}
	if err = requireTenant(lease, caller); err != nil {
		return err
	}
	if err = requireClaimable(lease, now); err != nil {
		return err
	}
	if !lease.LandlordApproved {
		return fmt.Errorf("lease %d: %w", leaseID, ErrApprovalMissing)
	}

	return l.finalize(ctx, lease, version, lease.Tenant)
}

func (l *Ledger) LeaseCount(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, err := l.storage.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count leases: %w", err)
	}

	return count, nil
}

func (l *Ledger) LeaseDetails(ctx context.Context, leaseID uint64) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, _, err := l.load(ctx, leaseID)
	return lease, err
}

// ActiveDeposits sums the deposits of every active lease, which is the
// value custody must hold.
func (l *Ledger) ActiveDeposits(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, err := l.storage.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count leases: %w", err)
	}

	var total uint64
	for leaseID := uint64(0); leaseID < count; leaseID++ {
		lease, _, err := l.load(ctx, leaseID)
		if err != nil {
			return 0, err
		}
		if lease.IsActive {
			total += lease.DepositAmount
		}
	}

	return total, nil
}

// finalize releases the deposit and only then marks the lease inactive.
// If the flag cannot be persisted the released value is taken back.
func (l *Ledger) finalize(ctx context.Context, lease Lease, version uint64, recipient Account) error {
	log.Debugf("Releasing deposit of %d for lease %v to %v", lease.DepositAmount, lease.ID, recipient)
	if err := l.custody.Release(ctx, string(recipient), lease.DepositAmount); err != nil {
		return fmt.Errorf("failed to release deposit of lease %d: %w", lease.ID, err)
	}

	lease.IsActive = false
	if err := l.save(ctx, lease, version); err != nil {
		if reclaimErr := l.custody.Deposit(context.WithoutCancel(ctx), string(recipient), lease.DepositAmount); reclaimErr != nil {
			log.Errorf("Failed to reclaim deposit of lease %v from %v after storage failure: %v", lease.ID, recipient, reclaimErr)
		}
		return err
	}

	log.Infof("Lease %v finalized, deposit of %d released to %v", lease.ID, lease.DepositAmount, recipient)
	return nil
}

func (l *Ledger) load(ctx context.Context, leaseID uint64) (Lease, uint64, error) {
	data, version, err := l.storage.Get(ctx, leaseID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Lease{}, 0, fmt.Errorf("lease %d: %w", leaseID, ErrNotFound)
		}
		return Lease{}, 0, fmt.Errorf("failed to load lease %d: %w", leaseID, err)
	}

	lease, err := leaseFromJSON(data)
	if err != nil {
		return Lease{}, 0, fmt.Errorf("failed to unmarshal lease %d: %w", leaseID, err)
	}
	lease.ID = leaseID

	return lease, version, nil
}

// save writes the lease back only if it is still at the version it was loaded at.
func (l *Ledger) save(ctx context.Context, lease Lease, version uint64) error {
	data, err := lease.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal lease %d: %w", lease.ID, err)
	}
	if err = l.storage.Put(ctx, lease.ID, data, version); err != nil {
		return fmt.Errorf("failed to store lease %d: %w", lease.ID, err)
	}

	return nil
}

// now never moves backwards, whatever the underlying clock does.
func (l *Ledger) now() time.Time {
	now := l.clock.Now()
	if now.Before(l.lastNow) {
		return l.lastNow
	}
	l.lastNow = now

	return now
}

func requireLandlord(lease Lease, caller Account) error {
	if caller != lease.Landlord {
		return fmt.Errorf("%w: only the landlord can perform this action", ErrUnauthorized)
	}
	return nil
}

func requireTenant(lease Lease, caller Account) error {
	if caller != lease.Tenant {
		return fmt.Errorf("%w: only the tenant can perform this action", ErrUnauthorized)
	}
	return nil
}

func requireClaimable(lease Lease, now time.Time) error {
	if !lease.IsActive {
		return fmt.Errorf("lease %d: %w", lease.ID, ErrAlreadyFinalized)
	}
	if unixSeconds(now) < lease.EndDate {
		return fmt.Errorf("lease %d ends at %d: %w", lease.ID, lease.EndDate, ErrTermNotEnded)
	}
	return nil
}

func checkTerms(terms LeaseTerms, now time.Time) error {
	if terms.EndDate <= terms.StartDate {
		return fmt.Errorf("%w: end date %d is not after start date %d", ErrInvalidTerm, terms.EndDate, terms.StartDate)
	}
	if terms.StartDate < unixSeconds(now) {
		return fmt.Errorf("%w: start date %d is in the past", ErrInvalidTerm, terms.StartDate)
	}
	return nil
}

func unixSeconds(t time.Time) uint64 {
	if sec := t.Unix(); sec > 0 {
		return uint64(sec)
	}
	return 0
}
