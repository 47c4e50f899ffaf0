// Package custody is the value-transfer primitive behind the escrow: it
// tracks account balances and the total held in escrow. Every transfer
// either fully succeeds or leaves all balances untouched.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/metrics"
)

const (
	directionIn  = "in"
	directionOut = "out"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientCustody = errors.New("insufficient value in custody")
	ErrOverflow            = errors.New("balance overflow")
)

type Vault struct {
	mu       sync.Mutex
	balances map[string]uint64
	held     uint64
}

func New() *Vault {
	return &Vault{
		balances: make(map[string]uint64),
	}
}

// Fund mints amount into account. It backs the development faucet and tests.
func (v *Vault) Fund(account string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	balance := v.balances[account]
	if balance+amount < balance {
		return fmt.Errorf("fund %v: %w", account, ErrOverflow)
	}
	v.balances[account] = balance + amount

	return nil
}

// Restore sets the held total, used at startup to resync custody with the
// deposits of leases that are still active in storage.
func (v *Vault) Restore(held uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.held = held
	metrics.CustodyHeld.Set(float64(v.held))
	log.Infof("Custody restored with %d held", held)
}

// Deposit moves amount from the account into custody.
func (v *Vault) Deposit(ctx context.Context, from string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	balance := v.balances[from]
	if balance < amount {
		metrics.CustodyTransfers.WithLabelValues(directionIn, metrics.StatusRejected).Inc()
		return fmt.Errorf("deposit of %d from %v: %w", amount, from, ErrInsufficientFunds)
	}
	if v.held+amount < v.held {
		metrics.CustodyTransfers.WithLabelValues(directionIn, metrics.StatusRejected).Inc()
		return fmt.Errorf("deposit of %d from %v: %w", amount, from, ErrOverflow)
	}

	v.balances[from] = balance - amount
	v.held += amount
	metrics.CustodyHeld.Set(float64(v.held))
	metrics.CustodyTransfers.WithLabelValues(directionIn, metrics.StatusSuccess).Inc()
	log.Debugf("Custody received %d from %v", amount, from)

	return nil
}

// Release moves amount out of custody to the account.
func (v *Vault) Release(ctx context.Context, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.held < amount {
		metrics.CustodyTransfers.WithLabelValues(directionOut, metrics.StatusRejected).Inc()
		return fmt.Errorf("release of %d to %v: %w", amount, to, ErrInsufficientCustody)
	}
	balance := v.balances[to]
	if balance+amount < balance {
		metrics.CustodyTransfers.WithLabelValues(directionOut, metrics.StatusRejected).Inc()
		return fmt.Errorf("release of %d to %v: %w", amount, to, ErrOverflow)
	}

	v.held -= amount
	v.balances[to] = balance + amount
	metrics.CustodyHeld.Set(float64(v.held))
	metrics.CustodyTransfers.WithLabelValues(directionOut, metrics.StatusSuccess).Inc()
	log.Debugf("Custody released %d to %v", amount, to)

	return nil
}

func (v *Vault) Balance(account string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.balances[account]
}

func (v *Vault) Held() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.held
}
