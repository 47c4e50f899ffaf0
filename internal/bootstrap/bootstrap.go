package bootstrap

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/application"
	"github.com/tentens-tech/rental-deposit/internal/application/command/escrow"
	"github.com/tentens-tech/rental-deposit/internal/config"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/cache"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/custody"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage/etcd"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage/mock"
)

func newStorageConnection(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case config.StorageTypeEtcd:
		storageConnection, err := etcd.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd storage connection, %w", err)
		}
		return storageConnection, nil
	case config.StorageTypeMock:
		log.Warn("Using in-memory storage, leases are lost on restart")
		return mock.New(), nil
	}

	return nil, fmt.Errorf("unsupported storage type: %v", cfg.Storage.Type)
}

func newCache(cfg *config.Config) *cache.Cache[uint64, escrow.Lease] {
	if cfg.Cache.Enabled {
		log.Info("Cache is enabled")
		return cache.New[uint64, escrow.Lease](cfg.Cache.Size)
	}

	log.Info("Cache is disabled")
	return nil
}

func newLedgerOptions(cfg *config.Config) []escrow.Option {
	var opts []escrow.Option
	if cfg.Escrow.StrictTerms {
		log.Info("Strict lease terms are enabled")
		opts = append(opts, escrow.WithStrictTerms())
	}
	return opts
}

// NewApplication builds the application from configuration. The returned
// cleanup releases the storage connection and stops the cache.
func NewApplication(ctx context.Context, cfg *config.Config) (*application.Application, func(), error) {
	storageConnection, err := newStorageConnection(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage connection: %w", err)
	}

	app, cleanup, err := newApplication(ctx, cfg, storageConnection)
	if err != nil {
		if closeErr := storageConnection.Close(); closeErr != nil {
			log.Errorf("Failed to close storage connection: %v", closeErr)
		}
		return nil, nil, err
	}

	return app, cleanup, nil
}

func newApplication(ctx context.Context, cfg *config.Config, storageConnection storage.Storage) (*application.Application, func(), error) {
	vault := custody.New()
	ledger := escrow.NewLedger(storageConnection, vault, clock.New(), newLedgerOptions(cfg)...)

	held, err := ledger.ActiveDeposits(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore custody: %w", err)
	}
	vault.Restore(held)

	leaseCache := newCache(cfg)
	app := application.New(ctx, cfg, ledger, vault, leaseCache)

	cleanup := func() {
		if leaseCache != nil {
			leaseCache.Close()
		}
		if err := storageConnection.Close(); err != nil {
			log.Errorf("Failed to close storage connection: %v", err)
		}
	}

	return app, cleanup, nil
}
