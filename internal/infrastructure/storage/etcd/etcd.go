package etcd

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/tentens-tech/rental-deposit/internal/config"
	"github.com/tentens-tech/rental-deposit/internal/infrastructure/storage"
	"go.etcd.io/etcd/client/pkg/v3/transport"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	DefaultPrefix            = "/rental-deposit/"
	DefaultMaxAppendAttempts = 128
)

type Connection struct {
	Cli            *clientv3.Client
	requestTimeout func(ctx context.Context) (context.Context, context.CancelFunc)
}

func New(cfg *config.Config) (*Connection, error) {
	var tlsConfig *tls.Config

	if cfg.Storage.Etcd.TLSEnabled {
		tlsInfo := transport.TLSInfo{
			TrustedCAFile: cfg.Storage.Etcd.ServerCACertPath,
			CertFile:      cfg.Storage.Etcd.ServerClientCertPath,
			KeyFile:       cfg.Storage.Etcd.ServerClientKeyPath,
		}

		var err error
		tlsConfig, err = tlsInfo.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS configuration for etcd endpoints: %w", err)
		}
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Storage.Etcd.EtcdAddrList,
		DialTimeout: cfg.Storage.Etcd.DialTimeout,
		TLS:         tlsConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	timeout := cfg.Storage.Etcd.RequestTimeout
	return &Connection{
		Cli: cli,
		requestTimeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, timeout)
		},
	}, nil
}

func leaseKey(id uint64) string {
	return fmt.Sprintf("%sleases/%020d", DefaultPrefix, id)
}

func countKey() string {
	return DefaultPrefix + "lease-count"
}

// Append writes the record and bumps the counter in one transaction guarded
// by the counter's revision, so concurrent writers never share an id.
func (con *Connection) Append(ctx context.Context, data []byte) (uint64, error) {
	for attempt := 0; attempt < DefaultMaxAppendAttempts; attempt++ {
		reqCtx, cancel := con.requestTimeout(ctx)

		resp, err := con.Cli.Get(reqCtx, countKey())
		if err != nil {
			cancel()
			return 0, fmt.Errorf("failed to get lease count from etcd: %w", err)
		}

		var next uint64
		var cmp clientv3.Cmp
		if len(resp.Kvs) == 0 {
			cmp = clientv3.Compare(clientv3.CreateRevision(countKey()), "=", 0)
		} else {
			next, err = strconv.ParseUint(string(resp.Kvs[0].Value), 10, 64)
			if err != nil {
				cancel()
				return 0, fmt.Errorf("corrupt lease count %q: %w", resp.Kvs[0].Value, err)
			}
			cmp = clientv3.Compare(clientv3.ModRevision(countKey()), "=", resp.Kvs[0].ModRevision)
		}

		txnResp, err := con.Cli.Txn(reqCtx).
			If(cmp).
			Then(
				clientv3.OpPut(leaseKey(next), string(data)),
				clientv3.OpPut(countKey(), strconv.FormatUint(next+1, 10)),
			).
			Commit()
		cancel()
		if err != nil {
			return 0, fmt.Errorf("failed to append lease: %w", err)
		}

		if txnResp.Succeeded {
			log.Debugf("Lease record %v appended", leaseKey(next))
			return next, nil
		}

		log.Warnf("Lease append race on id %v, retrying", next)
	}

	return 0, fmt.Errorf("failed to append lease after %d attempts", DefaultMaxAppendAttempts)
}

// Get returns the record and its ModRevision, which Put compares against.
func (con *Connection) Get(ctx context.Context, id uint64) ([]byte, uint64, error) {
	reqCtx, cancel := con.requestTimeout(ctx)
	defer cancel()

	resp, err := con.Cli.Get(reqCtx, leaseKey(id))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get lease from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, fmt.Errorf("lease %d: %w", id, storage.ErrNotFound)
	}

	return resp.Kvs[0].Value, uint64(resp.Kvs[0].ModRevision), nil
}

// Put overwrites an existing record only if nobody wrote it since the
// revision it was read at, so two replicas cannot both finalize a lease.
func (con *Connection) Put(ctx context.Context, id uint64, data []byte, version uint64) error {
	reqCtx, cancel := con.requestTimeout(ctx)
	defer cancel()

	key := leaseKey(id)
	txnResp, err := con.Cli.Txn(reqCtx).
		If(
			clientv3.Compare(clientv3.CreateRevision(key), ">", 0),
			clientv3.Compare(clientv3.ModRevision(key), "=", int64(version)),
		).
		Then(clientv3.OpPut(key, string(data))).
		Else(clientv3.OpGet(key, clientv3.WithCountOnly())).
		Commit()
	if err != nil {
		return fmt.Errorf("failed to update lease: %w", err)
	}
	if txnResp.Succeeded {
		return nil
	}

	if len(txnResp.Responses) > 0 && txnResp.Responses[0].GetResponseRange().GetCount() == 0 {
		return fmt.Errorf("lease %d: %w", id, storage.ErrNotFound)
	}
	log.Warnf("Lease record %v changed since revision %v", key, version)
	return fmt.Errorf("lease %d: %w", id, storage.ErrConflict)
}

func (con *Connection) Count(ctx context.Context) (uint64, error) {
	reqCtx, cancel := con.requestTimeout(ctx)
	defer cancel()

	resp, err := con.Cli.Get(reqCtx, countKey())
	if err != nil {
		return 0, fmt.Errorf("failed to get lease count from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return 0, nil
	}

	count, err := strconv.ParseUint(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt lease count %q: %w", resp.Kvs[0].Value, err)
	}

	return count, nil
}

func (con *Connection) Close() error {
	return con.Cli.Close()
}
