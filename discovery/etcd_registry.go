// Package discovery: etcd-based Registry implementation.
//
// etcd is a distributed key-value store that provides strong
// consistency (Raft protocol). It serves as a distributed phonebook
// for peers:
//
//	Key:   /peerrpc/{serviceName}/{Addr}
//	Value: JSON-encoded PeerAddress
//
// Registration uses TTL-based leases: if a peer crashes, its lease
// expires and the entry is automatically removed, preventing ghost
// addresses from being handed out to dialers.
package discovery

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/peerrpc/"

// EtcdRegistry implements Registry using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (safe for concurrent use, shared across goroutines)
	logger *zap.Logger
}

// EtcdRegistryOption configures an EtcdRegistry at construction time.
type EtcdRegistryOption func(*EtcdRegistry)

// WithLogger attaches a *zap.Logger for watch/keepalive diagnostics.
func WithLogger(logger *zap.Logger) EtcdRegistryOption {
	return func(r *EtcdRegistry) { r.logger = logger }
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, opts ...EtcdRegistryOption) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	r := &EtcdRegistry{client: c, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register adds a peer address to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// leaseID is a local variable, not stored on the struct, so multiple
// peers sharing one EtcdRegistry don't race over it.
func (r *EtcdRegistry) Register(serviceName string, addr PeerAddress, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(addr)
	if err != nil {
		return err
	}

	key := keyPrefix + serviceName + "/" + addr.Addr
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("service", serviceName), zap.String("addr", addr.Addr))
	}()
	return nil
}

// Deregister removes a peer address from etcd. Called during graceful
// shutdown, before the listening socket is closed.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	ctx := context.TODO()
	_, err := r.client.Delete(ctx, keyPrefix+serviceName+"/"+addr)
	return err
}

// Watch monitors a service prefix in etcd and emits the updated
// address list whenever registrations or deregistrations occur.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []PeerAddress {
	ctx := context.TODO()
	ch := make(chan []PeerAddress, 1)
	prefix := keyPrefix + serviceName + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			addrs, err := r.Discover(serviceName)
			if err != nil {
				r.logger.Warn("discover after watch event failed", zap.String("service", serviceName), zap.Error(err))
				continue
			}
			ch <- addrs
		}
	}()

	return ch
}

// Discover returns every currently registered address for a service
// name, by querying etcd with a key prefix.
func (r *EtcdRegistry) Discover(serviceName string) ([]PeerAddress, error) {
	ctx := context.TODO()
	prefix := keyPrefix + serviceName + "/"

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	addrs := make([]PeerAddress, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var addr PeerAddress
		if err := json.Unmarshal(kv.Value, &addr); err != nil {
			r.logger.Warn("skipping malformed registry entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		addrs = append(addrs, addr)
	}

	return addrs, nil
}
