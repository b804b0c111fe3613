// Package connection owns the active broker and schema registry
// connection of the process.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/internal/schemaregistry"
	"github.com/aleksandr-gorokhov/komprender/source/kafka"
)

type Request struct {
	Name              string `json:"name" validate:"required"`
	Host              string `json:"host" validate:"required"`
	SchemaRegistryURL string `json:"schema_registry" validate:"omitempty,url"`
}

// Retry bounds broker validation on connect.
type Retry struct {
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

var DefaultRetry = Retry{
	AttemptTimeout:  time.Second,
	InitialInterval: 200 * time.Millisecond,
	MaxElapsed:      10 * time.Second,
}

type AdapterFactory func(kafka.Config) (kafka.Adapter, error)

type Manager struct {
	base       kafka.Config
	newAdapter AdapterFactory
	registry   *schemaregistry.Registry
	store      *Store
	retry      Retry

	mu      sync.RWMutex
	active  kafka.Adapter
	current Request
}

type Option func(*Manager)

func WithAdapterFactory(f AdapterFactory) Option { return func(m *Manager) { m.newAdapter = f } }
func WithRetry(r Retry) Option                   { return func(m *Manager) { m.retry = r } }

// NewManager builds a manager. base carries the broker settings shared by
// every connection (version, TLS, SASL, timeouts); store may be nil.
func NewManager(base kafka.Config, registry *schemaregistry.Registry, store *Store, opts ...Option) *Manager {
	m := &Manager{
		base:       base,
		newAdapter: kafka.NewAdapter,
		registry:   registry,
		store:      store,
		retry:      DefaultRetry,
	}
	for _, o := range opts {
		o(m)
	}
	if m.registry == nil {
		m.registry = schemaregistry.New(0)
	}
	return m
}

func (m *Manager) Registry() *schemaregistry.Registry { return m.registry }

// Connect connects the schema registry (when a url is given) and then
// proves the brokers reachable. On success the connection replaces the
// current one and is saved.
func (m *Manager) Connect(ctx context.Context, req Request) error {
	log := logging.Component("connection").With("name", req.Name, "host", req.Host)

	if _, err := m.registry.Connect(ctx, req.SchemaRegistryURL); err != nil {
		return err
	}

	cfg := m.base
	cfg.Brokers = []string{req.Host}
	adapter, err := m.newAdapter(cfg)
	if err != nil {
		m.registry.Disconnect()
		return err
	}

	if err := m.ping(ctx, adapter, log); err != nil {
		_ = adapter.Close()
		m.registry.Disconnect()
		return fmt.Errorf("could not establish connection with kafka broker %s: %w", req.Host, err)
	}

	m.mu.Lock()
	prev := m.active
	m.active, m.current = adapter, req
	m.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	log.Info("connected")

	if m.store != nil {
		item := Item{Name: req.Name, Host: req.Host, SchemaRegistry: req.SchemaRegistryURL}
		if err := m.store.Add(item); err != nil {
			log.Warn("could not save connection", "err", err)
		}
	}
	return nil
}

func (m *Manager) ping(ctx context.Context, adapter kafka.Adapter, log *slog.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retry.InitialInterval
	bo.MaxElapsedTime = m.retry.MaxElapsed

	attempts := 0
	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, m.retry.AttemptTimeout)
		defer cancel()
		return adapter.Ping(actx)
	}
	notify := func(err error, delay time.Duration) {
		log.Warn("broker not reachable yet", "attempt", attempts, "delay", delay, "err", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

func (m *Manager) Disconnect() error {
	m.mu.Lock()
	prev := m.active
	m.active, m.current = nil, Request{}
	m.mu.Unlock()
	m.registry.Disconnect()
	if prev == nil {
		return nil
	}
	return prev.Close()
}

// Provider implements consume.ProviderSource.
func (m *Manager) Provider() (consume.BrokerProvider, error) {
	return m.Adapter()
}

func (m *Manager) Adapter() (kafka.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, consume.ErrConnectionNotEstablished
	}
	return m.active, nil
}

func (m *Manager) Current() (Request, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.active != nil
}

func (m *Manager) Saved() ([]Item, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.Load()
}
