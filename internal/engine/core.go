package engine

import (
	"context"
	"strings"

	"github.com/aleksandr-gorokhov/komprender/internal/config"
	"github.com/aleksandr-gorokhov/komprender/internal/connection"
	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/produce"
	"github.com/aleksandr-gorokhov/komprender/internal/schemaregistry"
)

// DefaultConnectionName names the connection made from the kafka section of
// the config.
const DefaultConnectionName = "default"

// Core is the set of services shared by the server and the one-shot CLI
// commands.
type Core struct {
	Config      config.Config
	Registry    *schemaregistry.Registry
	Connections *connection.Manager
	Consumer    *consume.Service
	Producer    *produce.Service
}

func NewCore(cfg config.Config, opts ...connection.Option) *Core {
	registry := schemaregistry.New(cfg.SchemaRegistry.Timeout)
	conns := connection.NewManager(cfg.Kafka, registry, connection.NewStore(cfg.ConnectionsFile), opts...)
	return &Core{
		Config:      cfg,
		Registry:    registry,
		Connections: conns,
		Consumer:    consume.NewService(conns, registry, nil, cfg.ConsumeOptions()),
		Producer:    produce.NewService(conns, registry),
	}
}

// Connect opens the connection described by the kafka and schema_registry
// sections. It is a no-op without configured brokers.
func (c *Core) Connect(ctx context.Context) (bool, error) {
	if len(c.Config.Kafka.Brokers) == 0 {
		return false, nil
	}
	err := c.Connections.Connect(ctx, connection.Request{
		Name:              DefaultConnectionName,
		Host:              strings.Join(c.Config.Kafka.Brokers, ","),
		SchemaRegistryURL: c.Config.SchemaRegistry.URL,
	})
	return err == nil, err
}

// Close stops every session and drops the connection.
func (c *Core) Close() error {
	c.Consumer.StopAllConsumption()
	return c.Connections.Disconnect()
}
