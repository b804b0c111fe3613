package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/aleksandr-gorokhov/komprender/internal/config"
	"github.com/aleksandr-gorokhov/komprender/internal/connection"
	"github.com/aleksandr-gorokhov/komprender/internal/httpapi"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/internal/telemetry"
	"github.com/aleksandr-gorokhov/komprender/internal/transport"
	"github.com/aleksandr-gorokhov/komprender/sink"
	"github.com/aleksandr-gorokhov/komprender/sink/ws"
)

func Bootstrap(ctx context.Context, cfg config.Config, opts ...connection.Option) (*Engine, error) {
	log := logging.Component("engine")
	core := NewCore(cfg, opts...)

	// 1. sinks
	sinks, broadcaster, err := buildSinks(cfg)
	if err != nil {
		return nil, fmt.Errorf("sinks: %w", err)
	}

	// 2. transport server
	srv, err := transport.StartServer(cfg.Server.GRPCPort, core.Consumer)
	if err != nil {
		_ = sinks.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}

	// 3. REST + /ws
	httpLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HTTPPort))
	if err != nil {
		srv.Stop()
		_ = sinks.Close()
		return nil, fmt.Errorf("http: %w", err)
	}
	deps := httpapi.Deps{
		Connections: core.Connections,
		Schemas:     core.Registry,
		Consumer:    core.Consumer,
		Producer:    core.Producer,
		Events:      sinks,
	}
	if broadcaster != nil {
		deps.WS = broadcaster
	}
	api := &http.Server{Handler: httpapi.NewRouter(ctx, deps)}

	// 4. metrics
	metrics := telemetry.Expose(cfg.Server.MetricsPort)

	// 5. connection from config, if any
	if ok, err := core.Connect(ctx); err != nil {
		log.Warn("configured connection failed; connect from the UI", "err", err)
	} else if ok {
		log.Info("connected", "brokers", cfg.Kafka.Brokers)
	}

	return &Engine{
		core:      core,
		transport: srv,
		api:       api,
		httpLis:   httpLis,
		metrics:   metrics,
		sinks:     sinks,
	}, nil
}

// buildSinks creates the enabled sinks. The websocket sink is returned
// separately because it also serves /ws.
func buildSinks(cfg config.Config) (sink.Fanout, *ws.Broadcaster, error) {
	var (
		out         sink.Fanout
		broadcaster *ws.Broadcaster
	)
	for _, name := range cfg.Sinks {
		if name == "ws" {
			broadcaster = ws.New(cfg.SinkConfigs.WS)
			out = append(out, broadcaster)
			continue
		}
		a, err := sink.NewAdapter(name)
		if err != nil {
			_ = out.Close()
			return nil, nil, err
		}
		if err := a.Configure(sinkConfig(cfg, name)); err != nil {
			_ = out.Close()
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, a)
	}
	return out, broadcaster, nil
}

func sinkConfig(cfg config.Config, name string) any {
	switch name {
	case "stdout":
		return cfg.SinkConfigs.Stdout
	case "kafka":
		return cfg.SinkConfigs.Kafka
	default:
		return nil
	}
}
