package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/internal/transport"
	"github.com/aleksandr-gorokhov/komprender/sink"
)

const shutdownTimeout = 5 * time.Second

type Engine struct {
	core      *Core
	transport *transport.Server
	api       *http.Server
	httpLis   net.Listener
	metrics   *http.Server
	sinks     sink.Fanout
}

func (e *Engine) Core() *Core { return e.core }

func (e *Engine) HTTPAddr() net.Addr { return e.httpLis.Addr() }
func (e *Engine) GRPCAddr() net.Addr { return e.transport.Addr() }

// Run serves until ctx is cancelled, then stops every session and shuts the
// listeners down.
func (e *Engine) Run(ctx context.Context) error {
	log := logging.Component("engine")

	go func() {
		if err := e.api.Serve(e.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http listener stopped", "err", err)
		}
	}()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		e.core.Consumer.StopAllConsumption()
		e.transport.Stop()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = e.api.Shutdown(sctx)
		_ = e.metrics.Shutdown(sctx)
		if err := e.sinks.Close(); err != nil {
			log.Warn("sink close", "err", err)
		}
		if err := e.core.Connections.Disconnect(); err != nil {
			log.Warn("disconnect", "err", err)
		}
	}()

	log.Info("serving", "grpc", e.GRPCAddr().String(), "http", e.HTTPAddr().String())
	if err := e.transport.Serve(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	<-stopped
	return nil
}
