package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"market-broker/src/cache"
	"market-broker/src/config"
	"market-broker/src/control"
	"market-broker/src/logger"
	"market-broker/src/queue"
	"market-broker/src/registry"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Broker
// -----------------------------------------------------------------------------

// Broker owns the shared tables and both listeners.
type Broker struct {
	Config *config.Config
	Logger *logger.Logger

	Cache    *cache.HistoryCache
	Registry *registry.SubscriptionRegistry
	Queues   *queue.OutboundQueueTable

	Ingestion *IngestionListener
	Egress    *EgressListener

	// fanout is held shared while an update is admitted and queued, and
	// exclusively while a wildcard subscriber takes its backfill.
	fanout sync.RWMutex

	control      *control.HealthServer
	ingestionSrv *http.Server
	egressSrv    *http.Server
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewBroker(cfg *config.Config, log *logger.Logger) (*Broker, error) {
	policy, err := queue.ParsePolicy(cfg.Broker.QueueOverflowPolicy)
	if err != nil {
		return nil, err
	}

	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	b := &Broker{
		Config:   cfg,
		Logger:   log,
		Cache:    cache.NewHistoryCache(cfg.Broker.HistoryCapacity),
		Registry: registry.NewSubscriptionRegistry(),
		Queues:   queue.NewOutboundQueueTable(cfg.Broker.QueueMaxDepth, policy),
	}

	b.Cache.Seed(cfg.Subjects)
	log.Info("Seeded cache with %d subjects", len(cfg.Subjects))

	b.Egress = NewEgressListener(b, log.Named("Egress"))
	b.Ingestion = NewIngestionListener(b, log.Named("Ingestion"))
	return b, nil
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start binds every listener, then serves egress and the control server in
// the background. A bind failure is returned before anything is served.
func (b *Broker) Start() (ingestion net.Listener, err error) {
	egressLn, err := net.Listen("tcp", b.Config.EgressAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to bind egress %s: %w", b.Config.EgressAddr(), err)
	}
	ingestionLn, err := net.Listen("tcp", b.Config.IngestionAddr())
	if err != nil {
		egressLn.Close()
		return nil, fmt.Errorf("failed to bind ingestion %s: %w", b.Config.IngestionAddr(), err)
	}

	if addr := b.Config.ControlAddr(); addr != "" {
		controlLn, err := net.Listen("tcp", addr)
		if err != nil {
			egressLn.Close()
			ingestionLn.Close()
			return nil, fmt.Errorf("failed to bind control %s: %w", addr, err)
		}
		b.control = control.NewHealthServer(b.Logger.Named("Control"))
		go func() {
			if err := b.control.Serve(controlLn); err != nil {
				b.Logger.Error("Control server failed: %v", err)
			}
		}()
	}

	b.egressSrv = &http.Server{Handler: b.Egress.Handler()}
	go func() {
		b.Logger.Info("Egress listening on %s", egressLn.Addr())
		if err := b.egressSrv.Serve(egressLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.Logger.Error("Egress server failed: %v", err)
		}
	}()
	b.setServing(control.ServiceEgress, true)

	b.ingestionSrv = &http.Server{Handler: b.Ingestion.Handler()}
	return ingestionLn, nil
}

// -----------------------------------------------------------------------------

// Run starts the broker and serves ingestion on the calling goroutine until
// ctx is cancelled or the ingestion server fails.
func (b *Broker) Run(ctx context.Context) error {
	ln, err := b.Start()
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Stop(shutdownCtx); err != nil {
			b.Logger.Warning("Shutdown incomplete: %v", err)
		}
	}()

	b.setServing(control.ServiceIngestion, true)
	b.Logger.Info("Ingestion listening on %s", ln.Addr())
	if err := b.ingestionSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingestion server failed: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes the listeners. Hijacked websocket connections are not tracked
// by http.Server; their tasks end when their sockets fail.
func (b *Broker) Stop(ctx context.Context) error {
	b.setServing(control.ServiceIngestion, false)
	b.setServing(control.ServiceEgress, false)

	var errs []error
	if b.ingestionSrv != nil {
		errs = append(errs, b.ingestionSrv.Shutdown(ctx))
	}
	if b.egressSrv != nil {
		errs = append(errs, b.egressSrv.Shutdown(ctx))
	}
	if b.control != nil {
		b.control.Stop()
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------

func (b *Broker) setServing(service string, serving bool) {
	if b.control != nil {
		b.control.SetServing(service, serving)
	}
}
