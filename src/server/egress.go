package server

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"market-broker/src/codec"
	"market-broker/src/helpers"
	"market-broker/src/logger"
	"market-broker/src/registry"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------
// EgressListener
// -----------------------------------------------------------------------------

// EgressListener accepts subscriber connections. Each connection gets a
// receive task (readPump) and a send task (writePump).
type EgressListener struct {
	broker *Broker
	logger *logger.Logger
	engine *gin.Engine

	nextID      atomic.Uint64
	connections atomic.Int64

	idlePoll        time.Duration
	keepaliveCycles int
	writeWait       time.Duration
}

// -----------------------------------------------------------------------------

func NewEgressListener(b *Broker, log *logger.Logger) *EgressListener {
	l := &EgressListener{
		broker:          b,
		logger:          log,
		engine:          gin.New(),
		idlePoll:        time.Duration(b.Config.Broker.IdlePollMs) * time.Millisecond,
		keepaliveCycles: b.Config.Broker.KeepaliveCycles,
		writeWait:       time.Duration(b.Config.Broker.WriteTimeoutMs) * time.Millisecond,
	}

	l.engine.Use(gin.Recovery())
	l.setupRoutes()
	return l
}

// Handler returns the HTTP handler serving subscriber upgrades and the REST API.
func (l *EgressListener) Handler() http.Handler {
	return l.engine
}

// Connections is the number of subscriber connections with a live task.
func (l *EgressListener) Connections() int64 {
	return l.connections.Load()
}

// -----------------------------------------------------------------------------

func (l *EgressListener) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.logger.Warning("Failed to upgrade subscriber websocket: %v", err)
		return
	}

	s := &subscriber{
		id:       l.nextID.Add(1),
		listener: l,
		conn:     conn,
	}
	l.broker.Queues.Create(s.id)

	if l.broker.Config.Egress.PushDirectory {
		_ = l.broker.Queues.Enqueue(s.id, l.broker.Cache.Directory())
	}

	l.logger.Info("Subscriber %d connected from %s", s.id, c.ClientIP())

	s.start()
}

// -----------------------------------------------------------------------------

// HandleSubscribe applies one subscription request for connection id, whose
// current subject is current. It returns the subject in effect afterwards.
// Unknown subjects and malformed requests leave the subscription untouched.
func (l *EgressListener) HandleSubscribe(id uint64, current string, message string) string {
	name, err := l.subscribe(id, message)
	if err != nil {
		l.logger.Debug("Subscriber %d: %v", id, err)
		return current
	}

	l.logger.Debug("Subscriber %d now follows %q", id, name)
	return name
}

func (l *EgressListener) subscribe(id uint64, message string) (string, error) {
	req, err := codec.DecodeSubscribe(message)
	if err != nil {
		return "", helpers.NewSubscriptionError("malformed request", err)
	}

	name := req.Stock
	wildcard := registry.IsWildcard(name)
	if !wildcard && !l.broker.Cache.Contains(name) {
		return "", helpers.NewSubscriptionError(fmt.Sprintf("unknown subject %q", name), nil)
	}

	if !wildcard {
		l.broker.Registry.Subscribe(id, name)
		return name, nil
	}

	l.broker.fanout.Lock()
	defer l.broker.fanout.Unlock()

	l.broker.Registry.Subscribe(id, name)
	_ = l.broker.Queues.Replace(id, l.broker.Cache.Snapshot())
	return name, nil
}
