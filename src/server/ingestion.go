package server

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"market-broker/src/codec"
	"market-broker/src/helpers"
	"market-broker/src/logger"
	"market-broker/src/queue"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// IngestionListener
// -----------------------------------------------------------------------------

// IngestionListener accepts publisher connections and fans their updates out.
// Unless concurrent publishers are enabled, one publisher is served at a
// time: the next handshake waits until the current publisher disconnects.
type IngestionListener struct {
	broker *Broker
	logger *logger.Logger
	engine *gin.Engine

	slot         chan struct{}
	decodeErrors atomic.Int64

	sessionMu sync.RWMutex
	session   string
}

// -----------------------------------------------------------------------------

func NewIngestionListener(b *Broker, log *logger.Logger) *IngestionListener {
	l := &IngestionListener{
		broker: b,
		logger: log,
		engine: gin.New(),
	}
	if !b.Config.Ingestion.ConcurrentPublishers {
		l.slot = make(chan struct{}, 1)
	}

	l.engine.Use(gin.Recovery())
	l.engine.GET(b.Config.Ingestion.Path, l.handlePublisher)
	return l
}

// Handler returns the HTTP handler serving publisher upgrades.
func (l *IngestionListener) Handler() http.Handler {
	return l.engine
}

// -----------------------------------------------------------------------------

func (l *IngestionListener) handlePublisher(c *gin.Context) {
	if l.slot != nil {
		select {
		case l.slot <- struct{}{}:
			defer func() { <-l.slot }()
		case <-c.Request.Context().Done():
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.logger.Warning("Failed to upgrade publisher websocket: %v", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	l.setSession(session)
	defer l.clearSession(session)

	conn.SetReadLimit(l.broker.Config.Broker.MaxMessageBytes)
	l.logger.Info("Publisher %s connected from %s", session, c.ClientIP())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Warning("Publisher %s read error: %v", session, err)
			}
			break
		}

		if err := l.Ingest(string(message)); err != nil {
			l.logger.Warning("Publisher %s sent undecodable update: %v", session, err)
		}
	}

	l.logger.Info("Publisher %s disconnected", session)
}

// -----------------------------------------------------------------------------

// Ingest decodes one update, admits it and queues it for every interested
// connection. Only decode errors are returned.
func (l *IngestionListener) Ingest(message string) error {
	rec, err := codec.DecodeUpdate(message)
	if err != nil {
		l.decodeErrors.Add(1)
		return helpers.NewDecodeError("undecodable update", err)
	}

	encoded := codec.EncodeUpdate(rec)

	l.broker.fanout.RLock()
	defer l.broker.fanout.RUnlock()

	subject := l.broker.Cache.Admit(rec.Name, rec.Interval, encoded, rec)

	for id := range l.broker.Registry.TargetsFor(subject) {
		switch err := l.broker.Queues.Enqueue(id, encoded); {
		case err == nil, errors.Is(err, queue.ErrUnknownConnection):
		case errors.Is(err, queue.ErrQueueOverflow):
			l.logger.Warning("Connection %d exceeded its queue depth, disconnecting", id)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (l *IngestionListener) setSession(id string) {
	l.sessionMu.Lock()
	l.session = id
	l.sessionMu.Unlock()
}

func (l *IngestionListener) clearSession(id string) {
	l.sessionMu.Lock()
	if l.session == id {
		l.session = ""
	}
	l.sessionMu.Unlock()
}

// Session is the id of the currently connected publisher, empty when none.
// With concurrent publishers it is the most recent one.
func (l *IngestionListener) Session() string {
	l.sessionMu.RLock()
	defer l.sessionMu.RUnlock()
	return l.session
}

// DecodeErrors is the number of updates dropped as undecodable.
func (l *IngestionListener) DecodeErrors() int64 {
	return l.decodeErrors.Load()
}
