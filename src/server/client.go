package server

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// subscriber is one egress connection. readPump and writePump never
// synchronise directly; they share only the broker tables.
// -----------------------------------------------------------------------------

type subscriber struct {
	id       uint64
	listener *EgressListener
	conn     *websocket.Conn
	tasks    atomic.Int32
}

func (s *subscriber) start() {
	s.listener.connections.Add(1)
	s.tasks.Store(2)

	go s.writePump()
	go s.readPump()
}

// done runs when one task ends; the socket is torn down once both have.
func (s *subscriber) done() {
	if s.tasks.Add(-1) == 0 {
		s.listener.connections.Add(-1)
		s.listener.logger.Info("Subscriber %d disconnected", s.id)
	}
}

// -----------------------------------------------------------------------------
// readPump - applies subscription requests until the socket fails
// -----------------------------------------------------------------------------

func (s *subscriber) readPump() {
	b := s.listener.broker
	current := ""

	defer func() {
		if current != "" {
			b.Registry.Unsubscribe(s.id, current)
		}
		b.Queues.Remove(s.id)
		s.conn.Close()
		s.done()
	}()

	s.conn.SetReadLimit(b.Config.Broker.MaxMessageBytes)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.listener.logger.Warning("Subscriber %d read error: %v", s.id, err)
			}
			return
		}
		current = s.listener.HandleSubscribe(s.id, current, string(message))
	}
}

// -----------------------------------------------------------------------------
// writePump - drains the outbound queue, pinging after idle cycles
// -----------------------------------------------------------------------------

func (s *subscriber) writePump() {
	l := s.listener
	idle := 0

	defer func() {
		l.broker.Queues.Remove(s.id)
		s.conn.Close()
		s.done()
	}()

	for {
		pending, ok := l.broker.Queues.DrainAndClear(s.id)
		if !ok {
			return
		}

		if len(pending) == 0 {
			time.Sleep(l.idlePoll)
			idle++
			if idle < l.keepaliveCycles {
				continue
			}
			idle = 0
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(l.writeWait)); err != nil {
				l.logger.Debug("Subscriber %d keepalive failed: %v", s.id, err)
				return
			}
			continue
		}

		for _, msg := range pending {
			s.conn.SetWriteDeadline(time.Now().Add(l.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				l.logger.Debug("Subscriber %d write error: %v", s.id, err)
				return
			}
		}
	}
}
