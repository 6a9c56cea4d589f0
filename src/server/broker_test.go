package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"market-broker/src/codec"
	"market-broker/src/config"
	"market-broker/src/logger"
	"market-broker/src/models"
	"market-broker/src/queue"
	"market-broker/src/server"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newBroker(t *testing.T, mutate func(*config.Config)) *server.Broker {
	t.Helper()

	cfg := config.Default()
	cfg.Subjects = []string{"AAPL", "MSFT"}
	cfg.Broker.IdlePollMs = 1
	if mutate != nil {
		mutate(cfg)
	}

	b, err := server.NewBroker(cfg, logger.NewNop())
	require.NoError(t, err)
	return b
}

func serve(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, b *server.Broker, conn *websocket.Conn, subject string, want int) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"stock":"`+subject+`"}`)))
	require.Eventually(t, func() bool {
		return b.Registry.Counts()[subject] == want
	}, waitFor, time.Millisecond)
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, msg, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected message %q", msg)
}

const (
	aaplUpdate = `{sn:AAPL,si:1,t:1700000000,ap:150.25,mn:149.5,mx:151,vm:1200,nt:14}`
	aaplOut    = `{"name":"AAPL","avg_price":150.25,"min_price":149.5,"max_price":151,"volume_moved":1200,"num_of_trades":14,"time":1700000000}`
	msftUpdate = `{sn:MSFT,si:1,t:1700000001,ap:310,mn:309,mx:311,vm:80,nt:3}`
	msftOut    = `{"name":"MSFT","avg_price":310,"min_price":309,"max_price":311,"volume_moved":80,"num_of_trades":3,"time":1700000001}`
)

// -----------------------------------------------------------------------------

func TestSubscribeThenPublish(t *testing.T) {
	b := newBroker(t, nil)
	sub := dial(t, serve(t, b.Egress.Handler()))
	pub := dial(t, serve(t, b.Ingestion.Handler()))

	subscribe(t, b, sub, "AAPL", 1)
	require.NoError(t, pub.WriteMessage(websocket.TextMessage, []byte(aaplUpdate)))

	assert.Equal(t, aaplOut, read(t, sub))
	assertSilent(t, sub)

	latest, ok := b.Cache.Latest("AAPL")
	require.True(t, ok)
	assert.Equal(t, aaplOut, latest)
}

func TestSubscriptionSwitch(t *testing.T) {
	b := newBroker(t, nil)
	sub := dial(t, serve(t, b.Egress.Handler()))

	subscribe(t, b, sub, "AAPL", 1)
	subscribe(t, b, sub, "MSFT", 1)
	assert.Zero(t, b.Registry.Counts()["AAPL"])

	require.NoError(t, b.Ingestion.Ingest(aaplUpdate))
	require.NoError(t, b.Ingestion.Ingest(msftUpdate))

	assert.Equal(t, msftOut, read(t, sub))
	assertSilent(t, sub)
}

func TestWildcardIsolation(t *testing.T) {
	b := newBroker(t, nil)
	url := serve(t, b.Egress.Handler())
	all, aapl, msft := dial(t, url), dial(t, url), dial(t, url)

	subscribe(t, b, all, "*", 1)
	subscribe(t, b, aapl, "AAPL", 1)
	subscribe(t, b, msft, "MSFT", 1)

	// seeded latest values and baseline history
	latest, history := b.Cache.Len()
	for i := 0; i < latest+history; i++ {
		read(t, all)
	}

	require.NoError(t, b.Ingestion.Ingest(aaplUpdate))
	require.NoError(t, b.Ingestion.Ingest(msftUpdate))

	assert.Equal(t, aaplOut, read(t, all))
	assert.Equal(t, msftOut, read(t, all))
	assert.Equal(t, aaplOut, read(t, aapl))
	assert.Equal(t, msftOut, read(t, msft))
	assertSilent(t, aapl)
	assertSilent(t, msft)
}

func TestDecodeErrorKeepsPublisher(t *testing.T) {
	b := newBroker(t, nil)
	sub := dial(t, serve(t, b.Egress.Handler()))
	pub := dial(t, serve(t, b.Ingestion.Handler()))

	subscribe(t, b, sub, "AAPL", 1)
	require.NoError(t, pub.WriteMessage(websocket.TextMessage, []byte(`{si:1,vm:3}`)))
	require.NoError(t, pub.WriteMessage(websocket.TextMessage, []byte(`{sn:*,si:1}`)))
	require.NoError(t, pub.WriteMessage(websocket.TextMessage, []byte(aaplUpdate)))

	assert.Equal(t, aaplOut, read(t, sub))
	assert.EqualValues(t, 2, b.Ingestion.DecodeErrors())
}

func TestSinglePublisherAtATime(t *testing.T) {
	b := newBroker(t, nil)
	url := serve(t, b.Ingestion.Handler())

	first := dial(t, url)
	require.Eventually(t, func() bool { return b.Ingestion.Session() != "" }, waitFor, time.Millisecond)
	firstSession := b.Ingestion.Session()

	var connected atomic.Bool
	done := make(chan *websocket.Conn, 1)
	go func() {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			done <- nil
			return
		}
		connected.Store(true)
		done <- conn
	}()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, connected.Load(), "second publisher must wait for the first to leave")

	require.NoError(t, first.Close())

	select {
	case second := <-done:
		require.NotNil(t, second)
		defer second.Close()
	case <-time.After(waitFor):
		t.Fatal("second publisher never connected")
	}
	require.Eventually(t, func() bool {
		s := b.Ingestion.Session()
		return s != "" && s != firstSession
	}, waitFor, time.Millisecond)
}

func TestConcurrentPublishers(t *testing.T) {
	b := newBroker(t, func(c *config.Config) { c.Ingestion.ConcurrentPublishers = true })
	url := serve(t, b.Ingestion.Handler())

	first := dial(t, url)
	second := dial(t, url)

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte(aaplUpdate)))
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte(msftUpdate)))

	require.Eventually(t, func() bool {
		aapl, _ := b.Cache.Latest("AAPL")
		msft, _ := b.Cache.Latest("MSFT")
		return aapl == aaplOut && msft == msftOut
	}, waitFor, time.Millisecond)
}

func TestKeepalivePing(t *testing.T) {
	b := newBroker(t, func(c *config.Config) { c.Broker.KeepaliveCycles = 5 })
	sub := dial(t, serve(t, b.Egress.Handler()))

	pinged := make(chan struct{}, 1)
	sub.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := sub.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(waitFor):
		t.Fatal("no keepalive ping received")
	}
}

func TestDisconnectRemovesState(t *testing.T) {
	b := newBroker(t, nil)
	sub := dial(t, serve(t, b.Egress.Handler()))

	subscribe(t, b, sub, "AAPL", 1)
	require.Equal(t, int64(1), b.Egress.Connections())

	require.NoError(t, sub.Close())
	require.Eventually(t, func() bool {
		connections, _ := b.Queues.Stats()
		return b.Registry.Counts()["AAPL"] == 0 && connections == 0 && b.Egress.Connections() == 0
	}, waitFor, time.Millisecond)

	// fan-out to a gone connection is harmless
	require.NoError(t, b.Ingestion.Ingest(aaplUpdate))
}

func TestDirectoryPush(t *testing.T) {
	b := newBroker(t, func(c *config.Config) { c.Egress.PushDirectory = true })
	sub := dial(t, serve(t, b.Egress.Handler()))

	assert.Equal(t, "AAPL|MSFT|", read(t, sub))
}

// -----------------------------------------------------------------------------
// HandleSubscribe and Ingest without sockets
// -----------------------------------------------------------------------------

func TestHandleSubscribe_UnknownKeepsSubscription(t *testing.T) {
	b := newBroker(t, nil)
	b.Queues.Create(7)

	current := b.Egress.HandleSubscribe(7, "", `{"stock":"AAPL"}`)
	require.Equal(t, "AAPL", current)

	current = b.Egress.HandleSubscribe(7, current, `{"stock":"TSLA"}`)
	assert.Equal(t, "AAPL", current)
	current = b.Egress.HandleSubscribe(7, current, `{"ticker":"MSFT"}`)
	assert.Equal(t, "AAPL", current)

	subject, ok := b.Registry.SubjectOf(7)
	require.True(t, ok)
	assert.Equal(t, "AAPL", subject)
	assert.Zero(t, b.Queues.Len(7), "non-wildcard subscriptions get no backfill")
}

func TestHandleSubscribe_WildcardBackfill(t *testing.T) {
	b := newBroker(t, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Ingestion.Ingest(aaplUpdate))
	}
	require.NoError(t, b.Ingestion.Ingest(msftUpdate))

	b.Queues.Create(3)
	assert.Equal(t, "*", b.Egress.HandleSubscribe(3, "", `{"stock":"*"}`))

	latest, history := b.Cache.Len()
	assert.Equal(t, latest+history, b.Queues.Len(3))

	pending, ok := b.Queues.DrainAndClear(3)
	require.True(t, ok)
	assert.Equal(t, b.Cache.Snapshot(), pending)
}

func TestHandleSubscribe_WildcardBackfillDuringIngest(t *testing.T) {
	b := newBroker(t, nil)
	b.Queues.Create(5)

	const updates = 100
	sent := make([]string, updates)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < updates; i++ {
			msg := fmt.Sprintf(`{sn:AAPL,si:1,t:%d,ap:1,mn:1,mx:1,vm:1,nt:1}`, i+1)
			rec, err := codec.DecodeUpdate(msg)
			if !assert.NoError(t, err) {
				return
			}
			sent[i] = codec.EncodeUpdate(rec)
			assert.NoError(t, b.Ingestion.Ingest(msg))
		}
	}()

	for i := 0; i < 20; i++ {
		b.Egress.HandleSubscribe(5, "", `{"stock":"*"}`)
	}
	<-done

	pending, ok := b.Queues.DrainAndClear(5)
	require.True(t, ok)
	got := make(map[string]bool, len(pending))
	for _, msg := range pending {
		got[msg] = true
	}
	for i, msg := range sent {
		assert.True(t, got[msg], "update %d missing from backfill and fan-out", i+1)
	}
}

func TestIngest_DisconnectPolicy(t *testing.T) {
	b := newBroker(t, func(c *config.Config) {
		c.Broker.QueueMaxDepth = 1
		c.Broker.QueueOverflowPolicy = string(queue.Disconnect)
	})
	b.Queues.Create(9)
	b.Registry.Subscribe(9, "AAPL")

	require.NoError(t, b.Ingestion.Ingest(aaplUpdate))
	require.True(t, b.Queues.Exists(9))

	require.NoError(t, b.Ingestion.Ingest(aaplUpdate))
	assert.False(t, b.Queues.Exists(9))
	assert.EqualValues(t, 1, b.Queues.Dropped())
}

// -----------------------------------------------------------------------------
// REST
// -----------------------------------------------------------------------------

func TestRESTEndpoints(t *testing.T) {
	b := newBroker(t, nil)
	require.NoError(t, b.Ingestion.Ingest(aaplUpdate))
	require.Error(t, b.Ingestion.Ingest(`{vm:1}`))

	h := b.Egress.Handler()

	t.Run("subjects", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/subjects", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Subjects  []string `json:"subjects"`
			Directory string   `json:"directory"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []string{"AAPL", "MSFT"}, body.Subjects)
		assert.Equal(t, "AAPL|MSFT|", body.Directory)
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var stats models.MBrokerStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.EqualValues(t, 1, stats.DecodeErrors)
		assert.EqualValues(t, 1700000000, stats.LatestUpdate)
		assert.GreaterOrEqual(t, stats.AdmittedUpdates, int64(1))
	})

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestBrokerRunAndStop(t *testing.T) {
	b := newBroker(t, func(c *config.Config) {
		c.Ingestion.Host, c.Ingestion.Port = "127.0.0.1", freePort(t)
		c.Egress.Host, c.Egress.Port = "127.0.0.1", freePort(t)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	healthURL := fmt.Sprintf("http://%s/api/health", b.Config.EgressAddr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, waitFor, 10*time.Millisecond)

	pub := dial(t, fmt.Sprintf("ws://%s/", b.Config.IngestionAddr()))
	require.NoError(t, pub.WriteMessage(websocket.TextMessage, []byte(aaplUpdate)))
	require.Eventually(t, func() bool {
		latest, _ := b.Cache.Latest("AAPL")
		return latest == aaplOut
	}, waitFor, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("broker did not stop")
	}
}
