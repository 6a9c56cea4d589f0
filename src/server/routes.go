package server

import (
	"net/http"
	"strings"

	"market-broker/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (l *EgressListener) setupRoutes() {
	l.engine.Use(corsMiddleware)

	api := l.engine.Group("/api")
	api.GET("/health", l.getHealth)
	api.GET("/subjects", l.getSubjects)
	api.GET("/stats", l.getStats)
	api.GET("/config", l.getConfig)

	l.engine.GET(l.broker.Config.Egress.Path, l.handleWebSocket)
}

// Local dashboards only.
func corsMiddleware(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
	}
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (l *EgressListener) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"connections":   l.Connections(),
		"latest_update": l.broker.Cache.LatestTimestamp(),
	})
}

// -----------------------------------------------------------------------------

func (l *EgressListener) getSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"subjects":  l.broker.Cache.SubjectNames(),
		"directory": l.broker.Cache.Directory(),
	})
}

// -----------------------------------------------------------------------------

func (l *EgressListener) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, l.broker.Stats())
}

// -----------------------------------------------------------------------------

func (l *EgressListener) getConfig(c *gin.Context) {
	cfg := l.broker.Config
	c.JSON(http.StatusOK, gin.H{
		"history_capacity":      cfg.Broker.HistoryCapacity,
		"queue_max_depth":       cfg.Broker.QueueMaxDepth,
		"queue_overflow_policy": cfg.Broker.QueueOverflowPolicy,
		"keepalive_cycles":      cfg.Broker.KeepaliveCycles,
		"idle_poll_ms":          cfg.Broker.IdlePollMs,
		"concurrent_publishers": cfg.Ingestion.ConcurrentPublishers,
	})
}

// -----------------------------------------------------------------------------

// Stats gathers counters from every shared table.
func (b *Broker) Stats() models.MBrokerStats {
	connections, pending := b.Queues.Stats()
	return models.MBrokerStats{
		Connections:          connections,
		SubscribersBySubject: b.Registry.Counts(),
		PendingMessages:      pending,
		DroppedMessages:      b.Queues.Dropped(),
		AdmittedUpdates:      b.Cache.AdmittedCount(),
		DecodeErrors:         b.Ingestion.DecodeErrors(),
		PublisherSession:     b.Ingestion.Session(),
		LatestUpdate:         b.Cache.LatestTimestamp(),
	}
}
