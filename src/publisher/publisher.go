package publisher

import (
	"context"
	"time"

	"market-broker/src/codec"
	"market-broker/src/config"
	"market-broker/src/helpers"
	"market-broker/src/interfaces"
	"market-broker/src/logger"
	"market-broker/src/models"
	"market-broker/src/utils"

	"github.com/gorilla/websocket"
)

const reconnectBaseDelay = 500 * time.Millisecond

// -----------------------------------------------------------------------------
// Publisher
// -----------------------------------------------------------------------------

type Publisher struct {
	Config *config.Config
	Logger *logger.Logger

	store  interfaces.ITradeStore
	dialer *websocket.Dialer
	conn   *websocket.Conn
}

// -----------------------------------------------------------------------------

func NewPublisher(cfg *config.Config, store interfaces.ITradeStore, log *logger.Logger) *Publisher {
	return &Publisher{
		Config: cfg,
		Logger: log,
		store:  store,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// -----------------------------------------------------------------------------

// Run sends the current row of every subject, then polls the store until ctx
// is cancelled. It returns an error only when the broker stays unreachable.
func (p *Publisher) Run(ctx context.Context) error {
	pc := p.Config.Publisher

	data, err := NewDataService(ctx, p.store, pc.PriceScale)
	if err != nil {
		return err
	}
	p.Logger.Info("Publishing %d subjects to %s", len(data.Subjects()), pc.BrokerURL)

	scheduler := utils.NewMarketScheduler(data.Subjects(), p.Logger)

	if err := p.connect(ctx); err != nil {
		return err
	}
	defer p.close()

	if err := p.send(ctx, data.Current()); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(pc.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	paused := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if pc.MarketHoursOnly && !scheduler.AnyMarketOpen(now) {
				if !paused {
					p.Logger.Info("All markets are closed. Pausing polls")
					paused = true
				}
				continue
			}
			if paused {
				p.Logger.Info("A market opened. Resuming polls")
				paused = false
			}

			updates, err := data.CheckForUpdates(ctx)
			if err != nil {
				p.Logger.Warning("Error polling store: %v", err)
				continue
			}
			if err := p.send(ctx, updates); err != nil {
				return err
			}
		}
	}
}

// -----------------------------------------------------------------------------

// send writes recs in order. A failed write reconnects and resumes with the
// record that failed.
func (p *Publisher) send(ctx context.Context, recs []*models.MUpdateRecord) error {
	for i := 0; i < len(recs); {
		msg := codec.EncodePublish(recs[i])
		if err := p.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			p.Logger.Warning("Lost broker connection: %v", err)
			p.close()
			if err := p.connect(ctx); err != nil {
				return err
			}
			continue
		}
		i++
	}
	if len(recs) > 0 {
		p.Logger.Debug("Published %d updates", len(recs))
	}
	return nil
}

// -----------------------------------------------------------------------------

func (p *Publisher) connect(ctx context.Context) error {
	url := p.Config.Publisher.BrokerURL
	conn, err := helpers.RetryWithBackoff(ctx, p.Logger, "connect to "+url, p.Config.Publisher.MaxRetries, reconnectBaseDelay,
		func() (*websocket.Conn, error) {
			conn, _, err := p.dialer.DialContext(ctx, url, nil)
			if err != nil {
				return nil, helpers.NewTransportError("dial failed", err)
			}
			return conn, nil
		})
	if err != nil {
		return err
	}

	p.conn = conn
	p.Logger.Info("Connected to broker at %s", url)
	return nil
}

// -----------------------------------------------------------------------------

func (p *Publisher) close() {
	if p.conn == nil {
		return
	}
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	p.conn.Close()
	p.conn = nil
}
