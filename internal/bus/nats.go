// Package bus publishes site status transitions to NATS so other services
// can react to outages without polling the API.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/scheduler"
)

const DefaultPrefix = "sitewatch.site"

// Event is the JSON body of a transition message.
type Event struct {
	SiteID    int64      `json:"site_id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	DownSince *time.Time `json:"down_since,omitempty"`
	HTTPCode  *int       `json:"http_code"`
	LatencyMS *int64     `json:"latency_ms"`
	Message   string     `json:"message,omitempty"`
	At        time.Time  `json:"at"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is a scheduler.Listener that emits one message per transition
// on "<prefix>.down" or "<prefix>.up".
type Publisher struct {
	conn   conn
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials url and returns a ready Publisher.
func Connect(url, prefix string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("sitewatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats_reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	p := newPublisher(nc, prefix, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: c, prefix: prefix, logger: logger}
}

func (p *Publisher) Subject(to string) string {
	return p.prefix + "." + to
}

func (p *Publisher) OnTransition(_ context.Context, t scheduler.Transition) {
	ev := Event{
		SiteID:    int64(t.Site.ID),
		Name:      t.Site.Name,
		URL:       t.Site.URL,
		From:      string(t.From),
		To:        string(t.To),
		DownSince: t.DownSince,
		HTTPCode:  t.Result.HTTPCode,
		LatencyMS: t.Result.LatencyMS,
		Message:   t.Result.Message,
		At:        t.At.UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("nats_encode_error", zap.Error(err))
		return
	}
	// Publish only buffers; the client flushes in the background.
	if err := p.conn.Publish(p.Subject(ev.To), body); err != nil {
		p.logger.Warn("nats_publish_error",
			zap.Int64("site_id", ev.SiteID),
			zap.Error(err),
		)
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats_drain_error", zap.Error(err))
		p.nc.Close()
	}
}
