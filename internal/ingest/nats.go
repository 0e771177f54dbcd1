package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"shuttled/internal/demand"
)

// NATS subjects consumed when broker ingest is enabled. The last token is
// the vehicle id, set by the device; the JSON body is authoritative.
const (
	SubjectTelemetry = "shuttle.telemetry.>"
	SubjectDemand    = "shuttle.demand.>"
)

// Consumer bridges a NATS broker into the ingest service for fleets whose
// devices push over a broker instead of HTTP.
type Consumer struct {
	nc      *nats.Conn
	service *Service
	logger  *slog.Logger
	subs    []*nats.Subscription
}

func NewConsumer(url string, service *Service, logger *slog.Logger) (*Consumer, error) {
	log := logger.With("component", "nats_consumer")

	nc, err := nats.Connect(url,
		nats.Name("shuttled"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			service.metrics.NATSConnected.Set(0)
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			service.metrics.NATSConnected.Set(1)
			log.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			service.metrics.NATSConnected.Set(0)
			log.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	service.metrics.NATSConnected.Set(1)

	return &Consumer{nc: nc, service: service, logger: log}, nil
}

// Start subscribes to the telemetry and demand subjects. Handlers run on
// the NATS dispatch goroutine; per-vehicle ordering matches subject
// publication order.
func (c *Consumer) Start(ctx context.Context) error {
	telemetrySub, err := c.nc.Subscribe(SubjectTelemetry, func(msg *nats.Msg) {
		var in TelemetryInput
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			c.logger.Debug("invalid telemetry message", "subject", msg.Subject, "error", err)
			return
		}
		if _, err := c.service.Telemetry(ctx, in); err != nil {
			c.logger.Debug("telemetry rejected", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, telemetrySub)

	demandSub, err := c.nc.Subscribe(SubjectDemand, func(msg *nats.Msg) {
		var in demand.Input
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			c.logger.Debug("invalid demand message", "subject", msg.Subject, "error", err)
			return
		}
		if _, err := c.service.Demand(ctx, in); err != nil {
			c.logger.Debug("demand rejected", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return err
	}
	c.subs = append(c.subs, demandSub)

	c.logger.Info("nats consumer started", "subjects", []string{SubjectTelemetry, SubjectDemand})
	return nil
}

func (c *Consumer) Close() {
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Debug("subscription drain failed", "error", err)
		}
	}
	if c.nc != nil {
		c.nc.Drain()
		c.nc.Close()
	}
}
