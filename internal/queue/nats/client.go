package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/edma-uni/reporter/internal/config"
	"github.com/edma-uni/reporter/internal/queue"
)

// Client is a durable JetStream subscription. The stream and the durable
// consumer are provisioned on connect, so the consumption position survives
// process restarts, and multiple instances sharing the durable name compete
// for deliveries.
type Client struct {
	conn     *nats.Conn
	consumer jetstream.Consumer
	cfg      config.NATSConfig
	log      *zap.Logger

	consumeCtx jetstream.ConsumeContext
}

// NewClient connects to NATS, ensures the event stream exists and binds the
// durable consumer.
func NewClient(ctx context.Context, cfg config.NATSConfig, log *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Idempotent: create the stream or bring its config up to date.
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    cfg.StreamMaxAge,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.DurableName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		FilterSubject: cfg.SubjectPrefix + ".>",
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure consumer %s: %w", cfg.DurableName, err)
	}

	log.Info("NATS subscription ready",
		zap.String("url", cfg.URL),
		zap.String("stream", cfg.StreamName),
		zap.String("durable", cfg.DurableName),
	)

	return &Client{
		conn:     conn,
		consumer: consumer,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Consume delivers messages to the handler until the context is canceled.
// Acknowledgement is entirely the handler's decision; a handler that returns
// without acking leaves the message to redeliver after the ack-wait timeout.
func (c *Client) Consume(ctx context.Context, handler queue.Handler) error {
	cc, err := c.consumer.Consume(func(msg jetstream.Msg) {
		handler(&message{msg: msg})
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.consumeCtx = cc

	<-ctx.Done()
	cc.Stop()
	return nil
}

// Stop halts delivery and closes the connection.
func (c *Client) Stop() {
	if c.consumeCtx != nil {
		c.consumeCtx.Stop()
	}
	c.conn.Close()
}

// Healthy reports whether the NATS connection is up.
func (c *Client) Healthy() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// message adapts jetstream.Msg to the queue.Message contract.
type message struct {
	msg jetstream.Msg
}

func (m *message) Subject() string { return m.msg.Subject() }
func (m *message) Data() []byte    { return m.msg.Data() }
func (m *message) Ack() error      { return m.msg.Ack() }
func (m *message) Nak() error      { return m.msg.Nak() }
func (m *message) Term() error     { return m.msg.Term() }
