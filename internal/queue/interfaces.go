package queue

import "context"

// Message is one delivery from the durable subscription. Exactly one of
// Ack, Nak or Term must be called per delivery:
//
//   - Ack releases the message from redelivery.
//   - Nak requests redelivery after the transport's ack-wait backoff.
//   - Term drops the message permanently; used for unprocessable payloads
//     that would otherwise be redelivered forever.
type Message interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Handler processes one delivered message and decides its acknowledgement.
type Handler func(msg Message)

// Subscription is a durable, at-least-once message subscription. Consume
// delivers messages to the handler sequentially per worker until the context
// is canceled or Stop is called.
type Subscription interface {
	Consume(ctx context.Context, handler Handler) error
	Stop()
}
