// broker.go
//
// Abstracts the message broker (spec.md §4.1): named queues, fanout
// exchanges, publish, correlated request/reply, and durable consumer
// registration. Payloads are opaque byte strings — the codec (codec.go)
// handles encoding, the Broker never inspects message bodies.
package parkcluster

import "context"

// Well-known broker object names (spec.md §6).
const (
	QueueRecommendation        = "recommendation_queue"
	ExchangeRecommendationTask = "recommendation_task_exchange"
	QueueLeaderRecommendation  = "leader_recommendation_queue"
	QueueLeaderFinal           = "leader_final_recommendation"
	ExchangeHeartbeat          = "heartbeat_exchange"
	ExchangeLeaderElection     = "leader_election_exchange"
)

// TaskQueueName returns the per-node queue name a follower binds to the
// recommendation_task_exchange fanout exchange: "<nodeId>_task_queue".
func TaskQueueName(id NodeID) string {
	return string(id) + "_task_queue"
}

// Delivery is one inbound message: an opaque body plus the request/reply
// carrier metadata the broker natively supports (correlation id, reply-to
// queue name). Either may be empty when not applicable to the message kind.
type Delivery struct {
	Body          []byte
	CorrelationID string
	ReplyTo       string
}

// CancelFunc stops a consumer registered via Consume or BindFanout.
type CancelFunc func()

// Broker is the transport abstraction every component in this module talks
// through. Two implementations are provided: AMQPBroker (real AMQP, over
// github.com/rabbitmq/amqp091-go) and MemoryBroker (in-process, for tests
// and single-binary multi-node simulation).
type Broker interface {
	// DeclareQueue ensures a named, non-durable queue exists. Idempotent,
	// and safe to call again after a reconnect.
	DeclareQueue(ctx context.Context, name string) error

	// Publish sends body to a named queue, optionally carrying a
	// correlation id and a reply-to queue name.
	Publish(ctx context.Context, queue string, body []byte, correlationID, replyTo string) error

	// Consume registers a consumer on a named queue; handler is invoked for
	// each delivery until the returned CancelFunc is called (ctx covers
	// only the registration itself). Consume may be called again after a
	// reconnect; declarations are idempotent.
	Consume(ctx context.Context, queue string, handler func(Delivery)) (CancelFunc, error)

	// DeclareFanout ensures a fanout exchange exists. Idempotent.
	DeclareFanout(ctx context.Context, exchange string) error

	// PublishFanout broadcasts body to every queue currently bound to the
	// exchange. The publisher receives no feedback (spec.md §4.1).
	PublishFanout(ctx context.Context, exchange string, body []byte) error

	// BindFanout declares this consumer's own auto-named queue bound to the
	// exchange and starts consuming it; every bound node receives every
	// message (spec.md §4.1).
	BindFanout(ctx context.Context, exchange string, handler func(Delivery)) (CancelFunc, error)

	// DeclareReplyQueue declares a caller-private, auto-deleting reply
	// queue and returns its name (spec.md §4.6).
	DeclareReplyQueue(ctx context.Context) (queueName string, cancel CancelFunc, err error)

	// Close releases the broker connection and any open channels.
	Close() error
}
