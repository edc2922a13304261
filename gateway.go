// gateway.go
//
// Request/Reply Gateway (spec.md §4.6): shared plumbing used by external
// callers and by intra-cluster leader/follower exchanges. Grounded on the
// teacher's postJSONWithResponse/waitForApplied (bounded wait, distinct
// timeout error) adapted from HTTP round-trips to broker correlation.
package parkcluster

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Gateway correlates a published request with its reply over a temporary
// reply queue, bounded by a timeout (spec.md §4.6, reference 15s).
type Gateway struct {
	broker  Broker
	timeout time.Duration
}

// NewGateway constructs a Gateway bound to broker with the given bounded
// wait. A zero timeout falls back to the spec's reference 15s.
func NewGateway(broker Broker, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{broker: broker, timeout: timeout}
}

// Call publishes body to queue with a fresh correlation id and a private
// reply queue, then waits up to g.timeout for the matching reply. A reply
// whose correlation id does not match is dropped (P9): Call never returns
// it, the consumer simply keeps waiting until timeout.
func (g *Gateway) Call(ctx context.Context, queue string, body []byte) ([]byte, error) {
	replyQueue, cancelReply, err := g.broker.DeclareReplyQueue(ctx)
	if err != nil {
		return nil, err
	}
	defer cancelReply()

	correlationID := uuid.NewString()
	results := make(chan []byte, 1)
	cancelConsume, err := g.broker.Consume(ctx, replyQueue, func(d Delivery) {
		if d.CorrelationID != correlationID {
			return // P9: non-matching correlation id, drop silently
		}
		select {
		case results <- d.Body:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer cancelConsume()

	if err := g.broker.Publish(ctx, queue, body, correlationID, replyQueue); err != nil {
		return nil, err
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()
	select {
	case body := <-results:
		return body, nil
	case <-timer.C:
		return nil, newErr(KindTimeout, "Gateway.Call", ErrTimeout)
	case <-ctx.Done():
		return nil, newErr(KindTransport, "Gateway.Call", ctx.Err())
	}
}

// Reply publishes body to the caller's reply queue, carrying the caller's
// own correlation id, completing the request/reply round-trip (P9).
func (g *Gateway) Reply(ctx context.Context, replyTo, correlationID string, body []byte) error {
	if replyTo == "" {
		return nil
	}
	return g.broker.Publish(ctx, replyTo, body, correlationID, "")
}
