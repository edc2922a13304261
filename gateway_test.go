package parkcluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayCallReceivesMatchingReply(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, broker.DeclareQueue(ctx, "echo_queue"))

	_, err := broker.Consume(ctx, "echo_queue", func(d Delivery) {
		_ = broker.Publish(ctx, d.ReplyTo, []byte("pong"), d.CorrelationID, "")
	})
	require.NoError(t, err)

	gw := NewGateway(broker, time.Second)
	reply, err := gw.Call(ctx, "echo_queue", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "pong", string(reply))
}

func TestGatewayCallDropsMismatchedCorrelationID(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, broker.DeclareQueue(ctx, "echo_queue"))

	_, err := broker.Consume(ctx, "echo_queue", func(d Delivery) {
		// Reply with the wrong correlation id once, then the right one.
		_ = broker.Publish(ctx, d.ReplyTo, []byte("wrong"), "not-the-real-id", "")
		_ = broker.Publish(ctx, d.ReplyTo, []byte("right"), d.CorrelationID, "")
	})
	require.NoError(t, err)

	gw := NewGateway(broker, time.Second)
	reply, err := gw.Call(ctx, "echo_queue", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "right", string(reply))
}

func TestGatewayCallTimesOut(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()
	require.NoError(t, broker.DeclareQueue(ctx, "black_hole"))

	gw := NewGateway(broker, 10*time.Millisecond)
	_, err := gw.Call(ctx, "black_hole", []byte("ping"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))
}

func TestGatewayReplyNoOpWhenReplyToEmpty(t *testing.T) {
	broker := NewMemoryBroker()
	gw := NewGateway(broker, time.Second)
	assert.NoError(t, gw.Reply(context.Background(), "", "corr-1", []byte("x")))
}
