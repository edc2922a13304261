package parkcluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatEmitThenListenUpdatesLastHeartbeat(t *testing.T) {
	broker := NewMemoryBroker()
	n := NewNode(testConfig("node-a", 1), broker, NewMemoryDataView())
	ctx := context.Background()

	require.NoError(t, n.startHeartbeatListener(ctx))

	n.mu.Lock()
	n.currentLeader = "node-a"
	n.activeNodes["node-b"] = true
	n.mu.Unlock()

	n.emitHeartbeat(ctx)

	snap := n.Snapshot()
	assert.WithinDuration(t, time.Now(), snap.LastHeartbeatAt, time.Second)
	assert.Contains(t, snap.ActiveNodes, NodeID("node-b"))
}

func TestHandleHeartbeatMessageSwitchesRoleToFollower(t *testing.T) {
	n := NewNode(testConfig("node-a", 1), NewMemoryBroker(), NewMemoryDataView())
	n.handleHeartbeatMessage(encodeHeartbeat("node-z"))

	snap := n.Snapshot()
	assert.Equal(t, NodeID("node-z"), snap.CurrentLeader)
	assert.False(t, snap.IsLeader)
}

// P4: a stale leader heartbeat triggers membership reset (the precondition
// for re-election) on the next watchdog tick. minNodes is 2 so the lone
// node cannot immediately re-elect itself after the reset.
func TestCheckLivenessResetsOnStaleHeartbeat(t *testing.T) {
	n := NewNode(testConfig("node-b", 2), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.mu.Lock()
	n.currentLeader = "node-a"
	n.lastHeartbeatAt = time.Now().Add(-1 * time.Hour)
	n.mu.Unlock()

	n.checkLiveness(ctx)

	snap := n.Snapshot()
	assert.Equal(t, NodeID(""), snap.CurrentLeader)
}

func TestCheckLivenessNoopWhenHeartbeatFresh(t *testing.T) {
	n := NewNode(testConfig("node-b", 1), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.mu.Lock()
	n.currentLeader = "node-a"
	n.lastHeartbeatAt = time.Now()
	n.mu.Unlock()

	n.checkLiveness(ctx)

	assert.Equal(t, NodeID("node-a"), n.Snapshot().CurrentLeader)
}

func TestCheckLivenessNoopForLeaderItself(t *testing.T) {
	n := NewNode(testConfig("node-a", 1), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.mu.Lock()
	n.currentLeader = "node-a"
	n.lastHeartbeatAt = time.Now().Add(-1 * time.Hour)
	n.mu.Unlock()

	n.checkLiveness(ctx)

	assert.Equal(t, NodeID("node-a"), n.Snapshot().CurrentLeader)
}
