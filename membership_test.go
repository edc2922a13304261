package parkcluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testConfig(id NodeID, minNodes int) Config {
	cfg := defaults()
	cfg.NodeID = id
	cfg.MinNodes = minNodes
	return cfg
}

// P3: no election happens before minNodes distinct members are known.
func TestTryElectWaitsForQuorum(t *testing.T) {
	n := NewNode(testConfig("node-b", 3), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.handleRegistration(ctx, "node-a")
	assert.Equal(t, NodeID(""), n.Snapshot().CurrentLeader)
}

// P2: once quorum is reached, the lowest NodeID deterministically wins,
// regardless of registration arrival order.
func TestElectionPicksLowestNodeID(t *testing.T) {
	n := NewNode(testConfig("node-b", 3), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.handleRegistration(ctx, "node-c")
	n.handleRegistration(ctx, "node-a")

	snap := n.Snapshot()
	assert.Equal(t, NodeID("node-a"), snap.CurrentLeader)
	assert.False(t, snap.IsLeader)
}

func TestElectionSelfBecomesLeaderWhenLowest(t *testing.T) {
	n := NewNode(testConfig("node-a", 2), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.handleRegistration(ctx, "node-z")

	snap := n.Snapshot()
	assert.Equal(t, NodeID("node-a"), snap.CurrentLeader)
	assert.True(t, snap.IsLeader)
}

func TestElectionDoesNotRerunOnceLeaderSet(t *testing.T) {
	n := NewNode(testConfig("node-a", 2), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.handleRegistration(ctx, "node-z")
	requireLeaderIs(t, n, "node-a")

	// A late, lower-id arrival must not steal leadership once settled.
	n.handleRegistration(ctx, "node-0")
	requireLeaderIs(t, n, "node-a")
}

func requireLeaderIs(t *testing.T, n *Node, want NodeID) {
	t.Helper()
	assert.Equal(t, want, n.Snapshot().CurrentLeader)
}

func TestResetMembershipClearsStateForReelection(t *testing.T) {
	n := NewNode(testConfig("node-b", 2), NewMemoryBroker(), NewMemoryDataView())
	ctx := context.Background()

	n.handleRegistration(ctx, "node-a")
	requireLeaderIs(t, n, "node-a")

	n.resetMembership(ctx)
	snap := n.Snapshot()
	assert.Equal(t, []NodeID{"node-b"}, snap.ActiveNodes)
	assert.Equal(t, NodeID(""), snap.CurrentLeader)
}
