package parkcluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastTestConfig(id NodeID, minNodes int) Config {
	cfg := testConfig(id, minNodes)
	cfg.InitialWaitTime = 15 * time.Millisecond
	cfg.HeartbeatInterval = 40 * time.Millisecond
	cfg.LeaderCheckInterval = 20 * time.Millisecond
	cfg.ConsensusRoundTimeout = time.Second
	cfg.RequestReplyTimeout = 2 * time.Second
	return cfg
}

func waitForLeader(t *testing.T, nodes []*Node) *Node {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, n := range nodes {
			if n.Snapshot().IsLeader {
				return n
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no leader elected before deadline")
	return nil
}

// S1: a three-node cluster sharing one data view reaches unanimous
// consensus on a recommendation request.
func TestThreeNodeClusterUnanimousRecommendation(t *testing.T) {
	broker := NewMemoryBroker()
	view := NewMemoryDataView()
	view.SeedZone("z1", "ZoneA", ParkingSpace{ID: 3, ZoneID: "z1", Tag: "PS3"})
	view.SeedCitations(3, 1)

	var nodes []*Node
	for _, id := range []NodeID{"node-a", "node-b", "node-c"} {
		n := NewNode(fastTestConfig(id, 3), broker, view)
		nodes = append(nodes, n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, n := range nodes {
		go func(n *Node) { _ = n.Start(ctx) }(n)
	}
	defer func() {
		for _, n := range nodes {
			n.Stop()
		}
	}()

	leader := waitForLeader(t, nodes)
	require.Equal(t, NodeID("node-a"), leader.Snapshot().Self)

	gw := NewGateway(broker, 2*time.Second)
	reply, err := gw.Call(ctx, QueueRecommendation, []byte(encodeTaskPayload("ZoneA", "PS3")))
	require.NoError(t, err)

	outcome, err := parseEntries(string(reply))
	require.NoError(t, err)
	require.Equal(t, Proposal{{SpaceTag: "PS3", Score: "1"}}, outcome)
}

// S5: after the leader stops, the surviving nodes detect the stale
// heartbeat and elect a new leader among themselves.
func TestLeaderStepDownTriggersReelection(t *testing.T) {
	broker := NewMemoryBroker()
	view := NewMemoryDataView()
	view.SeedZone("z1", "ZoneA", ParkingSpace{ID: 1, ZoneID: "z1", Tag: "PS1"})
	view.SeedCitations(1, 0)

	cfgA := fastTestConfig("node-a", 2)
	cfgB := fastTestConfig("node-b", 2)
	nodeA := NewNode(cfgA, broker, view)
	nodeB := NewNode(cfgB, broker, view)
	nodeC := NewNode(fastTestConfig("node-c", 2), broker, view)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = nodeA.Start(ctx) }()
	go func() { _ = nodeB.Start(ctx) }()

	waitForLeader(t, []*Node{nodeA, nodeB})
	require.True(t, nodeA.Snapshot().IsLeader)

	// node-c joins the settled cluster as a follower, so that two nodes
	// survive the leader and together still meet minNodes.
	go func() { _ = nodeC.Start(ctx) }()
	require.Eventually(t, func() bool { return nodeC.Snapshot().CurrentLeader == "node-a" }, 2*time.Second, 5*time.Millisecond)

	// Simulate the leader crashing: stop it, and age out node-b's view of
	// its last heartbeat so the watchdog judges it dead.
	nodeA.Stop()
	nodeB.mu.Lock()
	nodeB.lastHeartbeatAt = time.Now().Add(-time.Hour)
	nodeB.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if nodeB.Snapshot().IsLeader {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, nodeB.Snapshot().IsLeader)
	nodeB.Stop()
	nodeC.Stop()
}
