// node.go
//
// Node is the single mutex-guarded struct that owns the cluster-visible
// state for one process — role, activeNodes, currentLeader,
// lastHeartbeatAt (isLeader is derived from currentLeader) — mirroring the
// teacher's consensus.go, where a single struct behind one mutex plays the
// same role for Raft state. membership.go, heartbeat.go and recommender.go
// add methods on *Node; the per-round proposals live in the Dispatcher
// (dispatcher.go), under its own mutex.
package parkcluster

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Role is the node's current position in the cluster (spec.md §4.3).
type Role string

const (
	RoleDiscovering Role = "discovering"
	RoleRegistering Role = "registering"
	RoleFollower    Role = "follower"
	RoleLeader      Role = "leader"
)

// Node wires together the broker, the data view, and the election/heartbeat/
// dispatch/recommendation state machines for one cluster member.
type Node struct {
	cfg     Config
	broker  Broker
	gateway *Gateway
	rec     *Recommender
	events  *ClusterEventBroadcaster // optional; nil unless SetEventBroadcaster is called

	mu              sync.Mutex
	role            Role
	activeNodes     map[NodeID]bool
	currentLeader   NodeID
	lastHeartbeatAt time.Time

	dispatcher *Dispatcher

	stopOnce      sync.Once
	stopCh        chan struct{}
	lifecycle     []CancelFunc // active consumers, torn down on Stop
	leaderCancels []CancelFunc // leader-only consumers/emitters, torn down on role change
}

// NewNode constructs a Node for cfg.NodeID, wired to broker and view.
func NewNode(cfg Config, broker Broker, view DataView) *Node {
	n := &Node{
		cfg:         cfg,
		broker:      broker,
		gateway:     NewGateway(broker, cfg.RequestReplyTimeout),
		rec:         NewRecommender(cfg.NodeID, view),
		role:        RoleDiscovering,
		activeNodes: map[NodeID]bool{cfg.NodeID: true},
		stopCh:      make(chan struct{}),
	}
	n.dispatcher = newDispatcher(n)
	SetNodeMetadata(string(cfg.NodeID))
	return n
}

// SetEventBroadcaster installs the optional live event feed (spec.md §9
// "structured event" design note): leader elections, leader-heartbeat loss,
// and consensus decisions are pushed to it as they happen. A Node with no
// broadcaster installed behaves exactly as before — emitEvent is a no-op.
func (n *Node) SetEventBroadcaster(b *ClusterEventBroadcaster) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = b
}

// emitEvent pushes a ClusterEvent to the installed broadcaster, if any.
func (n *Node) emitEvent(evtType string, leader NodeID, decision string) {
	n.mu.Lock()
	b := n.events
	n.mu.Unlock()
	if b == nil {
		return
	}
	b.Broadcast(ClusterEvent{
		Type:       evtType,
		NodeID:     string(n.cfg.NodeID),
		Leader:     string(leader),
		Decision:   decision,
		OccurredAt: time.Now(),
	})
}

// Snapshot returns a consistent, lock-protected copy of the node's view of
// the cluster (spec.md §5).
func (n *Node) Snapshot() ClusterSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	nodes := make([]NodeID, 0, len(n.activeNodes))
	for id := range n.activeNodes {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return ClusterSnapshot{
		Self:            n.cfg.NodeID,
		ActiveNodes:     nodes,
		CurrentLeader:   n.currentLeader,
		IsLeader:        n.currentLeader == n.cfg.NodeID && n.currentLeader != "",
		LastHeartbeatAt: n.lastHeartbeatAt,
	}
}

// Start brings the node up: declares the broker topology, begins listening
// for tasks and heartbeats, and runs the startup discovery window (spec.md
// §4.3). It returns when the startup window ends; a node that has neither
// seen a leader nor reached minNodes by then stays Registering until enough
// registrations arrive for the election to run. The background loops
// (watchdog, heartbeat emitter/listener, membership) keep running until Stop
// is called.
func (n *Node) Start(ctx context.Context) error {
	if err := n.declareTopology(ctx); err != nil {
		return err
	}

	if err := n.startTaskListener(ctx); err != nil {
		return err
	}
	if err := n.startHeartbeatListener(ctx); err != nil {
		return err
	}
	if err := n.startMembershipListener(ctx); err != nil {
		return err
	}

	go n.runWatchdog(ctx)

	n.runStartupWindow(ctx)
	return nil
}

// Stop tears down every consumer this node registered, including any
// leader-only ones.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.mu.Lock()
		cancels := append([]CancelFunc{}, n.lifecycle...)
		leaderCancels := append([]CancelFunc{}, n.leaderCancels...)
		n.lifecycle = nil
		n.leaderCancels = nil
		n.mu.Unlock()
		for _, c := range cancels {
			c()
		}
		for _, c := range leaderCancels {
			c()
		}
	})
}

func (n *Node) declareTopology(ctx context.Context) error {
	if err := n.broker.DeclareQueue(ctx, TaskQueueName(n.cfg.NodeID)); err != nil {
		return err
	}
	if err := n.broker.DeclareQueue(ctx, QueueRecommendation); err != nil {
		return err
	}
	if err := n.broker.DeclareQueue(ctx, QueueLeaderRecommendation); err != nil {
		return err
	}
	if err := n.broker.DeclareQueue(ctx, QueueLeaderFinal); err != nil {
		return err
	}
	if err := n.broker.DeclareFanout(ctx, ExchangeRecommendationTask); err != nil {
		return err
	}
	if err := n.broker.DeclareFanout(ctx, ExchangeHeartbeat); err != nil {
		return err
	}
	if err := n.broker.DeclareFanout(ctx, ExchangeLeaderElection); err != nil {
		return err
	}
	return nil
}

// becomeLeader transitions this node into the Leader role: it starts the
// client-facing dispatcher listeners and the heartbeat emitter. Idempotent
// no-op if already leader (open question #3: a role-confirmed node only
// starts its leader-only listeners once).
func (n *Node) becomeLeader(ctx context.Context) {
	n.mu.Lock()
	if n.role == RoleLeader {
		n.mu.Unlock()
		return
	}
	n.role = RoleLeader
	n.currentLeader = n.cfg.NodeID
	n.mu.Unlock()

	Logger().Info("node_became_leader", "node_id", n.cfg.NodeID)
	RecordAudit(ctx, AuditLevelInfo, "node", "became_leader", "node elected cluster leader", map[string]any{
		"node_id": string(n.cfg.NodeID),
	})
	n.emitEvent("leader_elected", n.cfg.NodeID, "")

	var cancels []CancelFunc
	if c, err := n.broker.Consume(ctx, QueueRecommendation, func(d Delivery) {
		n.dispatcher.handleClientRequest(ctx, d)
	}); err == nil {
		cancels = append(cancels, c)
	} else {
		Logger().Warn("leader_consume_recommendation_failed", "err", err)
	}
	if c, err := n.broker.Consume(ctx, QueueLeaderRecommendation, func(d Delivery) {
		n.dispatcher.handleProposal(d)
	}); err == nil {
		cancels = append(cancels, c)
	} else {
		Logger().Warn("leader_consume_proposals_failed", "err", err)
	}

	stopHeartbeat := n.startHeartbeatEmitter(ctx)
	cancels = append(cancels, stopHeartbeat)

	n.mu.Lock()
	n.leaderCancels = cancels
	n.mu.Unlock()
}

// becomeFollower transitions this node into the Follower role under leader,
// tearing down any leader-only listeners this node previously started.
func (n *Node) becomeFollower(ctx context.Context, leader NodeID) {
	n.mu.Lock()
	wasLeader := n.role == RoleLeader
	n.role = RoleFollower
	n.currentLeader = leader
	n.lastHeartbeatAt = time.Now()
	cancels := n.leaderCancels
	n.leaderCancels = nil
	n.mu.Unlock()

	if wasLeader {
		for _, c := range cancels {
			c()
		}
		Logger().Info("node_stepped_down", "node_id", n.cfg.NodeID, "new_leader", leader)
	}
	n.emitEvent("leader_changed", leader, "")
}

func (n *Node) trackLifecycle(c CancelFunc) {
	n.mu.Lock()
	n.lifecycle = append(n.lifecycle, c)
	n.mu.Unlock()
}
