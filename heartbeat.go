// heartbeat.go
//
// Heartbeat Monitor (spec.md §4.2): the leader-only emitter, the
// every-node consumer, and the non-leader watchdog that triggers
// re-election when the leader goes quiet. Grounded on the teacher's
// heartbeat.go (ticker + select + stop channel shape) and consensus.go's
// election-timeout loop, adapted from HTTP polling to the
// heartbeat_exchange fanout; the ticker-driven interval itself follows the
// gossiper's heartBeatInterval constant idiom from the broader example pack.
package parkcluster

import (
	"context"
	"time"
)

// startHeartbeatListener binds this node's own queue on the heartbeat
// fanout exchange; every node, regardless of role, keeps this running for
// its whole lifetime so a newly elected leader's heartbeats are always
// picked up.
func (n *Node) startHeartbeatListener(ctx context.Context) error {
	cancel, err := n.broker.BindFanout(ctx, ExchangeHeartbeat, func(d Delivery) {
		n.handleHeartbeatMessage(string(d.Body))
	})
	if err != nil {
		return err
	}
	n.trackLifecycle(cancel)
	return nil
}

func (n *Node) handleHeartbeatMessage(body string) {
	if leader, ok := parseHeartbeat(body); ok {
		n.mu.Lock()
		n.currentLeader = leader
		n.lastHeartbeatAt = time.Now()
		n.activeNodes[leader] = true // invariant §3(1): currentLeader ∈ activeNodes
		if leader != n.cfg.NodeID {
			n.role = RoleFollower
		}
		n.mu.Unlock()
		return
	}
	if nodes, ok := parseNodeListUpdate(body); ok {
		n.mu.Lock()
		fresh := make(map[NodeID]bool, len(nodes)+1)
		for _, id := range nodes {
			fresh[id] = true
		}
		fresh[n.cfg.NodeID] = true // self re-inserts if the update omitted it
		n.activeNodes = fresh
		n.mu.Unlock()
		return
	}
	Logger().Warn("heartbeat_malformed_message", "body", body)
}

// startHeartbeatEmitter starts the leader's periodic broadcast: a
// HEARTBEAT message followed by a NODE_LIST_UPDATE snapshot, every
// HeartbeatInterval (spec.md §6). Returns a CancelFunc that stops the
// ticker; callers must invoke it on step-down.
func (n *Node) startHeartbeatEmitter(ctx context.Context) CancelFunc {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(n.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n.emitHeartbeat(ctx)
			case <-stop:
				return
			case <-n.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	var closed bool
	return func() {
		if closed {
			return
		}
		closed = true
		close(stop)
	}
}

func (n *Node) emitHeartbeat(ctx context.Context) {
	n.mu.Lock()
	self := n.cfg.NodeID
	nodes := make([]NodeID, 0, len(n.activeNodes))
	for id := range n.activeNodes {
		nodes = append(nodes, id)
	}
	n.mu.Unlock()

	if err := n.broker.PublishFanout(ctx, ExchangeHeartbeat, []byte(encodeHeartbeat(self))); err != nil {
		Logger().Warn("heartbeat_emit_failed", "err", err)
		return
	}
	if err := n.broker.PublishFanout(ctx, ExchangeHeartbeat, []byte(encodeNodeListUpdate(nodes))); err != nil {
		Logger().Warn("node_list_update_emit_failed", "err", err)
	}
}

// runWatchdog is every non-leader node's liveness check: every
// LeaderCheckInterval, if a leader is set and its heartbeat is older than
// HeartbeatInterval, the leader is presumed dead and membership resets for
// re-election (spec.md §4.2, §4.3).
func (n *Node) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.LeaderCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.checkLiveness(ctx)
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) checkLiveness(ctx context.Context) {
	n.mu.Lock()
	isLeader := n.currentLeader == n.cfg.NodeID && n.currentLeader != ""
	leaderSet := n.currentLeader != ""
	last := n.lastHeartbeatAt
	n.mu.Unlock()

	if isLeader || !leaderSet {
		return
	}
	if time.Since(last) > n.cfg.HeartbeatInterval {
		Logger().Warn("leader_heartbeat_stale", "node_id", n.cfg.NodeID, "since", time.Since(last))
		n.resetMembership(ctx)
	}
}
