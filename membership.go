// membership.go
//
// Membership & Election (spec.md §4.3): gossip-style registration over the
// leader_election_exchange fanout, and the deterministic lowest-NodeID
// election rule once a quorum of active nodes is known. Grounded on the
// teacher's discovery.go (seed-based peer gossip) generalized from
// DNS/env seeds to broker-native fanout, and consensus.go's "smallest wins"
// tie-break idiom (there applied to term numbers, here to node ids).
package parkcluster

import (
	"context"
	"sort"
	"time"
)

func (n *Node) startMembershipListener(ctx context.Context) error {
	cancel, err := n.broker.BindFanout(ctx, ExchangeLeaderElection, func(d Delivery) {
		peer, err := parseRegistration(string(d.Body))
		if err != nil {
			Logger().Warn("membership_malformed_registration", "err", err)
			return
		}
		n.handleRegistration(ctx, peer)
	})
	if err != nil {
		return err
	}
	n.trackLifecycle(cancel)
	return nil
}

// handleRegistration records a peer and, if this is the first time this
// node has seen it, re-announces itself so that a peer who joined after
// this node's own registration still converges on the full membership
// (gossip gap-fill, rather than assuming broadcast order).
func (n *Node) handleRegistration(ctx context.Context, peer NodeID) {
	n.mu.Lock()
	alreadyKnown := n.activeNodes[peer]
	if !alreadyKnown {
		n.activeNodes[peer] = true
	}
	n.mu.Unlock()

	if !alreadyKnown {
		Logger().Info("membership_peer_registered", "peer", peer, "node_id", n.cfg.NodeID)
		_ = n.publishRegistration(ctx)
	}

	n.tryElect(ctx)
}

// publishRegistration announces this node's id on the election exchange.
func (n *Node) publishRegistration(ctx context.Context) error {
	return n.broker.PublishFanout(ctx, ExchangeLeaderElection, []byte(encodeRegistration(n.cfg.NodeID)))
}

// tryElect applies the deterministic election rule: once at least minNodes
// are known and no leader is currently set, the lowest NodeID (natural
// string ordering) becomes leader; every other known node becomes its
// follower.
func (n *Node) tryElect(ctx context.Context) {
	n.mu.Lock()
	if n.currentLeader != "" {
		n.mu.Unlock()
		return
	}
	if len(n.activeNodes) < n.cfg.MinNodes {
		n.mu.Unlock()
		return
	}
	ids := make([]NodeID, 0, len(n.activeNodes))
	for id := range n.activeNodes {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	winner := ids[0]

	if winner == n.cfg.NodeID {
		n.becomeLeader(ctx)
	} else {
		n.becomeFollower(ctx, winner)
	}
}

// resetMembership clears the node's view of the cluster down to itself,
// used by the watchdog when the current leader is judged dead, so a fresh
// election can run from scratch (spec.md §4.2 re-election trigger).
func (n *Node) resetMembership(ctx context.Context) {
	n.mu.Lock()
	staleLeader := n.currentLeader
	n.activeNodes = map[NodeID]bool{n.cfg.NodeID: true}
	n.currentLeader = ""
	n.role = RoleRegistering
	n.mu.Unlock()

	Logger().Warn("membership_reset_for_reelection", "node_id", n.cfg.NodeID)
	RecordAudit(ctx, AuditLevelWarn, "membership", "reset_for_reelection", "leader presumed dead, re-registering", map[string]any{
		"node_id": string(n.cfg.NodeID),
	})
	n.emitEvent("heartbeat_lost", staleLeader, "")

	_ = n.publishRegistration(ctx)
	n.tryElect(ctx)
}

// runStartupWindow implements the node's boot sequence (spec.md §4.3): it
// announces itself immediately and again every quarter of InitialWaitTime
// until the window ends. The node does not wait passively before
// registering: a registration heard during the window goes through
// handleRegistration, which can complete an election before the window
// ends. A heartbeat seen first sets currentLeader, after which tryElect does
// nothing and the node stays that leader's follower. If the window ends with
// no leader known, tryElect runs once more.
func (n *Node) runStartupWindow(ctx context.Context) {
	n.mu.Lock()
	n.role = RoleRegistering
	n.mu.Unlock()

	deadline := time.NewTimer(n.cfg.InitialWaitTime)
	defer deadline.Stop()

	announceInterval := n.cfg.InitialWaitTime / 4
	if announceInterval <= 0 {
		announceInterval = 10 * time.Millisecond
	}
	// Re-announce on a short tick throughout the window rather than once:
	// fanout delivery only reaches peers already bound at publish time, so
	// a single announcement can race a slower peer's own startup.
	announce := time.NewTicker(announceInterval)
	defer announce.Stop()
	_ = n.publishRegistration(ctx)

	for {
		select {
		case <-announce.C:
			_ = n.publishRegistration(ctx)
		case <-deadline.C:
			n.mu.Lock()
			observedLeader := n.currentLeader
			n.mu.Unlock()
			if observedLeader == "" {
				n.tryElect(ctx)
			}
			return
		case <-ctx.Done():
			return
		case <-n.stopCh:
			return
		}
	}
}
