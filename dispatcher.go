// dispatcher.go
//
// Task Dispatcher (spec.md §4.4): the leader-only actor that takes in a
// client request, fans it out unchanged to every node, collects proposals
// for that one round, and resolves them via the majority rule. Rounds are
// processed one at a time (spec.md §4.4 "collection is keyed/serialized per
// caller") rather than tagged with a round id on the wire, since the
// heartbeat/proposal message formats (spec.md §6) carry no round field.
// Grounded on the teacher's consensus.go AppendEntries-collection loop
// (gather from peers, apply once quorum reached, bounded by a timeout).
package parkcluster

import (
	"context"
	"sync"
	"time"
)

// Dispatcher serializes consensus rounds for a leader Node.
type Dispatcher struct {
	node *Node

	mu      sync.Mutex
	current *consensusRound
}

type consensusRound struct {
	correlationID string
	replyTo       string
	proposals     map[NodeID]Proposal
	readyOnce     sync.Once
	ready         chan struct{}
}

func newDispatcher(n *Node) *Dispatcher {
	return &Dispatcher{node: n}
}

// handleClientRequest is the leader's consumer callback for
// recommendation_queue. It runs the whole round to completion before
// returning, which is what serializes rounds: AMQPBroker delivers a
// consumer's messages from one goroutine, so it does not deliver the next
// client request until this returns. MemoryBroker runs handlers on the
// publishing goroutine, so there rounds are serialized only while client
// requests are published from one goroutine.
func (d *Dispatcher) handleClientRequest(ctx context.Context, delivery Delivery) {
	zone, requestedSpace, err := parseTaskPayload(string(delivery.Body))
	if err != nil {
		Logger().Warn("dispatcher_malformed_request", "err", err)
		return
	}

	round := &consensusRound{
		correlationID: delivery.CorrelationID,
		replyTo:       delivery.ReplyTo,
		proposals:     map[NodeID]Proposal{},
		ready:         make(chan struct{}),
	}

	d.mu.Lock()
	d.current = round
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		if d.current == round {
			d.current = nil
		}
		d.mu.Unlock()
	}()

	ctx, roundID := WithRequestID(ctx)
	RecordAudit(ctx, AuditLevelInfo, "dispatcher", "round_started", "consensus round started", map[string]any{
		"zone":            zone,
		"requested_space": requestedSpace,
		"round_id":        roundID,
	})

	if err := d.node.broker.PublishFanout(ctx, ExchangeRecommendationTask, []byte(encodeTaskPayload(zone, requestedSpace))); err != nil {
		Logger().Warn("dispatcher_fanout_failed", "err", err)
		return
	}

	d.awaitQuorum(ctx, round)

	outcome := d.resolve(round)
	d.publishOutcome(ctx, round, outcome)
}

// awaitQuorum blocks until at least minNodes proposals have arrived for
// this round, or ConsensusRoundTimeout elapses, whichever comes first.
func (d *Dispatcher) awaitQuorum(ctx context.Context, round *consensusRound) {
	timeout := d.node.cfg.ConsensusRoundTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-round.ready:
	case <-timer.C:
		Logger().Warn("dispatcher_round_timeout", "correlation_id", round.correlationID)
	case <-ctx.Done():
	case <-d.node.stopCh:
	}
}

func (d *Dispatcher) resolve(round *consensusRound) ConsensusOutcome {
	d.mu.Lock()
	proposals := make([]Proposal, 0, len(round.proposals))
	for _, p := range round.proposals {
		proposals = append(proposals, p)
	}
	d.mu.Unlock()
	return PerformConsensus(proposals)
}

func (d *Dispatcher) publishOutcome(ctx context.Context, round *consensusRound, outcome ConsensusOutcome) {
	body := []byte(encodeEntries(Proposal(outcome)))
	if err := d.node.broker.Publish(ctx, QueueLeaderFinal, body, round.correlationID, ""); err != nil {
		Logger().Warn("dispatcher_publish_final_failed", "err", err)
	}
	if err := d.node.gateway.Reply(ctx, round.replyTo, round.correlationID, body); err != nil {
		Logger().Warn("dispatcher_reply_failed", "err", err)
	}
	RecordAudit(ctx, AuditLevelInfo, "dispatcher", "round_resolved", "consensus round resolved", map[string]any{
		"correlation_id": round.correlationID,
		"outcome_size":   len(outcome),
	})
	d.node.emitEvent("consensus_decided", d.node.cfg.NodeID, string(body))
}

// handleProposal is the leader's consumer callback for
// leader_recommendation_queue; it receives every node's proposal, the
// leader's own included.
func (d *Dispatcher) handleProposal(delivery Delivery) {
	sender, proposal, err := parseProposalMessage(string(delivery.Body))
	if err != nil {
		Logger().Warn("dispatcher_malformed_proposal", "err", err)
		return
	}

	d.mu.Lock()
	round := d.current
	if round == nil {
		d.mu.Unlock()
		return // no round in flight (or it already timed out); drop
	}
	round.proposals[sender] = proposal
	reached := len(round.proposals) >= d.node.cfg.MinNodes
	d.mu.Unlock()

	if reached {
		round.readyOnce.Do(func() { close(round.ready) })
	}
}
