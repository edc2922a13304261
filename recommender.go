// recommender.go
//
// The follower side of the cluster (spec.md §4.5): on each fanned-out task,
// queries the Data View, computes a ranked proposal, and publishes it back
// to the leader. Purely read-only; no writes. The teacher has no equivalent
// (it carries no recommendation domain), so the control flow below is new,
// kept in the teacher's narrow-repository-interface style.
package parkcluster

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// startTaskListener binds this node's own queue on the recommendation task
// fanout exchange. Every node — leader included — runs this for its whole
// lifetime: the leader is also a voting member of its own consensus round.
func (n *Node) startTaskListener(ctx context.Context) error {
	cancel, err := n.broker.BindFanout(ctx, ExchangeRecommendationTask, func(d Delivery) {
		n.handleTask(ctx, d)
	})
	if err != nil {
		return err
	}
	n.trackLifecycle(cancel)
	return nil
}

func (n *Node) handleTask(ctx context.Context, d Delivery) {
	zone, requestedSpace, err := parseTaskPayload(string(d.Body))
	if err != nil {
		Logger().Warn("task_malformed_payload", "err", err)
		return
	}
	proposal := n.rec.Propose(ctx, zone, requestedSpace)
	body := []byte(encodeProposalMessage(n.cfg.NodeID, proposal))
	if err := n.broker.Publish(ctx, QueueLeaderRecommendation, body, "", ""); err != nil {
		Logger().Warn("task_publish_proposal_failed", "err", err)
	}
}

// Recommender computes a proposal for one recommendation task against a
// DataView.
type Recommender struct {
	self NodeID
	view DataView
}

// NewRecommender constructs a Recommender for node self over view.
func NewRecommender(self NodeID, view DataView) *Recommender {
	return &Recommender{self: self, view: view}
}

// Propose implements spec.md §4.5 steps 1-7. It never returns an error to
// its caller: per the resolved open question #1, an unknown zone yields an
// empty proposal plus a logged warning rather than a raised exception.
func (r *Recommender) Propose(ctx context.Context, zone, requestedTag string) Proposal {
	zoneID, ok, err := r.view.ZoneIDByName(zone)
	if err != nil {
		Logger().Warn("recommender_zone_lookup_failed", "zone", zone, "err", err)
		return nil
	}
	if !ok {
		Logger().Warn("recommender_unknown_zone", "zone", zone, "requested_space", requestedTag)
		RecordAudit(ctx, AuditLevelWarn, "recommender", "unknown_zone", "zone not found in data view", map[string]any{
			"zone": zone,
		})
		return nil
	}

	spaces, err := r.view.SpacesInZone(zoneID)
	if err != nil {
		Logger().Warn("recommender_spaces_lookup_failed", "zone_id", zoneID, "err", err)
		return nil
	}
	occupied, err := r.view.OccupiedSpaceIDs(zoneID)
	if err != nil {
		Logger().Warn("recommender_occupied_lookup_failed", "zone_id", zoneID, "err", err)
		return nil
	}

	var requested *ParkingSpace
	var remaining []ParkingSpace
	for i := range spaces {
		s := spaces[i]
		if s.Tag == requestedTag {
			requested = &spaces[i]
		}
		if !occupied[s.ID] {
			remaining = append(remaining, s)
		}
	}

	if len(remaining) == 0 {
		// No space at all is available in the zone: echo the requested
		// space tagged BUSY, informational (spec.md glossary on BUSY).
		return Proposal{{SpaceTag: requestedTag, Score: Busy}}
	}

	ids := make([]int, len(remaining))
	for i, s := range remaining {
		ids[i] = s.ID
	}
	citations, err := r.view.CitationCounts(ids)
	if err != nil {
		Logger().Warn("recommender_citations_lookup_failed", "zone_id", zoneID, "err", err)
		return nil
	}

	minCitations := 0
	for i, id := range ids {
		c := citations[id]
		if i == 0 || c < minCitations {
			minCitations = c
		}
	}

	requestedAvailable := false
	for _, s := range remaining {
		if s.Tag == requestedTag {
			requestedAvailable = true
			break
		}
	}

	if requestedAvailable && citations[requested.ID] == minCitations {
		return Proposal{{SpaceTag: requestedTag, Score: strconv.Itoa(minCitations)}}
	}

	requestedID, haveRequestedID := spaceID(requestedTag, requested)

	var alternatives []ParkingSpace
	for _, s := range remaining {
		if s.Tag == requestedTag {
			continue
		}
		if citations[s.ID] == minCitations {
			alternatives = append(alternatives, s)
		}
	}
	if len(alternatives) > 0 {
		sortByProximity(alternatives, requestedID, haveRequestedID)
		if len(alternatives) > 2 {
			alternatives = alternatives[:2]
		}
		out := make(Proposal, len(alternatives))
		for i, s := range alternatives {
			out[i] = ProposalEntry{SpaceTag: s.Tag, Score: strconv.Itoa(citations[s.ID])}
		}
		return out
	}

	// No minimum-citation alternative found: fall back to the single
	// nearest space by id proximity, any citation count.
	nearest := append([]ParkingSpace{}, remaining...)
	sortByProximity(nearest, requestedID, haveRequestedID)
	best := nearest[0]
	return Proposal{{SpaceTag: best.Tag, Score: strconv.Itoa(citations[best.ID])}}
}

// spaceID resolves the integer id to use as the proximity reference point:
// the requested space's own id if it is a real space in this zone, else a
// best-effort parse of the trailing digits of its tag.
func spaceID(tag string, requested *ParkingSpace) (int, bool) {
	if requested != nil {
		return requested.ID, true
	}
	digits := strings.TrimLeft(tag, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_-")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sortByProximity orders spaces by ascending |id - referenceID| (closer
// first), falling back to ascending id for a stable, deterministic order
// when distances tie or no reference id is available.
func sortByProximity(spaces []ParkingSpace, referenceID int, haveReference bool) {
	sort.SliceStable(spaces, func(i, j int) bool {
		if !haveReference {
			return spaces[i].ID < spaces[j].ID
		}
		di := abs(spaces[i].ID - referenceID)
		dj := abs(spaces[j].ID - referenceID)
		if di != dj {
			return di < dj
		}
		return spaces[i].ID < spaces[j].ID
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
