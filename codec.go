// codec.go
//
// Isolates the wire format (spec.md §6) behind explicit parse/serialize
// functions, per the spec's design note: "keep the wire format but isolate
// it behind a codec component with explicit parse/serialize functions,
// returning structured errors for malformed inputs."
package parkcluster

import (
	"strconv"
	"strings"
)

const (
	heartbeatPrefix      = "HEARTBEAT:"
	nodeListUpdatePrefix = "NODE_LIST_UPDATE:"
)

// encodeTaskPayload renders "<zone>:<requestedSpace>", used both for the
// original client request body and the unchanged fan-out broadcast.
func encodeTaskPayload(zone, requestedSpace string) string {
	return zone + ":" + requestedSpace
}

// parseTaskPayload parses "<zone>:<requestedSpace>". The zone name itself
// may not contain ':'; requestedSpace is everything after the first ':' so
// it tolerates tags that happen to contain the separator only if present
// verbatim (the wire format reserves ':' in zone/space values, per §6).
func parseTaskPayload(s string) (zone, requestedSpace string, err error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", "", newErr(KindProtocol, "parseTaskPayload", ErrMalformedPayload)
	}
	zone = s[:idx]
	requestedSpace = s[idx+1:]
	if zone == "" || requestedSpace == "" {
		return "", "", newErr(KindProtocol, "parseTaskPayload", ErrMalformedPayload)
	}
	return zone, requestedSpace, nil
}

// encodeProposalEntry renders "<spaceTag>;<score>".
func encodeProposalEntry(e ProposalEntry) string {
	return e.SpaceTag + ";" + e.Score
}

// parseProposalEntry parses "<spaceTag>;<score>", validating that score is
// either the Busy sentinel or a non-negative integer.
func parseProposalEntry(s string) (ProposalEntry, error) {
	idx := strings.IndexByte(s, ';')
	if idx < 0 {
		return ProposalEntry{}, newErr(KindProtocol, "parseProposalEntry", ErrMalformedPayload)
	}
	tag := s[:idx]
	score := s[idx+1:]
	if tag == "" || score == "" {
		return ProposalEntry{}, newErr(KindProtocol, "parseProposalEntry", ErrMalformedPayload)
	}
	if score != Busy {
		if n, err := strconv.Atoi(score); err != nil || n < 0 {
			return ProposalEntry{}, newErr(KindProtocol, "parseProposalEntry", ErrMalformedPayload)
		}
	}
	return ProposalEntry{SpaceTag: tag, Score: score}, nil
}

// encodeEntries renders a comma-separated list of proposal entries. An empty
// proposal encodes to the empty string (legal: "no available alternatives").
func encodeEntries(p Proposal) string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = encodeProposalEntry(e)
	}
	return strings.Join(parts, ",")
}

// parseEntries parses a (possibly empty) comma-separated entry list.
func parseEntries(s string) (Proposal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	chunks := strings.Split(s, ",")
	out := make(Proposal, 0, len(chunks))
	for _, c := range chunks {
		e, err := parseProposalEntry(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// encodeProposalMessage renders "<nodeId>:<csv of entries>", the follower's
// publish to the leader's inbound-proposals queue.
func encodeProposalMessage(sender NodeID, p Proposal) string {
	return string(sender) + ":" + encodeEntries(p)
}

// parseProposalMessage parses "<nodeId>:<csv of entries>".
func parseProposalMessage(s string) (NodeID, Proposal, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", nil, newErr(KindProtocol, "parseProposalMessage", ErrMalformedPayload)
	}
	sender := strings.TrimSpace(s[:idx])
	if sender == "" {
		return "", nil, newErr(KindProtocol, "parseProposalMessage", ErrMalformedPayload)
	}
	p, err := parseEntries(s[idx+1:])
	if err != nil {
		return "", nil, err
	}
	return NodeID(sender), p, nil
}

// encodeHeartbeat renders "HEARTBEAT:<leaderId>".
func encodeHeartbeat(leader NodeID) string {
	return heartbeatPrefix + string(leader)
}

// parseHeartbeat returns (leaderID, true) if s is a well-formed heartbeat
// message, or ("", false) otherwise — the caller is expected to try the
// other heartbeat-exchange message kind (node list update) next.
func parseHeartbeat(s string) (NodeID, bool) {
	if !strings.HasPrefix(s, heartbeatPrefix) {
		return "", false
	}
	leader := strings.TrimPrefix(s, heartbeatPrefix)
	if leader == "" {
		return "", false
	}
	return NodeID(leader), true
}

// encodeNodeListUpdate renders "NODE_LIST_UPDATE:<csv of nodeIds>".
func encodeNodeListUpdate(nodes []NodeID) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = string(n)
	}
	return nodeListUpdatePrefix + strings.Join(parts, ",")
}

// parseNodeListUpdate returns (nodes, true) if s is a well-formed membership
// update, or (nil, false) otherwise.
func parseNodeListUpdate(s string) ([]NodeID, bool) {
	if !strings.HasPrefix(s, nodeListUpdatePrefix) {
		return nil, false
	}
	rest := strings.TrimPrefix(s, nodeListUpdatePrefix)
	if rest == "" {
		return nil, true
	}
	chunks := strings.Split(rest, ",")
	out := make([]NodeID, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, NodeID(c))
		}
	}
	return out, true
}

// encodeRegistration renders the registration message body: just the id.
func encodeRegistration(id NodeID) string { return string(id) }

// parseRegistration parses a registration message body.
func parseRegistration(s string) (NodeID, error) {
	id := strings.TrimSpace(s)
	if id == "" {
		return "", newErr(KindProtocol, "parseRegistration", ErrMalformedPayload)
	}
	return NodeID(id), nil
}
