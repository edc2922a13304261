package parkcluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPayloadRoundTrip(t *testing.T) {
	body := encodeTaskPayload("ZoneA", "PS3")
	zone, space, err := parseTaskPayload(body)
	require.NoError(t, err)
	assert.Equal(t, "ZoneA", zone)
	assert.Equal(t, "PS3", space)
}

func TestParseTaskPayloadMalformed(t *testing.T) {
	_, _, err := parseTaskPayload("no-colon-here")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProtocol))
}

func TestProposalEntryRoundTrip(t *testing.T) {
	e, err := parseProposalEntry(encodeProposalEntry(ProposalEntry{SpaceTag: "PS1", Score: "3"}))
	require.NoError(t, err)
	assert.Equal(t, ProposalEntry{SpaceTag: "PS1", Score: "3"}, e)

	busy, err := parseProposalEntry("PS2;BUSY")
	require.NoError(t, err)
	assert.Equal(t, Busy, busy.Score)
}

func TestParseProposalEntryRejectsNegativeAndNonNumeric(t *testing.T) {
	_, err := parseProposalEntry("PS1;-1")
	assert.Error(t, err)

	_, err = parseProposalEntry("PS1;notanumber")
	assert.Error(t, err)
}

func TestEntriesRoundTripIncludingEmpty(t *testing.T) {
	p := Proposal{{SpaceTag: "PS1", Score: "1"}, {SpaceTag: "PS2", Score: Busy}}
	parsed, err := parseEntries(encodeEntries(p))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(p))

	empty, err := parseEntries(encodeEntries(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProposalMessageRoundTrip(t *testing.T) {
	p := Proposal{{SpaceTag: "PS3", Score: "1"}}
	node, parsed, err := parseProposalMessage(encodeProposalMessage(NodeID("node-a"), p))
	require.NoError(t, err)
	assert.Equal(t, NodeID("node-a"), node)
	assert.True(t, parsed.Equal(p))
}

func TestHeartbeatRoundTrip(t *testing.T) {
	leader, ok := parseHeartbeat(encodeHeartbeat(NodeID("node-b")))
	require.True(t, ok)
	assert.Equal(t, NodeID("node-b"), leader)

	_, ok = parseHeartbeat("NODE_LIST_UPDATE:node-a,node-b")
	assert.False(t, ok)
}

func TestNodeListUpdateRoundTrip(t *testing.T) {
	nodes, ok := parseNodeListUpdate(encodeNodeListUpdate([]NodeID{"node-a", "node-b"}))
	require.True(t, ok)
	assert.Equal(t, []NodeID{"node-a", "node-b"}, nodes)

	empty, ok := parseNodeListUpdate(encodeNodeListUpdate(nil))
	require.True(t, ok)
	assert.Empty(t, empty)
}

func TestRegistrationRoundTrip(t *testing.T) {
	id, err := parseRegistration(encodeRegistration(NodeID("node-c")))
	require.NoError(t, err)
	assert.Equal(t, NodeID("node-c"), id)

	_, err = parseRegistration("   ")
	assert.Error(t, err)
}
