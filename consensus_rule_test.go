package parkcluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S1: unanimous proposals short-circuit to the common answer.
func TestPerformConsensusUnanimity(t *testing.T) {
	p := Proposal{{SpaceTag: "PS3", Score: "1"}}
	out := PerformConsensus([]Proposal{p, p, p})
	assert.Equal(t, ConsensusOutcome{{SpaceTag: "PS3", Score: "1"}}, out)
}

// S2: a 2-of-3 majority wins over a lone dissent.
func TestPerformConsensusMajority(t *testing.T) {
	a := Proposal{{SpaceTag: "PS3", Score: "7"}}
	b := Proposal{{SpaceTag: "PS5", Score: "3"}}
	out := PerformConsensus([]Proposal{a, b, b})
	assert.Equal(t, ConsensusOutcome{{SpaceTag: "PS5", Score: "3"}}, out)
}

// S3: every proposal distinct, no entry reaches a majority -> empty.
func TestPerformConsensusNoMajority(t *testing.T) {
	a := Proposal{{SpaceTag: "PS1", Score: "1"}}
	b := Proposal{{SpaceTag: "PS2", Score: "2"}}
	c := Proposal{{SpaceTag: "PS3", Score: "3"}}
	out := PerformConsensus([]Proposal{a, b, c})
	assert.Empty(t, out)
}

// S4: a BUSY entry can itself win the majority when the zone is full.
func TestPerformConsensusBusyMajority(t *testing.T) {
	a := Proposal{{SpaceTag: "PS1", Score: Busy}}
	b := Proposal{{SpaceTag: "PS1", Score: Busy}}
	c := Proposal{{SpaceTag: "PS2", Score: Busy}}
	out := PerformConsensus([]Proposal{a, b, c})
	assert.Equal(t, ConsensusOutcome{{SpaceTag: "PS1", Score: Busy}}, out)
}

func TestPerformConsensusEmptyInput(t *testing.T) {
	assert.Empty(t, PerformConsensus(nil))
}

func TestPerformConsensusExactHalfIsNotMajority(t *testing.T) {
	a := Proposal{{SpaceTag: "PS1", Score: "1"}}
	b := Proposal{{SpaceTag: "PS1", Score: "1"}}
	c := Proposal{{SpaceTag: "PS2", Score: "1"}}
	d := Proposal{{SpaceTag: "PS2", Score: "1"}}
	// 2-of-4 each: ties, neither exceeds total/2 == 2.
	out := PerformConsensus([]Proposal{a, b, c, d})
	assert.Empty(t, out)
}

func TestPerformConsensusUnanimityPreservesMultiEntryOrder(t *testing.T) {
	p := Proposal{{SpaceTag: "PS2", Score: "1"}, {SpaceTag: "PS1", Score: "1"}}
	out := PerformConsensus([]Proposal{p, p, p})
	assert.Equal(t, ConsensusOutcome{{SpaceTag: "PS2", Score: "1"}, {SpaceTag: "PS1", Score: "1"}}, out)
}
