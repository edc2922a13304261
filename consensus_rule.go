// consensus_rule.go
//
// The majority rule (spec.md §4.4.1), isolated as a pure function over a
// set of proposals so it is directly unit-testable against P5-P7 and
// scenarios S1-S4 without any broker or node machinery.
package parkcluster

// PerformConsensus implements spec.md §4.4.1:
//  1. Flatten: count occurrences of each entry across all proposals.
//  2. Unanimity shortcut: if every proposal is structurally identical,
//     return it verbatim.
//  3. Majority requirement: if the largest occurrence count is at most half
//     of the total votes (integer division), return empty.
//  4. Otherwise return every entry whose occurrence equals the largest
//     count, in first-seen (insertion) order.
func PerformConsensus(proposals []Proposal) ConsensusOutcome {
	if len(proposals) == 0 {
		return nil
	}

	if allEqual(proposals) {
		return ConsensusOutcome(append(Proposal{}, proposals[0]...))
	}

	counts := map[ProposalEntry]int{}
	order := []ProposalEntry{}
	total := 0
	for _, p := range proposals {
		for _, e := range p {
			if counts[e] == 0 {
				order = append(order, e)
			}
			counts[e]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	maxVotes := 0
	for _, c := range counts {
		if c > maxVotes {
			maxVotes = c
		}
	}
	if maxVotes <= total/2 {
		return nil
	}

	out := make(ConsensusOutcome, 0, len(order))
	for _, e := range order {
		if counts[e] == maxVotes {
			out = append(out, e)
		}
	}
	return out
}

// allEqual reports whether every proposal in the set is structurally equal
// (same entries, same order) to the first one.
func allEqual(proposals []Proposal) bool {
	first := proposals[0]
	for _, p := range proposals[1:] {
		if !p.Equal(first) {
			return false
		}
	}
	return true
}
