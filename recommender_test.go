package parkcluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommenderUnknownZoneYieldsEmptyProposal(t *testing.T) {
	view := NewMemoryDataView()
	r := NewRecommender("node-a", view)
	out := r.Propose(context.Background(), "NoSuchZone", "PS1")
	assert.Empty(t, out)
}

func TestRecommenderRequestedSpaceAvailableAndMinimal(t *testing.T) {
	view := NewMemoryDataView()
	view.SeedZone("z1", "ZoneA", ParkingSpace{ID: 1, ZoneID: "z1", Tag: "PS1"}, ParkingSpace{ID: 2, ZoneID: "z1", Tag: "PS2"})
	view.SeedCitations(1, 0)
	view.SeedCitations(2, 5)

	r := NewRecommender("node-a", view)
	out := r.Propose(context.Background(), "ZoneA", "PS1")
	assert.Equal(t, Proposal{{SpaceTag: "PS1", Score: "0"}}, out)
}

func TestRecommenderRequestedSpaceOccupiedPicksMinCitationAlternative(t *testing.T) {
	view := NewMemoryDataView()
	view.SeedZone("z1", "ZoneA",
		ParkingSpace{ID: 1, ZoneID: "z1", Tag: "PS1"},
		ParkingSpace{ID: 2, ZoneID: "z1", Tag: "PS2"},
		ParkingSpace{ID: 3, ZoneID: "z1", Tag: "PS3"},
	)
	view.SeedOccupied("z1", 1)
	view.SeedCitations(2, 4)
	view.SeedCitations(3, 1)

	r := NewRecommender("node-a", view)
	out := r.Propose(context.Background(), "ZoneA", "PS1")
	assert.Equal(t, Proposal{{SpaceTag: "PS3", Score: "1"}}, out)
}

func TestRecommenderUpToTwoMinCitationAlternativesOrderedByProximity(t *testing.T) {
	view := NewMemoryDataView()
	view.SeedZone("z1", "ZoneA",
		ParkingSpace{ID: 10, ZoneID: "z1", Tag: "PS10"},
		ParkingSpace{ID: 8, ZoneID: "z1", Tag: "PS8"},
		ParkingSpace{ID: 20, ZoneID: "z1", Tag: "PS20"},
		ParkingSpace{ID: 9, ZoneID: "z1", Tag: "PS9"},
	)
	view.SeedOccupied("z1", 10) // requested space occupied
	view.SeedCitations(8, 0)
	view.SeedCitations(20, 0)
	view.SeedCitations(9, 0)

	r := NewRecommender("node-a", view)
	out := r.Propose(context.Background(), "ZoneA", "PS10")
	// PS9 (distance 1) and PS8 (distance 2) are closer than PS20 (distance 10).
	assert.Equal(t, Proposal{
		{SpaceTag: "PS9", Score: "0"},
		{SpaceTag: "PS8", Score: "0"},
	}, out)
}

func TestRecommenderSingleAlternativeWhenOnlyOneSpaceRemains(t *testing.T) {
	view := NewMemoryDataView()
	view.SeedZone("z1", "ZoneA",
		ParkingSpace{ID: 1, ZoneID: "z1", Tag: "PS1"},
		ParkingSpace{ID: 5, ZoneID: "z1", Tag: "PS5"},
	)
	view.SeedOccupied("z1", 1)
	view.SeedCitations(5, 2)

	r := NewRecommender("node-a", view)
	out := r.Propose(context.Background(), "ZoneA", "PS1")
	assert.Equal(t, Proposal{{SpaceTag: "PS5", Score: "2"}}, out)
}

func TestRecommenderZoneFullEchoesRequestedSpaceBusy(t *testing.T) {
	view := NewMemoryDataView()
	view.SeedZone("z1", "ZoneA", ParkingSpace{ID: 1, ZoneID: "z1", Tag: "PS1"})
	view.SeedOccupied("z1", 1)

	r := NewRecommender("node-a", view)
	out := r.Propose(context.Background(), "ZoneA", "PS1")
	assert.Equal(t, Proposal{{SpaceTag: "PS1", Score: Busy}}, out)
}
