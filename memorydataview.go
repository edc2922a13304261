// memorydataview.go
//
// An in-memory DataView used by tests (and by the recommender test suite's
// fixtures) so that recommender behavior can be exercised without a CGO
// sqlite build, mirroring the MemoryBroker's role for the transport layer.
package parkcluster

// MemoryDataView is a simple, in-process implementation of DataView backed
// by plain slices/maps rather than SQL. Not safe for concurrent writes —
// tests build one, seed it, then only read it concurrently.
type MemoryDataView struct {
	zones     map[string]string // name -> id
	spaces    map[string][]ParkingSpace
	occupied  map[string]map[int]bool
	citations map[int]int
}

var _ DataView = (*MemoryDataView)(nil)

// NewMemoryDataView constructs an empty in-memory Data View.
func NewMemoryDataView() *MemoryDataView {
	return &MemoryDataView{
		zones:     map[string]string{},
		spaces:    map[string][]ParkingSpace{},
		occupied:  map[string]map[int]bool{},
		citations: map[int]int{},
	}
}

// SeedZone registers a zone and its spaces.
func (v *MemoryDataView) SeedZone(zoneID, name string, spaces ...ParkingSpace) {
	v.zones[name] = zoneID
	v.spaces[zoneID] = append(v.spaces[zoneID], spaces...)
}

// SeedOccupied marks a space as currently occupied (an open transaction).
func (v *MemoryDataView) SeedOccupied(zoneID string, spaceID int) {
	if v.occupied[zoneID] == nil {
		v.occupied[zoneID] = map[int]bool{}
	}
	v.occupied[zoneID][spaceID] = true
}

// SeedCitations sets the citation count for a space.
func (v *MemoryDataView) SeedCitations(spaceID, count int) {
	v.citations[spaceID] = count
}

func (v *MemoryDataView) ZoneIDByName(name string) (string, bool, error) {
	id, ok := v.zones[name]
	return id, ok, nil
}

func (v *MemoryDataView) SpacesInZone(zoneID string) ([]ParkingSpace, error) {
	return append([]ParkingSpace{}, v.spaces[zoneID]...), nil
}

func (v *MemoryDataView) OccupiedSpaceIDs(zoneID string) (map[int]bool, error) {
	out := map[int]bool{}
	for id := range v.occupied[zoneID] {
		out[id] = true
	}
	return out, nil
}

func (v *MemoryDataView) CitationCounts(spaceIDs []int) (map[int]int, error) {
	out := make(map[int]int, len(spaceIDs))
	for _, id := range spaceIDs {
		out[id] = v.citations[id]
	}
	return out, nil
}
