// dataview.go
//
// Data View (spec.md §4.1 "Data View" row, §4.5 steps 1-3): a read-only
// accessor over zones, parking spaces, and open transactions. The document
// store itself is an out-of-scope collaborator (spec.md §1); this module
// only needs a narrow read surface, backed here by the same
// sql.Open("sqlite3", dsn) + migrate() idiom the teacher's storage.go uses,
// because a follower node in production is expected to hold a local
// read replica seeded from that store.
package parkcluster

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DataView is the read-only contract a Recommender needs.
type DataView interface {
	// ZoneIDByName resolves a human zone name to its id. ok is false when
	// the zone is unknown (spec.md §4.5 step 1 / open question 1).
	ZoneIDByName(name string) (id string, ok bool, err error)
	// SpacesInZone returns every parking space belonging to a zone.
	SpacesInZone(zoneID string) ([]ParkingSpace, error)
	// OccupiedSpaceIDs returns the set of space ids with an open
	// transaction (end missing or null) in the given zone.
	OccupiedSpaceIDs(zoneID string) (map[int]bool, error)
	// CitationCounts returns the citation count for each of spaceIDs,
	// defaulting missing entries to 0 (spec.md §4.5 step 6).
	CitationCounts(spaceIDs []int) (map[int]int, error)
}

// SQLiteDataView implements DataView against a local SQLite replica.
type SQLiteDataView struct {
	db *sql.DB
}

var _ DataView = (*SQLiteDataView)(nil)

// NewSQLiteDataView opens (and migrates, idempotently) the read replica at dsn.
func NewSQLiteDataView(dsn string) (*SQLiteDataView, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, newErr(KindData, "NewSQLiteDataView", err)
	}
	v := &SQLiteDataView{db: db}
	if err := v.migrate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *SQLiteDataView) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS zones (
	id   TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS parking_spaces (
	id      INTEGER PRIMARY KEY,
	zone_id TEXT NOT NULL,
	tag     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	space_id INTEGER NOT NULL,
	start_ts DATETIME NOT NULL,
	end_ts   DATETIME
);

CREATE TABLE IF NOT EXISTS citations (
	space_id INTEGER PRIMARY KEY,
	count    INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := v.db.Exec(schema); err != nil {
		return newErr(KindData, "SQLiteDataView.migrate", err)
	}
	return nil
}

func (v *SQLiteDataView) ZoneIDByName(name string) (string, bool, error) {
	var id string
	err := v.db.QueryRow(`SELECT id FROM zones WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, newErr(KindData, "ZoneIDByName", err)
	}
	return id, true, nil
}

func (v *SQLiteDataView) SpacesInZone(zoneID string) ([]ParkingSpace, error) {
	rows, err := v.db.Query(`SELECT id, zone_id, tag FROM parking_spaces WHERE zone_id = ?`, zoneID)
	if err != nil {
		return nil, newErr(KindData, "SpacesInZone", err)
	}
	defer rows.Close()
	var out []ParkingSpace
	for rows.Next() {
		var s ParkingSpace
		if err := rows.Scan(&s.ID, &s.ZoneID, &s.Tag); err != nil {
			return nil, newErr(KindData, "SpacesInZone", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (v *SQLiteDataView) OccupiedSpaceIDs(zoneID string) (map[int]bool, error) {
	rows, err := v.db.Query(`
		SELECT t.space_id
		FROM transactions t
		JOIN parking_spaces p ON p.id = t.space_id
		WHERE p.zone_id = ? AND t.end_ts IS NULL`, zoneID)
	if err != nil {
		return nil, newErr(KindData, "OccupiedSpaceIDs", err)
	}
	defer rows.Close()
	out := map[int]bool{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, newErr(KindData, "OccupiedSpaceIDs", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (v *SQLiteDataView) CitationCounts(spaceIDs []int) (map[int]int, error) {
	out := make(map[int]int, len(spaceIDs))
	for _, id := range spaceIDs {
		out[id] = 0
	}
	if len(spaceIDs) == 0 {
		return out, nil
	}
	placeholders := ""
	args := make([]any, len(spaceIDs))
	for i, id := range spaceIDs {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	rows, err := v.db.Query(fmt.Sprintf(`SELECT space_id, count FROM citations WHERE space_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, newErr(KindData, "CitationCounts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, newErr(KindData, "CitationCounts", err)
		}
		out[id] = count
	}
	return out, rows.Err()
}

func (v *SQLiteDataView) Close() error { return v.db.Close() }
