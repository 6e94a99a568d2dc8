package discovery

import (
	"sync"
	"time"

	"github.com/hdds-team/hdds/internal/wire"
)

// ParticipantDB holds every discovered remote participant, keyed by GUID
// (spec §3). Guarded by a single RWMutex; inserts/refreshes/removes are
// short (spec §5).
type ParticipantDB struct {
	mu    sync.RWMutex
	table map[wire.GUID]ParticipantInfo
}

// NewParticipantDB constructs an empty database.
func NewParticipantDB() *ParticipantDB {
	return &ParticipantDB{table: make(map[wire.GUID]ParticipantInfo)}
}

// UpsertResult reports whether an Upsert inserted a brand-new participant
// or refreshed an existing one (spec §4.6 SPDP handler: "refresh" vs new
// insert).
type UpsertResult int

const (
	UpsertInserted UpsertResult = iota
	UpsertRefreshed
)

// Upsert inserts p if its GUID is unknown, or refreshes LastSeen if
// already present, leaving every other field as first discovered (spec
// §3: "last_seen refreshed on every SPDP").
func (db *ParticipantDB) Upsert(p ParticipantInfo) UpsertResult {
	db.mu.Lock()
	defer db.mu.Unlock()

	existing, ok := db.table[p.GUID]
	if !ok {
		db.table[p.GUID] = p
		return UpsertInserted
	}

	existing.LastSeen = p.LastSeen
	db.table[p.GUID] = existing
	return UpsertRefreshed
}

// Get returns the participant for guid, if known.
func (db *ParticipantDB) Get(guid wire.GUID) (ParticipantInfo, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.table[guid]
	return p, ok
}

// Remove deletes guid from the database.
func (db *ParticipantDB) Remove(guid wire.GUID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.table, guid)
}

// Expired returns every participant whose lease has elapsed as of now
// (spec §4.6, §8 "Lease expiry").
func (db *ParticipantDB) Expired(now time.Time) []ParticipantInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []ParticipantInfo
	for _, p := range db.table {
		if now.Sub(p.LastSeen) > p.LeaseDuration {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of known participants, for tests/metrics.
func (db *ParticipantDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.table)
}

// All returns a snapshot of every known participant, for the
// control-plane graph visitor (spec §6 "graph visitors: nodes").
func (db *ParticipantDB) All() []ParticipantInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]ParticipantInfo, 0, len(db.table))
	for _, p := range db.table {
		out = append(out, p)
	}
	return out
}
