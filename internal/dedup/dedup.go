// Package dedup keeps the first-seen record for every identity key in a
// session.
package dedup

import (
	"sync"
	"time"

	"github.com/amishk599/jobtap/internal/model"
)

// InsertResult reports the outcome of TryInsert.
type InsertResult struct {
	Inserted bool
	Key      string
	Record   model.JobRecord // the stored record when Inserted
}

// Deduplicator maps identity keys to the first record seen with that key.
// It is safe for concurrent use.
type Deduplicator struct {
	mu      sync.Mutex
	records map[string]model.JobRecord
	order   []string
	now     func() time.Time
}

// New returns an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		records: make(map[string]model.JobRecord),
		now:     time.Now,
	}
}

// descKeyRunes bounds the description prefix used as a last-resort key.
const descKeyRunes = 50

// Key derives the identity key: the upstream id hint, else url|title, else
// title, else the start of the description.
func Key(rec model.JobRecord) string {
	if rec.IDHint != "" {
		return rec.IDHint
	}
	if rec.URL != "" {
		return rec.URL + "|" + rec.Title
	}
	if rec.Title != "" {
		return rec.Title
	}
	desc := []rune(rec.Description)
	return string(desc[:min(len(desc), descKeyRunes)])
}

// TryInsert stores rec under its key if the key is new. Existing entries are
// never overwritten. CollectedAt and IdentityKey are stamped on insertion.
func (d *Deduplicator) TryInsert(rec model.JobRecord) InsertResult {
	key := Key(rec)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.records[key]; ok {
		return InsertResult{Inserted: false, Key: key}
	}
	rec.IdentityKey = key
	rec.CollectedAt = d.now()
	d.records[key] = rec
	d.order = append(d.order, key)
	return InsertResult{Inserted: true, Key: key, Record: rec}
}

// Len returns the number of stored records.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// All returns copies of every stored record in insertion order.
func (d *Deduplicator) All() []model.JobRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.JobRecord, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.records[k].Clone())
	}
	return out
}

// Reset drops every stored record.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = make(map[string]model.JobRecord)
	d.order = nil
}
