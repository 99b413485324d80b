package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// VectorIndex implements crawler.VectorIndex in memory.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]crawler.VectorRecord
}

// NewVectorIndex builds an index that rejects vectors of any other dimension.
// A dimension of 0 accepts anything.
func NewVectorIndex(dimension int) *VectorIndex {
	return &VectorIndex{dimension: dimension, records: make(map[string]crawler.VectorRecord)}
}

// Provision is a no-op.
func (v *VectorIndex) Provision(context.Context) error { return nil }

// Upsert overwrites records by id.
func (v *VectorIndex) Upsert(_ context.Context, records []crawler.VectorRecord) error {
	for _, r := range records {
		if v.dimension > 0 && len(r.Values) != v.dimension {
			return fmt.Errorf("record %s has dimension %d, index expects %d", r.ID, len(r.Values), v.dimension)
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range records {
		r.Values = append([]float32(nil), r.Values...)
		v.records[r.ID] = r
	}
	return nil
}

// Delete removes ids; unknown ids are ignored.
func (v *VectorIndex) Delete(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.records, id)
	}
	return nil
}

// Record returns a stored record.
func (v *VectorIndex) Record(id string) (crawler.VectorRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.records[id]
	return r, ok
}

// IDs returns the stored ids in sorted order.
func (v *VectorIndex) IDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.records))
	for id := range v.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close is a no-op.
func (v *VectorIndex) Close() error { return nil }
