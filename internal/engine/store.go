package engine

import (
	"sync"

	"datavista/internal/models"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
)

// Store holds the base record set. It is built once and only read afterwards.
type Store struct {
	records []models.Record

	fpOnce sync.Once
	fp     uint64
}

func NewStore(records []models.Record) *Store {
	owned := make([]models.Record, len(records))
	copy(owned, records)
	return &Store{records: owned}
}

// Records returns a copy of the base set.
func (s *Store) Records() []models.Record {
	out := make([]models.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Len() int { return len(s.records) }

// Products lists every product in the base set, first occurrence first.
func (s *Store) Products() []string {
	return DistinctValues(s.records, FieldProduct)
}

// Transform runs op against the base set.
func (s *Store) Transform(op Operation, p Params) *Result {
	return Transform(s.records, op, p)
}

// Aggregate computes the dashboard feed for the base set.
func (s *Store) Aggregate() *models.DashboardData {
	return Aggregate(s.records)
}

// Fingerprint is an xxh3 hash of the canonical JSON encoding of the set.
func (s *Store) Fingerprint() uint64 {
	s.fpOnce.Do(func() {
		h := xxh3.New()
		enc := json.NewEncoder(h)
		for _, r := range s.records {
			_ = enc.Encode(r)
		}
		s.fp = h.Sum64()
	})
	return s.fp
}
