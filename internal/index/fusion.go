package index

import (
	"sort"
	"strings"

	"github.com/support-rag/backend/internal/storage/models"
)

// rrfK is the reciprocal-rank-fusion constant; 60 is the conventional value.
const rrfK = 60

type rankedHit struct {
	record models.ContextRecord
	rank   int
}

// fuseRRF merges two ranked result lists into one ordering using reciprocal
// rank fusion: each hit contributes 1/(rrfK+rank) per list it appears in.
// Ties break on ticket ID to keep the ordering deterministic.
func fuseRRF(vector, lexical []rankedHit, k int) []models.ContextRecord {
	type agg struct {
		record models.ContextRecord
		score  float64
	}

	merged := make(map[string]*agg)
	add := func(hits []rankedHit) {
		for _, h := range hits {
			entry, ok := merged[h.record.TicketID]
			if !ok {
				entry = &agg{record: h.record}
				merged[h.record.TicketID] = entry
			}
			entry.score += 1.0 / float64(rrfK+h.rank)
		}
	}
	add(vector)
	add(lexical)

	entries := make([]*agg, 0, len(merged))
	for _, entry := range merged {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].record.TicketID < entries[j].record.TicketID
	})

	if k > len(entries) {
		k = len(entries)
	}

	records := make([]models.ContextRecord, 0, k)
	for _, entry := range entries[:k] {
		records = append(records, entry.record)
	}

	return records
}

// DocumentID derives the index-safe identifier for a ticket. Hyphens are not
// valid in the backing index's key space.
func DocumentID(ticketID string) string {
	return strings.ReplaceAll(ticketID, "-", "_")
}
