package pipeline

import (
	"github.com/maltedev/priceguess-ingest/internal/models"
	"github.com/maltedev/priceguess-ingest/internal/scheduler"
)

// accumulator is the reduced result of one or more batches. Values are
// combined with merge and never shared between goroutines.
type accumulator struct {
	attempted int
	stats     models.BatchStats
	records   []models.ProductRecord
}

func reduce(attempted int, outcomes []models.ScrapeOutcome) accumulator {
	acc := accumulator{
		attempted: attempted,
		stats:     scheduler.Stats(outcomes),
	}
	for _, o := range outcomes {
		if o.OK() {
			acc.records = append(acc.records, *o.Record)
		}
	}
	return acc
}

func (a accumulator) merge(b accumulator) accumulator {
	records := make([]models.ProductRecord, 0, len(a.records)+len(b.records))
	records = append(records, a.records...)
	records = append(records, b.records...)

	return accumulator{
		attempted: a.attempted + b.attempted,
		stats:     a.stats.Merge(b.stats),
		records:   records,
	}
}

// valid keeps records that have a title and a positive price.
func (a accumulator) valid() []models.ProductRecord {
	var out []models.ProductRecord
	for _, r := range a.records {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}
