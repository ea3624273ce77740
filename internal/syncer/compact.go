package syncer

import (
	"sort"

	"github.com/persistorai/tracksync/internal/models"
)

// op is the surviving mutation for one entity within a batch.
type op struct {
	entry  models.ChangeLogEntry
	entity models.Entity // nil for deletes
}

// compact collapses a sequence-ordered batch to the highest-sequence entry
// per entity id (last write wins) and parses the surviving payloads. Entries
// that cannot be projected are returned as skips; they never block the batch.
func compact(entries []models.ChangeLogEntry) ([]op, []models.SkippedEntry) {
	latest := make(map[string]models.ChangeLogEntry, len(entries))
	for _, e := range entries {
		latest[e.EntityID] = e
	}

	ops := make([]op, 0, len(latest))

	var skipped []models.SkippedEntry

	for _, e := range latest {
		switch e.Operation {
		case models.OpCreate, models.OpUpdate:
			ent, err := models.Parse(e.Record(), models.SourceMeta{Sequence: e.Sequence, ModifiedAt: e.RecordedAt})
			if err != nil {
				skipped = append(skipped, models.SkippedEntry{Sequence: e.Sequence, EntityID: e.EntityID, Reason: err.Error()})
				continue
			}

			ops = append(ops, op{entry: e, entity: ent})
		case models.OpDelete:
			ops = append(ops, op{entry: e})
		default:
			skipped = append(skipped, models.SkippedEntry{
				Sequence: e.Sequence, EntityID: e.EntityID, Reason: "unknown operation " + e.Operation.String(),
			})
		}
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].entry.Sequence < ops[j].entry.Sequence })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Sequence < skipped[j].Sequence })

	return ops, skipped
}

// after returns the ops whose entries are beyond cursor.
func after(ops []op, cursor int64) []op {
	i := sort.Search(len(ops), func(i int) bool { return ops[i].entry.Sequence > cursor })
	return ops[i:]
}
