package service

import (
	"context"
	"errors"
	"testing"

	"github.com/persistorai/tracksync/internal/memstore"
	"github.com/persistorai/tracksync/internal/models"
)

func TestLedgerService_AppendNotifies(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewLedgerService(memstore.NewLedger(), notifier, testLogger())
	ctx := context.Background()

	got, err := svc.Append(ctx, models.ChangeLogEntry{
		EntityType: models.EntitySong,
		EntityID:   "s1",
		Operation:  models.OpCreate,
		Payload:    map[string]any{"name": "Blue Train"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", got.Sequence)
	}

	if len(notifier.seqs) != 1 || notifier.seqs[0] != 1 {
		t.Errorf("notifications = %v, want [1]", notifier.seqs)
	}

	hist, err := svc.History(ctx, models.EntitySong, "s1")
	if err != nil || len(hist) != 1 {
		t.Fatalf("History = %v, %v", hist, err)
	}
}

func TestLedgerService_RejectsInvalid(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewLedgerService(memstore.NewLedger(), notifier, testLogger())

	tests := []struct {
		name  string
		entry models.ChangeLogEntry
		want  error
	}{
		{"bad type", models.ChangeLogEntry{EntityType: "podcast", EntityID: "x", Operation: models.OpDelete}, models.ErrInvalidEntityType},
		{"missing id", models.ChangeLogEntry{EntityType: models.EntitySong, Operation: models.OpDelete}, models.ErrMissingID},
		{"missing payload", models.ChangeLogEntry{EntityType: models.EntitySong, EntityID: "s1", Operation: models.OpUpdate}, models.ErrMissingPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), tt.entry)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if len(notifier.seqs) != 0 {
		t.Errorf("notified for rejected entries: %v", notifier.seqs)
	}
}

func TestLedgerService_ReadFromInvalidType(t *testing.T) {
	svc := NewLedgerService(memstore.NewLedger(), nil, testLogger())

	if _, err := svc.ReadFrom(context.Background(), "podcast", 0, 10); !errors.Is(err, models.ErrInvalidEntityType) {
		t.Errorf("err = %v, want ErrInvalidEntityType", err)
	}
}

func TestJournalService_Purge(t *testing.T) {
	j := memstore.NewJournal()
	svc := NewJournalService(j, testLogger())
	ctx := context.Background()

	if err := j.Record(ctx, &models.JournalEntry{Action: models.JournalSkipped}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	deleted, err := svc.PurgeOldEntries(ctx, 1)
	if err != nil || deleted != 0 {
		t.Fatalf("PurgeOldEntries = %d, %v; want 0", deleted, err)
	}

	entries, hasMore, err := svc.Query(ctx, models.JournalQueryOpts{})
	if err != nil || hasMore || len(entries) != 1 {
		t.Fatalf("Query = %v, %v, %v", entries, hasMore, err)
	}
}
