package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// SyncRelationships derives a playlist's edges from canonical state and
// reconciles them against the graph: CONTAINS edges to its songs and the
// BELONGS_TO edges of each song. Songs missing from the canonical store are
// reported as unresolved rather than failing the call. It holds the playlist
// and song leases so a concurrent sync cannot delete a node it rewrites.
func (o *Orchestrator) SyncRelationships(ctx context.Context, playlistID string) (*models.RelationshipResult, error) {
	reconciler, ok := o.graph.(domain.EdgeReconciler)
	if !ok {
		return nil, fmt.Errorf("graph mirror %s cannot reconcile relationships", o.graph.Name())
	}

	for _, et := range []models.EntityType{models.EntityPlaylist, models.EntitySong} {
		release, err := o.leases.Acquire(ctx, et)
		if err != nil {
			return nil, &models.SyncError{EntityType: et, Err: err}
		}
		defer release()
	}

	fields := logrus.Fields{"playlist_id": playlistID, "run_id": uuid.NewString()}

	playlist, err := o.readEntity(ctx, models.EntityPlaylist, playlistID, fields)
	if err != nil {
		return nil, err
	}

	pl, ok := playlist.(*models.Playlist)
	if !ok {
		return nil, fmt.Errorf("playlist %s parsed as %T", playlistID, playlist)
	}

	res := &models.RelationshipResult{PlaylistID: playlistID}
	unresolved := make(map[string]struct{})

	var total models.EdgeDelta

	for _, songID := range pl.SongIDs {
		song, err := o.readEntity(ctx, models.EntitySong, songID, fields)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) || models.IsMalformed(err) {
				unresolved[songID] = struct{}{}
				continue
			}

			return nil, err
		}

		delta, err := o.reconcile(ctx, reconciler, song, fields)
		if err != nil {
			return nil, err
		}

		total.Merge(delta)
	}

	delta, err := o.reconcile(ctx, reconciler, pl, fields)
	if err != nil {
		return nil, err
	}

	total.Merge(delta)

	for _, ref := range delta.Missing {
		if ref.Type == models.NodeSong {
			unresolved[ref.ID] = struct{}{}
		}
	}

	res.Added, res.Removed, res.Unchanged = total.Added, total.Removed, total.Unchanged

	for id := range unresolved {
		res.Unresolved = append(res.Unresolved, id)
	}

	sort.Strings(res.Unresolved)

	o.log.WithFields(fields).WithFields(logrus.Fields{
		"added":      res.Added,
		"removed":    res.Removed,
		"unchanged":  res.Unchanged,
		"unresolved": len(res.Unresolved),
	}).Info("playlist relationships reconciled")

	o.record(&models.JournalEntry{
		RunID: fields["run_id"].(string), Action: models.JournalRelationships, EntityType: models.EntityPlaylist, EntityID: playlistID,
		Detail: map[string]any{"added": res.Added, "removed": res.Removed, "unresolved": res.Unresolved},
	})

	return res, nil
}

func (o *Orchestrator) readEntity(ctx context.Context, et models.EntityType, id string, fields logrus.Fields) (models.Entity, error) {
	var rec *models.CanonicalRecord

	err := o.withRetry(ctx, "canonical get", fields, func(ctx context.Context) error {
		var err error
		rec, err = o.canonical.Get(ctx, et, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading canonical %s %s: %w", et, id, err)
	}

	return models.Parse(*rec, metaFromVersion(rec.Version))
}

func (o *Orchestrator) reconcile(ctx context.Context, r domain.EdgeReconciler, ent models.Entity, fields logrus.Fields) (models.EdgeDelta, error) {
	var delta models.EdgeDelta

	err := o.withRetry(ctx, "reconcile edges", fields, func(ctx context.Context) error {
		var err error
		delta, err = r.Reconcile(ctx, ent)
		return err
	})
	if err != nil {
		return delta, &models.SyncError{
			EntityType: ent.EntityType(), Mirror: o.graph.Name(),
			Err: fmt.Errorf("reconciling %s %s: %w", ent.EntityType(), ent.EntityID(), err),
		}
	}

	return delta, nil
}
