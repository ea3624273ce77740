// Package canonical reads the canonical MongoDB document store. It never
// writes: mutations reach the core through the change ledger.
package canonical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/models"
)

// collections maps entity types to their MongoDB collection names.
var collections = map[models.EntityType]string{
	models.EntitySong:     "songs",
	models.EntityAlbum:    "albums",
	models.EntityPlaylist: "playlists",
	models.EntityUser:     "users",
}

// Source is a domain.CanonicalSource over one MongoDB database.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logrus.Logger
}

var _ domain.CanonicalSource = (*Source)(nil)

// Connect dials MongoDB at uri and verifies the connection.
func Connect(ctx context.Context, uri, database string, log *logrus.Logger) (*Source, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetTimeout(30 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	log.WithField("database", database).Info("canonical source connected")

	return &Source{client: client, db: client.Database(database), log: log}, nil
}

// Close disconnects the client.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity for the readiness endpoint.
func (s *Source) Ping(ctx context.Context) error {
	return classify("pinging canonical store", s.client.Ping(ctx, nil))
}

func (s *Source) collection(et models.EntityType) (*mongo.Collection, error) {
	name, ok := collections[et]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidEntityType, et)
	}

	return s.db.Collection(name), nil
}

// GetAll streams every document of et in _id order.
func (s *Source) GetAll(ctx context.Context, et models.EntityType) ([]models.CanonicalRecord, error) {
	coll, err := s.collection(et)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classify("reading "+coll.Name(), err)
	}
	defer cur.Close(ctx) //nolint:errcheck // read-only cursor.

	out := []models.CanonicalRecord{}

	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			s.log.WithError(err).WithField("collection", coll.Name()).Warn("skipping undecodable document")
			continue
		}

		out = append(out, toRecord(et, doc))
	}

	if err := cur.Err(); err != nil {
		return nil, classify("iterating "+coll.Name(), err)
	}

	return out, nil
}

// Get reads one document. ids that parse as ObjectIDs match either form.
func (s *Source) Get(ctx context.Context, et models.EntityType, id string) (*models.CanonicalRecord, error) {
	coll, err := s.collection(et)
	if err != nil {
		return nil, err
	}

	var doc bson.M

	err = coll.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s %s: %w", et, id, models.ErrNotFound)
	}

	if err != nil {
		return nil, classify("reading "+string(et)+" "+id, err)
	}

	rec := toRecord(et, doc)

	return &rec, nil
}

// Count returns the number of documents of et.
func (s *Source) Count(ctx context.Context, et models.EntityType) (int64, error) {
	coll, err := s.collection(et)
	if err != nil {
		return 0, err
	}

	n, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classify("counting "+coll.Name(), err)
	}

	return n, nil
}

func idFilter(id string) bson.D {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, id}}}}}
	}

	return bson.D{{Key: "_id", Value: id}}
}

// classify marks network failures and timeouts as transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return models.Transient(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
