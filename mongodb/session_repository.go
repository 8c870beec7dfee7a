package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/veggydawson/frappe/domain"
	serrors "github.com/veggydawson/frappe/errors"
)

// SessionRepositoryMongo implements domain.SessionRepository using MongoDB.
type SessionRepositoryMongo struct {
	collection *mongo.Collection
}

// NewSessionRepositoryMongo creates a new SessionRepositoryMongo.
// It also ensures that necessary indexes are created on the collection.
func NewSessionRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.SessionRepository, error) {
	repo := &SessionRepositoryMongo{
		collection: db.Collection(SessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			// Bulk invalidation enumerates a user's sessions.
			Keys: bson.D{{Key: "user", Value: 1}},
		},
		{
			// The expiry sweep and the active-row filter scan lastupdate.
			Keys: bson.D{{Key: "lastupdate", Value: 1}},
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for sessions collection (might already exist)")
	}

	return repo, nil
}

// Insert stores a new session row.
func (r *SessionRepositoryMongo) Insert(ctx context.Context, session *domain.Session) error {
	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("session %q already exists: %w", session.SID, err)
		}
		log.Error().Err(err).Str("sid", session.SID).Msg("Error inserting session row")
		return err
	}
	return nil
}

// GetActive retrieves the row for sid whose lastupdate falls within
// expirySeconds of now. The comparison is strict: a row exactly at the
// boundary is still active.
func (r *SessionRepositoryMongo) GetActive(ctx context.Context, sid string, expirySeconds int) (*domain.Session, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(expirySeconds) * time.Second)
	filter := bson.M{
		"_id":        sid,
		"lastupdate": bson.M{"$gte": cutoff},
	}

	var session domain.Session
	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, serrors.NewSessionNotFound(sid)
		}
		log.Error().Err(err).Str("sid", sid).Msg("Error reading session row")
		return nil, err
	}
	return &session, nil
}

// Update overwrites the payload and lastupdate of sid.
func (r *SessionRepositoryMongo) Update(ctx context.Context, sid string, data domain.SessionData, lastUpdate time.Time) error {
	update := bson.M{"$set": bson.M{
		"sessiondata": data,
		"lastupdate":  lastUpdate,
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": sid}, update); err != nil {
		log.Error().Err(err).Str("sid", sid).Msg("Error updating session row")
		return err
	}
	return nil
}

// Delete removes the row for sid. Absent rows are ignored.
func (r *SessionRepositoryMongo) Delete(ctx context.Context, sid string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": sid}); err != nil {
		log.Error().Err(err).Str("sid", sid).Msg("Error deleting session row")
		return err
	}
	return nil
}

// ListByUser returns refs for every session row owned by user.
func (r *SessionRepositoryMongo) ListByUser(ctx context.Context, user string) ([]domain.SessionRef, error) {
	return r.listRefs(ctx, bson.M{"user": user})
}

// ListAll returns refs for every session row.
func (r *SessionRepositoryMongo) ListAll(ctx context.Context) ([]domain.SessionRef, error) {
	return r.listRefs(ctx, bson.M{})
}

// ListExpired returns refs for rows past the expiry window. Rows exactly at
// the boundary are not expired.
func (r *SessionRepositoryMongo) ListExpired(ctx context.Context, expirySeconds int) ([]domain.SessionRef, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(expirySeconds) * time.Second)
	return r.listRefs(ctx, bson.M{"lastupdate": bson.M{"$lt": cutoff}})
}

func (r *SessionRepositoryMongo) listRefs(ctx context.Context, filter bson.M) ([]domain.SessionRef, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "user": 1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Msg("Error listing session rows")
		return nil, err
	}
	defer cursor.Close(ctx)

	var refs []domain.SessionRef
	if err := cursor.All(ctx, &refs); err != nil {
		log.Error().Err(err).Msg("Error decoding session refs")
		return nil, err
	}
	return refs, nil
}

// Ensure interface compliance
var _ domain.SessionRepository = (*SessionRepositoryMongo)(nil)
