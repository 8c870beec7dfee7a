package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/veggydawson/frappe/domain"
)

// globalDefaultsOwner marks rows in the defaults collection that apply
// system-wide rather than to one user.
const globalDefaultsOwner = "__global"

// UserRepositoryMongo implements domain.UserRepository using MongoDB. Stored
// default values live in their own collection keyed by owner so per-user and
// global clears are single DeleteMany calls.
type UserRepositoryMongo struct {
	users    *mongo.Collection
	defaults *mongo.Collection
}

// NewUserRepositoryMongo creates a new UserRepositoryMongo.
func NewUserRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.UserRepository, error) {
	repo := &UserRepositoryMongo{
		users:    db.Collection(UsersCollection),
		defaults: db.Collection(DefaultsCollection),
	}

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}}},
	}
	if _, err := repo.defaults.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for default_values collection (might already exist)")
	}

	return repo, nil
}

// FullName returns the display name for user, or empty when the user row is
// missing.
func (r *UserRepositoryMongo) FullName(ctx context.Context, user string) (string, error) {
	var row struct {
		FullName string `bson:"full_name"`
	}
	opts := options.FindOne().SetProjection(bson.M{"full_name": 1})
	err := r.users.FindOne(ctx, bson.M{"_id": user}, opts).Decode(&row)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return "", nil
		}
		return "", err
	}
	return row.FullName, nil
}

// UpdateLastLogin records the login time and client address on the user row.
func (r *UserRepositoryMongo) UpdateLastLogin(ctx context.Context, user string, at time.Time, ip string) error {
	update := bson.M{"$set": bson.M{
		"last_login": at,
		"last_ip":    ip,
	}}
	if _, err := r.users.UpdateOne(ctx, bson.M{"_id": user}, update); err != nil {
		log.Error().Err(err).Str("user", user).Msg("Error updating last login")
		return err
	}
	return nil
}

// ClearDefaults drops the stored default values of one user.
func (r *UserRepositoryMongo) ClearDefaults(ctx context.Context, user string) error {
	if _, err := r.defaults.DeleteMany(ctx, bson.M{"owner": user}); err != nil {
		log.Error().Err(err).Str("user", user).Msg("Error clearing user defaults")
		return err
	}
	return nil
}

// ClearGlobalDefaults drops the system-wide default values.
func (r *UserRepositoryMongo) ClearGlobalDefaults(ctx context.Context) error {
	if _, err := r.defaults.DeleteMany(ctx, bson.M{"owner": globalDefaultsOwner}); err != nil {
		log.Error().Err(err).Msg("Error clearing global defaults")
		return err
	}
	return nil
}

// Ensure interface compliance
var _ domain.UserRepository = (*UserRepositoryMongo)(nil)
