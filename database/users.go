package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/models"
)

type UserStore struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewUserStore(db *Database, timeout time.Duration) *UserStore {
	return &UserStore{
		collection: db.Collection(UserCollection),
		timeout:    timeout,
	}
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}

	if _, err := s.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// TokenBlacklist stores revoked JWTs until their expiry; a TTL index on
// expiresAt removes them afterwards.
type TokenBlacklist struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewTokenBlacklist(db *Database, timeout time.Duration) *TokenBlacklist {
	return &TokenBlacklist{
		collection: db.Collection(BlacklistCollection),
		timeout:    timeout,
	}
}

func (b *TokenBlacklist) Add(ctx context.Context, token string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err := b.collection.InsertOne(ctx, bson.M{
		"token":     token,
		"expiresAt": expiresAt,
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

func (b *TokenBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	n, err := b.collection.CountDocuments(ctx, bson.M{"token": token})
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}
