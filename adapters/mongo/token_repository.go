// Package mongo stores the bearer credential in MongoDB so several client
// processes on one profile share it.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain/repositories"
)

const credentialsCollection = "credentials"

type credentialDocument struct {
	Profile   string    `bson:"_id"`
	Token     string    `bson:"token"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// TokenRepository is a TokenStore backed by one document per profile
type TokenRepository struct {
	collection   *mongo.Collection
	profile      string
	pollInterval time.Duration
	logger       *zap.Logger
}

// Ensure TokenRepository implements the TokenStore and TokenWatcher interfaces
var (
	_ repositories.TokenStore   = (*TokenRepository)(nil)
	_ repositories.TokenWatcher = (*TokenRepository)(nil)
)

// NewTokenRepository creates a MongoDB token store for profile
func NewTokenRepository(db *mongo.Database, profile string, pollInterval time.Duration, logger *zap.Logger) *TokenRepository {
	if profile == "" {
		profile = "default"
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &TokenRepository{
		collection:   db.Collection(credentialsCollection),
		profile:      profile,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Set implements repositories.TokenStore
func (r *TokenRepository) Set(ctx context.Context, token string) error {
	update := bson.M{"$set": bson.M{"token": token, "updated_at": time.Now()}}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": r.profile}, update, opts); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Get implements repositories.TokenStore
func (r *TokenRepository) Get(ctx context.Context) (string, bool, error) {
	doc, err := r.find(ctx)
	if err != nil {
		return "", false, err
	}
	if doc == nil || doc.Token == "" {
		return "", false, nil
	}
	return doc.Token, true, nil
}

// Clear implements repositories.TokenStore
func (r *TokenRepository) Clear(ctx context.Context) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": r.profile}); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

func (r *TokenRepository) find(ctx context.Context) (*credentialDocument, error) {
	var doc credentialDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": r.profile}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return &doc, nil
}

// Watch implements repositories.TokenWatcher by polling; change streams need a replica set.
func (r *TokenRepository) Watch(ctx context.Context) (<-chan struct{}, error) {
	last, err := r.find(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := r.find(ctx)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.Warn("Failed to poll token", zap.String("profile", r.profile), zap.Error(err))
					}
					continue
				}
				if sameCredential(last, current) {
					continue
				}
				last = current
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

func sameCredential(a, b *credentialDocument) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Token == b.Token && a.UpdatedAt.Equal(b.UpdatedAt)
}
