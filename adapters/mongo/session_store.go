package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
)

// SessionStore persists terminal sessions to the sessions collection.
type SessionStore struct {
	collection *mongo.Collection
}

var _ repositories.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a MongoDB-backed session history store.
func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{
		collection: db.Collection("sessions"),
	}
}

// Append implements repositories.SessionStore. Replays of the same session id
// replace the existing document, so at-least-once callers stay idempotent.
func (s *SessionStore) Append(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if !session.State.Terminal() {
		return fmt.Errorf("session %s is not terminal", session.ID)
	}

	filter := bson.M{"_id": session.ID}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, filter, session, opts); err != nil {
		return fmt.Errorf("failed to append session: %w", err)
	}
	return nil
}

// RecentByDevice implements repositories.SessionStore.
func (s *SessionStore) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]*entities.Session, error) {
	if deviceID == "" {
		return nil, errors.New("device ID cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	filter := bson.M{"device_id": deviceID}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for device %s: %w", deviceID, err)
	}
	defer cursor.Close(ctx)

	var sessions []*entities.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}
