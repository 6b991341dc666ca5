package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// MongoStore implements Store against MongoDB, one collection per
// document kind, matching the spec's "persistence layer ... opaque
// key/value operations" framing: the core never builds aggregation
// pipelines here, only id-scoped CRUD and owner-filtered listing.
type MongoStore struct {
	users     *mongo.Collection
	sessions  *mongo.Collection
	messages  *mongo.Collection
	artifacts *mongo.Collection
	reports   *mongo.Collection
}

// Connect dials MongoDB at url and returns a MongoStore over database.
func Connect(ctx context.Context, url, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("store: connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("store: ping mongo: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		users:     db.Collection("users"),
		sessions:  db.Collection("chat_sessions"),
		messages:  db.Collection("chat_messages"),
		artifacts: db.Collection("artifacts"),
		reports:   db.Collection("validation_reports"),
	}, nil
}

func (s *MongoStore) InsertUser(ctx context.Context, user *models.User) error {
	_, err := s.users.InsertOne(ctx, user)
	return err
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOneUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOneUser(ctx, bson.M{"username": username})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOneUser(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *MongoStore) findOneUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	return err
}

func (s *MongoStore) InsertSession(ctx context.Context, session *models.ChatSession) error {
	_, err := s.sessions.InsertOne(ctx, session)
	return err
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find session: %w", err)
	}
	return &session, nil
}

func (s *MongoStore) ListSessions(ctx context.Context, userID string, limit, offset int, search string, from, to *time.Time) ([]models.ChatSession, int, error) {
	filter := bson.M{"user_id": userID}
	if search != "" {
		filter["title"] = bson.M{"$regex": search, "$options": "i"}
	}
	if from != nil || to != nil {
		created := bson.M{}
		if from != nil {
			created["$gte"] = *from
		}
		if to != nil {
			created["$lte"] = *to
		}
		filter["created_at"] = created
	}

	total, err := s.sessions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("store: count sessions: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetSkip(int64(offset)).SetLimit(int64(limit))
	cursor, err := s.sessions.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.ChatSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, 0, fmt.Errorf("store: decode sessions: %w", err)
	}
	return sessions, int(total), nil
}

func (s *MongoStore) UpdateSession(ctx context.Context, session *models.ChatSession) error {
	session.UpdatedAt = time.Now()
	_, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": session.ID}, session)
	return err
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.DeleteMessagesForChat(ctx, id); err != nil {
		return err
	}
	_, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) InsertMessage(ctx context.Context, message *models.ChatMessage) error {
	_, err := s.messages.InsertOne(ctx, message)
	return err
}

func (s *MongoStore) ListMessages(ctx context.Context, chatID string, limit, offset int, includeSystem bool, roleFilter string) ([]models.ChatMessage, int, error) {
	filter := bson.M{"chat_id": chatID}
	if !includeSystem {
		filter["is_system"] = bson.M{"$ne": true}
	}
	if roleFilter != "" {
		filter["role"] = roleFilter
	}

	total, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("store: count messages: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(int64(offset)).SetLimit(int64(limit))
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.ChatMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, 0, fmt.Errorf("store: decode messages: %w", err)
	}
	return messages, int(total), nil
}

func (s *MongoStore) DeleteMessagesForChat(ctx context.Context, chatID string) error {
	_, err := s.messages.DeleteMany(ctx, bson.M{"chat_id": chatID})
	return err
}

func (s *MongoStore) InsertArtifact(ctx context.Context, artifact *models.Artifact) error {
	_, err := s.artifacts.InsertOne(ctx, artifact)
	return err
}

func (s *MongoStore) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	var artifact models.Artifact
	err := s.artifacts.FindOne(ctx, bson.M{"_id": id}).Decode(&artifact)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find artifact: %w", err)
	}
	return &artifact, nil
}

func (s *MongoStore) InsertReport(ctx context.Context, report *models.ValidationReport) error {
	_, err := s.reports.InsertOne(ctx, report)
	return err
}

func (s *MongoStore) GetReport(ctx context.Context, id string) (*models.ValidationReport, error) {
	var report models.ValidationReport
	err := s.reports.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find report: %w", err)
	}
	return &report, nil
}
