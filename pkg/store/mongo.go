package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/shieldllm/ileguard/pkg/model"
)

// Collection names.
const (
	collUsers    = "users"
	collSessions = "sessions"
	collMessages = "messages"
	collLogs     = "logs"
)

// Mongo implements Store on MongoDB. Documents use uuid string ids so the
// API never leaks driver-specific id types.
type Mongo struct {
	db  *mongo.Database
	log *logrus.Logger
}

// Connect dials MongoDB and returns a Store bound to the named database.
// The caller owns the client and should Disconnect it on shutdown.
func Connect(ctx context.Context, uri, dbName string, log *logrus.Logger) (*Mongo, *mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	m := &Mongo{db: client.Database(dbName), log: log}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	log.WithField("db", dbName).Info("mongodb connected")
	return m, client, nil
}

// NewMongo wraps an existing database handle. Used by tests and tooling.
func NewMongo(db *mongo.Database, log *logrus.Logger) *Mongo {
	return &Mongo{db: db, log: log}
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(collUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users email index: %w", err)
	}
	for _, coll := range []string{collSessions, collMessages, collLogs} {
		key := "session_id"
		if coll == collSessions {
			key = "user_id"
		}
		_, err := m.db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: key, Value: 1}, {Key: "created_at", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("%s index: %w", coll, err)
		}
	}
	return nil
}

// Ping probes database liveness.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, readpref.Primary())
}

// CreateUser inserts a new user. Emails are case-folded so uniqueness is
// case-insensitive.
func (m *Mongo) CreateUser(ctx context.Context, name, email, passwordHash string, role model.UserRole) (*model.User, error) {
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := m.db.Collection(collUsers).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, model.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// UserByEmail looks a user up by case-folded email.
func (m *Mongo) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := m.db.Collection(collUsers).
		FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// UserByID fetches a user by id.
func (m *Mongo) UserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := m.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// CreateSession inserts a new session owned by userID with full trust.
func (m *Mongo) CreateSession(ctx context.Context, userID string, tool model.ToolType, mode model.DefenseMode, graph model.IntentGraph) (*model.Session, error) {
	session := &model.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ToolType:    tool,
		DefenseMode: mode,
		TrustScore:  100,
		IntentGraph: graph,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := m.db.Collection(collSessions).InsertOne(ctx, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// SessionByID fetches a session by id.
func (m *Mongo) SessionByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := m.db.Collection(collSessions).FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// SessionsByUser lists a user's sessions newest first.
func (m *Mongo) SessionsByUser(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.db.Collection(collSessions).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := []model.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSessionState rewrites the intent graph and trust score atomically.
func (m *Mongo) UpdateSessionState(ctx context.Context, id string, graph model.IntentGraph, trustScore int) error {
	res, err := m.db.Collection(collSessions).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"intent_graph": graph, "trust_score": trustScore}},
	)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// CreateMessage appends a conversation message.
func (m *Mongo) CreateMessage(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := m.db.Collection(collMessages).InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// MessagesBySession lists the most recent limit messages of a session in
// chronological order. The query sorts newest first so the limit bounds the
// scan, then the page is reversed.
func (m *Mongo) MessagesBySession(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.db.Collection(collMessages).Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages := []model.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountUserMessages counts the user-authored messages of a session.
func (m *Mongo) CountUserMessages(ctx context.Context, sessionID string) (int, error) {
	n, err := m.db.Collection(collMessages).CountDocuments(ctx,
		bson.M{"session_id": sessionID, "role": model.RoleUser})
	if err != nil {
		return 0, fmt.Errorf("count user messages: %w", err)
	}
	return int(n), nil
}

// CreateTurnLog persists one turn log, assigning id and timestamp.
func (m *Mongo) CreateTurnLog(ctx context.Context, log *model.TurnLog) (*model.TurnLog, error) {
	entry := *log
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	if entry.StrippedSpans == nil {
		entry.StrippedSpans = []string{}
	}
	if entry.Reasons == nil {
		entry.Reasons = []string{}
	}
	if _, err := m.db.Collection(collLogs).InsertOne(ctx, &entry); err != nil {
		return nil, fmt.Errorf("insert turn log: %w", err)
	}
	return &entry, nil
}

// TurnLogByID fetches one turn log.
func (m *Mongo) TurnLogByID(ctx context.Context, id string) (*model.TurnLog, error) {
	var entry model.TurnLog
	err := m.db.Collection(collLogs).FindOne(ctx, bson.M{"_id": id}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find turn log: %w", err)
	}
	return &entry, nil
}

// TurnLogsBySession lists a session's logs newest first with optional
// level/action filters, returning the total match count for paging.
func (m *Mongo) TurnLogsBySession(ctx context.Context, sessionID string, filter LogFilter) ([]model.TurnLog, int64, error) {
	query := bson.M{"session_id": sessionID}
	if filter.Level != "" {
		query["decision_level"] = filter.Level
	}
	if filter.Action != "" {
		query["defense_action"] = filter.Action
	}

	coll := m.db.Collection(collLogs)
	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count turn logs: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	cursor, err := coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list turn logs: %w", err)
	}
	logs := []model.TurnLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, 0, fmt.Errorf("decode turn logs: %w", err)
	}
	return logs, total, nil
}
