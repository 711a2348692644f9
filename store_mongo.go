package magiclink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	// DefaultMongoCollection is the collection used when none is given.
	DefaultMongoCollection = "magic_link_codes"
)

// MongoStore is a CodeStore backed by a MongoDB collection, one document
// per code. EnsureIndexes installs a TTL index so MongoDB collects expired
// codes.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

type mongoCode struct {
	Code      string    `bson:"_id"`
	Username  string    `bson:"username"`
	ExpiresAt int64     `bson:"expiresAt"`
	ExpireAt  time.Time `bson:"expireAt"`
}

// NewMongoStore creates and returns a new MongoStore on coll.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll, now: time.Now}
}

// EnsureIndexes creates the TTL index on expireAt.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expireAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (s *MongoStore) Put(ctx context.Context, code, username string, ttl time.Duration) error {
	exp := expiresAt(s.now(), ttl)
	doc := mongoCode{
		Code:      code,
		Username:  username,
		ExpiresAt: exp,
		ExpireAt:  time.Unix(exp, 0).UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": code}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo put: %w", err)
	}
	return nil
}

func (s *MongoStore) GetAndDelete(ctx context.Context, code string) (*CodeEntry, error) {
	var doc mongoCode
	err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": code}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCodeNotFound
	} else if err != nil {
		return nil, fmt.Errorf("mongo take: %w", err)
	}
	return &CodeEntry{
		Code:      doc.Code,
		Username:  doc.Username,
		ExpiresAt: doc.ExpiresAt,
	}, nil
}
